package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/username/wombats/backend/src/database"
	"github.com/username/wombats/backend/src/security"
	"github.com/username/wombats/backend/src/storage"
)

func newUserHandler(t *testing.T) (*UserHandler, *storage.Store) {
	t.Helper()
	database.InitDB(":memory:")
	t.Cleanup(func() { database.DB.Close() })
	store := storage.NewStore(database.DB)
	return NewUserHandler(security.NewAuthService("test-secret-0123456789abcdef0123"), store), store
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestRegisterValidation(t *testing.T) {
	h, _ := newUserHandler(t)
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed body", body: `{not json`},
		{name: "missing username", body: `{"username": "", "password": "longenough"}`},
		{name: "short password", body: `{"username": "alice", "password": "short"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := postJSON(t, h.RegisterUserHandler, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	h, store := newUserHandler(t)

	rr := postJSON(t, h.RegisterUserHandler, `{"username": "alice", "password": "correct-horse"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var registered struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &registered); err != nil {
		t.Fatalf("decoding register response: %v", err)
	}
	if registered.Username != "alice" || registered.ID == 0 {
		t.Fatalf("register response = %+v", registered)
	}

	// Registration seeds the starting cash balance.
	balance, err := store.GetBalance(context.Background(), registered.ID)
	if err != nil {
		t.Fatalf("GetBalance after register: %v", err)
	}
	if got := balance.String(); got != "10000" {
		t.Errorf("starting balance = %s, want 10000", got)
	}

	if rr := postJSON(t, h.RegisterUserHandler, `{"username": "alice", "password": "another-pass"}`); rr.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", rr.Code)
	}

	if rr := postJSON(t, h.LoginUserHandler, `{"username": "alice", "password": "wrong-pass"}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("bad password login status = %d, want 401", rr.Code)
	}
	if rr := postJSON(t, h.LoginUserHandler, `{"username": "nobody", "password": "correct-horse"}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("unknown user login status = %d, want 401", rr.Code)
	}

	rr = postJSON(t, h.LoginUserHandler, `{"username": "alice", "password": "correct-horse"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var loggedIn struct {
		Token string `json:"token"`
		ID    int64  `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &loggedIn); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if loggedIn.Token == "" {
		t.Fatal("login response has no token")
	}

	// The issued token must pass the auth middleware and carry the user ID.
	var gotUserID int64
	protected := h.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Error("user ID missing from authenticated request context")
		}
		gotUserID = userID
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+loggedIn.Token)
	authRR := httptest.NewRecorder()
	protected.ServeHTTP(authRR, req)
	if authRR.Code != http.StatusOK {
		t.Fatalf("authenticated request status = %d, want 200", authRR.Code)
	}
	if gotUserID != registered.ID {
		t.Errorf("context user ID = %d, want %d", gotUserID, registered.ID)
	}
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	h, _ := newUserHandler(t)
	protected := h.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without valid credentials")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "empty bearer", header: "Bearer "},
		{name: "garbage token", header: "Bearer not.a.jwt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rr.Code)
			}
		})
	}
}
