package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/username/wombats/backend/src/config"
	"github.com/username/wombats/backend/src/database"
	"github.com/username/wombats/backend/src/logger"
	"github.com/username/wombats/backend/src/model"
	"github.com/username/wombats/backend/src/security"
	"github.com/username/wombats/backend/src/storage"
	"github.com/username/wombats/backend/src/utils"
)

// Define a custom type for context keys to avoid collisions.
type contextKey string

const userIDContextKey contextKey = "userID"

// GetUserIDFromContext extracts the authenticated user ID placed there
// by AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

type UserHandler struct {
	authService *security.AuthService
	store       *storage.Store
}

func NewUserHandler(authService *security.AuthService, store *storage.Store) *UserHandler {
	return &UserHandler{
		authService: authService,
		store:       store,
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || len(creds.Password) < 8 {
		utils.SendJSONError(w, "Username is required and password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	hashed, err := h.authService.HashPassword(creds.Password)
	if err != nil {
		utils.SendJSONError(w, "Error processing registration", http.StatusInternalServerError)
		return
	}

	user := model.User{Username: creds.Username, Password: hashed}
	if err := user.CreateUser(database.DB); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			utils.SendJSONError(w, "Username already taken", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to create user", "username", creds.Username, "error", err)
		utils.SendJSONError(w, "Error creating user", http.StatusInternalServerError)
		return
	}

	// New accounts start with the configured cash balance.
	if err := h.store.CreateAccount(r.Context(), user.ID, config.Cfg.StartingCashBalance); err != nil {
		logger.L.Error("Failed to seed account for new user", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Error creating account", http.StatusInternalServerError)
		return
	}

	logger.L.Info("User registered", "userID", user.ID, "username", user.Username)
	utils.SendJSON(w, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	}, http.StatusCreated)
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByUsername(database.DB, strings.TrimSpace(creds.Username))
	if err != nil {
		logger.L.Warn("Login failed: user lookup", "username", creds.Username, "error", err)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}
	if err := h.authService.CompareHashAndPassword(user.Password, creds.Password); err != nil {
		logger.L.Warn("Login failed: password mismatch", "username", creds.Username)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := h.authService.GenerateToken(strconv.FormatInt(user.ID, 10))
	if err != nil {
		logger.L.Error("Failed to generate token", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Error generating token", http.StatusInternalServerError)
		return
	}

	logger.L.Info("User logged in", "userID", user.ID)
	utils.SendJSON(w, map[string]interface{}{
		"token":    token,
		"id":       user.ID,
		"username": user.Username,
	}, http.StatusOK)
}
