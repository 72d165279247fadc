package handlers

import (
	"fmt"
	"net/http"

	"github.com/username/wombats/backend/src/models"
	"github.com/username/wombats/backend/src/storage"
	"github.com/username/wombats/backend/src/utils"
)

type AccountHandler struct {
	store *storage.Store
}

func NewAccountHandler(store *storage.Store) *AccountHandler {
	return &AccountHandler{store: store}
}

// HandleGetAccount returns the authenticated user's cash balance.
func (h *AccountHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	balance, err := h.store.GetBalance(r.Context(), userID)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving account for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, models.Account{UserID: userID, CashBalance: balance}, http.StatusOK)
}
