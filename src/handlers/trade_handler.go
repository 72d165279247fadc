package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/username/wombats/backend/src/logger"
	"github.com/username/wombats/backend/src/models"
	"github.com/username/wombats/backend/src/services"
	"github.com/username/wombats/backend/src/storage"
	"github.com/username/wombats/backend/src/utils"
)

type TradeHandler struct {
	tradeService services.TradeService
	store        *storage.Store
}

func NewTradeHandler(tradeService services.TradeService, store *storage.Store) *TradeHandler {
	return &TradeHandler{
		tradeService: tradeService,
		store:        store,
	}
}

type executeFunc func(ctx context.Context, userID int64, req services.TradeRequest) (*models.Transaction, error)

func (h *TradeHandler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	h.handleTrade(w, r, h.tradeService.ExecuteBuy)
}

func (h *TradeHandler) HandleSell(w http.ResponseWriter, r *http.Request) {
	h.handleTrade(w, r, h.tradeService.ExecuteSell)
}

func (h *TradeHandler) handleTrade(w http.ResponseWriter, r *http.Request, execute executeFunc) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req services.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		utils.SendJSONError(w, "symbol is required", http.StatusBadRequest)
		return
	}

	tx, err := execute(r.Context(), userID, req)
	if err != nil {
		writeTradeError(w, userID, err)
		return
	}
	utils.SendJSON(w, tx, http.StatusCreated)
}

// writeTradeError maps the trade service's typed failures onto HTTP
// statuses the caller can branch on.
func writeTradeError(w http.ResponseWriter, userID int64, err error) {
	var fetchErr *models.FetchError
	var persistErr *models.PersistenceError

	switch {
	case errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrInsufficientHoldings):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &fetchErr):
		utils.SendJSONError(w, fmt.Sprintf("could not price order: %v", fetchErr), http.StatusBadGateway)
	case errors.As(err, &persistErr):
		logger.L.Error("Trade persistence failure", "userID", userID, "op", persistErr.Op, "error", persistErr.Err)
		utils.SendJSONError(w, "trade could not be recorded", http.StatusInternalServerError)
	default:
		logger.L.Error("Unexpected trade failure", "userID", userID, "error", err)
		utils.SendJSONError(w, "trade failed", http.StatusInternalServerError)
	}
}

// HandleGetTransactions returns the user's ledger, newest first.
func (h *TradeHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	transactions, err := h.store.ListTransactions(r.Context(), userID)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving transactions for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	// Ledger order is oldest first; the API serves newest first.
	for i, j := 0, len(transactions)-1; i < j; i, j = i+1, j-1 {
		transactions[i], transactions[j] = transactions[j], transactions[i]
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	utils.SendJSON(w, transactions, http.StatusOK)
}
