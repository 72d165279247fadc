package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/username/wombats/backend/src/logger"
	"github.com/username/wombats/backend/src/processors"
	"github.com/username/wombats/backend/src/services"
	"github.com/username/wombats/backend/src/utils"
)

const defaultPerformerCount = 5

type PortfolioHandler struct {
	portfolioService services.PortfolioService
}

func NewPortfolioHandler(portfolioService services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
	}
}

// HandleGetPortfolio returns the priced snapshot for the
// authenticated user. Holdings whose quote fetch failed are included
// with an error marker and excluded from the total.
func (h *PortfolioHandler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.L.Debug("Handling GetPortfolio", "userID", userID)

	snapshot, err := h.portfolioService.GetPortfolio(r.Context(), userID)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Error building portfolio for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, snapshot, http.StatusOK)
}

// HandleGetTopPerformers ranks the user's holdings by unrealized P&L.
// ?by=pnl ranks by absolute P&L (the default), ?by=percent by
// percentage; ?limit=n caps the list.
func (h *PortfolioHandler) HandleGetTopPerformers(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	limit := defaultPerformerCount
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			utils.SendJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	ranking := processors.ParsePerformerRanking(r.URL.Query().Get("by"))

	snapshot, err := h.portfolioService.GetPortfolio(r.Context(), userID)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Error building portfolio for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}

	performers := processors.TopPerformers(snapshot.Holdings, limit, ranking)
	utils.SendJSON(w, map[string]interface{}{
		"ranking":    ranking,
		"performers": performers,
	}, http.StatusOK)
}
