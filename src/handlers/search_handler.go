package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/username/wombats/backend/src/logger"
	"github.com/username/wombats/backend/src/models"
	"github.com/username/wombats/backend/src/services"
	"github.com/username/wombats/backend/src/utils"
)

type SearchHandler struct {
	quoteService services.QuoteService
}

func NewSearchHandler(quoteService services.QuoteService) *SearchHandler {
	return &SearchHandler{quoteService: quoteService}
}

// HandleSearch runs the provider's symbol lookup for ?q=. Results go
// through the same request queue as quotes, so searches never break
// the provider's pacing limits.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		utils.SendJSONError(w, "query parameter 'q' is required", http.StatusBadRequest)
		return
	}
	logger.L.Debug("Handling symbol search", "userID", userID, "query", query)

	results, err := h.quoteService.SearchSymbols(r.Context(), query)
	if err != nil {
		if fetchErr, ok := err.(*models.FetchError); ok && fetchErr.Throttled {
			utils.SendJSONError(w, "quote provider is throttling requests, try again shortly", http.StatusServiceUnavailable)
			return
		}
		utils.SendJSONError(w, fmt.Sprintf("Error searching symbols: %v", err), http.StatusBadGateway)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	utils.SendJSON(w, results, http.StatusOK)
}
