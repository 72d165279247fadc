// backend/src/services/quote_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/username/wombats/backend/src/logger"
	"github.com/username/wombats/backend/src/models"
)

// Structs for Finnhub API responses
type finnhubQuoteResponse struct {
	Current       float64 `json:"c"`
	DayHigh       float64 `json:"h"`
	DayLow        float64 `json:"l"`
	PreviousClose float64 `json:"pc"`
}

type finnhubProfileResponse struct {
	Currency  string  `json:"currency"`
	Name      string  `json:"name"`
	Exchange  string  `json:"exchange"`
	Industry  string  `json:"finnhubIndustry"`
	MarketCap float64 `json:"marketCapitalization"`
	Ticker    string  `json:"ticker"`
}

type finnhubSearchResponse struct {
	Count  int `json:"count"`
	Result []struct {
		Symbol      string `json:"symbol"`
		Description string `json:"description"`
		Type        string `json:"type"`
	} `json:"result"`
}

const maxSearchResults = 10

// quoteServiceImpl implements QuoteService against the Finnhub API.
// Every outbound call goes through the request queue, so a batch of
// symbols never exceeds the provider's pacing limits.
type quoteServiceImpl struct {
	queue   *QuoteRequestQueue
	baseURL string
	apiKey  string
}

func NewQuoteService(queue *QuoteRequestQueue, baseURL, apiKey string) QuoteService {
	return &quoteServiceImpl{
		queue:   queue,
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// FetchQuote issues two queued requests for the symbol: the price
// snapshot, then the company profile. A profile failure is non-fatal
// and degrades to a minimal quote built from the price data and the
// caller-supplied display name. A price snapshot failure is fatal for
// the symbol and returns a *models.FetchError.
func (s *quoteServiceImpl) FetchQuote(ctx context.Context, ref models.SymbolRef) (*models.Quote, error) {
	quoteURL := fmt.Sprintf("%s/quote?symbol=%s&token=%s", s.baseURL, url.QueryEscape(ref.Symbol), s.apiKey)
	resp, err := s.queue.Enqueue(ctx, quoteURL)
	if err != nil {
		return nil, &models.FetchError{Symbol: ref.Symbol, Reason: err.Error()}
	}
	if resp.Throttled() {
		return nil, &models.FetchError{Symbol: ref.Symbol, Reason: "provider rate limit exceeded", Throttled: true}
	}
	if !resp.OK() {
		return nil, &models.FetchError{Symbol: ref.Symbol, Reason: fmt.Sprintf("provider returned status %d", resp.StatusCode)}
	}

	var quoteData finnhubQuoteResponse
	if err := json.Unmarshal(resp.Body, &quoteData); err != nil {
		return nil, &models.FetchError{Symbol: ref.Symbol, Reason: fmt.Sprintf("decoding price snapshot: %v", err)}
	}
	// Finnhub answers unknown symbols with an all-zero snapshot.
	if quoteData.Current == 0 && quoteData.PreviousClose == 0 {
		return nil, &models.FetchError{Symbol: ref.Symbol, Reason: "no price data for symbol"}
	}

	price := decimal.NewFromFloat(quoteData.Current)
	prevClose := decimal.NewFromFloat(quoteData.PreviousClose)
	quote := &models.Quote{
		Symbol:        ref.Symbol,
		Price:         price,
		PreviousClose: prevClose,
		DayHigh:       decimal.NewFromFloat(quoteData.DayHigh),
		DayLow:        decimal.NewFromFloat(quoteData.DayLow),
		Change:        price.Sub(prevClose),
		Currency:      "USD",
		CompanyName:   ref.DisplayName,
	}
	if !prevClose.IsZero() {
		quote.ChangePercent = price.Sub(prevClose).Div(prevClose).Mul(decimal.NewFromInt(100))
	}

	s.attachProfile(ctx, ref, quote)
	return quote, nil
}

// attachProfile enriches the quote with company data. All failures are
// logged and swallowed; the price snapshot already made the quote
// usable.
func (s *quoteServiceImpl) attachProfile(ctx context.Context, ref models.SymbolRef, quote *models.Quote) {
	profileURL := fmt.Sprintf("%s/stock/profile2?symbol=%s&token=%s", s.baseURL, url.QueryEscape(ref.Symbol), s.apiKey)
	resp, err := s.queue.Enqueue(ctx, profileURL)
	if err != nil {
		logger.L.Warn("Company profile fetch failed, using price data only", "symbol", ref.Symbol, "error", err)
		return
	}
	if !resp.OK() {
		logger.L.Warn("Company profile fetch returned non-OK status, using price data only", "symbol", ref.Symbol, "status", resp.StatusCode)
		return
	}

	var profile finnhubProfileResponse
	if err := json.Unmarshal(resp.Body, &profile); err != nil {
		logger.L.Warn("Decoding company profile failed, using price data only", "symbol", ref.Symbol, "error", err)
		return
	}

	if profile.Currency != "" {
		quote.Currency = profile.Currency
	}
	if profile.Name != "" {
		quote.CompanyName = profile.Name
	}
	quote.Industry = profile.Industry
	quote.Exchange = profile.Exchange
	quote.MarketCap = profile.MarketCap
}

// FetchQuotes prices the symbols one at a time, in order, to respect
// the single global queue. A cancelled context stops the batch;
// symbols already priced keep their results.
func (s *quoteServiceImpl) FetchQuotes(ctx context.Context, refs []models.SymbolRef, onResult func(symbol string, quote *models.Quote, err error)) map[string]QuoteResult {
	results := make(map[string]QuoteResult, len(refs))
	for _, ref := range refs {
		if ctx.Err() != nil {
			logger.L.Info("Quote batch abandoned", "remaining", len(refs)-len(results))
			break
		}
		quote, err := s.FetchQuote(ctx, ref)
		results[ref.Symbol] = QuoteResult{Quote: quote, Err: err}
		if onResult != nil {
			onResult(ref.Symbol, quote, err)
		}
	}
	return results
}

// SearchSymbols runs the provider's symbol lookup, keeping common
// stocks only and capping the result list.
func (s *quoteServiceImpl) SearchSymbols(ctx context.Context, query string) ([]models.SearchResult, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s&token=%s", s.baseURL, url.QueryEscape(query), s.apiKey)
	resp, err := s.queue.Enqueue(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("symbol search failed: %w", err)
	}
	if resp.Throttled() {
		return nil, &models.FetchError{Symbol: query, Reason: "provider rate limit exceeded", Throttled: true}
	}
	if !resp.OK() {
		return nil, fmt.Errorf("symbol search returned status %d", resp.StatusCode)
	}

	var searchData finnhubSearchResponse
	if err := json.Unmarshal(resp.Body, &searchData); err != nil {
		return nil, fmt.Errorf("decoding symbol search response: %w", err)
	}

	results := make([]models.SearchResult, 0, maxSearchResults)
	for _, item := range searchData.Result {
		if item.Type != "Common Stock" {
			continue
		}
		results = append(results, models.SearchResult{
			Symbol:      item.Symbol,
			Description: item.Description,
			Type:        item.Type,
		})
		if len(results) == maxSearchResults {
			break
		}
	}
	return results, nil
}
