// backend/src/services/portfolio_service.go
package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/wombats/backend/src/logger"
	"github.com/username/wombats/backend/src/models"
	"github.com/username/wombats/backend/src/processors"
)

const ckPortfolioSnapshot = "portfolio_snapshot_user_%d"

// DefaultSnapshotExpiration bounds how long a priced snapshot may be
// served before quotes are fetched again. Any executed trade
// invalidates the snapshot immediately.
const DefaultSnapshotExpiration = 1 * time.Minute

// portfolioServiceImpl derives a priced portfolio view from the ledger
// and current market quotes. Valuing N holdings takes on the order of
// N times the quote request spacing, so snapshots are cached per user
// between trades.
type portfolioServiceImpl struct {
	store         TradeStore
	quoteService  QuoteService
	holdings      *processors.HoldingsProcessor
	snapshotCache *cache.Cache
	snapshotTTL   time.Duration
}

func NewPortfolioService(store TradeStore, quoteService QuoteService, holdings *processors.HoldingsProcessor, snapshotCache *cache.Cache, snapshotTTL time.Duration) PortfolioService {
	if snapshotTTL <= 0 {
		snapshotTTL = DefaultSnapshotExpiration
	}
	return &portfolioServiceImpl{
		store:         store,
		quoteService:  quoteService,
		holdings:      holdings,
		snapshotCache: snapshotCache,
		snapshotTTL:   snapshotTTL,
	}
}

// GetPortfolio replays the ledger into holdings, prices each one
// through the quote service and joins the results. A holding whose
// quote fetch failed stays in the output with its price fields unset
// and the failure attached; it does not contribute to TotalValue.
func (s *portfolioServiceImpl) GetPortfolio(ctx context.Context, userID int64) (*models.PortfolioSnapshot, error) {
	cacheKey := fmt.Sprintf(ckPortfolioSnapshot, userID)
	if s.snapshotCache != nil {
		if cached, found := s.snapshotCache.Get(cacheKey); found {
			logger.L.Debug("Cache hit for portfolio snapshot", "userID", userID)
			return cached.(*models.PortfolioSnapshot), nil
		}
	}

	startTime := time.Now()
	ledger, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading ledger for user %d: %w", userID, err)
	}
	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading balance for user %d: %w", userID, err)
	}

	holdings := s.holdings.Aggregate(ledger)
	symbols := make([]string, 0, len(holdings))
	for symbol := range holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	refs := make([]models.SymbolRef, 0, len(symbols))
	for _, symbol := range symbols {
		refs = append(refs, models.SymbolRef{Symbol: symbol, DisplayName: holdings[symbol].ProductName})
	}
	results := s.quoteService.FetchQuotes(ctx, refs, nil)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	snapshot := &models.PortfolioSnapshot{
		Holdings:    make([]models.PricedHolding, 0, len(symbols)),
		TotalValue:  decimal.Zero,
		CashBalance: balance,
		GeneratedAt: time.Now().UTC(),
	}
	for _, symbol := range symbols {
		priced := priceHolding(holdings[symbol], results[symbol])
		if priced.Priced() {
			snapshot.TotalValue = snapshot.TotalValue.Add(*priced.CurrentValue)
		}
		snapshot.Holdings = append(snapshot.Holdings, priced)
	}

	if s.snapshotCache != nil {
		s.snapshotCache.Set(cacheKey, snapshot, s.snapshotTTL)
	}
	logger.L.Info("Portfolio snapshot built", "userID", userID, "holdings", len(snapshot.Holdings), "duration", time.Since(startTime))
	return snapshot, nil
}

// InvalidateUserCache drops the cached snapshot so the next request
// triggers a full recomputation against fresh quotes.
func (s *portfolioServiceImpl) InvalidateUserCache(userID int64) {
	if s.snapshotCache == nil {
		return
	}
	s.snapshotCache.Delete(fmt.Sprintf(ckPortfolioSnapshot, userID))
	logger.L.Debug("Invalidated portfolio snapshot cache", "userID", userID)
}

// priceHolding joins one holding with its quote result. The P&L
// percentage is omitted when the cost basis is zero.
func priceHolding(h models.Holding, result QuoteResult) models.PricedHolding {
	priced := models.PricedHolding{
		Holding: h,
		AvgCost: h.AverageCost(),
	}

	if result.Err != nil || result.Quote == nil {
		priced.FetchErrorReason = "quote unavailable"
		if fetchErr, ok := result.Err.(*models.FetchError); ok {
			priced.FetchErrorReason = fetchErr.Reason
		}
		return priced
	}

	quote := result.Quote
	price := quote.Price
	value := price.Mul(decimal.NewFromInt(h.Quantity))
	pnl := value.Sub(h.CostBasis)

	priced.Quote = quote
	priced.CurrentPrice = &price
	priced.CurrentValue = &value
	priced.UnrealizedPnL = &pnl
	if h.CostBasis.IsPositive() {
		pct := pnl.Div(h.CostBasis).Mul(decimal.NewFromInt(100))
		priced.UnrealizedPnLPercent = &pct
	}
	return priced
}
