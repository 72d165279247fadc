// backend/src/services/trade_service.go
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/username/wombats/backend/src/logger"
	"github.com/username/wombats/backend/src/models"
	"github.com/username/wombats/backend/src/processors"
)

// tradeServiceImpl validates and records buys and sells. All mutation
// of a user's ledger and balance flows through here; the store commits
// both effects as one unit so a failed trade leaves nothing behind.
type tradeServiceImpl struct {
	store        TradeStore
	quoteService QuoteService
	holdings     *processors.HoldingsProcessor
	portfolio    PortfolioService
}

func NewTradeService(store TradeStore, quoteService QuoteService, holdings *processors.HoldingsProcessor, portfolio PortfolioService) TradeService {
	return &tradeServiceImpl{
		store:        store,
		quoteService: quoteService,
		holdings:     holdings,
		portfolio:    portfolio,
	}
}

func (s *tradeServiceImpl) ExecuteBuy(ctx context.Context, userID int64, req TradeRequest) (*models.Transaction, error) {
	if req.Quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}

	unitPrice, err := s.resolvePrice(ctx, req)
	if err != nil {
		return nil, err
	}
	cost := unitPrice.Mul(decimal.NewFromInt(req.Quantity))

	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, &models.PersistenceError{Op: "read balance", Err: err}
	}
	if cost.GreaterThan(balance) {
		return nil, models.ErrInsufficientFunds
	}

	tx := newTradeTransaction(req, req.Quantity, unitPrice, cost)
	if err := s.store.ExecuteTrade(ctx, userID, tx, balance.Sub(cost)); err != nil {
		return nil, &models.PersistenceError{Op: "commit buy", Err: err}
	}

	s.portfolio.InvalidateUserCache(userID)
	logger.L.Info("Buy executed", "userID", userID, "symbol", tx.Symbol, "quantity", tx.Quantity, "unitPrice", unitPrice.String(), "cost", cost.String())
	return &tx, nil
}

func (s *tradeServiceImpl) ExecuteSell(ctx context.Context, userID int64, req TradeRequest) (*models.Transaction, error) {
	if req.Quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}

	// The held quantity is recomputed from the ledger immediately before
	// validation; over-selling never reaches the ledger.
	ledger, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, &models.PersistenceError{Op: "read ledger", Err: err}
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	holding, held := s.holdings.Aggregate(ledger)[symbol]
	if !held || holding.Quantity < req.Quantity {
		return nil, models.ErrInsufficientHoldings
	}

	unitPrice, err := s.resolvePrice(ctx, req)
	if err != nil {
		return nil, err
	}
	proceeds := unitPrice.Mul(decimal.NewFromInt(req.Quantity))

	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, &models.PersistenceError{Op: "read balance", Err: err}
	}

	tx := newTradeTransaction(req, -req.Quantity, unitPrice, proceeds)
	if err := s.store.ExecuteTrade(ctx, userID, tx, balance.Add(proceeds)); err != nil {
		return nil, &models.PersistenceError{Op: "commit sell", Err: err}
	}

	s.portfolio.InvalidateUserCache(userID)
	logger.L.Info("Sell executed", "userID", userID, "symbol", tx.Symbol, "quantity", tx.Quantity, "unitPrice", unitPrice.String(), "proceeds", proceeds.String())
	return &tx, nil
}

// resolvePrice takes the caller's limit price when one is given,
// otherwise prices the order at the current market quote.
func (s *tradeServiceImpl) resolvePrice(ctx context.Context, req TradeRequest) (decimal.Decimal, error) {
	if req.UnitPrice.IsPositive() {
		return req.UnitPrice, nil
	}
	quote, err := s.quoteService.FetchQuote(ctx, models.SymbolRef{
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		DisplayName: req.ProductName,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Price, nil
}

func newTradeTransaction(req TradeRequest, signedQuantity int64, unitPrice, totalCost decimal.Decimal) models.Transaction {
	return models.Transaction{
		OrderID:     uuid.NewString(),
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		ProductName: req.ProductName,
		Quantity:    signedQuantity,
		UnitPrice:   unitPrice,
		TotalCost:   totalCost,
		ExecutedAt:  time.Now().UTC(),
	}
}
