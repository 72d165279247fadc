package services

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/username/wombats/backend/src/models"
)

// QuoteResult is the per-symbol outcome of a batch fetch. Err, when
// set, is a *models.FetchError.
type QuoteResult struct {
	Quote *models.Quote
	Err   error
}

// QuoteService fetches price/company snapshots from the external
// quote provider, one request at a time through the request queue.
type QuoteService interface {
	FetchQuote(ctx context.Context, ref models.SymbolRef) (*models.Quote, error)
	// FetchQuotes prices the symbols sequentially. onResult, when not
	// nil, is invoked as each symbol's result lands so callers can
	// render partial progress during a long batch.
	FetchQuotes(ctx context.Context, refs []models.SymbolRef, onResult func(symbol string, quote *models.Quote, err error)) map[string]QuoteResult
	SearchSymbols(ctx context.Context, query string) ([]models.SearchResult, error)
}

// LedgerStore is the append-only transaction ledger, isolated per user.
type LedgerStore interface {
	ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error)
	AppendTransaction(ctx context.Context, userID int64, tx models.Transaction) error
}

// BalanceStore holds each user's cash balance.
type BalanceStore interface {
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	SetBalance(ctx context.Context, userID int64, balance decimal.Decimal) error
}

// TradeStore combines both stores with the atomic commit the trade
// service needs: ledger append and balance update succeed or fail as
// one unit, append first.
type TradeStore interface {
	LedgerStore
	BalanceStore
	ExecuteTrade(ctx context.Context, userID int64, tx models.Transaction, newBalance decimal.Decimal) error
}

// PortfolioService produces priced portfolio snapshots.
type PortfolioService interface {
	GetPortfolio(ctx context.Context, userID int64) (*models.PortfolioSnapshot, error)
	InvalidateUserCache(userID int64)
}

// TradeRequest describes a buy or sell to execute. A zero UnitPrice
// asks the trade service to price the order at the current market
// quote.
type TradeRequest struct {
	Symbol      string          `json:"symbol"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// TradeService validates and records buys and sells.
type TradeService interface {
	ExecuteBuy(ctx context.Context, userID int64, req TradeRequest) (*models.Transaction, error)
	ExecuteSell(ctx context.Context, userID int64, req TradeRequest) (*models.Transaction, error)
}
