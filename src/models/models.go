package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single immutable entry in an account's ledger.
// Quantity is positive for an acquisition and negative for a disposal.
type Transaction struct {
	ID          int64           `json:"id,omitempty"`
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// Holding is a symbol's current aggregate position, derived from the
// ledger on every aggregation call. CostBasis is the total amount paid
// for the currently held units under average-cost accounting.
type Holding struct {
	Symbol           string          `json:"symbol"`
	ProductName      string          `json:"product_name"`
	Quantity         int64           `json:"quantity"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	PositionOpenedAt time.Time       `json:"position_opened_at"`
}

// AverageCost returns CostBasis divided by Quantity. Zero when the
// position holds no units.
func (h Holding) AverageCost() decimal.Decimal {
	if h.Quantity <= 0 {
		return decimal.Zero
	}
	return h.CostBasis.Div(decimal.NewFromInt(h.Quantity))
}

// Quote is a point-in-time price/company snapshot from the quote
// provider. It is transient and never cached beyond the portfolio
// snapshot it was fetched for.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	DayHigh       decimal.Decimal `json:"day_high"`
	DayLow        decimal.Decimal `json:"day_low"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Currency      string          `json:"currency"`
	CompanyName   string          `json:"company_name"`
	Industry      string          `json:"industry,omitempty"`
	Exchange      string          `json:"exchange,omitempty"`
	MarketCap     float64         `json:"market_cap,omitempty"`
}

// PricedHolding joins a Holding with its current quote. The price
// dependent fields are nil when the quote fetch for the symbol failed;
// FetchErrorReason then carries the failure so the caller can render
// the position as unpriced instead of dropping it.
type PricedHolding struct {
	Holding
	CurrentPrice         *decimal.Decimal `json:"current_price,omitempty"`
	CurrentValue         *decimal.Decimal `json:"current_value,omitempty"`
	AvgCost              decimal.Decimal  `json:"average_cost"`
	UnrealizedPnL        *decimal.Decimal `json:"unrealized_pnl,omitempty"`
	UnrealizedPnLPercent *decimal.Decimal `json:"unrealized_pnl_percent,omitempty"`
	Quote                *Quote           `json:"quote,omitempty"`
	FetchErrorReason     string           `json:"fetch_error,omitempty"`
}

// Priced reports whether a current price was available for the holding.
func (p PricedHolding) Priced() bool { return p.CurrentPrice != nil }

// PortfolioSnapshot is the result of one full portfolio valuation.
// TotalValue sums CurrentValue over priced holdings only; unpriced
// holdings are listed but do not contribute.
type PortfolioSnapshot struct {
	Holdings    []PricedHolding `json:"holdings"`
	TotalValue  decimal.Decimal `json:"total_value"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Account holds the user's cash balance. Mutated only by the trade
// service; persisted externally.
type Account struct {
	UserID      int64           `json:"user_id"`
	CashBalance decimal.Decimal `json:"cash_balance"`
}

// SymbolRef names a symbol together with the display name the caller
// already knows, used as a fallback when the company profile lookup
// fails.
type SymbolRef struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name"`
}

// SearchResult is one entry from the provider's symbol lookup.
type SearchResult struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Type        string `json:"type"`
}
