// backend/src/services/trade_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/wombats/backend/src/database"
	"github.com/username/wombats/backend/src/models"
	"github.com/username/wombats/backend/src/processors"
	"github.com/username/wombats/backend/src/storage"
)

// fakeQuoteService returns a fixed price, or a fixed error, for every
// symbol.
type fakeQuoteService struct {
	price decimal.Decimal
	err   error
}

func (f *fakeQuoteService) FetchQuote(ctx context.Context, ref models.SymbolRef) (*models.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Quote{Symbol: ref.Symbol, Price: f.price}, nil
}

func (f *fakeQuoteService) FetchQuotes(ctx context.Context, refs []models.SymbolRef, onResult func(symbol string, quote *models.Quote, err error)) map[string]QuoteResult {
	results := make(map[string]QuoteResult, len(refs))
	for _, ref := range refs {
		quote, err := f.FetchQuote(ctx, ref)
		results[ref.Symbol] = QuoteResult{Quote: quote, Err: err}
		if onResult != nil {
			onResult(ref.Symbol, quote, err)
		}
	}
	return results
}

func (f *fakeQuoteService) SearchSymbols(ctx context.Context, query string) ([]models.SearchResult, error) {
	return nil, f.err
}

// fakePortfolioService records cache invalidations.
type fakePortfolioService struct {
	invalidated []int64
}

func (f *fakePortfolioService) GetPortfolio(ctx context.Context, userID int64) (*models.PortfolioSnapshot, error) {
	return nil, nil
}

func (f *fakePortfolioService) InvalidateUserCache(userID int64) {
	f.invalidated = append(f.invalidated, userID)
}

type tradeFixture struct {
	store     *storage.Store
	portfolio *fakePortfolioService
	quotes    *fakeQuoteService
	service   TradeService
	userID    int64
}

func newTradeFixture(t *testing.T, startingBalance string) *tradeFixture {
	t.Helper()
	database.InitDB(":memory:")
	t.Cleanup(func() { database.DB.Close() })

	f := &tradeFixture{
		store:     storage.NewStore(database.DB),
		portfolio: &fakePortfolioService{},
		quotes:    &fakeQuoteService{price: decimal.NewFromInt(25)},
		userID:    1,
	}
	f.service = NewTradeService(f.store, f.quotes, processors.NewHoldingsProcessor(), f.portfolio)

	balance, err := decimal.NewFromString(startingBalance)
	if err != nil {
		t.Fatalf("bad starting balance %q: %v", startingBalance, err)
	}
	if err := f.store.CreateAccount(context.Background(), f.userID, balance); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	return f
}

func (f *tradeFixture) balance(t *testing.T) string {
	t.Helper()
	balance, err := f.store.GetBalance(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	return balance.String()
}

func (f *tradeFixture) ledgerLen(t *testing.T) int {
	t.Helper()
	txs, err := f.store.ListTransactions(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	return len(txs)
}

func TestExecuteBuyRejectsNonPositiveQuantity(t *testing.T) {
	f := newTradeFixture(t, "1000")
	for _, qty := range []int64{0, -3} {
		_, err := f.service.ExecuteBuy(context.Background(), f.userID, TradeRequest{
			Symbol: "AAPL", Quantity: qty, UnitPrice: decimal.NewFromInt(10),
		})
		if !errors.Is(err, models.ErrInvalidQuantity) {
			t.Errorf("quantity %d: got %v, want ErrInvalidQuantity", qty, err)
		}
	}
	if got := f.ledgerLen(t); got != 0 {
		t.Errorf("ledger has %d entries after rejected buys, want 0", got)
	}
}

func TestExecuteBuyInsufficientFundsLeavesStateUntouched(t *testing.T) {
	f := newTradeFixture(t, "100")
	_, err := f.service.ExecuteBuy(context.Background(), f.userID, TradeRequest{
		Symbol: "AAPL", Quantity: 2, UnitPrice: decimal.NewFromInt(60),
	})
	if !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	if got := f.balance(t); got != "100" {
		t.Errorf("balance = %s, want 100 unchanged", got)
	}
	if got := f.ledgerLen(t); got != 0 {
		t.Errorf("ledger has %d entries, want 0", got)
	}
	if len(f.portfolio.invalidated) != 0 {
		t.Errorf("cache invalidated on a failed trade")
	}
}

func TestExecuteBuyRecordsLedgerAndDebitsBalance(t *testing.T) {
	f := newTradeFixture(t, "1000")
	tx, err := f.service.ExecuteBuy(context.Background(), f.userID, TradeRequest{
		Symbol: " aapl ", ProductName: "Apple Inc", Quantity: 3, UnitPrice: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("ExecuteBuy failed: %v", err)
	}
	if tx.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want normalized AAPL", tx.Symbol)
	}
	if tx.Quantity != 3 {
		t.Errorf("Quantity = %d, want 3", tx.Quantity)
	}
	if got := tx.TotalCost.String(); got != "150" {
		t.Errorf("TotalCost = %s, want 150", got)
	}
	if tx.OrderID == "" {
		t.Error("OrderID not assigned")
	}
	if got := f.balance(t); got != "850" {
		t.Errorf("balance = %s, want 850", got)
	}
	if got := f.ledgerLen(t); got != 1 {
		t.Errorf("ledger has %d entries, want 1", got)
	}
	if len(f.portfolio.invalidated) != 1 || f.portfolio.invalidated[0] != f.userID {
		t.Errorf("snapshot cache not invalidated for user %d: %v", f.userID, f.portfolio.invalidated)
	}
}

func TestExecuteBuyFallsBackToMarketPrice(t *testing.T) {
	f := newTradeFixture(t, "1000")
	f.quotes.price = decimal.NewFromInt(25)
	tx, err := f.service.ExecuteBuy(context.Background(), f.userID, TradeRequest{
		Symbol: "VTI", Quantity: 2,
	})
	if err != nil {
		t.Fatalf("ExecuteBuy failed: %v", err)
	}
	if got := tx.UnitPrice.String(); got != "25" {
		t.Errorf("UnitPrice = %s, want the market quote 25", got)
	}
	if got := f.balance(t); got != "950" {
		t.Errorf("balance = %s, want 950", got)
	}
}

func TestExecuteBuyPropagatesQuoteFailure(t *testing.T) {
	f := newTradeFixture(t, "1000")
	f.quotes.err = &models.FetchError{Symbol: "VTI", Reason: "provider down"}
	_, err := f.service.ExecuteBuy(context.Background(), f.userID, TradeRequest{
		Symbol: "VTI", Quantity: 2,
	})
	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("got %T (%v), want *models.FetchError", err, err)
	}
	if got := f.ledgerLen(t); got != 0 {
		t.Errorf("ledger has %d entries after failed pricing, want 0", got)
	}
}

func TestExecuteSellRejectsOverSell(t *testing.T) {
	f := newTradeFixture(t, "1000")

	// Nothing held at all.
	_, err := f.service.ExecuteSell(context.Background(), f.userID, TradeRequest{
		Symbol: "AAPL", Quantity: 1, UnitPrice: decimal.NewFromInt(10),
	})
	if !errors.Is(err, models.ErrInsufficientHoldings) {
		t.Fatalf("sell with empty ledger: got %v, want ErrInsufficientHoldings", err)
	}

	if _, err := f.service.ExecuteBuy(context.Background(), f.userID, TradeRequest{
		Symbol: "AAPL", Quantity: 5, UnitPrice: decimal.NewFromInt(10),
	}); err != nil {
		t.Fatalf("ExecuteBuy failed: %v", err)
	}

	// Held 5, selling 6.
	_, err = f.service.ExecuteSell(context.Background(), f.userID, TradeRequest{
		Symbol: "AAPL", Quantity: 6, UnitPrice: decimal.NewFromInt(10),
	})
	if !errors.Is(err, models.ErrInsufficientHoldings) {
		t.Fatalf("over-sell: got %v, want ErrInsufficientHoldings", err)
	}
	if got := f.balance(t); got != "950" {
		t.Errorf("balance = %s, want 950 untouched by the rejected sell", got)
	}
	if got := f.ledgerLen(t); got != 1 {
		t.Errorf("ledger has %d entries, want only the buy", got)
	}
}

func TestBuyThenSellRoundTrip(t *testing.T) {
	f := newTradeFixture(t, "1000")
	if _, err := f.service.ExecuteBuy(context.Background(), f.userID, TradeRequest{
		Symbol: "AAPL", Quantity: 10, UnitPrice: decimal.NewFromInt(10),
	}); err != nil {
		t.Fatalf("ExecuteBuy failed: %v", err)
	}

	tx, err := f.service.ExecuteSell(context.Background(), f.userID, TradeRequest{
		Symbol: "aapl", Quantity: 4, UnitPrice: decimal.NewFromInt(15),
	})
	if err != nil {
		t.Fatalf("ExecuteSell failed: %v", err)
	}
	if tx.Quantity != -4 {
		t.Errorf("sell Quantity = %d, want -4 (negative in the ledger)", tx.Quantity)
	}
	if got := tx.TotalCost.String(); got != "60" {
		t.Errorf("sell proceeds = %s, want 60", got)
	}
	// 1000 - 100 + 60
	if got := f.balance(t); got != "960" {
		t.Errorf("balance = %s, want 960", got)
	}

	ledger, err := f.store.ListTransactions(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	holdings := processors.NewHoldingsProcessor().Aggregate(ledger)
	holding, ok := holdings["AAPL"]
	if !ok {
		t.Fatal("AAPL missing from holdings after partial sell")
	}
	if holding.Quantity != 6 {
		t.Errorf("held quantity = %d, want 6", holding.Quantity)
	}
	if got := holding.AverageCost().String(); got != "10" {
		t.Errorf("average cost = %s, want 10 unchanged by the sell", got)
	}
}
