package processors

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/username/wombats/backend/src/models"
)

// HoldingsProcessor replays an account's transaction ledger into the
// current set of open positions using average-cost accounting: the
// cost basis removed by a partial sale is always the running average
// cost of the held units, never the price of a specific lot. This is a
// deliberate accounting choice, not FIFO lot matching.
type HoldingsProcessor struct{}

func NewHoldingsProcessor() *HoldingsProcessor {
	return &HoldingsProcessor{}
}

// Aggregate folds the ledger into a holding per symbol. The input is
// left untouched; transactions are replayed in timestamp order, with
// the original recording order preserved on equal timestamps. Symbols
// whose held quantity ends at zero or below are dropped from the
// result. Aggregate is a pure function: identical input always yields
// identical output.
func (p *HoldingsProcessor) Aggregate(transactions []models.Transaction) map[string]models.Holding {
	sorted := make([]models.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExecutedAt.Before(sorted[j].ExecutedAt)
	})

	running := make(map[string]*models.Holding)
	for _, tx := range sorted {
		if tx.Quantity == 0 {
			continue
		}

		h, ok := running[tx.Symbol]
		if !ok {
			h = &models.Holding{Symbol: tx.Symbol}
			running[tx.Symbol] = h
		}
		if tx.ProductName != "" {
			h.ProductName = tx.ProductName
		}

		if tx.Quantity > 0 {
			// A buy into a fully liquidated position opens a fresh lot:
			// the closed lot's accounting does not carry over.
			if h.Quantity == 0 {
				h.CostBasis = decimal.Zero
				h.PositionOpenedAt = tx.ExecutedAt
			}
			h.CostBasis = h.CostBasis.Add(decimal.NewFromInt(tx.Quantity).Mul(tx.UnitPrice))
			h.Quantity += tx.Quantity
			continue
		}

		// Disposal: remove a proportional slice of the cost basis at the
		// running average cost. An over-sized disposal is accepted here
		// as-is; rejecting over-sells is the trade service's job.
		avgCost := decimal.Zero
		if h.Quantity > 0 {
			avgCost = h.CostBasis.Div(decimal.NewFromInt(h.Quantity))
		}
		h.CostBasis = h.CostBasis.Sub(decimal.NewFromInt(-tx.Quantity).Mul(avgCost))
		if h.CostBasis.IsNegative() {
			h.CostBasis = decimal.Zero
		}
		h.Quantity += tx.Quantity
	}

	holdings := make(map[string]models.Holding, len(running))
	for symbol, h := range running {
		if h.Quantity > 0 {
			holdings[symbol] = *h
		}
	}
	return holdings
}
