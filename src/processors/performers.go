package processors

import (
	"sort"

	"github.com/username/wombats/backend/src/models"
)

// PerformerRanking selects which metric orders the top-performer list.
type PerformerRanking string

const (
	RankByPnL        PerformerRanking = "pnl"
	RankByPnLPercent PerformerRanking = "percent"
)

// TopPerformers returns the n best holdings ranked by unrealized P&L,
// descending, either absolute or percentage. Unpriced holdings carry
// no P&L and are skipped. The input slice is not modified.
func TopPerformers(holdings []models.PricedHolding, n int, ranking PerformerRanking) []models.PricedHolding {
	if n <= 0 {
		return []models.PricedHolding{}
	}

	ranked := make([]models.PricedHolding, 0, len(holdings))
	for _, h := range holdings {
		switch ranking {
		case RankByPnLPercent:
			if h.UnrealizedPnLPercent != nil {
				ranked = append(ranked, h)
			}
		default:
			if h.UnrealizedPnL != nil {
				ranked = append(ranked, h)
			}
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranking == RankByPnLPercent {
			return ranked[i].UnrealizedPnLPercent.GreaterThan(*ranked[j].UnrealizedPnLPercent)
		}
		return ranked[i].UnrealizedPnL.GreaterThan(*ranked[j].UnrealizedPnL)
	})

	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// ParsePerformerRanking maps a query value to a ranking, defaulting to
// absolute P&L.
func ParsePerformerRanking(s string) PerformerRanking {
	if s == string(RankByPnLPercent) {
		return RankByPnLPercent
	}
	return RankByPnL
}
