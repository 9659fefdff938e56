// internal/portfolio/position.go
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one open holding. Created after a confirmed buy fill,
// removed (never zeroed) after a confirmed sell fill.
type Position struct {
	Symbol     string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	OpenedAt   time.Time
}

// PnLPercent returns the profit or loss of the position at the given
// current price, in percent of the entry price.
func (p Position) PnLPercent(currentPrice decimal.Decimal) float64 {
	if p.EntryPrice.IsZero() {
		return 0
	}
	pct, _ := currentPrice.Sub(p.EntryPrice).
		Div(p.EntryPrice).
		Mul(decimal.NewFromInt(100)).
		Float64()
	return pct
}

// SellCandidate pairs a position with the price and PnL that flagged it.
type SellCandidate struct {
	Position   Position
	Price      decimal.Decimal
	PnLPercent float64
}
