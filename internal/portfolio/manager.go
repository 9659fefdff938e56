// internal/portfolio/manager.go

// Package portfolio tracks the set of open positions for one trading
// session and classifies them against the configured sell triggers. The
// manager never issues orders; it only classifies and records, so the
// profit and loss policy stays testable without any network dependency.
package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Manager owns the symbol -> Position map. It is touched only from the
// trading loop's goroutine, so it carries no lock.
type Manager struct {
	maxOpen          int
	profitTriggerPct float64
	lossTriggerPct   float64
	positions        map[string]Position
	logger           *zap.Logger
}

// NewManager creates an empty portfolio with the given capacity and
// sell triggers. lossTriggerPct is expected to be negative.
func NewManager(maxOpen int, profitTriggerPct, lossTriggerPct float64, logger *zap.Logger) *Manager {
	return &Manager{
		maxOpen:          maxOpen,
		profitTriggerPct: profitTriggerPct,
		lossTriggerPct:   lossTriggerPct,
		positions:        make(map[string]Position),
		logger:           logger.Named("portfolio"),
	}
}

// Open returns a snapshot of the current holdings.
func (m *Manager) Open() []Position {
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Has reports whether a position is open for the symbol.
func (m *Manager) Has(symbol string) bool {
	_, ok := m.positions[symbol]
	return ok
}

// Symbols returns the symbols of all open positions.
func (m *Manager) Symbols() []string {
	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CapacityRemaining returns how many more positions may be opened.
// Never negative.
func (m *Manager) CapacityRemaining() int {
	remaining := m.maxOpen - len(m.positions)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// EvaluateSells classifies every open position against the sell
// triggers using the supplied current prices. A position is flagged
// when its PnL reaches the profit trigger or falls to the loss
// trigger. Positions whose symbol is missing from currentPrices are
// skipped this round. The result is ordered by ascending PnL so the
// worst losers are closed first when several triggers fire at once.
func (m *Manager) EvaluateSells(currentPrices map[string]decimal.Decimal) []SellCandidate {
	var flagged []SellCandidate
	for _, pos := range m.positions {
		price, ok := currentPrices[pos.Symbol]
		if !ok {
			m.logger.Warn("No current price for open position, skipping sell check",
				zap.String("symbol", pos.Symbol))
			continue
		}
		pnl := pos.PnLPercent(price)
		if pnl >= m.profitTriggerPct || pnl <= m.lossTriggerPct {
			flagged = append(flagged, SellCandidate{
				Position:   pos,
				Price:      price,
				PnLPercent: pnl,
			})
		}
	}

	sort.Slice(flagged, func(i, j int) bool {
		return flagged[i].PnLPercent < flagged[j].PnLPercent
	})
	return flagged
}

// RecordOpen registers a confirmed buy fill as an open position.
// Called only after the execution backend reports the fill.
func (m *Manager) RecordOpen(symbol string, quantity, entryPrice decimal.Decimal) {
	m.positions[symbol] = Position{
		Symbol:     symbol,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		OpenedAt:   time.Now(),
	}
	m.logger.Info("Position opened",
		zap.String("symbol", symbol),
		zap.String("quantity", quantity.String()),
		zap.String("entry_price", entryPrice.String()))
}

// RecordClose removes a position after a confirmed sell fill.
func (m *Manager) RecordClose(symbol string) {
	delete(m.positions, symbol)
	m.logger.Info("Position closed", zap.String("symbol", symbol))
}
