// internal/portfolio/manager_test.go
package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T, maxOpen int, profit, loss float64) *Manager {
	t.Helper()
	return NewManager(maxOpen, profit, loss, zaptest.NewLogger(t))
}

func TestRecordOpenAndClose(t *testing.T) {
	m := newTestManager(t, 5, 3.0, -3.0)

	m.RecordOpen("BTCUSDT", decimal.RequireFromString("0.002"), decimal.NewFromInt(97000))
	require.True(t, m.Has("BTCUSDT"))
	require.Len(t, m.Open(), 1)

	m.RecordClose("BTCUSDT")
	assert.False(t, m.Has("BTCUSDT"))
	assert.Empty(t, m.Open(), "closed symbol must be absent from the holdings")
}

func TestCapacityInvariant(t *testing.T) {
	m := newTestManager(t, 3, 3.0, -3.0)

	check := func() {
		assert.Equal(t, 3, m.CapacityRemaining()+len(m.Open()))
	}

	check()
	m.RecordOpen("AUSDT", decimal.NewFromInt(1), decimal.NewFromInt(10))
	check()
	m.RecordOpen("BUSDT", decimal.NewFromInt(1), decimal.NewFromInt(10))
	check()
	m.RecordOpen("CUSDT", decimal.NewFromInt(1), decimal.NewFromInt(10))
	check()
	assert.Equal(t, 0, m.CapacityRemaining())

	m.RecordClose("BUSDT")
	check()
	assert.Equal(t, 1, m.CapacityRemaining())
}

func TestEvaluateSellsTriggers(t *testing.T) {
	m := newTestManager(t, 5, 10.0, -5.0)
	m.RecordOpen("SYMUSDT", decimal.NewFromInt(1), decimal.NewFromInt(100))

	// +12% crosses the profit trigger.
	flagged := m.EvaluateSells(map[string]decimal.Decimal{
		"SYMUSDT": decimal.NewFromInt(112),
	})
	require.Len(t, flagged, 1)
	assert.Equal(t, "SYMUSDT", flagged[0].Position.Symbol)
	assert.InDelta(t, 12.0, flagged[0].PnLPercent, 1e-9)

	// -3% sits between both thresholds.
	flagged = m.EvaluateSells(map[string]decimal.Decimal{
		"SYMUSDT": decimal.NewFromInt(97),
	})
	assert.Empty(t, flagged)

	// -5% exactly reaches the loss trigger.
	flagged = m.EvaluateSells(map[string]decimal.Decimal{
		"SYMUSDT": decimal.NewFromInt(95),
	})
	assert.Len(t, flagged, 1)
}

func TestEvaluateSellsWorstLosersFirst(t *testing.T) {
	m := newTestManager(t, 5, 3.0, -3.0)
	m.RecordOpen("WINUSDT", decimal.NewFromInt(1), decimal.NewFromInt(100))
	m.RecordOpen("LOSEUSDT", decimal.NewFromInt(1), decimal.NewFromInt(100))
	m.RecordOpen("WORSTUSDT", decimal.NewFromInt(1), decimal.NewFromInt(100))

	flagged := m.EvaluateSells(map[string]decimal.Decimal{
		"WINUSDT":   decimal.NewFromInt(105), // +5%
		"LOSEUSDT":  decimal.NewFromInt(96),  // -4%
		"WORSTUSDT": decimal.NewFromInt(90),  // -10%
	})

	require.Len(t, flagged, 3)
	assert.Equal(t, "WORSTUSDT", flagged[0].Position.Symbol)
	assert.Equal(t, "LOSEUSDT", flagged[1].Position.Symbol)
	assert.Equal(t, "WINUSDT", flagged[2].Position.Symbol)
}

func TestEvaluateSellsSkipsMissingPrices(t *testing.T) {
	m := newTestManager(t, 5, 3.0, -3.0)
	m.RecordOpen("AUSDT", decimal.NewFromInt(1), decimal.NewFromInt(100))
	m.RecordOpen("BUSDT", decimal.NewFromInt(1), decimal.NewFromInt(100))

	flagged := m.EvaluateSells(map[string]decimal.Decimal{
		"AUSDT": decimal.NewFromInt(110), // +10%, triggers
		// BUSDT has no price this round
	})

	require.Len(t, flagged, 1)
	assert.Equal(t, "AUSDT", flagged[0].Position.Symbol)
	assert.True(t, m.Has("BUSDT"), "skipped position stays open")
}

func TestPnLPercent(t *testing.T) {
	p := Position{EntryPrice: decimal.NewFromInt(100)}
	assert.InDelta(t, 12.0, p.PnLPercent(decimal.NewFromInt(112)), 1e-9)
	assert.InDelta(t, -3.0, p.PnLPercent(decimal.NewFromInt(97)), 1e-9)

	zero := Position{EntryPrice: decimal.Zero}
	assert.Zero(t, zero.PnLPercent(decimal.NewFromInt(5)))
}
