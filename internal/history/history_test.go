// internal/history/history_test.go
package history

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sagecry/sagebot/internal/events"
)

func fillEvent(symbol, side string, qty, price, pnl int64) events.OrderFilledEvent {
	return events.OrderFilledEvent{
		BaseEvent: events.NewBase(events.OrderFilled, events.LevelInfo, "fill"),
		Symbol:    symbol,
		Side:      side,
		Quantity:  decimal.NewFromInt(qty),
		Price:     decimal.NewFromInt(price),
		PnL:       decimal.NewFromInt(pnl),
	}
}

func TestRecorderCollectsFillsInOrder(t *testing.T) {
	r := NewRecorder(zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, fillEvent("BTCUSDT", "BUY", 1, 97000, 0)))
	require.NoError(t, r.Handle(ctx, fillEvent("BTCUSDT", "SELL", 1, 99000, 2000)))

	trades := r.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "BUY", trades[0].Side)
	assert.Equal(t, "SELL", trades[1].Side)
	assert.True(t, trades[1].PnL.Equal(decimal.NewFromInt(2000)))
}

func TestExportCSV(t *testing.T) {
	r := NewRecorder(zaptest.NewLogger(t))
	require.NoError(t, r.Handle(context.Background(), fillEvent("ETHUSDT", "BUY", 2, 3500, 0)))

	path, err := r.Export(t.TempDir(), FormatCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".csv"))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"timestamp", "symbol", "side", "quantity", "price", "pnl"}, rows[0])
	assert.Equal(t, "ETHUSDT", rows[1][1])
	assert.Equal(t, "BUY", rows[1][2])

	_, err = time.Parse(time.RFC3339, rows[1][0])
	assert.NoError(t, err)
}

func TestExportJSON(t *testing.T) {
	r := NewRecorder(zaptest.NewLogger(t))
	require.NoError(t, r.Handle(context.Background(), fillEvent("SOLUSDT", "SELL", 3, 150, 30)))

	path, err := r.Export(t.TempDir(), FormatJSON)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var trades []Trade
	require.NoError(t, json.Unmarshal(data, &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "SOLUSDT", trades[0].Symbol)
	assert.True(t, trades[0].PnL.Equal(decimal.NewFromInt(30)))
}

func TestExportEmptySessionFails(t *testing.T) {
	r := NewRecorder(zaptest.NewLogger(t))
	_, err := r.Export(t.TempDir(), FormatCSV)
	require.Error(t, err)
}

func TestHandleRejectsForeignEvents(t *testing.T) {
	r := NewRecorder(zaptest.NewLogger(t))
	err := r.Handle(context.Background(), events.TickCompletedEvent{
		BaseEvent: events.NewBase(events.TickCompleted, events.LevelInfo, "tick"),
	})
	require.Error(t, err)
	assert.Empty(t, r.Trades())
}
