// internal/history/history.go

// Package history records the session's confirmed fills and writes
// them out as a CSV or JSON report when the session ends. The record
// lives in memory only; nothing here survives a restart.
package history

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sagecry/sagebot/internal/events"
)

// Format of the exported report.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Trade is one confirmed fill.
type Trade struct {
	Timestamp time.Time       `json:"timestamp"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	PnL       decimal.Decimal `json:"pnl"`
}

// Recorder accumulates trades from the event bus. Handle runs on the
// bus dispatcher goroutine while Export runs on the session's, so the
// slice is guarded.
type Recorder struct {
	mu     sync.Mutex
	trades []Trade
	logger *zap.Logger
}

// NewRecorder creates an empty trade recorder.
func NewRecorder(logger *zap.Logger) *Recorder {
	return &Recorder{logger: logger.Named("history")}
}

// Attach subscribes the recorder to order fills on the bus.
func (r *Recorder) Attach(bus *events.Bus) events.Subscription {
	return bus.Subscribe(events.OrderFilled, r)
}

// Handle records one fill event.
func (r *Recorder) Handle(_ context.Context, event events.Event) error {
	fill, ok := event.(events.OrderFilledEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T on %s", event, event.Type())
	}

	r.mu.Lock()
	r.trades = append(r.trades, Trade{
		Timestamp: fill.Timestamp(),
		Symbol:    fill.Symbol,
		Side:      fill.Side,
		Quantity:  fill.Quantity,
		Price:     fill.Price,
		PnL:       fill.PnL,
	})
	r.mu.Unlock()
	return nil
}

// Trades returns a snapshot of the recorded fills in emission order.
func (r *Recorder) Trades() []Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Trade, len(r.trades))
	copy(out, r.trades)
	return out
}

// Export writes the session's trades to outputDir and returns the file
// path. Exporting an empty session is an error so callers can skip the
// report instead of writing a header-only file.
func (r *Recorder) Export(outputDir string, format Format) (string, error) {
	trades := r.Trades()
	if len(trades) == 0 {
		return "", fmt.Errorf("no trades recorded this session")
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	filename := fmt.Sprintf("trades_%s.%s", time.Now().Format("20060102_150405"), format)
	outputPath := filepath.Join(outputDir, filename)

	var err error
	switch format {
	case FormatCSV:
		err = writeCSV(trades, outputPath)
	case FormatJSON:
		err = writeJSON(trades, outputPath)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return "", err
	}

	r.logger.Info("Trade history exported",
		zap.String("file", outputPath),
		zap.Int("trades", len(trades)))
	return outputPath, nil
}

func writeCSV(trades []Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "symbol", "side", "quantity", "price", "pnl"}); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.Timestamp.Format(time.RFC3339),
			t.Symbol,
			t.Side,
			t.Quantity.String(),
			t.Price.String(),
			t.PnL.String(),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeJSON(trades []Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create JSON file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(trades)
}
