// internal/scanner/scanner.go

// Package scanner turns raw 24h exchange statistics into a ranked list
// of momentum buy candidates.
package scanner

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sagecry/sagebot/internal/exchange"
)

// Leveraged tokens mimic spot pairs but their 24h moves are amplified
// and unusable as a momentum signal. They are named by appending one
// of these markers to a spot-listed base (BTCUP, ETHBEAR), so a marker
// suffix alone is not enough: the remainder must itself be a listed
// base, which keeps symbols like JUPUSDT in play.
var leveragedMarkers = []string{"UP", "DOWN", "BULL", "BEAR"}

// Candidate is an ephemeral scan result, produced fresh each tick.
type Candidate struct {
	Symbol          string
	PercentChange24 float64
	LastPrice       decimal.Decimal
}

// TickerSource provides 24h statistics for all symbols.
type TickerSource interface {
	Ticker24h(ctx context.Context) ([]exchange.Ticker, error)
}

// HeldChecker reports whether a symbol already has an open position.
type HeldChecker interface {
	Has(symbol string) bool
}

// Scanner filters and ranks symbols into buy candidates.
type Scanner struct {
	source     TickerSource
	held       HeldChecker
	quoteAsset string
	limit      int
	logger     *zap.Logger
}

// New creates a Scanner that returns at most limit candidates paired
// against quoteAsset.
func New(source TickerSource, held HeldChecker, quoteAsset string, limit int, logger *zap.Logger) *Scanner {
	return &Scanner{
		source:     source,
		held:       held,
		quoteAsset: quoteAsset,
		limit:      limit,
		logger:     logger.Named("scanner"),
	}
}

// Scan returns the top gainers above minPercentChange, sorted by 24h
// change descending and capped at the scanner's limit. Already-held
// symbols, non-quote pairs and leveraged tokens are excluded. An empty
// result is not an error; only a failure to reach the exchange is.
func (s *Scanner) Scan(ctx context.Context, minPercentChange float64) ([]Candidate, error) {
	tickers, err := s.source.Ticker24h(ctx)
	if err != nil {
		return nil, err
	}

	bases := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		if strings.HasSuffix(t.Symbol, s.quoteAsset) {
			bases[strings.TrimSuffix(t.Symbol, s.quoteAsset)] = struct{}{}
		}
	}

	var candidates []Candidate
	for _, t := range tickers {
		if !s.eligible(t.Symbol, bases) {
			continue
		}
		if t.PriceChangePercent < minPercentChange {
			continue
		}
		candidates = append(candidates, Candidate{
			Symbol:          t.Symbol,
			PercentChange24: t.PriceChangePercent,
			LastPrice:       t.LastPrice,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].PercentChange24 > candidates[j].PercentChange24
	})

	if s.limit > 0 && len(candidates) > s.limit {
		candidates = candidates[:s.limit]
	}

	s.logger.Debug("Scan complete",
		zap.Float64("min_percent_change", minPercentChange),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// eligible applies the symbol-level filters: quote pairing, leveraged
// token exclusion and no pyramiding into held symbols.
func (s *Scanner) eligible(symbol string, bases map[string]struct{}) bool {
	if !strings.HasSuffix(symbol, s.quoteAsset) {
		return false
	}
	base := strings.TrimSuffix(symbol, s.quoteAsset)
	if base == "" {
		return false
	}
	for _, marker := range leveragedMarkers {
		root := strings.TrimSuffix(base, marker)
		if root == base || root == "" {
			continue
		}
		if _, listed := bases[root]; listed {
			return false
		}
	}
	if s.held != nil && s.held.Has(symbol) {
		return false
	}
	return true
}
