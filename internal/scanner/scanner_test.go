// internal/scanner/scanner_test.go
package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sagecry/sagebot/internal/exchange"
)

type stubSource struct {
	tickers []exchange.Ticker
	err     error
}

func (s *stubSource) Ticker24h(context.Context) ([]exchange.Ticker, error) {
	return s.tickers, s.err
}

type stubHeld map[string]bool

func (h stubHeld) Has(symbol string) bool { return h[symbol] }

func ticker(symbol string, pct float64, price int64) exchange.Ticker {
	return exchange.Ticker{
		Symbol:             symbol,
		LastPrice:          decimal.NewFromInt(price),
		PriceChangePercent: pct,
	}
}

func TestScanRanksAndFilters(t *testing.T) {
	source := &stubSource{tickers: []exchange.Ticker{
		ticker("BTCUSDT", 7.0, 97000),
		ticker("ETHUSDT", 3.0, 3500),   // below trigger
		ticker("SOLUSDT", 12.0, 150),   // top gainer
		ticker("DOGEUSDT", 9.0, 1),
		ticker("ETHBTC", 15.0, 1),      // wrong quote asset
		ticker("ADAUSDT", 2.0, 1),
		ticker("BTCUPUSDT", 20.0, 10),  // leveraged token
		ticker("ADADOWNUSDT", 18.0, 2), // leveraged token
	}}
	s := New(source, stubHeld{}, "USDT", 5, zaptest.NewLogger(t))

	candidates, err := s.Scan(context.Background(), 5.0)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, "SOLUSDT", candidates[0].Symbol)
	assert.Equal(t, "DOGEUSDT", candidates[1].Symbol)
	assert.Equal(t, "BTCUSDT", candidates[2].Symbol)
}

func TestScanExcludesHeldSymbols(t *testing.T) {
	source := &stubSource{tickers: []exchange.Ticker{
		ticker("BTCUSDT", 7.0, 97000),
		ticker("SOLUSDT", 12.0, 150),
	}}
	s := New(source, stubHeld{"SOLUSDT": true}, "USDT", 5, zaptest.NewLogger(t))

	candidates, err := s.Scan(context.Background(), 5.0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "BTCUSDT", candidates[0].Symbol)
}

func TestScanKeepsBasesEndingInLeveragedMarker(t *testing.T) {
	source := &stubSource{tickers: []exchange.Ticker{
		ticker("BTCUSDT", 1.0, 97000),
		ticker("JUPUSDT", 9.0, 1),     // base happens to end in UP
		ticker("SYRUPUSDT", 8.0, 1),   // base happens to end in UP
		ticker("BTCUPUSDT", 20.0, 10), // BTC is listed, so this is leveraged
	}}
	s := New(source, stubHeld{}, "USDT", 5, zaptest.NewLogger(t))

	candidates, err := s.Scan(context.Background(), 5.0)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "JUPUSDT", candidates[0].Symbol)
	assert.Equal(t, "SYRUPUSDT", candidates[1].Symbol)
}

func TestScanCapsAtLimit(t *testing.T) {
	source := &stubSource{tickers: []exchange.Ticker{
		ticker("AUSDT", 6, 1),
		ticker("BUSDT", 7, 1),
		ticker("CUSDT", 8, 1),
		ticker("DUSDT", 9, 1),
	}}
	s := New(source, stubHeld{}, "USDT", 2, zaptest.NewLogger(t))

	candidates, err := s.Scan(context.Background(), 5.0)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "DUSDT", candidates[0].Symbol)
	assert.Equal(t, "CUSDT", candidates[1].Symbol)
}

func TestScanEmptyIsNotAnError(t *testing.T) {
	source := &stubSource{tickers: []exchange.Ticker{
		ticker("BTCUSDT", 1.0, 97000),
	}}
	s := New(source, stubHeld{}, "USDT", 5, zaptest.NewLogger(t))

	candidates, err := s.Scan(context.Background(), 5.0)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestScanPropagatesGatewayFailure(t *testing.T) {
	source := &stubSource{err: exchange.ErrMarketDataUnavailable}
	s := New(source, stubHeld{}, "USDT", 5, zaptest.NewLogger(t))

	_, err := s.Scan(context.Background(), 5.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exchange.ErrMarketDataUnavailable))
}
