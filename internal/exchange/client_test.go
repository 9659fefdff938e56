// internal/exchange/client_test.go
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient("test-key", "test-secret", zaptest.NewLogger(t), WithBaseURL(srv.URL))
	return client, srv
}

func TestTicker24h(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","lastPrice":"97000.50","priceChangePercent":"7.25"},
			{"symbol":"ETHUSDT","lastPrice":"3500.00","priceChangePercent":"3.10"},
			{"symbol":"BROKEN","lastPrice":"oops","priceChangePercent":"1.0"}
		]`))
	})

	tickers, err := client.Ticker24h(context.Background())
	require.NoError(t, err)
	require.Len(t, tickers, 2, "unparseable rows are skipped")

	assert.Equal(t, "BTCUSDT", tickers[0].Symbol)
	assert.Equal(t, 7.25, tickers[0].PriceChangePercent)
	assert.True(t, tickers[0].LastPrice.Equal(decimal.RequireFromString("97000.50")))
}

func TestTicker24hUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from now on

	client := NewClient("k", "s", zaptest.NewLogger(t), WithBaseURL(srv.URL))
	_, err := client.Ticker24h(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMarketDataUnavailable))
}

func TestPrice(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"3500.25"}`))
	})

	price, err := client.Price(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("3500.25")))
}

func TestGetRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"97000.00"}`))
	})

	price, err := client.Price(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, price.Equal(decimal.RequireFromString("97000.00")))
}

func TestAccountBalanceSignsRequest(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))

		q := r.URL.Query()
		sig := q.Get("signature")
		require.NotEmpty(t, sig)
		require.NotEmpty(t, q.Get("timestamp"))

		// Recompute the signature over the query minus the signature param.
		q.Del("signature")
		mac := hmac.New(sha256.New, []byte("test-secret"))
		mac.Write([]byte(q.Encode()))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)

		w.Write([]byte(`{"balances":[{"asset":"BTC","free":"0.5"},{"asset":"USDT","free":"812.75"}]}`))
	})

	balance, err := client.AccountBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("812.75")))
}

func TestSignedReadRetriesWithFreshSignature(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		// The retried request must carry a signature computed over its
		// own query, not one covering the first attempt's signature.
		q := r.URL.Query()
		sig := q.Get("signature")
		require.NotEmpty(t, sig)
		q.Del("signature")
		mac := hmac.New(sha256.New, []byte("test-secret"))
		mac.Write([]byte(q.Encode()))
		require.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)

		w.Write([]byte(`{"balances":[{"asset":"USDT","free":"812.75"}]}`))
	})

	balance, err := client.AccountBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, balance.Equal(decimal.RequireFromString("812.75")))
}

func TestAccountBalanceUnknownAssetIsZero(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balances":[]}`))
	})

	balance, err := client.AccountBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestPlaceMarketOrderBuy(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Equal(t, "200", q.Get("quoteOrderQty"))
		assert.Empty(t, q.Get("quantity"))

		w.Write([]byte(`{
			"symbol":"BTCUSDT","status":"FILLED",
			"executedQty":"0.00206185","cummulativeQuoteQty":"200.00",
			"fills":[{"price":"97000.00","qty":"0.00206185"}]
		}`))
	})

	result, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", SideBuy, decimal.NewFromInt(200), decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "FILLED", result.Status)
	assert.True(t, result.ExecutedQty.Equal(decimal.RequireFromString("0.00206185")))
	assert.True(t, result.CummulativeQuote.Equal(decimal.RequireFromString("200.00")))
	// avg = 200 / 0.00206185
	assert.True(t, result.AvgFillPrice.Sub(decimal.RequireFromString("97000")).Abs().LessThan(decimal.NewFromInt(1)))
}

func TestPlaceMarketOrderRejected(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	})

	_, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", SideBuy, decimal.NewFromInt(200), decimal.Zero)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, -2010, apiErr.Code)
	assert.Equal(t, 1, calls, "order submission must never be retried")
}
