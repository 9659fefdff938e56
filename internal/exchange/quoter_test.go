// internal/exchange/quoter_test.go
package exchange

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestQuoterPrefersStreamCache(t *testing.T) {
	var restCalls int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&restCalls, 1)
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"96000.00"}`))
	})

	stream := NewPriceStream("", zaptest.NewLogger(t))
	stream.Update("BTCUSDT", decimal.NewFromInt(97000))

	q := NewQuoter(stream, client)
	price, err := q.Price(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(97000)))
	assert.Zero(t, atomic.LoadInt64(&restCalls), "a cached symbol never hits REST")
}

func TestQuoterFallsBackToRESTAndPrimesCache(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"3500.25"}`))
	})

	stream := NewPriceStream("", zaptest.NewLogger(t))
	q := NewQuoter(stream, client)

	price, err := q.Price(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("3500.25")))

	cached, ok := stream.LastPrice("ETHUSDT")
	require.True(t, ok, "the REST answer is fed back into the cache")
	assert.True(t, cached.Equal(price))
}
