// internal/exchange/stream.go
package exchange

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultStreamURL = "wss://stream.binance.com:9443/ws/!miniTicker@arr"

// PriceStream consumes the exchange's all-market miniTicker stream and keeps
// the last seen price per symbol. It is a read-through cache: consumers fall
// back to the REST price endpoint when a symbol has not been seen yet, and
// fills are always priced from the order confirmation, never from here.
type PriceStream struct {
	url    string
	logger *zap.Logger

	mu     sync.RWMutex
	prices map[string]decimal.Decimal

	readTimeout    time.Duration
	reconnectDelay time.Duration
}

// NewPriceStream creates a stream cache. An empty url selects the production
// endpoint.
func NewPriceStream(url string, logger *zap.Logger) *PriceStream {
	if url == "" {
		url = defaultStreamURL
	}
	return &PriceStream{
		url:            url,
		logger:         logger.Named("price_stream"),
		prices:         make(map[string]decimal.Decimal),
		readTimeout:    60 * time.Second,
		reconnectDelay: 5 * time.Second,
	}
}

// Start runs the consume/reconnect loop until the context is cancelled.
func (ps *PriceStream) Start(ctx context.Context) {
	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if err := ps.consume(ctx); err != nil && ctx.Err() == nil {
				ps.logger.Warn("Price stream disconnected, reconnecting",
					zap.Error(err),
					zap.Duration("delay", ps.reconnectDelay))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(ps.reconnectDelay):
			}
		}
	}()
}

// LastPrice returns the most recent streamed price for a symbol.
func (ps *PriceStream) LastPrice(symbol string) (decimal.Decimal, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	price, ok := ps.prices[symbol]
	return price, ok
}

// Update records a price observation. The REST path uses this so both
// sources converge on one cache.
func (ps *PriceStream) Update(symbol string, price decimal.Decimal) {
	ps.mu.Lock()
	ps.prices[symbol] = price
	ps.mu.Unlock()
}

func (ps *PriceStream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ps.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ps.logger.Info("Price stream connected")

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ps.readTimeout))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(ps.readTimeout)); err != nil {
			return err
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ps.apply(message)
	}
}

// apply parses a miniTicker array frame and updates the cache.
func (ps *PriceStream) apply(raw []byte) {
	var frame []struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Close  string `json:"c"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, t := range frame {
		if t.Event != "24hrMiniTicker" || t.Symbol == "" {
			continue
		}
		if price, err := decimal.NewFromString(t.Close); err == nil {
			ps.prices[t.Symbol] = price
		}
	}
}
