// internal/exchange/quoter.go
package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// Quoter answers "what is this symbol worth right now". It prefers the
// streamed miniTicker cache and falls back to the REST price endpoint,
// feeding the answer back into the cache so both sources converge.
type Quoter struct {
	stream *PriceStream
	client *Client
}

// NewQuoter combines a price stream cache with a REST client.
func NewQuoter(stream *PriceStream, client *Client) *Quoter {
	return &Quoter{stream: stream, client: client}
}

// Price returns the latest known price for a symbol.
func (q *Quoter) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if q.stream != nil {
		if price, ok := q.stream.LastPrice(symbol); ok {
			return price, nil
		}
	}
	price, err := q.client.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if q.stream != nil {
		q.stream.Update(symbol, price)
	}
	return price, nil
}
