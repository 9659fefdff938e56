// internal/exchange/types.go
package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrMarketDataUnavailable is returned when the exchange cannot be reached
// for market data after bounded retries. It is transient: the caller skips
// the affected step and tries again next tick.
var ErrMarketDataUnavailable = errors.New("market data unavailable")

// Side is an order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Ticker is one row of the 24h statistics endpoint.
type Ticker struct {
	Symbol             string
	LastPrice          decimal.Decimal
	PriceChangePercent float64
}

// OrderResult is the exchange's confirmation of a market order. Executed
// quantity and quote volume come from the exchange verbatim; a partial fill
// is reported as-is.
type OrderResult struct {
	Symbol           string
	Side             Side
	ExecutedQty      decimal.Decimal
	CummulativeQuote decimal.Decimal
	AvgFillPrice     decimal.Decimal
	Status           string
}

// APIError is a structured error response from the exchange.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error %d: %s", e.Code, e.Message)
}
