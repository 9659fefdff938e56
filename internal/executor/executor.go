// internal/executor/executor.go

// Package executor abstracts order execution behind one interface with
// two variants: a simulated backend that mutates a virtual wallet, and
// a live backend that places real market orders. The variant is picked
// once at session start and never changes for the session's lifetime.
package executor

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/sagecry/sagebot/internal/exchange"
)

var (
	// ErrInsufficientFunds means the wallet cannot cover the requested
	// buy. Expected business condition: log, skip further buys this tick.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOrderRejected means the exchange refused the order. The caller
	// leaves state unchanged and must not retry automatically.
	ErrOrderRejected = errors.New("order rejected")
)

// Fill is the confirmed result of an order: the quantity and price
// actually transacted, which for live orders may differ from what was
// requested.
type Fill struct {
	Symbol   string
	Side     exchange.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Quote    decimal.Decimal // cost on a buy, proceeds on a sell
}

// Backend executes orders and reports the wallet balance.
type Backend interface {
	// Buy spends quoteAmount of the quote asset on symbol at market.
	Buy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (*Fill, error)
	// Sell disposes of quantity of the base asset at market.
	Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (*Fill, error)
	// WalletBalance returns the available quote-asset balance.
	WalletBalance(ctx context.Context) (decimal.Decimal, error)
}

// Pricer provides the latest known market price for a symbol.
type Pricer interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}
