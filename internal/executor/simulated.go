// internal/executor/simulated.go
package executor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sagecry/sagebot/internal/exchange"
)

// Simulated executes orders against a virtual wallet using real market
// prices. No slippage is modeled: a fill happens at the latest known
// price. The wallet can never go negative; a buy that would overdraw
// it fails with ErrInsufficientFunds before any state changes.
type Simulated struct {
	pricer Pricer
	wallet decimal.Decimal
	logger *zap.Logger
}

// NewSimulated creates a simulated backend with the given starting
// wallet balance.
func NewSimulated(initialWallet decimal.Decimal, pricer Pricer, logger *zap.Logger) *Simulated {
	return &Simulated{
		pricer: pricer,
		wallet: initialWallet,
		logger: logger.Named("sim_executor"),
	}
}

// Buy converts quoteAmount of virtual cash into symbol at the current
// market price.
func (s *Simulated) Buy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (*Fill, error) {
	if quoteAmount.GreaterThan(s.wallet) {
		return nil, fmt.Errorf("%w: need %s, have %s",
			ErrInsufficientFunds, quoteAmount.String(), s.wallet.String())
	}

	price, err := s.pricer.Price(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", symbol, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive price for %s", ErrOrderRejected, symbol)
	}

	quantity := quoteAmount.Div(price)
	s.wallet = s.wallet.Sub(quoteAmount)

	s.logger.Debug("Simulated buy filled",
		zap.String("symbol", symbol),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()),
		zap.String("wallet", s.wallet.String()))

	return &Fill{
		Symbol:   symbol,
		Side:     exchange.SideBuy,
		Quantity: quantity,
		Price:    price,
		Quote:    quoteAmount,
	}, nil
}

// Sell converts quantity of symbol back into virtual cash at the
// current market price.
func (s *Simulated) Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (*Fill, error) {
	price, err := s.pricer.Price(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", symbol, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive price for %s", ErrOrderRejected, symbol)
	}

	proceeds := quantity.Mul(price)
	s.wallet = s.wallet.Add(proceeds)

	s.logger.Debug("Simulated sell filled",
		zap.String("symbol", symbol),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()),
		zap.String("wallet", s.wallet.String()))

	return &Fill{
		Symbol:   symbol,
		Side:     exchange.SideSell,
		Quantity: quantity,
		Price:    price,
		Quote:    proceeds,
	}, nil
}

// WalletBalance returns the virtual balance. Never fails.
func (s *Simulated) WalletBalance(ctx context.Context) (decimal.Decimal, error) {
	return s.wallet, nil
}
