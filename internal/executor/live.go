// internal/executor/live.go
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sagecry/sagebot/internal/exchange"
)

// Binance rejection code for an account balance short of the order.
const codeInsufficientBalance = -2010

// OrderAPI is the slice of the exchange client the live backend needs.
type OrderAPI interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side exchange.Side, quoteAmount, quantity decimal.Decimal) (*exchange.OrderResult, error)
	AccountBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Live places real market orders. Fills are recorded exactly as the
// exchange reports them: a partial fill yields the partial quantity,
// not the requested amount. Order submission is never retried; only
// the balance read behind WalletBalance carries retries.
type Live struct {
	api        OrderAPI
	quoteAsset string
	logger     *zap.Logger
}

// NewLive creates a live backend trading against the given quote asset.
func NewLive(api OrderAPI, quoteAsset string, logger *zap.Logger) *Live {
	return &Live{
		api:        api,
		quoteAsset: quoteAsset,
		logger:     logger.Named("live_executor"),
	}
}

// Buy places a market buy spending quoteAmount of the quote asset.
func (l *Live) Buy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (*Fill, error) {
	result, err := l.api.PlaceMarketOrder(ctx, symbol, exchange.SideBuy, quoteAmount, decimal.Zero)
	if err != nil {
		return nil, classifyOrderError(err)
	}
	return l.fillFrom(result)
}

// Sell places a market sell for quantity of the base asset.
func (l *Live) Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (*Fill, error) {
	result, err := l.api.PlaceMarketOrder(ctx, symbol, exchange.SideSell, decimal.Zero, quantity)
	if err != nil {
		return nil, classifyOrderError(err)
	}
	return l.fillFrom(result)
}

// WalletBalance reads the free quote-asset balance from the account.
func (l *Live) WalletBalance(ctx context.Context) (decimal.Decimal, error) {
	return l.api.AccountBalance(ctx, l.quoteAsset)
}

func (l *Live) fillFrom(result *exchange.OrderResult) (*Fill, error) {
	if !result.ExecutedQty.IsPositive() {
		return nil, fmt.Errorf("%w: %s order for %s reported status %s with no executed quantity",
			ErrOrderRejected, result.Side, result.Symbol, result.Status)
	}

	if result.Status != "FILLED" {
		l.logger.Warn("Order partially filled, recording executed quantity",
			zap.String("symbol", result.Symbol),
			zap.String("status", result.Status),
			zap.String("executed_qty", result.ExecutedQty.String()))
	}

	return &Fill{
		Symbol:   result.Symbol,
		Side:     result.Side,
		Quantity: result.ExecutedQty,
		Price:    result.AvgFillPrice,
		Quote:    result.CummulativeQuote,
	}, nil
}

// classifyOrderError maps an exchange failure onto the backend's error
// taxonomy. A balance shortfall is a business condition; everything
// else on the order path is a rejection and is never retried.
func classifyOrderError(err error) error {
	var apiErr *exchange.APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeInsufficientBalance {
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, apiErr.Message)
	}
	return fmt.Errorf("%w: %s", ErrOrderRejected, err)
}
