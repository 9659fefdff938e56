// internal/bot/tick.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sagecry/sagebot/internal/events"
	"github.com/sagecry/sagebot/internal/executor"
	"github.com/sagecry/sagebot/internal/portfolio"
)

// fetchOpenPrices pulls current prices for every open-position symbol
// in parallel. A gateway failure skips sell evaluation for this tick
// only: one event, loop continues.
func (e *Engine) fetchOpenPrices(ctx context.Context, logger *zap.Logger) (map[string]decimal.Decimal, bool) {
	symbols := e.portfolio.Symbols()
	prices := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return prices, true
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, e.cfg.CallTimeout)
			defer cancel()
			price, err := e.pricer.Price(callCtx, symbol)
			if err != nil {
				return fmt.Errorf("price %s: %w", symbol, err)
			}
			mu.Lock()
			prices[symbol] = price
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn("Price fetch failed, skipping sell evaluation this tick", zap.Error(err))
		e.emitMarketUnavailable("price fetch", err)
		return prices, false
	}
	return prices, true
}

// evaluateAndSell closes every position flagged by the sell triggers,
// worst losers first. A rejected sell leaves the position open for
// re-evaluation next tick.
func (e *Engine) evaluateAndSell(ctx context.Context, prices map[string]decimal.Decimal, logger *zap.Logger) {
	for _, candidate := range e.portfolio.EvaluateSells(prices) {
		if e.stopRequested() {
			return
		}

		pos := candidate.Position
		logger.Info("Sell trigger fired",
			zap.String("symbol", pos.Symbol),
			zap.Float64("pnl_percent", candidate.PnLPercent))

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		fill, err := e.backend.Sell(callCtx, pos.Symbol, pos.Quantity)
		cancel()
		if err != nil {
			e.handleSellError(pos, err, logger)
			continue
		}

		e.portfolio.RecordClose(pos.Symbol)
		e.collector.OrderFilled(string(fill.Side))

		realized := fill.Quote.Sub(pos.Quantity.Mul(pos.EntryPrice))
		filled := events.OrderFilledEvent{
			BaseEvent: events.NewBase(events.OrderFilled, events.LevelInfo,
				fmt.Sprintf("Sold %s %s at %s, realized PnL %s USDT",
					fill.Quantity.String(), pos.Symbol, fill.Price.String(), realized.StringFixed(2))),
			Symbol:   pos.Symbol,
			Side:     string(fill.Side),
			Quantity: fill.Quantity,
			Price:    fill.Price,
			PnL:      realized,
		}
		_ = e.bus.Publish(filled)
	}
}

func (e *Engine) handleSellError(pos portfolio.Position, err error, logger *zap.Logger) {
	if errors.Is(err, executor.ErrOrderRejected) {
		e.collector.OrderRejected("SELL")
		logger.Warn("Sell rejected, position stays open",
			zap.String("symbol", pos.Symbol), zap.Error(err))
		rejected := events.OrderRejectedEvent{
			BaseEvent: events.NewBase(events.OrderRejected, events.LevelWarn,
				fmt.Sprintf("Sell of %s rejected: %s", pos.Symbol, err)),
			Symbol: pos.Symbol,
			Side:   "SELL",
			Reason: err.Error(),
		}
		_ = e.bus.Publish(rejected)
		return
	}
	logger.Warn("Sell failed", zap.String("symbol", pos.Symbol), zap.Error(err))
	e.emitMarketUnavailable("sell "+pos.Symbol, err)
}

// scanAndBuy fills remaining capacity with the top scan candidates.
// An exhausted wallet stops further buys this tick; a single rejected
// candidate does not. Each fill price is recorded into prices so the
// end-of-tick snapshot can value positions opened this tick.
func (e *Engine) scanAndBuy(ctx context.Context, prices map[string]decimal.Decimal, logger *zap.Logger) {
	capacity := e.portfolio.CapacityRemaining()
	if capacity == 0 {
		logger.Debug("Portfolio at capacity, skipping scan")
		return
	}

	scanCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	candidates, err := e.scanner.Scan(scanCtx, e.cfg.BuyTriggerPercent)
	cancel()
	if err != nil {
		logger.Warn("Scan failed, skipping buys this tick", zap.Error(err))
		e.emitMarketUnavailable("scan", err)
		return
	}
	if len(candidates) == 0 {
		logger.Debug("No candidates cleared the buy trigger")
		return
	}

	symbols := make([]string, len(candidates))
	for i, c := range candidates {
		symbols[i] = c.Symbol
	}
	scanned := events.ScanResultEvent{
		BaseEvent: events.NewBase(events.ScanResult, events.LevelInfo,
			fmt.Sprintf("Scan found %d candidates: %v", len(candidates), symbols)),
		Symbols: symbols,
	}
	_ = e.bus.Publish(scanned)

	if len(candidates) > capacity {
		candidates = candidates[:capacity]
	}

	tradeAmount := decimal.NewFromFloat(e.cfg.TradeAmountUSDT)
	for _, candidate := range candidates {
		if e.stopRequested() {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		fill, err := e.backend.Buy(callCtx, candidate.Symbol, tradeAmount)
		cancel()
		if err != nil {
			if e.handleBuyError(ctx, candidate.Symbol, tradeAmount, err, logger) {
				return
			}
			continue
		}

		e.portfolio.RecordOpen(fill.Symbol, fill.Quantity, fill.Price)
		prices[fill.Symbol] = fill.Price
		e.collector.OrderFilled(string(fill.Side))

		filled := events.OrderFilledEvent{
			BaseEvent: events.NewBase(events.OrderFilled, events.LevelInfo,
				fmt.Sprintf("Bought %s %s at %s for %s USDT",
					fill.Quantity.String(), fill.Symbol, fill.Price.String(), fill.Quote.StringFixed(2))),
			Symbol:   fill.Symbol,
			Side:     string(fill.Side),
			Quantity: fill.Quantity,
			Price:    fill.Price,
		}
		_ = e.bus.Publish(filled)
	}
}

// handleBuyError reports the failure and returns true when no further
// buys should be attempted this tick.
func (e *Engine) handleBuyError(ctx context.Context, symbol string, requested decimal.Decimal, err error, logger *zap.Logger) bool {
	switch {
	case errors.Is(err, executor.ErrInsufficientFunds):
		available := decimal.Zero
		balCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		if bal, balErr := e.backend.WalletBalance(balCtx); balErr == nil {
			available = bal
		}
		cancel()

		logger.Info("Wallet exhausted, stopping buys this tick",
			zap.String("symbol", symbol),
			zap.String("available", available.String()))
		insufficient := events.FundsInsufficientEvent{
			BaseEvent: events.NewBase(events.FundsInsufficient, events.LevelWarn,
				fmt.Sprintf("Insufficient funds for %s: requested %s, available %s",
					symbol, requested.String(), available.String())),
			Symbol:    symbol,
			Requested: requested,
			Available: available,
		}
		_ = e.bus.Publish(insufficient)
		return true

	case errors.Is(err, executor.ErrOrderRejected):
		e.collector.OrderRejected("BUY")
		logger.Warn("Buy rejected, trying next candidate",
			zap.String("symbol", symbol), zap.Error(err))
		rejected := events.OrderRejectedEvent{
			BaseEvent: events.NewBase(events.OrderRejected, events.LevelWarn,
				fmt.Sprintf("Buy of %s rejected: %s", symbol, err)),
			Symbol: symbol,
			Side:   "BUY",
			Reason: err.Error(),
		}
		_ = e.bus.Publish(rejected)
		return false

	default:
		logger.Warn("Buy failed", zap.String("symbol", symbol), zap.Error(err))
		e.emitMarketUnavailable("buy "+symbol, err)
		return false
	}
}

// emitSnapshot reports the wallet and per-position status at the end
// of a tick.
func (e *Engine) emitSnapshot(ctx context.Context, prices map[string]decimal.Decimal, logger *zap.Logger) {
	wallet := decimal.Zero
	balCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	if bal, err := e.backend.WalletBalance(balCtx); err == nil {
		wallet = bal
	} else {
		logger.Warn("Wallet balance unavailable for snapshot", zap.Error(err))
	}
	cancel()

	open := e.portfolio.Open()
	statuses := make([]events.PositionStatus, 0, len(open))
	for _, pos := range open {
		status := events.PositionStatus{
			Symbol:     pos.Symbol,
			Quantity:   pos.Quantity,
			EntryPrice: pos.EntryPrice,
		}
		if price, ok := prices[pos.Symbol]; ok {
			status.CurrentPrice = price
			status.ChangePercent = decimal.NewFromFloat(pos.PnLPercent(price))
		}
		statuses = append(statuses, status)
	}

	walletFloat, _ := wallet.Float64()
	e.collector.Snapshot(len(open), walletFloat, e.bus.Dropped())

	snapshot := events.StatusSnapshotEvent{
		BaseEvent: events.NewBase(events.StatusSnapshot, events.LevelInfo,
			fmt.Sprintf("Wallet %s USDT, %d open positions", wallet.StringFixed(2), len(open))),
		Wallet:    wallet,
		Positions: statuses,
	}
	_ = e.bus.Publish(snapshot)
}

func (e *Engine) emitMarketUnavailable(op string, err error) {
	unavailable := events.MarketUnavailableEvent{
		BaseEvent: events.NewBase(events.MarketUnavailable, events.LevelWarn,
			fmt.Sprintf("Market data unavailable during %s: %s", op, err)),
		Op: op,
	}
	_ = e.bus.Publish(unavailable)
}
