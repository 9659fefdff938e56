// internal/bot/engine.go

// Package bot runs the trading loop: the state machine that, on a
// fixed cadence, evaluates sell triggers, scans for buy candidates,
// executes orders and reports status through the event bus.
package bot

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sagecry/sagebot/internal/config"
	"github.com/sagecry/sagebot/internal/events"
	"github.com/sagecry/sagebot/internal/executor"
	"github.com/sagecry/sagebot/internal/metrics"
	"github.com/sagecry/sagebot/internal/portfolio"
	"github.com/sagecry/sagebot/internal/scanner"
)

// State of the trading loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// CandidateScanner produces ranked buy candidates.
type CandidateScanner interface {
	Scan(ctx context.Context, minPercentChange float64) ([]scanner.Candidate, error)
}

// Engine is the trading loop. One engine drives one session; ticks run
// sequentially on a single goroutine, so the portfolio and wallet are
// mutated without locks. A stop request is observed at checkpoints
// inside a tick (before price fetch and between order submissions), so
// shutdown latency is bounded by one in-flight order call.
type Engine struct {
	cfg       *config.Session
	backend   executor.Backend
	portfolio *portfolio.Manager
	scanner   CandidateScanner
	pricer    executor.Pricer
	bus       *events.Bus
	logger    *zap.Logger

	// probe verifies connectivity and credentials before the first tick.
	probe func(ctx context.Context) error

	// collector is optional; a nil collector is a no-op.
	collector *metrics.Collector

	state  atomic.Int32
	stopCh chan struct{}
	done   chan struct{}
	tick   atomic.Int64
}

// NewEngine wires the trading loop. probe may be nil when no startup
// check is wanted (tests).
func NewEngine(
	cfg *config.Session,
	backend executor.Backend,
	pf *portfolio.Manager,
	sc CandidateScanner,
	pricer executor.Pricer,
	bus *events.Bus,
	probe func(ctx context.Context) error,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		backend:   backend,
		portfolio: pf,
		scanner:   sc,
		pricer:    pricer,
		bus:       bus,
		probe:     probe,
		logger:    logger.Named("engine"),
	}
}

// AttachMetrics hooks a Prometheus collector into the loop. Must be
// called before Start.
func (e *Engine) AttachMetrics(c *metrics.Collector) {
	e.collector = c
}

// State returns the current loop state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Start transitions Idle -> Running. It validates credentials against
// the exchange first; a rejected probe leaves the engine idle and
// fails with ErrCredentialInvalid. The first tick runs immediately.
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("engine is %s, not idle", e.State())
	}

	if e.probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		err := e.probe(probeCtx)
		cancel()
		if err != nil {
			e.state.Store(int32(StateIdle))
			return fmt.Errorf("%w: %s", config.ErrCredentialInvalid, err)
		}
	}

	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})

	key, _ := e.cfg.ActiveCredentials()
	started := events.SessionStartedEvent{
		BaseEvent: events.NewBase(events.SessionStarted, events.LevelInfo,
			fmt.Sprintf("Session started in %s mode", e.cfg.Mode)),
		Mode:      e.cfg.Mode,
		MaskedKey: config.MaskKey(key),
	}
	_ = e.bus.Publish(started)

	e.logger.Info("Trading loop starting",
		zap.String("mode", e.cfg.Mode),
		zap.Duration("tick_interval", e.cfg.TickInterval))

	go e.run(ctx)
	return nil
}

// Stop transitions Running -> Stopping and waits for the loop to reach
// Idle. An in-flight tick finishes its already-submitted orders; no
// new tick begins. Stopping an idle engine is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return nil
	}
	close(e.stopCh)

	select {
	case <-e.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for trading loop to stop: %w", ctx.Err())
	}

	e.state.Store(int32(StateIdle))
	stopped := events.SessionStoppedEvent{
		BaseEvent: events.NewBase(events.SessionStopped, events.LevelInfo, "Session stopped"),
		Reason:    "stop requested",
	}
	_ = e.bus.Publish(stopped)

	e.logger.Info("Trading loop stopped", zap.Int64("ticks", e.tick.Load()))
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if e.stopRequested() {
				return
			}
			e.runTick(ctx)
		}
	}
}

func (e *Engine) stopRequested() bool {
	return e.State() != StateRunning
}

// runTick executes one cycle. Every error inside a tick is converted
// to exactly one event; nothing here may kill the loop.
func (e *Engine) runTick(ctx context.Context) {
	tick := e.tick.Add(1)
	began := time.Now()
	logger := e.logger.With(zap.Int64("tick", tick))

	if e.stopRequested() {
		return
	}

	prices, pricesOK := e.fetchOpenPrices(ctx, logger)
	if pricesOK {
		e.evaluateAndSell(ctx, prices, logger)
	}
	if e.stopRequested() {
		return
	}

	e.scanAndBuy(ctx, prices, logger)

	e.emitSnapshot(ctx, prices, logger)

	e.collector.TickCompleted(time.Since(began))

	completed := events.TickCompletedEvent{
		BaseEvent: events.NewBase(events.TickCompleted, events.LevelInfo,
			fmt.Sprintf("Tick %d completed in %s", tick, time.Since(began).Round(time.Millisecond))),
		Tick:     tick,
		Duration: time.Since(began),
	}
	_ = e.bus.Publish(completed)
}
