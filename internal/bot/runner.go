// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sagecry/sagebot/internal/config"
	"github.com/sagecry/sagebot/internal/events"
	"github.com/sagecry/sagebot/internal/exchange"
	"github.com/sagecry/sagebot/internal/executor"
	"github.com/sagecry/sagebot/internal/history"
	"github.com/sagecry/sagebot/internal/metrics"
	"github.com/sagecry/sagebot/internal/portfolio"
	"github.com/sagecry/sagebot/internal/scanner"
)

const eventBufferSize = 256

// Runner owns one trading session: it builds the exchange client, the
// execution backend matching the configured mode, the portfolio, the
// scanner and the engine, runs the session until a shutdown signal and
// tears everything down in order.
type Runner struct {
	logger     *zap.Logger
	cfg        *config.Session
	shutdownCh chan os.Signal
}

// NewRunner creates a runner for one session.
func NewRunner(cfg *config.Session, logger *zap.Logger) *Runner {
	return &Runner{
		logger:     logger,
		cfg:        cfg,
		shutdownCh: make(chan os.Signal, 1),
	}
}

// Run starts the session and blocks until SIGINT/SIGTERM or context
// cancellation, then stops the loop and drains the event bus.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(r.shutdownCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	key, secret := r.cfg.ActiveCredentials()
	client := exchange.NewClient(key, secret, r.logger)

	stream := exchange.NewPriceStream("", r.logger)
	stream.Start(runCtx)
	quoter := exchange.NewQuoter(stream, client)

	bus := events.NewBus(r.logger, eventBufferSize)
	sink := NewLogSink(r.logger)
	subs := sink.Attach(bus)
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	recorder := history.NewRecorder(r.logger)
	recorderSub := recorder.Attach(bus)
	defer recorderSub.Unsubscribe()

	pf := portfolio.NewManager(
		r.cfg.MaxOpenPositions,
		r.cfg.SellProfitTriggerPercent,
		r.cfg.SellLossTriggerPercent,
		r.logger,
	)

	backend, probe := r.buildBackend(client, quoter)
	sc := scanner.New(client, pf, r.cfg.QuoteAsset, r.cfg.ScanLimit, r.logger)

	engine := NewEngine(r.cfg, backend, pf, sc, quoter, bus, probe, r.logger)

	if r.cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		engine.AttachMetrics(metrics.NewCollector(registry))
		r.serveMetrics(runCtx, registry)
	}

	if err := engine.Start(runCtx); err != nil {
		return err
	}

	select {
	case sig := <-r.shutdownCh:
		r.logger.Info("Signal received, stopping session", zap.String("signal", sig.String()))
	case <-ctx.Done():
		r.logger.Info("Context cancelled, stopping session")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*r.cfg.CallTimeout)
	defer stopCancel()
	if err := engine.Stop(stopCtx); err != nil {
		r.logger.Warn("Trading loop did not stop cleanly", zap.Error(err))
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	if err := bus.Shutdown(drainCtx); err != nil {
		r.logger.Warn("Event bus did not drain cleanly", zap.Error(err))
	}

	if len(recorder.Trades()) > 0 {
		format := history.Format(r.cfg.ExportFormat)
		if format == "" {
			format = history.FormatCSV
		}
		if _, err := recorder.Export(r.cfg.ExportDir, format); err != nil {
			r.logger.Warn("Trade history export failed", zap.Error(err))
		}
	}

	return nil
}

// serveMetrics exposes the Prometheus endpoint until the session ends.
func (r *Runner) serveMetrics(ctx context.Context, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: r.cfg.MetricsAddr, Handler: mux}

	go func() {
		r.logger.Info("Metrics endpoint listening", zap.String("addr", r.cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Warn("Metrics endpoint failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// buildBackend selects the execution variant for the configured mode
// and the startup probe that validates its credentials.
func (r *Runner) buildBackend(client *exchange.Client, quoter *exchange.Quoter) (executor.Backend, func(ctx context.Context) error) {
	if r.cfg.Mode == config.ModeReal {
		live := executor.NewLive(client, r.cfg.QuoteAsset, r.logger)
		// A signed balance read proves the trading keys work.
		probe := func(ctx context.Context) error {
			_, err := client.AccountBalance(ctx, r.cfg.QuoteAsset)
			return err
		}
		return live, probe
	}

	sim := executor.NewSimulated(
		decimal.NewFromFloat(r.cfg.InitialWalletUSDT),
		quoter,
		r.logger,
	)
	return sim, client.Ping
}
