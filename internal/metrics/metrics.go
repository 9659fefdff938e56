// internal/metrics/metrics.go

// Package metrics exposes trading counters over Prometheus. The
// collector is owned by the session; nothing registers globally, so
// tests can build as many collectors as they want.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the session's trading metrics.
type Collector struct {
	ordersTotal   *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	openPositions prometheus.Gauge
	walletBalance prometheus.Gauge
	eventsDropped prometheus.Gauge
}

// NewCollector builds the metric set and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ordersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_bot_orders_total",
				Help: "Orders by side and outcome",
			},
			[]string{"side", "outcome"},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trading_bot_tick_duration_seconds",
				Help:    "Duration of one trading loop tick",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trading_bot_open_positions",
			Help: "Currently open positions",
		}),
		walletBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trading_bot_wallet_balance_usdt",
			Help: "Available quote-asset balance",
		}),
		eventsDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trading_bot_events_dropped_total",
			Help: "Events dropped due to a full bus buffer",
		}),
	}

	reg.MustRegister(c.ordersTotal, c.tickDuration, c.openPositions, c.walletBalance, c.eventsDropped)
	return c
}

// OrderFilled counts a confirmed fill.
func (c *Collector) OrderFilled(side string) {
	if c == nil {
		return
	}
	c.ordersTotal.WithLabelValues(side, "filled").Inc()
}

// OrderRejected counts an exchange-side rejection.
func (c *Collector) OrderRejected(side string) {
	if c == nil {
		return
	}
	c.ordersTotal.WithLabelValues(side, "rejected").Inc()
}

// TickCompleted records one loop cycle.
func (c *Collector) TickCompleted(duration time.Duration) {
	if c == nil {
		return
	}
	c.tickDuration.Observe(duration.Seconds())
}

// Snapshot updates the point-in-time gauges.
func (c *Collector) Snapshot(openPositions int, walletBalance float64, eventsDropped int64) {
	if c == nil {
		return
	}
	c.openPositions.Set(float64(openPositions))
	c.walletBalance.Set(walletBalance)
	c.eventsDropped.Set(float64(eventsDropped))
}
