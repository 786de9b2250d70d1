// Package metrics instruments backtest runs with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/broker"
)

var _ backtest.Recorder = (*Registry)(nil)

// Registry holds all Prometheus metrics. It is safe for concurrent use, so
// one Registry can observe every run of a sweep.
type Registry struct {
	*prometheus.Registry

	barsProcessed *prometheus.CounterVec
	orders        *prometheus.CounterVec
	trades        *prometheus.CounterVec
	biasChecks    *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		barsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_bars_processed_total",
				Help: "Total number of bars fed to strategies",
			},
			[]string{"symbol"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_orders_total",
				Help: "Total number of resolved orders by final status",
			},
			[]string{"symbol", "status"},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_trades_total",
				Help: "Total number of closed trades",
			},
			[]string{"symbol", "outcome"},
		),
		biasChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_bias_checks_total",
				Help: "Total number of look-ahead bias checks",
			},
			[]string{"result"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_runs_total",
				Help: "Total number of completed backtest runs",
			},
			[]string{"strategy"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "replay_run_duration_seconds",
				Help:    "Backtest run duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"strategy"},
		),
	}

	reg.MustRegister(r.barsProcessed)
	reg.MustRegister(r.orders)
	reg.MustRegister(r.trades)
	reg.MustRegister(r.biasChecks)
	reg.MustRegister(r.runsTotal)
	reg.MustRegister(r.runDuration)

	return r
}

// RecordBar records a bar handed to the strategy.
func (r *Registry) RecordBar(symbol string) {
	r.barsProcessed.WithLabelValues(symbol).Inc()
}

// RecordOrder records a resolved order.
func (r *Registry) RecordOrder(symbol string, status broker.OrderStatus) {
	r.orders.WithLabelValues(symbol, string(status)).Inc()
}

// RecordTrade records a closed trade.
func (r *Registry) RecordTrade(symbol string, win bool) {
	r.trades.WithLabelValues(symbol, outcome(win)).Inc()
}

// RecordBiasCheck records the outcome of a run's look-ahead check.
func (r *Registry) RecordBiasCheck(passed bool) {
	result := "failed"
	if passed {
		result = "passed"
	}
	r.biasChecks.WithLabelValues(result).Inc()
}

// RecordRun records a completed run.
func (r *Registry) RecordRun(strategy string, duration time.Duration) {
	r.runsTotal.WithLabelValues(strategy).Inc()
	r.runDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// WriteTextfile writes every gathered metric to path in the Prometheus text
// format, for pickup by node_exporter's textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}

func outcome(win bool) string {
	if win {
		return "win"
	}
	return "loss"
}
