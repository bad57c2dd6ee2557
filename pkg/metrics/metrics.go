package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "batch_auction"

// Metrics holds the engine collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	commands     *prometheus.CounterVec
	rounds       prometheus.Counter
	volume       prometheus.Counter
	trades       prometheus.Counter
	clearingPx   prometheus.Gauge
	resting      *prometheus.GaugeVec
	sessions     prometheus.Gauge
	sinkFailures *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands received, by command and outcome",
		}, []string{"command", "result"}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_settled_total",
			Help:      "Clearing rounds that produced at least one trade",
		}),
		volume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matched_volume_total",
			Help:      "Quantity matched across all rounds",
		}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trade events emitted",
		}),
		clearingPx: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clearing_price",
			Help:      "Uniform price of the last settled round",
		}),
		resting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resting_orders",
			Help:      "Orders resting in the book, by side",
		}, []string{"side"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_sessions",
			Help:      "Connected line-protocol sessions",
		}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_sink_failures_total",
			Help:      "Batch reports a sink failed to deliver",
		}, []string{"sink"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands, m.rounds, m.volume, m.trades, m.clearingPx, m.resting, m.sessions, m.sinkFailures,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveCommand(command, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result).Inc()
}

func (m *Metrics) ObserveRound(price float64, volume int64, trades int) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.volume.Add(float64(volume))
	m.trades.Add(float64(trades))
	m.clearingPx.Set(price)
}

func (m *Metrics) SetResting(side string, orders int) {
	if m == nil {
		return
	}
	m.resting.WithLabelValues(side).Set(float64(orders))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}
