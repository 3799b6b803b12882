// Package metrics exposes the bot's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the bot updates. All collectors are
// registered on the registry passed to New.
type Metrics struct {
	registry *prometheus.Registry

	BookUpdates        *prometheus.CounterVec
	StreamFailures     *prometheus.CounterVec
	ScanTriggers       prometheus.Counter
	ScansTotal         prometheus.Counter
	OpportunitiesFound prometheus.Counter
	TradesTotal        *prometheus.CounterVec
	RealizedPnLUSD     prometheus.Gauge
	OpenTrades         prometheus.Gauge
	EmergencyStop      prometheus.Gauge
	VenuesConnected    prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BookUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbot_book_updates_total",
			Help: "Order book snapshots stored, by venue and instrument.",
		}, []string{"venue", "instrument"}),
		StreamFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbot_stream_failures_total",
			Help: "Market data stream failures, by component id.",
		}, []string{"component"}),
		ScanTriggers: factory.NewCounter(prometheus.CounterOpts{
			Name: "arbot_scan_triggers_total",
			Help: "Scan triggers fired by top-of-book changes.",
		}),
		ScansTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "arbot_scans_total",
			Help: "Opportunity scans executed.",
		}),
		OpportunitiesFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "arbot_opportunities_total",
			Help: "Opportunities that cleared the profit threshold.",
		}),
		TradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbot_trades_total",
			Help: "Executed trade attempts, by outcome.",
		}, []string{"outcome"}),
		RealizedPnLUSD: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arbot_realized_pnl_usd",
			Help: "Cumulative realized PnL in USD.",
		}),
		OpenTrades: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arbot_open_trades",
			Help: "Orders currently in a non-terminal state.",
		}),
		EmergencyStop: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arbot_emergency_stop",
			Help: "1 when the emergency stop has tripped, 0 otherwise.",
		}),
		VenuesConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arbot_venues_connected",
			Help: "Venues that initialized successfully.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
