// Package metrics exposes scan-cycle counters for Prometheus. All methods are
// safe to call on a nil *Registry, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the arbscout collectors on a private prometheus.Registry.
type Registry struct {
	reg *prometheus.Registry

	CycleDuration  prometheus.Histogram
	Cycles         *prometheus.CounterVec
	CyclesSkipped  prometheus.Counter
	PricesFetched  prometheus.Gauge
	FetchErrors    *prometheus.CounterVec
	PairsSkipped   *prometheus.CounterVec
	Opportunities  *prometheus.CounterVec
	BestNetProfit  prometheus.Gauge
	NotifyFailures prometheus.Counter
}

// NewRegistry creates and registers all collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbscout_cycle_duration_seconds",
			Help:    "Duration of a full fetch, scan and report cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscout_cycles_total",
			Help: "Scan cycles by result",
		}, []string{"result"}),
		CyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbscout_cycles_skipped_total",
			Help: "Ticks dropped because the previous cycle was still running",
		}),
		PricesFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbscout_prices_fetched",
			Help: "Usable prices in the most recent snapshot",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscout_fetch_errors_total",
			Help: "Failed ticker fetches by exchange",
		}, []string{"exchange"}),
		PairsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscout_pairs_skipped_total",
			Help: "Combinations excluded from a scan by reason",
		}, []string{"reason"}),
		Opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscout_opportunities_total",
			Help: "Opportunities found by symbol",
		}, []string{"symbol"}),
		BestNetProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbscout_best_net_profit",
			Help: "Highest net profit, in quote units, of the most recent cycle",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbscout_notify_failures_total",
			Help: "Cycles whose alerts could not be fully delivered",
		}),
	}

	r.reg.MustRegister(
		r.CycleDuration,
		r.Cycles,
		r.CyclesSkipped,
		r.PricesFetched,
		r.FetchErrors,
		r.PairsSkipped,
		r.Opportunities,
		r.BestNetProfit,
		r.NotifyFailures,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) ObserveCycle(d time.Duration, result string) {
	if r == nil {
		return
	}
	r.CycleDuration.Observe(d.Seconds())
	r.Cycles.WithLabelValues(result).Inc()
}

func (r *Registry) CycleSkipped() {
	if r == nil {
		return
	}
	r.CyclesSkipped.Inc()
}

func (r *Registry) SetPricesFetched(n int) {
	if r == nil {
		return
	}
	r.PricesFetched.Set(float64(n))
}

func (r *Registry) FetchFailed(exchange string) {
	if r == nil {
		return
	}
	r.FetchErrors.WithLabelValues(exchange).Inc()
}

func (r *Registry) PairSkipped(reason string) {
	if r == nil {
		return
	}
	r.PairsSkipped.WithLabelValues(reason).Inc()
}

func (r *Registry) OpportunityFound(symbol string) {
	if r == nil {
		return
	}
	r.Opportunities.WithLabelValues(symbol).Inc()
}

func (r *Registry) SetBestNetProfit(v float64) {
	if r == nil {
		return
	}
	r.BestNetProfit.Set(v)
}

func (r *Registry) NotifyFailed() {
	if r == nil {
		return
	}
	r.NotifyFailures.Inc()
}
