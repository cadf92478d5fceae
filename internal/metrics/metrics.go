// Package metrics wires the ambient Prometheus observability of
// SPEC_FULL.md §2, adapted from the teacher's HealthLogger
// (core/system_health_logging.go): a process-wide registry of counters and
// gauges covering request volume, rate-limit rejections, and scheduler
// refresh outcomes. This is additive observability, not a scored component
// of the incentive pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric sn77-server exposes on /metrics.
type Registry struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestErrorsTotal *prometheus.CounterVec
	RateLimitRejected  *prometheus.CounterVec
	SchedulerRefresh   *prometheus.CounterVec
	HolderCount        prometheus.Gauge
	MinerCount         prometheus.Gauge
}

// New builds and registers every metric.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sn77_requests_total",
			Help: "Total HTTP requests handled, by route.",
		}, []string{"route"}),
		RequestErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sn77_request_errors_total",
			Help: "Total HTTP requests that returned an error, by route and HTTP status text.",
		}, []string{"route", "kind"}),
		RateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sn77_rate_limit_rejected_total",
			Help: "Total requests rejected by the rate limiter, by key prefix.",
		}, []string{"key_prefix"}),
		SchedulerRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sn77_scheduler_refresh_total",
			Help: "Total scheduler refresh runs, by job and outcome.",
		}, []string{"job", "outcome"}),
		HolderCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sn77_holder_count",
			Help: "Number of voters in the current holder snapshot.",
		}),
		MinerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sn77_miner_count",
			Help: "Number of miners in the current subnet roster.",
		}),
	}

	reg.MustRegister(
		r.RequestsTotal,
		r.RequestErrorsTotal,
		r.RateLimitRejected,
		r.SchedulerRefresh,
		r.HolderCount,
		r.MinerCount,
	)
	return r
}

// Handler returns the http.Handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
