// Package metrics holds Prometheus instruments used across the service.
// All collectors are registered with the global registry, so mounting
// promhttp.Handler() in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveTenants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_tenants",
			Help: "Number of tenant contexts currently cached in memory.",
		})

	TenantLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_load_total",
			Help: "Cumulative number of tenants resolved from the registry and cached.",
		})

	TenantLoadErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_load_errors_total",
			Help: "Cumulative number of failed tenant resolutions, by error code.",
		}, []string{"code"})

	TenantCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_cache_hits_total",
			Help: "Cumulative number of resolutions served from the cache.",
		})

	TenantEvictTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_evict_total",
			Help: "Cumulative number of tenants evicted from the cache, by reason.",
		}, []string{"reason"})

	TenantDisconnectErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_disconnect_errors_total",
			Help: "Cumulative number of tenant client disconnects that failed.",
		})
)

func init() {
	prometheus.MustRegister(
		ActiveTenants,
		TenantLoadTotal,
		TenantLoadErrorsTotal,
		TenantCacheHitsTotal,
		TenantEvictTotal,
		TenantDisconnectErrorsTotal,
	)
}
