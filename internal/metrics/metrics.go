package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ResolveRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_resolve_requests_total",
		Help: "Total number of /api/resolve requests",
	})
	ResolveDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kdapi_resolve_duration_ms",
		Help:    "Resolve request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000},
	})
	OutsideResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_outside_results_total",
		Help: "Total number of resolutions landing outside every kingdom",
	})
	RedisHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_redis_hits_total",
		Help: "Total redis hot cache hits",
	})
	RedisMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_redis_misses_total",
		Help: "Total redis hot cache misses",
	})
	FileCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_filecache_hits_total",
		Help: "Total file cache hits within freshness window",
	})
	FileCacheStaleTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_filecache_stale_total",
		Help: "Total file cache entries rejected by age or distance",
	})
	NominatimRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_nominatim_requests_total",
		Help: "Total Nominatim REST requests",
	})
	NominatimSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_nominatim_success_total",
		Help: "Total Nominatim REST successes",
	})
	NominatimFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_nominatim_fail_total",
		Help: "Total Nominatim REST failures",
	})
	NominatimDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kdapi_nominatim_duration_ms",
		Help:    "Nominatim REST call duration in milliseconds",
		Buckets: []float64{50, 100, 200, 500, 1000, 2000, 5000, 10000},
	})
	EnterEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_enter_events_total",
		Help: "Total kingdom enter transitions emitted by resolvers",
	})
	ExitEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_exit_events_total",
		Help: "Total kingdom exit transitions emitted by resolvers",
	})
	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kdapi_source_requests_total",
		Help: "Total boundary source fetch requests",
	}, []string{"source"})
	SourceFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kdapi_source_fail_total",
		Help: "Total boundary source fetch failures (error or empty)",
	}, []string{"source"})
	SourceHeartbeatTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kdapi_source_heartbeat_total",
		Help: "Boundary source heartbeat count by status",
	}, []string{"source", "status"})
	RefreshRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kdapi_refresh_runs_total",
		Help: "Total scheduled boundary refresh runs",
	})
)

func init() {
	prometheus.MustRegister(ResolveRequestsTotal)
	prometheus.MustRegister(ResolveDurationMs)
	prometheus.MustRegister(OutsideResultsTotal)
	prometheus.MustRegister(RedisHitsTotal)
	prometheus.MustRegister(RedisMissesTotal)
	prometheus.MustRegister(FileCacheHitsTotal)
	prometheus.MustRegister(FileCacheStaleTotal)
	prometheus.MustRegister(NominatimRequestsTotal)
	prometheus.MustRegister(NominatimSuccessTotal)
	prometheus.MustRegister(NominatimFailTotal)
	prometheus.MustRegister(NominatimDurationMs)
	prometheus.MustRegister(EnterEventsTotal)
	prometheus.MustRegister(ExitEventsTotal)
	prometheus.MustRegister(SourceRequestsTotal)
	prometheus.MustRegister(SourceFailTotal)
	prometheus.MustRegister(SourceHeartbeatTotal)
	prometheus.MustRegister(RefreshRunsTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
