package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransportRequests 远端请求计数，status 为 0 表示网络错误
	TransportRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_transport_requests_total",
		Help: "Remote image service requests by method and status code.",
	}, []string{"method", "status"})

	// HydrationFailures 单条水合失败计数
	HydrationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_hydration_failures_total",
		Help: "Descriptors dropped because their payload could not be fetched or converted.",
	})

	// CacheMutations 画廊缓存变更计数
	CacheMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_cache_mutations_total",
		Help: "Applied gallery cache mutations by operation.",
	}, []string{"op"})

	// APIRequestDuration 本地 API 请求耗时
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gallery_api_request_duration_seconds",
		Help:    "Local view API request latency by route and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// CacheRecords 画廊缓存当前记录数
	CacheRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_cache_records",
		Help: "Number of records currently held in the gallery cache.",
	})
)

// ObserveRequest 记录一次远端请求
func ObserveRequest(method string, status int) {
	TransportRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// ObserveAPIRequest 记录一次本地 API 请求
func ObserveAPIRequest(method, route string, status int, seconds float64) {
	if route == "" {
		route = "unmatched"
	}
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}

// ObserveMutation 记录一次缓存变更及变更后的大小
func ObserveMutation(op string, size int) {
	CacheMutations.WithLabelValues(op).Inc()
	CacheRecords.Set(float64(size))
}
