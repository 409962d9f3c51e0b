// Package metrics exposes Prometheus collectors for the history crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	artifactsTotal            *prometheus.CounterVec
	artifactBytesTotal        *prometheus.CounterVec
	crawlRoundsTotal          *prometheus.CounterVec
	crawlRoundDurationSeconds *prometheus.HistogramVec
	partitionWatermarkMillis  *prometheus.GaugeVec
	watermarkPublishesTotal   *prometheus.CounterVec
	lockWaitSeconds           *prometheus.HistogramVec
	lockTimeoutsTotal         prometheus.Counter
	markersPrunedTotal        prometheus.Counter
	runningRecordOpsTotal     *prometheus.CounterVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		artifactsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobhistory_artifacts_total",
				Help: "Total number of job history artifacts handled, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		artifactBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobhistory_artifact_bytes_total",
				Help: "Total number of artifact bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlRoundsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobhistory_crawl_rounds_total",
				Help: "Total number of crawl rounds, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlRoundDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobhistory_crawl_round_duration_seconds",
				Help:    "Histogram of crawl round durations, labeled by site.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"site"},
		)

		partitionWatermarkMillis = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jobhistory_partition_watermark_millis",
				Help: "Last committed watermark per partition, epoch milliseconds.",
			},
			[]string{"site", "partition"},
		)

		watermarkPublishesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobhistory_watermark_publishes_total",
				Help: "Cluster watermark publish attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		lockWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobhistory_lock_wait_seconds",
				Help:    "Histogram of distributed lock acquisition waits, labeled by lock name.",
				Buckets: []float64{0.005, 0.05, 0.25, 1, 5, 15, 30},
			},
			[]string{"name"},
		)

		lockTimeoutsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jobhistory_lock_timeouts_total",
				Help: "Total distributed lock acquisitions abandoned after the bounded wait.",
			},
		)

		markersPrunedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jobhistory_processed_markers_pruned_total",
				Help: "Total processed-job marker buckets removed by retention pruning.",
			},
		)

		runningRecordOpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobhistory_running_record_ops_total",
				Help: "Running-job record operations, labeled by operation and status.",
			},
			[]string{"op", "status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveArtifact increments the artifact counters.
func ObserveArtifact(site, status string, bytesFetched int) {
	artifactsTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		artifactBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveCrawlRound records one completed round and its duration.
func ObserveCrawlRound(site, outcome string, duration time.Duration) {
	crawlRoundsTotal.WithLabelValues(site, outcome).Inc()
	crawlRoundDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// SetPartitionWatermark publishes the committed watermark for a partition.
func SetPartitionWatermark(site string, partitionID int, watermark int64) {
	partitionWatermarkMillis.WithLabelValues(site, strconv.Itoa(partitionID)).Set(float64(watermark))
}

// ObserveWatermarkPublish counts one cluster watermark publish attempt.
func ObserveWatermarkPublish(site, outcome string) {
	watermarkPublishesTotal.WithLabelValues(site, outcome).Inc()
}

// ObserveLockWait records how long a distributed lock acquisition took.
func ObserveLockWait(name string, duration time.Duration) {
	lockWaitSeconds.WithLabelValues(name).Observe(duration.Seconds())
}

// ObserveLockTimeout increments the abandoned lock acquisition counter.
func ObserveLockTimeout() {
	lockTimeoutsTotal.Inc()
}

// ObserveMarkersPruned adds the number of marker buckets removed by a prune.
func ObserveMarkersPruned(buckets int) {
	if buckets > 0 {
		markersPrunedTotal.Add(float64(buckets))
	}
}

// ObserveRunningRecordOp counts one running-job record operation.
func ObserveRunningRecordOp(op, status string) {
	runningRecordOpsTotal.WithLabelValues(op, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
