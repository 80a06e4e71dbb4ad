// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	LogFetches        prometheus.Counter
	LogFetchErrors    prometheus.Counter
	LogFetchNoData    prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	MessagesMerged    prometheus.Counter
	MergeConflicts    prometheus.Counter
	SegmentWarnings   prometheus.Counter
	TranscriptRenders prometheus.Counter

	// Histograms (seconds)
	FetchDuration  prometheus.Observer
	RenderDuration prometheus.Observer

	// Gauges
	CachedDaysGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		LogFetches = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_log_fetches_total", Help: "Number of day/range log fetches issued"})
		LogFetchErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_log_fetch_errors_total", Help: "Number of log fetches that failed"})
		LogFetchNoData = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_log_fetch_nodata_total", Help: "Number of log fetches that found no data"})
		CacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_cache_hits_total", Help: "Number of day lookups served from a complete cache entry"})
		CacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_cache_misses_total", Help: "Number of day lookups that required a fetch"})
		MessagesMerged = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_merged_total", Help: "Number of messages appended by the day merge"})
		MergeConflicts = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_merge_conflicts_total", Help: "Number of day merges with mismatched overlap"})
		SegmentWarnings = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_segment_warnings_total", Help: "Number of segmentation reconstruction mismatches"})
		TranscriptRenders = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_transcript_renders_total", Help: "Number of transcript render calls"})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_log_fetch_duration_seconds", Help: "Log fetch duration seconds", Buckets: prometheus.DefBuckets})
		RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_transcript_render_duration_seconds", Help: "Transcript render duration seconds", Buckets: prometheus.DefBuckets})
		CachedDaysGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_cached_days", Help: "Current number of cached day entries"})
	})
}

// Count increments a counter when metrics are initialized.
func Count(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Add increments a counter by n when metrics are initialized.
func Add(c prometheus.Counter, n int) {
	if c != nil && n > 0 {
		c.Add(float64(n))
	}
}

// SegmentationWarning increments the segmentation warning counter.
func SegmentationWarning() { Count(SegmentWarnings) }

// SetCachedDays records the current cache entry count.
func SetCachedDays(n int) {
	if CachedDaysGauge != nil {
		CachedDaysGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
