package metadata

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Recorder is the sole observability sink every package above pkg/failure
// writes through. It never makes a scheduling decision — see the
// ErrorCause doc comment in data.go.
type Recorder interface {
	RecordError(observedAt time.Time, packageName, action string, cause ErrorCause, message string, attrs []Attribute)
	RecordFetch(evt FetchEvent)
	RecordArtifact(path string)
	Errors() []ErrorRecord
}

// ZerologRecorder is the concrete Recorder: every event is logged
// structurally through zerolog, and errors and fetches are also counted
// in a prometheus registry; artifacts are logged and kept in memory but
// not counted.
type ZerologRecorder struct {
	logger zerolog.Logger

	mu        sync.Mutex
	errors    []ErrorRecord
	artifacts []string

	errorsTotal   *prometheus.CounterVec
	fetchesTotal  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

func NewZerologRecorder(logger zerolog.Logger, reg prometheus.Registerer) *ZerologRecorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &ZerologRecorder{
		logger: logger,
		errorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "enrich_errors_total",
			Help: "Errors recorded by cause.",
		}, []string{"cause", "package"}),
		fetchesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "enrich_fetches_total",
			Help: "Extractor HTTP fetches by kind and status.",
		}, []string{"kind", "status"}),
		fetchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrich_fetch_duration_seconds",
			Help:    "Extractor fetch latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

func (r *ZerologRecorder) RecordError(observedAt time.Time, packageName, action string, cause ErrorCause, message string, attrs []Attribute) {
	rec := ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: message,
		observedAt:  observedAt,
		attrs:       attrs,
	}

	r.mu.Lock()
	r.errors = append(r.errors, rec)
	r.mu.Unlock()

	r.errorsTotal.WithLabelValues(causeName(cause), packageName).Inc()

	evt := r.logger.Warn().
		Str("package", packageName).
		Str("action", action).
		Str("cause", causeName(cause)).
		Time("observed_at", observedAt)
	for _, a := range attrs {
		evt = evt.Str(string(a.Key), a.Value)
	}
	evt.Msg(message)
}

func (r *ZerologRecorder) RecordFetch(evt FetchEvent) {
	r.fetchesTotal.WithLabelValues(evt.kind, statusBucket(evt.httpStatus)).Inc()
	r.fetchDuration.WithLabelValues(evt.kind).Observe(evt.duration.Seconds())

	r.logger.Debug().
		Str("kind", evt.kind).
		Str("url", evt.fetchUrl).
		Int("http_status", evt.httpStatus).
		Dur("duration", evt.duration).
		Str("content_type", evt.contentType).
		Int("retry_count", evt.retryCount).
		Msg("fetch")
}

func (r *ZerologRecorder) RecordArtifact(path string) {
	r.mu.Lock()
	r.artifacts = append(r.artifacts, path)
	r.mu.Unlock()
	r.logger.Info().Str("write_path", path).Msg("artifact written")
}

func (r *ZerologRecorder) Errors() []ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorRecord, len(r.errors))
	copy(out, r.errors)
	return out
}

func (r *ZerologRecorder) Artifacts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.artifacts))
	copy(out, r.artifacts)
	return out
}

func causeName(c ErrorCause) string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseInvariantViolation:
		return "invariant_violation"
	case CauseExtractionFailure:
		return "extraction_failure"
	case CauseRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

func statusBucket(status int) string {
	switch {
	case status == 0:
		return "none"
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
