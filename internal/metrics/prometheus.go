package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsStarted  *prometheus.CounterVec
	SessionsStopped  prometheus.Counter
	SessionDuration  prometheus.Histogram
	SamplesCaptured  prometheus.Counter
	SegmentsDropped  prometheus.Counter
	InFlightSegments prometheus.Gauge

	// Segmentation metrics
	SegmentsEmitted *prometheus.CounterVec
	SegmentDuration prometheus.Histogram

	// Pipeline metrics
	PipelineFailures *prometheus.CounterVec
	EntriesPersisted *prometheus.CounterVec

	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderFailures *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	ProviderRetries  prometheus.Counter

	// Media job metrics
	MediaJobs *prometheus.CounterVec

	// Event metrics
	EventsEmitted  *prometheus.CounterVec
	EventsDropped  prometheus.Counter
	EventListeners prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vt_active_sessions",
			Help: "Current number of active capture sessions",
		}),
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_sessions_started_total",
			Help: "Total number of capture sessions started",
		}, []string{"mode"}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_sessions_stopped_total",
			Help: "Total number of capture sessions stopped",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vt_session_duration_seconds",
			Help:    "Duration of capture sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		SamplesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_samples_captured_total",
			Help: "Total number of mono samples delivered by the capture device",
		}),
		SegmentsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_segments_dropped_total",
			Help: "Total number of segments dropped because the handoff queue was full",
		}),
		InFlightSegments: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vt_segments_in_flight",
			Help: "Current number of segment pipelines running",
		}),

		// Segmentation metrics
		SegmentsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_segments_emitted_total",
			Help: "Total number of speech segments produced",
		}, []string{"source"}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vt_segment_duration_seconds",
			Help:    "Duration of speech segments",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~30s
		}),

		// Pipeline metrics
		PipelineFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_pipeline_failures_total",
			Help: "Total number of segment pipeline failures by stage",
		}, []string{"stage"}),
		EntriesPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_entries_persisted_total",
			Help: "Total number of conversation entries persisted",
		}, []string{"kind"}),

		// Provider metrics
		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_provider_requests_total",
			Help: "Total number of provider requests",
		}, []string{"engine", "operation"}),
		ProviderFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_provider_failures_total",
			Help: "Total number of failed provider requests",
		}, []string{"engine", "operation"}),
		ProviderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vt_provider_request_duration_seconds",
			Help:    "Duration of provider requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}, []string{"engine", "operation"}),
		ProviderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_provider_retries_total",
			Help: "Total number of provider request retries",
		}),

		// Media job metrics
		MediaJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_media_jobs_total",
			Help: "Total number of media file jobs by outcome",
		}, []string{"outcome"}),

		// Event metrics
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_events_emitted_total",
			Help: "Total number of events emitted",
		}, []string{"topic"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_events_dropped_total",
			Help: "Total number of events dropped for slow listeners",
		}),
		EventListeners: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vt_event_listeners",
			Help: "Current number of connected event listeners",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSessionStarted increments the active session gauge
func (m *Metrics) RecordSessionStarted(mode string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
	m.SessionsStarted.WithLabelValues(mode).Inc()
}

// RecordSessionStopped decrements the active session gauge and records duration
func (m *Metrics) RecordSessionStopped(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsStopped.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSamplesCaptured adds to the captured samples counter
func (m *Metrics) RecordSamplesCaptured(n int) {
	if m == nil {
		return
	}
	m.SamplesCaptured.Add(float64(n))
}

// RecordSegmentDropped increments the dropped segments counter
func (m *Metrics) RecordSegmentDropped() {
	if m == nil {
		return
	}
	m.SegmentsDropped.Inc()
}

// RecordSegmentEmitted records a produced segment
func (m *Metrics) RecordSegmentEmitted(source string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsEmitted.WithLabelValues(source).Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// PipelineStarted increments the in-flight gauge
func (m *Metrics) PipelineStarted() {
	if m == nil {
		return
	}
	m.InFlightSegments.Inc()
}

// PipelineFinished decrements the in-flight gauge
func (m *Metrics) PipelineFinished() {
	if m == nil {
		return
	}
	m.InFlightSegments.Dec()
}

// RecordPipelineFailure records a failed pipeline stage
func (m *Metrics) RecordPipelineFailure(stage string) {
	if m == nil {
		return
	}
	m.PipelineFailures.WithLabelValues(stage).Inc()
}

// RecordEntryPersisted records a persisted conversation entry
func (m *Metrics) RecordEntryPersisted(kind string) {
	if m == nil {
		return
	}
	m.EntriesPersisted.WithLabelValues(kind).Inc()
}

// RecordProviderRequest records a provider call and its outcome
func (m *Metrics) RecordProviderRequest(engine, operation string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(engine, operation).Inc()
	m.ProviderDuration.WithLabelValues(engine, operation).Observe(durationSeconds)
	if err != nil {
		m.ProviderFailures.WithLabelValues(engine, operation).Inc()
	}
}

// RecordProviderRetry increments the retry counter
func (m *Metrics) RecordProviderRetry() {
	if m == nil {
		return
	}
	m.ProviderRetries.Inc()
}

// RecordMediaJob records a finished media job
func (m *Metrics) RecordMediaJob(outcome string) {
	if m == nil {
		return
	}
	m.MediaJobs.WithLabelValues(outcome).Inc()
}

// RecordEventEmitted records an emitted event
func (m *Metrics) RecordEventEmitted(topic string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(topic).Inc()
}

// RecordEventDropped records an event dropped for a slow listener
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// SetEventListeners sets the current number of event listeners
func (m *Metrics) SetEventListeners(n int) {
	if m == nil {
		return
	}
	m.EventListeners.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
