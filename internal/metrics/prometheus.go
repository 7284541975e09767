// Package metrics provides Prometheus instrumentation for the recorder pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the recorder.
// All Record helpers are nil-receiver safe so components can run without
// instrumentation in tests.
type Metrics struct {
	// Capture metrics
	FramesCaptured  prometheus.Counter
	FramesDropped   prometheus.Counter
	CaptureRestarts prometheus.Counter

	// Segmentation metrics
	SegmentsSaved     prometheus.Counter
	SegmentsDiscarded *prometheus.CounterVec
	SegmentDuration   prometheus.Histogram

	// Queue metrics
	QueueDepth    prometheus.Gauge
	QueueOverflow *prometheus.CounterVec

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionSkipped   prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Event metrics
	EventsDropped prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_frames_captured_total",
			Help: "Total number of audio frames received from the input stream",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_frames_dropped_total",
			Help: "Total number of audio frames dropped while paused",
		}),
		CaptureRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_capture_restarts_total",
			Help: "Total number of successful audio stream restarts",
		}),

		SegmentsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_segments_saved_total",
			Help: "Total number of audio segments written to disk",
		}),
		SegmentsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_segments_discarded_total",
			Help: "Total number of flushed buffers discarded without an artifact",
		}, []string{"reason"}),
		SegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_segment_duration_seconds",
			Help:    "Duration of saved audio segments",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_segment_queue_depth",
			Help: "Current number of segments waiting for transcription",
		}),
		QueueOverflow: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_segment_queue_overflow_total",
			Help: "Total number of queue overflow events",
		}, []string{"outcome"}),

		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_transcription_requests_total",
			Help: "Total number of segments handed to the transcription engine",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_transcription_successes_total",
			Help: "Total number of successful transcriptions",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_transcription_failures_total",
			Help: "Total number of failed transcriptions",
		}),
		TranscriptionSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_transcription_skipped_total",
			Help: "Total number of segments skipped because the audio file was gone",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_transcription_duration_seconds",
			Help:    "Duration of transcription engine invocations",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}),

		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_events_dropped_total",
			Help: "Total number of pipeline events dropped due to a slow consumer",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recorder_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameCaptured increments the captured frames counter
func (m *Metrics) RecordFrameCaptured() {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
}

// RecordFrameDropped increments the dropped frames counter
func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

// RecordCaptureRestart increments the stream restart counter
func (m *Metrics) RecordCaptureRestart() {
	if m == nil {
		return
	}
	m.CaptureRestarts.Inc()
}

// RecordSegmentSaved records a persisted segment and its duration
func (m *Metrics) RecordSegmentSaved(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsSaved.Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordSegmentDiscarded records a discarded buffer by reason
func (m *Metrics) RecordSegmentDiscarded(reason string) {
	if m == nil {
		return
	}
	m.SegmentsDiscarded.WithLabelValues(reason).Inc()
}

// SetQueueDepth sets the current segment queue depth
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordQueueOverflow records an overflow event by outcome (dropped/rejected)
func (m *Metrics) RecordQueueOverflow(outcome string) {
	if m == nil {
		return
	}
	m.QueueOverflow.WithLabelValues(outcome).Inc()
}

// RecordTranscriptionRequest increments the transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionSkipped records a segment skipped for a missing file
func (m *Metrics) RecordTranscriptionSkipped() {
	if m == nil {
		return
	}
	m.TranscriptionSkipped.Inc()
}

// RecordEventDropped increments the dropped events counter
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
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
