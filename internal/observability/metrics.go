package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ServiceName identifies this service in logs and health responses
const ServiceName = "realtime-bridge"

var (
	// Call metrics
	activeCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_bridge_active_calls",
		Help: "Number of calls currently bridged",
	})

	totalCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_bridge_calls_total",
		Help: "Total number of calls bridged",
	})

	callDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "realtime_bridge_call_duration_seconds",
		Help:    "Duration of bridged calls in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Audio metrics
	audioFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_bridge_audio_frames_total",
		Help: "Audio frames forwarded between telephony and engine",
	}, []string{"direction"}) // direction: "in" (caller to engine) or "out" (engine to caller)

	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_bridge_audio_bytes_total",
		Help: "Decoded audio bytes forwarded",
	}, []string{"direction"})

	callerLevel = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "realtime_bridge_caller_level_rms",
		Help:    "RMS level of caller audio frames on the 16-bit linear scale",
		Buckets: []float64{200, 400, 1000, 2000, 4000, 8000, 16000, 32000},
	})

	audioPlayoutSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_bridge_audio_playout_seconds_total",
		Help: "Seconds of synthesized audio sent to callers",
	})

	// Barge-in metrics
	interruptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_bridge_interruptions_total",
		Help: "Caller barge-in events by outcome",
	}, []string{"outcome"}) // outcome: "truncated", "cleared", "ignored"

	truncateOffset = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "realtime_bridge_truncate_offset_seconds",
		Help:    "Audio heard by the caller before barge-in",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
	})

	marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_bridge_marks_total",
		Help: "Mark tokens by event",
	}, []string{"event"}) // event: "sent", "acked", "underflow", "stale", "dropped"

	engineEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_bridge_engine_events_total",
		Help: "Events received from the conversational engine",
	}, []string{"type"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_bridge_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "realtime_bridge_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_bridge_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single call
type Metrics struct {
	callID    string
	startTime time.Time
}

// NewCallMetrics creates a new metrics tracker for a call
func NewCallMetrics(callID string) *Metrics {
	return &Metrics{
		callID:    callID,
		startTime: time.Now(),
	}
}

// RecordCallStart records the start of a call
func (m *Metrics) RecordCallStart() {
	activeCalls.Inc()
	totalCalls.Inc()
}

// RecordCallEnd records the end of a call
func (m *Metrics) RecordCallEnd() {
	activeCalls.Dec()
	callDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordAudioFrame records one forwarded audio frame
func (m *Metrics) RecordAudioFrame(direction string, bytes int) {
	audioFrames.WithLabelValues(direction).Inc()
	audioBytes.WithLabelValues(direction).Add(float64(bytes))
}

// RecordCallerLevel records the RMS level of one inbound frame
func (m *Metrics) RecordCallerLevel(rms float64) {
	callerLevel.Observe(rms)
}

// RecordPlayout records synthesized audio sent to the caller
func (m *Metrics) RecordPlayout(d time.Duration) {
	audioPlayoutSeconds.Add(d.Seconds())
}

// RecordInterruption records a barge-in outcome and, when truncated, how much was heard
func (m *Metrics) RecordInterruption(outcome string, heard time.Duration) {
	interruptions.WithLabelValues(outcome).Inc()
	if outcome == "truncated" {
		truncateOffset.Observe(heard.Seconds())
	}
}

// RecordMark records a mark queue event
func (m *Metrics) RecordMark(event string) {
	marks.WithLabelValues(event).Inc()
}

// RecordEngineEvent counts an engine event by type
func (m *Metrics) RecordEngineEvent(eventType string) {
	engineEvents.WithLabelValues(eventType).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
