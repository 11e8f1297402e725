// Package metrics tracks per-Turn latency stopwatches and token throughput,
// and exports cross-connection aggregates to Prometheus.
//
// The named-stopwatch/token-counter shape is grounded directly on
// original_source's utils/metrics.py MetricsTracker (start_timing,
// stop_timing, add_tokens, get_tps). The Prometheus export is grounded on
// hubenschmidt-asr-llm-tts, whose gateway depends on
// github.com/prometheus/client_golang for exactly this kind of
// cross-session operator aggregate.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tracker accumulates named stage timings and token counts for the current
// Turn. Every method takes the Tracker's mutex, so it is safe for
// concurrent use; one Tracker serves a Connection's successive Turns and is
// cleared between them with Reset.
type Tracker struct {
	mu        sync.Mutex
	starts    map[string]time.Time
	durations map[string]time.Duration
	tokens    int
	model     string
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		starts:    make(map[string]time.Time),
		durations: make(map[string]time.Duration),
	}
}

// Reset clears all stopwatches and counters so a Tracker shared across a
// Connection's lifetime can be reused cleanly for the next Turn.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.starts = make(map[string]time.Time)
	t.durations = make(map[string]time.Duration)
	t.tokens = 0
	t.model = ""
}

// SetModel records the model name reported in the metrics frame.
func (t *Tracker) SetModel(model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.model = model
}

// StartTiming begins a named stopwatch.
func (t *Tracker) StartTiming(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.starts[name] = time.Now()
}

// StopTiming ends a named stopwatch and returns its duration. Returns 0 if
// the stopwatch was never started.
func (t *Tracker) StopTiming(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	start, ok := t.starts[name]
	if !ok {
		return 0
	}
	d := time.Since(start)
	t.durations[name] = d
	return d
}

// AddTokens accumulates generated token count for TPS computation.
func (t *Tracker) AddTokens(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens += n
}

// TokensPerSecond returns tokens / llm_generation duration, 0 if that stage
// was never timed, matching MetricsTracker.get_tps exactly.
func (t *Tracker) TokensPerSecond() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.durations["llm_generation"]
	if !ok || d <= 0 {
		return 0
	}
	return float64(t.tokens) / d.Seconds()
}

// Snapshot is the JSON-friendly view sent to the client as a metrics frame.
type Snapshot struct {
	Durations map[string]float64 `json:"durations_ms"`
	TPS       float64            `json:"tps"`
	Model     string             `json:"model"`
}

// Snapshot returns the current state as a serializable snapshot.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	durations := make(map[string]float64, len(t.durations))
	for k, v := range t.durations {
		durations[k] = float64(v.Microseconds()) / 1000.0
	}

	var tps float64
	if d, ok := t.durations["llm_generation"]; ok && d > 0 {
		tps = float64(t.tokens) / d.Seconds()
	}

	return Snapshot{Durations: durations, TPS: tps, Model: t.model}
}

// Aggregates holds the process-wide Prometheus collectors registered across
// all Connections.
type Aggregates struct {
	StageLatency   *prometheus.HistogramVec
	TurnsTotal     prometheus.Counter
	Interruptions  prometheus.Counter
	ActiveSessions prometheus.Gauge
	TokensTotal    prometheus.Counter
}

// NewAggregates builds and registers the process-wide collectors against
// registry. Pass prometheus.DefaultRegisterer for the usual /metrics
// endpoint.
func NewAggregates(registry prometheus.Registerer) *Aggregates {
	a := &Aggregates{
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "turn_stage_latency_seconds",
			Help:      "Latency of each orchestrator stage (stt, llm, tts) per turn.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		TurnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "turns_total",
			Help:      "Total completed conversation turns.",
		}),
		Interruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "interruptions_total",
			Help:      "Total barge-in interruptions across all connections.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "active_sessions",
			Help:      "Number of currently open WebSocket connections.",
		}),
		TokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens generated.",
		}),
	}

	registry.MustRegister(a.StageLatency, a.TurnsTotal, a.Interruptions, a.ActiveSessions, a.TokensTotal)
	return a
}

// ObserveStage records a completed stage's duration against the histogram.
func (a *Aggregates) ObserveStage(stage string, d time.Duration) {
	a.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}
