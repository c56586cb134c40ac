// Package telemetry is the append-only, non-blocking event sink the pipeline
// emits to, plus the Prometheus counters and scan-duration histogram derived
// from those events.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/driftscan/confluence/internal/domain/scoring"
)

// EventType enumerates the telemetry events emitted by a scan run.
type EventType string

const (
	ScanStarted     EventType = "scan_started"
	SymbolStarted   EventType = "symbol_started"
	SignalGenerated EventType = "signal_generated"
	SignalRejected  EventType = "signal_rejected"
	ScanCompleted   EventType = "scan_completed"
)

// Event is one emitted telemetry record. Sequence is monotonic, assigned at
// emit; consumers must ignore unknown payload fields (schema is append-only).
type Event struct {
	Sequence  int64
	Type      EventType
	RunID     string
	Timestamp time.Time
	Payload   map[string]any
}

var metrics = struct {
	scansStarted   prometheus.Counter
	signalsEmitted prometheus.Counter
	rejections     *prometheus.CounterVec
	scanDuration   prometheus.Histogram
}{
	scansStarted: prometheus.NewCounter(prometheus.CounterOpts{
		Name: "confluence_scans_started_total", Help: "Number of scans started.",
	}),
	signalsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
		Name: "confluence_signals_emitted_total", Help: "Number of signals emitted.",
	}),
	rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_rejections_total", Help: "Number of per-symbol rejections by reason.",
	}, []string{"reason"}),
	scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "confluence_scan_duration_seconds", Help: "Scan wall-clock duration.",
		Buckets: prometheus.DefBuckets,
	}),
}

func init() {
	prometheus.MustRegister(metrics.scansStarted, metrics.signalsEmitted, metrics.rejections, metrics.scanDuration)
}

// Sink is the append-only event sink shared by every worker. Each Emit
// appends to one shared slice under a short mutex (the append is not
// lock-free), then fans the event out to subscriber channels without
// blocking on a slow reader.
type Sink struct {
	seq        int64
	mu         sync.Mutex
	events     []Event
	subscribers []chan Event
}

// NewSink builds an empty sink.
func NewSink() *Sink { return &Sink{} }

// Emit assigns the next monotonic sequence number and appends the event,
// updating the matching Prometheus metrics and fanning out to subscribers.
func (s *Sink) Emit(runID string, typ EventType, payload map[string]any) Event {
	e := Event{
		Sequence: atomic.AddInt64(&s.seq, 1), Type: typ, RunID: runID,
		Timestamp: time.Now(), Payload: payload,
	}

	switch typ {
	case ScanStarted:
		metrics.scansStarted.Inc()
	case SignalGenerated:
		metrics.signalsEmitted.Inc()
	case SignalRejected:
		if reason, ok := payload["reason"].(string); ok {
			metrics.rejections.WithLabelValues(reason).Inc()
		}
	case ScanCompleted:
		if d, ok := payload["duration_s"].(float64); ok {
			metrics.scanDuration.Observe(d)
		}
	}

	s.mu.Lock()
	s.events = append(s.events, e)
	subs := append([]chan Event(nil), s.subscribers...)
	s.mu.Unlock()

	log.Debug().Str("run_id", runID).Str("event", string(typ)).Int64("seq", e.Sequence).Msg("telemetry")

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber: drop rather than block the emitting worker.
		}
	}
	return e
}

// Subscribe returns a channel receiving all future events (non-blocking;
// a slow reader drops events rather than stalling the sink).
func (s *Sink) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// Events returns a snapshot of everything emitted so far.
func (s *Sink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// TracePayload converts a scoring.Trace into the telemetry payload shape.
func TracePayload(t scoring.Trace) map[string]any {
	return map[string]any{
		"symbol": t.Symbol, "direction": t.Direction, "final_score": t.FinalScore,
		"verdict": t.Verdict, "reason": t.Reason,
	}
}
