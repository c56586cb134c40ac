// Package retry implements the shared retry policy consumed by every
// exchange adapter: exponential backoff with mandatory jitter, paced by a
// per-host token bucket and guarded by a per-provider circuit breaker.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/driftscan/confluence/internal/errs"
	"github.com/driftscan/confluence/internal/telemetry/providers"
)

// Policy is the exponential-backoff-plus-jitter retry configuration.
type Policy struct {
	BaseBackoff   time.Duration // B
	MaxRetries    int           // R, default 3
	JitterPct     float64       // uniform random jitter in [0, JitterPct*currentBackoff]
}

// DefaultPolicy retries a call up to 3 times with exponential backoff.
var DefaultPolicy = Policy{BaseBackoff: 250 * time.Millisecond, MaxRetries: 3, JitterPct: 0.25}

// isTransient reports whether an error should be retried: rate-limit or
// network-transient classifications only.
func isTransient(err error) bool {
	kind := errs.KindOf(err)
	return kind == errs.RateLimited || kind == errs.NetworkTransient
}

// Do runs fn, retrying on transient failures with exponential backoff and
// jitter. Jitter is mandatory: without it, concurrent workers retrying the
// same provider would resynchronize and hammer it in lockstep. The R+1-th
// failure (i.e. after MaxRetries retries) propagates unchanged, mapped to
// DataUnavailable by the caller.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	backoff := p.BaseBackoff
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxRetries {
			break
		}
		jitter := time.Duration(rand.Float64() * p.JitterPct * float64(backoff))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return lastErr
}

// Manager composes a per-provider circuit breaker with a per-host rate
// limiter ahead of the backoff policy.
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	limiters map[string]*rate.Limiter
	policy   Policy
	rps      float64
	burst    int
	metrics  *providers.MetricsCollector
}

// NewManager builds a retry manager with the given shared policy and default
// per-host rate (requests/sec, burst). Per-provider request/error/latency and
// circuit-breaker-state metrics are tracked internally and readable via
// Metrics for the ops dashboard.
func NewManager(policy Policy, rps float64, burst int) *Manager {
	return &Manager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		limiters: make(map[string]*rate.Limiter),
		policy:   policy,
		rps:      rps,
		burst:    burst,
		metrics:  providers.NewMetricsCollector(),
	}
}

// Metrics exposes the per-provider request/latency/circuit-state metrics
// collected across every Call.
func (m *Manager) Metrics() *providers.MetricsCollector { return m.metrics }

func (m *Manager) breakerFor(provider string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[provider]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.metrics.UpdateCircuitState(name, circuitStateName(to))
		},
	})
	m.breakers[provider] = b
	return b
}

func (m *Manager) limiterFor(host string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(m.rps), m.burst)
	m.limiters[host] = l
	return l
}

// Call paces against the host's limiter, then runs fn inside both the
// provider's circuit breaker and the shared backoff-with-jitter policy.
func (m *Manager) Call(ctx context.Context, provider, host string, fn func(ctx context.Context) error) error {
	if err := m.limiterFor(host).Wait(ctx); err != nil {
		return err
	}
	breaker := m.breakerFor(provider)
	start := time.Now()
	_, err := breaker.Execute(func() (any, error) {
		return nil, Do(ctx, m.policy, fn)
	})
	latencyMS := float64(time.Since(start).Milliseconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		m.metrics.RecordError(provider, "circuit_open")
		return errs.Wrap(errs.DataUnavailable, "circuit open for provider "+provider, err)
	}
	if err != nil {
		m.metrics.RecordError(provider, string(errs.KindOf(err)))
		return err
	}
	m.metrics.RecordRequest(provider, latencyMS, false)
	return nil
}

func circuitStateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
