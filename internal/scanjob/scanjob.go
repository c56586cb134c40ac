// Package scanjob is the scan job facade: create_scan/get_job/cancel, backed
// by a bounded worker pool and cooperative cancellation. One symbol is one
// unit of work; stages within a symbol are never further parallelized.
package scanjob

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/driftscan/confluence/internal/domain/scoring"
	"github.com/driftscan/confluence/internal/pipeline"
	"github.com/driftscan/confluence/internal/telemetry"
)

// Status is a job's lifecycle state.
type Status string

const (
	Pending   Status = "pending"
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
)

// DefaultWorkers is the default worker-pool size for a scan.
const DefaultWorkers = 6

// DefaultWallClockLimit is the soft limit after which a running scan is
// cancelled even if symbols remain queued.
const DefaultWallClockLimit = 10 * time.Minute

// Job is the mutable state of one scan run. All access beyond the snapshot
// returned by Manager.GetJob must go through the Manager.
type Job struct {
	RunID         string
	Status        Status
	Total         int
	Progress      int
	CurrentSymbol string
	Signals       []scoring.Trace
	Rejections    []pipeline.Outcome
	Error         string
	StartedAt     time.Time
	CompletedAt   time.Time

	cancel context.CancelFunc
}

// snapshot returns a value copy safe to hand to a caller outside the lock.
func (j *Job) snapshot() Job {
	cp := *j
	cp.Signals = append([]scoring.Trace(nil), j.Signals...)
	cp.Rejections = append([]pipeline.Outcome(nil), j.Rejections...)
	cp.cancel = nil
	return cp
}

// Manager owns every job's lifecycle and the worker-pool size; each scan's
// pipeline.Deps is passed in to CreateScan.
type Manager struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	workers int
}

// NewManager builds a job manager with the given worker-pool size (0 uses
// DefaultWorkers).
func NewManager(workers int) *Manager {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Manager{jobs: make(map[string]*Job), workers: workers}
}

// CreateScan starts a new scan over symbols in a background goroutine and
// returns its run_id immediately; the job begins in Pending and transitions
// to Running as soon as the worker pool starts consuming symbols.
func (m *Manager) CreateScan(parent context.Context, symbols []string, direction scoring.Direction, deps pipeline.Deps) string {
	runID := uuid.NewString()
	ctx, cancel := context.WithTimeout(parent, DefaultWallClockLimit)

	job := &Job{RunID: runID, Status: Pending, Total: len(symbols), cancel: cancel}

	m.mu.Lock()
	m.jobs[runID] = job
	m.mu.Unlock()

	deps.Telemetry.Emit(runID, telemetry.ScanStarted, map[string]any{"total": len(symbols)})

	go m.run(ctx, runID, symbols, direction, deps)
	return runID
}

func (m *Manager) run(ctx context.Context, runID string, symbols []string, direction scoring.Direction, deps pipeline.Deps) {
	start := time.Now()
	m.transition(runID, Running, func(j *Job) { j.StartedAt = start })

	work := make(chan string)
	results := make(chan pipeline.Outcome)
	var wg sync.WaitGroup

	workers := m.workers
	if workers > len(symbols) && len(symbols) > 0 {
		workers = len(symbols)
	}
	if workers <= 0 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range work {
				if ctx.Err() != nil {
					results <- pipeline.Outcome{Symbol: symbol, RejectStage: "cancelled", Reason: ctx.Err().Error()}
					continue
				}
				m.setCurrentSymbol(runID, symbol)
				results <- pipeline.RunSymbol(ctx, runID, symbol, direction, deps)
			}
		}()
	}

	go func() {
		defer close(work)
		for _, s := range symbols {
			select {
			case work <- s:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for outcome := range results {
		m.recordOutcome(runID, outcome)
	}

	final := Completed
	var errMsg string
	if err := ctx.Err(); err != nil {
		if err == context.Canceled {
			final = Cancelled
		} else {
			final = Failed
			errMsg = err.Error()
		}
	}

	m.transition(runID, final, func(j *Job) {
		j.CompletedAt = time.Now()
		j.Error = errMsg
	})
	deps.Telemetry.Emit(runID, telemetry.ScanCompleted, map[string]any{
		"status": string(final), "duration_s": time.Since(start).Seconds(),
	})
	log.Info().Str("run_id", runID).Str("status", string(final)).Dur("duration", time.Since(start)).Msg("scanjob: scan finished")
}

func (m *Manager) setCurrentSymbol(runID, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[runID]; ok {
		j.CurrentSymbol = symbol
	}
}

func (m *Manager) recordOutcome(runID string, outcome pipeline.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[runID]
	if !ok {
		return
	}
	j.Progress++
	if outcome.Signal != nil {
		j.Signals = append(j.Signals, *outcome.Signal)
	} else {
		j.Rejections = append(j.Rejections, outcome)
	}
}

func (m *Manager) transition(runID string, status Status, mutate func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[runID]; ok {
		j.Status = status
		if mutate != nil {
			mutate(j)
		}
	}
}

// GetJob returns a value-copy snapshot of the job's current state.
func (m *Manager) GetJob(runID string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[runID]
	if !ok {
		return Job{}, false
	}
	return j.snapshot(), true
}

// Cancel requests cooperative cancellation of a running (or pending) job.
// Already-terminal jobs return false.
func (m *Manager) Cancel(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[runID]
	if !ok || j.Status == Completed || j.Status == Failed || j.Status == Cancelled {
		return false
	}
	if j.cancel != nil {
		j.cancel()
	}
	return true
}

// Schedule is a minimal recurring-scan configuration: every Interval, run
// Symbols through CreateScan. There is no cron expression support — just a
// fixed period, which is all the facade's supplement calls for.
type Schedule struct {
	Symbols   []string
	Direction scoring.Direction
	Interval  time.Duration
}

// Scheduler drives Schedule entries on a ticker, calling CreateScan on each
// tick until Stop is called.
type Scheduler struct {
	manager *Manager
	deps    pipeline.Deps
	stop    chan struct{}
}

// NewScheduler builds a scheduler bound to a manager and a fixed Deps value
// reused for every scheduled run.
func NewScheduler(m *Manager, deps pipeline.Deps) *Scheduler {
	return &Scheduler{manager: m, deps: deps, stop: make(chan struct{})}
}

// Start launches one goroutine per schedule entry; it returns immediately.
func (s *Scheduler) Start(ctx context.Context, schedules []Schedule) {
	for _, sched := range schedules {
		go s.runSchedule(ctx, sched)
	}
}

func (s *Scheduler) runSchedule(ctx context.Context, sched Schedule) {
	ticker := time.NewTicker(sched.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runID := s.manager.CreateScan(ctx, sched.Symbols, sched.Direction, s.deps)
			log.Info().Str("run_id", runID).Msg("scanjob: scheduled scan started")
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts all scheduled runs; in-flight scans are unaffected.
func (s *Scheduler) Stop() { close(s.stop) }
