package core

// run_limiter.go tracks import runs inside one process.
//
// The HTTP upload endpoint and the inbox watcher can both start runs. Runs
// share the sink and the "first write replaces" semantics are per run, so the
// limiter defaults to a single slot. A source (file name or path) may only be
// imported by one run at a time: a second request for the same source fails
// immediately with ErrSourceInProgress instead of queueing a duplicate
// refresh. Callers that cannot get a slot within maxWait fail with
// ErrTooManyRuns.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTooManyRuns is returned when all run slots are occupied and the wait
// timeout expires.
var ErrTooManyRuns = errors.New("too many concurrent imports, please try again later")

// ErrSourceInProgress is returned when the same source is already being imported.
var ErrSourceInProgress = errors.New("source is already being imported")

// DefaultMaxConcurrentRuns is the default limit for parallel runs.
const DefaultMaxConcurrentRuns = 1

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// ActiveRun describes a run holding a slot.
type ActiveRun struct {
	ID        uuid.UUID `json:"id"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
}

// RunSlot is a granted run slot. Release it exactly once when the run ends.
type RunSlot struct {
	limiter *RunLimiter
	run     ActiveRun
	once    sync.Once
}

// Run returns the identity assigned to the run.
func (s *RunSlot) Run() ActiveRun { return s.run }

// Release frees the slot and the source. Extra calls are no-ops.
func (s *RunSlot) Release() {
	s.once.Do(func() { s.limiter.release(s.run) })
}

// RunLimiter bounds concurrent import runs and rejects duplicate sources.
type RunLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	claimed map[string]struct{} // sources waiting for or holding a slot
	running []ActiveRun         // in start order
	idle    chan struct{}       // closed while nothing is running
}

// NewRunLimiter creates a limiter allowing at most maxConcurrent simultaneous runs.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	idle := make(chan struct{})
	close(idle)
	return &RunLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		claimed: make(map[string]struct{}),
		idle:    idle,
	}
}

// Acquire claims source and waits for a run slot. An empty source is never
// considered a duplicate. Returns ErrSourceInProgress without waiting when
// source is claimed, ErrTooManyRuns if maxWait expires, or ctx.Err() if ctx
// ends first.
func (l *RunLimiter) Acquire(ctx context.Context, source string) (*RunSlot, error) {
	if err := l.claim(source); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.slots <- struct{}{}:
		return l.start(source), nil
	case <-waitCtx.Done():
		l.unclaim(source)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTooManyRuns
	}
}

// TryAcquire is Acquire without waiting for a slot.
func (l *RunLimiter) TryAcquire(source string) (*RunSlot, error) {
	if err := l.claim(source); err != nil {
		return nil, err
	}
	select {
	case l.slots <- struct{}{}:
		return l.start(source), nil
	default:
		l.unclaim(source)
		return nil, ErrTooManyRuns
	}
}

func (l *RunLimiter) claim(source string) error {
	if source == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.claimed[source]; busy {
		return fmt.Errorf("%w: %s", ErrSourceInProgress, source)
	}
	l.claimed[source] = struct{}{}
	return nil
}

func (l *RunLimiter) unclaim(source string) {
	if source == "" {
		return
	}
	l.mu.Lock()
	delete(l.claimed, source)
	l.mu.Unlock()
}

func (l *RunLimiter) start(source string) *RunSlot {
	run := ActiveRun{ID: uuid.New(), Source: source, StartedAt: time.Now()}

	l.mu.Lock()
	if len(l.running) == 0 {
		l.idle = make(chan struct{})
	}
	l.running = append(l.running, run)
	l.mu.Unlock()

	return &RunSlot{limiter: l, run: run}
}

func (l *RunLimiter) release(run ActiveRun) {
	l.mu.Lock()
	for i, r := range l.running {
		if r.ID == run.ID {
			l.running = append(l.running[:i], l.running[i+1:]...)
			break
		}
	}
	if run.Source != "" {
		delete(l.claimed, run.Source)
	}
	if len(l.running) == 0 {
		close(l.idle)
	}
	l.mu.Unlock()

	<-l.slots
}

// ActiveCount returns the number of runs in progress.
func (l *RunLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

// MaxConcurrent returns the slot count.
func (l *RunLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// WaitForDrain blocks until no run is active or ctx is cancelled.
// Used during shutdown so in-flight imports finish their current sheet.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunLimiterStatus is a snapshot of the limiter's state.
type RunLimiterStatus struct {
	Active        int         `json:"active"`
	Available     int         `json:"available"`
	MaxConcurrent int         `json:"max_concurrent"`
	Runs          []ActiveRun `json:"runs"`
}

// Status returns the current limiter state for the status endpoint.
// Runs are in start order.
func (l *RunLimiter) Status() RunLimiterStatus {
	l.mu.Lock()
	runs := append(make([]ActiveRun, 0, len(l.running)), l.running...)
	l.mu.Unlock()

	return RunLimiterStatus{
		Active:        len(runs),
		Available:     cap(l.slots) - len(runs),
		MaxConcurrent: cap(l.slots),
		Runs:          runs,
	}
}
