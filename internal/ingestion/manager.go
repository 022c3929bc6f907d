package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-nearby/internal/pipeline"
)

// ErrCycleInProgress is returned by RunOnce while another cycle holds the lock.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// Syncer runs one sync cycle. *pipeline.Pipeline satisfies it.
type Syncer interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// Status describes the most recent finished cycle.
type Status struct {
	LastRun    time.Time
	LastResult pipeline.Result
	LastError  string
	Running    bool
}

// Manager schedules sync cycles on a ticker and guarantees they never overlap,
// whether they come from the ticker or from RunOnce.
type Manager struct {
	syncer   Syncer
	interval time.Duration
	clock    clockwork.Clock

	cycle sync.Mutex

	mu     sync.RWMutex
	status Status

	wg sync.WaitGroup
}

func NewManager(syncer Syncer, interval time.Duration, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		syncer:   syncer,
		interval: interval,
		clock:    clock,
	}
}

// Start runs an initial cycle and then one per interval until ctx is done.
// A non-positive interval runs the initial cycle only.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	slog.Info("starting sync scheduler", "interval", m.interval)

	// Initial sync
	m.tick(ctx)

	if m.interval <= 0 {
		return
	}

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler shutting down")
			return
		case <-ticker.Chan():
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	_, err := m.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		slog.Info("skipping scheduled sync, previous cycle still running")
	case err != nil:
		slog.Error("sync failed", "error", err)
	}
}

// RunOnce runs a cycle now, or returns ErrCycleInProgress without waiting.
func (m *Manager) RunOnce(ctx context.Context) (pipeline.Result, error) {
	if !m.cycle.TryLock() {
		return pipeline.Result{}, ErrCycleInProgress
	}
	defer m.cycle.Unlock()

	m.setRunning(true)
	res, err := m.syncer.Run(ctx)
	m.finish(res, err)
	return res, err
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Running = running
}

func (m *Manager) finish(res pipeline.Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = Status{
		LastRun:    m.clock.Now(),
		LastResult: res,
	}
	if err != nil {
		m.status.LastError = err.Error()
	}
}

func (m *Manager) Stop() {
	m.wg.Wait()
	slog.Info("sync scheduler stopped")
}
