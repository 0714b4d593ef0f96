package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/court-rotation/internal/rotation"
)

// tickTimeout bounds a single tick so a wedged reservation service can
// never stall the schedule indefinitely.
const tickTimeout = 5 * time.Minute

// Logger is the minimal logging interface the scheduler needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Ticker is the engine surface the scheduler drives.
type Ticker interface {
	Tick(ctx context.Context) rotation.TickReport
}

// Scheduler drives the rotation engine: one tick immediately on start,
// then one per interval until closed. Trigger forces an off-schedule
// tick; because ticks are idempotent, a trigger racing the timer is
// harmless.
type Scheduler struct {
	engine   Ticker
	interval time.Duration
	logger   Logger

	trigger chan chan rotation.TickReport

	cancel  context.CancelFunc
	done    chan struct{}
	startMu sync.Mutex
	started bool
}

// New creates a scheduler ticking the engine every interval.
func New(engine Ticker, interval time.Duration, logger Logger) *Scheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		logger:   logger,
		trigger:  make(chan chan rotation.TickReport),
		done:     make(chan struct{}),
	}
}

// Start launches the tick loop. It returns immediately; the first tick
// runs in the background right away. Start is a no-op when called twice.
func (s *Scheduler) Start(ctx context.Context) {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
	s.logger.Info("rotation scheduler started", "interval", s.interval.String())
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	// Immediate first tick catches a session left behind by a restart.
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		case reply := <-s.trigger:
			reply <- s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) rotation.TickReport {
	tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
	defer cancel()

	report := s.engine.Tick(tickCtx)
	s.logger.Debug("tick complete", "action", string(report.Overall()))
	return report
}

// Trigger forces a tick on the scheduler's loop and returns its report.
// If the scheduler is not running, the tick is executed inline.
func (s *Scheduler) Trigger(ctx context.Context) rotation.TickReport {
	s.startMu.Lock()
	running := s.started
	s.startMu.Unlock()
	if !running {
		return s.tick(ctx)
	}

	reply := make(chan rotation.TickReport, 1)
	select {
	case s.trigger <- reply:
		select {
		case report := <-reply:
			return report
		case <-ctx.Done():
			return rotation.TickReport{}
		}
	case <-s.done:
		return s.tick(ctx)
	case <-ctx.Done():
		return rotation.TickReport{}
	}
}

// Close stops the tick loop and waits for an in-flight tick to finish.
func (s *Scheduler) Close() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("rotation scheduler stopped")
}
