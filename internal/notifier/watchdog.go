package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/northstaff/hragent/pkg/logging"
)

// Supervisor runs long-lived loops and restarts any that exit or stop
// heartbeating. Each loop receives a beat callback it must call at the top
// of every iteration.
type Supervisor struct {
	logger     *logging.Logger
	interval   time.Duration
	stuckAfter time.Duration

	mu    sync.Mutex
	beats map[string]time.Time

	order []string
	runs  map[string]func(ctx context.Context, beat func())
	live  map[string]*supervised
}

type supervised struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor(logger *logging.Logger, interval, stuckAfter time.Duration) *Supervisor {
	return &Supervisor{
		logger:     logger.Named("watchdog"),
		interval:   interval,
		stuckAfter: stuckAfter,
		beats:      make(map[string]time.Time),
		runs:       make(map[string]func(ctx context.Context, beat func())),
		live:       make(map[string]*supervised),
	}
}

func (s *Supervisor) Register(name string, run func(ctx context.Context, beat func())) {
	s.order = append(s.order, name)
	s.runs[name] = run
}

func (s *Supervisor) beat(name string) {
	s.mu.Lock()
	s.beats[name] = time.Now()
	s.mu.Unlock()
}

func (s *Supervisor) lastBeat(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beats[name]
}

func (s *Supervisor) start(ctx context.Context, name string) {
	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	run := s.runs[name]
	s.beat(name)
	go func() {
		defer close(done)
		run(taskCtx, func() { s.beat(name) })
	}()
	s.live[name] = &supervised{cancel: cancel, done: done}
}

// Run starts every registered loop and blocks until ctx is cancelled,
// restarting loops that finish unexpectedly or whose heartbeat goes stale.
func (s *Supervisor) Run(ctx context.Context) error {
	for _, name := range s.order {
		s.start(ctx, name)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, name := range s.order {
				s.live[name].cancel()
			}
			for _, name := range s.order {
				<-s.live[name].done
			}
			return ctx.Err()
		case <-ticker.C:
			for _, name := range s.order {
				s.check(ctx, name)
			}
		}
	}
}

func (s *Supervisor) check(ctx context.Context, name string) {
	if ctx.Err() != nil {
		return
	}
	task := s.live[name]
	select {
	case <-task.done:
		s.logger.Error("task exited, restarting", "task", name)
	default:
		if time.Since(s.lastBeat(name)) < s.stuckAfter {
			return
		}
		s.logger.Error("task heartbeat stale, restarting", "task", name, "stuck_after", s.stuckAfter)
		task.cancel()
		<-task.done
	}
	s.start(ctx, name)
}
