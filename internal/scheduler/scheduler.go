package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"distask/internal/eventbus"
	"distask/internal/runtime/supervisor"
	"distask/pkg/logx"
)

var (
	ErrNotRunning     = errors.New("scheduler: not running")
	ErrAlreadyRunning = errors.New("scheduler: already running")
)

// Engine is one periodic unit of work. Run receives the tick time; an error
// aborts the remaining engines of that tick.
type Engine interface {
	Name() string
	Run(ctx context.Context, now time.Time) error
}

// TickReport describes one tick. It is also the payload of
// eventbus.TopicTickDone.
type TickReport struct {
	ID       string
	At       time.Time
	Ran      []string
	Skipped  bool
	Duration time.Duration
	Err      error
}

type Option func(*Scheduler)

// WithClock overrides the time source handed to engines.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReady delays the first tick until ready is closed.
func WithReady(ready <-chan struct{}) Option {
	return func(s *Scheduler) { s.ready = ready }
}

func WithBus(bus eventbus.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

type Scheduler struct {
	engines []Engine
	spec    TickSpec
	log     logx.Logger
	now     func() time.Time
	ready   <-chan struct{}
	bus     eventbus.Bus

	tickMu sync.Mutex

	mu  sync.Mutex
	sup *supervisor.Supervisor
}

// New builds a scheduler running engines in the given order on the tick
// schedule (empty means DefaultTick).
func New(tick string, engines []Engine, log logx.Logger, opts ...Option) (*Scheduler, error) {
	spec, err := ParseTick(tick)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		engines: append([]Engine(nil), engines...),
		spec:    spec,
		log:     log,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Scheduler) Spec() TickSpec { return s.spec }

// Engines returns the engine names in run order.
func (s *Scheduler) Engines() []string {
	out := make([]string, 0, len(s.engines))
	for _, e := range s.engines {
		out = append(out, e.Name())
	}
	return out
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup != nil
}

// Start launches the loop under a supervisor tied to ctx. The loop is
// restarted with backoff if it panics.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return ErrAlreadyRunning
	}
	s.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(s.log))
	s.sup.GoRestart("scheduler.loop", s.loop, supervisor.WithRestartBackoff(time.Second, time.Minute))
	s.log.Info("scheduler started", logx.String("tick", s.spec.Raw), logx.Int("engines", len(s.engines)))
	return nil
}

// Stop cancels the loop and waits for it (and any in-flight tick) to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return ErrNotRunning
	}
	err := sup.Stop(ctx)
	s.log.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context) error {
	if s.ready != nil {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ready:
		}
	}
	for {
		started := s.now()
		s.Tick(ctx)
		if !sleep(ctx, untilNext(s.spec, started, s.now())) {
			return nil
		}
	}
}

// untilNext is the wait before the tick that follows one begun at started.
// Anchoring on the start keeps a slow tick from pushing the cadence past a
// minute; an overrun tick is followed immediately.
func untilNext(spec TickSpec, started, now time.Time) time.Duration {
	return spec.Next(started).Sub(now)
}

// Tick runs every engine once, in order. A tick already in progress makes
// this call a no-op reported as Skipped.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	if !s.tickMu.TryLock() {
		s.log.Debug("tick skipped, previous tick still running")
		return TickReport{Skipped: true}
	}
	defer s.tickMu.Unlock()

	started := time.Now()
	rep := TickReport{ID: uuid.NewString(), At: s.now()}
	log := s.log.With(logx.String("tick", rep.ID))

	for _, e := range s.engines {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			break
		}
		err := runEngine(ctx, e, rep.At)
		rep.Ran = append(rep.Ran, e.Name())
		if err != nil {
			rep.Err = fmt.Errorf("%s: %w", e.Name(), err)
			if !errors.Is(err, context.Canceled) {
				log.Error("engine failed, aborting tick", logx.String("engine", e.Name()), logx.Err(err))
			}
			break
		}
	}
	rep.Duration = time.Since(started)

	log.Debug("tick done", logx.Int("engines", len(rep.Ran)), logx.Duration("took", rep.Duration))
	eventbus.Publish(s.bus, eventbus.TopicTickDone, rep)
	return rep
}

func runEngine(ctx context.Context, e Engine, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return e.Run(ctx, now)
}

// sleep waits d or until ctx is done; it reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
