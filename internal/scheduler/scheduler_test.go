package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"distask/internal/eventbus"
	"distask/internal/scheduler"
	"distask/pkg/logx"
)

var errBoom = errors.New("boom")

type recorder struct {
	mu    sync.Mutex
	names []string
	times []time.Time
}

func (r *recorder) add(name string, now time.Time) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.times = append(r.times, now)
	r.mu.Unlock()
}

func (r *recorder) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

type stubEngine struct {
	name  string
	rec   *recorder
	err   error
	panic bool
	run   func(ctx context.Context)
}

func (e *stubEngine) Name() string { return e.name }

func (e *stubEngine) Run(ctx context.Context, now time.Time) error {
	if e.rec != nil {
		e.rec.add(e.name, now)
	}
	if e.run != nil {
		e.run(ctx)
	}
	if e.panic {
		panic("engine exploded")
	}
	return e.err
}

func newScheduler(t *testing.T, engines []scheduler.Engine, opts ...scheduler.Option) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New("", engines, logx.Nop(), opts...)
	require.NoError(t, err)
	return s
}

func TestTickRunsEnginesInOrder(t *testing.T) {
	rec := &recorder{}
	s := newScheduler(t, []scheduler.Engine{
		&stubEngine{name: "due_date", rec: rec},
		&stubEngine{name: "digest", rec: rec},
		&stubEngine{name: "escalation", rec: rec},
		&stubEngine{name: "snoozed", rec: rec},
	})

	rep := s.Tick(context.Background())

	require.NoError(t, rep.Err)
	assert.False(t, rep.Skipped)
	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, []string{"due_date", "digest", "escalation", "snoozed"}, rec.ran())
	assert.Equal(t, rec.ran(), rep.Ran)
	assert.Equal(t, []string{"due_date", "digest", "escalation", "snoozed"}, s.Engines())
}

func TestTickAbortsOnEngineError(t *testing.T) {
	rec := &recorder{}
	s := newScheduler(t, []scheduler.Engine{
		&stubEngine{name: "first", rec: rec},
		&stubEngine{name: "second", rec: rec, err: errBoom},
		&stubEngine{name: "third", rec: rec},
	})

	rep := s.Tick(context.Background())

	require.ErrorIs(t, rep.Err, errBoom)
	assert.Contains(t, rep.Err.Error(), "second")
	assert.Equal(t, []string{"first", "second"}, rec.ran())

	// The next tick starts from the top again.
	s.Tick(context.Background())
	assert.Equal(t, []string{"first", "second", "first", "second"}, rec.ran())
}

func TestTickRecoversEnginePanic(t *testing.T) {
	rec := &recorder{}
	s := newScheduler(t, []scheduler.Engine{
		&stubEngine{name: "bad", rec: rec, panic: true},
		&stubEngine{name: "after", rec: rec},
	})

	rep := s.Tick(context.Background())

	require.Error(t, rep.Err)
	assert.Contains(t, rep.Err.Error(), "engine exploded")
	assert.Equal(t, []string{"bad"}, rec.ran())
}

func TestTickPassesClockTime(t *testing.T) {
	rec := &recorder{}
	fixed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := newScheduler(t,
		[]scheduler.Engine{&stubEngine{name: "a", rec: rec}, &stubEngine{name: "b", rec: rec}},
		scheduler.WithClock(func() time.Time { return fixed }),
	)

	rep := s.Tick(context.Background())

	assert.Equal(t, fixed, rep.At)
	require.Len(t, rec.times, 2)
	assert.Equal(t, fixed, rec.times[0])
	assert.Equal(t, fixed, rec.times[1])
}

func TestTickSkipsWhileRunning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	rec := &recorder{}
	s := newScheduler(t, []scheduler.Engine{&stubEngine{name: "slow", rec: rec, run: func(context.Context) {
		close(entered)
		<-release
	}}})

	done := make(chan scheduler.TickReport, 1)
	go func() { done <- s.Tick(context.Background()) }()
	<-entered

	rep := s.Tick(context.Background())
	assert.True(t, rep.Skipped)
	assert.Empty(t, rep.Ran)

	close(release)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, []string{"slow"}, rec.ran())
}

func TestTickStopsOnCanceledContext(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	s := newScheduler(t, []scheduler.Engine{
		&stubEngine{name: "first", rec: rec, run: func(context.Context) { cancel() }},
		&stubEngine{name: "second", rec: rec},
	})

	rep := s.Tick(ctx)

	require.ErrorIs(t, rep.Err, context.Canceled)
	assert.Equal(t, []string{"first"}, rec.ran())
}

func TestTickPublishesReport(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := newScheduler(t, []scheduler.Engine{&stubEngine{name: "a"}}, scheduler.WithBus(bus))
	rep := s.Tick(context.Background())

	select {
	case e := <-events:
		assert.Equal(t, eventbus.TopicTickDone, e.Type)
		got, ok := e.Data.(scheduler.TickReport)
		require.True(t, ok)
		assert.Equal(t, rep.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("no tick event published")
	}
}

func TestStartWaitsForReadyAndStopInterruptsSleep(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ticks := make(chan struct{}, 16)
	ready := make(chan struct{})
	s, err := scheduler.New("@every 1s", []scheduler.Engine{&stubEngine{name: "count", run: func(context.Context) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}}}, logx.Nop(), scheduler.WithReady(ready))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())

	select {
	case <-ticks:
		t.Fatal("ticked before ready")
	case <-time.After(50 * time.Millisecond):
	}

	close(ready)
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick after ready")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	started := time.Now()
	require.NoError(t, s.Stop(stopCtx))
	assert.Less(t, time.Since(started), 900*time.Millisecond)
	assert.False(t, s.Running())

	require.ErrorIs(t, s.Stop(stopCtx), scheduler.ErrNotRunning)
}

func TestStartTwice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newScheduler(t, nil, scheduler.WithReady(make(chan struct{})))
	require.NoError(t, s.Start(context.Background()))
	require.ErrorIs(t, s.Start(context.Background()), scheduler.ErrAlreadyRunning)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestStopFollowsParentContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	parent, cancelParent := context.WithCancel(context.Background())
	s := newScheduler(t, nil, scheduler.WithReady(make(chan struct{})))
	require.NoError(t, s.Start(parent))
	cancelParent()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestNewRejectsInvalidTick(t *testing.T) {
	_, err := scheduler.New("every fortnight", nil, logx.Nop())
	require.Error(t, err)
}
