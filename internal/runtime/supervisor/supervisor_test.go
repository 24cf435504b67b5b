package supervisor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"distask/internal/runtime/supervisor"
)

func stop(t *testing.T, s *supervisor.Supervisor) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Stop(ctx)
}

func TestGoRecordsFirstErrorAndCancels(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := supervisor.NewSupervisor(context.Background(), supervisor.WithCancelOnError(true))
	s.Go("failing", func(context.Context) error { return errors.New("boom") })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after error")
	}
	err := stop(t, s)
	require.Error(t, err)
	assert.Equal(t, "failing: boom", err.Error())
}

func TestGoRecoversPanic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := supervisor.NewSupervisor(context.Background())
	s.Go0("panicking", func(context.Context) { panic("oops") })

	err := s.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, err, s.Err())
	assert.Contains(t, err.Error(), "panicking: panic: oops")
	assert.NoError(t, s.Context().Err(), "panic must not cancel without WithCancelOnError")
	_ = stop(t, s)
}

func TestCanceledIsNotAnError(t *testing.T) {
	s := supervisor.NewSupervisor(context.Background())
	s.Go("ctx", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, stop(t, s))
}

func TestGoRestartRetriesUntilCleanReturn(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var runs atomic.Int32
	s := supervisor.NewSupervisor(context.Background())
	s.GoRestart("flaky", func(context.Context) error {
		switch runs.Add(1) {
		case 1:
			return errors.New("first")
		case 2:
			panic("second")
		}
		return nil
	}, supervisor.WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	require.NoError(t, s.Wait(context.Background()))
	assert.Equal(t, int32(3), runs.Load())
	assert.NoError(t, s.Err())
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := supervisor.NewSupervisor(context.Background())
	s.GoRestart("failing", func(context.Context) error {
		return errors.New("always")
	}, supervisor.WithRestartBackoff(time.Hour, time.Hour))

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	assert.NoError(t, stop(t, s))
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitHonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	s := supervisor.NewSupervisor(context.Background())
	s.Go0("stuck", func(context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, s.Wait(context.Background()))
}
