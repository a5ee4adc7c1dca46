package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/sitemeta/internal/logger"
)

func newTestSupervisor(t *testing.T, opts Options) *Supervisor {
	t.Helper()
	s := New(opts, logger.New("error", false))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func TestEnqueueKeepsFIFOOrderPerKey(t *testing.T) {
	s := newTestSupervisor(t, Options{})

	var mu sync.Mutex
	var got []int
	for i := 0; i < 200; i++ {
		i := i
		require.True(t, s.Enqueue("https://example.com", "append", func(context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}))
	}
	s.Wait()

	require.Len(t, got, 200)
	for i, v := range got {
		require.Equal(t, i, v, "task %d ran out of order", i)
	}
}

func TestEnqueueRunsUnrelatedKeysInParallel(t *testing.T) {
	s := newTestSupervisor(t, Options{})

	release := make(chan struct{})
	otherDone := make(chan struct{})

	s.Enqueue("a", "blocked", func(context.Context) error {
		<-release
		return nil
	})
	s.Enqueue("b", "free", func(context.Context) error {
		close(otherDone)
		return nil
	})

	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("task on key b was blocked by key a")
	}

	require.Equal(t, 1, s.Pending())
	close(release)
	s.Wait()
}

func TestQueuesAreCollectedWhenIdle(t *testing.T) {
	s := newTestSupervisor(t, Options{})

	for _, key := range []string{"a", "b", "c"} {
		s.Enqueue(key, "noop", func(context.Context) error { return nil })
	}
	s.Wait()

	require.Equal(t, 0, s.Pending())
}

func TestPanicsAndErrorsAreContained(t *testing.T) {
	s := newTestSupervisor(t, Options{})

	var ran atomic.Int32
	s.Go("panics", func(context.Context) error {
		panic("boom")
	})
	s.Go("fails", func(context.Context) error {
		return errors.New("nope")
	})
	s.Enqueue("k", "panics", func(context.Context) error {
		panic("queued boom")
	})
	s.Enqueue("k", "sibling", func(context.Context) error {
		ran.Add(1)
		return nil
	})
	s.Go("sibling", func(context.Context) error {
		ran.Add(1)
		return nil
	})
	s.Wait()

	require.Equal(t, int32(2), ran.Load())
	require.Equal(t, 0, s.Pending())
}

func TestTaskContextIsDetachedFromCaller(t *testing.T) {
	s := newTestSupervisor(t, Options{})

	caller, cancel := context.WithCancel(context.Background())
	var taskErr error
	s.Go("detached", func(ctx context.Context) error {
		<-caller.Done()
		taskErr = ctx.Err()
		return nil
	})
	cancel()
	s.Wait()

	require.NoError(t, taskErr)
}

func TestTaskTimeout(t *testing.T) {
	s := newTestSupervisor(t, Options{TaskTimeout: 20 * time.Millisecond})

	var taskErr error
	s.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		taskErr = ctx.Err()
		return taskErr
	})
	s.Wait()

	require.ErrorIs(t, taskErr, context.DeadlineExceeded)
}

func TestShutdownRejectsNewWork(t *testing.T) {
	s := New(Options{}, logger.New("error", false))
	require.NoError(t, s.Shutdown(context.Background()))

	require.False(t, s.Go("late", func(context.Context) error { return nil }))
	require.False(t, s.Enqueue("k", "late", func(context.Context) error { return nil }))
	require.Equal(t, 0, s.Pending())
}

func TestShutdownDrainsQueuedWork(t *testing.T) {
	s := New(Options{}, logger.New("error", false))

	var done atomic.Int32
	for i := 0; i < 10; i++ {
		s.Enqueue("k", "work", func(context.Context) error {
			time.Sleep(time.Millisecond)
			done.Add(1)
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.Equal(t, int32(10), done.Load())
}

func TestShutdownIsBestEffort(t *testing.T) {
	s := New(Options{}, logger.New("error", false))

	stopped := make(chan struct{})
	s.Go("stubborn", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("task context was not cancelled after shutdown")
	}
}

func TestSlotPoolsBoundConcurrency(t *testing.T) {
	s := newTestSupervisor(t, Options{IOWorkers: 1, CPUWorkers: 1})

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.IO(context.Background(), func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.IO(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The CPU pool is independent of the IO pool.
	require.NoError(t, s.CPU(context.Background(), func(context.Context) error { return nil }))

	close(release)
	require.Eventually(t, func() bool {
		return s.IO(context.Background(), func(context.Context) error { return nil }) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestSlotReturnsTaskError(t *testing.T) {
	s := newTestSupervisor(t, Options{})
	want := errors.New("read failed")

	err := s.CPU(context.Background(), func(context.Context) error { return want })
	require.ErrorIs(t, err, want)
}
