// Package supervisor runs detached background work on behalf of request
// paths: fire-and-forget tasks, per-key serial queues and bounded slot
// pools for IO and CPU bound work.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/MrSnakeDoc/sitemeta/internal/logger"
	"github.com/MrSnakeDoc/sitemeta/internal/metrics"
)

// Task is a unit of background work. Its context is detached from the
// caller that scheduled it and is cancelled on shutdown or timeout.
type Task func(ctx context.Context) error

type Options struct {
	IOWorkers   int64         // concurrent slots for store and network reads
	CPUWorkers  int64         // concurrent slots for decoding and extraction
	TaskTimeout time.Duration // per-task budget, 0 = none
}

type Supervisor struct {
	log         logger.Logger
	base        context.Context
	cancel      context.CancelFunc
	io          *semaphore.Weighted
	cpu         *semaphore.Weighted
	taskTimeout time.Duration

	mu     sync.Mutex
	closed bool
	queues map[string]*serialQueue
	wg     sync.WaitGroup
}

type queuedTask struct {
	name string
	fn   Task
}

// serialQueue holds the pending tasks of one key. It exists only while it
// has work; the worker draining it removes it from the map when empty.
type serialQueue struct {
	tasks []queuedTask
}

func New(opts Options, log logger.Logger) *Supervisor {
	if opts.IOWorkers <= 0 {
		opts.IOWorkers = 1
	}
	if opts.CPUWorkers <= 0 {
		opts.CPUWorkers = 1
	}

	base, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		log:         log,
		base:        base,
		cancel:      cancel,
		io:          semaphore.NewWeighted(opts.IOWorkers),
		cpu:         semaphore.NewWeighted(opts.CPUWorkers),
		taskTimeout: opts.TaskTimeout,
		queues:      make(map[string]*serialQueue),
	}
}

// Go runs fn in its own goroutine. It reports false when the supervisor is
// shutting down and the task was dropped.
func (s *Supervisor) Go(name string, fn Task) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.reject(name, "")
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.IncTasksInFlight()
	go func() {
		defer s.wg.Done()
		defer metrics.DecTasksInFlight()
		s.run(name, "", fn)
	}()
	return true
}

// Enqueue appends fn to the serial queue of key. Tasks sharing a key run
// one at a time in enqueue order; different keys proceed in parallel.
func (s *Supervisor) Enqueue(key, name string, fn Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.reject(name, key)
		return false
	}

	metrics.IncTasksInFlight()
	q, ok := s.queues[key]
	if ok {
		q.tasks = append(q.tasks, queuedTask{name: name, fn: fn})
		return true
	}

	q = &serialQueue{tasks: []queuedTask{{name: name, fn: fn}}}
	s.queues[key] = q
	s.wg.Add(1)
	go s.drain(key, q)
	return true
}

func (s *Supervisor) drain(key string, q *serialQueue) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(q.tasks) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		next := q.tasks[0]
		q.tasks[0] = queuedTask{}
		q.tasks = q.tasks[1:]
		s.mu.Unlock()

		s.run(next.name, key, next.fn)
		metrics.DecTasksInFlight()
	}
}

// run executes one task. Panics and errors end here.
func (s *Supervisor) run(name, key string, fn Task) {
	id := uuid.NewString()
	start := time.Now()

	ctx := s.base
	if s.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.taskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveTaskPanic()
			s.log.Error("background task panicked",
				logger.String("task", name),
				logger.String("task_id", id),
				logger.String("key", key),
				logger.String("panic", fmt.Sprint(r)),
				logger.String("stack", string(debug.Stack())),
			)
		}
	}()

	if err := fn(ctx); err != nil {
		s.log.Warn("background task failed",
			logger.String("task", name),
			logger.String("task_id", id),
			logger.String("key", key),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err),
		)
		return
	}

	s.log.Debug("background task done",
		logger.String("task", name),
		logger.String("task_id", id),
		logger.Duration("elapsed", time.Since(start)),
	)
}

func (s *Supervisor) reject(name, key string) {
	metrics.ObserveTaskRejected()
	s.log.Warn("background task rejected, supervisor is shutting down",
		logger.String("task", name),
		logger.String("key", key),
	)
}

// IO runs fn while holding an IO slot.
func (s *Supervisor) IO(ctx context.Context, fn func(ctx context.Context) error) error {
	return withSlot(ctx, s.io, fn)
}

// CPU runs fn while holding a CPU slot.
func (s *Supervisor) CPU(ctx context.Context, fn func(ctx context.Context) error) error {
	return withSlot(ctx, s.cpu, fn)
}

func withSlot(ctx context.Context, sem *semaphore.Weighted, fn func(ctx context.Context) error) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire slot: %w", err)
	}
	defer sem.Release(1)
	return fn(ctx)
}

// Context is the detached base context shared by every task.
func (s *Supervisor) Context() context.Context {
	return s.base
}

// Pending returns the number of keys with queued or running work.
func (s *Supervisor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

// Wait blocks until every accepted task has finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting work and waits for in-flight tasks until ctx
// expires. Tasks still running afterwards see their context cancelled.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	defer s.cancel()

	select {
	case <-done:
		s.log.Info("background tasks drained")
		return nil
	case <-ctx.Done():
		s.log.Warn("shutdown deadline reached with background tasks pending",
			logger.Int("queues", s.Pending()),
		)
		return ctx.Err()
	}
}
