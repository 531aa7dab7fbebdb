// Package queue provides an ordered, single-worker task queue that can be held
// suspended until some precondition is met.
//
// The lifecycle is a small state machine:
//
//	Suspended --Resume--> Active --BeginReset--> Resetting --FinishReset--> Suspended
//
// While Suspended or Resetting, submitted tasks accumulate in submission order.
// Resume drains them in FIFO order and from then on every submission runs as
// soon as the worker is free. The Resetting leg is the only way back to
// Suspended; it exists so a full state wipe can re-run registration.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// State is the lifecycle state of a Queue.
type State int

const (
	// Suspended queues accept tasks but do not run them.
	Suspended State = iota
	// Active queues run tasks in submission order.
	Active
	// Resetting queues are on their way back to Suspended and run nothing.
	Resetting
)

func (s State) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Active:
		return "active"
	case Resetting:
		return "resetting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Predefined queue errors.
var (
	// ErrInvalidTransition is returned for a lifecycle change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid queue state transition")

	// ErrClosed is returned when operating on a closed queue.
	ErrClosed = errors.New("queue is closed")
)

// Task is a unit of deferred work.
type Task func()

// Config holds configuration for a Queue.
type Config struct {
	// Name identifies the queue in logs.
	Name string

	// Suspended starts the queue in the Suspended state.
	Suspended bool

	// Logger receives lifecycle and panic logs.
	Logger zerolog.Logger

	// OnDepthChange, if set, is called with +1 when a task is enqueued and -1
	// when it finishes. Used for queue depth metrics.
	OnDepthChange func(delta int64)
}

// Queue is a FIFO task queue served by a single goroutine.
type Queue struct {
	name          string
	logger        zerolog.Logger
	onDepthChange func(delta int64)

	mu     sync.Mutex
	cond   *sync.Cond
	state  State
	tasks   []Task
	running bool
	closed  bool
	done    chan struct{}
}

// New creates a queue and starts its worker.
func New(cfg Config) *Queue {
	state := Active
	if cfg.Suspended {
		state = Suspended
	}

	q := &Queue{
		name:          cfg.Name,
		logger:        cfg.Logger.With().Str("queue", cfg.Name).Logger(),
		onDepthChange: cfg.OnDepthChange,
		state:         state,
		done:          make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	go q.run()
	return q
}

// Submit enqueues a task. It never blocks on task execution.
// Returns false if the queue is closed and the task was dropped.
func (q *Queue) Submit(task Task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn().Msg("task submitted to closed queue, dropping")
		return false
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	q.depth(1)
	q.cond.Signal()
	return true
}

// State returns the current lifecycle state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Pending returns the number of tasks waiting to run, plus the one running.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return len(q.tasks) + 1
	}
	return len(q.tasks)
}

// Resume moves a Suspended queue to Active and drains accumulated tasks in order.
// Resuming an Active queue is a no-op.
func (q *Queue) Resume() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.state {
	case Active:
		return nil
	case Suspended:
		q.state = Active
		q.logger.Debug().Int("pending", len(q.tasks)).Msg("queue resumed")
		q.cond.Broadcast()
		return nil
	default:
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, q.state)
	}
}

// BeginReset moves an Active queue to Resetting. Tasks stay queued but none
// start until the queue is resumed again. The task currently running, if any,
// is allowed to finish.
func (q *Queue) BeginReset() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != Active {
		return fmt.Errorf("%w: begin reset from %s", ErrInvalidTransition, q.state)
	}
	q.state = Resetting
	q.logger.Debug().Msg("queue resetting")
	return nil
}

// FinishReset moves a Resetting queue back to Suspended.
func (q *Queue) FinishReset() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != Resetting {
		return fmt.Errorf("%w: finish reset from %s", ErrInvalidTransition, q.state)
	}
	q.state = Suspended
	q.logger.Debug().Int("pending", len(q.tasks)).Msg("queue suspended after reset")
	return nil
}

// Flush blocks until every task submitted before the call has run, or ctx is done.
// A suspended queue never flushes on its own.
func (q *Queue) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	if !q.Submit(func() { close(flushed) }) {
		return ErrClosed
	}

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker once the running task, if any, returns.
// Tasks still queued are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := len(q.tasks)
	q.tasks = nil
	q.mu.Unlock()

	q.cond.Broadcast()
	<-q.done

	q.depth(-int64(dropped))
	if dropped > 0 {
		q.logger.Warn().Int("dropped", dropped).Msg("queue closed with pending tasks")
	}
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for !q.closed && (q.state != Active || len(q.tasks) == 0) {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.running = true
		q.mu.Unlock()

		q.execute(task)

		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
		q.depth(-1)
	}
}

func (q *Queue) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Msg("queued task panicked")
		}
	}()
	task()
}

func (q *Queue) depth(delta int64) {
	if q.onDepthChange != nil && delta != 0 {
		q.onDepthChange(delta)
	}
}
