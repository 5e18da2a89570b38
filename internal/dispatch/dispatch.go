// Package dispatch runs fire-and-forget tasks on a bounded worker pool.
//
// The submission path hands a task to Enqueue and returns immediately;
// workers execute the task body with retries and a per-class circuit
// breaker, and invoke the task's failure handler once the body is given
// up on. A full queue is reported to the caller as ErrQueueFull so the
// task's owner can record the failure itself.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"sortruns/pkg/circuitbreaker"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("dispatch queue is full")

	// ErrClosed is returned by Enqueue after Close has been called.
	ErrClosed = errors.New("dispatch runner is closed")

	// errCircuitOpen marks tasks rejected without an attempt because
	// the class breaker is open.
	errCircuitOpen = errors.New("circuit breaker is open")
)

// Task is one unit of background work.
type Task struct {
	// Key identifies the task in logs.
	Key string

	// Class groups tasks that share a failure domain; the circuit
	// breaker is tracked per class.
	Class string

	// Do is the task body. It is retried on error.
	Do func(ctx context.Context) error

	// OnFailure is invoked once when the body is given up on. Optional.
	OnFailure func(ctx context.Context, err error)
}

// Stats is a snapshot of runner counters.
type Stats struct {
	QueueDepth   int
	BreakersOpen int
	Enqueued     int64
	Executed     int64
	Failed       int64
	Rejected     int64
}

// Runner executes tasks on a fixed worker pool.
type Runner struct {
	cfg      Config
	queue    chan *Task
	shutdown chan struct{}
	breakers *circuitbreaker.Registry
	logger   *slog.Logger

	closed   atomic.Bool
	enqueued atomic.Int64
	executed atomic.Int64
	failed   atomic.Int64
	rejected atomic.Int64

	wg sync.WaitGroup
}

// NewRunner creates a runner and starts its workers.
func NewRunner(cfg Config, logger *slog.Logger) *Runner {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		cfg:      cfg,
		queue:    make(chan *Task, cfg.QueueSize),
		shutdown: make(chan struct{}),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.Config{
			Threshold: cfg.BreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
		}),
		logger: logger.With("component", "dispatch"),
	}

	r.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go r.worker()
	}
	return r
}

// Enqueue hands a task to the worker pool without blocking. The task's
// OnFailure handler is NOT invoked on an Enqueue error; the caller owns
// failures that happen before the task is accepted.
func (r *Runner) Enqueue(t *Task) error {
	if t == nil || t.Do == nil {
		return errors.New("task body is required")
	}
	if r.closed.Load() {
		return ErrClosed
	}

	select {
	case r.queue <- t:
		r.enqueued.Add(1)
		return nil
	default:
		r.rejected.Add(1)
		r.logger.Warn("Task rejected, queue full", "key", t.Key, "class", t.Class)
		return ErrQueueFull
	}
}

// Stats returns a snapshot of the runner's counters.
func (r *Runner) Stats() Stats {
	return Stats{
		QueueDepth:   len(r.queue),
		BreakersOpen: r.breakers.Open(),
		Enqueued:     r.enqueued.Load(),
		Executed:     r.executed.Load(),
		Failed:       r.failed.Load(),
		Rejected:     r.rejected.Load(),
	}
}

// Close stops accepting tasks and waits for queued work to drain, up to
// the context deadline. The queue channel itself is never closed: a
// concurrent Enqueue may still be sending, and a send on a closed channel
// would panic the process. Workers are released through the shutdown
// channel instead.
func (r *Runner) Close(ctx context.Context) error {
	if r.closed.Swap(true) {
		return nil
	}
	close(r.shutdown)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch drain interrupted: %w", ctx.Err())
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for {
		select {
		case t := <-r.queue:
			r.execute(t)
		case <-r.shutdown:
			// Drain whatever was accepted before shutdown, then exit.
			for {
				select {
				case t := <-r.queue:
					r.execute(t)
				default:
					return
				}
			}
		}
	}
}

func (r *Runner) execute(t *Task) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(t, fmt.Errorf("task panicked: %v", p))
		}
	}()

	br := r.breakers.Get(t.Class)
	if !br.Allow() {
		r.logger.Warn("Task rejected, circuit open", "key", t.Key, "class", t.Class)
		r.fail(t, fmt.Errorf("%w for class %q", errCircuitOpen, t.Class))
		return
	}

	attempt := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.TaskTimeout)
		defer cancel()
		return t.Do(ctx)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialBackoff
	bo.MaxInterval = r.cfg.MaxBackoff

	err := backoff.Retry(attempt, backoff.WithMaxRetries(bo, uint64(r.cfg.MaxRetries)))
	if err != nil {
		br.RecordFailure()
		r.fail(t, err)
		return
	}

	br.RecordSuccess()
	r.executed.Add(1)
	r.logger.Debug("Task executed", "key", t.Key, "class", t.Class)
}

func (r *Runner) fail(t *Task, err error) {
	r.failed.Add(1)
	r.logger.Error("Task failed", "key", t.Key, "class", t.Class, "error", err)

	if t.OnFailure == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Failure handler panicked", "key", t.Key, "panic", p)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	t.OnFailure(ctx, err)
}
