package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/viant/asyncauth"
	"github.com/viant/asyncauth/queue"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSlots        = 4
	DefaultDrainTimeout = 30 * time.Second
	DefaultRetryDelay   = time.Second
	settleTimeout       = 10 * time.Second
)

// Executor pulls jobs from a consumer and runs them on a fixed number of slots.
type Executor struct {
	consumer     queue.Consumer
	registry     *Registry
	slots        int
	drainTimeout time.Duration
	retryDelay   time.Duration
	logger       *slog.Logger
}

// Option mutates Executor.
type Option func(e *Executor)

// WithSlots sets the number of concurrently running jobs.
func WithSlots(slots int) Option {
	return func(e *Executor) {
		if slots > 0 {
			e.slots = slots
		}
	}
}

// WithDrainTimeout sets how long in-flight jobs may run after shutdown starts.
func WithDrainTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.drainTimeout = timeout
		}
	}
}

// WithRetryDelay sets the pause after a failed dequeue.
func WithRetryDelay(delay time.Duration) Option {
	return func(e *Executor) {
		if delay > 0 {
			e.retryDelay = delay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates an executor.
func NewExecutor(consumer queue.Consumer, registry *Registry, options ...Option) *Executor {
	ret := &Executor{
		consumer:     consumer,
		registry:     registry,
		slots:        DefaultSlots,
		drainTimeout: DefaultDrainTimeout,
		retryDelay:   DefaultRetryDelay,
		logger:       asyncauth.DefaultLogger,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Run processes jobs until ctx ends. After that no job is dequeued; running jobs
// get the drain timeout to finish before their context is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	done := make(chan struct{})
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		timer := time.NewTimer(e.drainTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			e.logger.Warn("drain timeout reached, cancelling running jobs", "timeout", e.drainTimeout)
			cancelJobs()
		}
	}()

	group := errgroup.Group{}
	for i := 0; i < e.slots; i++ {
		slot := i
		group.Go(func() error {
			return e.runSlot(ctx, jobCtx, slot)
		})
	}
	err := group.Wait()
	close(done)
	e.logger.Info("executor stopped")
	return err
}

func (e *Executor) runSlot(ctx, jobCtx context.Context, slot int) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := e.consumer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			e.logger.Error("failed to dequeue", "slot", slot, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(e.retryDelay):
			}
			continue
		}
		e.process(jobCtx, job)
	}
}

// process runs one job and settles it with the queue.
func (e *Executor) process(ctx context.Context, job *asyncauth.Job) {
	logger := e.logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.Attempt)
	logger.Debug("job started")
	err := e.safeDispatch(ctx, job)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err == nil {
		if ackErr := e.consumer.Ack(settleCtx, job); ackErr != nil {
			logger.Error("failed to ack job", "error", ackErr)
			return
		}
		logger.Debug("job completed")
		return
	}
	dead, failErr := e.consumer.Fail(settleCtx, job, err)
	if failErr != nil {
		logger.Error("failed to report job failure", "error", failErr, "cause", err)
		return
	}
	if dead {
		logger.Error("job dead-lettered", "error", err)
		return
	}
	logger.Warn("job failed, will retry", "error", err)
}

func (e *Executor) safeDispatch(ctx context.Context, job *asyncauth.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
			e.logger.Error("job panicked", "job_id", job.ID, "stack", string(debug.Stack()))
		}
	}()
	return e.registry.Dispatch(ctx, job)
}
