package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/viant/asyncauth"
)

// DefaultBlockTimeout bounds a single blocking pop so Dequeue notices cancellation.
const DefaultBlockTimeout = time.Second

// RedisQueue is a reliable queue built on Redis lists. A delivered job stays in
// the processing list until it is acked or failed, so a crashed worker's jobs
// can be recovered.
type RedisQueue struct {
	rdb          redis.UniversalClient
	prefix       string
	name         string
	blockTimeout time.Duration
	maxAttempts  int
	logger       *slog.Logger
}

// RedisOption mutates RedisQueue.
type RedisOption func(q *RedisQueue)

// WithBlockTimeout sets the blocking pop timeout.
func WithBlockTimeout(timeout time.Duration) RedisOption {
	return func(q *RedisQueue) {
		if timeout > 0 {
			q.blockTimeout = timeout
		}
	}
}

// WithMaxAttempts sets the delivery budget of newly enqueued jobs.
func WithMaxAttempts(attempts int) RedisOption {
	return func(q *RedisQueue) {
		if attempts > 0 {
			q.maxAttempts = attempts
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(q *RedisQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewRedisQueue creates a queue named name under prefix.
func NewRedisQueue(rdb redis.UniversalClient, prefix, name string, options ...RedisOption) *RedisQueue {
	if prefix == "" {
		prefix = "asyncauth:"
	}
	if name == "" {
		name = DefaultName
	}
	ret := &RedisQueue{rdb: rdb, prefix: prefix, name: name, blockTimeout: DefaultBlockTimeout, logger: asyncauth.DefaultLogger}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (q *RedisQueue) keyPending() string    { return q.prefix + "queue:" + q.name + ":pending" }
func (q *RedisQueue) keyProcessing() string { return q.prefix + "queue:" + q.name + ":processing" }
func (q *RedisQueue) keyDead() string       { return q.prefix + "queue:" + q.name + ":dead" }

func (q *RedisQueue) Enqueue(ctx context.Context, job *asyncauth.Job) error {
	if q.maxAttempts > 0 && job.Attempt == 0 {
		job.MaxAttempts = q.maxAttempts
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	if err := q.rdb.LPush(ctx, q.keyPending(), data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*asyncauth.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := q.rdb.BLMove(ctx, q.keyPending(), q.keyProcessing(), "RIGHT", "LEFT", q.blockTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to dequeue: %w", err)
		}
		job := &asyncauth.Job{}
		if err := json.Unmarshal([]byte(raw), job); err != nil {
			q.logger.Error("dropping undecodable job", "error", err)
			if err := q.move(ctx, raw, q.keyDead(), raw); err != nil {
				return nil, err
			}
			continue
		}
		job.Receipt = raw
		job.Attempt++
		return job, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, job *asyncauth.Job) error {
	if err := q.rdb.LRem(ctx, q.keyProcessing(), 1, job.Receipt).Err(); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, job *asyncauth.Job, cause error) (bool, error) {
	recordFailure(job, cause)
	dead := shouldDeadLetter(job, cause)
	data, err := json.Marshal(job)
	if err != nil {
		return dead, fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	destination := q.keyPending()
	if dead {
		destination = q.keyDead()
	}
	if err := q.move(ctx, job.Receipt, destination, string(data)); err != nil {
		return dead, fmt.Errorf("failed to settle job %s: %w", job.ID, err)
	}
	return dead, nil
}

// Recover returns jobs left in the processing list by a stopped worker to the pending list.
// It must run before any consumer of the same queue starts.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	count := 0
	for {
		err := q.rdb.LMove(ctx, q.keyProcessing(), q.keyPending(), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to recover jobs: %w", err)
		}
		count++
	}
}

// Len returns the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.keyPending()).Result()
}

// DeadLetters returns dead-lettered jobs, newest first.
func (q *RedisQueue) DeadLetters(ctx context.Context) ([]*asyncauth.Job, error) {
	items, err := q.rdb.LRange(ctx, q.keyDead(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var ret []*asyncauth.Job
	for _, item := range items {
		job := &asyncauth.Job{}
		if err := json.Unmarshal([]byte(item), job); err != nil {
			continue
		}
		ret = append(ret, job)
	}
	return ret, nil
}

func (q *RedisQueue) String() string {
	return fmt.Sprintf("RedisQueue{prefix=%s, name=%s}", q.prefix, q.name)
}

// move removes receipt from processing and pushes data to destination atomically.
func (q *RedisQueue) move(ctx context.Context, receipt, destination, data string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.keyProcessing(), 1, receipt)
	pipe.LPush(ctx, destination, data)
	_, err := pipe.Exec(ctx)
	return err
}
