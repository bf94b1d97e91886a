// Package queue delivers jobs at least once to executor slots.
package queue

import (
	"context"
	"errors"

	"github.com/viant/asyncauth"
)

// DefaultName is the queue every job type shares.
const DefaultName = "taskQueue"

// ErrClosed is returned by Dequeue after the queue was closed.
var ErrClosed = errors.New("queue closed")

// Producer adds jobs to the queue.
type Producer interface {
	Enqueue(ctx context.Context, job *asyncauth.Job) error
}

// Consumer hands out jobs and settles their deliveries.
type Consumer interface {
	// Dequeue blocks until a job is available or ctx ends. It increments job.Attempt.
	Dequeue(ctx context.Context) (*asyncauth.Job, error)
	// Ack removes a finished job.
	Ack(ctx context.Context, job *asyncauth.Job) error
	// Fail records cause and either redelivers the job or dead-letters it when the
	// cause is permanent or the attempts are exhausted. It reports whether the job was dead-lettered.
	Fail(ctx context.Context, job *asyncauth.Job, cause error) (bool, error)
}

// Queue is both ends of a job queue.
type Queue interface {
	Producer
	Consumer
}

// Enqueue creates a job of jobType with payload and adds it to producer.
func Enqueue(ctx context.Context, producer Producer, jobType asyncauth.JobType, payload interface{}) (*asyncauth.Job, error) {
	job, err := asyncauth.NewJob(jobType, payload)
	if err != nil {
		return nil, err
	}
	if err := producer.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// shouldDeadLetter applies the retry policy shared by queue implementations.
func shouldDeadLetter(job *asyncauth.Job, cause error) bool {
	return asyncauth.IsPermanent(cause) || job.Exhausted()
}

func recordFailure(job *asyncauth.Job, cause error) {
	if cause != nil {
		job.LastError = cause.Error()
	}
}
