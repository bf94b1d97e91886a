package asyncauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is a unit of work owned by the queue.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	// LastError holds the failure reason of the previous attempt, if any.
	LastError string `json:"last_error,omitempty"`

	// Receipt is an opaque broker handle used to ack or fail the delivery.
	Receipt string `json:"-"`
}

// PerformSearch looks up an item on behalf of a user.
type PerformSearch struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

// Item is a search result that needs the user's approval.
type Item struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RequestUserApproval asks the user to approve acting on a found item.
type RequestUserApproval struct {
	UserID    string `json:"user_id"`
	FoundItem Item   `json:"found_item"`
}

// HandleAsyncCallback carries the browser redirect parameters of a deferred authorization.
type HandleAsyncCallback struct {
	State string `json:"state"`
	Code  string `json:"code"`
}

// NewJob creates a job with a fresh id and the given payload encoded as JSON.
func NewJob(jobType JobType, payload interface{}) (*Job, error) {
	if jobType == "" {
		return nil, errors.New("job type was empty")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}
	return &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     data,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Decode unmarshals the job payload into target.
func (j *Job) Decode(target interface{}) error {
	if len(j.Payload) == 0 {
		return Permanent(fmt.Errorf("job %s (%s) has no payload", j.ID, j.Type))
	}
	if err := json.Unmarshal(j.Payload, target); err != nil {
		return Permanent(fmt.Errorf("failed to decode job %s (%s) payload: %w", j.ID, j.Type, err))
	}
	return nil
}

// Exhausted reports whether the job has no delivery attempts left.
func (j *Job) Exhausted() bool {
	limit := j.MaxAttempts
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}
	return j.Attempt >= limit
}
