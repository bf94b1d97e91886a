// Package dispatcher routes queued jobs to typed handlers and runs them on a
// fixed pool of executor slots.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/asyncauth"
)

// Handler processes one job.
type Handler interface {
	Handle(ctx context.Context, job *asyncauth.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *asyncauth.Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job *asyncauth.Job) error {
	return f(ctx, job)
}

// Typed returns a Handler that decodes the job payload into T before calling fn.
// Payloads that do not decode fail permanently.
func Typed[T any](fn func(ctx context.Context, job *asyncauth.Job, payload *T) error) Handler {
	return HandlerFunc(func(ctx context.Context, job *asyncauth.Job) error {
		payload := new(T)
		if err := job.Decode(payload); err != nil {
			return err
		}
		return fn(ctx, job, payload)
	})
}

// Handlers covers every built-in job type.
type Handlers interface {
	Search(ctx context.Context, job *asyncauth.Job, payload *asyncauth.PerformSearch) error
	RequestApproval(ctx context.Context, job *asyncauth.Job, payload *asyncauth.RequestUserApproval) error
	ResumeCallback(ctx context.Context, job *asyncauth.Job, payload *asyncauth.HandleAsyncCallback) error
}

// Registry maps job types to handlers.
type Registry struct {
	mux      sync.RWMutex
	handlers map[asyncauth.JobType]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[asyncauth.JobType]Handler{}}
}

// NewRegistryFor creates a registry routing the built-in job types to handlers.
func NewRegistryFor(handlers Handlers) *Registry {
	ret := NewRegistry()
	ret.Register(asyncauth.JobTypeSearch, Typed(handlers.Search))
	ret.Register(asyncauth.JobTypeApprovalRequest, Typed(handlers.RequestApproval))
	ret.Register(asyncauth.JobTypeResumeCallback, Typed(handlers.ResumeCallback))
	return ret
}

// Register adds or replaces the handler for jobType.
func (r *Registry) Register(jobType asyncauth.JobType, handler Handler) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.handlers[jobType] = handler
}

// Lookup returns the handler for jobType.
func (r *Registry) Lookup(jobType asyncauth.JobType) (Handler, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	handler, ok := r.handlers[jobType]
	return handler, ok
}

// Dispatch runs the handler registered for job.Type.
func (r *Registry) Dispatch(ctx context.Context, job *asyncauth.Job) error {
	handler, ok := r.Lookup(job.Type)
	if !ok {
		return asyncauth.Permanent(fmt.Errorf("%w: %q", asyncauth.ErrUnknownJobType, job.Type))
	}
	return handler.Handle(ctx, job)
}
