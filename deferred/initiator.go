// Package deferred starts a browser-based authorization that the user can complete later.
//
// The initiator mints a ticket, stores the PKCE verifier under the ticket's state
// and only then tells the user where to resume. A job that fails after the store
// write leaves an entry that simply expires.
package deferred

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	afsurl "github.com/viant/afs/url"
	"github.com/viant/asyncauth"
	"github.com/viant/asyncauth/store"
	"github.com/viant/asyncauth/ticket"
)

// DefaultSlack extends the state entry past the ticket expiry.
const DefaultSlack = time.Hour

// Request describes the authorization the job is waiting for.
type Request struct {
	JobID  string
	UserID string
	// Params are the provider authorization params carried by the ticket.
	Params map[string]string
}

// Pending is a deferred authorization waiting for the user.
type Pending struct {
	URL       string
	State     string
	ExpiresAt time.Time
}

// Initiator issues tickets and persists their correlation.
type Initiator struct {
	codec    *ticket.Codec
	store    store.Store
	notifier Notifier
	host     string
	slack    time.Duration
	logger   *slog.Logger
}

// Option mutates Initiator.
type Option func(i *Initiator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Initiator) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithSlack overrides the extra lifetime of state entries.
func WithSlack(slack time.Duration) Option {
	return func(i *Initiator) {
		if slack >= 0 {
			i.slack = slack
		}
	}
}

// New creates an initiator that builds resume links on host. A nil notifier logs the links.
func New(codec *ticket.Codec, s store.Store, notifier Notifier, host string, options ...Option) *Initiator {
	ret := &Initiator{
		codec:    codec,
		store:    s,
		notifier: notifier,
		host:     host,
		slack:    DefaultSlack,
		logger:   asyncauth.DefaultLogger,
	}
	for _, option := range options {
		option(ret)
	}
	if ret.notifier == nil {
		ret.notifier = NewLogNotifier(ret.logger)
	}
	return ret
}

// Initiate mints a ticket for request, persists state -> verifier and notifies the user.
// Ticket errors are permanent; store and notification errors are retryable.
func (i *Initiator) Initiate(ctx context.Context, request *Request) (*Pending, error) {
	issued, err := i.codec.Issue(request.UserID, request.JobID, request.Params)
	if err != nil {
		return nil, asyncauth.Permanent(fmt.Errorf("failed to issue ticket for job %s: %w", request.JobID, err))
	}
	if err := i.store.Put(ctx, issued.State, issued.Verifier, i.codec.TTL()+i.slack); err != nil {
		return nil, fmt.Errorf("failed to persist state for job %s: %w", request.JobID, err)
	}
	ret := &Pending{
		URL:       ResumeURL(i.host, issued.Ticket),
		State:     issued.State,
		ExpiresAt: issued.ExpiresAt,
	}
	notification := &Notification{JobID: request.JobID, UserID: request.UserID, URL: ret.URL, ExpiresAt: ret.ExpiresAt}
	if err := i.notifier.Notify(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to notify user %s: %w", request.UserID, err)
	}
	i.logger.Info("deferred authorization initiated", "job_id", request.JobID, "user_id", request.UserID, "state", issued.State)
	return ret, nil
}

// ResumeURL returns the link that redeems ticket on host.
func ResumeURL(host, ticket string) string {
	base := afsurl.Join(strings.TrimRight(host, "/"), strings.TrimLeft(asyncauth.StartPath, "/"))
	return base + "?ticket=" + url.QueryEscape(ticket)
}
