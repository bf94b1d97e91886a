// Package backchannel obtains user consent through a provider-initiated push
// approval, polling the token endpoint until the user decides or the request expires.
package backchannel

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/viant/asyncauth"
	"github.com/viant/asyncauth/clock"
	"github.com/viant/asyncauth/internal/poll"
	"github.com/viant/asyncauth/provider"
	"golang.org/x/oauth2"
)

const (
	// DefaultInterval is used when the provider does not return a polling interval.
	DefaultInterval = 5 * time.Second
	// DefaultMultiplier is applied to the interval on every pending or slow_down answer.
	DefaultMultiplier = 2.0

	codePending  = "authorization_pending"
	codeSlowDown = "slow_down"
	codeExpired  = "expired_token"
)

// Outcome is the terminal state of one backchannel attempt.
type Outcome int

const (
	Approved Outcome = iota + 1
	Unavailable
	Expired
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Approved:
		return "approved"
	case Unavailable:
		return "unavailable"
	case Expired:
		return "expired"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result carries the outcome; Token is set only for Approved, Err only for Failed.
type Result struct {
	Outcome Outcome
	Token   *oauth2.Token
	Err     error
}

// Provider is the part of the identity provider the authorizer needs.
type Provider interface {
	AuthorizeBackchannel(ctx context.Context, request *provider.BackchannelRequest) (*provider.BackchannelResponse, error)
	BackchannelGrant(ctx context.Context, authReqID string) (*oauth2.Token, error)
}

// Authorizer runs the backchannel flow for a single user request.
type Authorizer struct {
	provider Provider
	clock    clock.Clock
	logger   *slog.Logger
	policy   poll.Policy
}

// Option mutates Authorizer.
type Option func(a *Authorizer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authorizer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock sets the clock used for waits and the expiry deadline.
func WithClock(clk clock.Clock) Option {
	return func(a *Authorizer) {
		if clk != nil {
			a.clock = clk
		}
	}
}

// WithPolicy overrides the back-off multipliers and cap. Interval and Deadline
// always come from the provider response.
func WithPolicy(policy poll.Policy) Option {
	return func(a *Authorizer) {
		a.policy = policy
	}
}

// New creates an authorizer.
func New(p Provider, options ...Option) *Authorizer {
	ret := &Authorizer{
		provider: p,
		clock:    clock.Real(),
		logger:   asyncauth.DefaultLogger,
		policy:   poll.Policy{Multiplier: DefaultMultiplier, PendingMultiplier: DefaultMultiplier},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Authorize submits the request and polls until a terminal outcome.
// The returned error is non-nil only when ctx ends first; every provider
// problem is reported through Result.
func (a *Authorizer) Authorize(ctx context.Context, request *provider.BackchannelRequest) (*Result, error) {
	logger := a.logger.With("user_id", request.UserID)
	submitted, err := a.provider.AuthorizeBackchannel(ctx, request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if IsUnavailable(err) {
			logger.Info("backchannel unavailable for user", "error", err)
			return &Result{Outcome: Unavailable}, nil
		}
		logger.Warn("backchannel request rejected", "error", err)
		return &Result{Outcome: Failed, Err: err}, nil
	}

	policy := a.policy
	policy.Interval = time.Duration(submitted.Interval) * time.Second
	if policy.Interval <= 0 {
		policy.Interval = DefaultInterval
	}
	policy.Deadline = a.clock.Now().Add(time.Duration(submitted.ExpiresIn) * time.Second)
	logger.Debug("backchannel request submitted", "interval", policy.Interval, "expires_at", policy.Deadline)

	token, err := poll.Until(ctx, a.clock, policy, func(ctx context.Context) (*oauth2.Token, poll.Outcome, error) {
		token, err := a.provider.BackchannelGrant(ctx, submitted.AuthReqID)
		if err == nil {
			return token, poll.Done, nil
		}
		switch provider.ErrorCode(err) {
		case codePending:
			logger.Debug("backchannel authorization pending")
			return nil, poll.Pending, nil
		case codeSlowDown:
			logger.Debug("backchannel asked to slow down")
			return nil, poll.SlowDown, nil
		case codeExpired:
			return nil, poll.Done, poll.ErrDeadline
		}
		return nil, poll.Done, err
	})
	switch {
	case err == nil:
		logger.Info("backchannel approved")
		return &Result{Outcome: Approved, Token: token}, nil
	case errors.Is(err, poll.ErrDeadline):
		logger.Info("backchannel request expired")
		return &Result{Outcome: Expired}, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	logger.Warn("backchannel authorization failed", "error", err)
	return &Result{Outcome: Failed, Err: err}, nil
}

// IsUnavailable reports whether err says the user cannot receive push approvals.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	description := provider.ErrorDescription(err)
	if description == "" {
		description = err.Error()
	}
	return strings.Contains(strings.ToLower(description), "does not have push")
}
