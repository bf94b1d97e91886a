// Package resume completes deferred authorizations when the browser comes back
// with a state and an authorization code.
package resume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/viant/asyncauth"
	"github.com/viant/asyncauth/store"
	"golang.org/x/oauth2"
)

// Exchanger redeems an authorization code with its PKCE verifier.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error)
}

// Handler takes the stored verifier for a state and performs the code exchange at most once.
type Handler struct {
	store     store.Store
	exchanger Exchanger
	sink      TokenSink
	logger    *slog.Logger
}

// Option mutates Handler.
type Option func(h *Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSink sets the receiver of exchanged tokens.
func WithSink(sink TokenSink) Option {
	return func(h *Handler) {
		if sink != nil {
			h.sink = sink
		}
	}
}

// New creates a handler.
func New(s store.Store, exchanger Exchanger, options ...Option) *Handler {
	ret := &Handler{
		store:     s,
		exchanger: exchanger,
		logger:    asyncauth.DefaultLogger,
	}
	for _, option := range options {
		option(ret)
	}
	if ret.sink == nil {
		ret.sink = NewLogSink(ret.logger, nil)
	}
	return ret
}

// Resume completes the authorization identified by callback.State.
// The state entry is consumed before the exchange, so a duplicate callback is a no-op
// and a failed exchange is not retried. Only store errors are returned for retry.
func (h *Handler) Resume(ctx context.Context, callback *asyncauth.HandleAsyncCallback) error {
	if callback == nil || callback.State == "" {
		h.logger.Info("callback without state ignored")
		return nil
	}
	logger := h.logger.With("state", callback.State)
	verifier, err := h.store.Take(ctx, callback.State)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("no pending authorization for state")
			return nil
		}
		return fmt.Errorf("failed to load state: %w", err)
	}
	if callback.Code == "" {
		logger.Warn("callback without authorization code")
		return nil
	}
	token, err := h.exchanger.ExchangeCode(ctx, callback.Code, verifier)
	if err != nil {
		logger.Error("authorization code exchange failed", "error", err)
		return nil
	}
	if err := h.sink.Accept(ctx, token); err != nil {
		logger.Error("failed to deliver tokens", "error", err)
		return nil
	}
	logger.Info("deferred authorization completed")
	return nil
}
