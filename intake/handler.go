// Package intake serves the browser-facing endpoints of deferred authorization:
// ticket redemption and the provider callback.
package intake

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/viant/asyncauth"
	"github.com/viant/asyncauth/provider"
	"github.com/viant/asyncauth/queue"
	"github.com/viant/asyncauth/ticket"
)

// Pusher registers authorization params with the provider and builds the browser redirect.
type Pusher interface {
	PushAuthorization(ctx context.Context, params url.Values) (*provider.PushedAuthorization, error)
	AuthorizeURL(requestURI string) string
}

// Handler routes StartPath and CallbackPath.
type Handler struct {
	codec    *ticket.Codec
	guard    ticket.ReplayGuard
	pusher   Pusher
	producer queue.Producer
	home     string
	logger   *slog.Logger
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

// WithHome sets where the browser lands after a callback, "/" by default.
func WithHome(home string) Option {
	return func(h *Handler) {
		if home != "" {
			h.home = home
		}
	}
}

// NewHandler creates a Handler.
func NewHandler(codec *ticket.Codec, guard ticket.ReplayGuard, pusher Pusher, producer queue.Producer, options ...Option) *Handler {
	ret := &Handler{
		codec:    codec,
		guard:    guard,
		pusher:   pusher,
		producer: producer,
		home:     "/",
		logger:   asyncauth.DefaultLogger,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch strings.TrimRight(r.URL.Path, "/") {
	case asyncauth.StartPath:
		h.handleStart(w, r)
	case asyncauth.CallbackPath:
		h.handleCallback(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleStart redeems a ticket: verify, consume its jti, push the params and redirect to the provider.
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	raw := query.Get("ticket")
	if raw == "" {
		http.Redirect(w, r, h.home, http.StatusFound)
		return
	}
	claims, err := h.codec.Verify(raw)
	if err != nil {
		h.logger.Info("ticket rejected", "error", err)
		http.Error(w, ticketMessage(err), ticketStatus(err))
		return
	}
	logger := h.logger.With("job_id", claims.JobID, "user_id", claims.Subject)
	params := claims.AuthorizationParams()
	if hint := query.Get("id_token_hint"); hint != "" {
		params.Set("id_token_hint", hint)
	}
	pushed, err := h.pusher.PushAuthorization(r.Context(), params)
	if err != nil {
		logger.Error("pushed authorization failed", "error", err)
		http.Error(w, "authorization server unavailable", http.StatusBadGateway)
		return
	}
	// the ticket is spent only once the provider accepted the request
	if err := h.guard.Consume(r.Context(), claims); err != nil {
		logger.Info("ticket not consumed", "error", err)
		http.Error(w, ticketMessage(err), ticketStatus(err))
		return
	}
	logger.Info("ticket redeemed", "state", claims.State)
	http.Redirect(w, r, h.pusher.AuthorizeURL(pushed.RequestURI), http.StatusFound)
}

// handleCallback queues the provider redirect for the worker and sends the browser home.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.Info("authorization callback with error", "error", providerErr, "description", query.Get("error_description"), "state", query.Get("state"))
		http.Redirect(w, r, h.home, http.StatusFound)
		return
	}
	callback := &asyncauth.HandleAsyncCallback{State: query.Get("state"), Code: query.Get("code")}
	if callback.State == "" || callback.Code == "" {
		http.Error(w, "state and code are required", http.StatusBadRequest)
		return
	}
	job, err := queue.Enqueue(r.Context(), h.producer, asyncauth.JobTypeResumeCallback, callback)
	if err != nil {
		h.logger.Error("failed to enqueue callback", "state", callback.State, "error", err)
		http.Error(w, "failed to accept callback", http.StatusServiceUnavailable)
		return
	}
	h.logger.Info("callback accepted", "job_id", job.ID, "state", callback.State)
	http.Redirect(w, r, h.home, http.StatusFound)
}

func ticketStatus(err error) int {
	switch {
	case errors.Is(err, ticket.ErrExpired):
		return http.StatusGone
	case errors.Is(err, ticket.ErrReplayed):
		return http.StatusConflict
	case errors.Is(err, ticket.ErrInvalidSignature), errors.Is(err, ticket.ErrMalformed):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func ticketMessage(err error) string {
	switch {
	case errors.Is(err, ticket.ErrExpired):
		return "ticket expired"
	case errors.Is(err, ticket.ErrReplayed):
		return "ticket already used"
	case errors.Is(err, ticket.ErrInvalidSignature), errors.Is(err, ticket.ErrMalformed):
		return "invalid ticket"
	}
	return "failed to redeem ticket"
}
