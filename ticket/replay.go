package ticket

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/asyncauth/clock"
	"github.com/viant/asyncauth/store"
)

// ErrReplayed is returned when a ticket's jti was already consumed.
var ErrReplayed = errors.New("ticket already consumed")

// ReplayGuard records consumed tickets so each one is honoured once.
type ReplayGuard interface {
	// Consume marks the ticket as used, failing with ErrReplayed on a second call.
	Consume(ctx context.Context, claims *Claims) error
}

// StoreGuard is a ReplayGuard keeping consumed jti values in a Store until the ticket expires.
type StoreGuard struct {
	store store.Store
	clock clock.Clock
}

// NewReplayGuard creates a guard backed by s. A nil clock uses the wall clock.
func NewReplayGuard(s store.Store, clk clock.Clock) *StoreGuard {
	if clk == nil {
		clk = clock.Real()
	}
	return &StoreGuard{store: s, clock: clk}
}

// Consume implements ReplayGuard.
func (g *StoreGuard) Consume(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.JobID == "" {
		return fmt.Errorf("%w: missing jti", ErrMalformed)
	}
	ttl := claims.ExpiresAt.Sub(g.clock.Now())
	if ttl <= 0 {
		return ErrExpired
	}
	ok, err := g.store.PutIfAbsent(ctx, "jti:"+claims.JobID, claims.Subject, ttl)
	if err != nil {
		return fmt.Errorf("failed to record ticket %s: %w", claims.JobID, err)
	}
	if !ok {
		return ErrReplayed
	}
	return nil
}
