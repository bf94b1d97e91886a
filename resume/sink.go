package resume

import (
	"context"
	"log/slog"

	"github.com/viant/asyncauth/provider"
	"golang.org/x/oauth2"
)

// TokenSink receives the tokens of a completed authorization.
type TokenSink interface {
	Accept(ctx context.Context, token *oauth2.Token) error
}

// TokenSinkFunc adapts a function to TokenSink.
type TokenSinkFunc func(ctx context.Context, token *oauth2.Token) error

// Accept implements TokenSink.
func (f TokenSinkFunc) Accept(ctx context.Context, token *oauth2.Token) error {
	return f(ctx, token)
}

// IDTokenVerifier extracts verified identity claims from a token response.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, token *oauth2.Token) (*provider.IDClaims, error)
}

// LogSink logs token receipt without the token values.
type LogSink struct {
	logger   *slog.Logger
	verifier IDTokenVerifier
}

// NewLogSink creates a LogSink; verifier is optional.
func NewLogSink(logger *slog.Logger, verifier IDTokenVerifier) *LogSink {
	return &LogSink{logger: logger, verifier: verifier}
}

// Accept implements TokenSink.
func (s *LogSink) Accept(ctx context.Context, token *oauth2.Token) error {
	attrs := []any{"token_type", token.Type(), "expiry", token.Expiry}
	if scope, ok := token.Extra("scope").(string); ok {
		attrs = append(attrs, "scope", scope)
	}
	if s.verifier != nil {
		claims, err := s.verifier.VerifyIDToken(ctx, token)
		if err != nil {
			return err
		}
		attrs = append(attrs, "subject", claims.Subject)
	}
	s.logger.InfoContext(ctx, "tokens received", attrs...)
	return nil
}
