package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrNoIDToken is returned when a token response carries no id_token.
	ErrNoIDToken = errors.New("token response has no id_token")
	// ErrNoVerifier is returned when the client was not created through discovery.
	ErrNoVerifier = errors.New("id token verification requires a discovered provider")
)

// IDClaims are the identity claims of a verified ID token.
type IDClaims struct {
	Subject string    `json:"sub"`
	Email   string    `json:"email,omitempty"`
	Name    string    `json:"name,omitempty"`
	Expiry  time.Time `json:"-"`
}

// VerifyIDToken verifies the id_token attached to token and returns its claims.
func (c *Client) VerifyIDToken(ctx context.Context, token *oauth2.Token) (*IDClaims, error) {
	if c.verifier == nil {
		return nil, ErrNoVerifier
	}
	if token == nil {
		return nil, ErrNoIDToken
	}
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil, ErrNoIDToken
	}
	idToken, err := c.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}
	ret := &IDClaims{}
	if err := idToken.Claims(ret); err != nil {
		return nil, fmt.Errorf("failed to decode id token claims: %w", err)
	}
	ret.Subject = idToken.Subject
	ret.Expiry = idToken.Expiry
	return ret, nil
}
