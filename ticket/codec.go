// Package ticket issues and verifies the signed correlation tickets that let a
// browser resume a deferred authorization long after the worker job ended.
//
// A ticket is an HS256 JWT whose jti is the originating job id. Its params claim
// carries the provider authorization parameters together with the PKCE code
// challenge and the state value; the code verifier never leaves the worker.
package ticket

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viant/asyncauth/clock"
)

const (
	// DefaultIssuer identifies the worker as ticket issuer.
	DefaultIssuer = "worker-service"
	// DefaultAudience identifies the service that consumes tickets.
	DefaultAudience = "api-auth-service"
	// DefaultTTL is the validity window of a ticket.
	DefaultTTL = 72 * time.Hour
	// MinSecretLength is the minimal HS256 key size in bytes.
	MinSecretLength = 32

	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamState               = "state"
)

var (
	ErrExpired            = errors.New("ticket expired")
	ErrInvalidSignature   = errors.New("ticket signature is invalid")
	ErrMalformed          = errors.New("ticket is malformed")
	ErrKeyMisconfigured   = errors.New("ticket signing key is misconfigured")
	ErrReservedParam      = errors.New("ticket param name is reserved")
	ErrMissingCorrelation = errors.New("ticket subject and job id are required")
)

// Issued is the result of minting a ticket. Verifier stays with the issuer.
type Issued struct {
	Ticket    string
	Verifier  string
	State     string
	ExpiresAt time.Time
}

// Claims are the verified contents of a ticket.
type Claims struct {
	Subject       string
	JobID         string
	Params        map[string]string
	CodeChallenge string
	State         string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// AuthorizationParams returns the params merged with the PKCE challenge and state,
// ready to be sent to the provider's authorization endpoint.
func (c *Claims) AuthorizationParams() url.Values {
	values := url.Values{}
	for k, v := range c.Params {
		values.Set(k, v)
	}
	values.Set(ParamCodeChallenge, c.CodeChallenge)
	values.Set(ParamCodeChallengeMethod, ChallengeMethod)
	values.Set(ParamState, c.State)
	return values
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Params map[string]string `json:"params"`
}

// Codec signs and verifies tickets with a shared symmetric key.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    clock.Clock
}

// Option mutates Codec.
type Option func(c *Codec)

// WithTTL overrides the ticket validity window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		if issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithAudience overrides the aud claim.
func WithAudience(audience string) Option {
	return func(c *Codec) {
		if audience != "" {
			c.audience = audience
		}
	}
}

// WithClock sets the time source.
func WithClock(clk clock.Clock) Option {
	return func(c *Codec) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// New creates a codec. A secret shorter than MinSecretLength is rejected.
func New(secret []byte, options ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrKeyMisconfigured, MinSecretLength, len(secret))
	}
	ret := &Codec{
		secret:   append([]byte(nil), secret...),
		issuer:   DefaultIssuer,
		audience: DefaultAudience,
		ttl:      DefaultTTL,
		clock:    clock.Real(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret, nil
}

// TTL returns the ticket validity window.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue mints a ticket for subject, using jobID as the replay nonce.
func (c *Codec) Issue(subject, jobID string, params map[string]string) (*Issued, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(jobID) == "" {
		return nil, ErrMissingCorrelation
	}
	payload := make(map[string]string, len(params)+3)
	for k, v := range params {
		switch k {
		case ParamCodeChallenge, ParamCodeChallengeMethod, ParamState:
			return nil, fmt.Errorf("%w: %s", ErrReservedParam, k)
		}
		payload[k] = v
	}
	state, err := NewState()
	if err != nil {
		return nil, err
	}
	verifier := NewVerifier()
	payload[ParamCodeChallenge] = Challenge(verifier)
	payload[ParamCodeChallengeMethod] = ChallengeMethod
	payload[ParamState] = state

	now := c.clock.Now().Truncate(time.Second)
	expiresAt := now.Add(c.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			ID:        jobID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Params: payload,
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMisconfigured, err)
	}
	return &Issued{Ticket: signed, Verifier: verifier, State: state, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, expiry, issuer and audience, and returns the claims.
// It does not detect replays; see ReplayGuard.
func (c *Codec) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty ticket", ErrMalformed)
	}
	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if parsed.Subject == "" || parsed.ID == "" {
		return nil, fmt.Errorf("%w: sub and jti are required", ErrMalformed)
	}
	challenge := parsed.Params[ParamCodeChallenge]
	state := parsed.Params[ParamState]
	if challenge == "" || state == "" {
		return nil, fmt.Errorf("%w: code_challenge and state are required", ErrMalformed)
	}
	ret := &Claims{
		Subject:       parsed.Subject,
		JobID:         parsed.ID,
		Params:        map[string]string{},
		CodeChallenge: challenge,
		State:         state,
		ExpiresAt:     parsed.ExpiresAt.Time,
	}
	if parsed.IssuedAt != nil {
		ret.IssuedAt = parsed.IssuedAt.Time
	}
	for k, v := range parsed.Params {
		switch k {
		case ParamCodeChallenge, ParamCodeChallengeMethod, ParamState:
			continue
		}
		ret.Params[k] = v
	}
	return ret, nil
}

// mapJWTError translates jwt library errors to ticket errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
