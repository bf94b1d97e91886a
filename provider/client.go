// Package provider is a narrow client for the identity provider endpoints the
// authorization flows depend on: backchannel authorize and poll, pushed
// authorization requests, and the authorization-code token exchange.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc"
	afsurl "github.com/viant/afs/url"
	"golang.org/x/oauth2"
)

// Endpoints lists the provider URLs used by the client.
type Endpoints struct {
	Issuer         string `yaml:"issuer"`
	AuthURL        string `yaml:"authURL"`
	TokenURL       string `yaml:"tokenURL"`
	BackchannelURL string `yaml:"backchannelURL"`
	PARURL         string `yaml:"parURL"`
}

// Config holds client credentials and endpoints.
type Config struct {
	Domain       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoints    Endpoints
}

// Client talks to the identity provider with client_secret_post authentication.
type Client struct {
	config     Config
	oauth      *oauth2.Config
	httpClient *http.Client
	verifier   *oidc.IDTokenVerifier
}

// Option mutates Client.
type Option func(c *Client)

// WithHTTPClient allows custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Issuer returns the canonical issuer URL for a domain such as "tenant.example.com".
func Issuer(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	return strings.TrimRight(domain, "/") + "/"
}

// DefaultEndpoints derives conventional endpoint URLs from a domain.
func DefaultEndpoints(domain string) Endpoints {
	issuer := Issuer(domain)
	base := strings.TrimRight(issuer, "/")
	return Endpoints{
		Issuer:         issuer,
		AuthURL:        afsurl.Join(base, "authorize"),
		TokenURL:       afsurl.Join(base, "oauth/token"),
		BackchannelURL: afsurl.Join(base, "bc-authorize"),
		PARURL:         afsurl.Join(base, "oauth/par"),
	}
}

// New creates a client. Endpoints missing from cfg are derived from cfg.Domain.
func New(cfg Config, options ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("provider client id and secret are required")
	}
	var defaults Endpoints
	if strings.TrimSpace(cfg.Domain) != "" {
		defaults = DefaultEndpoints(cfg.Domain)
	}
	cfg.Endpoints.Issuer = firstNonEmpty(cfg.Endpoints.Issuer, defaults.Issuer)
	cfg.Endpoints.AuthURL = firstNonEmpty(cfg.Endpoints.AuthURL, defaults.AuthURL)
	cfg.Endpoints.TokenURL = firstNonEmpty(cfg.Endpoints.TokenURL, defaults.TokenURL)
	cfg.Endpoints.BackchannelURL = firstNonEmpty(cfg.Endpoints.BackchannelURL, defaults.BackchannelURL)
	cfg.Endpoints.PARURL = firstNonEmpty(cfg.Endpoints.PARURL, defaults.PARURL)
	if cfg.Endpoints.TokenURL == "" {
		return nil, errors.New("provider token endpoint is required")
	}
	ret := &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, option := range options {
		option(ret)
	}
	ret.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.Endpoints.AuthURL,
			TokenURL:  cfg.Endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return ret, nil
}

// discoveryClaims are the non-standard fields go-oidc does not expose directly.
type discoveryClaims struct {
	BackchannelURL string `json:"backchannel_authentication_endpoint"`
	PARURL         string `json:"pushed_authorization_request_endpoint"`
}

// Discover creates a client from the provider's OpenID configuration document.
// Endpoints already set in cfg take precedence over discovered ones.
func Discover(ctx context.Context, cfg Config, options ...Option) (*Client, error) {
	probe := &Client{httpClient: http.DefaultClient}
	for _, option := range options {
		option(probe)
	}
	issuer := firstNonEmpty(cfg.Endpoints.Issuer, Issuer(cfg.Domain))
	if issuer == "" {
		return nil, errors.New("provider domain is required for discovery")
	}
	oidcCtx := oidc.ClientContext(ctx, probe.httpClient)
	discovered, err := oidc.NewProvider(oidcCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover provider %s: %w", issuer, err)
	}
	var extra discoveryClaims
	if err := discovered.Claims(&extra); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	endpoint := discovered.Endpoint()
	cfg.Endpoints.Issuer = issuer
	cfg.Endpoints.AuthURL = firstNonEmpty(cfg.Endpoints.AuthURL, endpoint.AuthURL)
	cfg.Endpoints.TokenURL = firstNonEmpty(cfg.Endpoints.TokenURL, endpoint.TokenURL)
	cfg.Endpoints.BackchannelURL = firstNonEmpty(cfg.Endpoints.BackchannelURL, extra.BackchannelURL)
	cfg.Endpoints.PARURL = firstNonEmpty(cfg.Endpoints.PARURL, extra.PARURL)
	ret, err := New(cfg, options...)
	if err != nil {
		return nil, err
	}
	ret.verifier = discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return ret, nil
}

// Endpoints returns the resolved endpoints.
func (c *Client) Endpoints() Endpoints {
	return c.config.Endpoints
}

// ExchangeCode performs the authorization-code grant with the PKCE verifier.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// postForm sends a client-authenticated form request and returns the response body.
// Provider error responses are returned as *oauth2.RetrieveError.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	if endpoint == "" {
		return nil, errors.New("provider endpoint is not configured")
	}
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json")
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		retrieveErr := &oauth2.RetrieveError{Response: response, Body: body}
		var payload struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
			ErrorURI         string `json:"error_uri"`
		}
		if json.Unmarshal(body, &payload) == nil {
			retrieveErr.ErrorCode = payload.Error
			retrieveErr.ErrorDescription = payload.ErrorDescription
			retrieveErr.ErrorURI = payload.ErrorURI
		}
		return nil, retrieveErr
	}
	return body, nil
}

// ErrorCode returns the OAuth error code carried by err, if any.
func ErrorCode(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.ErrorCode
	}
	return ""
}

// ErrorDescription returns the OAuth error description carried by err, if any.
func ErrorDescription(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.ErrorDescription
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
