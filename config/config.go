// Package config loads worker and intake settings from an optional YAML file
// overridden by ASYNCAUTH_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	redis "github.com/redis/go-redis/v9"
	"github.com/viant/asyncauth"
	"github.com/viant/asyncauth/provider"
	"github.com/viant/asyncauth/queue"
	"github.com/viant/asyncauth/ticket"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "ASYNCAUTH_"

// Config holds settings shared by the commands.
type Config struct {
	ProviderDomain    string             `yaml:"providerDomain" env:"PROVIDER_DOMAIN"`
	ProviderDiscovery bool               `yaml:"providerDiscovery" env:"PROVIDER_DISCOVERY"`
	Endpoints         provider.Endpoints `yaml:"endpoints"`
	ClientID          string             `yaml:"clientID" env:"CLIENT_ID"`
	ClientSecret      string             `yaml:"clientSecret" env:"CLIENT_SECRET"`
	Audience          string             `yaml:"audience" env:"AUDIENCE"`
	Scope             string             `yaml:"scope" env:"SCOPE"`

	// Backchannel enables the push approval attempt before the deferred fallback.
	Backchannel     bool          `yaml:"backchannel" env:"BACKCHANNEL"`
	BindingMessage  string        `yaml:"bindingMessage" env:"BINDING_MESSAGE"`
	RequestedExpiry time.Duration `yaml:"requestedExpiry" env:"REQUESTED_EXPIRY"`

	SigningSecret string        `yaml:"signingSecret" env:"SIGNING_SECRET"`
	TicketTTL     time.Duration `yaml:"ticketTTL" env:"TICKET_TTL"`
	// AppHost is the public base URL of the intake service.
	AppHost string `yaml:"appHost" env:"APP_HOST"`

	RedisAddr     string `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redisDB" env:"REDIS_DB"`
	KeyPrefix     string `yaml:"keyPrefix" env:"KEY_PREFIX"`
	QueueName     string `yaml:"queueName" env:"QUEUE_NAME"`

	Workers      int           `yaml:"workers" env:"WORKERS"`
	DrainTimeout time.Duration `yaml:"drainTimeout" env:"DRAIN_TIMEOUT"`
	MaxAttempts  int           `yaml:"maxAttempts" env:"MAX_ATTEMPTS"`
	ListenAddr   string        `yaml:"listenAddr" env:"LISTEN_ADDR"`

	LogLevel  string `yaml:"logLevel" env:"LOG_LEVEL"`
	LogFormat string `yaml:"logFormat" env:"LOG_FORMAT"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Scope:           "openid",
		Backchannel:     true,
		BindingMessage:  "approve-item",
		RequestedExpiry: 300 * time.Second,
		TicketTTL:       ticket.DefaultTTL,
		RedisAddr:       "localhost:6379",
		KeyPrefix:       "asyncauth:",
		QueueName:       queue.DefaultName,
		Workers:         4,
		DrainTimeout:    30 * time.Second,
		MaxAttempts:     asyncauth.DefaultMaxAttempts,
		ListenAddr:      ":3000",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads path, when given, over the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	return load(path, env.Options{Prefix: EnvPrefix})
}

func load(path string, options env.Options) (*Config, error) {
	ret := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, ret); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if options.Prefix == "" {
		options.Prefix = EnvPrefix
	}
	if err := env.ParseWithOptions(ret, options); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return ret, nil
}

// Validate reports every missing or invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		errs = append(errs, errors.New("client id and secret are required"))
	}
	if strings.TrimSpace(c.ProviderDomain) == "" && c.Endpoints.TokenURL == "" {
		errs = append(errs, errors.New("provider domain or token endpoint is required"))
	}
	if len(c.SigningSecret) < ticket.MinSecretLength {
		errs = append(errs, fmt.Errorf("signing secret must have at least %d bytes", ticket.MinSecretLength))
	}
	if strings.TrimSpace(c.AppHost) == "" {
		errs = append(errs, errors.New("app host is required"))
	}
	if c.TicketTTL <= 0 {
		errs = append(errs, errors.New("ticket ttl must be positive"))
	}
	if c.RequestedExpiry <= 0 {
		errs = append(errs, errors.New("requested expiry must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	return errors.Join(errs...)
}

// Provider returns the identity provider client settings.
func (c *Config) Provider() provider.Config {
	return provider.Config{
		Domain:       c.ProviderDomain,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  strings.TrimRight(c.AppHost, "/") + asyncauth.CallbackPath,
		Endpoints:    c.Endpoints,
	}
}

// Redis returns the Redis client options.
func (c *Config) Redis() *redis.Options {
	return &redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return asyncauth.NewLogger(w, asyncauth.ParseLevel(c.LogLevel), c.LogFormat)
}
