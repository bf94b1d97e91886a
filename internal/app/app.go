// Package app assembles the components shared by the commands from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
	"github.com/viant/asyncauth/config"
	"github.com/viant/asyncauth/provider"
	"github.com/viant/asyncauth/queue"
	"github.com/viant/asyncauth/store"
	"github.com/viant/asyncauth/ticket"
)

// Components are the collaborators built from one configuration.
type Components struct {
	Redis    *redis.Client
	Store    *store.RedisStore
	Queue    *queue.RedisQueue
	Codec    *ticket.Codec
	Provider *provider.Client
}

// Close releases the Redis connection.
func (c *Components) Close() error {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.Close()
}

// New builds components for cfg. The provider client is created only when withProvider is set.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, withProvider bool) (*Components, error) {
	rdb := redis.NewClient(cfg.Redis())
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", cfg.RedisAddr, err)
	}
	ret := &Components{
		Redis: rdb,
		Store: store.NewRedisStore(rdb, cfg.KeyPrefix),
		Queue: queue.NewRedisQueue(rdb, cfg.KeyPrefix, cfg.QueueName, queue.WithLogger(logger), queue.WithMaxAttempts(cfg.MaxAttempts)),
	}
	codec, err := ticket.New([]byte(cfg.SigningSecret), ticket.WithTTL(cfg.TicketTTL))
	if err != nil {
		_ = ret.Close()
		return nil, err
	}
	ret.Codec = codec
	if !withProvider {
		return ret, nil
	}
	if ret.Provider, err = NewProvider(ctx, cfg); err != nil {
		_ = ret.Close()
		return nil, err
	}
	return ret, nil
}

// NewProvider creates the identity provider client, using discovery when configured.
func NewProvider(ctx context.Context, cfg *config.Config) (*provider.Client, error) {
	if cfg.ProviderDiscovery {
		return provider.Discover(ctx, cfg.Provider())
	}
	return provider.New(cfg.Provider())
}
