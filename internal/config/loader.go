package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "SKILIFT_"
	envConfigFile = "SKILIFT_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if SKILIFT_CONFIG is set
//  3. env (prefix SKILIFT_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// SKILIFT_AMQP_URL -> amqp_url; underscores are kept to match the koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem found, each wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if c.Addr == "" {
		bad("addr must not be empty")
	}
	if c.AMQPURL == "" {
		bad("amqp_url must not be empty")
	}
	if c.QueueName == "" {
		bad("queue_name must not be empty")
	}
	if c.ChannelPoolSize <= 0 {
		bad("channel_pool_size must be positive, got %d", c.ChannelPoolSize)
	}
	if c.ConsumerWorkers <= 0 {
		bad("consumer_workers must be positive, got %d", c.ConsumerWorkers)
	}
	if c.ConsumerPrefetch <= 0 {
		bad("consumer_prefetch must be positive, got %d", c.ConsumerPrefetch)
	}
	if c.PublishTimeoutMS <= 0 {
		bad("publish_timeout_ms must be positive, got %d", c.PublishTimeoutMS)
	}
	if c.PersistTimeoutMS <= 0 {
		bad("persist_timeout_ms must be positive, got %d", c.PersistTimeoutMS)
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendDynamoDB:
		if c.DynamoDBTable == "" || c.DynamoDBRegion == "" {
			bad("dynamodb backend needs dynamodb_table and dynamodb_region")
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			bad("postgres backend needs postgres_url")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			bad("redis backend needs redis_addr")
		}
	default:
		bad("unknown store_backend %q", c.StoreBackend)
	}

	return errors.Join(errs...)
}
