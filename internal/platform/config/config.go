// Package config loads process configuration from the environment so main
// stays lean. Defaults target local development; production overrides all
// of them.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures everything the server process needs at startup.
type Config struct {
	Addr string `env:"CIVREG_ADDR" envDefault:":8080"`

	DatabaseURL string `env:"DATABASE_URL"`

	RedisURL          string        `env:"REDIS_URL"`
	ProjectionTTL     time.Duration `env:"PROJECTION_CACHE_TTL" envDefault:"10m"`
	RedisPoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	RedisDialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	RedisReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	RedisWriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	FeedTopic    string   `env:"FEED_TOPIC" envDefault:"civreg.events"`

	OutboxInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`

	StorageURL     string        `env:"STORAGE_URL"`
	StorageTimeout time.Duration `env:"STORAGE_TIMEOUT" envDefault:"10s"`

	AwaitMaxWait time.Duration `env:"CREATE_AWAIT_MAX_WAIT" envDefault:"5s"`

	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"15s"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
