// Package cli holds the startup steps shared by cmd/fintrack,
// cmd/fintrack-worker and cmd/fintrackctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// SetupLogger builds the process logger at level and makes it the slog default.
func SetupLogger(level, component string) *log.Logger {
	logger := log.New(log.Config{Level: log.ParseLevel(level), Component: component})
	log.SetDefault(logger)
	return logger
}

// LoadConfig reads .env when present, then the environment, and validates.
func LoadConfig() (*config.Config, error) {
	config.LoadDotEnv()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StoreTarget picks the driver and DSN the configuration points at.
func StoreTarget(cfg *config.Config) (storage.Driver, string, error) {
	driver, err := storage.ParseDriver(cfg.DBDriver)
	if err != nil {
		return "", "", err
	}
	if driver == storage.DriverPostgres {
		return driver, cfg.DatabaseURL, nil
	}
	return driver, cfg.SQLiteDBPath, nil
}

// OpenStore connects to the configured database and migrates it.
func OpenStore(ctx context.Context, cfg *config.Config) (*storage.Store, error) {
	driver, dsn, err := StoreTarget(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return storage.Open(ctx, driver, dsn)
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Caches hands out caches on the configured backend. In memory every cache
// is an LRU registered with Manager; on redis they share one client.
type Caches struct {
	Manager *cache.Manager
	redis   *redis.Client
	ttl     time.Duration
}

func NewCaches(ctx context.Context, cfg *config.Config) (*Caches, error) {
	c := &Caches{Manager: cache.NewManager(), ttl: cfg.CacheTTL}
	if cfg.CacheBackend == "redis" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		c.redis = client
	}
	return c, nil
}

// Backend names where values live, for logging.
func (c *Caches) Backend() string {
	if c.redis != nil {
		return "redis"
	}
	return "memory"
}

// NewCache returns a cache under prefix; size bounds the in-memory variant.
func NewCache[T any](c *Caches, prefix string, size int) cache.Cache[T] {
	if c.redis != nil {
		return cache.NewRedisCache[T](c.redis, "fintrack:"+prefix+":", c.ttl)
	}
	lru := cache.NewLRUCache[T](size, c.ttl)
	c.Manager.Register(lru)
	return lru
}

func (c *Caches) Close() error {
	c.Manager.Stop()
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			return fmt.Errorf("close redis: %w", err)
		}
	}
	return nil
}
