package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/config"
	"fintrack/internal/storage"
)

func TestStoreTarget(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", SQLiteDBPath: "/tmp/a.db", DatabaseURL: "postgres://x"}
	driver, dsn, err := StoreTarget(cfg)
	require.NoError(t, err)
	assert.Equal(t, storage.DriverSQLite, driver)
	assert.Equal(t, "/tmp/a.db", dsn)

	cfg.DBDriver = "postgres"
	driver, dsn, err = StoreTarget(cfg)
	require.NoError(t, err)
	assert.Equal(t, storage.DriverPostgres, driver)
	assert.Equal(t, "postgres://x", dsn)

	cfg.DBDriver = "oracle"
	_, _, err = StoreTarget(cfg)
	assert.Error(t, err)
}

func TestOpenStoreMigratesSQLite(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", SQLiteDBPath: filepath.Join(t.TempDir(), "nested", "cli.db")}
	store, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.NoError(t, store.Ping(context.Background()))
}

func TestMemoryCaches(t *testing.T) {
	caches, err := NewCaches(context.Background(), &config.Config{CacheBackend: "memory", CacheTTL: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, "memory", caches.Backend())

	ctx := context.Background()
	c := NewCache[string](caches, "exported", 2)
	require.NoError(t, c.Set(ctx, "tx-1", "Sheet!A2"))
	v, ok, err := c.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Sheet!A2", v)

	assert.Equal(t, 0, caches.Manager.CleanNow())
	assert.NoError(t, caches.Close())
	assert.NoError(t, caches.Close())
}

func TestRedisCachesNeedReachableServer(t *testing.T) {
	_, err := NewCaches(context.Background(), &config.Config{
		CacheBackend: "redis",
		RedisURL:     "redis://127.0.0.1:1/0?dial_timeout=50ms&max_retries=-1",
	})
	assert.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug", "ctl")
	assert.Equal(t, "ctl", logger.Component())
	assert.True(t, logger.Enabled(context.Background(), -4))
}
