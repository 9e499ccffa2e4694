package config_test

import (
	"LendingAggregator/internal/config"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StoreMemory, cfg.StoreKind)
	assert.Equal(t, config.PriceFeedStatic, cfg.PriceFeedKind)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "@every 1m", cfg.ReconcileSchedule)
	assert.False(t, cfg.IngestionEnabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LAGG_STORE", "Postgres")
	t.Setenv("LAGG_PRICE_FEED", "redis")
	t.Setenv("LAGG_DEDUP_LRU_CAPACITY", "42")
	t.Setenv("LAGG_PROVIDER_TIMEOUT", "250ms")
	t.Setenv("LAGG_INGESTION_ENABLED", "true")
	t.Setenv("LAGG_NATS_URL", "nats://nats:4222")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StorePostgres, cfg.StoreKind)
	assert.Equal(t, config.PriceFeedRedis, cfg.PriceFeedKind)
	assert.Equal(t, 42, cfg.DedupLRUCapacity)
	assert.Equal(t, 250*time.Millisecond, cfg.ProviderTimeout)
	assert.True(t, cfg.IngestionEnabled)
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("LAGG_DEDUP_LRU_CAPACITY", "lots")
	t.Setenv("LAGG_PROVIDER_TIMEOUT", "soon")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 100_000, cfg.DedupLRUCapacity)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"LAGG_STORE": "sqlite"}},
		{"unknown feed", map[string]string{"LAGG_PRICE_FEED": "oracle"}},
		{"ingestion without nats", map[string]string{"LAGG_INGESTION_ENABLED": "1"}},
		{"zero lru", map[string]string{"LAGG_DEDUP_LRU_CAPACITY": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LAGG_HTTP_ADDR=:18080\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LAGG_HTTP_ADDR") })

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":18080", cfg.HTTPAddr)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
