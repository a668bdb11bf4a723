package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"DATASTORE_TYPE", "CACHE_TYPE", "STATUS_TTL", "JWT_SECRET", "SEND_BUFFER", "CHAT_LIST_CACHE_TTL", "STATUS_SWEEP_INTERVAL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DatastoreMemory, cfg.DatastoreType)
	require.Equal(t, CacheNone, cfg.CacheType)
	require.Equal(t, 24*time.Hour, cfg.StatusTTL)
	require.Equal(t, 256, cfg.SendBuffer)
	require.False(t, cfg.AuthEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATASTORE_TYPE", "Mongo")
	t.Setenv("STATUS_TTL", "1h")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CACHE_TYPE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DatastoreMongo, cfg.DatastoreType)
	require.Equal(t, time.Hour, cfg.StatusTTL)
	require.True(t, cfg.AuthEnabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATASTORE_TYPE", "cassandra")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("DATASTORE_TYPE", "memory")
	t.Setenv("CACHE_TYPE", "redis")
	t.Setenv("REDIS_URL", "")
	_, err = Load()
	require.ErrorContains(t, err, "REDIS_URL")

	t.Setenv("CACHE_TYPE", "none")
	t.Setenv("STATUS_TTL", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "STATUS_TTL")
}
