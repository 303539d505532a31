package config

import (
	"testing"
	"time"

	"auction-sync/internal/persistence"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	require.Equal(t, 3, cfg.Retry.MaxRetries)
	require.Equal(t, time.Second, cfg.Retry.BaseDelay)
	require.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
	require.Equal(t, 2.0, cfg.Retry.BackoffMultiplier)
	require.Equal(t, 100, cfg.Notifications.Capacity)
	require.Equal(t, 5*time.Minute, cfg.Notifications.EndingThreshold)
	require.Equal(t, "0.0.0.0:8080", cfg.DevServer.Address())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("RETRY_MAX_RETRIES", "5")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("PERSISTENCE_TYPE", "Redis")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("LIVE_RECONNECT_DELAY", "0s")

	cfg, err := Load()
	require.NoError(t, err)

	ro := cfg.Retry.Options()
	require.Equal(t, 5, ro.MaxRetries)
	require.Equal(t, 250*time.Millisecond, ro.BaseDelay)

	po := cfg.Persistence.Options()
	require.Equal(t, persistence.TypeRedis, po.Type)
	require.Equal(t, "cache:6380", po.RedisAddr)

	require.Zero(t, cfg.Live.ClientConfig().ReconnectDelay)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero retries", "RETRY_MAX_RETRIES", "0"},
		{"jitter above one", "RETRY_JITTER", "1.5"},
		{"unknown backend", "PERSISTENCE_TYPE", "etcd"},
		{"zero capacity", "NOTIFICATIONS_CAPACITY", "0"},
		{"unparseable duration", "RETRY_MAX_DELAY", "soon"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
