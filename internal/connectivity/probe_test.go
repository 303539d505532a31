package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, delay time.Duration, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestProbe_CheckFull(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("all_reachable", func(t *testing.T) {
		t.Parallel()
		network := newServer(t, http.StatusNoContent, 0, nil)
		backend := newServer(t, http.StatusOK, 0, nil)

		probe := NewProbe(network.URL, backend.URL, WithClock(func() time.Time { return fixed }))
		status := probe.CheckFull(context.Background())

		require.True(t, status.IsOnline)
		require.True(t, status.BackendReachable)
		require.Empty(t, status.Error)
		require.Equal(t, fixed, status.LastCheck)
		require.Equal(t, status, probe.Last())
	})

	t.Run("backend_down", func(t *testing.T) {
		t.Parallel()
		network := newServer(t, http.StatusOK, 0, nil)
		backend := newServer(t, http.StatusServiceUnavailable, 0, nil)

		status := NewProbe(network.URL, backend.URL).CheckFull(context.Background())
		require.True(t, status.IsOnline)
		require.False(t, status.BackendReachable)
	})

	t.Run("network_unreachable_skips_backend", func(t *testing.T) {
		t.Parallel()
		network := newServer(t, http.StatusOK, 0, nil)
		networkURL := network.URL
		network.Close()

		var backendHits atomic.Int32
		backend := newServer(t, http.StatusOK, 0, &backendHits)

		status := NewProbe(networkURL, backend.URL).CheckFull(context.Background())
		require.False(t, status.IsOnline)
		require.False(t, status.BackendReachable)
		require.NotEmpty(t, status.Error)
		require.Zero(t, backendHits.Load())
	})

	t.Run("network_timeout_fails_closed", func(t *testing.T) {
		t.Parallel()
		network := newServer(t, http.StatusOK, time.Second, nil)
		backend := newServer(t, http.StatusOK, 0, nil)

		status := NewProbe(network.URL, backend.URL, WithTimeout(20*time.Millisecond)).CheckFull(context.Background())
		require.False(t, status.IsOnline)
		require.False(t, status.BackendReachable)
	})

	t.Run("invalid_url_fails_closed", func(t *testing.T) {
		t.Parallel()
		status := NewProbe("://bad", "://bad").CheckFull(context.Background())
		require.False(t, status.IsOnline)
		require.False(t, status.BackendReachable)
	})
}

func TestProbe_ResultReplacesPrevious(t *testing.T) {
	t.Parallel()

	network := newServer(t, http.StatusOK, 0, nil)
	backend := newServer(t, http.StatusOK, 0, nil)
	probe := NewProbe(network.URL, backend.URL)

	first := probe.CheckFull(context.Background())
	require.True(t, first.BackendReachable)

	backend.Close()
	second := probe.CheckFull(context.Background())
	require.False(t, second.BackendReachable)
	require.Equal(t, "backend unreachable", probe.Last().Error)
}
