package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"auction-sync/internal/models"

	"github.com/stretchr/testify/require"
)

func sampleState() State {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return State{
		WatchedAuctions: []string{"a1", "a2"},
		UserBids:        []models.Bid{{ID: "b1", AuctionID: "a1", UserID: "u1", Amount: 15000, Timestamp: at}},
		UserAuctions:    []models.Auction{{ID: "a3", SellerID: "u1", Status: models.StatusUpcoming}},
		Notifications:   []models.Notification{{ID: "n1", Type: models.NotificationBidPlaced, Priority: models.PriorityMedium, Timestamp: at}},
		LastUpdate:      at,
	}
}

func TestPersisters_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sqliteStore, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	backends := map[string]Persister{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}

	for name, p := range backends {
		p := p
		t.Run(name, func(t *testing.T) {
			empty, err := p.Load(ctx, "nobody")
			require.NoError(t, err)
			require.Empty(t, empty.WatchedAuctions)
			require.True(t, empty.LastUpdate.IsZero())

			want := sampleState()
			require.NoError(t, p.Save(ctx, "u1", want))

			got, err := p.Load(ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, want, got)

			// overwrite
			want.WatchedAuctions = []string{"a9"}
			require.NoError(t, p.Save(ctx, "u1", want))
			got, err = p.Load(ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, []string{"a9"}, got.WatchedAuctions)
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "u1", sampleState()))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, got.WatchedAuctions)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	p, err := Open(ctx, Options{Type: TypeMemory})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, p)

	p, err = Open(ctx, Options{Type: TypeSQLite, Path: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, p)
	require.NoError(t, p.Close())

	_, err = Open(ctx, Options{Type: "etcd"})
	require.Error(t, err)

	// nothing listens on port 1
	_, err = Open(ctx, Options{Type: TypeRedis, RedisAddr: "127.0.0.1:1"})
	require.Error(t, err)
}

func TestRedisStore_Key(t *testing.T) {
	t.Parallel()

	store := newRedisStore(nil, "")
	require.Equal(t, "auction-sync:state:u1", store.key("u1"))
	require.Equal(t, "p:u1", newRedisStore(nil, "p").key("u1"))
}
