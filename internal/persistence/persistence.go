// Package persistence keeps the per-viewer slice of store state that
// survives restarts: watched auctions, own bids, own auctions, the
// notification feed and the last update time.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auction-sync/internal/models"
)

// State is the durable part of the store, keyed by user.
type State struct {
	WatchedAuctions []string              `json:"watchedAuctions"`
	UserBids        []models.Bid          `json:"userBids"`
	UserAuctions    []models.Auction      `json:"userAuctions"`
	Notifications   []models.Notification `json:"notifications"`
	LastUpdate      time.Time             `json:"lastUpdate"`
}

// Persister loads and saves State. Load of an unknown user returns an
// empty State and no error.
type Persister interface {
	Load(ctx context.Context, userID string) (State, error)
	Save(ctx context.Context, userID string, state State) error
	Close() error
}

// Backend types accepted by Open.
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Type      string
	Path      string
	RedisAddr string
	RedisPass string
	RedisDB   int
	KeyPrefix string
}

// Open creates the backend named by opts.Type.
func Open(ctx context.Context, opts Options) (Persister, error) {
	switch opts.Type {
	case TypeSQLite:
		return NewSQLiteStore(ctx, opts.Path)
	case TypeRedis:
		return NewRedisStore(ctx, RedisConfig{
			Addr:      opts.RedisAddr,
			Password:  opts.RedisPass,
			DB:        opts.RedisDB,
			KeyPrefix: opts.KeyPrefix,
		})
	case TypeMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown persistence type %q", opts.Type)
	}
}

func encode(state State) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

func decode(data []byte) (State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}
