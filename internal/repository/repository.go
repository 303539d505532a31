package repository

import (
	"fmt"
	"sync"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
)

//go:generate mockgen -source=repository.go -destination=mocks.go -package=repository

// AuctionDB defines the auction storage interface for the reference service
type AuctionDB interface {
	AddAuction(auction models.Auction) error
	GetAuction(auctionID string) (models.Auction, error)
	ListAuctions() ([]models.Auction, error)
	UpdateAuction(auctionID string, fn func(a *models.Auction) error) (models.Auction, error)
	SetWatcher(auctionID, userID string, watch bool) (models.Auction, error)
	IsWatching(auctionID, userID string) bool
	AddCar(car models.Car)
	GetCarsByOwner(ownerID string) ([]models.Car, error)
}

// IdempotencyRecord is the stored response of a request that carried an
// Idempotency-Key header.
type IdempotencyRecord struct {
	Key       string
	Status    int
	Body      []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IdempotencyStore remembers responses by key so a retried request gets
// the original answer instead of repeating its side effects.
type IdempotencyStore interface {
	GetIdempotencyRecord(key string, now time.Time) (IdempotencyRecord, bool)
	SaveIdempotencyRecord(rec IdempotencyRecord)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
// and IdempotencyStore
type MemoryRepo struct {
	mu       sync.RWMutex
	auctions map[string]models.Auction      // key: auctionID -> value: auction
	order    []string                       // auction IDs, newest first
	watchers map[string]map[string]struct{} // key: auctionID -> value: set of userIDs
	cars     map[string][]models.Car        // key: ownerID -> value: cars
	keys     map[string]IdempotencyRecord   // key: idempotency key -> value: stored response
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions: make(map[string]models.Auction),
		watchers: make(map[string]map[string]struct{}),
		cars:     make(map[string][]models.Car),
		keys:     make(map[string]IdempotencyRecord),
	}
}

// AddAuction stores a new auction at the front of the listing
func (r *MemoryRepo) AddAuction(auction models.Auction) error {
	if auction.ID == "" {
		return fmt.Errorf("add auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.ID]; ok {
		return fmt.Errorf("add auction %s: %w - duplicate ID", auction.ID, biddingerrors.ErrInvalidAuction)
	}
	if auction.Revision == 0 {
		auction.Revision = 1
	}
	r.auctions[auction.ID] = auction.Clone()
	r.order = append([]string{auction.ID}, r.order...)
	return nil
}

// GetAuction returns one auction
func (r *MemoryRepo) GetAuction(auctionID string) (models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return auction.Clone(), nil
}

// ListAuctions returns every auction, newest first
func (r *MemoryRepo) ListAuctions() ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Auction, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.auctions[id].Clone())
	}
	return out, nil
}

// UpdateAuction applies fn to the stored auction atomically. The change
// is kept, and the revision bumped, only when fn succeeds.
func (r *MemoryRepo) UpdateAuction(auctionID string, fn func(a *models.Auction) error) (models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.auctions[auctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("update auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	next := current.Clone()
	if err := fn(&next); err != nil {
		return models.Auction{}, err
	}
	next.ID = auctionID
	next.Revision = current.Revision + 1
	r.auctions[auctionID] = next
	return next.Clone(), nil
}

// SetWatcher adds or removes userID from the auction's watchers and keeps
// the watcher count in step
func (r *MemoryRepo) SetWatcher(auctionID, userID string, watch bool) (models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("set watcher on %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	set := r.watchers[auctionID]
	if set == nil {
		set = make(map[string]struct{})
		r.watchers[auctionID] = set
	}

	_, watching := set[userID]
	if watching == watch {
		return auction.Clone(), nil
	}
	if watch {
		set[userID] = struct{}{}
	} else {
		delete(set, userID)
	}

	auction.Watchers = len(set)
	auction.Revision++
	r.auctions[auctionID] = auction
	return auction.Clone(), nil
}

// IsWatching reports whether userID watches the auction
func (r *MemoryRepo) IsWatching(auctionID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.watchers[auctionID][userID]
	return ok
}

// AddCar registers a car under its owner
func (r *MemoryRepo) AddCar(car models.Car) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cars[car.OwnerID] = append(r.cars[car.OwnerID], car)
}

// GetCarsByOwner returns all cars registered to ownerID
func (r *MemoryRepo) GetCarsByOwner(ownerID string) ([]models.Car, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cars, ok := r.cars[ownerID]
	if !ok || len(cars) == 0 {
		return nil, fmt.Errorf("get cars for user %s: %w", ownerID, biddingerrors.ErrUserNoCars)
	}
	return append([]models.Car(nil), cars...), nil
}

// GetIdempotencyRecord returns the stored response for key unless it has
// expired by now
func (r *MemoryRepo) GetIdempotencyRecord(key string, now time.Time) (IdempotencyRecord, bool) {
	r.mu.RLock()
	rec, ok := r.keys[key]
	r.mu.RUnlock()

	if !ok {
		return IdempotencyRecord{}, false
	}
	if !rec.ExpiresAt.IsZero() && now.After(rec.ExpiresAt) {
		r.mu.Lock()
		delete(r.keys, key)
		r.mu.Unlock()
		return IdempotencyRecord{}, false
	}
	return rec, true
}

// SaveIdempotencyRecord stores rec under its key
func (r *MemoryRepo) SaveIdempotencyRecord(rec IdempotencyRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[rec.Key] = rec
}
