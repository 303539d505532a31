// Package store is the auction synchronization core. It owns the local
// view of auctions, bids, watches and notifications and reconciles the
// live event stream with REST responses.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/internal/notifications"
	"auction-sync/internal/observability"
	"auction-sync/internal/persistence"
	"auction-sync/utils"
)

const (
	defaultLoadTimeout = 5 * time.Second
	defaultSaveTimeout = 5 * time.Second
)

// Deps are the collaborators a Store is built from. Live and API are
// required; the rest may be nil.
type Deps struct {
	Live      LiveChannel
	API       AuctionAPI
	Probe     Prober
	Persister persistence.Persister
	Metrics   *observability.Metrics
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Options identify the viewer and tune the notification feed.
type Options struct {
	UserID          string
	UserName        string
	FeedCapacity    int
	DedupWindow     time.Duration
	EndingThreshold time.Duration
}

// State is a point-in-time copy of everything the store holds.
type State struct {
	Auctions         []models.Auction
	CurrentAuction   *models.Auction
	UserBids         []models.Bid
	UserAuctions     []models.Auction
	WatchedAuctions  []string
	Notifications    []models.Notification
	ConnectionStatus models.ConnectionStatus
	Connectivity     models.ConnectivityStatus
	ActiveAuctionID  string
	Loading          bool
	Error            string
	LastUpdate       time.Time
}

// Store is safe for concurrent use. A single mutex serializes every
// mutation; network calls are made without holding it.
type Store struct {
	live      LiveChannel
	api       AuctionAPI
	probe     Prober
	persister persistence.Persister
	metrics   *observability.Metrics
	now       func() time.Time

	userID   string
	userName string

	mu           sync.Mutex
	auctions     []models.Auction
	current      *models.Auction
	userBids     []models.Bid
	userAuctions []models.Auction
	watched      map[string]bool
	watchOrder   []string
	feed         *notifications.Feed
	ending       *notifications.ThresholdTracker
	connection   models.ConnectionStatus
	connectivity models.ConnectivityStatus
	activeID     string
	loading      bool
	lastErr      string
	lastUpdate   time.Time
	dropped      bool

	subs    map[int]chan State
	nextSub int

	saveCh    chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	closed    bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// New builds a store and restores the viewer's persisted state.
func New(ctx context.Context, deps Deps, opts Options) (*Store, error) {
	if deps.Live == nil || deps.API == nil {
		return nil, fmt.Errorf("store: live channel and api are required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("store: user id is required")
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		live:       deps.Live,
		api:        deps.API,
		probe:      deps.Probe,
		persister:  deps.Persister,
		metrics:    deps.Metrics,
		now:        now,
		userID:     opts.UserID,
		userName:   opts.UserName,
		watched:    make(map[string]bool),
		ending:     notifications.NewThresholdTracker(opts.EndingThreshold),
		connection: models.ConnectionDisconnected,
		subs:       make(map[int]chan State),
		saveCh:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	var saved persistence.State
	if s.persister != nil {
		loadCtx, cancel := context.WithTimeout(ctx, defaultLoadTimeout)
		defer cancel()

		var err error
		saved, err = s.persister.Load(loadCtx, s.userID)
		if err != nil {
			return nil, fmt.Errorf("store: load persisted state for %s: %w", s.userID, err)
		}
	}

	for _, id := range saved.WatchedAuctions {
		if !s.watched[id] {
			s.watched[id] = true
			s.watchOrder = append(s.watchOrder, id)
		}
	}
	s.userBids = saved.UserBids
	s.userAuctions = saved.UserAuctions
	s.lastUpdate = saved.LastUpdate
	s.feed = notifications.NewFeed(opts.FeedCapacity, opts.DedupWindow, saved.Notifications)

	if s.persister != nil {
		s.wg.Add(1)
		go s.saveLoop()
	}

	utils.Info("store ready", map[string]any{
		"component":     "store",
		"user_id":       s.userID,
		"watched":       len(s.watchOrder),
		"user_bids":     len(s.userBids),
		"notifications": s.feed.Len(),
	})
	return s, nil
}

// Start begins consuming live events until ctx is done or the store is
// closed. Calling it more than once has no effect.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		events := s.live.Events()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-s.done:
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					s.Ingest(ev)
				}
			}
		}()
	})
}

// Close stops event consumption, flushes persisted state and disconnects
// the live channel. The persister and channel themselves stay open.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.mu.Unlock()

		// disconnect while the consumer still drains the channel's events
		dErr := s.live.Disconnect()

		close(s.done)
		s.wg.Wait()

		if s.persister != nil {
			err = s.save()
		}
		if dErr != nil && err == nil {
			err = dErr
		}
	})
	return err
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return biddingerrors.ErrStoreClosed
	}
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := State{
		Auctions:         make([]models.Auction, len(s.auctions)),
		UserBids:         append([]models.Bid(nil), s.userBids...),
		UserAuctions:     make([]models.Auction, len(s.userAuctions)),
		WatchedAuctions:  append([]string(nil), s.watchOrder...),
		Notifications:    s.feed.Items(),
		ConnectionStatus: s.connection,
		Connectivity:     s.connectivity,
		ActiveAuctionID:  s.activeID,
		Loading:          s.loading,
		Error:            s.lastErr,
		LastUpdate:       s.lastUpdate,
	}
	for i, a := range s.auctions {
		st.Auctions[i] = a.Clone()
	}
	for i, a := range s.userAuctions {
		st.UserAuctions[i] = a.Clone()
	}
	if s.current != nil {
		cur := s.current.Clone()
		st.CurrentAuction = &cur
	}
	return st
}

// Subscribe delivers a snapshot after every mutation. Delivery is
// coalesced: a slow reader only ever sees the latest state. The returned
// function cancels the subscription.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
}

// commitLocked stamps the mutation, schedules a save when the persisted
// slice changed and publishes to subscribers.
func (s *Store) commitLocked(persist bool) {
	s.lastUpdate = s.now()
	if persist && s.persister != nil {
		select {
		case s.saveCh <- struct{}{}:
		default:
		}
	}
	if len(s.subs) == 0 {
		return
	}

	st := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed.UnreadCount()
}

// MarkNotificationRead marks one notification as read.
func (s *Store) MarkNotificationRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.feed.MarkRead(id) {
		return false
	}
	s.commitLocked(true)
	return true
}

// MarkAllNotificationsRead marks every notification as read.
func (s *Store) MarkAllNotificationsRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.feed.MarkAllRead()
	if n > 0 {
		s.commitLocked(true)
	}
	return n
}

// ClearError resets the error flag.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == "" {
		return
	}
	s.lastErr = ""
	s.commitLocked(false)
}

func (s *Store) failLocked(command string, err error) {
	s.lastErr = err.Error()
	s.metrics.RecordCommandFailure(command)
	utils.Error("command failed", map[string]any{"component": "store", "command": command, "error": err.Error()})
	s.commitLocked(false)
}

func (s *Store) fail(command string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(command, err)
}

func (s *Store) indexOf(auctionID string) int {
	for i := range s.auctions {
		if s.auctions[i].ID == auctionID {
			return i
		}
	}
	return -1
}

func (s *Store) viewer() notifications.Viewer {
	return notifications.Viewer{UserID: s.userID, Watched: s.watched}
}

// raiseLocked derives and records a notification. It reports whether
// the feed changed.
func (s *Store) raiseLocked(in notifications.Input) bool {
	return s.raiseForLocked(in, s.viewer())
}

// raiseForLocked is raiseLocked with the notification derived for viewer.
func (s *Store) raiseForLocked(in notifications.Input, viewer notifications.Viewer) bool {
	in.At = s.now()
	n := notifications.Derive(in, viewer)
	if n == nil {
		return false
	}
	stored, coalesced := s.feed.Add(*n)
	s.metrics.RecordNotification(stored.Type)
	utils.Debug("notification raised", map[string]any{
		"component":  "store",
		"type":       stored.Type,
		"auction_id": stored.AuctionID,
		"coalesced":  coalesced,
	})
	return true
}
