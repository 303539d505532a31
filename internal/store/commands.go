package store

import (
	"context"
	"fmt"
	"math"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/internal/notifications"
	"auction-sync/utils"
)

// Connect opens the live channel as the viewer. Connection status in the
// state follows the channel's own transitions.
func (s *Store) Connect(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.live.Connect(ctx, s.userID); err != nil {
		err = fmt.Errorf("store: connect live channel: %w", err)
		s.fail("connect", err)
		return err
	}
	return nil
}

// Disconnect closes the live channel. Commands keep working over REST.
func (s *Store) Disconnect() error {
	return s.live.Disconnect()
}

// probeConnectivity records a fresh connectivity status. It never blocks
// the request that follows.
func (s *Store) probeConnectivity(ctx context.Context) {
	if s.probe == nil {
		return
	}

	status := s.probe.CheckFull(ctx)
	if !status.BackendReachable {
		utils.Warn("backend looks unreachable, proceeding anyway", map[string]any{
			"component": "store",
			"online":    status.IsOnline,
			"error":     status.Error,
		})
	}

	s.mu.Lock()
	s.connectivity = status
	s.mu.Unlock()
}

// FetchAuctions replaces the local auction list with the service's. On
// failure the previous list is kept and the error flag is set.
func (s *Store) FetchAuctions(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.mu.Lock()
	s.loading = true
	s.lastErr = ""
	s.commitLocked(false)
	s.mu.Unlock()

	s.probeConnectivity(ctx)
	list, err := s.api.ListAuctions(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		err = fmt.Errorf("store: fetch auctions: %w", err)
		s.failLocked("fetch_auctions", err)
		return err
	}

	s.replaceAllLocked(list, "fetch_auctions")
	s.commitLocked(false)
	utils.Debug("auctions fetched", map[string]any{"component": "store", "count": len(list)})
	return nil
}

// FetchAuction loads one auction, merges it into the list and makes it
// the current auction.
func (s *Store) FetchAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if err := s.checkOpen(); err != nil {
		return models.Auction{}, err
	}

	auction, err := s.api.GetAuction(ctx, auctionID)
	if err != nil {
		err = fmt.Errorf("store: fetch auction %s: %w", auctionID, err)
		s.fail("fetch_auction", err)
		return models.Auction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, _ := s.upsertLocked(auction, "fetch_auction", false)
	cur := s.auctions[idx].Clone()
	s.current = &cur
	s.commitLocked(false)
	return cur.Clone(), nil
}

// SetActiveAuction moves the viewer's room membership to auctionID. An
// empty id only leaves the previous room.
func (s *Store) SetActiveAuction(auctionID string) {
	s.mu.Lock()
	prev := s.activeID
	s.activeID = auctionID
	if idx := s.indexOf(auctionID); idx >= 0 {
		cur := s.auctions[idx].Clone()
		s.current = &cur
	} else {
		// FetchAuction fills it in once the auction is loaded
		s.current = nil
	}
	s.commitLocked(false)
	s.mu.Unlock()

	if prev == auctionID {
		return
	}
	if prev != "" {
		s.live.LeaveAuction(prev)
	}
	if auctionID != "" {
		s.live.JoinAuction(auctionID)
	}
}

// PlaceBid sends the bid over the live channel when it is connected and
// leaves the state to the bid_placed event that follows. Otherwise it
// falls back to REST and applies the accepted bid locally.
func (s *Store) PlaceBid(ctx context.Context, auctionID string, amount float64, userID, userName string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if auctionID == "" || userID == "" {
		return fmt.Errorf("store: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid)
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("store: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}

	if s.live.PlaceBid(auctionID, amount, userID, userName) {
		utils.Debug("bid sent over live channel", map[string]any{"component": "store", "auction_id": auctionID, "amount": amount})
		return nil
	}

	s.metrics.RecordRESTFallback()
	utils.Info("live channel unavailable, placing bid over REST", map[string]any{"component": "store", "auction_id": auctionID})

	bid, err := s.api.PlaceBid(ctx, auctionID, amount, userID, userName)
	if err != nil {
		err = fmt.Errorf("store: place bid on %s: %w", auctionID, err)
		s.fail("place_bid", err)
		return err
	}

	if bid.AuctionID == "" {
		bid.AuctionID = auctionID
	}
	if bid.UserID == "" {
		bid.UserID = userID
	}
	if bid.UserName == "" {
		bid.UserName = userName
	}
	if bid.Amount == 0 {
		bid.Amount = amount
	}
	if bid.Timestamp.IsZero() {
		bid.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	auction := s.applyAcceptedBidLocked(bid)
	s.addUserBidLocked(bid)
	// the bidder sees their own confirmation even when it is not the viewer
	s.raiseForLocked(notifications.Input{
		Kind:    notifications.KindBidPlaced,
		Auction: auction,
		Bid:     &bid,
	}, notifications.Viewer{UserID: bid.UserID, Watched: s.watched})
	s.commitLocked(true)
	return nil
}

// applyAcceptedBidLocked folds a REST-confirmed bid into its auction.
// A bid already present, because its push event won the race, is not
// counted twice.
func (s *Store) applyAcceptedBidLocked(bid models.Bid) models.Auction {
	idx := s.indexOf(bid.AuctionID)
	if idx < 0 {
		return models.Auction{ID: bid.AuctionID}
	}

	a := &s.auctions[idx]
	for _, b := range a.Bids {
		if bid.ID != "" && b.ID == bid.ID {
			return *a
		}
	}

	// a first bid may equal the start price that CurrentBid is seeded with
	if bid.Amount > a.CurrentBid || (a.BidCount == 0 && bid.Amount >= a.CurrentBid) {
		a.CurrentBid = bid.Amount
		a.HighestBidder = bid.UserID
		a.HighestBidderName = bid.UserName
	}
	a.Bids = append([]models.Bid{bid}, a.Bids...)
	a.BidCount++
	s.syncCurrentLocked(idx)
	return *a
}

// ToggleWatch flips the viewer's watch on auctionID. Local state changes
// only after the service accepted the change. It returns the new flag.
func (s *Store) ToggleWatch(ctx context.Context, auctionID, userID string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	s.mu.Lock()
	desired := !s.watched[auctionID]
	s.mu.Unlock()

	if err := s.api.SetWatch(ctx, auctionID, userID, desired); err != nil {
		err = fmt.Errorf("store: set watch on %s: %w", auctionID, err)
		s.fail("toggle_watch", err)
		return !desired, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watched[auctionID] == desired {
		// a concurrent toggle already got here
		return desired, nil
	}

	s.setWatchedLocked(auctionID, desired)
	if idx := s.indexOf(auctionID); idx >= 0 {
		a := &s.auctions[idx]
		a.IsWatched = desired
		if desired {
			a.Watchers++
		} else if a.Watchers > 0 {
			a.Watchers--
		}
		s.syncCurrentLocked(idx)
	}
	s.commitLocked(true)
	return desired, nil
}

// CreateAuction creates an auction over REST and puts it at the front
// of the list and of the viewer's own auctions.
func (s *Store) CreateAuction(ctx context.Context, data models.CreateAuctionData, userID, userName string) (models.Auction, error) {
	if err := s.checkOpen(); err != nil {
		return models.Auction{}, err
	}
	if data.SellerID == "" {
		data.SellerID = userID
	}
	if data.SellerName == "" {
		data.SellerName = userName
	}
	if data.StartPrice <= 0 {
		return models.Auction{}, fmt.Errorf("store: %w - non-positive start price", biddingerrors.ErrInvalidAuction)
	}
	if !data.EndTime.IsZero() && !data.EndTime.After(data.StartTime) {
		return models.Auction{}, fmt.Errorf("store: %w - end time must be after start time", biddingerrors.ErrInvalidAuction)
	}

	created, err := s.api.CreateAuction(ctx, data)
	if err != nil {
		err = fmt.Errorf("store: create auction: %w", err)
		s.fail("create_auction", err)
		return models.Auction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, _ := s.upsertLocked(created, "create_auction", true)

	own := s.auctions[idx].Clone()
	mine := make([]models.Auction, 0, len(s.userAuctions)+1)
	mine = append(mine, own)
	for _, a := range s.userAuctions {
		if a.ID != own.ID {
			mine = append(mine, a)
		}
	}
	s.userAuctions = mine
	s.commitLocked(true)
	return own.Clone(), nil
}

// EndAuction asks the service to end an auction and applies the final
// snapshot the same way an auction_ended event is applied.
func (s *Store) EndAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if err := s.checkOpen(); err != nil {
		return models.Auction{}, err
	}

	final, err := s.api.EndAuction(ctx, auctionID)
	if err != nil {
		err = fmt.Errorf("store: end auction %s: %w", auctionID, err)
		s.fail("end_auction", err)
		return models.Auction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changed, persist := s.onAuctionEndedLocked(final, "end_auction")
	if changed {
		s.commitLocked(persist)
	}
	if idx := s.indexOf(auctionID); idx >= 0 {
		return s.auctions[idx].Clone(), nil
	}
	final.Status = models.StatusEnded
	return final, nil
}

// FetchUserCars lists the cars owned by userID, or by the viewer when
// userID is empty.
func (s *Store) FetchUserCars(ctx context.Context, userID string) ([]models.Car, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if userID == "" {
		userID = s.userID
	}

	cars, err := s.api.UserCars(ctx, userID)
	if err != nil {
		err = fmt.Errorf("store: fetch cars for %s: %w", userID, err)
		s.fail("fetch_user_cars", err)
		return nil, err
	}
	return cars, nil
}
