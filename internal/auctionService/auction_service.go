package auction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/livechannel"
	"auction-sync/internal/models"
	"auction-sync/internal/repository"
	"auction-sync/utils"
)

// DefaultDuration is the running time given to an auction created without an end time
const DefaultDuration = time.Hour

// Broadcaster pushes live events to connected clients
type Broadcaster interface {
	BroadcastToAuction(auctionID, eventType string, payload any)
	BroadcastAll(eventType string, payload any)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastToAuction(string, string, any) {}
func (nopBroadcaster) BroadcastAll(string, any)               {}

// Option configures an AuctionService
type Option func(*AuctionService)

// WithBroadcaster sets where live events go
func WithBroadcaster(b Broadcaster) Option {
	return func(s *AuctionService) {
		if b != nil {
			s.hub = b
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *AuctionService) {
		if now != nil {
			s.now = now
		}
	}
}

// errSkip aborts an UpdateAuction without reporting a failure
var errSkip = errors.New("skip update")

// AuctionService defines the acceptance rules of the reference auction service.
// Settlement beyond marking the winning bid is out of its scope.
type AuctionService struct {
	repo repository.AuctionDB
	hub  Broadcaster
	now  func() time.Time
}

// NewAuctionService creates a new AuctionService instance
func NewAuctionService(repo repository.AuctionDB, opts ...Option) *AuctionService {
	s := &AuctionService{
		repo: repo,
		hub:  nopBroadcaster{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListAuctions returns every auction, newest first
func (s *AuctionService) ListAuctions() ([]models.Auction, error) {
	auctions, err := s.repo.ListAuctions()
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// GetAuction returns one auction
func (s *AuctionService) GetAuction(auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrAuctionNotFound)
	}

	auction, err := s.repo.GetAuction(auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// PlaceBid validates and records a bid, then announces it to the auction's room
func (s *AuctionService) PlaceBid(auctionID, userID, userName string, amount float64) (models.Bid, models.Auction, error) {
	if auctionID == "" || userID == "" {
		return models.Bid{}, models.Auction{}, fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid)
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return models.Bid{}, models.Auction{}, fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}

	bid := models.Bid{
		ID:        utils.GenerateID(),
		AuctionID: auctionID,
		UserID:    userID,
		UserName:  userName,
		Amount:    amount,
		Timestamp: s.now().UTC(),
	}

	updated, err := s.repo.UpdateAuction(auctionID, func(a *models.Auction) error {
		if err := checkBid(a, amount); err != nil {
			return err
		}
		a.Bids = append([]models.Bid{bid}, a.Bids...)
		a.BidCount++
		a.CurrentBid = amount
		a.HighestBidder = userID
		a.HighestBidderName = userName
		return nil
	})
	if err != nil {
		return models.Bid{}, models.Auction{}, fmt.Errorf("service: failed to record bid on auction %s by user %s: %w", auctionID, userID, err)
	}

	s.hub.BroadcastToAuction(auctionID, livechannel.TypeBidPlaced, livechannel.BidPlacedPayload{Bid: bid, Auction: updated})
	return bid, updated, nil
}

// checkBid applies the acceptance rules: the auction is running, the
// first bid meets the start price and later bids beat the current one
func checkBid(a *models.Auction, amount float64) error {
	if a.Status != models.StatusActive {
		return fmt.Errorf("%w - auction is %s", biddingerrors.ErrAuctionNotActive, a.Status)
	}
	if a.BidCount == 0 {
		if amount < a.StartPrice {
			return fmt.Errorf("%w - start price is %.2f", biddingerrors.ErrBidTooLow, a.StartPrice)
		}
		return nil
	}
	if amount <= a.CurrentBid {
		return fmt.Errorf("%w - current highest bid is %.2f", biddingerrors.ErrBidTooLow, a.CurrentBid)
	}
	return nil
}

// SetWatch adds or removes a watcher and returns the auction as that user sees it
func (s *AuctionService) SetWatch(auctionID, userID string, watch bool) (models.Auction, error) {
	if userID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	updated, err := s.repo.SetWatcher(auctionID, userID, watch)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to set watch on auction %s for user %s: %w", auctionID, userID, err)
	}
	updated.IsWatched = watch
	return updated, nil
}

// CreateAuction registers the car and opens a new auction. It starts
// active unless its start time is still ahead.
func (s *AuctionService) CreateAuction(data models.CreateAuctionData) (models.Auction, error) {
	if data.SellerID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - missing seller", biddingerrors.ErrInvalidAuction)
	}
	if data.StartPrice <= 0 {
		return models.Auction{}, fmt.Errorf("service: %w - non-positive start price", biddingerrors.ErrInvalidAuction)
	}

	now := s.now().UTC()
	if data.StartTime.IsZero() {
		data.StartTime = now
	}
	if data.EndTime.IsZero() {
		data.EndTime = data.StartTime.Add(DefaultDuration)
	}
	if !data.EndTime.After(data.StartTime) {
		return models.Auction{}, fmt.Errorf("service: %w - end time must be after start time", biddingerrors.ErrInvalidAuction)
	}

	car := data.Car
	if car.ID == "" {
		car.ID = utils.GenerateID()
	}
	car.OwnerID = data.SellerID

	status := models.StatusActive
	if now.Before(data.StartTime) {
		status = models.StatusUpcoming
	}

	auction := models.Auction{
		ID:           utils.GenerateID(),
		Car:          car,
		StartPrice:   data.StartPrice,
		ReservePrice: data.ReservePrice,
		CurrentBid:   data.StartPrice,
		StartTime:    data.StartTime,
		EndTime:      data.EndTime,
		Status:       status,
		Bids:         []models.Bid{},
		SellerID:     data.SellerID,
		SellerName:   data.SellerName,
		Revision:     1,
	}

	if err := s.repo.AddAuction(auction); err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to create auction for seller %s: %w", data.SellerID, err)
	}
	s.repo.AddCar(car)

	s.hub.BroadcastAll(livechannel.TypeAuctionStarted, livechannel.AuctionPayload{Auction: auction})
	return auction, nil
}

// EndAuction closes an auction ahead of its end time
func (s *AuctionService) EndAuction(auctionID string) (models.Auction, error) {
	final, err := s.finish(auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to end auction %s: %w", auctionID, err)
	}
	return final, nil
}

// finish moves an auction to ended and marks the winning bid. The
// highest bid wins when it meets the reserve.
func (s *AuctionService) finish(auctionID string) (models.Auction, error) {
	final, err := s.repo.UpdateAuction(auctionID, func(a *models.Auction) error {
		if a.Status == models.StatusEnded {
			return fmt.Errorf("%w - auction already ended", biddingerrors.ErrAuctionNotActive)
		}
		a.Status = models.StatusEnded
		if len(a.Bids) > 0 && (a.ReservePrice == nil || a.CurrentBid >= *a.ReservePrice) {
			a.Bids[0].IsWinner = true
		}
		return nil
	})
	if err != nil {
		return models.Auction{}, err
	}

	s.hub.BroadcastAll(livechannel.TypeAuctionEnded, livechannel.AuctionPayload{Auction: final})
	return final, nil
}

// GetCarsByUser returns the cars a user owns
func (s *AuctionService) GetCarsByUser(userID string) ([]models.Car, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrUserNoCars)
	}

	cars, err := s.repo.GetCarsByOwner(userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get cars for user %s: %w", userID, err)
	}
	return cars, nil
}

// Tick advances every auction to the status its times call for and
// sends a timer_update to the rooms of running auctions
func (s *AuctionService) Tick(now time.Time) {
	auctions, err := s.repo.ListAuctions()
	if err != nil {
		utils.Error("clock: list auctions failed", map[string]any{"error": err.Error()})
		return
	}

	for _, a := range auctions {
		if a.Status == models.StatusUpcoming && !now.Before(a.StartTime) {
			started, err := s.repo.UpdateAuction(a.ID, func(cur *models.Auction) error {
				if cur.Status != models.StatusUpcoming {
					return errSkip
				}
				cur.Status = models.StatusActive
				return nil
			})
			if err != nil {
				continue
			}
			a = started
			s.hub.BroadcastAll(livechannel.TypeAuctionStarted, livechannel.AuctionPayload{Auction: started})
			utils.Info("clock: auction started", map[string]any{"auction_id": a.ID})
		}

		if a.Status != models.StatusActive {
			continue
		}

		if !now.Before(a.EndTime) {
			if _, err := s.finish(a.ID); err != nil && !errors.Is(err, biddingerrors.ErrAuctionNotActive) {
				utils.Error("clock: end auction failed", map[string]any{"auction_id": a.ID, "error": err.Error()})
			} else if err == nil {
				utils.Info("clock: auction ended", map[string]any{"auction_id": a.ID})
			}
			continue
		}

		s.hub.BroadcastToAuction(a.ID, livechannel.TypeTimerUpdate, livechannel.TimerUpdatePayload{
			AuctionID:     a.ID,
			TimeRemaining: a.EndTime.Sub(now).Milliseconds(),
			Status:        a.Status,
		})
	}
}

// RunClock calls Tick every interval until ctx is done
func (s *AuctionService) RunClock(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}
