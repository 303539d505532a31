package store

import (
	"context"

	"auction-sync/internal/livechannel"
	"auction-sync/internal/models"
)

//go:generate mockgen -source=interfaces.go -destination=mocks.go -package=store

// LiveChannel is the push side the store drives and consumes.
type LiveChannel interface {
	Connect(ctx context.Context, userID string) error
	Disconnect() error
	JoinAuction(auctionID string)
	LeaveAuction(auctionID string)
	PlaceBid(auctionID string, amount float64, userID, userName string) bool
	Events() <-chan livechannel.Event
}

// AuctionAPI is the pull side: REST calls that already carry their own
// retry and timeout policy.
type AuctionAPI interface {
	ListAuctions(ctx context.Context) ([]models.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	PlaceBid(ctx context.Context, auctionID string, amount float64, userID, userName string) (models.Bid, error)
	SetWatch(ctx context.Context, auctionID, userID string, watch bool) error
	CreateAuction(ctx context.Context, data models.CreateAuctionData) (models.Auction, error)
	EndAuction(ctx context.Context, auctionID string) (models.Auction, error)
	UserCars(ctx context.Context, userID string) ([]models.Car, error)
}

// Prober reports connectivity before pull syncs. It is advisory only.
type Prober interface {
	CheckFull(ctx context.Context) models.ConnectivityStatus
}
