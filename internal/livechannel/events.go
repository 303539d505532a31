package livechannel

import (
	"time"

	"auction-sync/internal/models"
)

// Event is one inbound occurrence on the live channel. The set of
// implementations is closed: BidPlaced, TimerUpdate, AuctionEnded,
// AuctionStarted and StateChanged.
type Event interface {
	// Name returns the wire name, or "state_changed" for local transitions.
	Name() string
	sealed()
}

// BidPlaced carries the new bid and the full auction snapshot after it.
type BidPlaced struct {
	Bid     models.Bid
	Auction models.Auction
}

// TimerUpdate is a periodic countdown tick for one auction.
type TimerUpdate struct {
	AuctionID     string
	TimeRemaining time.Duration
	Status        models.AuctionStatus
}

// AuctionEnded carries the final auction snapshot.
type AuctionEnded struct {
	Auction models.Auction
}

// AuctionStarted announces a new auction.
type AuctionStarted struct {
	Auction models.Auction
}

// StateChanged reports a transition of the channel itself. Err is set
// when the transition was caused by a transport failure.
type StateChanged struct {
	Status models.ConnectionStatus
	Err    error
}

func (BidPlaced) Name() string      { return TypeBidPlaced }
func (TimerUpdate) Name() string    { return TypeTimerUpdate }
func (AuctionEnded) Name() string   { return TypeAuctionEnded }
func (AuctionStarted) Name() string { return TypeAuctionStarted }
func (StateChanged) Name() string   { return "state_changed" }

func (BidPlaced) sealed()      {}
func (TimerUpdate) sealed()    {}
func (AuctionEnded) sealed()   {}
func (AuctionStarted) sealed() {}
func (StateChanged) sealed()   {}
