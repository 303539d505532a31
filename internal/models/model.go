package models

import "time"

// AuctionStatus is the lifecycle stage of an auction
type AuctionStatus string

const (
	StatusUpcoming AuctionStatus = "upcoming"
	StatusActive   AuctionStatus = "active"
	StatusEnded    AuctionStatus = "ended"
)

func (s AuctionStatus) rank() int {
	switch s {
	case StatusUpcoming:
		return 0
	case StatusActive:
		return 1
	case StatusEnded:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses
func (s AuctionStatus) Valid() bool {
	return s.rank() >= 0
}

// CanTransitionTo reports whether moving from s to next keeps the
// upcoming -> active -> ended ordering. Staying in place is allowed.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	if !next.Valid() {
		return false
	}
	if !s.Valid() {
		return true
	}
	return next.rank() >= s.rank()
}

// Car is the vehicle being auctioned
type Car struct {
	ID             string  `json:"id,omitempty"`
	Make           string  `json:"make"`
	Model          string  `json:"model"`
	Year           int     `json:"year"`
	Mileage        int     `json:"mileage"`
	Condition      string  `json:"condition"`
	EstimatedValue float64 `json:"estimatedValue"`
	OwnerID        string  `json:"ownerId"`
}

// Bid represents a user's bid on an auction. Bids are immutable once created.
type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auctionId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	IsWinner  bool      `json:"isWinner,omitempty"`
}

// Auction is a live car auction. Bids are ordered newest first.
type Auction struct {
	ID                string        `json:"id"`
	Car               Car           `json:"car"`
	StartPrice        float64       `json:"startPrice"`
	ReservePrice      *float64      `json:"reservePrice,omitempty"`
	CurrentBid        float64       `json:"currentBid"`
	BidCount          int           `json:"bidCount"`
	HighestBidder     string        `json:"highestBidder,omitempty"`
	HighestBidderName string        `json:"highestBidderName,omitempty"`
	StartTime         time.Time     `json:"startTime"`
	EndTime           time.Time     `json:"endTime"`
	Status            AuctionStatus `json:"status"`
	Bids              []Bid         `json:"bids"`
	Watchers          int           `json:"watchers"`
	IsWatched         bool          `json:"isWatched"`
	SellerID          string        `json:"sellerId"`
	SellerName        string        `json:"sellerName"`

	// Revision increases with every server-side change. Zero means the
	// sender does not version its snapshots.
	Revision uint64 `json:"revision,omitempty"`
}

// Clone returns a deep copy of the auction
func (a Auction) Clone() Auction {
	out := a
	if a.ReservePrice != nil {
		rp := *a.ReservePrice
		out.ReservePrice = &rp
	}
	if a.Bids != nil {
		out.Bids = append([]Bid(nil), a.Bids...)
	}
	return out
}

// CreateAuctionData is the payload for POST /auctions
type CreateAuctionData struct {
	Car          Car       `json:"car"`
	StartPrice   float64   `json:"startPrice"`
	ReservePrice *float64  `json:"reservePrice,omitempty"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	SellerID     string    `json:"sellerId"`
	SellerName   string    `json:"sellerName"`
}

// NotificationType tags the kind of feed entry
type NotificationType string

const (
	NotificationBidPlaced     NotificationType = "bid_placed"
	NotificationAuctionEnding NotificationType = "auction_ending"
	NotificationAuctionEnded  NotificationType = "auction_ended"
	NotificationOutbid        NotificationType = "outbid"
	NotificationWonAuction    NotificationType = "won_auction"
	NotificationNewAuction    NotificationType = "new_auction"
)

// Priority ranks how prominently a notification is shown
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Notification is a single entry in the user-facing feed
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	AuctionID string           `json:"auctionId,omitempty"`
	Read      bool             `json:"read"`
	Priority  Priority         `json:"priority"`
}

// ConnectivityStatus is the result of one connectivity probe
type ConnectivityStatus struct {
	IsOnline         bool      `json:"isOnline"`
	BackendReachable bool      `json:"backendReachable"`
	LastCheck        time.Time `json:"lastCheck"`
	Error            string    `json:"error,omitempty"`
}

// ConnectionStatus is the live channel state
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
)
