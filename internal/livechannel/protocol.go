package livechannel

import (
	"encoding/json"
	"fmt"
	"time"

	"auction-sync/internal/models"
)

// Wire event names.
const (
	TypeBidPlaced      = "bid_placed"
	TypeTimerUpdate    = "timer_update"
	TypeAuctionEnded   = "auction_ended"
	TypeAuctionStarted = "auction_started"

	TypeJoinAuction  = "join_auction"
	TypeLeaveAuction = "leave_auction"
	TypePlaceBid     = "place_bid"
)

// Envelope is the frame every message travels in.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// BidPlacedPayload is the data of a bid_placed frame.
type BidPlacedPayload struct {
	Bid     models.Bid     `json:"bid"`
	Auction models.Auction `json:"auction"`
}

// TimerUpdatePayload is the data of a timer_update frame.
// TimeRemaining is in milliseconds.
type TimerUpdatePayload struct {
	AuctionID     string               `json:"auctionId"`
	TimeRemaining int64                `json:"timeRemaining"`
	Status        models.AuctionStatus `json:"status"`
}

// AuctionPayload is the data of auction_ended and auction_started frames.
type AuctionPayload struct {
	Auction models.Auction `json:"auction"`
}

// RoomPayload is the data of join_auction and leave_auction frames.
type RoomPayload struct {
	AuctionID string `json:"auctionId"`
}

// PlaceBidPayload is the data of a place_bid frame.
type PlaceBidPayload struct {
	AuctionID string  `json:"auctionId"`
	Amount    float64 `json:"amount"`
	UserID    string  `json:"userId"`
	UserName  string  `json:"userName"`
}

// Encode wraps payload in an envelope of the given type.
func Encode(eventType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Data: data})
}

// Decode turns an inbound frame into a typed Event. Unknown types return
// a nil Event and no error.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeBidPlaced:
		var p BidPlacedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return BidPlaced{Bid: p.Bid, Auction: p.Auction}, nil
	case TypeTimerUpdate:
		var p TimerUpdatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return TimerUpdate{
			AuctionID:     p.AuctionID,
			TimeRemaining: time.Duration(p.TimeRemaining) * time.Millisecond,
			Status:        p.Status,
		}, nil
	case TypeAuctionEnded:
		var p AuctionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return AuctionEnded{Auction: p.Auction}, nil
	case TypeAuctionStarted:
		var p AuctionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return AuctionStarted{Auction: p.Auction}, nil
	default:
		return nil, nil
	}
}
