// Package notifications derives user-facing feed entries from auction
// events and keeps the bounded, newest-first feed.
package notifications

import (
	"fmt"
	"strings"
	"time"

	"auction-sync/internal/models"
	"auction-sync/utils"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultEndingThreshold is the remaining time at which an auction_ending
// notification fires.
const DefaultEndingThreshold = 5 * time.Minute

// Kind is the domain event a notification is derived from.
type Kind string

const (
	KindBidPlaced      Kind = "bid_placed"
	KindTimerUpdate    Kind = "timer_update"
	KindAuctionEnded   Kind = "auction_ended"
	KindAuctionStarted Kind = "auction_started"
)

// Input describes one domain occurrence.
type Input struct {
	Kind    Kind
	Auction models.Auction
	// Bid is set for KindBidPlaced.
	Bid *models.Bid
	// CrossedEndingThreshold is set for KindTimerUpdate when this tick
	// is the first one at or under the ending threshold.
	CrossedEndingThreshold bool
	Remaining              time.Duration
	At                     time.Time
}

// Viewer is the local user the feed is built for.
type Viewer struct {
	UserID  string
	Watched map[string]bool
}

var printer = message.NewPrinter(language.English)

func money(amount float64) string {
	return printer.Sprintf("$%.0f", amount)
}

func carTitle(a models.Auction) string {
	parts := make([]string, 0, 3)
	if a.Car.Year > 0 {
		parts = append(parts, fmt.Sprint(a.Car.Year))
	}
	if a.Car.Make != "" {
		parts = append(parts, a.Car.Make)
	}
	if a.Car.Model != "" {
		parts = append(parts, a.Car.Model)
	}
	if len(parts) == 0 {
		return "auction " + a.ID
	}
	return strings.Join(parts, " ")
}

// Derive maps an event to a notification for viewer, or nil when the
// event is not noteworthy for them.
func Derive(in Input, viewer Viewer) *models.Notification {
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}
	n := &models.Notification{
		ID:        utils.GenerateID(),
		Timestamp: at,
		AuctionID: in.Auction.ID,
	}
	car := carTitle(in.Auction)

	switch in.Kind {
	case KindBidPlaced:
		if in.Bid == nil {
			return nil
		}
		switch {
		case in.Bid.UserID == viewer.UserID:
			n.Type = models.NotificationBidPlaced
			n.Priority = models.PriorityMedium
			n.Title = "Bid placed"
			n.Message = fmt.Sprintf("Your bid of %s on %s was placed", money(in.Bid.Amount), car)
		case viewer.Watched[in.Auction.ID]:
			n.Type = models.NotificationOutbid
			n.Priority = models.PriorityLow
			n.Title = "New bid on a watched auction"
			n.Message = fmt.Sprintf("%s bid %s on %s", in.Bid.UserName, money(in.Bid.Amount), car)
		default:
			return nil
		}

	case KindTimerUpdate:
		if !in.CrossedEndingThreshold {
			return nil
		}
		n.Type = models.NotificationAuctionEnding
		n.Priority = models.PriorityHigh
		n.Title = "Auction ending soon"
		n.Message = fmt.Sprintf("%s ends in %s", car, in.Remaining.Round(time.Second))

	case KindAuctionEnded:
		switch {
		case viewer.UserID != "" && in.Auction.HighestBidder == viewer.UserID:
			n.Type = models.NotificationWonAuction
			n.Priority = models.PriorityHigh
			n.Title = "You won the auction"
			n.Message = fmt.Sprintf("You won %s for %s", car, money(in.Auction.CurrentBid))
		case viewer.Watched[in.Auction.ID]:
			n.Type = models.NotificationAuctionEnded
			n.Priority = models.PriorityMedium
			n.Title = "Auction ended"
			if in.Auction.BidCount > 0 {
				n.Message = fmt.Sprintf("%s ended at %s", car, money(in.Auction.CurrentBid))
			} else {
				n.Message = fmt.Sprintf("%s ended without bids", car)
			}
		default:
			return nil
		}

	case KindAuctionStarted:
		n.Type = models.NotificationNewAuction
		n.Priority = models.PriorityLow
		n.Title = "New auction"
		n.Message = fmt.Sprintf("%s is up for auction, starting at %s", car, money(in.Auction.StartPrice))

	default:
		return nil
	}

	return n
}

// ThresholdTracker remembers the last remaining time seen per auction so
// that only the crossing tick produces an auction_ending notification.
type ThresholdTracker struct {
	threshold time.Duration
	fired     map[string]bool
}

// NewThresholdTracker creates a tracker. A non-positive threshold uses
// DefaultEndingThreshold.
func NewThresholdTracker(threshold time.Duration) *ThresholdTracker {
	if threshold <= 0 {
		threshold = DefaultEndingThreshold
	}
	return &ThresholdTracker{threshold: threshold, fired: make(map[string]bool)}
}

// Observe records a tick and reports whether it is the first one at or
// under the threshold for auctionID. A first observation already under
// the threshold counts as the crossing.
func (t *ThresholdTracker) Observe(auctionID string, remaining time.Duration) bool {
	if remaining <= 0 || remaining > t.threshold {
		if remaining > t.threshold {
			delete(t.fired, auctionID)
		}
		return false
	}
	if t.fired[auctionID] {
		return false
	}
	t.fired[auctionID] = true
	return true
}

// Forget drops state for an auction that has ended.
func (t *ThresholdTracker) Forget(auctionID string) {
	delete(t.fired, auctionID)
}
