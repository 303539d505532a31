package store

import (
	"context"
	"fmt"

	"auction-sync/internal/livechannel"
	"auction-sync/internal/models"
	"auction-sync/internal/notifications"
	"auction-sync/utils"
)

// Ingest applies one live event. Start feeds it from the live channel;
// it is exported so callers with their own event source can drive the
// store directly.
func (s *Store) Ingest(ev livechannel.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	var changed, persist bool
	switch e := ev.(type) {
	case livechannel.BidPlaced:
		changed, persist = s.onBidPlacedLocked(e)
	case livechannel.TimerUpdate:
		changed, persist = s.onTimerUpdateLocked(e)
	case livechannel.AuctionEnded:
		changed, persist = s.onAuctionEndedLocked(e.Auction, "auction_ended")
	case livechannel.AuctionStarted:
		changed, persist = s.onAuctionStartedLocked(e)
	case livechannel.StateChanged:
		changed = s.onStateChangedLocked(e)
	default:
		utils.Warn("unhandled live event", map[string]any{"component": "store", "event": fmt.Sprintf("%T", ev)})
		return
	}

	s.metrics.RecordEventApplied(ev.Name())
	if changed {
		s.commitLocked(persist)
	}
}

func (s *Store) onBidPlacedLocked(e livechannel.BidPlaced) (bool, bool) {
	_, applied := s.replaceLocked(e.Auction, "bid_placed")
	mine := s.addUserBidLocked(e.Bid)

	bid := e.Bid
	auction := e.Auction
	if idx := s.indexOf(auction.ID); idx >= 0 {
		auction = s.auctions[idx]
	}
	raised := s.raiseLocked(notifications.Input{
		Kind:    notifications.KindBidPlaced,
		Auction: auction,
		Bid:     &bid,
	})

	return applied || mine || raised, mine || raised
}

func (s *Store) onTimerUpdateLocked(e livechannel.TimerUpdate) (bool, bool) {
	idx := s.indexOf(e.AuctionID)
	auction := models.Auction{ID: e.AuctionID, Status: e.Status}

	changed := false
	if idx >= 0 {
		a := &s.auctions[idx]
		if e.Status.Valid() && a.Status != e.Status && a.Status.CanTransitionTo(e.Status) {
			a.Status = e.Status
			s.syncCurrentLocked(idx)
			changed = true
		}
		auction = *a
	}

	switch auction.Status {
	case models.StatusEnded:
		s.ending.Forget(e.AuctionID)
		return changed, false
	case models.StatusUpcoming:
		return changed, false
	}

	crossed := s.ending.Observe(e.AuctionID, e.TimeRemaining)
	raised := s.raiseLocked(notifications.Input{
		Kind:                   notifications.KindTimerUpdate,
		Auction:                auction,
		CrossedEndingThreshold: crossed,
		Remaining:              e.TimeRemaining,
	})
	return changed || raised, raised
}

// onAuctionEndedLocked applies a final snapshot. The local entity ends
// up ended even when the snapshot says otherwise or is stale.
func (s *Store) onAuctionEndedLocked(snapshot models.Auction, source string) (bool, bool) {
	snapshot.Status = models.StatusEnded

	idx, applied := s.replaceLocked(snapshot, source)
	if idx >= 0 && s.auctions[idx].Status != models.StatusEnded {
		s.auctions[idx].Status = models.StatusEnded
		s.syncCurrentLocked(idx)
		applied = true
	}
	s.ending.Forget(snapshot.ID)

	auction := snapshot
	if idx >= 0 {
		auction = s.auctions[idx]
	}
	raised := s.raiseLocked(notifications.Input{
		Kind:    notifications.KindAuctionEnded,
		Auction: auction,
	})
	return applied || raised, raised
}

func (s *Store) onAuctionStartedLocked(e livechannel.AuctionStarted) (bool, bool) {
	// an auction this viewer created may already be in the list
	_, applied := s.upsertLocked(e.Auction, "auction_started", true)
	raised := s.raiseLocked(notifications.Input{
		Kind:    notifications.KindAuctionStarted,
		Auction: e.Auction,
	})
	return applied || raised, raised
}

func (s *Store) onStateChangedLocked(e livechannel.StateChanged) bool {
	if e.Status == models.ConnectionDisconnected && e.Err != nil {
		s.dropped = true
	}

	if e.Status == models.ConnectionConnected && s.dropped {
		s.dropped = false
		s.wg.Add(1)
		go s.resync()
	}

	if s.connection == e.Status {
		return false
	}
	s.connection = e.Status
	s.metrics.SetConnectionState(e.Status)
	return true
}

// resync pulls the full list after the live channel recovered from an
// unexpected drop, since events sent while it was down are lost.
func (s *Store) resync() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	utils.Info("resyncing after reconnect", map[string]any{"component": "store"})
	if err := s.FetchAuctions(ctx); err != nil {
		utils.Warn("resync failed", map[string]any{"component": "store", "error": err.Error()})
	}
}
