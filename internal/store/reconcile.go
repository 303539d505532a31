package store

import (
	"auction-sync/internal/models"
	"auction-sync/utils"
)

// isStale reports whether incoming must not overwrite local. Snapshots
// without a revision are never stale: the last writer wins.
func isStale(local, incoming models.Auction) bool {
	return incoming.Revision > 0 && incoming.Revision <= local.Revision
}

// prepareLocked turns an incoming snapshot into the entity the store
// keeps: the viewer's watch flag is local, and status never moves
// backwards from what is already known.
func (s *Store) prepareLocked(incoming models.Auction, local *models.Auction) models.Auction {
	next := incoming.Clone()
	next.IsWatched = s.watched[next.ID]
	if local != nil && !local.Status.CanTransitionTo(next.Status) {
		next.Status = local.Status
	}
	return next
}

// replaceLocked overwrites the known entity with incoming as a whole.
// Unknown auctions are ignored. It returns the index of the entity and
// whether the snapshot was applied.
func (s *Store) replaceLocked(incoming models.Auction, source string) (int, bool) {
	idx := s.indexOf(incoming.ID)
	if idx < 0 {
		return -1, false
	}

	local := s.auctions[idx]
	if isStale(local, incoming) {
		s.metrics.RecordStaleSnapshot(source)
		utils.Debug("dropping stale snapshot", map[string]any{
			"component":      "store",
			"source":         source,
			"auction_id":     incoming.ID,
			"local_revision": local.Revision,
			"revision":       incoming.Revision,
		})
		return idx, false
	}

	s.auctions[idx] = s.prepareLocked(incoming, &local)
	s.syncCurrentLocked(idx)
	return idx, true
}

// upsertLocked replaces a known entity or inserts an unknown one at the
// front (prepend) or back of the list.
func (s *Store) upsertLocked(incoming models.Auction, source string, prepend bool) (int, bool) {
	if idx, ok := s.replaceLocked(incoming, source); idx >= 0 {
		return idx, ok
	}

	next := s.prepareLocked(incoming, nil)
	if prepend {
		s.auctions = append([]models.Auction{next}, s.auctions...)
		s.syncCurrentLocked(0)
		return 0, true
	}
	s.auctions = append(s.auctions, next)
	s.syncCurrentLocked(len(s.auctions) - 1)
	return len(s.auctions) - 1, true
}

// replaceAllLocked swaps the whole collection for a pulled list. Each
// entry still honors the revision guard against what is already known.
func (s *Store) replaceAllLocked(list []models.Auction, source string) {
	known := make(map[string]models.Auction, len(s.auctions))
	for _, a := range s.auctions {
		known[a.ID] = a
	}

	next := make([]models.Auction, 0, len(list))
	for _, incoming := range list {
		local, ok := known[incoming.ID]
		switch {
		case !ok:
			next = append(next, s.prepareLocked(incoming, nil))
		case isStale(local, incoming):
			s.metrics.RecordStaleSnapshot(source)
			next = append(next, local)
		default:
			next = append(next, s.prepareLocked(incoming, &local))
		}
	}
	s.auctions = next

	if s.current != nil {
		if idx := s.indexOf(s.current.ID); idx >= 0 {
			s.syncCurrentLocked(idx)
		}
	}
}

// syncCurrentLocked keeps currentAuction equal to its list entry.
func (s *Store) syncCurrentLocked(idx int) {
	a := s.auctions[idx]
	if s.current != nil && s.current.ID == a.ID {
		cur := a.Clone()
		s.current = &cur
	}
}

// setWatchedLocked records the viewer's watch flag on the set and on
// every copy of the entity.
func (s *Store) setWatchedLocked(auctionID string, watch bool) {
	if watch {
		if !s.watched[auctionID] {
			s.watched[auctionID] = true
			s.watchOrder = append(s.watchOrder, auctionID)
		}
	} else if s.watched[auctionID] {
		delete(s.watched, auctionID)
		for i, id := range s.watchOrder {
			if id == auctionID {
				s.watchOrder = append(s.watchOrder[:i], s.watchOrder[i+1:]...)
				break
			}
		}
	}
}

// addUserBidLocked prepends a bid of the viewer unless it is already
// recorded, which happens when the REST response and the push echo of
// the same bid both arrive.
func (s *Store) addUserBidLocked(bid models.Bid) bool {
	if bid.UserID != s.userID {
		return false
	}
	for _, b := range s.userBids {
		if bid.ID != "" && b.ID == bid.ID {
			return false
		}
	}
	s.userBids = append([]models.Bid{bid}, s.userBids...)
	return true
}
