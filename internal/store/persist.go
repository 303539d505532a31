package store

import (
	"context"
	"fmt"

	"auction-sync/internal/models"
	"auction-sync/internal/persistence"
	"auction-sync/utils"
)

// saveLoop writes the persisted slice whenever a mutation touched it.
// Bursts of mutations collapse into one write.
func (s *Store) saveLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.saveCh:
			if err := s.save(); err != nil {
				utils.Error("persist state failed", map[string]any{"component": "store", "error": err.Error()})
			}
		}
	}
}

func (s *Store) persistedLocked() persistence.State {
	st := persistence.State{
		WatchedAuctions: append([]string(nil), s.watchOrder...),
		UserBids:        append([]models.Bid(nil), s.userBids...),
		UserAuctions:    make([]models.Auction, 0, len(s.userAuctions)),
		Notifications:   s.feed.Items(),
		LastUpdate:      s.lastUpdate,
	}
	for _, a := range s.userAuctions {
		st.UserAuctions = append(st.UserAuctions, a.Clone())
	}
	return st
}

func (s *Store) save() error {
	s.mu.Lock()
	st := s.persistedLocked()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultSaveTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, s.userID, st); err != nil {
		return fmt.Errorf("store: save state for %s: %w", s.userID, err)
	}
	return nil
}
