package notifications

import (
	"time"

	"auction-sync/internal/models"
)

// Default feed limits.
const (
	DefaultCapacity    = 100
	DefaultDedupWindow = 3 * time.Second
)

// Feed is a bounded newest-first list of notifications. It is not safe
// for concurrent use; the store serializes access.
type Feed struct {
	capacity    int
	dedupWindow time.Duration
	items       []models.Notification
}

// NewFeed creates a feed seeded with initial (newest first). A
// non-positive capacity uses DefaultCapacity; a zero dedupWindow turns
// coalescing off.
func NewFeed(capacity int, dedupWindow time.Duration, initial []models.Notification) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	f := &Feed{capacity: capacity, dedupWindow: dedupWindow}
	f.items = append(f.items, initial...)
	f.truncate()
	return f
}

// Add prepends n and evicts the oldest entries beyond capacity. If an
// entry with the same type and auction was added within the dedup
// window, that entry is refreshed and moved to the front instead, and
// the returned notification carries its ID.
func (f *Feed) Add(n models.Notification) (models.Notification, bool) {
	if idx := f.findRecent(n); idx >= 0 {
		existing := f.items[idx]
		existing.Title = n.Title
		existing.Message = n.Message
		existing.Timestamp = n.Timestamp
		existing.Priority = n.Priority
		existing.Read = false

		copy(f.items[1:idx+1], f.items[:idx])
		f.items[0] = existing
		return existing, true
	}

	f.items = append(f.items, models.Notification{})
	copy(f.items[1:], f.items)
	f.items[0] = n
	f.truncate()
	return n, false
}

func (f *Feed) findRecent(n models.Notification) int {
	if f.dedupWindow <= 0 {
		return -1
	}
	for i, item := range f.items {
		if n.Timestamp.Sub(item.Timestamp) > f.dedupWindow {
			// newest first: everything after this is older still
			return -1
		}
		if item.Type == n.Type && item.AuctionID == n.AuctionID {
			return i
		}
	}
	return -1
}

func (f *Feed) truncate() {
	if len(f.items) > f.capacity {
		clear(f.items[f.capacity:])
		f.items = f.items[:f.capacity]
	}
}

// MarkRead flags one notification as read. It reports whether id was found.
func (f *Feed) MarkRead(id string) bool {
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flags every notification as read and returns how many changed.
func (f *Feed) MarkAllRead() int {
	changed := 0
	for i := range f.items {
		if !f.items[i].Read {
			f.items[i].Read = true
			changed++
		}
	}
	return changed
}

// UnreadCount returns the number of unread notifications.
func (f *Feed) UnreadCount() int {
	count := 0
	for _, n := range f.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// Len returns the number of notifications in the feed.
func (f *Feed) Len() int { return len(f.items) }

// Items returns a copy of the feed, newest first.
func (f *Feed) Items() []models.Notification {
	return append([]models.Notification(nil), f.items...)
}
