package perftests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"auction-sync/internal/api"
	"auction-sync/internal/livechannel"
	"auction-sync/internal/models"
	"auction-sync/internal/notifications"
	"auction-sync/internal/persistence"
	"auction-sync/internal/store"
	"auction-sync/utils"
)

// newBenchStore builds a store that is fed directly through Ingest. The
// REST and live endpoints are never dialed.
func newBenchStore(b *testing.B, numAuctions int) *store.Store {
	utils.SetLevel("error")

	cfg := livechannel.DefaultConfig()
	st, err := store.New(context.Background(), store.Deps{
		Live:      livechannel.NewClient("ws://127.0.0.1:1/ws", &cfg),
		API:       api.NewClient("http://127.0.0.1:1"),
		Persister: persistence.NewMemoryStore(),
	}, store.Options{UserID: "bench-viewer", UserName: "Bench"})
	if err != nil {
		b.Fatalf("failed to build store: %v", err)
	}
	b.Cleanup(func() { _ = st.Close() })

	for i := 0; i < numAuctions; i++ {
		st.Ingest(livechannel.AuctionStarted{Auction: benchAuction(fmt.Sprintf("auction_%d", i), 100)})
	}
	return st
}

func bidEvent(auctionID string, rev uint64, amount float64) livechannel.BidPlaced {
	a := benchAuction(auctionID, 100)
	a.Revision = rev
	a.CurrentBid = amount
	a.BidCount = int(rev)
	a.HighestBidder = "other"
	return livechannel.BidPlaced{
		Bid: models.Bid{
			ID:        fmt.Sprintf("bid_%s_%d", auctionID, rev),
			AuctionID: auctionID,
			UserID:    "other",
			Amount:    amount,
			Timestamp: time.Now(),
		},
		Auction: a,
	}
}

// Benchmark: Ingest of in-order bid_placed events on one auction
func Benchmark_Store_IngestBidPlaced(b *testing.B) {
	st := newBenchStore(b, 1)

	events := make([]livechannel.BidPlaced, b.N)
	for i := range events {
		events[i] = bidEvent("auction_0", uint64(i+2), float64(100+i))
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		st.Ingest(events[i])
	}
}

// Benchmark: stale events are dropped by the revision guard
func Benchmark_Store_IngestStale(b *testing.B) {
	st := newBenchStore(b, 1)
	st.Ingest(bidEvent("auction_0", 1000, 5000))
	stale := bidEvent("auction_0", 10, 200)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		st.Ingest(stale)
	}
}

// Benchmark: Snapshot readers racing a single ingest writer
func Benchmark_Store_SnapshotUnderIngest(b *testing.B) {
	st := newBenchStore(b, 100)

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		rev := uint64(2)
		for {
			select {
			case <-stop:
				return
			default:
			}
			st.Ingest(bidEvent(fmt.Sprintf("auction_%d", rev%100), rev/100+2, float64(100+rev)))
			rev++
		}
	}()

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = st.Snapshot()
		}
	})

	b.StopTimer()
	close(stop)
	<-writerDone
}

// Benchmark: feed insertion with dedup checks at capacity
func Benchmark_Feed_Add(b *testing.B) {
	feed := notifications.NewFeed(notifications.DefaultCapacity, notifications.DefaultDedupWindow, nil)
	now := time.Now()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		feed.Add(models.Notification{
			ID:        fmt.Sprintf("n_%d", i),
			Type:      models.NotificationOutbid,
			Title:     "Outbid",
			Message:   fmt.Sprintf("bid %d", i),
			AuctionID: fmt.Sprintf("auction_%d", i%20),
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Priority:  models.PriorityLow,
		})
	}
}
