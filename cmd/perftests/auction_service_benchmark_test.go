package perftests

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	auction "auction-sync/internal/auctionService"
	"auction-sync/internal/models"
	"auction-sync/internal/repository"
)

func benchAuction(id string, startPrice float64) models.Auction {
	now := time.Now()
	return models.Auction{
		ID:         id,
		Car:        models.Car{Make: "Mazda", Model: "MX-5", Year: 1995},
		StartPrice: startPrice,
		CurrentBid: startPrice,
		Status:     models.StatusActive,
		StartTime:  now.Add(-time.Hour),
		EndTime:    now.Add(24 * time.Hour),
		SellerID:   "seller-bench",
	}
}

// Benchmark 1: PlaceBid - Isolated Auctions (Low Contention - Micro Benchmark)
func Benchmark_PlaceBid_Isolated(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := auction.NewAuctionService(repo)

	for i := 0; i < b.N; i++ {
		if err := repo.AddAuction(benchAuction(fmt.Sprintf("auction_%d", i), 50)); err != nil {
			b.Fatalf("failed to seed auction: %v", err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		userID := fmt.Sprintf("user_%d", i)
		auctionID := fmt.Sprintf("auction_%d", i)
		bidAmount := float64(50 + rand.Intn(100))
		if _, _, err := svc.PlaceBid(auctionID, userID, userID, bidAmount); err != nil {
			b.Fatalf("failed to place bid: %v", err)
		}
	}
}

// Benchmark 2: PlaceBid - Shared Auction (High Contention - Concurrency Benchmark)
func Benchmark_PlaceBid_ConcurrentSharedAuction(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := auction.NewAuctionService(repo)
	if err := repo.AddAuction(benchAuction("shared_auction_1", 50)); err != nil {
		b.Fatalf("failed to seed auction: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 50

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			userID := fmt.Sprintf("user_parallel_%d", rnd.Int())

			// concurrent bids may land out of order, so some are rejected as too low
			nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
			_, _, _ = svc.PlaceBid("shared_auction_1", userID, userID, float64(nextBid))
		}
	})
}

// Benchmark 3: GetAuction - Concurrent reads of one auction with a long bid history
func Benchmark_GetAuction_ConcurrentSharedAuction(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := auction.NewAuctionService(repo)
	if err := repo.AddAuction(benchAuction("shared_auction_1", 50)); err != nil {
		b.Fatalf("failed to seed auction: %v", err)
	}

	for j := 0; j < 100; j++ {
		userID := fmt.Sprintf("user_%d", j)
		_, _, _ = svc.PlaceBid("shared_auction_1", userID, userID, float64(50+j))
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.GetAuction("shared_auction_1"); err != nil {
				b.Fatalf("failed to get auction: %v", err)
			}
		}
	})
}

// Benchmark 4: Mixed Workload (Readers + Writers concurrently)
func Benchmark_MixedWorkload_SharedAuction(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := auction.NewAuctionService(repo)
	if err := repo.AddAuction(benchAuction("shared_auction_1", 50)); err != nil {
		b.Fatalf("failed to seed auction: %v", err)
	}

	for j := 0; j < 50; j++ {
		userID := fmt.Sprintf("user_seed_%d", j)
		_, _, _ = svc.PlaceBid("shared_auction_1", userID, userID, float64(50+j*2))
	}

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 150

	// Ratio: 70% readers, 30% writers
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			if rnd.Intn(10) < 3 {
				userID := fmt.Sprintf("user_writer_%d", rnd.Int())
				nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
				_, _, _ = svc.PlaceBid("shared_auction_1", userID, userID, float64(nextBid))
				continue
			}
			_, _ = svc.ListAuctions()
		}
	})
}

// Benchmark 5: Tick over many running auctions
func Benchmark_Tick(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := auction.NewAuctionService(repo)
	for i := 0; i < 500; i++ {
		if err := repo.AddAuction(benchAuction(fmt.Sprintf("auction_%d", i), 100)); err != nil {
			b.Fatalf("failed to seed auction: %v", err)
		}
	}

	now := time.Now()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		svc.Tick(now)
	}
}
