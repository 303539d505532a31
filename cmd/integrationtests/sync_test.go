package integrationtests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/internal/store"

	"github.com/stretchr/testify/require"
)

func hasNotification(s store.State, kind models.NotificationType, auctionID string) bool {
	for _, n := range s.Notifications {
		if n.Type == kind && n.AuctionID == auctionID {
			return true
		}
	}
	return false
}

func waitForRoom(t *testing.T, env *testEnv, auctionID string, size int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return env.hub.RoomSize(auctionID) == size
	}, 3*time.Second, 10*time.Millisecond)
}

// A bid placed over the live channel reaches every viewer of the room
func TestSync_LiveBidReachesViewers(t *testing.T) {
	env := SetupTestServer(t, ActiveAuction("a1", 10000))
	ctx := context.Background()

	alice := NewSyncClient(t, env, "alice", "Alice", true)
	bob := NewSyncClient(t, env, "bob", "Bob", true)

	for _, st := range []*store.Store{alice, bob} {
		require.NoError(t, st.FetchAuctions(ctx))
		st.SetActiveAuction("a1")
	}
	waitForRoom(t, env, "a1", 2)

	watching, err := bob.ToggleWatch(ctx, "a1", "bob")
	require.NoError(t, err)
	require.True(t, watching)

	require.NoError(t, alice.PlaceBid(ctx, "a1", 15000, "alice", "Alice"))

	for _, st := range []*store.Store{alice, bob} {
		got := WaitForState(t, st, func(s store.State) bool {
			a, ok := FindAuction(s, "a1")
			return ok && a.CurrentBid == 15000
		})
		a, _ := FindAuction(got, "a1")
		require.Equal(t, 1, a.BidCount)
		require.Equal(t, "alice", a.HighestBidder)
		require.NotNil(t, got.CurrentAuction)
		require.Equal(t, 15000.0, got.CurrentAuction.CurrentBid)
	}

	aliceState := WaitForState(t, alice, func(s store.State) bool {
		return hasNotification(s, models.NotificationBidPlaced, "a1")
	})
	require.Len(t, aliceState.UserBids, 1)
	require.Equal(t, 15000.0, aliceState.UserBids[0].Amount)

	bobState := WaitForState(t, bob, func(s store.State) bool {
		return hasNotification(s, models.NotificationOutbid, "a1")
	})
	require.Empty(t, bobState.UserBids)
	require.Contains(t, bobState.WatchedAuctions, "a1")

	stored, err := env.repo.GetAuction("a1")
	require.NoError(t, err)
	require.Equal(t, 15000.0, stored.CurrentBid)
}

// Without a live channel, bids go over REST and rejections surface as errors
func TestSync_RESTFallbackWhileDisconnected(t *testing.T) {
	env := SetupTestServer(t, ActiveAuction("a1", 10000))
	ctx := context.Background()

	carol := NewSyncClient(t, env, "carol", "Carol", false)
	require.NoError(t, carol.FetchAuctions(ctx))
	require.Equal(t, models.ConnectionDisconnected, carol.Snapshot().ConnectionStatus)

	require.NoError(t, carol.PlaceBid(ctx, "a1", 12000, "carol", "Carol"))

	got := carol.Snapshot()
	a, ok := FindAuction(got, "a1")
	require.True(t, ok)
	require.Equal(t, 12000.0, a.CurrentBid)
	require.Equal(t, 1, a.BidCount)
	require.Len(t, got.UserBids, 1)
	require.True(t, hasNotification(got, models.NotificationBidPlaced, "a1"))

	stored, err := env.repo.GetAuction("a1")
	require.NoError(t, err)
	require.Equal(t, 12000.0, stored.CurrentBid)
	require.Equal(t, "carol", stored.HighestBidder)

	err = carol.PlaceBid(ctx, "a1", 11000, "carol", "Carol")
	var httpErr *biddingerrors.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusConflict, httpErr.Status)
	require.Equal(t, "bid amount too low", httpErr.Message)
	require.NotEmpty(t, carol.Snapshot().Error)

	a, _ = FindAuction(carol.Snapshot(), "a1")
	require.Equal(t, 12000.0, a.CurrentBid)
}

// A created auction reaches other viewers, and ending it tells the winner
func TestSync_CreateBidAndEnd(t *testing.T) {
	env := SetupTestServer(t)
	ctx := context.Background()

	alice := NewSyncClient(t, env, "alice", "Alice", true)
	bob := NewSyncClient(t, env, "bob", "Bob", true)

	created, err := alice.CreateAuction(ctx, models.CreateAuctionData{
		Car:        models.Car{Make: "Alfa Romeo", Model: "Giulia", Year: 2020, Mileage: 30000},
		StartPrice: 25000,
		EndTime:    time.Now().Add(time.Hour),
	}, "alice", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "alice", created.SellerID)

	aliceState := alice.Snapshot()
	require.Len(t, aliceState.UserAuctions, 1)
	require.Equal(t, created.ID, aliceState.UserAuctions[0].ID)

	WaitForState(t, bob, func(s store.State) bool {
		_, ok := FindAuction(s, created.ID)
		return ok && hasNotification(s, models.NotificationNewAuction, created.ID)
	})

	bob.SetActiveAuction(created.ID)
	waitForRoom(t, env, created.ID, 1)
	require.NoError(t, bob.PlaceBid(ctx, created.ID, 26000, "bob", "Bob"))
	WaitForState(t, bob, func(s store.State) bool {
		a, ok := FindAuction(s, created.ID)
		return ok && a.HighestBidder == "bob"
	})

	final, err := alice.EndAuction(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusEnded, final.Status)

	bobState := WaitForState(t, bob, func(s store.State) bool {
		return hasNotification(s, models.NotificationWonAuction, created.ID)
	})
	a, _ := FindAuction(bobState, created.ID)
	require.Equal(t, models.StatusEnded, a.Status)
	require.Equal(t, 26000.0, a.CurrentBid)
}

// A timer tick under the threshold raises a high priority ending notice
func TestSync_TimerRaisesEndingNotification(t *testing.T) {
	closing := ActiveAuction("a1", 10000)
	closing.EndTime = time.Now().Add(3 * time.Minute)
	env := SetupTestServer(t, closing)
	ctx := context.Background()

	dave := NewSyncClient(t, env, "dave", "Dave", true)
	require.NoError(t, dave.FetchAuctions(ctx))
	dave.SetActiveAuction("a1")
	waitForRoom(t, env, "a1", 1)

	env.service.Tick(time.Now())

	got := WaitForState(t, dave, func(s store.State) bool {
		return hasNotification(s, models.NotificationAuctionEnding, "a1")
	})
	for _, n := range got.Notifications {
		if n.Type == models.NotificationAuctionEnding {
			require.Equal(t, models.PriorityHigh, n.Priority)
			require.False(t, n.Read)
		}
	}
	require.Equal(t, 1, dave.UnreadCount())

	// a second tick under the threshold stays quiet
	env.service.Tick(time.Now())
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, dave.UnreadCount())
}

// After the connection drops, the client reconnects, rejoins its room
// and pulls what it missed
func TestSync_ResyncAfterDrop(t *testing.T) {
	env := SetupTestServer(t, ActiveAuction("a1", 10000))
	ctx := context.Background()

	erin := NewSyncClient(t, env, "erin", "Erin", true)
	require.NoError(t, erin.FetchAuctions(ctx))
	erin.SetActiveAuction("a1")
	waitForRoom(t, env, "a1", 1)

	// a change erin never hears about live
	_, err := env.repo.UpdateAuction("a1", func(a *models.Auction) error {
		a.CurrentBid = 18000
		a.HighestBidder = "frank"
		a.BidCount++
		a.Bids = append([]models.Bid{{ID: "b-frank", AuctionID: "a1", UserID: "frank", Amount: 18000, Timestamp: time.Now()}}, a.Bids...)
		return nil
	})
	require.NoError(t, err)

	env.hub.Close()

	got := WaitForState(t, erin, func(s store.State) bool {
		a, ok := FindAuction(s, "a1")
		return ok && a.CurrentBid == 18000 && s.ConnectionStatus == models.ConnectionConnected
	})
	a, _ := FindAuction(got, "a1")
	require.Equal(t, "frank", a.HighestBidder)
	require.Equal(t, 1, a.BidCount)
	require.Equal(t, "a1", got.ActiveAuctionID)

	waitForRoom(t, env, "a1", 1)

	// live updates flow again on the rejoined room
	_, _, err = env.service.PlaceBid("a1", "gina", "Gina", 19000)
	require.NoError(t, err)
	WaitForState(t, erin, func(s store.State) bool {
		a, ok := FindAuction(s, "a1")
		return ok && a.CurrentBid == 19000 && a.BidCount == 2
	})
}
