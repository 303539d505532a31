package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetry() retry.Options {
	return retry.Options{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1, Timeout: time.Second}
}

func TestClient_Endpoints(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []string
	var lastIdempotencyKey string
	record := func(call string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, call)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auctions", func(w http.ResponseWriter, r *http.Request) {
		record("list")
		_ = json.NewEncoder(w).Encode([]models.Auction{{ID: "a1", Status: models.StatusActive}})
	})
	mux.HandleFunc("GET /auctions/{id}", func(w http.ResponseWriter, r *http.Request) {
		record("get:" + r.PathValue("id"))
		_ = json.NewEncoder(w).Encode(models.Auction{ID: r.PathValue("id")})
	})
	mux.HandleFunc("POST /auctions/{id}/bids", func(w http.ResponseWriter, r *http.Request) {
		record("bid:" + r.PathValue("id"))
		mu.Lock()
		lastIdempotencyKey = r.Header.Get(IdempotencyHeader)
		mu.Unlock()
		var req placeBidRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(placeBidResponse{Bid: models.Bid{ID: "b1", AuctionID: r.PathValue("id"), UserID: req.UserID, UserName: req.UserName, Amount: req.Amount}})
	})
	mux.HandleFunc("POST /auctions/{id}/watch", func(w http.ResponseWriter, r *http.Request) {
		record("watch:" + r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /auctions/{id}/watch", func(w http.ResponseWriter, r *http.Request) {
		record("unwatch:" + r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /auctions/{id}/end", func(w http.ResponseWriter, r *http.Request) {
		record("end:" + r.PathValue("id"))
		_ = json.NewEncoder(w).Encode(models.Auction{ID: r.PathValue("id"), Status: models.StatusEnded})
	})
	mux.HandleFunc("POST /auctions", func(w http.ResponseWriter, r *http.Request) {
		record("create")
		var data models.CreateAuctionData
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&data))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Auction{ID: "new", Car: data.Car, SellerID: data.SellerID, Status: models.StatusUpcoming})
	})
	mux.HandleFunc("GET /cars/{user}/cars", func(w http.ResponseWriter, r *http.Request) {
		record("cars:" + r.PathValue("user"))
		_ = json.NewEncoder(w).Encode([]models.Car{{ID: "c1", Make: "Audi", OwnerID: r.PathValue("user")}})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL+"/", WithRetryOptions(testRetry()))
	ctx := context.Background()

	auctions, err := client.ListAuctions(ctx)
	require.NoError(t, err)
	require.Len(t, auctions, 1)

	auction, err := client.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "a1", auction.ID)

	bid, err := client.PlaceBid(ctx, "a1", 15000, "u1", "Ann")
	require.NoError(t, err)
	require.Equal(t, 15000.0, bid.Amount)
	require.Equal(t, "u1", bid.UserID)
	mu.Lock()
	require.NotEmpty(t, lastIdempotencyKey)
	mu.Unlock()

	require.NoError(t, client.SetWatch(ctx, "a1", "u1", true))
	require.NoError(t, client.SetWatch(ctx, "a1", "u1", false))

	created, err := client.CreateAuction(ctx, models.CreateAuctionData{Car: models.Car{Make: "BMW"}, SellerID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "BMW", created.Car.Make)

	ended, err := client.EndAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, models.StatusEnded, ended.Status)

	cars, err := client.UserCars(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", cars[0].OwnerID)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"list", "get:a1", "bid:a1", "watch:a1", "unwatch:a1", "create", "end:a1", "cars:u1"}, seen)
	require.Equal(t, server.URL+"/health", client.HealthURL())
}

func TestClient_ApplicationErrorCarriesServerMessage(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"status":409,"message":"bid amount too low","error":"service: bid amount too low"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryOptions(testRetry()))
	_, err := client.PlaceBid(context.Background(), "a1", 1, "u1", "Ann")

	var httpErr *biddingerrors.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusConflict, httpErr.Status)
	require.Equal(t, "bid amount too low", httpErr.Message)
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_SendsCookiesBack(t *testing.T) {
	t.Parallel()

	var gotCookie atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
			gotCookie.Store(true)
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryOptions(testRetry()))
	_, err := client.ListAuctions(context.Background())
	require.NoError(t, err)
	_, err = client.ListAuctions(context.Background())
	require.NoError(t, err)
	require.True(t, gotCookie.Load())
}

func TestClient_InjectedHTTPClientKeepsCookies(t *testing.T) {
	t.Parallel()

	var gotCookie atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
			gotCookie.Store(true)
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	injected := &http.Client{}
	client := NewClient(server.URL,
		WithRequestTimeout(time.Second),
		WithHTTPClient(injected),
		WithRetryOptions(testRetry()),
	)
	_, err := client.ListAuctions(context.Background())
	require.NoError(t, err)
	_, err = client.ListAuctions(context.Background())
	require.NoError(t, err)
	require.True(t, gotCookie.Load())

	// the caller's client is left as it was
	require.Nil(t, injected.Jar)
	require.Zero(t, injected.Timeout)
}

func TestClient_RequestTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	opts := testRetry()
	opts.MaxRetries = 1
	client := NewClient(srv.URL, WithRetryOptions(opts), WithRequestTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := client.ListAuctions(context.Background())
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}
