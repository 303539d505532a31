package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auction-sync/internal/api"
	auction "auction-sync/internal/auctionService"
	"auction-sync/internal/connectivity"
	"auction-sync/internal/livechannel"
	"auction-sync/internal/models"
	"auction-sync/internal/persistence"
	"auction-sync/internal/repository"
	"auction-sync/internal/retry"
	"auction-sync/internal/server"
	"auction-sync/internal/store"
	"auction-sync/services/auction/live"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// testEnv is an in-process auction service reachable over real sockets
type testEnv struct {
	repo    *repository.MemoryRepo
	service *auction.AuctionService
	hub     *live.Hub
	server  *httptest.Server
	baseURL string
	wsURL   string
}

// SetupTestRouter initializes the router with in-memory repository for integration testing.
func SetupTestRouter(auctions ...models.Auction) (*gin.Engine, *repository.MemoryRepo) {
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	for _, a := range auctions {
		if err := repo.AddAuction(a); err != nil {
			panic(err)
		}
	}

	hub := live.NewHub()
	service := auction.NewAuctionService(repo, auction.WithBroadcaster(hub))
	router := server.SetupRouter(service, hub, repo)
	return router, repo
}

// SetupTestServer starts the full service, websocket hub included, on a loopback port.
func SetupTestServer(t *testing.T, auctions ...models.Auction) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	for _, a := range auctions {
		require.NoError(t, repo.AddAuction(a))
	}
	hub := live.NewHub()
	service := auction.NewAuctionService(repo, auction.WithBroadcaster(hub))
	srv := httptest.NewServer(server.SetupRouter(service, hub, repo))

	env := &testEnv{
		repo:    repo,
		service: service,
		hub:     hub,
		server:  srv,
		baseURL: srv.URL,
		wsURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return env
}

// NewSyncClient builds a store for userID wired to env over REST and the
// live channel. connect controls whether the live channel is opened.
func NewSyncClient(t *testing.T, env *testEnv, userID, userName string, connect bool) *store.Store {
	t.Helper()

	apiClient := api.NewClient(env.baseURL, api.WithRetryOptions(retry.Options{
		MaxRetries:        2,
		BaseDelay:         10 * time.Millisecond,
		MaxDelay:          50 * time.Millisecond,
		BackoffMultiplier: 2,
		Timeout:           2 * time.Second,
	}))
	probe := connectivity.NewProbe(env.baseURL+"/health", apiClient.HealthURL(), connectivity.WithTimeout(time.Second))

	liveCfg := livechannel.DefaultConfig()
	liveCfg.HandshakeTimeout = 2 * time.Second
	liveCfg.PingInterval = 0
	liveCfg.ReconnectDelay = 20 * time.Millisecond
	liveCfg.MaxReconnectDelay = 100 * time.Millisecond
	liveClient := livechannel.NewClient(env.wsURL, &liveCfg)

	st, err := store.New(context.Background(), store.Deps{
		Live:      liveClient,
		API:       apiClient,
		Probe:     probe,
		Persister: persistence.NewMemoryStore(),
	}, store.Options{
		UserID:      userID,
		UserName:    userName,
		DedupWindow: 0,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
		_ = liveClient.Close()
	})

	st.Start(context.Background())
	if connect {
		require.NoError(t, st.Connect(context.Background()))
		WaitForState(t, st, func(s store.State) bool { return s.ConnectionStatus == models.ConnectionConnected })
	}
	return st
}

// WaitForState polls the store until cond holds.
func WaitForState(t *testing.T, st *store.Store, cond func(store.State) bool) store.State {
	t.Helper()
	var last store.State
	require.Eventually(t, func() bool {
		last = st.Snapshot()
		return cond(last)
	}, 3*time.Second, 10*time.Millisecond)
	return last
}

// FindAuction returns the auction with id from a snapshot.
func FindAuction(s store.State, id string) (models.Auction, bool) {
	for _, a := range s.Auctions {
		if a.ID == id {
			return a, true
		}
	}
	return models.Auction{}, false
}

// ActiveAuction builds a running auction ending in an hour.
func ActiveAuction(id string, startPrice float64) models.Auction {
	now := time.Now().UTC()
	return models.Auction{
		ID:         id,
		Car:        models.Car{Make: "Porsche", Model: "911", Year: 2018},
		StartPrice: startPrice,
		CurrentBid: startPrice,
		Status:     models.StatusActive,
		StartTime:  now.Add(-time.Hour),
		EndTime:    now.Add(time.Hour),
		Bids:       []models.Bid{},
		SellerID:   "seller-1",
		SellerName: "Sam Seller",
	}
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and decodes the response into out
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any, out any) *httptest.ResponseRecorder {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, reqBody, nil)

	if out != nil && len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return w
}
