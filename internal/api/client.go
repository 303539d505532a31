// Package api is the REST client for the auction service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"auction-sync/internal/models"
	"auction-sync/internal/observability"
	"auction-sync/internal/retry"
	"auction-sync/utils"
)

// IdempotencyHeader carries a per-command key so that a retried POST is
// applied at most once by the service.
const IdempotencyHeader = "Idempotency-Key"

// Client calls the auction service REST API through the retrying executor.
type Client struct {
	baseURL        string
	client         *http.Client
	requestTimeout time.Duration
	retry          retry.Options
	metrics        *observability.Metrics
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets custom http.Client. A client without a cookie jar
// gets one so session cookies still flow.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithRequestTimeout sets http.Client.Timeout, which bounds each attempt
// separately; the retry policy's Timeout applies on top. Zero disables it.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithRetryOptions sets the retry policy for every call.
func WithRetryOptions(opts retry.Options) ClientOption {
	return func(c *Client) {
		c.retry = opts
	}
}

// WithMetrics records retries and latency.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client for the service at baseURL. Cookies set by
// the service are kept and sent back on every call.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Jar: jar},
		retry:   retry.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// never mutate a caller's client
	custom := *c.client
	if custom.Jar == nil {
		custom.Jar = jar
	}
	if c.requestTimeout > 0 {
		custom.Timeout = c.requestTimeout
	}
	c.client = &custom
	return c
}

type placeBidRequest struct {
	Amount   float64 `json:"amount"`
	UserID   string  `json:"userId"`
	UserName string  `json:"userName"`
}

type placeBidResponse struct {
	Bid models.Bid `json:"bid"`
}

type watchRequest struct {
	UserID string `json:"userId"`
}

// ListAuctions handles GET /auctions
func (c *Client) ListAuctions(ctx context.Context) ([]models.Auction, error) {
	var auctions []models.Auction
	if err := c.do(ctx, "list_auctions", http.MethodGet, "/auctions", nil, "", &auctions); err != nil {
		return nil, err
	}
	return auctions, nil
}

// GetAuction handles GET /auctions/:id
func (c *Client) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	var auction models.Auction
	err := c.do(ctx, "get_auction", http.MethodGet, "/auctions/"+url.PathEscape(auctionID), nil, "", &auction)
	return auction, err
}

// PlaceBid handles POST /auctions/:id/bids
func (c *Client) PlaceBid(ctx context.Context, auctionID string, amount float64, userID, userName string) (models.Bid, error) {
	var resp placeBidResponse
	body := placeBidRequest{Amount: amount, UserID: userID, UserName: userName}
	err := c.do(ctx, "place_bid", http.MethodPost, "/auctions/"+url.PathEscape(auctionID)+"/bids", body, utils.GenerateID(), &resp)
	return resp.Bid, err
}

// SetWatch handles POST (watch) and DELETE (unwatch) /auctions/:id/watch
func (c *Client) SetWatch(ctx context.Context, auctionID, userID string, watch bool) error {
	method := http.MethodDelete
	if watch {
		method = http.MethodPost
	}
	return c.do(ctx, "set_watch", method, "/auctions/"+url.PathEscape(auctionID)+"/watch", watchRequest{UserID: userID}, "", nil)
}

// CreateAuction handles POST /auctions
func (c *Client) CreateAuction(ctx context.Context, data models.CreateAuctionData) (models.Auction, error) {
	var auction models.Auction
	err := c.do(ctx, "create_auction", http.MethodPost, "/auctions", data, utils.GenerateID(), &auction)
	return auction, err
}

// EndAuction handles POST /auctions/:id/end
func (c *Client) EndAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	var auction models.Auction
	err := c.do(ctx, "end_auction", http.MethodPost, "/auctions/"+url.PathEscape(auctionID)+"/end", nil, "", &auction)
	return auction, err
}

// UserCars handles GET /cars/:userId/cars
func (c *Client) UserCars(ctx context.Context, userID string) ([]models.Car, error) {
	var cars []models.Car
	if err := c.do(ctx, "user_cars", http.MethodGet, "/cars/"+url.PathEscape(userID)+"/cars", nil, "", &cars); err != nil {
		return nil, err
	}
	return cars, nil
}

// HealthURL returns the absolute URL of GET /health.
func (c *Client) HealthURL() string {
	return c.baseURL + "/health"
}

func (c *Client) do(ctx context.Context, operation, method, path string, body any, idempotencyKey string, out any) error {
	req := retry.Request{Method: method, URL: c.baseURL + path, Header: http.Header{}}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", operation, err)
		}
		req.Body = payload
	}
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	opts := c.retry
	opts.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.metrics.RecordRetry(operation)
		utils.Warn("retrying request", map[string]any{
			"component": "api",
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay.String(),
			"error":     err.Error(),
		})
	}

	start := time.Now()
	resp, err := retry.Fetch(ctx, c.client, req, opts)
	c.metrics.RecordRequest(operation, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	if out == nil {
		return nil
	}
	if err := resp.DecodeJSON(out); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}
