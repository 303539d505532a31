// Package connectivity tells "no network" apart from "network up, backend
// down". Results are advisory: callers log them and carry on.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"auction-sync/internal/models"
	"auction-sync/utils"
)

// DefaultTimeout bounds each probe request.
const DefaultTimeout = 5 * time.Second

// Probe checks reachability of a public endpoint and of the API health endpoint.
type Probe struct {
	client     *http.Client
	networkURL string
	healthURL  string
	timeout    time.Duration
	now        func() time.Time

	mu     sync.RWMutex
	status models.ConnectivityStatus
}

// Option configures Probe.
type Option func(*Probe)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Probe) {
		p.client = client
	}
}

// WithTimeout sets the per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Probe) {
		p.timeout = d
	}
}

// WithClock overrides the time source used for LastCheck.
func WithClock(now func() time.Time) Option {
	return func(p *Probe) {
		p.now = now
	}
}

// NewProbe creates a probe. networkURL should be a cheap public endpoint;
// healthURL is the API's GET /health.
func NewProbe(networkURL, healthURL string, opts ...Option) *Probe {
	p := &Probe{
		client:     &http.Client{},
		networkURL: networkURL,
		healthURL:  healthURL,
		timeout:    DefaultTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckNetwork reports whether the public endpoint answered at all.
// Any failure, including a timeout, counts as offline.
func (p *Probe) CheckNetwork(ctx context.Context) bool {
	_, err := p.get(ctx, p.networkURL)
	if err != nil {
		utils.Warn("network probe failed", map[string]any{"component": "connectivity", "url": p.networkURL, "error": err.Error()})
		return false
	}
	return true
}

// CheckBackend reports whether the health endpoint answered with a 2xx.
func (p *Probe) CheckBackend(ctx context.Context) bool {
	status, err := p.get(ctx, p.healthURL)
	if err != nil {
		utils.Warn("backend probe failed", map[string]any{"component": "connectivity", "url": p.healthURL, "error": err.Error()})
		return false
	}
	return status >= 200 && status < 300
}

// CheckFull probes the network and, only if that succeeds, the backend.
// The result replaces the previously stored status.
func (p *Probe) CheckFull(ctx context.Context) models.ConnectivityStatus {
	status := models.ConnectivityStatus{LastCheck: p.now()}

	switch {
	case !p.CheckNetwork(ctx):
		status.Error = "network unreachable"
	case !p.CheckBackend(ctx):
		status.IsOnline = true
		status.Error = "backend unreachable"
	default:
		status.IsOnline = true
		status.BackendReachable = true
	}

	p.mu.Lock()
	p.status = status
	p.mu.Unlock()

	return status
}

// Last returns the most recent CheckFull result.
func (p *Probe) Last() models.ConnectivityStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Probe) get(ctx context.Context, url string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
