// Command auction-sync runs the synchronization client headless: it keeps
// a local copy of the auction list in step with the service, follows one
// auction's room and logs the notification feed as it changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-sync/internal/api"
	"auction-sync/internal/config"
	"auction-sync/internal/connectivity"
	"auction-sync/internal/livechannel"
	"auction-sync/internal/models"
	"auction-sync/internal/observability"
	"auction-sync/internal/persistence"
	"auction-sync/internal/store"
	"auction-sync/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	flagSet := pflag.NewFlagSet("auction-sync", pflag.ContinueOnError)
	userID := flagSet.String("user-id", "", "identity of the viewer (required)")
	userName := flagSet.String("user-name", "", "display name used on bids")
	follow := flagSet.String("follow", "", "auction ID whose room to join")
	apiURL := flagSet.String("api-url", cfg.API.BaseURL, "auction service base URL")
	wsURL := flagSet.String("ws-url", cfg.API.WSURL, "auction service websocket URL")
	logLevel := flagSet.String("log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "--user-id is required")
		os.Exit(2)
	}
	if *userName == "" {
		*userName = *userID
	}
	cfg.API.BaseURL = *apiURL
	cfg.API.WSURL = *wsURL

	utils.SetLevel(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *userID, *userName, *follow); err != nil {
		utils.Fatal("auction-sync stopped", map[string]any{"error": err.Error()})
	}
}

func run(ctx context.Context, cfg *config.Config, userID, userName, follow string) error {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(cfg.Metrics.Namespace, registry)
	if cfg.Metrics.Address != "" {
		metricsSrv := serveMetrics(cfg.Metrics.Address, metrics)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	persister, err := persistence.Open(ctx, cfg.Persistence.Options())
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}
	defer persister.Close()

	apiClient := api.NewClient(cfg.API.BaseURL,
		api.WithRequestTimeout(cfg.API.RequestTimeout),
		api.WithRetryOptions(cfg.Retry.Options()),
		api.WithMetrics(metrics),
	)
	probe := connectivity.NewProbe(cfg.Probe.NetworkURL, apiClient.HealthURL(), cfg.Probe.ProbeOptions()...)

	liveCfg := cfg.Live.ClientConfig()
	liveClient := livechannel.NewClient(cfg.API.WSURL, &liveCfg)
	defer liveClient.Close()

	st, err := store.New(ctx, store.Deps{
		Live:      liveClient,
		API:       apiClient,
		Probe:     probe,
		Persister: persister,
		Metrics:   metrics,
	}, store.Options{
		UserID:          userID,
		UserName:        userName,
		FeedCapacity:    cfg.Notifications.Capacity,
		DedupWindow:     cfg.Notifications.DedupWindow,
		EndingThreshold: cfg.Notifications.EndingThreshold,
	})
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			utils.Error("store close failed", map[string]any{"error": err.Error()})
		}
	}()

	updates, unsubscribe := st.Subscribe()
	defer unsubscribe()

	st.Start(ctx)
	if err := st.Connect(ctx); err != nil {
		// REST keeps working without the live channel
		utils.Warn("live channel unavailable, continuing over REST", map[string]any{"error": err.Error()})
	}
	if err := st.FetchAuctions(ctx); err != nil && !errors.Is(err, context.Canceled) {
		utils.Warn("initial auction fetch failed", map[string]any{"error": err.Error()})
	}
	if follow != "" {
		st.SetActiveAuction(follow)
		if _, err := st.FetchAuction(ctx, follow); err != nil {
			utils.Warn("could not load followed auction", map[string]any{"auction_id": follow, "error": err.Error()})
		}
	}

	utils.Info("auction-sync running", map[string]any{
		"user_id":  userID,
		"api":      cfg.API.BaseURL,
		"follow":   follow,
		"auctions": len(st.Snapshot().Auctions),
	})

	watchFeed(ctx, updates)
	return nil
}

// watchFeed logs notifications the first time they show up and
// connection changes, until ctx is done or the store closes.
func watchFeed(ctx context.Context, updates <-chan store.State) {
	seen := make(map[string]time.Time)
	connection := models.ConnectionDisconnected

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			if state.ConnectionStatus != connection {
				connection = state.ConnectionStatus
				utils.Info("live channel "+string(connection), nil)
			}
			for _, n := range state.Notifications {
				if at, ok := seen[n.ID]; ok && at.Equal(n.Timestamp) {
					continue
				}
				seen[n.ID] = n.Timestamp
				utils.Info(n.Title, map[string]any{
					"type":       n.Type,
					"priority":   n.Priority,
					"auction_id": n.AuctionID,
					"message":    n.Message,
				})
			}
		}
	}
}

func serveMetrics(addr string, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		utils.Info("serving metrics", map[string]any{"address": addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Error("metrics server failed", map[string]any{"error": err.Error()})
		}
	}()
	return srv
}
