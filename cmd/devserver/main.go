// Command devserver runs an in-memory auction service that speaks the same
// REST and websocket contract as the production service. It exists for
// local development and the end-to-end tests.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	auction "auction-sync/internal/auctionService"
	"auction-sync/internal/config"
	"auction-sync/internal/models"
	"auction-sync/internal/repository"
	"auction-sync/internal/server"
	"auction-sync/services/auction/live"
	"auction-sync/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	flagSet := pflag.NewFlagSet("devserver", pflag.ContinueOnError)
	host := flagSet.String("host", cfg.DevServer.Host, "address to listen on")
	port := flagSet.Int("port", cfg.DevServer.Port, "port to listen on")
	seed := flagSet.Int("seed", cfg.DevServer.SeedAuctions, "number of sample auctions to create at startup")
	tick := flagSet.Duration("tick", cfg.DevServer.TickInterval, "how often auction clocks advance")
	logLevel := flagSet.String("log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	cfg.DevServer.Host = *host
	cfg.DevServer.Port = *port

	utils.SetLevel(*logLevel)
	gin.SetMode(gin.ReleaseMode)

	repo := repository.NewMemoryRepo()
	hub := live.NewHub()
	auctionSvc := auction.NewAuctionService(repo, auction.WithBroadcaster(hub))

	if err := seedAuctions(auctionSvc, *seed, time.Now().UTC()); err != nil {
		utils.Fatal("failed to seed auctions", map[string]any{"error": err.Error()})
	}

	router := server.SetupRouter(auctionSvc, hub, repo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go auctionSvc.RunClock(ctx, *tick)

	srv := &http.Server{
		Addr:              cfg.DevServer.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info("starting auction dev server", map[string]any{"address": srv.Addr, "seeded": *seed})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Fatal("server failed", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down auction dev server", nil)

	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("graceful shutdown failed", map[string]any{"error": err.Error()})
	}
}

var sampleCars = []models.Car{
	{Make: "Porsche", Model: "911 Carrera", Year: 2018, Mileage: 42000, Condition: "excellent", EstimatedValue: 85000},
	{Make: "BMW", Model: "M3", Year: 2020, Mileage: 18000, Condition: "good", EstimatedValue: 62000},
	{Make: "Ford", Model: "Mustang GT", Year: 1969, Mileage: 91000, Condition: "restored", EstimatedValue: 74000},
	{Make: "Toyota", Model: "Supra", Year: 1998, Mileage: 120000, Condition: "fair", EstimatedValue: 58000},
	{Make: "Mazda", Model: "MX-5", Year: 2021, Mileage: 9000, Condition: "excellent", EstimatedValue: 27000},
}

// seedAuctions opens n sample auctions with staggered end times. Every
// third one starts a few minutes in the future.
func seedAuctions(svc *auction.AuctionService, n int, now time.Time) error {
	for i := 0; i < n; i++ {
		car := sampleCars[i%len(sampleCars)]
		start := now
		if i%3 == 2 {
			start = now.Add(2 * time.Minute)
		}

		_, err := svc.CreateAuction(models.CreateAuctionData{
			Car:        car,
			StartPrice: roundDown(car.EstimatedValue*0.6, 500),
			StartTime:  start,
			EndTime:    start.Add(time.Duration(10+5*i) * time.Minute),
			SellerID:   fmt.Sprintf("seller-%d", i%2+1),
			SellerName: fmt.Sprintf("Seller %d", i%2+1),
		})
		if err != nil {
			return fmt.Errorf("seed auction %d: %w", i, err)
		}
	}
	return nil
}

func roundDown(v, step float64) float64 {
	return float64(int64(v/step)) * step
}
