package server

import (
	"time"

	auction "auction-sync/internal/auctionService"
	"auction-sync/internal/repository"
	handler "auction-sync/services/auction/handler"
	"auction-sync/services/auction/live"

	"github.com/gin-gonic/gin"
)

// IdempotencyTTL is how long a replayable response is kept
const IdempotencyTTL = 24 * time.Hour

// SetupRouter configures all Gin routes for the application
func SetupRouter(auctionService *auction.AuctionService, hub *live.Hub, keys repository.IdempotencyStore) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	auctionHandler := handler.NewAuctionHandler(auctionService)

	router.GET("/health", auctionHandler.HealthHandler)
	router.GET("/ws", hub.Handler(auctionService))

	auctions := router.Group("/auctions")
	auctions.Use(IdempotencyMiddleware(keys, IdempotencyTTL))
	{
		auctions.GET("", auctionHandler.ListAuctionsHandler)
		auctions.POST("", auctionHandler.CreateAuctionHandler)
		auctions.GET("/:id", auctionHandler.GetAuctionHandler)
		auctions.POST("/:id/bids", auctionHandler.PlaceBidHandler)
		auctions.POST("/:id/watch", auctionHandler.WatchHandler)
		auctions.DELETE("/:id/watch", auctionHandler.UnwatchHandler)
		auctions.POST("/:id/end", auctionHandler.EndAuctionHandler)
	}

	cars := router.Group("/cars")
	{
		cars.GET("/:userId/cars", auctionHandler.GetUserCarsHandler)
	}

	return router
}
