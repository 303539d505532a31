package handler

import (
	"errors"
	"net/http"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/services/auction/helpers"
	"auction-sync/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=auction_handler.go -destination=mocks.go -package=handler

type AuctionServiceInterface interface {
	ListAuctions() ([]models.Auction, error)
	GetAuction(auctionID string) (models.Auction, error)
	PlaceBid(auctionID, userID, userName string, amount float64) (models.Bid, models.Auction, error)
	SetWatch(auctionID, userID string, watch bool) (models.Auction, error)
	CreateAuction(data models.CreateAuctionData) (models.Auction, error)
	EndAuction(auctionID string) (models.Auction, error)
	GetCarsByUser(userID string) ([]models.Car, error)
}

type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// ListAuctionsHandler handles GET /auctions
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	auctions, err := h.service.ListAuctions()
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, nil)
		return
	}

	if auctions == nil {
		auctions = []models.Auction{}
	}

	c.JSON(http.StatusOK, auctions)
	helpers.LogSuccess("ListAuctionsHandler", "auctions listed", map[string]any{"count": len(auctions)})
}

// GetAuctionHandler handles GET /auctions/:id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")
	auction, err := h.service.GetAuction(auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	c.JSON(http.StatusOK, auction)
}

// PlaceBidHandler handles POST /auctions/:id/bids
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	bid, _, err := h.service.PlaceBid(auctionID, req.UserID, req.UserName, req.Amount)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    req.UserID,
			"amount":     req.Amount,
		})
		return
	}

	c.JSON(http.StatusCreated, helpers.PlaceBidResponse{Bid: bid})
	helpers.LogSuccess("PlaceBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     bid.ID,
		"auction_id": auctionID,
		"user_id":    req.UserID,
		"amount":     bid.Amount,
	})
}

// WatchHandler handles POST /auctions/:id/watch
func (h *AuctionHandler) WatchHandler(c *gin.Context) {
	h.setWatch(c, "WatchHandler", true)
}

// UnwatchHandler handles DELETE /auctions/:id/watch
func (h *AuctionHandler) UnwatchHandler(c *gin.Context) {
	h.setWatch(c, "UnwatchHandler", false)
}

func (h *AuctionHandler) setWatch(c *gin.Context, handlerName string, watch bool) {
	auctionID := c.Param("id")

	var req helpers.WatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, handlerName, err)
		return
	}

	auction, err := h.service.SetWatch(auctionID, req.UserID, watch)
	if err != nil {
		helpers.RespondError(c, handlerName, err, map[string]any{"auction_id": auctionID, "user_id": req.UserID})
		return
	}

	c.JSON(http.StatusOK, auction)
	helpers.LogSuccess(handlerName, "watch updated", map[string]any{
		"auction_id": auctionID,
		"user_id":    req.UserID,
		"watching":   watch,
	})
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.service.CreateAuction(req.ToData())
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"seller_id": req.SellerID})
		return
	}

	c.JSON(http.StatusCreated, auction)
	helpers.LogSuccess("CreateAuctionHandler", "auction created", map[string]any{
		"auction_id": auction.ID,
		"seller_id":  auction.SellerID,
		"status":     auction.Status,
	})
}

// EndAuctionHandler handles POST /auctions/:id/end
func (h *AuctionHandler) EndAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")
	auction, err := h.service.EndAuction(auctionID)
	if err != nil {
		helpers.RespondError(c, "EndAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	c.JSON(http.StatusOK, auction)
	helpers.LogSuccess("EndAuctionHandler", "auction ended", map[string]any{
		"auction_id": auctionID,
		"bid_count":  auction.BidCount,
	})
}

// GetUserCarsHandler handles GET /cars/:userId/cars
func (h *AuctionHandler) GetUserCarsHandler(c *gin.Context) {
	userID := c.Param("userId")
	cars, err := h.service.GetCarsByUser(userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoCars) {
		helpers.RespondError(c, "GetUserCarsHandler", err, map[string]any{"user_id": userID})
		return
	}

	if cars == nil {
		cars = []models.Car{}
	}

	c.JSON(http.StatusOK, cars)
}

// HealthHandler handles GET /health
func (h *AuctionHandler) HealthHandler(c *gin.Context) {
	utils.JSONResponse(c, http.StatusOK, helpers.HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}, "service healthy")
}
