package helpers

import (
	"time"

	"auction-sync/internal/models"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	UserID   string  `json:"userId" binding:"required"`
	UserName string  `json:"userName"`
}

type PlaceBidResponse struct {
	Bid models.Bid `json:"bid"`
}

type WatchRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type CarRequest struct {
	Make           string  `json:"make" binding:"required"`
	Model          string  `json:"model" binding:"required"`
	Year           int     `json:"year" binding:"omitempty,gt=1885"`
	Mileage        int     `json:"mileage" binding:"omitempty,gte=0"`
	Condition      string  `json:"condition"`
	EstimatedValue float64 `json:"estimatedValue" binding:"omitempty,gte=0"`
}

type CreateAuctionRequest struct {
	Car          CarRequest `json:"car"`
	StartPrice   float64    `json:"startPrice" binding:"required,gt=0"`
	ReservePrice *float64   `json:"reservePrice" binding:"omitempty,gt=0"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      time.Time  `json:"endTime"`
	SellerID     string     `json:"sellerId" binding:"required"`
	SellerName   string     `json:"sellerName"`
}

// ToData converts the request into the service's input
func (r CreateAuctionRequest) ToData() models.CreateAuctionData {
	return models.CreateAuctionData{
		Car: models.Car{
			Make:           r.Car.Make,
			Model:          r.Car.Model,
			Year:           r.Car.Year,
			Mileage:        r.Car.Mileage,
			Condition:      r.Car.Condition,
			EstimatedValue: r.Car.EstimatedValue,
		},
		StartPrice:   r.StartPrice,
		ReservePrice: r.ReservePrice,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		SellerID:     r.SellerID,
		SellerName:   r.SellerName,
	}
}

type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
