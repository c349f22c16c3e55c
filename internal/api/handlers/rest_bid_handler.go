package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nadermx/heroesandmore/internal/services"
)

// RestBidHandler handles REST requests for bids.
type RestBidHandler struct {
	bidService services.IBidService
}

// NewRestBidHandler creates a new RestBidHandler.
func NewRestBidHandler(bidService services.IBidService) *RestBidHandler {
	return &RestBidHandler{bidService: bidService}
}

// PlaceBidRequest is the JSON body for POST /v1/listing/:id/bid.
// Amounts are cents. MaxAmount, when set, is the proxy ceiling.
type PlaceBidRequest struct {
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	MaxAmount *int64 `json:"max_amount"`
}

// PlaceBid handles POST /v1/listing/:id/bid
func (h *RestBidHandler) PlaceBid(c *gin.Context) {
	bidderID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	var req PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.bidService.PlaceBid(c.Request.Context(), listingID, bidderID, req.Amount, req.MaxAmount, time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ListBids handles GET /v1/listing/:id/bid
func (h *RestBidHandler) ListBids(c *gin.Context) {
	listingID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	bids, err := h.bidService.ListBids(c.Request.Context(), listingID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bids"})
		return
	}
	c.JSON(http.StatusOK, bids)
}
