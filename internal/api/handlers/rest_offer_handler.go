package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nadermx/heroesandmore/internal/services"
)

// RestOfferHandler handles REST requests for offers.
type RestOfferHandler struct {
	offerService services.IOfferService
}

// NewRestOfferHandler creates a new RestOfferHandler.
func NewRestOfferHandler(offerService services.IOfferService) *RestOfferHandler {
	return &RestOfferHandler{offerService: offerService}
}

// MakeOfferRequest is the JSON body for POST /v1/listing/:id/offer.
type MakeOfferRequest struct {
	Amount  int64  `json:"amount" binding:"required,gt=0"`
	Message string `json:"message"`
}

// MakeOffer handles POST /v1/listing/:id/offer
func (h *RestOfferHandler) MakeOffer(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	var req MakeOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	offer, err := h.offerService.MakeOffer(c.Request.Context(), listingID, buyerID, req.Amount, req.Message, time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

// AcceptOffer handles POST /v1/offer/:id/accept. The seller accepts a
// pending offer; the buyer accepts a countered one.
func (h *RestOfferHandler) AcceptOffer(c *gin.Context) {
	callerID, ok := currentUserID(c)
	if !ok {
		return
	}
	offerID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	order, err := h.offerService.AcceptOffer(c.Request.Context(), offerID, callerID, time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// DeclineOffer handles POST /v1/offer/:id/decline
func (h *RestOfferHandler) DeclineOffer(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	offerID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	if err := h.offerService.DeclineOffer(c.Request.Context(), offerID, sellerID, time.Now().UTC()); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}

// CounterOfferRequest is the JSON body for POST /v1/offer/:id/counter.
type CounterOfferRequest struct {
	CounterAmount int64 `json:"counter_amount" binding:"required,gt=0"`
}

// CounterOffer handles POST /v1/offer/:id/counter
func (h *RestOfferHandler) CounterOffer(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	offerID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	var req CounterOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	offer, err := h.offerService.CounterOffer(c.Request.Context(), offerID, sellerID, req.CounterAmount, time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// WithdrawOffer handles POST /v1/offer/:id/withdraw
func (h *RestOfferHandler) WithdrawOffer(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	offerID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	if err := h.offerService.WithdrawOffer(c.Request.Context(), offerID, buyerID, time.Now().UTC()); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "withdrawn"})
}
