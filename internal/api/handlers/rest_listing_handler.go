package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nadermx/heroesandmore/internal/models"
	"github.com/nadermx/heroesandmore/internal/services"
)

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	listingService services.IListingService
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(listingService services.IListingService) *RestListingHandler {
	return &RestListingHandler{listingService: listingService}
}

// CreateListingRequest is the JSON body for POST /v1/listing.
type CreateListingRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body"`
	Kind  string `json:"kind" binding:"required,oneof=fixed auction"`

	Price               int64 `json:"price"`
	ShippingPrice       int64 `json:"shipping_price"`
	Quantity            int64 `json:"quantity"`
	AllowOffers         bool  `json:"allow_offers"`
	MinimumOfferPercent int   `json:"minimum_offer_percent"`

	StartingBid            int64      `json:"starting_bid"`
	ReservePrice           *int64     `json:"reserve_price"`
	NoReserve              bool       `json:"no_reserve"`
	AuctionEnd             *time.Time `json:"auction_end"`
	UseExtendedBidding     bool       `json:"use_extended_bidding"`
	ExtendedBiddingMinutes int        `json:"extended_bidding_minutes"`
}

// CreateListing handles POST /v1/listing
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := h.listingService.CreateListing(c.Request.Context(), sellerID, services.NewListingInput{
		Title:                  req.Title,
		Body:                   req.Body,
		Kind:                   models.ListingKind(req.Kind),
		Price:                  req.Price,
		ShippingPrice:          req.ShippingPrice,
		Quantity:               req.Quantity,
		AllowOffers:            req.AllowOffers,
		MinimumOfferPercent:    req.MinimumOfferPercent,
		StartingBid:            req.StartingBid,
		ReservePrice:           req.ReservePrice,
		NoReserve:              req.NoReserve,
		AuctionEnd:             req.AuctionEnd,
		UseExtendedBidding:     req.UseExtendedBidding,
		ExtendedBiddingMinutes: req.ExtendedBiddingMinutes,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// GetListingByID handles GET /v1/listing/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	listingID, ok := pathSixID(c, "id")
	if !ok {
		return
	}

	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve listing"})
		}
		return
	}
	c.JSON(http.StatusOK, listing)
}

// GetSellerListings handles GET /v1/user/:id/listing
func (h *RestListingHandler) GetSellerListings(c *gin.Context) {
	sellerID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	listings, err := h.listingService.FindListingsBySeller(c.Request.Context(), sellerID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch listings"})
		return
	}
	c.JSON(http.StatusOK, listings)
}

// PublishListing handles POST /v1/listing/:id/publish
func (h *RestListingHandler) PublishListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	if err := h.listingService.PublishListing(c.Request.Context(), listingID, sellerID, time.Now().UTC()); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "published"})
}

// CancelListing handles POST /v1/listing/:id/cancel
func (h *RestListingHandler) CancelListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	if err := h.listingService.CancelListing(c.Request.Context(), listingID, sellerID, time.Now().UTC()); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// RelistListingRequest is the JSON body for POST /v1/listing/:id/relist.
type RelistListingRequest struct {
	AdditionalQuantity int64 `json:"additional_quantity"`
}

// RelistListing handles POST /v1/listing/:id/relist
func (h *RestListingHandler) RelistListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	// Body is optional; auction relists send none.
	var req RelistListingRequest
	_ = c.ShouldBindJSON(&req)

	listing, err := h.listingService.RelistListing(c.Request.Context(), listingID, sellerID, req.AdditionalQuantity, time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}
