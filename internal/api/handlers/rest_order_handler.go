package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nadermx/heroesandmore/internal/api/middleware"
	"github.com/nadermx/heroesandmore/internal/services"
	"github.com/nadermx/heroesandmore/internal/utils"
)

// RestOrderHandler handles REST requests for orders.
type RestOrderHandler struct {
	orderService services.IOrderService
}

// NewRestOrderHandler creates a new RestOrderHandler.
func NewRestOrderHandler(orderService services.IOrderService) *RestOrderHandler {
	return &RestOrderHandler{orderService: orderService}
}

// PurchaseRequest is the JSON body for POST /v1/listing/:id/purchase.
// Guest checkout supplies contact details instead of authenticating.
type PurchaseRequest struct {
	Quantity   int64  `json:"quantity" binding:"required,gt=0"`
	GuestEmail string `json:"guest_email"`
	GuestName  string `json:"guest_name"`
}

// Purchase handles POST /v1/listing/:id/purchase
func (h *RestOrderHandler) Purchase(c *gin.Context) {
	listingID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyer := services.BuyerRef{GuestEmail: req.GuestEmail, GuestName: req.GuestName}
	if idStr := c.GetString(middleware.ContextKeyUserID); idStr != "" {
		id, err := utils.ParseSixID(idStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user identity"})
			return
		}
		buyer.BuyerID = &id
	}
	if buyer.BuyerID == nil && buyer.GuestEmail == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Guest checkout requires guest_email"})
		return
	}

	order, err := h.orderService.Purchase(c.Request.Context(), listingID, buyer, req.Quantity, time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GetOrderByID handles GET /v1/order/:id
func (h *RestOrderHandler) GetOrderByID(c *gin.Context) {
	orderID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	order, err := h.orderService.FindOrderByID(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// MarkOrderPaid handles POST /v1/order/:id/paid. In production this sits
// behind the payment provider's webhook; either party to the order may
// confirm, nobody else.
func (h *RestOrderHandler) MarkOrderPaid(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	if err := h.orderService.MarkPaid(c.Request.Context(), orderID, userID, time.Now().UTC()); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paid"})
}

// CancelOrder handles POST /v1/order/:id/cancel
func (h *RestOrderHandler) CancelOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := pathSixID(c, "id")
	if !ok {
		return
	}
	if err := h.orderService.CancelOrder(c.Request.Context(), orderID, userID, time.Now().UTC()); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
