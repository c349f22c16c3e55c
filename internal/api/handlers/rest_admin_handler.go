package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nadermx/heroesandmore/internal/config"
	"github.com/nadermx/heroesandmore/internal/services"
)

// RestAdminHandler exposes the periodic sweeps as on-demand admin endpoints,
// for operational use when a scheduled run needs to be forced.
type RestAdminHandler struct {
	cfg              *config.Config
	lifecycleService services.ILifecycleService
}

// NewRestAdminHandler creates a new RestAdminHandler.
func NewRestAdminHandler(cfg *config.Config, lifecycleService services.ILifecycleService) *RestAdminHandler {
	return &RestAdminHandler{cfg: cfg, lifecycleService: lifecycleService}
}

// SweepAuctions handles POST /v1/admin/sweep/auctions
func (h *RestAdminHandler) SweepAuctions(c *gin.Context) {
	closed, err := h.lifecycleService.RunAuctionSweep(c.Request.Context(), time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

// SweepUnpaidOrders handles POST /v1/admin/sweep/unpaid-orders
func (h *RestAdminHandler) SweepUnpaidOrders(c *gin.Context) {
	cancelled, err := h.lifecycleService.RunUnpaidOrderSweep(c.Request.Context(), time.Now().UTC(), h.cfg.OrderPaymentTimeout)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

// SweepOffers handles POST /v1/admin/sweep/offers
func (h *RestAdminHandler) SweepOffers(c *gin.Context) {
	expired, err := h.lifecycleService.RunOfferExpirySweep(c.Request.Context(), time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}
