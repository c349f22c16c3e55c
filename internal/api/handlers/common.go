package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nadermx/heroesandmore/internal/api/middleware"
	"github.com/nadermx/heroesandmore/internal/services"
	"github.com/nadermx/heroesandmore/internal/utils"
)

// currentUserID extracts the authenticated user's ID set by AuthMiddleware.
func currentUserID(c *gin.Context) (utils.SixID, bool) {
	idStr := c.GetString(middleware.ContextKeyUserID)
	if idStr == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return utils.SixID{}, false
	}
	id, err := utils.ParseSixID(idStr)
	if err != nil || id.IsZero() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user identity"})
		return utils.SixID{}, false
	}
	return id, true
}

// pathSixID parses a SixID path parameter, writing a 400 on failure.
func pathSixID(c *gin.Context, param string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(param))
	if err != nil || id.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param + " format"})
		return utils.SixID{}, false
	}
	return id, true
}

// respondServiceError maps the services' typed failures onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, services.ErrAuctionNotActive),
		errors.Is(err, services.ErrListingNotActive),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrOfferNotInExpectedState),
		errors.Is(err, services.ErrOrderNotInExpectedState),
		errors.Is(err, services.ErrOfferAlreadyPending),
		errors.Is(err, services.ErrOfferExpired),
		errors.Is(err, services.ErrHasOpenOrders),
		errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrSelfBidding),
		errors.Is(err, services.ErrOffersNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrBidTooLow),
		errors.Is(err, services.ErrOfferTooLow):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
