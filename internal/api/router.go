package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nadermx/heroesandmore/internal/api/handlers"
	"github.com/nadermx/heroesandmore/internal/api/middleware"
	"github.com/nadermx/heroesandmore/internal/config"
	"github.com/nadermx/heroesandmore/internal/events"
	"github.com/nadermx/heroesandmore/internal/locks"
	"github.com/nadermx/heroesandmore/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
// lockTable must be the same instance the background workers use so that
// listing mutations from both sides serialize on the same keys.
func SetupRouter(cfg *config.Config, db *mongo.Database, lockTable *locks.KeyedMutex, publisher events.Publisher) *gin.Engine {
	inventoryService := services.NewInventoryService(db)
	listingService := services.NewListingService(db, cfg, lockTable)
	bidService := services.NewBidService(db, cfg, lockTable, publisher)
	orderService := services.NewOrderService(db, cfg, lockTable, inventoryService, publisher)
	offerService := services.NewOfferService(db, cfg, lockTable, inventoryService, orderService, publisher)
	lifecycleService := services.NewLifecycleService(db, cfg, lockTable, inventoryService, orderService, publisher)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	restListingHandler := handlers.NewRestListingHandler(listingService)
	restBidHandler := handlers.NewRestBidHandler(bidService)
	restOfferHandler := handlers.NewRestOfferHandler(offerService)
	restOrderHandler := handlers.NewRestOrderHandler(orderService)
	restAdminHandler := handlers.NewRestAdminHandler(cfg, lifecycleService)

	v1 := r.Group("/v1")
	{
		// Public routes
		v1.GET("/listing/:id", restListingHandler.GetListingByID)
		v1.GET("/listing/:id/bid", restBidHandler.ListBids)
		v1.GET("/user/:id/listing", restListingHandler.GetSellerListings)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Guest checkout is allowed, so purchase sits behind the optional
		// auth middleware: an authenticated buyer gets their identity, an
		// anonymous one supplies guest contact details in the body.
		optionalAuth := v1.Group("/")
		optionalAuth.Use(middleware.OptionalAuthMiddleware(cfg.JwtSecret))
		{
			optionalAuth.POST("/listing/:id/purchase", restOrderHandler.Purchase)
		}

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/listing", restListingHandler.CreateListing)
			authRequired.POST("/listing/:id/publish", restListingHandler.PublishListing)
			authRequired.POST("/listing/:id/cancel", restListingHandler.CancelListing)
			authRequired.POST("/listing/:id/relist", restListingHandler.RelistListing)

			authRequired.POST("/listing/:id/bid", restBidHandler.PlaceBid)

			authRequired.POST("/listing/:id/offer", restOfferHandler.MakeOffer)
			authRequired.POST("/offer/:id/accept", restOfferHandler.AcceptOffer)
			authRequired.POST("/offer/:id/decline", restOfferHandler.DeclineOffer)
			authRequired.POST("/offer/:id/counter", restOfferHandler.CounterOffer)
			authRequired.POST("/offer/:id/withdraw", restOfferHandler.WithdrawOffer)

			authRequired.GET("/order/:id", restOrderHandler.GetOrderByID)
			authRequired.POST("/order/:id/paid", restOrderHandler.MarkOrderPaid)
			authRequired.POST("/order/:id/cancel", restOrderHandler.CancelOrder)
		}

		// Operational endpoints: force a sweep ahead of its schedule.
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			admin.POST("/sweep/auctions", restAdminHandler.SweepAuctions)
			admin.POST("/sweep/unpaid-orders", restAdminHandler.SweepUnpaidOrders)
			admin.POST("/sweep/offers", restAdminHandler.SweepOffers)
		}
	}

	return r
}
