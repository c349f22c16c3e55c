package handlers_test

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"github.com/nadermx/heroesandmore/internal/api/middleware"
	"github.com/nadermx/heroesandmore/internal/models"
	"github.com/nadermx/heroesandmore/internal/services"
	"github.com/nadermx/heroesandmore/internal/utils"
)

// withUser injects an authenticated identity the way AuthMiddleware would.
func withUser(id utils.SixID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, id.String())
		c.Next()
	}
}

// withAdmin marks the request as carrying an admin token.
func withAdmin(id utils.SixID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, id.String())
		c.Set(middleware.ContextKeyIsAdmin, true)
		c.Next()
	}
}

// --- Mocks ---

// MockListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateListing(ctx context.Context, sellerID utils.SixID, input services.NewListingInput) (*models.Listing, error) {
	args := m.Called(ctx, sellerID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) FindListingsBySeller(ctx context.Context, sellerID utils.SixID) ([]models.Listing, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) PublishListing(ctx context.Context, listingID, sellerID utils.SixID, now time.Time) error {
	args := m.Called(ctx, listingID, sellerID, now)
	return args.Error(0)
}

func (m *MockListingService) CancelListing(ctx context.Context, listingID, sellerID utils.SixID, now time.Time) error {
	args := m.Called(ctx, listingID, sellerID, now)
	return args.Error(0)
}

func (m *MockListingService) RelistListing(ctx context.Context, listingID, sellerID utils.SixID, additionalQuantity int64, now time.Time) (*models.Listing, error) {
	args := m.Called(ctx, listingID, sellerID, additionalQuantity, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

// MockBidService
type MockBidService struct {
	mock.Mock
}

func (m *MockBidService) PlaceBid(ctx context.Context, listingID, bidderID utils.SixID, amount int64, maxAmount *int64, now time.Time) (*services.BidResult, error) {
	args := m.Called(ctx, listingID, bidderID, amount, maxAmount, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.BidResult), args.Error(1)
}

func (m *MockBidService) ListBids(ctx context.Context, listingID utils.SixID) ([]models.Bid, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Bid), args.Error(1)
}

// MockOfferService
type MockOfferService struct {
	mock.Mock
}

func (m *MockOfferService) MakeOffer(ctx context.Context, listingID, buyerID utils.SixID, amount int64, message string, now time.Time) (*models.Offer, error) {
	args := m.Called(ctx, listingID, buyerID, amount, message, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *MockOfferService) AcceptOffer(ctx context.Context, offerID, callerID utils.SixID, now time.Time) (*models.Order, error) {
	args := m.Called(ctx, offerID, callerID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOfferService) DeclineOffer(ctx context.Context, offerID, sellerID utils.SixID, now time.Time) error {
	args := m.Called(ctx, offerID, sellerID, now)
	return args.Error(0)
}

func (m *MockOfferService) CounterOffer(ctx context.Context, offerID, sellerID utils.SixID, counterAmount int64, now time.Time) (*models.Offer, error) {
	args := m.Called(ctx, offerID, sellerID, counterAmount, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *MockOfferService) WithdrawOffer(ctx context.Context, offerID, buyerID utils.SixID, now time.Time) error {
	args := m.Called(ctx, offerID, buyerID, now)
	return args.Error(0)
}

func (m *MockOfferService) FindOfferByID(ctx context.Context, offerID utils.SixID) (*models.Offer, error) {
	args := m.Called(ctx, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

// MockOrderService
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Purchase(ctx context.Context, listingID utils.SixID, buyer services.BuyerRef, qty int64, now time.Time) (*models.Order, error) {
	args := m.Called(ctx, listingID, buyer, qty, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderService) CreateOrderForSale(ctx context.Context, listing *models.Listing, buyer services.BuyerRef, qty, itemPrice int64, now time.Time) (*models.Order, error) {
	args := m.Called(ctx, listing, buyer, qty, itemPrice, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderService) MarkPaid(ctx context.Context, orderID, callerID utils.SixID, now time.Time) error {
	args := m.Called(ctx, orderID, callerID, now)
	return args.Error(0)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, orderID, callerID utils.SixID, now time.Time) error {
	args := m.Called(ctx, orderID, callerID, now)
	return args.Error(0)
}

func (m *MockOrderService) FindOrderByID(ctx context.Context, orderID utils.SixID) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

// MockLifecycleService
type MockLifecycleService struct {
	mock.Mock
}

func (m *MockLifecycleService) RunAuctionSweep(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockLifecycleService) RunUnpaidOrderSweep(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	args := m.Called(ctx, now, timeout)
	return args.Int(0), args.Error(1)
}

func (m *MockLifecycleService) RunOfferExpirySweep(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}
