package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nadermx/heroesandmore/internal/config"
	"github.com/nadermx/heroesandmore/internal/db"
	"github.com/nadermx/heroesandmore/internal/events"
	"github.com/nadermx/heroesandmore/internal/locks"
	"github.com/nadermx/heroesandmore/internal/models"
	"github.com/nadermx/heroesandmore/internal/utils"
)

// BuyerRef identifies the purchaser: a registered user or a guest checkout
// with contact details.
type BuyerRef struct {
	BuyerID    *utils.SixID
	GuestEmail string
	GuestName  string
}

func (b BuyerRef) valid() bool {
	return b.BuyerID != nil || b.GuestEmail != ""
}

// IOrderService defines the interface for order operations.
type IOrderService interface {
	// Purchase buys qty units of a fixed-price listing: settles stock
	// through the ledger, then creates a pending_payment order.
	Purchase(ctx context.Context, listingID utils.SixID, buyer BuyerRef, qty int64, now time.Time) (*models.Order, error)
	// CreateOrderForSale writes an order for stock that is already settled
	// (accepted offers, auction wins). itemPrice is the per-unit price in
	// cents.
	CreateOrderForSale(ctx context.Context, listing *models.Listing, buyer BuyerRef, qty, itemPrice int64, now time.Time) (*models.Order, error)
	// MarkPaid confirms payment of a pending_payment order. Only the order's
	// buyer or the listing's seller may confirm. This conditional write is the
	// mutual exclusion point against the unpaid-order reaper.
	MarkPaid(ctx context.Context, orderID, callerID utils.SixID, now time.Time) error
	// CancelOrder cancels a pending_payment or paid order and reverses its
	// ledger entry exactly once. Only the order's buyer or the listing's
	// seller may cancel.
	CancelOrder(ctx context.Context, orderID, callerID utils.SixID, now time.Time) error
	FindOrderByID(ctx context.Context, orderID utils.SixID) (*models.Order, error)
}

// orderService implements IOrderService.
type orderService struct {
	db        *mongo.Database
	cfg       *config.Config
	locks     *locks.KeyedMutex
	inventory IInventoryService
	publisher events.Publisher
}

// NewOrderService creates a new OrderService.
func NewOrderService(database *mongo.Database, cfg *config.Config, lockTable *locks.KeyedMutex, inventory IInventoryService, publisher events.Publisher) IOrderService {
	return &orderService{db: database, cfg: cfg, locks: lockTable, inventory: inventory, publisher: publisher}
}

// Purchase settles stock first and only then writes the order, so an order
// row always has backing stock. If the order insert fails the ledger entry is
// compensated.
func (s *orderService) Purchase(ctx context.Context, listingID utils.SixID, buyer BuyerRef, qty int64, now time.Time) (*models.Order, error) {
	if !buyer.valid() {
		return nil, fmt.Errorf("purchase requires a buyer ID or guest contact details")
	}
	if qty <= 0 {
		return nil, fmt.Errorf("purchase quantity must be positive, got %d", qty)
	}

	var pending []events.Event

	s.locks.Lock(listingID)
	order, err := func() (*models.Order, error) {
		defer s.locks.Unlock(listingID)

		var listing models.Listing
		if err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, fmt.Errorf("listing %s not found", listingID.String())
			}
			return nil, fmt.Errorf("db error finding listing %s: %w", listingID.String(), err)
		}
		if listing.Kind != models.ListingKindFixed || listing.Status != models.ListingStatusActive {
			return nil, fmt.Errorf("%w: listing %s", ErrListingNotActive, listingID.String())
		}
		if buyer.BuyerID != nil && *buyer.BuyerID == listing.SellerID {
			return nil, fmt.Errorf("%w: listing %s", ErrSelfBidding, listingID.String())
		}

		if _, err := s.inventory.RecordSale(ctx, listingID, qty); err != nil {
			return nil, err
		}

		order, err := s.CreateOrderForSale(ctx, &listing, buyer, qty, listing.Price, now)
		if err != nil {
			// Compensate the ledger so the failed order doesn't strand stock.
			if revErr := s.inventory.ReverseSale(ctx, listingID, qty); revErr != nil {
				log.Printf("CRITICAL: sale of %d on listing %s recorded but order insert and reversal both failed: %v / %v",
					qty, listingID.String(), err, revErr)
			}
			return nil, err
		}

		pending = append(pending, events.NewEvent(events.EventOrderReadyForPayment, listingID, buyer.BuyerID, map[string]interface{}{
			"order_id": order.ID.String(),
			"amount":   order.Amount,
		}))
		return order, nil
	}()

	s.publishAll(ctx, pending)
	return order, err
}

// CreateOrderForSale computes the fee breakdown and inserts the order in
// pending_payment.
func (s *orderService) CreateOrderForSale(ctx context.Context, listing *models.Listing, buyer BuyerRef, qty, itemPrice int64, now time.Time) (*models.Order, error) {
	if !buyer.valid() {
		return nil, fmt.Errorf("order requires a buyer ID or guest contact details")
	}

	itemSubtotal := itemPrice * qty
	shipping := listing.ShippingPrice
	platformFee := int64(math.Round(float64(itemSubtotal) * s.cfg.PlatformCommissionRate))
	amount := itemSubtotal + shipping

	var order *models.Order
	operation := func() error {
		order = &models.Order{
			ID:            utils.NewSixID(),
			ListingID:     listing.ID,
			SellerID:      listing.SellerID,
			BuyerID:       buyer.BuyerID,
			GuestEmail:    buyer.GuestEmail,
			GuestName:     buyer.GuestName,
			Quantity:      qty,
			ItemPrice:     itemPrice,
			ShippingPrice: shipping,
			Amount:        amount,
			PlatformFee:   platformFee,
			SellerPayout:  amount - platformFee,
			Status:        models.OrderStatusPendingPayment,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		_, insertErr := s.db.Collection(ordersCollection).InsertOne(ctx, order)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert order for listing %s after multiple retries: %w", listing.ID.String(), err)
	}
	return order, nil
}

// MarkPaid transitions pending_payment to paid. The status precondition in
// the filter means the reaper and this call can never both win.
func (s *orderService) MarkPaid(ctx context.Context, orderID, callerID utils.SixID, now time.Time) error {
	collection := s.db.Collection(ordersCollection)

	order, err := s.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("order %s not found", orderID.String())
		}
		return err
	}
	if !orderParty(order, callerID) {
		return fmt.Errorf("%w: order %s", ErrNotOwner, orderID.String())
	}
	if !order.Status.CanTransition(models.OrderStatusPaid) {
		return fmt.Errorf("%w: order %s is %s, not pending_payment", ErrOrderNotInExpectedState, orderID.String(), order.Status)
	}

	result, err := collection.UpdateOne(ctx,
		bson.M{"_id": orderID, "status": models.OrderStatusPendingPayment},
		bson.M{"$set": bson.M{
			"status":     models.OrderStatusPaid,
			"paid_at":    now,
			"updated_at": now,
		}},
	)
	if err != nil {
		return fmt.Errorf("db error marking order %s paid: %w", orderID.String(), err)
	}
	if result.MatchedCount == 0 {
		// The reaper got there between the read and the write.
		return fmt.Errorf("%w: order %s left pending_payment during confirmation", ErrOrderNotInExpectedState, orderID.String())
	}
	return nil
}

// orderParty reports whether the caller is the order's buyer or its seller.
func orderParty(order *models.Order, callerID utils.SixID) bool {
	if order.BuyerID != nil && *order.BuyerID == callerID {
		return true
	}
	return order.SellerID == callerID
}

// CancelOrder cancels an unpaid or paid order. The conditional status write
// is what guarantees the ledger reversal runs exactly once even when a buyer
// cancellation races the reaper.
func (s *orderService) CancelOrder(ctx context.Context, orderID, callerID utils.SixID, now time.Time) error {
	collection := s.db.Collection(ordersCollection)

	var order models.Order
	if err := collection.FindOne(ctx, bson.M{"_id": orderID}).Decode(&order); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("order %s not found", orderID.String())
		}
		return fmt.Errorf("db error finding order %s: %w", orderID.String(), err)
	}
	if !orderParty(&order, callerID) {
		return fmt.Errorf("%w: order %s", ErrNotOwner, orderID.String())
	}
	if !order.Status.CanTransition(models.OrderStatusCancelled) {
		return fmt.Errorf("%w: order %s is %s", ErrOrderNotInExpectedState, orderID.String(), order.Status)
	}

	var pending []events.Event

	s.locks.Lock(order.ListingID)
	err := func() error {
		defer s.locks.Unlock(order.ListingID)

		result, err := collection.UpdateOne(ctx,
			bson.M{
				"_id":    orderID,
				"status": bson.M{"$in": bson.A{models.OrderStatusPendingPayment, models.OrderStatusPaid}},
			},
			bson.M{"$set": bson.M{
				"status":       models.OrderStatusCancelled,
				"cancelled_at": now,
				"updated_at":   now,
			}},
		)
		if err != nil {
			return fmt.Errorf("db error cancelling order %s: %w", orderID.String(), err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("%w: order %s is %s", ErrOrderNotInExpectedState, orderID.String(), order.Status)
		}

		// We won the status transition, so this reversal runs exactly once:
		// the order was open (still holding its ledger entry) and is
		// cancelled now.
		var listing models.Listing
		if err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{"_id": order.ListingID}).Decode(&listing); err == nil &&
			order.Status.Open() && listing.Kind == models.ListingKindFixed {
			if err := s.inventory.ReverseSale(ctx, order.ListingID, order.Quantity); err != nil {
				return fmt.Errorf("order %s cancelled but stock reversal failed: %w", orderID.String(), err)
			}
		}

		pending = append(pending, events.NewEvent(events.EventOrderCancelled, order.ListingID, order.BuyerID, map[string]interface{}{
			"order_id": orderID.String(),
		}))
		return nil
	}()

	s.publishAll(ctx, pending)
	return err
}

// FindOrderByID finds an order by its ID.
func (s *orderService) FindOrderByID(ctx context.Context, orderID utils.SixID) (*models.Order, error) {
	var order models.Order
	err := s.db.Collection(ordersCollection).FindOne(ctx, bson.M{"_id": orderID}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding order by ID %s: %w", orderID.String(), err)
	}
	return &order, nil
}

func (s *orderService) publishAll(ctx context.Context, pending []events.Event) {
	for _, ev := range pending {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			log.Printf("WARN: failed to publish %s event for listing %s: %v", ev.Type, ev.ListingID.String(), err)
		}
	}
}
