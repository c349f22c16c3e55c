package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nadermx/heroesandmore/internal/config"
	"github.com/nadermx/heroesandmore/internal/events"
	"github.com/nadermx/heroesandmore/internal/locks"
	"github.com/nadermx/heroesandmore/internal/models"
	"github.com/nadermx/heroesandmore/internal/utils"
)

// ILifecycleService runs the periodic sweeps. Every sweep is idempotent:
// each item's transition is a conditional write, so overlapping or re-run
// sweeps are no-ops, and one failing item never stops the rest.
type ILifecycleService interface {
	// RunAuctionSweep closes auctions whose end time has passed and returns
	// the number of auctions closed.
	RunAuctionSweep(ctx context.Context, now time.Time) (int, error)
	// RunUnpaidOrderSweep cancels pending_payment orders older than timeout
	// and reverses their ledger entries exactly once.
	RunUnpaidOrderSweep(ctx context.Context, now time.Time, timeout time.Duration) (int, error)
	// RunOfferExpirySweep expires live offers past their expiry time.
	RunOfferExpirySweep(ctx context.Context, now time.Time) (int, error)
}

// lifecycleService implements ILifecycleService.
type lifecycleService struct {
	db        *mongo.Database
	cfg       *config.Config
	locks     *locks.KeyedMutex
	inventory IInventoryService
	orders    IOrderService
	publisher events.Publisher
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(database *mongo.Database, cfg *config.Config, lockTable *locks.KeyedMutex, inventory IInventoryService, orders IOrderService, publisher events.Publisher) ILifecycleService {
	return &lifecycleService{db: database, cfg: cfg, locks: lockTable, inventory: inventory, orders: orders, publisher: publisher}
}

// RunAuctionSweep finds ended active auctions and settles each one: no bids
// means expired, unmet reserve means reserve_not_met, otherwise the winner
// gets an order at the final price.
func (s *lifecycleService) RunAuctionSweep(ctx context.Context, now time.Time) (int, error) {
	cursor, err := s.db.Collection(listingsCollection).Find(ctx, bson.M{
		"kind":        models.ListingKindAuction,
		"status":      models.ListingStatusActive,
		"auction_end": bson.M{"$lte": now},
	})
	if err != nil {
		return 0, fmt.Errorf("db error finding ended auctions: %w", err)
	}
	var ended []models.Listing
	if err = cursor.All(ctx, &ended); err != nil {
		return 0, fmt.Errorf("db error decoding ended auctions: %w", err)
	}

	closed := 0
	for i := range ended {
		ok, err := s.closeAuction(ctx, &ended[i], now)
		if err != nil {
			log.Printf("auction sweep: failed to close listing %s: %v", ended[i].ID.String(), err)
			continue
		}
		if ok {
			closed++
		}
	}
	return closed, nil
}

// closeAuction settles one ended auction. Returns false without error when
// another sweep got there first.
func (s *lifecycleService) closeAuction(ctx context.Context, listing *models.Listing, now time.Time) (bool, error) {
	var pending []events.Event

	s.locks.Lock(listing.ID)
	ok, err := func() (bool, error) {
		defer s.locks.Unlock(listing.ID)

		bids, err := s.loadBids(ctx, listing.ID)
		if err != nil {
			return false, err
		}
		winnerID, price := standing(bids)

		target := models.ListingStatusExpired
		switch {
		case winnerID == nil:
			target = models.ListingStatusExpired
		case !listing.ReserveMet(price):
			target = models.ListingStatusReserveNotMet
		default:
			target = models.ListingStatusEndedWithWinner
		}

		// A concurrent sweep, a late extension, or a cancellation loses this
		// write for us; matched==0 just means nothing to do.
		result, err := s.db.Collection(listingsCollection).UpdateOne(ctx,
			bson.M{
				"_id":         listing.ID,
				"status":      models.ListingStatusActive,
				"auction_end": bson.M{"$lte": now},
			},
			bson.M{"$set": bson.M{"status": target, "updated_at": now}},
		)
		if err != nil {
			return false, fmt.Errorf("db error closing auction %s: %w", listing.ID.String(), err)
		}
		if result.MatchedCount == 0 {
			return false, nil
		}

		switch target {
		case models.ListingStatusExpired:
			pending = append(pending, events.NewEvent(events.EventListingExpired, listing.ID, &listing.SellerID, nil))
		case models.ListingStatusReserveNotMet:
			pending = append(pending, events.NewEvent(events.EventReserveNotMet, listing.ID, &listing.SellerID, map[string]interface{}{
				"high_bid": price,
			}))
		case models.ListingStatusEndedWithWinner:
			// The status write above is the sale record; the stock ledger
			// tracks fixed-price quantities only.
			order, err := s.orders.CreateOrderForSale(ctx, listing, BuyerRef{BuyerID: winnerID}, 1, price, now)
			if err != nil {
				// Status already moved; surface the failure so the order can
				// be created out of band rather than re-running the close.
				return true, fmt.Errorf("auction %s closed but winner order failed: %w", listing.ID.String(), err)
			}
			pending = append(pending,
				events.NewEvent(events.EventAuctionEnded, listing.ID, winnerID, map[string]interface{}{
					"final_price": price,
					"order_id":    order.ID.String(),
				}),
				events.NewEvent(events.EventOrderReadyForPayment, listing.ID, winnerID, map[string]interface{}{
					"order_id": order.ID.String(),
					"amount":   order.Amount,
				}),
			)
		}
		return true, nil
	}()

	s.publishAll(ctx, pending)
	return ok, err
}

// RunUnpaidOrderSweep reaps stale pending_payment orders. The conditional
// status write guarantees a racing payment confirmation or manual
// cancellation wins at most once, and the stock reversal rides on winning
// that write.
func (s *lifecycleService) RunUnpaidOrderSweep(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	cutoff := now.Add(-timeout)
	cursor, err := s.db.Collection(ordersCollection).Find(ctx, bson.M{
		"status":     models.OrderStatusPendingPayment,
		"created_at": bson.M{"$lte": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("db error finding stale orders: %w", err)
	}
	var stale []models.Order
	if err = cursor.All(ctx, &stale); err != nil {
		return 0, fmt.Errorf("db error decoding stale orders: %w", err)
	}

	cancelled := 0
	for i := range stale {
		ok, err := s.reapOrder(ctx, &stale[i], now)
		if err != nil {
			log.Printf("unpaid order sweep: failed to reap order %s: %v", stale[i].ID.String(), err)
			continue
		}
		if ok {
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *lifecycleService) reapOrder(ctx context.Context, order *models.Order, now time.Time) (bool, error) {
	var pending []events.Event

	s.locks.Lock(order.ListingID)
	ok, err := func() (bool, error) {
		defer s.locks.Unlock(order.ListingID)

		result, err := s.db.Collection(ordersCollection).UpdateOne(ctx,
			bson.M{"_id": order.ID, "status": models.OrderStatusPendingPayment},
			bson.M{"$set": bson.M{
				"status":       models.OrderStatusCancelled,
				"cancelled_at": now,
				"updated_at":   now,
			}},
		)
		if err != nil {
			return false, fmt.Errorf("db error cancelling order %s: %w", order.ID.String(), err)
		}
		if result.MatchedCount == 0 {
			// Paid or already cancelled in the meantime.
			return false, nil
		}

		var listing models.Listing
		if err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{"_id": order.ListingID}).Decode(&listing); err == nil &&
			listing.Kind == models.ListingKindFixed {
			if err := s.inventory.ReverseSale(ctx, order.ListingID, order.Quantity); err != nil {
				return true, fmt.Errorf("order %s reaped but stock reversal failed: %w", order.ID.String(), err)
			}
		}

		pending = append(pending, events.NewEvent(events.EventOrderCancelled, order.ListingID, order.BuyerID, map[string]interface{}{
			"order_id": order.ID.String(),
			"reason":   "payment_timeout",
		}))
		return true, nil
	}()

	s.publishAll(ctx, pending)
	return ok, err
}

// RunOfferExpirySweep expires live offers whose window has closed.
func (s *lifecycleService) RunOfferExpirySweep(ctx context.Context, now time.Time) (int, error) {
	cursor, err := s.db.Collection(offersCollection).Find(ctx, bson.M{
		"status":     bson.M{"$in": bson.A{models.OfferStatusPending, models.OfferStatusCountered}},
		"expires_at": bson.M{"$lte": now},
	})
	if err != nil {
		return 0, fmt.Errorf("db error finding expired offers: %w", err)
	}
	var stale []models.Offer
	if err = cursor.All(ctx, &stale); err != nil {
		return 0, fmt.Errorf("db error decoding expired offers: %w", err)
	}

	expired := 0
	for i := range stale {
		offer := &stale[i]
		result, err := s.db.Collection(offersCollection).UpdateOne(ctx,
			bson.M{
				"_id":        offer.ID,
				"status":     bson.M{"$in": bson.A{models.OfferStatusPending, models.OfferStatusCountered}},
				"expires_at": bson.M{"$lte": now},
			},
			bson.M{"$set": bson.M{"status": models.OfferStatusExpired, "updated_at": now}},
		)
		if err != nil {
			log.Printf("offer expiry sweep: failed to expire offer %s: %v", offer.ID.String(), err)
			continue
		}
		if result.MatchedCount == 0 {
			continue
		}
		expired++
		s.publishAll(ctx, []events.Event{
			events.NewEvent(events.EventOfferExpired, offer.ListingID, &offer.BuyerID, map[string]interface{}{
				"offer_id": offer.ID.String(),
			}),
		})
	}
	return expired, nil
}

func (s *lifecycleService) loadBids(ctx context.Context, listingID utils.SixID) ([]models.Bid, error) {
	cursor, err := s.db.Collection(bidsCollection).Find(ctx, bson.M{"listing_id": listingID})
	if err != nil {
		return nil, fmt.Errorf("error finding bids for listing %s: %w", listingID.String(), err)
	}
	defer cursor.Close(ctx)
	var bids []models.Bid
	if err = cursor.All(ctx, &bids); err != nil {
		return nil, fmt.Errorf("error decoding bids for listing %s: %w", listingID.String(), err)
	}
	return bids, nil
}

func (s *lifecycleService) publishAll(ctx context.Context, pending []events.Event) {
	for _, ev := range pending {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			log.Printf("WARN: failed to publish %s event for listing %s: %v", ev.Type, ev.ListingID.String(), err)
		}
	}
}
