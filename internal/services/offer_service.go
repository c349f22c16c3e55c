package services

import (
	"context"
	"errors"
	"fmt"
	"log"
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

// IOfferService defines the interface for offer negotiation.
type IOfferService interface {
	// MakeOffer opens a pending offer on a fixed-price listing. At most one
	// live offer may exist per (listing, buyer).
	MakeOffer(ctx context.Context, listingID, buyerID utils.SixID, amount int64, message string, now time.Time) (*models.Offer, error)
	// AcceptOffer settles a live offer: stock goes through the ledger and an
	// order is created at the settlement amount. The accepting actor depends
	// on who moved last: the seller accepts a pending offer, the buyer accepts
	// a countered one. Fails with ErrConflict when the stock race is lost.
	AcceptOffer(ctx context.Context, offerID, callerID utils.SixID, now time.Time) (*models.Order, error)
	DeclineOffer(ctx context.Context, offerID, sellerID utils.SixID, now time.Time) error
	// CounterOffer moves a pending offer to countered with the seller's
	// price and a fresh expiry window.
	CounterOffer(ctx context.Context, offerID, sellerID utils.SixID, counterAmount int64, now time.Time) (*models.Offer, error)
	WithdrawOffer(ctx context.Context, offerID, buyerID utils.SixID, now time.Time) error
	FindOfferByID(ctx context.Context, offerID utils.SixID) (*models.Offer, error)
}

// offerService implements IOfferService.
type offerService struct {
	db        *mongo.Database
	cfg       *config.Config
	locks     *locks.KeyedMutex
	inventory IInventoryService
	orders    IOrderService
	publisher events.Publisher
}

// NewOfferService creates a new OfferService.
func NewOfferService(database *mongo.Database, cfg *config.Config, lockTable *locks.KeyedMutex, inventory IInventoryService, orders IOrderService, publisher events.Publisher) IOfferService {
	return &offerService{db: database, cfg: cfg, locks: lockTable, inventory: inventory, orders: orders, publisher: publisher}
}

// MakeOffer validates the listing accepts offers, enforces the minimum-offer
// floor, and inserts the offer. The partial unique index on live offers is
// the cross-process backstop for the one-live-offer rule.
func (s *offerService) MakeOffer(ctx context.Context, listingID, buyerID utils.SixID, amount int64, message string, now time.Time) (*models.Offer, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("offer amount must be positive, got %d", amount)
	}

	var pending []events.Event

	s.locks.Lock(listingID)
	offer, err := func() (*models.Offer, error) {
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
		if !listing.AllowOffers {
			return nil, fmt.Errorf("%w: listing %s", ErrOffersNotAllowed, listingID.String())
		}
		if listing.SellerID == buyerID {
			return nil, fmt.Errorf("%w: listing %s", ErrSelfBidding, listingID.String())
		}

		floor := listing.Price * int64(listing.MinimumOfferPercent) / 100
		if amount < floor {
			return nil, fmt.Errorf("%w: got %d, floor is %d (%d%% of asking)", ErrOfferTooLow, amount, floor, listing.MinimumOfferPercent)
		}

		live, err := s.db.Collection(offersCollection).CountDocuments(ctx, bson.M{
			"listing_id": listingID,
			"buyer_id":   buyerID,
			"status":     bson.M{"$in": bson.A{models.OfferStatusPending, models.OfferStatusCountered}},
		})
		if err != nil {
			return nil, fmt.Errorf("db error counting live offers on listing %s: %w", listingID.String(), err)
		}
		if live > 0 {
			return nil, fmt.Errorf("%w: listing %s, buyer %s", ErrOfferAlreadyPending, listingID.String(), buyerID.String())
		}

		var offer *models.Offer
		operation := func() error {
			offer = &models.Offer{
				ID:        utils.NewSixID(),
				ListingID: listingID,
				BuyerID:   buyerID,
				Amount:    amount,
				Message:   message,
				Status:    models.OfferStatusPending,
				ExpiresAt: now.Add(s.cfg.OfferExpiry),
				CreatedAt: now,
				UpdatedAt: now,
			}
			_, insertErr := s.db.Collection(offersCollection).InsertOne(ctx, offer)
			return insertErr
		}
		if err := db.Try(operation); err != nil {
			if db.IsMongoDuplicateKeyError(err) {
				return nil, fmt.Errorf("%w: listing %s, buyer %s", ErrOfferAlreadyPending, listingID.String(), buyerID.String())
			}
			return nil, fmt.Errorf("failed to insert offer on listing %s after multiple retries: %w", listingID.String(), err)
		}

		pending = append(pending, events.NewEvent(events.EventOfferReceived, listingID, &listing.SellerID, map[string]interface{}{
			"offer_id": offer.ID.String(),
			"amount":   amount,
		}))
		return offer, nil
	}()

	s.publishAll(ctx, pending)
	return offer, err
}

// AcceptOffer settles the offer. The stock is reserved first; the offer's
// conditional status write then decides ownership of that reservation, and a
// lost write compensates the ledger. Acceptance is the responding party's
// move: the seller accepts a pending offer, the buyer accepts a counter.
func (s *offerService) AcceptOffer(ctx context.Context, offerID, callerID utils.SixID, now time.Time) (*models.Order, error) {
	offer, err := s.FindOfferByID(ctx, offerID)
	if err != nil {
		return nil, err
	}

	var pending []events.Event

	s.locks.Lock(offer.ListingID)
	order, err := func() (*models.Order, error) {
		defer s.locks.Unlock(offer.ListingID)

		var listing models.Listing
		if err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{"_id": offer.ListingID}).Decode(&listing); err != nil {
			return nil, fmt.Errorf("db error finding listing %s: %w", offer.ListingID.String(), err)
		}
		if !offer.Status.CanTransition(models.OfferStatusAccepted) {
			return nil, fmt.Errorf("%w: offer %s is %s", ErrOfferNotInExpectedState, offerID.String(), offer.Status)
		}
		switch offer.Status {
		case models.OfferStatusPending:
			if listing.SellerID != callerID {
				return nil, fmt.Errorf("%w: only the seller may accept offer %s", ErrNotOwner, offerID.String())
			}
		case models.OfferStatusCountered:
			if offer.BuyerID != callerID {
				return nil, fmt.Errorf("%w: only the buyer may accept the counter on offer %s", ErrNotOwner, offerID.String())
			}
		}
		if !offer.ExpiresAt.After(now) {
			return nil, fmt.Errorf("%w: offer %s expired at %s", ErrOfferExpired, offerID.String(), offer.ExpiresAt.Format(time.RFC3339))
		}

		if _, err := s.inventory.RecordSale(ctx, offer.ListingID, 1); err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				return nil, fmt.Errorf("%w: stock gone before offer %s was accepted", ErrConflict, offerID.String())
			}
			return nil, err
		}

		// The filter pins the status we authorized against, so a racing
		// counter cannot turn a seller's acceptance into accepting their own
		// counter price.
		result, err := s.db.Collection(offersCollection).UpdateOne(ctx,
			bson.M{
				"_id":        offerID,
				"status":     offer.Status,
				"expires_at": bson.M{"$gt": now},
			},
			bson.M{"$set": bson.M{
				"status":       models.OfferStatusAccepted,
				"responded_at": now,
				"updated_at":   now,
			}},
		)
		if err != nil || result.MatchedCount == 0 {
			if revErr := s.inventory.ReverseSale(ctx, offer.ListingID, 1); revErr != nil {
				log.Printf("CRITICAL: stock reserved for offer %s but acceptance and reversal both failed: %v / %v",
					offerID.String(), err, revErr)
			}
			if err != nil {
				return nil, fmt.Errorf("db error accepting offer %s: %w", offerID.String(), err)
			}
			return nil, fmt.Errorf("%w: offer %s changed state during acceptance", ErrConflict, offerID.String())
		}

		order, err := s.orders.CreateOrderForSale(ctx, &listing, BuyerRef{BuyerID: &offer.BuyerID}, 1, offer.SettlementAmount(), now)
		if err != nil {
			// The acceptance stands; the order is retried out of band.
			log.Printf("CRITICAL: offer %s accepted but order creation failed: %v", offerID.String(), err)
			return nil, err
		}

		pending = append(pending,
			events.NewEvent(events.EventOfferAccepted, offer.ListingID, &offer.BuyerID, map[string]interface{}{
				"offer_id": offerID.String(),
				"amount":   offer.SettlementAmount(),
			}),
			events.NewEvent(events.EventOrderReadyForPayment, offer.ListingID, &offer.BuyerID, map[string]interface{}{
				"order_id": order.ID.String(),
				"amount":   order.Amount,
			}),
		)
		return order, nil
	}()

	s.publishAll(ctx, pending)
	return order, err
}

// DeclineOffer moves a live offer to declined.
func (s *offerService) DeclineOffer(ctx context.Context, offerID, sellerID utils.SixID, now time.Time) error {
	offer, err := s.FindOfferByID(ctx, offerID)
	if err != nil {
		return err
	}
	if err := s.checkSeller(ctx, offer.ListingID, sellerID); err != nil {
		return err
	}
	if !offer.Status.CanTransition(models.OfferStatusDeclined) {
		return fmt.Errorf("%w: offer %s is %s", ErrOfferNotInExpectedState, offerID.String(), offer.Status)
	}

	var pending []events.Event

	s.locks.Lock(offer.ListingID)
	err = func() error {
		defer s.locks.Unlock(offer.ListingID)

		result, err := s.db.Collection(offersCollection).UpdateOne(ctx,
			bson.M{
				"_id":    offerID,
				"status": bson.M{"$in": bson.A{models.OfferStatusPending, models.OfferStatusCountered}},
			},
			bson.M{"$set": bson.M{
				"status":       models.OfferStatusDeclined,
				"responded_at": now,
				"updated_at":   now,
			}},
		)
		if err != nil {
			return fmt.Errorf("db error declining offer %s: %w", offerID.String(), err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("%w: offer %s is %s", ErrOfferNotInExpectedState, offerID.String(), offer.Status)
		}
		pending = append(pending, events.NewEvent(events.EventOfferDeclined, offer.ListingID, &offer.BuyerID, map[string]interface{}{
			"offer_id": offerID.String(),
		}))
		return nil
	}()

	s.publishAll(ctx, pending)
	return err
}

// CounterOffer moves a pending offer to countered with the seller's price.
// The expiry window restarts so the buyer gets the full window to respond.
func (s *offerService) CounterOffer(ctx context.Context, offerID, sellerID utils.SixID, counterAmount int64, now time.Time) (*models.Offer, error) {
	if counterAmount <= 0 {
		return nil, fmt.Errorf("counter amount must be positive, got %d", counterAmount)
	}
	offer, err := s.FindOfferByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSeller(ctx, offer.ListingID, sellerID); err != nil {
		return nil, err
	}
	if !offer.Status.CanTransition(models.OfferStatusCountered) {
		return nil, fmt.Errorf("%w: offer %s is %s, not pending", ErrOfferNotInExpectedState, offerID.String(), offer.Status)
	}

	var pending []events.Event

	s.locks.Lock(offer.ListingID)
	countered, err := func() (*models.Offer, error) {
		defer s.locks.Unlock(offer.ListingID)

		if !offer.ExpiresAt.After(now) {
			return nil, fmt.Errorf("%w: offer %s expired at %s", ErrOfferExpired, offerID.String(), offer.ExpiresAt.Format(time.RFC3339))
		}

		result, err := s.db.Collection(offersCollection).UpdateOne(ctx,
			bson.M{"_id": offerID, "status": models.OfferStatusPending},
			bson.M{"$set": bson.M{
				"status":         models.OfferStatusCountered,
				"counter_amount": counterAmount,
				"expires_at":     now.Add(s.cfg.OfferExpiry),
				"responded_at":   now,
				"updated_at":     now,
			}},
		)
		if err != nil {
			return nil, fmt.Errorf("db error countering offer %s: %w", offerID.String(), err)
		}
		if result.MatchedCount == 0 {
			return nil, fmt.Errorf("%w: offer %s is %s, not pending", ErrOfferNotInExpectedState, offerID.String(), offer.Status)
		}

		updated, err := s.FindOfferByID(ctx, offerID)
		if err != nil {
			return nil, err
		}
		pending = append(pending, events.NewEvent(events.EventOfferCountered, offer.ListingID, &offer.BuyerID, map[string]interface{}{
			"offer_id":       offerID.String(),
			"counter_amount": counterAmount,
		}))
		return updated, nil
	}()

	s.publishAll(ctx, pending)
	return countered, err
}

// WithdrawOffer lets the buyer pull a live offer.
func (s *offerService) WithdrawOffer(ctx context.Context, offerID, buyerID utils.SixID, now time.Time) error {
	offer, err := s.FindOfferByID(ctx, offerID)
	if err != nil {
		return err
	}
	if offer.BuyerID != buyerID {
		return fmt.Errorf("%w: offer %s", ErrNotOwner, offerID.String())
	}
	if !offer.Status.CanTransition(models.OfferStatusWithdrawn) {
		return fmt.Errorf("%w: offer %s is %s", ErrOfferNotInExpectedState, offerID.String(), offer.Status)
	}

	s.locks.Lock(offer.ListingID)
	defer s.locks.Unlock(offer.ListingID)

	result, err := s.db.Collection(offersCollection).UpdateOne(ctx,
		bson.M{
			"_id":    offerID,
			"status": bson.M{"$in": bson.A{models.OfferStatusPending, models.OfferStatusCountered}},
		},
		bson.M{"$set": bson.M{
			"status":     models.OfferStatusWithdrawn,
			"updated_at": now,
		}},
	)
	if err != nil {
		return fmt.Errorf("db error withdrawing offer %s: %w", offerID.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: offer %s is %s", ErrOfferNotInExpectedState, offerID.String(), offer.Status)
	}
	return nil
}

// FindOfferByID finds an offer by its ID.
func (s *offerService) FindOfferByID(ctx context.Context, offerID utils.SixID) (*models.Offer, error) {
	var offer models.Offer
	err := s.db.Collection(offersCollection).FindOne(ctx, bson.M{"_id": offerID}).Decode(&offer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding offer by ID %s: %w", offerID.String(), err)
	}
	return &offer, nil
}

func (s *offerService) checkSeller(ctx context.Context, listingID, sellerID utils.SixID) error {
	var listing models.Listing
	if err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing); err != nil {
		return fmt.Errorf("db error finding listing %s: %w", listingID.String(), err)
	}
	if listing.SellerID != sellerID {
		return fmt.Errorf("%w: listing %s", ErrNotOwner, listingID.String())
	}
	return nil
}

func (s *offerService) publishAll(ctx context.Context, pending []events.Event) {
	for _, ev := range pending {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			log.Printf("WARN: failed to publish %s event for listing %s: %v", ev.Type, ev.ListingID.String(), err)
		}
	}
}
