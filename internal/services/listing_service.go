package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nadermx/heroesandmore/internal/config"
	"github.com/nadermx/heroesandmore/internal/db"
	"github.com/nadermx/heroesandmore/internal/locks"
	"github.com/nadermx/heroesandmore/internal/models"
	"github.com/nadermx/heroesandmore/internal/utils"
)

const (
	listingsCollection = "listings"
	bidsCollection     = "bids"
	ordersCollection   = "orders"
	offersCollection   = "offers"
)

// NewListingInput carries the seller-provided fields for a new listing.
// Money fields are int64 cents.
type NewListingInput struct {
	Title string
	Body  string
	Kind  models.ListingKind

	// Fixed-price
	Price               int64
	ShippingPrice       int64
	Quantity            int64
	AllowOffers         bool
	MinimumOfferPercent int // 0 means use the configured default

	// Auction
	StartingBid            int64
	ReservePrice           *int64
	NoReserve              bool
	AuctionEnd             *time.Time
	UseExtendedBidding     bool
	ExtendedBiddingMinutes int // 0 means use the configured default
}

// IListingService defines the interface for listing lifecycle operations.
type IListingService interface {
	CreateListing(ctx context.Context, sellerID utils.SixID, input NewListingInput) (*models.Listing, error)
	FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error)
	FindListingsBySeller(ctx context.Context, sellerID utils.SixID) ([]models.Listing, error)
	PublishListing(ctx context.Context, listingID, sellerID utils.SixID, now time.Time) error
	CancelListing(ctx context.Context, listingID, sellerID utils.SixID, now time.Time) error
	RelistListing(ctx context.Context, listingID, sellerID utils.SixID, additionalQuantity int64, now time.Time) (*models.Listing, error)
}

// listingService implements IListingService.
type listingService struct {
	db    *mongo.Database
	cfg   *config.Config
	locks *locks.KeyedMutex
}

// NewListingService creates a new ListingService.
func NewListingService(database *mongo.Database, cfg *config.Config, lockTable *locks.KeyedMutex) IListingService {
	return &listingService{db: database, cfg: cfg, locks: lockTable}
}

// CreateListing creates a new listing document in draft status.
func (s *listingService) CreateListing(ctx context.Context, sellerID utils.SixID, input NewListingInput) (*models.Listing, error) {
	if input.Kind != models.ListingKindFixed && input.Kind != models.ListingKindAuction {
		return nil, fmt.Errorf("invalid listing kind %q", input.Kind)
	}
	if input.Kind == models.ListingKindFixed {
		if input.Price <= 0 {
			return nil, fmt.Errorf("fixed-price listing requires a positive price")
		}
		if input.Quantity <= 0 {
			return nil, fmt.Errorf("fixed-price listing requires a positive quantity")
		}
	} else {
		if input.StartingBid < 0 {
			return nil, fmt.Errorf("starting bid cannot be negative")
		}
		if input.ReservePrice != nil && *input.ReservePrice <= 0 {
			return nil, fmt.Errorf("reserve price must be positive when set")
		}
	}

	minOfferPercent := input.MinimumOfferPercent
	if minOfferPercent == 0 {
		minOfferPercent = s.cfg.MinimumOfferPercent
	}
	extendedMinutes := input.ExtendedBiddingMinutes
	if extendedMinutes == 0 {
		extendedMinutes = s.cfg.ExtendedBiddingMinutes
	}

	collection := s.db.Collection(listingsCollection)
	now := time.Now().UTC()

	var newListing *models.Listing

	operation := func() error {
		newListing = &models.Listing{
			ID:                     utils.NewSixID(),
			SellerID:               sellerID,
			Title:                  input.Title,
			Body:                   input.Body,
			Kind:                   input.Kind,
			Status:                 models.ListingStatusDraft,
			Price:                  input.Price,
			ShippingPrice:          input.ShippingPrice,
			Quantity:               input.Quantity,
			QuantitySold:           0,
			AllowOffers:            input.AllowOffers,
			MinimumOfferPercent:    minOfferPercent,
			StartingBid:            input.StartingBid,
			ReservePrice:           input.ReservePrice,
			NoReserve:              input.NoReserve,
			AuctionEnd:             input.AuctionEnd,
			UseExtendedBidding:     input.UseExtendedBidding,
			ExtendedBiddingMinutes: extendedMinutes,
			TimesExtended:          0,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		_, insertErr := collection.InsertOne(ctx, newListing)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		listingIDStr := "<unknown>"
		if newListing != nil {
			listingIDStr = newListing.ID.String()
		}
		return nil, fmt.Errorf("failed to insert new listing for seller %s (last attempted listing ID: %s) after multiple retries: %w",
			sellerID.String(), listingIDStr, err)
	}

	return newListing, nil
}

// FindListingByID finds a listing by its ID.
func (s *listingService) FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding listing by ID %s: %w", listingID.String(), err)
	}
	return &listing, nil
}

// FindListingsBySeller returns all listings owned by a seller.
func (s *listingService) FindListingsBySeller(ctx context.Context, sellerID utils.SixID) ([]models.Listing, error) {
	cursor, err := s.db.Collection(listingsCollection).Find(ctx, bson.M{"seller_id": sellerID})
	if err != nil {
		return nil, fmt.Errorf("error finding listings for seller %s: %w", sellerID.String(), err)
	}
	defer cursor.Close(ctx)
	var listings []models.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("error decoding listings for seller %s: %w", sellerID.String(), err)
	}
	return listings, nil
}

// PublishListing moves a draft listing to active. Auctions must carry a
// future end time at publish.
func (s *listingService) PublishListing(ctx context.Context, listingID, sellerID utils.SixID, now time.Time) error {
	filter := bson.M{
		"_id":       listingID,
		"seller_id": sellerID,
		"status":    models.ListingStatusDraft,
	}
	// Auctions need an end time in the future; fixed listings pass trivially.
	filter["$or"] = bson.A{
		bson.M{"kind": models.ListingKindFixed},
		bson.M{"kind": models.ListingKindAuction, "auction_end": bson.M{"$gt": now}},
	}
	update := bson.M{"$set": bson.M{
		"status":     models.ListingStatusActive,
		"updated_at": now,
	}}

	collection := s.db.Collection(listingsCollection)
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error publishing listing %s: %w", listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		var listing models.Listing
		checkErr := collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return fmt.Errorf("listing %s not found", listingID.String())
		}
		if checkErr != nil {
			return fmt.Errorf("db error checking listing %s: %w", listingID.String(), checkErr)
		}
		if listing.SellerID != sellerID {
			return fmt.Errorf("%w: listing %s", ErrNotOwner, listingID.String())
		}
		if listing.Status != models.ListingStatusDraft {
			return fmt.Errorf("%w: listing %s is %s, not draft", ErrInvalidTransition, listingID.String(), listing.Status)
		}
		return fmt.Errorf("%w: auction listing %s needs a future end time", ErrInvalidTransition, listingID.String())
	}
	return nil
}

// CancelListing cancels a draft or active listing. Refused while the listing
// has open (pending or paid) orders, so buyers mid-checkout are never
// stranded.
func (s *listingService) CancelListing(ctx context.Context, listingID, sellerID utils.SixID, now time.Time) error {
	s.locks.Lock(listingID)
	defer s.locks.Unlock(listingID)

	openOrders, err := s.db.Collection(ordersCollection).CountDocuments(ctx, bson.M{
		"listing_id": listingID,
		"status":     bson.M{"$in": bson.A{models.OrderStatusPendingPayment, models.OrderStatusPaid, models.OrderStatusShipped}},
	})
	if err != nil {
		return fmt.Errorf("db error counting open orders for listing %s: %w", listingID.String(), err)
	}
	if openOrders > 0 {
		return fmt.Errorf("%w: listing %s has %d open orders", ErrHasOpenOrders, listingID.String(), openOrders)
	}

	filter := bson.M{
		"_id":       listingID,
		"seller_id": sellerID,
		"status":    bson.M{"$in": bson.A{models.ListingStatusDraft, models.ListingStatusActive}},
	}
	update := bson.M{"$set": bson.M{
		"status":     models.ListingStatusCancelled,
		"updated_at": now,
	}}

	collection := s.db.Collection(listingsCollection)
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error cancelling listing %s: %w", listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		var listing models.Listing
		checkErr := collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return fmt.Errorf("listing %s not found", listingID.String())
		}
		if checkErr != nil {
			return fmt.Errorf("db error checking listing %s: %w", listingID.String(), checkErr)
		}
		if listing.SellerID != sellerID {
			return fmt.Errorf("%w: listing %s", ErrNotOwner, listingID.String())
		}
		return fmt.Errorf("%w: listing %s is %s", ErrInvalidTransition, listingID.String(), listing.Status)
	}
	return nil
}

// RelistListing brings a finished listing back to market. A terminal auction
// goes back to draft with its bids discarded and extension counters reset;
// the seller sets a fresh end time before publishing again. A sold-out
// fixed-price listing goes straight back to active with additional stock,
// keeping its sales history intact.
func (s *listingService) RelistListing(ctx context.Context, listingID, sellerID utils.SixID, additionalQuantity int64, now time.Time) (*models.Listing, error) {
	s.locks.Lock(listingID)
	defer s.locks.Unlock(listingID)

	collection := s.db.Collection(listingsCollection)
	var listing models.Listing
	if err := collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("listing %s not found", listingID.String())
		}
		return nil, fmt.Errorf("db error finding listing %s: %w", listingID.String(), err)
	}
	if listing.SellerID != sellerID {
		return nil, fmt.Errorf("%w: listing %s", ErrNotOwner, listingID.String())
	}

	switch listing.Kind {
	case models.ListingKindAuction:
		// The transition table allows draft only from the auction end states;
		// cancelled is a dead end.
		if !listing.Status.CanTransition(models.ListingStatusDraft) {
			return nil, fmt.Errorf("%w: auction %s is %s", ErrInvalidTransition, listingID.String(), listing.Status)
		}
		update := bson.M{
			"$set": bson.M{
				"status":         models.ListingStatusDraft,
				"times_extended": 0,
				"updated_at":     now,
			},
			"$unset": bson.M{"auction_end": ""},
		}
		result, err := collection.UpdateOne(ctx, bson.M{"_id": listingID, "status": listing.Status}, update)
		if err != nil {
			return nil, fmt.Errorf("db error relisting auction %s: %w", listingID.String(), err)
		}
		if result.MatchedCount == 0 {
			return nil, fmt.Errorf("%w: auction %s changed state during relist", ErrConflict, listingID.String())
		}
		// Stale bids would poison the next run's proxy resolution.
		if _, err := s.db.Collection(bidsCollection).DeleteMany(ctx, bson.M{"listing_id": listingID}); err != nil {
			return nil, fmt.Errorf("db error discarding bids for relisted auction %s: %w", listingID.String(), err)
		}

	case models.ListingKindFixed:
		if listing.Status != models.ListingStatusSold {
			return nil, fmt.Errorf("%w: fixed-price listing %s is %s, not sold", ErrInvalidTransition, listingID.String(), listing.Status)
		}
		if additionalQuantity <= 0 {
			return nil, fmt.Errorf("relisting a sold-out listing requires additional quantity")
		}
		update := bson.M{
			"$set": bson.M{
				"status":     models.ListingStatusActive,
				"updated_at": now,
			},
			"$inc": bson.M{"quantity": additionalQuantity},
		}
		result, err := collection.UpdateOne(ctx, bson.M{"_id": listingID, "status": models.ListingStatusSold}, update)
		if err != nil {
			return nil, fmt.Errorf("db error relisting fixed-price listing %s: %w", listingID.String(), err)
		}
		if result.MatchedCount == 0 {
			return nil, fmt.Errorf("%w: listing %s changed state during relist", ErrConflict, listingID.String())
		}

	default:
		return nil, fmt.Errorf("invalid listing kind %q", listing.Kind)
	}

	var relisted models.Listing
	if err := collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&relisted); err != nil {
		return nil, fmt.Errorf("db error reading relisted listing %s: %w", listingID.String(), err)
	}
	return &relisted, nil
}
