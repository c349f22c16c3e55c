package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nadermx/heroesandmore/internal/models"
	"github.com/nadermx/heroesandmore/internal/utils"
)

// IInventoryService is the atomic stock ledger for fixed-price listings.
// Auctions never touch it: an auction is single-unit and its terminal status
// (ended_with_winner) already records the sale, so settling a won auction
// needs no quantity decrement and cancelling the winner's order needs no
// reversal.
type IInventoryService interface {
	// RecordSale reserves qty units of stock. It returns soldOut=true when
	// this sale consumed the last unit. Fails with ErrInsufficientStock when
	// fewer than qty units remain; the listing is never modified in that case.
	RecordSale(ctx context.Context, listingID utils.SixID, qty int64) (soldOut bool, err error)
	// ReverseSale returns qty units of stock, clamped so quantity_sold never
	// goes below zero. A sold-out listing that regains stock goes back to
	// active.
	ReverseSale(ctx context.Context, listingID utils.SixID, qty int64) error
}

// inventoryService implements IInventoryService.
type inventoryService struct {
	db *mongo.Database
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(db *mongo.Database) IInventoryService {
	return &inventoryService{db: db}
}

// RecordSale increments quantity_sold by qty, guarded by a filter that checks
// the stock precondition inside the same write. Concurrent sales for the last
// unit race on the filter; exactly one matches.
func (s *inventoryService) RecordSale(ctx context.Context, listingID utils.SixID, qty int64) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("sale quantity must be positive, got %d", qty)
	}
	collection := s.db.Collection(listingsCollection)
	now := time.Now().UTC()

	filter := bson.M{
		"_id":  listingID,
		"kind": models.ListingKindFixed,
		// quantity_sold + qty <= quantity
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$quantity_sold", qty}},
			"$quantity",
		}},
	}
	update := bson.M{
		"$inc": bson.M{"quantity_sold": qty},
		"$set": bson.M{"updated_at": now},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("db error recording sale of %d on listing %s: %w", qty, listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		// Diagnose: missing listing vs. stock shortfall.
		var listing models.Listing
		checkErr := collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return false, fmt.Errorf("listing %s not found", listingID.String())
		}
		if checkErr != nil {
			return false, fmt.Errorf("db error checking listing %s after failed sale: %w", listingID.String(), checkErr)
		}
		if listing.Kind != models.ListingKindFixed {
			return false, fmt.Errorf("listing %s is not a fixed-price listing", listingID.String())
		}
		return false, fmt.Errorf("%w: listing %s has %d remaining, wanted %d",
			ErrInsufficientStock, listingID.String(), listing.QuantityRemaining(), qty)
	}

	// Re-read to project sold-out. The counters only move through this
	// service, so quantity_sold can only have grown since our write.
	var listing models.Listing
	if err := collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing); err != nil {
		return false, fmt.Errorf("db error reading listing %s after sale: %w", listingID.String(), err)
	}
	if listing.SoldOut() && listing.Status == models.ListingStatusActive {
		// Flip to sold; concurrent flips are harmless since the write is
		// conditional on the current status.
		_, err := collection.UpdateOne(ctx,
			bson.M{"_id": listingID, "status": models.ListingStatusActive},
			bson.M{"$set": bson.M{"status": models.ListingStatusSold, "updated_at": now}},
		)
		if err != nil {
			return true, fmt.Errorf("db error marking listing %s sold: %w", listingID.String(), err)
		}
	}
	return listing.SoldOut(), nil
}

// ReverseSale decrements quantity_sold by qty using a pipeline update so the
// clamp at zero happens inside the same write.
func (s *inventoryService) ReverseSale(ctx context.Context, listingID utils.SixID, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("reversal quantity must be positive, got %d", qty)
	}
	collection := s.db.Collection(listingsCollection)
	now := time.Now().UTC()

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"quantity_sold": bson.M{"$max": bson.A{
				int64(0),
				bson.M{"$subtract": bson.A{"$quantity_sold", qty}},
			}},
			"updated_at": now,
		}}},
	}

	result, err := collection.UpdateOne(ctx, bson.M{"_id": listingID, "kind": models.ListingKindFixed}, update)
	if err != nil {
		return fmt.Errorf("db error reversing sale of %d on listing %s: %w", qty, listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("listing %s not found or not fixed-price", listingID.String())
	}

	// A listing marked sold that regained stock becomes purchasable again.
	_, err = collection.UpdateOne(ctx,
		bson.M{
			"_id":    listingID,
			"status": models.ListingStatusSold,
			"$expr":  bson.M{"$lt": bson.A{"$quantity_sold", "$quantity"}},
		},
		bson.M{"$set": bson.M{"status": models.ListingStatusActive, "updated_at": now}},
	)
	if err != nil {
		return fmt.Errorf("db error reactivating listing %s after reversal: %w", listingID.String(), err)
	}
	return nil
}
