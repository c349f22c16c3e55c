package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the engine's queries and uniqueness
// guarantees rely on. Safe to call on every startup.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		"listings": {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "kind", Value: 1}, {Key: "auction_end", Value: 1}}},
			{Keys: bson.D{{Key: "seller_id", Value: 1}}},
		},
		"bids": {
			// Proxy resolution scans a listing's bids by ceiling then age.
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "max_bid_amount", Value: -1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "bidder_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		"orders": {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		"offers": {
			// At most one live offer per (listing, buyer). The partial filter
			// keeps resolved offers out of the unique constraint.
			{
				Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "buyer_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": bson.A{"pending", "countered"}},
				}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		},
	}

	for collection, models := range indexes {
		if _, err := database.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}
