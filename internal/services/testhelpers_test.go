package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nadermx/heroesandmore/internal/config"
	"github.com/nadermx/heroesandmore/internal/events"
	"github.com/nadermx/heroesandmore/internal/models"
	"github.com/nadermx/heroesandmore/internal/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		BidIncrement:           100,
		ExtendedBiddingMinutes: 10,
		OfferExpiry:            48 * time.Hour,
		MinimumOfferPercent:    50,
		OrderPaymentTimeout:    15 * time.Minute,
		PlatformCommissionRate: 0.05,
	}
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) byType(t events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func insertListing(t *testing.T, db *mongo.Database, listing *models.Listing) {
	t.Helper()
	_, err := db.Collection(listingsCollection).InsertOne(context.Background(), listing)
	require.NoError(t, err)
}

func loadListing(t *testing.T, db *mongo.Database, id utils.SixID) *models.Listing {
	t.Helper()
	var listing models.Listing
	require.NoError(t, db.Collection(listingsCollection).FindOne(context.Background(), bson.M{"_id": id}).Decode(&listing))
	return &listing
}

func fixedListing(sellerID utils.SixID, price, quantity int64) *models.Listing {
	now := time.Now().UTC()
	return &models.Listing{
		ID:                  utils.NewSixID(),
		SellerID:            sellerID,
		Title:               "Amazing Spider-Man #300",
		Kind:                models.ListingKindFixed,
		Status:              models.ListingStatusActive,
		Price:               price,
		ShippingPrice:       0,
		Quantity:            quantity,
		AllowOffers:         true,
		MinimumOfferPercent: 50,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func auctionListing(sellerID utils.SixID, startingBid int64, end time.Time) *models.Listing {
	now := time.Now().UTC()
	return &models.Listing{
		ID:                     utils.NewSixID(),
		SellerID:               sellerID,
		Title:                  "X-Men #1 CGC 9.8",
		Kind:                   models.ListingKindAuction,
		Status:                 models.ListingStatusActive,
		StartingBid:            startingBid,
		NoReserve:              true,
		AuctionEnd:             &end,
		ExtendedBiddingMinutes: 10,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

func maxPtr(v int64) *int64 { return &v }
