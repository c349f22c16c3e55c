package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadermx/heroesandmore/internal/models"
	"github.com/nadermx/heroesandmore/internal/utils"
)

func TestInventoryService_RecordSale_DecrementsAndFlipsSold(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_inventory_record_sale", "listings")
	svc := NewInventoryService(db)
	ctx := context.Background()

	listing := fixedListing(utils.NewSixID(), 2500, 5)
	insertListing(t, db, listing)

	soldOut, err := svc.RecordSale(ctx, listing.ID, 3)
	require.NoError(t, err)
	assert.False(t, soldOut)

	soldOut, err = svc.RecordSale(ctx, listing.ID, 2)
	require.NoError(t, err)
	assert.True(t, soldOut)

	after := loadListing(t, db, listing.ID)
	assert.Equal(t, int64(5), after.QuantitySold)
	assert.Equal(t, models.ListingStatusSold, after.Status)
}

func TestInventoryService_RecordSale_InsufficientStock(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_inventory_insufficient", "listings")
	svc := NewInventoryService(db)
	ctx := context.Background()

	listing := fixedListing(utils.NewSixID(), 2500, 1)
	insertListing(t, db, listing)

	_, err := svc.RecordSale(ctx, listing.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// The failed sale must not have touched the counters.
	after := loadListing(t, db, listing.ID)
	assert.Equal(t, int64(0), after.QuantitySold)
	assert.Equal(t, models.ListingStatusActive, after.Status)
}

func TestInventoryService_RecordSale_ConcurrentNoOversell(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_inventory_concurrent", "listings")
	svc := NewInventoryService(db)
	ctx := context.Background()

	listing := fixedListing(utils.NewSixID(), 2500, 5)
	insertListing(t, db, listing)

	const attempts = 10
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.RecordSale(ctx, listing.ID, 1)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}
	}
	assert.Equal(t, 5, succeeded)

	after := loadListing(t, db, listing.ID)
	assert.Equal(t, int64(5), after.QuantitySold)
	assert.Equal(t, models.ListingStatusSold, after.Status)
}

func TestInventoryService_ReverseSale_RestocksAndReactivates(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_inventory_reverse", "listings")
	svc := NewInventoryService(db)
	ctx := context.Background()

	listing := fixedListing(utils.NewSixID(), 2500, 2)
	insertListing(t, db, listing)

	soldOut, err := svc.RecordSale(ctx, listing.ID, 2)
	require.NoError(t, err)
	require.True(t, soldOut)

	require.NoError(t, svc.ReverseSale(ctx, listing.ID, 1))

	after := loadListing(t, db, listing.ID)
	assert.Equal(t, int64(1), after.QuantitySold)
	assert.Equal(t, models.ListingStatusActive, after.Status)
}

func TestInventoryService_ReverseSale_ClampsAtZero(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_inventory_clamp", "listings")
	svc := NewInventoryService(db)
	ctx := context.Background()

	listing := fixedListing(utils.NewSixID(), 2500, 5)
	insertListing(t, db, listing)

	_, err := svc.RecordSale(ctx, listing.ID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.ReverseSale(ctx, listing.ID, 3))

	after := loadListing(t, db, listing.ID)
	assert.Equal(t, int64(0), after.QuantitySold)
}

func TestInventoryService_RecordSale_AuctionRejected(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_inventory_auction", "listings")
	svc := NewInventoryService(db)
	ctx := context.Background()

	end := time.Now().UTC().Add(time.Hour)
	listing := auctionListing(utils.NewSixID(), 1000, end)
	insertListing(t, db, listing)

	_, err := svc.RecordSale(ctx, listing.ID, 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientStock)
}
