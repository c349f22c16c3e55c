package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadermx/heroesandmore/internal/events"
	"github.com/nadermx/heroesandmore/internal/locks"
	"github.com/nadermx/heroesandmore/internal/models"
	"github.com/nadermx/heroesandmore/internal/utils"
)

func TestBidService_PlaceBid_FirstBidMustMeetStartingBid(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_starting", "listings", "bids")
	pub := &capturePublisher{}
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), pub)
	ctx := context.Background()
	now := time.Now().UTC()

	seller, bidder := utils.NewSixID(), utils.NewSixID()
	listing := auctionListing(seller, 1000, now.Add(time.Hour))
	insertListing(t, db, listing)

	_, err := svc.PlaceBid(ctx, listing.ID, bidder, 999, nil, now)
	assert.ErrorIs(t, err, ErrBidTooLow)

	result, err := svc.PlaceBid(ctx, listing.ID, bidder, 1000, nil, now)
	require.NoError(t, err)
	assert.Equal(t, bidder, result.WinnerID)
	assert.Equal(t, int64(1000), result.CurrentPrice)
	assert.Empty(t, result.AutoBids)
	assert.Len(t, pub.byType(events.EventBidAccepted), 1)
}

func TestBidService_PlaceBid_RequiresIncrementOverStanding(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_increment", "listings", "bids")
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), &capturePublisher{})
	ctx := context.Background()
	now := time.Now().UTC()

	seller, a, b := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
	listing := auctionListing(seller, 1000, now.Add(time.Hour))
	insertListing(t, db, listing)

	_, err := svc.PlaceBid(ctx, listing.ID, a, 1000, nil, now)
	require.NoError(t, err)

	// Standing price is 1000, increment is 100: 1099 is short.
	_, err = svc.PlaceBid(ctx, listing.ID, b, 1099, nil, now.Add(time.Second))
	assert.ErrorIs(t, err, ErrBidTooLow)

	result, err := svc.PlaceBid(ctx, listing.ID, b, 1100, nil, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, b, result.WinnerID)
	assert.Equal(t, int64(1100), result.CurrentPrice)
}

func TestBidService_PlaceBid_PreconditionOrder(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_preconditions", "listings", "bids")
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), &capturePublisher{})
	ctx := context.Background()
	now := time.Now().UTC()

	seller := utils.NewSixID()
	ended := auctionListing(seller, 1000, now.Add(-time.Minute))
	insertListing(t, db, ended)

	// An ended auction reports the state failure even for the seller's own
	// too-low bid; state is checked before identity and amount.
	_, err := svc.PlaceBid(ctx, ended.ID, seller, 1, nil, now)
	assert.ErrorIs(t, err, ErrAuctionNotActive)

	active := auctionListing(seller, 1000, now.Add(time.Hour))
	insertListing(t, db, active)

	_, err = svc.PlaceBid(ctx, active.ID, seller, 1, nil, now)
	assert.ErrorIs(t, err, ErrSelfBidding)
}

func TestBidService_PlaceBid_CeilingBelowAmountRejected(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_bad_ceiling", "listings", "bids")
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), &capturePublisher{})
	ctx := context.Background()
	now := time.Now().UTC()

	listing := auctionListing(utils.NewSixID(), 1000, now.Add(time.Hour))
	insertListing(t, db, listing)

	_, err := svc.PlaceBid(ctx, listing.ID, utils.NewSixID(), 2000, maxPtr(1500), now)
	assert.ErrorIs(t, err, ErrBidTooLow)
}

func TestBidService_PlaceBid_ProxyAnswersChallenger(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_proxy_basic", "listings", "bids")
	pub := &capturePublisher{}
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), pub)
	ctx := context.Background()
	now := time.Now().UTC()

	seller, a, b := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
	listing := auctionListing(seller, 1000, now.Add(time.Hour))
	insertListing(t, db, listing)

	// A holds a dormant ceiling of 5000; the visible price stays at 1000.
	result, err := svc.PlaceBid(ctx, listing.ID, a, 1000, maxPtr(5000), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), result.CurrentPrice)

	// B challenges at 1200. A's proxy answers one increment above.
	result, err = svc.PlaceBid(ctx, listing.ID, b, 1200, nil, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, a, result.WinnerID)
	assert.Equal(t, int64(1300), result.CurrentPrice)
	require.Len(t, result.AutoBids, 1)
	assert.Equal(t, a, result.AutoBids[0].BidderID)
	assert.Equal(t, int64(1300), result.AutoBids[0].Amount)
	assert.True(t, result.AutoBids[0].IsAutoBid)

	// B learns they were outbid.
	outbid := pub.byType(events.EventOutbid)
	require.Len(t, outbid, 1)
	require.NotNil(t, outbid[0].UserID)
	assert.Equal(t, b, *outbid[0].UserID)
}

func TestBidService_PlaceBid_TwoCeilingsSecondPrice(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_proxy_two", "listings", "bids")
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), &capturePublisher{})
	ctx := context.Background()
	now := time.Now().UTC()

	seller, a, b := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
	listing := auctionListing(seller, 1000, now.Add(time.Hour))
	insertListing(t, db, listing)

	_, err := svc.PlaceBid(ctx, listing.ID, a, 1000, maxPtr(5000), now)
	require.NoError(t, err)

	// B arrives with a 3000 ceiling. B is pushed to their ceiling, A
	// counters one increment above it.
	result, err := svc.PlaceBid(ctx, listing.ID, b, 1200, maxPtr(3000), now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, a, result.WinnerID)
	assert.Equal(t, int64(3100), result.CurrentPrice)
	require.Len(t, result.AutoBids, 2)
	assert.Equal(t, b, result.AutoBids[0].BidderID)
	assert.Equal(t, int64(3000), result.AutoBids[0].Amount)
	assert.Equal(t, a, result.AutoBids[1].BidderID)
	assert.Equal(t, int64(3100), result.AutoBids[1].Amount)
}

func TestBidService_PlaceBid_ManualBidPaysSecondPrice(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_manual_second_price", "listings", "bids")
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), &capturePublisher{})
	ctx := context.Background()
	now := time.Now().UTC()

	seller, a, b := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
	listing := auctionListing(seller, 1000, now.Add(time.Hour))
	insertListing(t, db, listing)

	_, err := svc.PlaceBid(ctx, listing.ID, a, 1000, maxPtr(5000), now)
	require.NoError(t, err)

	// B jumps far above A's ceiling with a plain bid. The manual amount acts
	// as a ceiling: B wins but pays one increment over A's 5000, not 6000.
	result, err := svc.PlaceBid(ctx, listing.ID, b, 6000, nil, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, b, result.WinnerID)
	assert.Equal(t, int64(5100), result.CurrentPrice)
	assert.Equal(t, int64(5100), result.Bid.Amount)
	assert.Equal(t, int64(6000), result.Bid.MaxBidAmount)

	// A is pushed to their ceiling on the way out.
	require.Len(t, result.AutoBids, 1)
	assert.Equal(t, a, result.AutoBids[0].BidderID)
	assert.Equal(t, int64(5000), result.AutoBids[0].Amount)

	// The recorded rows carry the same story: 5100 leads, no 6000 anywhere.
	rows, err := svc.ListBids(ctx, listing.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(5100), rows[0].Amount)
	assert.Equal(t, int64(5000), rows[1].Amount)
	assert.Equal(t, int64(1000), rows[2].Amount)
}

func TestBidService_PlaceBid_EqualCeilingsEarliestWins(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_proxy_tie", "listings", "bids")
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), &capturePublisher{})
	ctx := context.Background()
	now := time.Now().UTC()

	seller, a, b := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
	listing := auctionListing(seller, 1000, now.Add(time.Hour))
	insertListing(t, db, listing)

	_, err := svc.PlaceBid(ctx, listing.ID, a, 1000, maxPtr(2000), now)
	require.NoError(t, err)

	// B matches A's ceiling exactly. The earlier ceiling holds the lead at
	// the full ceiling amount; B cannot displace it.
	result, err := svc.PlaceBid(ctx, listing.ID, b, 1100, maxPtr(2000), now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, a, result.WinnerID)
	assert.Equal(t, int64(2000), result.CurrentPrice)

	// The outcome must also be derivable from the stored bid rows alone.
	bids, err := svc.ListBids(ctx, listing.ID)
	require.NoError(t, err)
	winnerID, price := standing(bids)
	require.NotNil(t, winnerID)
	assert.Equal(t, a, *winnerID)
	assert.Equal(t, int64(2000), price)
}

func TestBidService_PlaceBid_ExtendsInsideWindow(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_extension", "listings", "bids")
	pub := &capturePublisher{}
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), pub)
	ctx := context.Background()
	now := time.Now().UTC()

	seller, bidder := utils.NewSixID(), utils.NewSixID()
	listing := auctionListing(seller, 1000, now.Add(5*time.Minute))
	listing.UseExtendedBidding = true
	insertListing(t, db, listing)

	result, err := svc.PlaceBid(ctx, listing.ID, bidder, 1000, nil, now)
	require.NoError(t, err)
	assert.True(t, result.Extended)
	require.NotNil(t, result.NewAuctionEnd)
	assert.Equal(t, now.Add(10*time.Minute).Unix(), result.NewAuctionEnd.Unix())
	assert.True(t, result.Bid.TriggeredExtension)

	after := loadListing(t, db, listing.ID)
	assert.Equal(t, 1, after.TimesExtended)
	assert.Len(t, pub.byType(events.EventAuctionExtended), 1)
}

func TestBidService_PlaceBid_NoExtensionOutsideWindow(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_no_extension", "listings", "bids")
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), &capturePublisher{})
	ctx := context.Background()
	now := time.Now().UTC()

	listing := auctionListing(utils.NewSixID(), 1000, now.Add(time.Hour))
	listing.UseExtendedBidding = true
	insertListing(t, db, listing)

	result, err := svc.PlaceBid(ctx, listing.ID, utils.NewSixID(), 1000, nil, now)
	require.NoError(t, err)
	assert.False(t, result.Extended)
	assert.Equal(t, 0, loadListing(t, db, listing.ID).TimesExtended)
}

func TestBidService_PlaceBid_ReserveMetReported(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_reserve", "listings", "bids")
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), &capturePublisher{})
	ctx := context.Background()
	now := time.Now().UTC()

	listing := auctionListing(utils.NewSixID(), 1000, now.Add(time.Hour))
	listing.NoReserve = false
	listing.ReservePrice = maxPtr(3000)
	insertListing(t, db, listing)

	bidder := utils.NewSixID()
	result, err := svc.PlaceBid(ctx, listing.ID, bidder, 1000, nil, now)
	require.NoError(t, err)
	assert.False(t, result.ReserveMet)

	result, err = svc.PlaceBid(ctx, listing.ID, utils.NewSixID(), 3000, nil, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, result.ReserveMet)
}

func TestBidService_ListBids_HighestFirst(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_bid_list", "listings", "bids")
	svc := NewBidService(db, testConfig(), locks.NewKeyedMutex(), &capturePublisher{})
	ctx := context.Background()
	now := time.Now().UTC()

	listing := auctionListing(utils.NewSixID(), 1000, now.Add(time.Hour))
	insertListing(t, db, listing)

	_, err := svc.PlaceBid(ctx, listing.ID, utils.NewSixID(), 1000, nil, now)
	require.NoError(t, err)
	_, err = svc.PlaceBid(ctx, listing.ID, utils.NewSixID(), 1500, nil, now.Add(time.Second))
	require.NoError(t, err)

	bids, err := svc.ListBids(ctx, listing.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, int64(1500), bids[0].Amount)
	assert.Equal(t, int64(1000), bids[1].Amount)
}

func TestStanding_EarliestWinsAtEqualAmounts(t *testing.T) {
	now := time.Now().UTC()
	a, b := utils.NewSixID(), utils.NewSixID()
	bids := []models.Bid{
		{BidderID: b, Amount: 2000, CreatedAt: now.Add(time.Second)},
		{BidderID: a, Amount: 2000, CreatedAt: now},
		{BidderID: b, Amount: 1100, CreatedAt: now.Add(2 * time.Second)},
	}
	winnerID, price := standing(bids)
	require.NotNil(t, winnerID)
	assert.Equal(t, a, *winnerID)
	assert.Equal(t, int64(2000), price)
}

func TestStanding_Empty(t *testing.T) {
	winnerID, price := standing(nil)
	assert.Nil(t, winnerID)
	assert.Equal(t, int64(0), price)
}
