package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nadermx/heroesandmore/internal/config"
	"github.com/nadermx/heroesandmore/internal/db"
	"github.com/nadermx/heroesandmore/internal/events"
	"github.com/nadermx/heroesandmore/internal/locks"
	"github.com/nadermx/heroesandmore/internal/models"
	"github.com/nadermx/heroesandmore/internal/utils"
)

// BidResult reports the outcome of a bid placement after proxy resolution.
type BidResult struct {
	// Bid is the manual bid as recorded. Its amount may be lower than the
	// amount submitted: a bid far above the field is clamped to one increment
	// over the best competing ceiling.
	Bid *models.Bid `json:"bid"`
	// AutoBids are the synthetic counter-bids proxy resolution appended, in
	// the order they were placed. Empty when no resolution was needed.
	AutoBids []*models.Bid `json:"auto_bids,omitempty"`
	// WinnerID and CurrentPrice describe the leading bid after resolution.
	WinnerID     utils.SixID `json:"winner_id"`
	CurrentPrice int64       `json:"current_price"`
	// Extended is set when this placement pushed the auction end out, with
	// NewAuctionEnd holding the new deadline.
	Extended      bool       `json:"extended"`
	NewAuctionEnd *time.Time `json:"new_auction_end,omitempty"`
	// ReserveMet reports whether the current price satisfies the reserve.
	ReserveMet bool `json:"reserve_met"`
}

// IBidService defines the interface for bid placement and inspection.
type IBidService interface {
	// PlaceBid records a bid of amount cents on an auction listing, with an
	// optional proxy ceiling maxAmount, and runs proxy resolution. now is
	// injected so sweeps and tests share one clock.
	PlaceBid(ctx context.Context, listingID, bidderID utils.SixID, amount int64, maxAmount *int64, now time.Time) (*BidResult, error)
	ListBids(ctx context.Context, listingID utils.SixID) ([]models.Bid, error)
}

// bidService implements IBidService.
type bidService struct {
	db        *mongo.Database
	cfg       *config.Config
	locks     *locks.KeyedMutex
	publisher events.Publisher
}

// NewBidService creates a new BidService.
func NewBidService(database *mongo.Database, cfg *config.Config, lockTable *locks.KeyedMutex, publisher events.Publisher) IBidService {
	return &bidService{db: database, cfg: cfg, locks: lockTable, publisher: publisher}
}

// PlaceBid validates preconditions in a fixed order (auction state, then
// self-bidding, then amount), records the bid, applies the anti-sniping
// extension, and resolves proxy ceilings. Events are published only after the
// listing lock is released.
func (s *bidService) PlaceBid(ctx context.Context, listingID, bidderID utils.SixID, amount int64, maxAmount *int64, now time.Time) (*BidResult, error) {
	var pending []events.Event

	s.locks.Lock(listingID)
	result, err := func() (*BidResult, error) {
		defer s.locks.Unlock(listingID)
		return s.placeBidLocked(ctx, listingID, bidderID, amount, maxAmount, now, &pending)
	}()

	for _, ev := range pending {
		if pubErr := s.publisher.Publish(ctx, ev); pubErr != nil {
			log.Printf("WARN: failed to publish %s event for listing %s: %v", ev.Type, listingID.String(), pubErr)
		}
	}
	return result, err
}

func (s *bidService) placeBidLocked(ctx context.Context, listingID, bidderID utils.SixID, amount int64, maxAmount *int64, now time.Time, pending *[]events.Event) (*BidResult, error) {
	collection := s.db.Collection(listingsCollection)

	var listing models.Listing
	if err := collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("listing %s not found", listingID.String())
		}
		return nil, fmt.Errorf("db error finding listing %s: %w", listingID.String(), err)
	}

	// Precondition order matters: state, then identity, then amount.
	if listing.Kind != models.ListingKindAuction || listing.Status != models.ListingStatusActive ||
		listing.AuctionEnd == nil || !listing.AuctionEnd.After(now) {
		return nil, fmt.Errorf("%w: listing %s", ErrAuctionNotActive, listingID.String())
	}
	if listing.SellerID == bidderID {
		return nil, fmt.Errorf("%w: listing %s", ErrSelfBidding, listingID.String())
	}

	bids, err := s.listBids(ctx, listingID)
	if err != nil {
		return nil, err
	}

	prevWinnerID, prevPrice := standing(bids)
	minAcceptable := listing.StartingBid
	if prevWinnerID != nil {
		minAcceptable = prevPrice + s.cfg.BidIncrement
	}
	if amount < minAcceptable {
		return nil, fmt.Errorf("%w: got %d, minimum is %d", ErrBidTooLow, amount, minAcceptable)
	}
	ceiling := amount
	if maxAmount != nil {
		if *maxAmount < amount {
			return nil, fmt.Errorf("%w: ceiling %d is below bid amount %d", ErrBidTooLow, *maxAmount, amount)
		}
		ceiling = *maxAmount
	}

	// A manual amount is itself a ceiling: the visible price never exceeds
	// one increment over the best competing ceiling, so a bidder who jumps
	// far above the field still pays the second-price outcome.
	visible := amount
	if rival, ok := highestRivalCeiling(bids, bidderID); ok {
		limit := rival + s.cfg.BidIncrement
		if limit < minAcceptable {
			limit = minAcceptable
		}
		if visible > limit {
			visible = limit
		}
	}

	res := &BidResult{}

	manual, err := s.insertBid(ctx, &listing, bidderID, visible, ceiling, false, now, now, res, pending)
	if err != nil {
		return nil, err
	}
	res.Bid = manual
	bids = append(bids, *manual)
	*pending = append(*pending, events.NewEvent(events.EventBidAccepted, listingID, &bidderID, map[string]interface{}{
		"bid_id": manual.ID.String(),
		"amount": manual.Amount,
	}))

	// Proxy resolution. Every accepted bid resolves against all standing
	// ceilings, so a dormant ceiling is answered immediately.
	autoBids, err := s.resolveProxies(ctx, &listing, bids, now, res, pending)
	if err != nil {
		return nil, err
	}
	res.AutoBids = autoBids
	bids = append(bids, derefBids(autoBids)...)

	winnerID, price := standing(bids)
	res.WinnerID = *winnerID
	res.CurrentPrice = price
	res.ReserveMet = listing.ReserveMet(price)

	if prevWinnerID != nil && *prevWinnerID != res.WinnerID && *prevWinnerID != bidderID {
		*pending = append(*pending, events.NewEvent(events.EventOutbid, listingID, prevWinnerID, map[string]interface{}{
			"current_price": price,
		}))
	}

	return res, nil
}

// resolveProxies appends the synthetic bids needed to make the visible price
// the second-price outcome of the standing ceilings: the runner-up is pushed
// to their ceiling, the winner counters one increment above it, capped at the
// winner's own ceiling. Ties go to the earliest ceiling.
func (s *bidService) resolveProxies(ctx context.Context, listing *models.Listing, bids []models.Bid, now time.Time, res *BidResult, pending *[]events.Event) ([]*models.Bid, error) {
	type ceilingEntry struct {
		bidderID utils.SixID
		ceiling  int64
		since    time.Time // earliest bid that established this ceiling
		topBid   int64     // bidder's highest visible amount
	}

	byBidder := map[utils.SixID]*ceilingEntry{}
	var order []utils.SixID
	for _, b := range bids {
		e, ok := byBidder[b.BidderID]
		if !ok {
			e = &ceilingEntry{bidderID: b.BidderID, ceiling: b.MaxBidAmount, since: b.CreatedAt, topBid: b.Amount}
			byBidder[b.BidderID] = e
			order = append(order, b.BidderID)
			continue
		}
		if b.MaxBidAmount > e.ceiling {
			e.ceiling = b.MaxBidAmount
			e.since = b.CreatedAt
		}
		if b.Amount > e.topBid {
			e.topBid = b.Amount
		}
	}
	if len(order) < 2 {
		return nil, nil
	}

	// Winner: highest ceiling, earliest on ties. Runner-up likewise among
	// the rest.
	better := func(a, b *ceilingEntry) bool {
		if a.ceiling != b.ceiling {
			return a.ceiling > b.ceiling
		}
		return a.since.Before(b.since)
	}
	var winner, runnerUp *ceilingEntry
	for _, id := range order {
		e := byBidder[id]
		if winner == nil || better(e, winner) {
			runnerUp = winner
			winner = e
		} else if runnerUp == nil || better(e, runnerUp) {
			runnerUp = e
		}
	}

	winnerTarget := runnerUp.ceiling + s.cfg.BidIncrement
	if winnerTarget > winner.ceiling {
		winnerTarget = winner.ceiling
	}

	// Synthetic bids carry the timestamp of the bid that established the
	// ceiling they act for. On equal-amount ties this makes the earlier
	// ceiling holder also the earlier bid, so the standing winner can be
	// derived from the bid rows alone.
	var autoBids []*models.Bid
	if runnerUp.topBid < runnerUp.ceiling && runnerUp.ceiling < winnerTarget {
		b, err := s.insertBid(ctx, listing, runnerUp.bidderID, runnerUp.ceiling, runnerUp.ceiling, true, runnerUp.since, now, res, pending)
		if err != nil {
			return nil, err
		}
		autoBids = append(autoBids, b)
	}
	if winner.topBid < winnerTarget {
		b, err := s.insertBid(ctx, listing, winner.bidderID, winnerTarget, winner.ceiling, true, winner.since, now, res, pending)
		if err != nil {
			return nil, err
		}
		autoBids = append(autoBids, b)
	}
	return autoBids, nil
}

// insertBid writes one bid row and applies the anti-sniping extension when
// the bid lands inside the extension window. createdAt is the bid's logical
// timestamp (backdated for synthetic bids); now drives the extension check.
func (s *bidService) insertBid(ctx context.Context, listing *models.Listing, bidderID utils.SixID, amount, ceiling int64, isAuto bool, createdAt, now time.Time, res *BidResult, pending *[]events.Event) (*models.Bid, error) {
	extends := false
	if listing.UseExtendedBidding && listing.AuctionEnd != nil {
		window := time.Duration(listing.ExtendedBiddingMinutes) * time.Minute
		if listing.AuctionEnd.Sub(now) < window {
			extends = true
		}
	}

	var bid *models.Bid
	operation := func() error {
		bid = &models.Bid{
			ID:                 utils.NewSixID(),
			ListingID:          listing.ID,
			BidderID:           bidderID,
			Amount:             amount,
			IsAutoBid:          isAuto,
			MaxBidAmount:       ceiling,
			TriggeredExtension: extends,
			CreatedAt:          createdAt,
		}
		_, insertErr := s.db.Collection(bidsCollection).InsertOne(ctx, bid)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert bid on listing %s after multiple retries: %w", listing.ID.String(), err)
	}

	if extends {
		newEnd := now.Add(time.Duration(listing.ExtendedBiddingMinutes) * time.Minute)
		result, err := s.db.Collection(listingsCollection).UpdateOne(ctx,
			bson.M{"_id": listing.ID, "status": models.ListingStatusActive},
			bson.M{
				"$set": bson.M{"auction_end": newEnd, "updated_at": now},
				"$inc": bson.M{"times_extended": 1},
			},
		)
		if err != nil {
			return nil, fmt.Errorf("db error extending auction %s: %w", listing.ID.String(), err)
		}
		if result.MatchedCount == 0 {
			return nil, fmt.Errorf("%w: auction %s left active state during bid", ErrConflict, listing.ID.String())
		}
		listing.AuctionEnd = &newEnd
		listing.TimesExtended++
		res.Extended = true
		res.NewAuctionEnd = &newEnd
		*pending = append(*pending, events.NewEvent(events.EventAuctionExtended, listing.ID, nil, map[string]interface{}{
			"new_auction_end": newEnd,
			"times_extended":  listing.TimesExtended,
		}))
	}
	return bid, nil
}

// ListBids returns a listing's bids, highest first.
func (s *bidService) ListBids(ctx context.Context, listingID utils.SixID) ([]models.Bid, error) {
	opts := options.Find().SetSort(bson.D{{Key: "amount", Value: -1}, {Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(bidsCollection).Find(ctx, bson.M{"listing_id": listingID}, opts)
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

// listBids loads all bids for resolution, oldest first.
func (s *bidService) listBids(ctx context.Context, listingID utils.SixID) ([]models.Bid, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(bidsCollection).Find(ctx, bson.M{"listing_id": listingID}, opts)
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

// highestRivalCeiling returns the highest ceiling held by any other bidder,
// and whether one exists.
func highestRivalCeiling(bids []models.Bid, bidderID utils.SixID) (int64, bool) {
	var best int64
	found := false
	for i := range bids {
		if bids[i].BidderID == bidderID {
			continue
		}
		if !found || bids[i].MaxBidAmount > best {
			best = bids[i].MaxBidAmount
			found = true
		}
	}
	return best, found
}

// standing returns the leading bidder and visible price: highest amount,
// earliest on equal amounts. Returns (nil, 0) when there are no bids.
func standing(bids []models.Bid) (*utils.SixID, int64) {
	var top *models.Bid
	for i := range bids {
		b := &bids[i]
		if top == nil || b.Amount > top.Amount ||
			(b.Amount == top.Amount && b.CreatedAt.Before(top.CreatedAt)) {
			top = b
		}
	}
	if top == nil {
		return nil, 0
	}
	return &top.BidderID, top.Amount
}

func derefBids(bids []*models.Bid) []models.Bid {
	out := make([]models.Bid, 0, len(bids))
	for _, b := range bids {
		out = append(out, *b)
	}
	return out
}
