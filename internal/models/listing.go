package models

import (
	"time"

	"github.com/nadermx/heroesandmore/internal/utils"
)

// ListingKind distinguishes fixed-price listings from auctions.
type ListingKind string

const (
	ListingKindFixed   ListingKind = "fixed"
	ListingKindAuction ListingKind = "auction"
)

// ListingStatus is the lifecycle state of a listing. Status is only mutated
// through the services, never directly by handlers.
type ListingStatus string

const (
	ListingStatusDraft           ListingStatus = "draft"
	ListingStatusActive          ListingStatus = "active"
	ListingStatusSold            ListingStatus = "sold"
	ListingStatusEndedWithWinner ListingStatus = "ended_with_winner"
	ListingStatusReserveNotMet   ListingStatus = "reserve_not_met"
	ListingStatusExpired         ListingStatus = "expired"
	ListingStatusCancelled       ListingStatus = "cancelled"
)

// listingTransitions is the closed set of legal status transitions.
// Relisting a terminal auction goes back through draft.
var listingTransitions = map[ListingStatus][]ListingStatus{
	ListingStatusDraft:           {ListingStatusActive, ListingStatusCancelled},
	ListingStatusActive:          {ListingStatusSold, ListingStatusEndedWithWinner, ListingStatusReserveNotMet, ListingStatusExpired, ListingStatusCancelled},
	ListingStatusSold:            {ListingStatusActive, ListingStatusDraft},
	ListingStatusEndedWithWinner: {ListingStatusDraft},
	ListingStatusReserveNotMet:   {ListingStatusDraft},
	ListingStatusExpired:         {ListingStatusDraft},
	ListingStatusCancelled:       {},
}

// CanTransition reports whether a listing may move from one status to another.
func (s ListingStatus) CanTransition(to ListingStatus) bool {
	for _, allowed := range listingTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is an auction end state.
func (s ListingStatus) Terminal() bool {
	switch s {
	case ListingStatusEndedWithWinner, ListingStatusReserveNotMet, ListingStatusExpired, ListingStatusCancelled:
		return true
	}
	return false
}

// Listing represents a marketplace item, either fixed-price or auction.
// All money fields are int64 cents.
type Listing struct {
	ID       utils.SixID   `bson:"_id,omitempty" json:"id,omitempty"`
	SellerID utils.SixID   `bson:"seller_id" json:"seller_id"`
	Title    string        `bson:"title" json:"title"`
	Body     string        `bson:"body" json:"body"`
	Kind     ListingKind   `bson:"kind" json:"kind"`
	Status   ListingStatus `bson:"status" json:"status"`

	// Fixed-price fields
	Price         int64 `bson:"price" json:"price"`
	ShippingPrice int64 `bson:"shipping_price" json:"shipping_price"`
	Quantity      int64 `bson:"quantity" json:"quantity"`
	QuantitySold  int64 `bson:"quantity_sold" json:"quantity_sold"`

	// Offer settings (fixed-price only)
	AllowOffers         bool `bson:"allow_offers" json:"allow_offers"`
	MinimumOfferPercent int  `bson:"minimum_offer_percent" json:"minimum_offer_percent"`

	// Auction fields
	StartingBid            int64      `bson:"starting_bid" json:"starting_bid"`
	ReservePrice           *int64     `bson:"reserve_price,omitempty" json:"reserve_price,omitempty"`
	NoReserve              bool       `bson:"no_reserve" json:"no_reserve"`
	AuctionEnd             *time.Time `bson:"auction_end,omitempty" json:"auction_end,omitempty"`
	UseExtendedBidding     bool       `bson:"use_extended_bidding" json:"use_extended_bidding"`
	ExtendedBiddingMinutes int        `bson:"extended_bidding_minutes" json:"extended_bidding_minutes"`
	TimesExtended          int        `bson:"times_extended" json:"times_extended"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// SoldOut reports whether a fixed-price listing has no remaining stock.
// "Sold out" is a projection of the counters, not a stored flag.
func (l *Listing) SoldOut() bool {
	return l.Kind == ListingKindFixed && l.QuantitySold >= l.Quantity
}

// QuantityRemaining returns the unsold stock of a fixed-price listing.
func (l *Listing) QuantityRemaining() int64 {
	remaining := l.Quantity - l.QuantitySold
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasReserve reports whether the auction enforces a reserve price.
func (l *Listing) HasReserve() bool {
	return !l.NoReserve && l.ReservePrice != nil && *l.ReservePrice > 0
}

// ReserveMet reports whether the given price satisfies the reserve.
// Listings without a reserve are always met.
func (l *Listing) ReserveMet(price int64) bool {
	if !l.HasReserve() {
		return true
	}
	return price >= *l.ReservePrice
}
