package models

import (
	"time"

	"github.com/nadermx/heroesandmore/internal/utils"
)

// Bid is a single bid on an auction listing. Bids are immutable once written,
// except for the triggered_extension flag which is set within the same locked
// operation that created the bid.
type Bid struct {
	ID        utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
	ListingID utils.SixID `bson:"listing_id" json:"listing_id"`
	BidderID  utils.SixID `bson:"bidder_id" json:"bidder_id"`

	// Amount is the visible bid price in cents.
	Amount int64 `bson:"amount" json:"amount"`

	// IsAutoBid marks synthetic counter-bids placed by proxy resolution on
	// behalf of a bidder with a higher ceiling.
	IsAutoBid bool `bson:"is_auto_bid" json:"is_auto_bid"`

	// MaxBidAmount is the bidder's ceiling. For plain manual bids it equals
	// Amount.
	MaxBidAmount int64 `bson:"max_bid_amount" json:"max_bid_amount"`

	// TriggeredExtension is set when this bid landed inside the anti-sniping
	// window and pushed the auction end out.
	TriggeredExtension bool `bson:"triggered_extension" json:"triggered_extension"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
