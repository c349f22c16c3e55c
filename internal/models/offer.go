package models

import (
	"time"

	"github.com/nadermx/heroesandmore/internal/utils"
)

// OfferStatus is the negotiation state of an offer.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusDeclined  OfferStatus = "declined"
	OfferStatusCountered OfferStatus = "countered"
	OfferStatusExpired   OfferStatus = "expired"
	OfferStatusWithdrawn OfferStatus = "withdrawn"
)

// offerTransitions is the closed set of legal status transitions.
var offerTransitions = map[OfferStatus][]OfferStatus{
	OfferStatusPending:   {OfferStatusAccepted, OfferStatusDeclined, OfferStatusCountered, OfferStatusExpired, OfferStatusWithdrawn},
	OfferStatusCountered: {OfferStatusAccepted, OfferStatusDeclined, OfferStatusExpired, OfferStatusWithdrawn},
	OfferStatusAccepted:  {},
	OfferStatusDeclined:  {},
	OfferStatusExpired:   {},
	OfferStatusWithdrawn: {},
}

// CanTransition reports whether an offer may move from one status to another.
func (s OfferStatus) CanTransition(to OfferStatus) bool {
	for _, allowed := range offerTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Live reports whether the offer still blocks new offers from the same buyer.
func (s OfferStatus) Live() bool {
	return s == OfferStatusPending || s == OfferStatusCountered
}

// Offer is a buyer's offer on a fixed-price listing. At most one live offer
// may exist per (listing, buyer) pair. Money fields are int64 cents.
type Offer struct {
	ID        utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
	ListingID utils.SixID `bson:"listing_id" json:"listing_id"`
	BuyerID   utils.SixID `bson:"buyer_id" json:"buyer_id"`

	Amount  int64  `bson:"amount" json:"amount"`
	Message string `bson:"message,omitempty" json:"message,omitempty"`

	Status OfferStatus `bson:"status" json:"status"`

	// CounterAmount is the seller's counter price; set iff the offer has been
	// countered. Acceptance of a countered offer settles at this amount.
	CounterAmount *int64 `bson:"counter_amount,omitempty" json:"counter_amount,omitempty"`

	ExpiresAt   time.Time  `bson:"expires_at" json:"expires_at"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	RespondedAt *time.Time `bson:"responded_at,omitempty" json:"responded_at,omitempty"`
}

// SettlementAmount is the price an acceptance settles at: the counter amount
// when one exists, otherwise the original offer amount.
func (o *Offer) SettlementAmount() int64 {
	if o.CounterAmount != nil {
		return *o.CounterAmount
	}
	return o.Amount
}
