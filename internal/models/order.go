package models

import (
	"time"

	"github.com/nadermx/heroesandmore/internal/utils"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCompleted      OrderStatus = "completed"
)

// orderTransitions is the closed set of legal status transitions.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusDelivered},
	OrderStatusDelivered:      {OrderStatusCompleted},
	OrderStatusCancelled:      {},
	OrderStatusCompleted:      {},
}

// CanTransition reports whether an order may move from one status to another.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Open reports whether the order still reserves stock (i.e. its ledger entry
// has not been reversed).
func (s OrderStatus) Open() bool {
	return s != OrderStatusCancelled
}

// Order is a purchase of a listing: direct, won at auction, or via an
// accepted offer. Money fields are int64 cents. Guest checkout orders carry
// contact details instead of a BuyerID.
type Order struct {
	ID        utils.SixID  `bson:"_id,omitempty" json:"id,omitempty"`
	ListingID utils.SixID  `bson:"listing_id" json:"listing_id"`
	SellerID  utils.SixID  `bson:"seller_id" json:"seller_id"`
	BuyerID   *utils.SixID `bson:"buyer_id,omitempty" json:"buyer_id,omitempty"`

	// Guest checkout
	GuestEmail string `bson:"guest_email,omitempty" json:"guest_email,omitempty"`
	GuestName  string `bson:"guest_name,omitempty" json:"guest_name,omitempty"`

	Quantity int64 `bson:"quantity" json:"quantity"`

	// Fee breakdown, fixed at order creation.
	ItemPrice     int64 `bson:"item_price" json:"item_price"`
	ShippingPrice int64 `bson:"shipping_price" json:"shipping_price"`
	Amount        int64 `bson:"amount" json:"amount"`
	PlatformFee   int64 `bson:"platform_fee" json:"platform_fee"`
	SellerPayout  int64 `bson:"seller_payout" json:"seller_payout"`

	Status OrderStatus `bson:"status" json:"status"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	PaidAt      *time.Time `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	CancelledAt *time.Time `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
}
