package events

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nadermx/heroesandmore/internal/utils"
)

// EventType names the domain events the engine emits for the notification
// pipeline.
type EventType string

const (
	EventBidAccepted     EventType = "bid_accepted"
	EventOutbid          EventType = "outbid"
	EventAuctionExtended EventType = "auction_extended"
	EventAuctionEnded    EventType = "auction_ended"
	EventReserveNotMet   EventType = "reserve_not_met"
	EventListingExpired  EventType = "listing_expired"

	EventOfferReceived  EventType = "offer_received"
	EventOfferCountered EventType = "offer_countered"
	EventOfferAccepted  EventType = "offer_accepted"
	EventOfferDeclined  EventType = "offer_declined"
	EventOfferExpired   EventType = "offer_expired"

	EventOrderReadyForPayment EventType = "order_ready_for_payment"
	EventOrderCancelled       EventType = "order_cancelled"
)

// Event is the payload published for every domain event. Services emit
// events strictly after releasing the listing lock, so consumers may observe
// them in any order relative to subsequent operations.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	ListingID utils.SixID            `json:"listing_id"`
	UserID    *utils.SixID           `json:"user_id,omitempty"` // primary recipient, if any
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewEvent creates an event with a fresh UUID and timestamp.
func NewEvent(eventType EventType, listingID utils.SixID, userID *utils.SixID, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ListingID: listingID,
		UserID:    userID,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// Publisher defines the interface for emitting domain events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LoggingPublisher is a mock implementation that just logs events.
// Useful for development or when no broker is configured.
type LoggingPublisher struct{}

// Publish logs the event instead of delivering it.
func (p *LoggingPublisher) Publish(ctx context.Context, event Event) error {
	log.Printf("event %s: type=%s listing=%s user=%v data=%v", event.ID, event.Type, event.ListingID, event.UserID, event.Data)
	return nil
}
