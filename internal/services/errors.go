package services

import "errors"

// Typed failures returned by the engine's services. Callers branch on these
// with errors.Is; handlers map them to HTTP status codes.
var (
	// Bidding
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrSelfBidding      = errors.New("seller cannot bid on their own listing")
	ErrBidTooLow        = errors.New("bid is below the minimum acceptable amount")

	// Inventory
	ErrInsufficientStock = errors.New("insufficient stock")

	// Offers
	ErrOfferAlreadyPending     = errors.New("a live offer already exists for this listing and buyer")
	ErrOfferExpired            = errors.New("offer has expired")
	ErrOfferNotInExpectedState = errors.New("offer is not in the expected state")
	ErrOfferTooLow             = errors.New("offer is below the minimum acceptable amount")
	ErrOffersNotAllowed        = errors.New("listing does not accept offers")

	// Orders / generic
	ErrOrderNotInExpectedState = errors.New("order is not in the expected state")
	ErrConflict                = errors.New("conflicting concurrent update")

	// Listings
	ErrListingNotActive  = errors.New("listing is not active")
	ErrNotOwner          = errors.New("listing does not belong to this user")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrHasOpenOrders     = errors.New("listing has pending or paid orders")
)
