package domain

import (
	"errors"
	"fmt"
)

// Admission errors: rejected synchronously, never enqueued.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidAmount      = errors.New("bid amount must be a positive number")
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product is not available")
	ErrProductInactive    = errors.New("product is not active")
	ErrAuctionEnded       = errors.New("auction has ended")
	ErrAuctionClosing     = errors.New("auction is ending, bid cannot be processed in time")
	ErrSelfBid            = errors.New("you cannot bid on your own product")
	ErrBidTooLow          = errors.New("bid amount too low")
	ErrBidTooHigh         = errors.New("bid amount too high")
	ErrNotSeller          = errors.New("only the seller can accept bids")
	ErrNoBids             = errors.New("no bids to accept")
)

// Staleness errors: a queued job no longer holds against fresh state.
var (
	ErrAlreadyClosed = errors.New("listing already closed")
	ErrCloseNotDue   = errors.New("listing is not due to close")
	ErrMalformedJob  = errors.New("malformed job")
)

// Infrastructure errors.
var (
	ErrQueueUnavailable = errors.New("queue unavailable")
	ErrNotFound         = errors.New("record not found")
	ErrConflict         = errors.New("record changed concurrently")
	ErrCacheMiss        = errors.New("cache miss")
)

// Dispute-guard errors.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotParty            = errors.New("only buyer or seller can act on this transaction")
	ErrNotVoidable         = errors.New("transaction cannot be voided in its current status")
	ErrVoidCooldown        = errors.New("void requests can only be submitted at least 1 hour after the transaction was created")
	ErrPendingVoidExists   = errors.New("there is already a pending void request for this transaction")
	ErrVoidRateLimited     = errors.New("too many void requests, please try again later")
	ErrVoidRequestNotFound = errors.New("void request not found")
	ErrOwnVoidRequest      = errors.New("cannot respond to your own void request")
	ErrAlreadyResolved     = errors.New("void request is no longer pending")
	ErrNotApproved         = errors.New("void request must be approved first")
	ErrChoiceAlreadyMade   = errors.New("seller choice already made")
	ErrOnlySellerChooses   = errors.New("only seller can make this choice")
	ErrNoSecondBidder      = errors.New("no second bidder available")
	ErrNoOffer             = errors.New("no offer available for this void request")
	ErrOfferNotPending     = errors.New("offer is not pending")
	ErrNotOfferee          = errors.New("only the offered bidder can respond")
	ErrInvalidAction       = errors.New("invalid action")
)

// BidAmountError explains why an amount was refused and what would be accepted.
type BidAmountError struct {
	Reason     error
	Amount     float64
	MinimumBid float64
	MaximumBid float64
	CurrentBid float64
}

func (e *BidAmountError) Error() string {
	if errors.Is(e.Reason, ErrBidTooHigh) {
		return fmt.Sprintf("bid must be at most %.2f", e.MaximumBid)
	}
	return fmt.Sprintf("bid must be at least %.2f", e.MinimumBid)
}

func (e *BidAmountError) Unwrap() error { return e.Reason }

// NoSecondBidderError is returned when offer_second_bidder cannot be honoured.
type NoSecondBidderError struct {
	OnlyOption SellerChoice
}

func (e *NoSecondBidderError) Error() string {
	return "no second bidder available, please restart the bidding instead"
}

func (e *NoSecondBidderError) Unwrap() error { return ErrNoSecondBidder }

// IsRejection reports whether err is a validation outcome rather than an
// infrastructure failure. Rejections are terminal and never retried.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidInput, ErrInvalidAmount, ErrProductNotFound, ErrProductUnavailable,
		ErrProductInactive, ErrAuctionEnded, ErrAuctionClosing, ErrSelfBid,
		ErrBidTooLow, ErrBidTooHigh, ErrNotSeller, ErrNoBids,
		ErrAlreadyClosed, ErrCloseNotDue, ErrMalformedJob,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
