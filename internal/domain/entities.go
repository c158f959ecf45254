package domain

import (
	"time"
)

type Product struct {
	ID             int64
	SellerID       int64
	Title          string
	StartingPrice  float64
	BidInterval    float64
	CurrentBid     *float64
	Status         ProductStatus
	Active         bool
	AuctionEndDate time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CurrentBidValue returns the current bid, or zero when no bid has been applied.
func (p *Product) CurrentBidValue() float64 {
	if p.CurrentBid == nil {
		return 0
	}
	return *p.CurrentBid
}

type ProductStatus string

const (
	ProductAvailable ProductStatus = "available"
	ProductSold      ProductStatus = "sold"
	ProductEnded     ProductStatus = "ended"
)

func (s ProductStatus) Valid() bool {
	switch s {
	case ProductAvailable, ProductSold, ProductEnded:
		return true
	default:
		return false
	}
}

// Bid is append-only. JobID links it to the queued job that produced it so a
// retried write can detect that it already happened.
type Bid struct {
	ID        int64
	ProductID int64
	BidderID  int64
	Amount    float64
	BidTime   time.Time
	JobID     string
}

type Transaction struct {
	ID        int64
	ProductID int64
	SellerID  int64
	BuyerID   int64
	Amount    float64
	Status    TransactionStatus
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsParty reports whether userID is the buyer or the seller.
func (t *Transaction) IsParty(userID int64) bool {
	return userID == t.BuyerID || userID == t.SellerID
}

// Counterparty returns the other side of the transaction for userID.
func (t *Transaction) Counterparty(userID int64) int64 {
	if userID == t.SellerID {
		return t.BuyerID
	}
	return t.SellerID
}

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionInProgress TransactionStatus = "in_progress"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionCancelled  TransactionStatus = "cancelled"
	TransactionVoided     TransactionStatus = "voided"
)

// Voidable reports whether a dispute may be opened against the transaction.
func (s TransactionStatus) Voidable() bool {
	return s == TransactionPending || s == TransactionInProgress
}

type VoidRequest struct {
	ID                int64
	TransactionID     int64
	ProductID         int64
	InitiatorID       int64
	InitiatorRole     PartyRole
	Reason            string
	Status            VoidRequestStatus
	RejectionReason   string
	ApprovedAt        *time.Time
	SellerChoice      SellerChoice
	SecondBidderOffer *SecondBidderOffer
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type PartyRole string

const (
	RoleBuyer  PartyRole = "buyer"
	RoleSeller PartyRole = "seller"
)

type VoidRequestStatus string

const (
	VoidPending   VoidRequestStatus = "pending"
	VoidApproved  VoidRequestStatus = "approved"
	VoidRejected  VoidRequestStatus = "rejected"
	VoidCancelled VoidRequestStatus = "cancelled"
)

type SellerChoice string

const (
	ChoiceNone              SellerChoice = ""
	ChoiceRestartBidding    SellerChoice = "restart_bidding"
	ChoiceOfferSecondBidder SellerChoice = "offer_second_bidder"
)

func (c SellerChoice) Valid() bool {
	return c == ChoiceRestartBidding || c == ChoiceOfferSecondBidder
}

type SecondBidderOffer struct {
	OfferedTo   int64
	OfferAmount float64
	OfferStatus OfferStatus
	OfferedAt   time.Time
	RespondedAt *time.Time
}

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferDeclined OfferStatus = "declined"
	OfferExpired  OfferStatus = "expired"
)

// Message is the contact thread entry created between the parties of a sale.
type Message struct {
	ID         int64
	ProductID  int64
	SenderID   int64
	ReceiverID int64
	Body       string
	Read       bool
	CreatedAt  time.Time
}
