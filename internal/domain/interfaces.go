package domain

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_interfaces.go -package=mocks auction-marketplace/internal/domain JobQueue,EventPublisher,LeaderElection

// Repository interfaces. Each call is atomic on its own; callers never assume
// a transaction spanning several calls. Multi-record transitions live in
// SettlementRepository.
type ProductRepository interface {
	CreateProduct(ctx context.Context, product *Product) error
	GetProduct(ctx context.Context, productID int64) (*Product, error)
	// UpdateCurrentBid raises currentBid to amount on an available listing.
	// ErrConflict if the listing is closed or already at or above amount.
	UpdateCurrentBid(ctx context.Context, productID int64, amount float64) error
	// UpdateProductStatus moves a listing from one status to another.
	// ErrConflict if it is no longer in from.
	UpdateProductStatus(ctx context.Context, productID int64, from, to ProductStatus) error
	ListExpiredListings(ctx context.Context, now time.Time, limit int) ([]*Product, error)
}

type BidRepository interface {
	CreateBid(ctx context.Context, bid *Bid) error
	GetBidByJobID(ctx context.Context, jobID string) (*Bid, error)
	// TopBids returns bids ordered by amount descending, earliest first on ties.
	TopBids(ctx context.Context, productID int64, limit int) ([]*Bid, error)
	// HighestBidExcluding returns the best bid placed by anyone but bidderID.
	HighestBidExcluding(ctx context.Context, productID, bidderID int64) (*Bid, error)
	CountBids(ctx context.Context, productID int64) (int, error)
	ListBidders(ctx context.Context, productID int64) ([]int64, error)
}

type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, transactionID int64) (*Transaction, error)
	UpdateTransactionStatus(ctx context.Context, transactionID int64, status TransactionStatus) error
}

type VoidRequestRepository interface {
	GetVoidRequest(ctx context.Context, voidRequestID int64) (*VoidRequest, error)
	ListVoidRequests(ctx context.Context, transactionID int64) ([]*VoidRequest, error)
	// CreateVoidRequest stores a pending request. ErrConflict if the
	// transaction already has one pending.
	CreateVoidRequest(ctx context.Context, req *VoidRequest) error
	HasPendingVoidRequest(ctx context.Context, transactionID int64) (bool, error)
	CountVoidRequestsSince(ctx context.Context, initiatorID int64, since time.Time) (int, error)
	// ResolveVoidRequest moves a pending request to status. ErrConflict if it
	// is no longer pending.
	ResolveVoidRequest(ctx context.Context, voidRequestID int64, status VoidRequestStatus, rejectionReason string, at time.Time) error
	// SetSellerChoice records the write-once remedy. ErrConflict if the request
	// is not approved or a choice already exists.
	SetSellerChoice(ctx context.Context, voidRequestID int64, choice SellerChoice, offer *SecondBidderOffer) error
	// RespondToOffer settles a pending second-bidder offer. ErrConflict if the
	// offer is no longer pending.
	RespondToOffer(ctx context.Context, voidRequestID int64, status OfferStatus, at time.Time) error
	ListPendingOffers(ctx context.Context, offeredBefore time.Time) ([]*VoidRequest, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *Message) error
}

// SettlementRepository holds the transitions that touch more than one record.
// Each commits all of its writes or none of them.
type SettlementRepository interface {
	// SellListing marks an available listing sold and records sale.
	// ErrConflict if the listing is no longer available.
	SellListing(ctx context.Context, sale *Transaction) error
	// ApproveVoidRequest approves a pending request and voids its
	// transaction. ErrConflict if the request is no longer pending.
	ApproveVoidRequest(ctx context.Context, voidRequestID, transactionID int64, at time.Time) error
	// RestartListing records restart_bidding as the seller's choice and
	// reopens the sold listing until auctionEndDate. ErrConflict if a choice
	// exists or the listing is not sold.
	RestartListing(ctx context.Context, voidRequestID, productID int64, auctionEndDate time.Time) error
	// AcceptOffer settles a pending second-bidder offer as accepted and
	// records sale. ErrConflict if the offer is no longer pending.
	AcceptOffer(ctx context.Context, voidRequestID int64, at time.Time, sale *Transaction) error
}

// ListingStore is the record store the core runs against.
type ListingStore interface {
	ProductRepository
	BidRepository
	TransactionRepository
	VoidRequestRepository
	MessageRepository
	SettlementRepository
}

// Queue interfaces
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (Job, error)
}

// Cache interfaces
type ListingCache interface {
	GetListing(ctx context.Context, productID int64) (*Product, error)
	PutListing(ctx context.Context, product *Product) error
	InvalidateListing(ctx context.Context, productID int64) error
}

// Event interfaces
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
}

type MessageHandler func(channel string, payload []byte) error

// Leader election interface
type LeaderElection interface {
	// BecomeLeader tries to take the lease. When it succeeds, the returned
	// channel is closed once the lease is lost or released.
	BecomeLeader(ctx context.Context, instanceID string) (bool, <-chan struct{}, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	ID() string
	Send(payload []byte) bool
	Close() error
	Channel() string
}

type ConnectionManager interface {
	RegisterConnection(conn WebSocketConnection)
	UnregisterConnection(conn WebSocketConnection)
	GetConnectionsForChannel(channel string) []WebSocketConnection
	Deliver(channel string, payload []byte) int
	CloseAll()
}
