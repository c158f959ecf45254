package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
	"auction-marketplace/pkg/utils"
)

// SubmitResult tells the caller whether its request was queued or, with the
// queue down, applied directly.
type SubmitResult struct {
	Queued        bool
	Fallback      bool
	JobID         string
	BidID         int64
	TransactionID int64
	Message       string
}

// BidGateway admits bid and accept requests against the last known listing
// state and hands them to the queue.
type BidGateway struct {
	store     domain.ListingStore
	cache     domain.ListingCache
	queue     domain.JobQueue
	writer    *ListingWriter
	validator *BidValidator
	endBuffer time.Duration
	now       func() time.Time
	log       logger.Logger
}

func NewBidGateway(store domain.ListingStore, cache domain.ListingCache, queue domain.JobQueue,
	writer *ListingWriter, validator *BidValidator, endBuffer time.Duration, log logger.Logger) *BidGateway {
	return &BidGateway{
		store:     store,
		cache:     cache,
		queue:     queue,
		writer:    writer,
		validator: validator,
		endBuffer: endBuffer,
		now:       time.Now,
		log:       log,
	}
}

func (g *BidGateway) SetClock(now func() time.Time) {
	g.now = now
}

// loadListing reads the cached snapshot and falls back to the store.
func (g *BidGateway) loadListing(ctx context.Context, productID int64) (*domain.Product, error) {
	if g.cache != nil {
		product, err := g.cache.GetListing(ctx, productID)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			g.log.Warn("Listing snapshot unavailable", "product_id", productID, "error", err)
		}
	}

	product, err := g.store.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	if g.cache != nil {
		if err := g.cache.PutListing(ctx, product); err != nil {
			g.log.Warn("Failed to cache listing snapshot", "product_id", productID, "error", err)
		}
	}
	return product, nil
}

func (g *BidGateway) SubmitBid(ctx context.Context, productID, bidderID int64, amount float64) (*SubmitResult, error) {
	if productID <= 0 || bidderID <= 0 {
		return nil, domain.ErrInvalidInput
	}
	product, err := g.loadListing(ctx, productID)
	if err != nil {
		return nil, err
	}
	now := g.now()
	if err := g.validator.ValidateBid(product, bidderID, amount, now, g.endBuffer); err != nil {
		return nil, err
	}

	job := &domain.BidJob{
		ID:        utils.GenerateID("bid"),
		ProductID: productID,
		BidderID:  bidderID,
		Amount:    amount,
		Timestamp: now,
	}
	err = g.queue.Enqueue(ctx, job)
	if err == nil {
		g.log.Debug("Bid queued", "job_id", job.ID, "product_id", productID, "bidder_id", bidderID, "amount", amount)
		return &SubmitResult{Queued: true, JobID: job.ID, Message: "Bid queued for processing"}, nil
	}
	if !errors.Is(err, domain.ErrQueueUnavailable) {
		return nil, err
	}

	g.log.Warn("Queue unavailable, applying bid directly", "job_id", job.ID, "product_id", productID, "error", err)
	bid, err := g.writer.ApplyBid(ctx, job)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Fallback: true, JobID: job.ID, BidID: bid.ID, Message: "Bid placed"}, nil
}

func (g *BidGateway) SubmitAcceptBid(ctx context.Context, productID, sellerID int64) (*SubmitResult, error) {
	if productID <= 0 || sellerID <= 0 {
		return nil, domain.ErrInvalidInput
	}
	product, err := g.loadListing(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := g.validator.ValidateAccept(product, sellerID); err != nil {
		return nil, err
	}

	top, err := g.store.TopBids(ctx, productID, 1)
	if err != nil {
		return nil, fmt.Errorf("load highest bid: %w", err)
	}
	if len(top) == 0 {
		return nil, domain.ErrNoBids
	}

	job := &domain.AcceptBidJob{
		ID:        utils.GenerateID("accept"),
		ProductID: productID,
		SellerID:  sellerID,
		BidderID:  top[0].BidderID,
		Amount:    top[0].Amount,
		Timestamp: g.now(),
	}
	err = g.queue.Enqueue(ctx, job)
	if err == nil {
		g.log.Debug("Accept queued", "job_id", job.ID, "product_id", productID)
		return &SubmitResult{Queued: true, JobID: job.ID, Message: "Bid acceptance queued for processing"}, nil
	}
	if !errors.Is(err, domain.ErrQueueUnavailable) {
		return nil, err
	}

	g.log.Warn("Queue unavailable, applying accept directly", "job_id", job.ID, "product_id", productID, "error", err)
	tx, err := g.writer.ApplyAccept(ctx, job)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Fallback: true, JobID: job.ID, TransactionID: tx.ID, Message: "Bid accepted"}, nil
}
