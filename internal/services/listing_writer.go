package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

// ListingWriter applies bid, accept and close decisions against a freshly read
// listing. It is the only code that writes currentBid or moves a listing out
// of available; the processor calls it for queued jobs and the gateway calls
// it directly when the queue is down.
type ListingWriter struct {
	store     domain.ListingStore
	cache     domain.ListingCache
	notifier  Notifier
	validator *BidValidator
	retrier   storeRetry
	now       func() time.Time
	log       logger.Logger
}

func NewListingWriter(store domain.ListingStore, cache domain.ListingCache, notifier Notifier,
	validator *BidValidator, maxRetries int, retryBackoff time.Duration, log logger.Logger) *ListingWriter {
	return &ListingWriter{
		store:     store,
		cache:     cache,
		notifier:  notifier,
		validator: validator,
		retrier:   storeRetry{maxRetries: maxRetries, backoff: retryBackoff, log: log},
		now:       time.Now,
		log:       log,
	}
}

func (w *ListingWriter) SetClock(now func() time.Time) {
	w.now = now
}

func (w *ListingWriter) retry(ctx context.Context, op string, fn func() error) error {
	return w.retrier.do(ctx, op, fn)
}

func (w *ListingWriter) loadProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	var product *domain.Product
	err := w.retry(ctx, "get_product", func() error {
		var err error
		product, err = w.store.GetProduct(ctx, productID)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrProductNotFound
	}
	return product, err
}

func (w *ListingWriter) refreshCache(ctx context.Context, product *domain.Product) {
	if w.cache == nil {
		return
	}
	if err := w.cache.PutListing(ctx, product); err != nil {
		w.log.Warn("Failed to refresh listing snapshot", "product_id", product.ID, "error", err)
	}
}

// ApplyBid re-validates job against the stored listing, records the bid and
// raises currentBid when the bid beats it.
func (w *ListingWriter) ApplyBid(ctx context.Context, job *domain.BidJob) (*domain.Bid, error) {
	product, err := w.loadProduct(ctx, job.ProductID)
	if err != nil {
		return nil, err
	}
	now := w.now()
	if err := w.validator.ValidateBid(product, job.BidderID, job.Amount, now, 0); err != nil {
		return nil, err
	}

	bid := &domain.Bid{
		ProductID: job.ProductID,
		BidderID:  job.BidderID,
		Amount:    job.Amount,
		BidTime:   now,
		JobID:     job.ID,
	}
	err = w.retry(ctx, "create_bid", func() error {
		err := w.store.CreateBid(ctx, bid)
		if errors.Is(err, domain.ErrConflict) && job.ID != "" {
			// An earlier attempt landed; pick up the stored record.
			existing, getErr := w.store.GetBidByJobID(ctx, job.ID)
			if getErr != nil {
				return getErr
			}
			bid = existing
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bid: %w", err)
	}

	if Outbids(product, bid.Amount) {
		err = w.retry(ctx, "update_current_bid", func() error {
			return w.store.UpdateCurrentBid(ctx, product.ID, bid.Amount)
		})
		switch {
		case err == nil:
			amount := bid.Amount
			product.CurrentBid = &amount
		case errors.Is(err, domain.ErrConflict):
			// A higher bid or a close landed since the listing was read. The
			// bid stays on record; report the listing as it stands now.
			w.log.Info("Bid recorded without raising current bid", "job_id", job.ID, "product_id", product.ID, "amount", bid.Amount)
			if fresh, err := w.loadProduct(ctx, product.ID); err == nil {
				product = fresh
			}
		default:
			return nil, fmt.Errorf("update current bid: %w", err)
		}
	}

	w.refreshCache(ctx, product)
	w.notifier.BroadcastToProduct(product.ID, domain.NewEvent(domain.EventBid, map[string]interface{}{
		"productId":  product.ID,
		"bidId":      bid.ID,
		"bidderId":   bid.BidderID,
		"amount":     bid.Amount,
		"currentBid": product.CurrentBidValue(),
		"minimumBid": w.validator.MinimumBid(product),
		"bidTime":    bid.BidTime.UnixMilli(),
	}))
	return bid, nil
}

// ApplyAccept sells the listing to its current highest bidder. A listing that
// is no longer available makes the job a no-op reported as ErrAlreadyClosed.
func (w *ListingWriter) ApplyAccept(ctx context.Context, job *domain.AcceptBidJob) (*domain.Transaction, error) {
	product, err := w.loadProduct(ctx, job.ProductID)
	if err != nil {
		return nil, err
	}
	if product.Status != domain.ProductAvailable {
		return nil, domain.ErrAlreadyClosed
	}
	if job.SellerID != product.SellerID {
		return nil, domain.ErrNotSeller
	}

	var top []*domain.Bid
	err = w.retry(ctx, "top_bids", func() error {
		var err error
		top, err = w.store.TopBids(ctx, product.ID, 1)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load highest bid: %w", err)
	}
	if len(top) == 0 {
		return nil, domain.ErrNoBids
	}
	winner := top[0]

	tx := &domain.Transaction{
		ProductID: product.ID,
		SellerID:  product.SellerID,
		BuyerID:   winner.BidderID,
		Amount:    winner.Amount,
		Status:    domain.TransactionPending,
	}
	err = w.retry(ctx, "sell_listing", func() error {
		return w.store.SellListing(ctx, tx)
	})
	if errors.Is(err, domain.ErrConflict) {
		return nil, domain.ErrAlreadyClosed
	}
	if err != nil {
		return nil, fmt.Errorf("sell listing: %w", err)
	}
	product.Status = domain.ProductSold

	w.createContactMessage(ctx, product, winner.BidderID,
		fmt.Sprintf("Congratulations! Your bid of %.2f on %q was accepted. Let's arrange the next steps.", winner.Amount, product.Title))

	w.refreshCache(ctx, product)
	w.notifier.BroadcastToProduct(product.ID, domain.NewEvent(domain.EventStatusChange, map[string]interface{}{
		"productId":     product.ID,
		"status":        string(domain.ProductSold),
		"buyerId":       winner.BidderID,
		"amount":        winner.Amount,
		"transactionId": tx.ID,
	}))
	w.notifier.NotifyUser(winner.BidderID, domain.NewEvent(domain.EventAccepted, map[string]interface{}{
		"productId":     product.ID,
		"amount":        winner.Amount,
		"transactionId": tx.ID,
	}))
	return tx, nil
}

// ApplyClose ends a listing whose auction ran out without any bid. Listings
// with bids stay available for the seller to accept.
func (w *ListingWriter) ApplyClose(ctx context.Context, job *domain.CloseListingJob) error {
	product, err := w.loadProduct(ctx, job.ProductID)
	if err != nil {
		return err
	}
	if product.Status != domain.ProductAvailable {
		return domain.ErrAlreadyClosed
	}
	if w.now().Before(product.AuctionEndDate) {
		return domain.ErrCloseNotDue
	}

	var bids int
	err = w.retry(ctx, "count_bids", func() error {
		var err error
		bids, err = w.store.CountBids(ctx, product.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("count bids: %w", err)
	}
	if bids > 0 {
		return domain.ErrCloseNotDue
	}

	err = w.retry(ctx, "mark_ended", func() error {
		return w.store.UpdateProductStatus(ctx, product.ID, domain.ProductAvailable, domain.ProductEnded)
	})
	if errors.Is(err, domain.ErrConflict) {
		return domain.ErrAlreadyClosed
	}
	if err != nil {
		return fmt.Errorf("mark ended: %w", err)
	}
	product.Status = domain.ProductEnded

	w.refreshCache(ctx, product)
	w.notifier.BroadcastToProduct(product.ID, domain.NewEvent(domain.EventStatusChange, map[string]interface{}{
		"productId": product.ID,
		"status":    string(domain.ProductEnded),
	}))
	return nil
}

// createContactMessage opens the conversation between seller and buyer. A
// failure is logged; the sale stands without it.
func (w *ListingWriter) createContactMessage(ctx context.Context, product *domain.Product, buyerID int64, body string) {
	msg := &domain.Message{
		ProductID:  product.ID,
		SenderID:   product.SellerID,
		ReceiverID: buyerID,
		Body:       body,
	}
	err := w.retry(ctx, "create_message", func() error {
		return w.store.CreateMessage(ctx, msg)
	})
	if err != nil {
		w.log.Error("Failed to create contact message", "product_id", product.ID, "buyer_id", buyerID, "error", err)
	}
}
