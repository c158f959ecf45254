package services

import (
	"context"
	"strings"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

type CreateListingRequest struct {
	SellerID       int64
	Title          string
	StartingPrice  float64
	BidInterval    float64
	AuctionEndDate time.Time
}

// ListingService is the thin create path for listings. Everything after
// creation goes through the writer or the dispute engine.
type ListingService struct {
	store    domain.ListingStore
	cache    domain.ListingCache
	notifier Notifier
	now      func() time.Time
	log      logger.Logger
}

func NewListingService(store domain.ListingStore, cache domain.ListingCache, notifier Notifier, log logger.Logger) *ListingService {
	return &ListingService{
		store:    store,
		cache:    cache,
		notifier: notifier,
		now:      time.Now,
		log:      log,
	}
}

func (s *ListingService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ListingService) CreateListing(ctx context.Context, req CreateListingRequest) (*domain.Product, error) {
	title := strings.TrimSpace(req.Title)
	if req.SellerID <= 0 || title == "" {
		return nil, domain.ErrInvalidInput
	}
	if req.StartingPrice <= 0 || req.BidInterval <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !req.AuctionEndDate.After(s.now()) {
		return nil, domain.ErrAuctionEnded
	}

	startingPrice, _ := money(req.StartingPrice).Float64()
	bidInterval, _ := money(req.BidInterval).Float64()
	product := &domain.Product{
		SellerID:       req.SellerID,
		Title:          title,
		StartingPrice:  startingPrice,
		BidInterval:    bidInterval,
		Status:         domain.ProductAvailable,
		Active:         true,
		AuctionEndDate: req.AuctionEndDate,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.PutListing(ctx, product); err != nil {
			s.log.Warn("Failed to cache listing snapshot", "product_id", product.ID, "error", err)
		}
	}

	s.log.Info("Listing created", "product_id", product.ID, "seller_id", product.SellerID)
	s.notifier.BroadcastGlobal(domain.NewEvent(domain.EventNewProduct, map[string]interface{}{
		"productId":      product.ID,
		"sellerId":       product.SellerID,
		"title":          product.Title,
		"startingPrice":  product.StartingPrice,
		"bidInterval":    product.BidInterval,
		"auctionEndDate": product.AuctionEndDate.UnixMilli(),
	}))
	return product, nil
}
