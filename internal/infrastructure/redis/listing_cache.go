package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"auction-marketplace/internal/domain"
)

// RedisListingCache keeps a short-lived JSON snapshot of each listing for the
// gateway's read path. The store stays authoritative.
type RedisListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisListingCache(client *redis.Client, ttl time.Duration) *RedisListingCache {
	return &RedisListingCache{client: client, ttl: ttl}
}

type listingSnapshot struct {
	ID             int64    `json:"id"`
	SellerID       int64    `json:"sellerId"`
	Title          string   `json:"title"`
	StartingPrice  float64  `json:"startingPrice"`
	BidInterval    float64  `json:"bidInterval"`
	CurrentBid     *float64 `json:"currentBid,omitempty"`
	Status         string   `json:"status"`
	Active         bool     `json:"active"`
	AuctionEndDate int64    `json:"auctionEndDate"`
}

func listingKey(productID int64) string {
	return fmt.Sprintf("listing:%d", productID)
}

func (c *RedisListingCache) GetListing(ctx context.Context, productID int64) (*domain.Product, error) {
	data, err := c.client.Get(ctx, listingKey(productID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, err
	}
	var s listingSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &domain.Product{
		ID:             s.ID,
		SellerID:       s.SellerID,
		Title:          s.Title,
		StartingPrice:  s.StartingPrice,
		BidInterval:    s.BidInterval,
		CurrentBid:     s.CurrentBid,
		Status:         domain.ProductStatus(s.Status),
		Active:         s.Active,
		AuctionEndDate: time.UnixMilli(s.AuctionEndDate),
	}, nil
}

func (c *RedisListingCache) PutListing(ctx context.Context, product *domain.Product) error {
	data, err := json.Marshal(listingSnapshot{
		ID:             product.ID,
		SellerID:       product.SellerID,
		Title:          product.Title,
		StartingPrice:  product.StartingPrice,
		BidInterval:    product.BidInterval,
		CurrentBid:     product.CurrentBid,
		Status:         string(product.Status),
		Active:         product.Active,
		AuctionEndDate: product.AuctionEndDate.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, listingKey(product.ID), data, c.ttl).Err()
}

func (c *RedisListingCache) InvalidateListing(ctx context.Context, productID int64) error {
	return c.client.Del(ctx, listingKey(productID)).Err()
}
