package redis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestDecodeJob(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    domain.JobType
		wantErr bool
	}{
		{name: "untyped payload is a bid", payload: `{"jobId":"bid-1","productId":7,"bidderId":3,"amount":12.5,"timestamp":1700000000000}`, want: domain.JobBid},
		{name: "accept bid", payload: `{"type":"accept_bid","jobId":"acc-1","productId":7,"sellerId":1,"bidderId":3,"amount":12.5,"timestamp":1700000000000}`, want: domain.JobAcceptBid},
		{name: "close listing", payload: `{"type":"close_listing","jobId":"close-1","productId":7,"timestamp":1700000000000}`, want: domain.JobCloseListing},
		{name: "not json", payload: `bid:7:3`, wantErr: true},
		{name: "unknown type", payload: `{"type":"refund","jobId":"x","productId":7}`, wantErr: true},
		{name: "missing product", payload: `{"jobId":"bid-1","bidderId":3,"amount":1}`, wantErr: true},
		{name: "bid without bidder", payload: `{"jobId":"bid-1","productId":7,"amount":1}`, wantErr: true},
		{name: "bid without amount", payload: `{"jobId":"bid-1","productId":7,"bidderId":3}`, wantErr: true},
		{name: "accept without seller", payload: `{"type":"accept_bid","jobId":"acc-1","productId":7}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := DecodeJob([]byte(tt.payload))
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrMalformedJob)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, job.Type())
			require.Equal(t, int64(7), job.Product())
			require.Equal(t, int64(1700000000000), job.EnqueuedAt().UnixMilli())
		})
	}
}

func TestRedisJobQueue_FIFO(t *testing.T) {
	client, _ := newClient(t)
	q := NewRedisJobQueue(client, "bids:pending", 50*time.Millisecond)
	ctx := context.Background()
	ts := time.UnixMilli(1700000000000)

	require.NoError(t, q.Enqueue(ctx, &domain.BidJob{ID: "bid-1", ProductID: 7, BidderID: 3, Amount: 12.5, Timestamp: ts}))
	require.NoError(t, q.Enqueue(ctx, &domain.AcceptBidJob{ID: "acc-1", ProductID: 7, SellerID: 1, BidderID: 3, Amount: 12.5, Timestamp: ts}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	bid, ok := first.(*domain.BidJob)
	require.True(t, ok)
	require.Equal(t, "bid-1", bid.ID)
	require.Equal(t, 12.5, bid.Amount)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.JobAcceptBid, second.Type())
}

func TestRedisJobQueue_MalformedPayload(t *testing.T) {
	client, mr := newClient(t)
	q := NewRedisJobQueue(client, "bids:pending", 50*time.Millisecond)

	_, err := mr.RPush("bids:pending", "garbage")
	require.NoError(t, err)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, domain.ErrMalformedJob)
	require.False(t, mr.Exists("bids:pending"), "malformed payload is consumed")
}

func TestRedisJobQueue_DequeueStopsOnCancel(t *testing.T) {
	client, _ := newClient(t)
	q := NewRedisJobQueue(client, "bids:pending", 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestRedisJobQueue_EnqueueUnavailable(t *testing.T) {
	client, mr := newClient(t)
	q := NewRedisJobQueue(client, "bids:pending", time.Second)
	mr.Close()

	err := q.Enqueue(context.Background(), &domain.BidJob{ID: "bid-1", ProductID: 7, BidderID: 3, Amount: 1})
	require.ErrorIs(t, err, domain.ErrQueueUnavailable)
}

func TestRedisListingCache(t *testing.T) {
	client, mr := newClient(t)
	cache := NewRedisListingCache(client, 30*time.Second)
	ctx := context.Background()

	_, err := cache.GetListing(ctx, 7)
	require.ErrorIs(t, err, domain.ErrCacheMiss)

	bid := 15.0
	end := time.UnixMilli(1700000000000)
	require.NoError(t, cache.PutListing(ctx, &domain.Product{
		ID: 7, SellerID: 1, Title: "bike", StartingPrice: 10, BidInterval: 1,
		CurrentBid: &bid, Status: domain.ProductAvailable, Active: true, AuctionEndDate: end,
	}))
	require.Equal(t, 30*time.Second, mr.TTL("listing:7"))

	got, err := cache.GetListing(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "bike", got.Title)
	require.Equal(t, 15.0, got.CurrentBidValue())
	require.True(t, got.AuctionEndDate.Equal(end))

	require.NoError(t, cache.InvalidateListing(ctx, 7))
	_, err = cache.GetListing(ctx, 7)
	require.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestPublisherAndSubscriber(t *testing.T) {
	client, _ := newClient(t)
	sub := NewRedisEventSubscriber(client, logger.NewNop())
	pub := NewEventPublisher(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received = map[string]domain.Event{}
	)
	go func() {
		_ = sub.Subscribe(ctx, func(channel string, payload []byte) error {
			var ev domain.Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				return err
			}
			mu.Lock()
			received[channel] = ev
			mu.Unlock()
			return nil
		})
	}()

	publish := func(channel string) {
		_ = pub.Publish(ctx, channel, domain.NewEvent(domain.EventBid, map[string]interface{}{"amount": 12.5}))
	}
	require.Eventually(t, func() bool {
		publish(domain.ProductChannel(7))
		publish(domain.UserChannel(3))
		publish(domain.GlobalChannel)
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	ev := received["product:7"]
	require.Equal(t, domain.EventBid, ev.Type)
	require.Equal(t, 12.5, ev.Payload["amount"])
}
