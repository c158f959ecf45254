package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/infrastructure/memory"
	"auction-marketplace/pkg/logger"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentEvent struct {
	channel string
	event   domain.Event
}

// recordingNotifier captures events synchronously instead of publishing them.
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) add(channel string, event domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{channel: channel, event: event})
}

func (n *recordingNotifier) BroadcastToProduct(productID int64, event domain.Event) {
	n.add(domain.ProductChannel(productID), event)
}

func (n *recordingNotifier) NotifyUser(userID int64, event domain.Event) {
	n.add(domain.UserChannel(userID), event)
}

func (n *recordingNotifier) BroadcastGlobal(event domain.Event) {
	n.add(domain.GlobalChannel, event)
}

func (n *recordingNotifier) ofType(eventType domain.EventType) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.events {
		if e.event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func channels(events []sentEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.channel)
	}
	return out
}

// mapCache is a ListingCache that never expires.
type mapCache struct {
	mu       sync.Mutex
	listings map[int64]domain.Product
}

func newMapCache() *mapCache {
	return &mapCache{listings: make(map[int64]domain.Product)}
}

func (c *mapCache) GetListing(ctx context.Context, productID int64) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.listings[productID]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return &p, nil
}

func (c *mapCache) PutListing(ctx context.Context, product *domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[product.ID] = *product
	return nil
}

func (c *mapCache) InvalidateListing(ctx context.Context, productID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listings, productID)
	return nil
}

const testSeller int64 = 1

func seedListing(t *testing.T, store *memory.ListingStore, endDate time.Time) *domain.Product {
	t.Helper()
	p := &domain.Product{
		SellerID:       testSeller,
		Title:          "Walnut desk lamp",
		StartingPrice:  100,
		BidInterval:    10,
		Status:         domain.ProductAvailable,
		Active:         true,
		AuctionEndDate: endDate,
	}
	require.NoError(t, store.CreateProduct(context.Background(), p))
	return p
}

func currentBid(t *testing.T, store *memory.ListingStore, productID int64) float64 {
	t.Helper()
	p, err := store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.CurrentBidValue()
}

type pipeline struct {
	store     *memory.ListingStore
	queue     *memory.JobQueue
	notifier  *recordingNotifier
	writer    *ListingWriter
	gateway   *BidGateway
	processor *SequentialProcessor
	clock     *fakeClock
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	log := logger.NewNop()
	clock := newFakeClock(base)
	store := memory.NewListingStore()
	store.SetClock(clock.Now)
	queue := memory.NewJobQueue(256)
	notifier := &recordingNotifier{}
	validator := NewBidValidator(10, 1000000)

	writer := NewListingWriter(store, nil, notifier, validator, 2, time.Millisecond, log)
	writer.SetClock(clock.Now)
	gateway := NewBidGateway(store, nil, queue, writer, validator, 2*time.Second, log)
	gateway.SetClock(clock.Now)

	return &pipeline{
		store:     store,
		queue:     queue,
		notifier:  notifier,
		writer:    writer,
		gateway:   gateway,
		processor: NewSequentialProcessor(queue, writer, log),
		clock:     clock,
	}
}

// drain applies every queued job in order.
func (p *pipeline) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for p.queue.Len() > 0 {
		job, err := p.queue.Dequeue(ctx)
		require.NoError(t, err)
		p.processor.Process(ctx, job)
	}
}
