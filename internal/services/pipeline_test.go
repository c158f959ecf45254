package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/domain/mocks"
	"auction-marketplace/internal/infrastructure/memory"
	"auction-marketplace/pkg/logger"
)

func TestPipeline_MinimumBidProgression(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	listing := seedListing(t, p.store, base.Add(time.Hour))

	res, err := p.gateway.SubmitBid(ctx, listing.ID, 2, 150)
	require.NoError(t, err)
	require.True(t, res.Queued)
	require.True(t, strings.HasPrefix(res.JobID, "bid-"))
	p.drain(t)
	require.Equal(t, 150.0, currentBid(t, p.store, listing.ID))

	_, err = p.gateway.SubmitBid(ctx, listing.ID, 3, 155)
	var amountErr *domain.BidAmountError
	require.ErrorAs(t, err, &amountErr)
	require.ErrorIs(t, err, domain.ErrBidTooLow)
	require.Equal(t, 160.0, amountErr.MinimumBid)

	res, err = p.gateway.SubmitBid(ctx, listing.ID, 3, 200)
	require.NoError(t, err)
	require.True(t, res.Queued)
	p.drain(t)
	require.Equal(t, 200.0, currentBid(t, p.store, listing.ID))

	bidEvents := p.notifier.ofType(domain.EventBid)
	require.Len(t, bidEvents, 2)
	require.Equal(t, domain.ProductChannel(listing.ID), bidEvents[1].channel)
	require.Equal(t, 200.0, bidEvents[1].event.Payload["currentBid"])
	require.Equal(t, 210.0, bidEvents[1].event.Payload["minimumBid"])
}

func TestPipeline_ConcurrentBidsNoLostUpdate(t *testing.T) {
	p := newPipeline(t)
	listing := seedListing(t, p.store, base.Add(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = p.processor.Run(ctx)
	}()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		queued int
	)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := float64(100 + (i*37)%500)
			res, err := p.gateway.SubmitBid(context.Background(), listing.ID, int64(i+2), amount)
			if err == nil && res.Queued {
				mu.Lock()
				queued++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		s := p.processor.Stats()
		return int(s.Applied+s.Dropped) == queued
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-runDone

	stats := p.processor.Stats()
	require.Zero(t, stats.Failed)
	require.Positive(t, stats.Applied)

	count, err := p.store.CountBids(context.Background(), listing.ID)
	require.NoError(t, err)
	require.Equal(t, int(stats.Applied), count)

	top, err := p.store.TopBids(context.Background(), listing.ID, 1)
	require.NoError(t, err)
	require.Equal(t, top[0].Amount, currentBid(t, p.store, listing.ID))
}

func TestPipeline_SelfBidAlwaysRejected(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	listing := seedListing(t, p.store, base.Add(time.Hour))

	_, err := p.gateway.SubmitBid(ctx, listing.ID, testSeller, 500)
	require.ErrorIs(t, err, domain.ErrSelfBid)

	// A job that bypassed the gateway is still refused by the processor.
	err = p.processor.Process(ctx, &domain.BidJob{ID: "bid-self", ProductID: listing.ID, BidderID: testSeller, Amount: 500, Timestamp: base})
	require.ErrorIs(t, err, domain.ErrSelfBid)
	require.Equal(t, uint64(1), p.processor.Stats().Dropped)

	count, err := p.store.CountBids(ctx, listing.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestPipeline_StaleLowBidDroppedAtProcessing(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	listing := seedListing(t, p.store, base.Add(time.Hour))

	// Both pass admission against the empty listing; the second no longer
	// clears the minimum once the first is applied.
	_, err := p.gateway.SubmitBid(ctx, listing.ID, 2, 300)
	require.NoError(t, err)
	_, err = p.gateway.SubmitBid(ctx, listing.ID, 3, 305)
	require.NoError(t, err)
	p.drain(t)

	require.Equal(t, 300.0, currentBid(t, p.store, listing.ID))
	stats := p.processor.Stats()
	require.Equal(t, uint64(1), stats.Applied)
	require.Equal(t, uint64(1), stats.Dropped)
}

func TestPipeline_DoubleAcceptCreatesOneTransaction(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	listing := seedListing(t, p.store, base.Add(time.Hour))

	_, err := p.gateway.SubmitBid(ctx, listing.ID, 2, 150)
	require.NoError(t, err)
	_, err = p.gateway.SubmitBid(ctx, listing.ID, 3, 180)
	require.NoError(t, err)
	p.drain(t)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.gateway.SubmitAcceptBid(ctx, listing.ID, testSeller)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 2, p.queue.Len())

	job, err := p.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, p.processor.Process(ctx, job))
	job, err = p.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, p.processor.Process(ctx, job), domain.ErrAlreadyClosed)

	txs := p.store.Transactions(listing.ID)
	require.Len(t, txs, 1)
	require.Equal(t, int64(3), txs[0].BuyerID)
	require.Equal(t, 180.0, txs[0].Amount)
	require.Equal(t, domain.TransactionPending, txs[0].Status)

	msgs := p.store.Messages(listing.ID)
	require.Len(t, msgs, 1)
	require.Equal(t, testSeller, msgs[0].SenderID)
	require.Equal(t, int64(3), msgs[0].ReceiverID)

	product, err := p.store.GetProduct(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProductSold, product.Status)
	require.Len(t, p.notifier.ofType(domain.EventAccepted), 1)

	// Admission now refuses further accepts outright.
	_, err = p.gateway.SubmitAcceptBid(ctx, listing.ID, testSeller)
	require.ErrorIs(t, err, domain.ErrProductUnavailable)
}

func TestGateway_AcceptGuards(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	listing := seedListing(t, p.store, base.Add(time.Hour))

	_, err := p.gateway.SubmitAcceptBid(ctx, listing.ID, testSeller)
	require.ErrorIs(t, err, domain.ErrNoBids)

	_, err = p.gateway.SubmitAcceptBid(ctx, listing.ID, 9)
	require.ErrorIs(t, err, domain.ErrNotSeller)

	_, err = p.gateway.SubmitAcceptBid(ctx, 999, testSeller)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestGateway_RejectsBidsInsideEndBuffer(t *testing.T) {
	p := newPipeline(t)
	listing := seedListing(t, p.store, base.Add(time.Second))

	_, err := p.gateway.SubmitBid(context.Background(), listing.ID, 2, 150)
	require.ErrorIs(t, err, domain.ErrAuctionClosing)

	p.clock.Advance(time.Minute)
	_, err = p.gateway.SubmitBid(context.Background(), listing.ID, 2, 150)
	require.ErrorIs(t, err, domain.ErrAuctionEnded)
}

func TestGateway_ValidatesAgainstCachedSnapshot(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	listing := seedListing(t, p.store, base.Add(time.Hour))

	cache := newMapCache()
	snapshot := *listing
	current := 150.0
	snapshot.CurrentBid = &current
	require.NoError(t, cache.PutListing(ctx, &snapshot))

	gateway := NewBidGateway(p.store, cache, p.queue, p.writer, NewBidValidator(10, 1000000), 0, logger.NewNop())
	gateway.SetClock(p.clock.Now)

	_, err := gateway.SubmitBid(ctx, listing.ID, 2, 155)
	require.ErrorIs(t, err, domain.ErrBidTooLow)

	// A miss falls through to the store and fills the cache.
	require.NoError(t, cache.InvalidateListing(ctx, listing.ID))
	res, err := gateway.SubmitBid(ctx, listing.ID, 2, 155)
	require.NoError(t, err)
	require.True(t, res.Queued)
	_, err = cache.GetListing(ctx, listing.ID)
	require.NoError(t, err)
}

func TestGateway_FallsBackWhenQueueUnavailable(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	listing := seedListing(t, p.store, base.Add(time.Hour))

	ctrl := gomock.NewController(t)
	queue := mocks.NewMockJobQueue(ctrl)
	queue.EXPECT().Enqueue(gomock.Any(), gomock.AssignableToTypeOf(&domain.BidJob{})).
		Return(fmt.Errorf("enqueue: %w", domain.ErrQueueUnavailable))
	queue.EXPECT().Enqueue(gomock.Any(), gomock.AssignableToTypeOf(&domain.AcceptBidJob{})).
		Return(fmt.Errorf("enqueue: %w", domain.ErrQueueUnavailable))

	gateway := NewBidGateway(p.store, nil, queue, p.writer, NewBidValidator(10, 1000000), 2*time.Second, logger.NewNop())
	gateway.SetClock(p.clock.Now)

	res, err := gateway.SubmitBid(ctx, listing.ID, 2, 150)
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.False(t, res.Queued)
	require.NotZero(t, res.BidID)
	require.Equal(t, 150.0, currentBid(t, p.store, listing.ID))
	require.Len(t, p.notifier.ofType(domain.EventBid), 1)

	res, err = gateway.SubmitAcceptBid(ctx, listing.ID, testSeller)
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.NotZero(t, res.TransactionID)
	require.Len(t, p.store.Transactions(listing.ID), 1)
}

func TestGateway_OtherQueueErrorsAreReturned(t *testing.T) {
	p := newPipeline(t)
	listing := seedListing(t, p.store, base.Add(time.Hour))

	ctrl := gomock.NewController(t)
	queue := mocks.NewMockJobQueue(ctrl)
	queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded)

	gateway := NewBidGateway(p.store, nil, queue, p.writer, NewBidValidator(10, 1000000), 0, logger.NewNop())
	gateway.SetClock(p.clock.Now)

	_, err := gateway.SubmitBid(context.Background(), listing.ID, 2, 150)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	count, err := p.store.CountBids(context.Background(), listing.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

// flakyStore fails CreateBid a fixed number of times. With persist set the
// failing call still writes, as when the acknowledgement is lost.
type flakyStore struct {
	*memory.ListingStore
	mu       sync.Mutex
	failures int
	persist  bool
}

func (s *flakyStore) CreateBid(ctx context.Context, bid *domain.Bid) error {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if !fail {
		return s.ListingStore.CreateBid(ctx, bid)
	}
	if s.persist {
		if err := s.ListingStore.CreateBid(ctx, bid); err != nil {
			return err
		}
	}
	return errors.New("connection reset by peer")
}

func TestListingWriter_RetriesTransientFailures(t *testing.T) {
	mem := memory.NewListingStore()
	store := &flakyStore{ListingStore: mem, failures: 1, persist: true}
	listing := seedListing(t, mem, base.Add(time.Hour))

	writer := NewListingWriter(store, nil, &recordingNotifier{}, NewBidValidator(10, 1000000), 3, time.Millisecond, logger.NewNop())
	writer.SetClock(func() time.Time { return base })

	bid, err := writer.ApplyBid(context.Background(), &domain.BidJob{ID: "bid-retry", ProductID: listing.ID, BidderID: 2, Amount: 120})
	require.NoError(t, err)
	require.Equal(t, "bid-retry", bid.JobID)

	count, err := mem.CountBids(context.Background(), listing.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, 120.0, currentBid(t, mem, listing.ID))
}

func TestSequentialProcessor_ExhaustedRetriesCountAsFailed(t *testing.T) {
	mem := memory.NewListingStore()
	store := &flakyStore{ListingStore: mem, failures: 10}
	listing := seedListing(t, mem, base.Add(time.Hour))

	writer := NewListingWriter(store, nil, &recordingNotifier{}, NewBidValidator(10, 1000000), 2, time.Millisecond, logger.NewNop())
	writer.SetClock(func() time.Time { return base })
	processor := NewSequentialProcessor(memory.NewJobQueue(1), writer, logger.NewNop())

	err := processor.Process(context.Background(), &domain.BidJob{ID: "bid-lost", ProductID: listing.ID, BidderID: 2, Amount: 120})
	require.Error(t, err)
	require.False(t, domain.IsRejection(err))
	require.Equal(t, ProcessorStats{Failed: 1}, processor.Stats())
	require.Zero(t, currentBid(t, mem, listing.ID))
}

func TestSequentialProcessor_RunSkipsMalformedJobs(t *testing.T) {
	p := newPipeline(t)
	listing := seedListing(t, p.store, base.Add(time.Hour))

	ctrl := gomock.NewController(t)
	queue := mocks.NewMockJobQueue(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gomock.InOrder(
		queue.EXPECT().Dequeue(gomock.Any()).Return(nil, fmt.Errorf("decode: %w", domain.ErrMalformedJob)),
		queue.EXPECT().Dequeue(gomock.Any()).Return(&domain.BidJob{ID: "bid-ok", ProductID: listing.ID, BidderID: 2, Amount: 100}, nil),
		queue.EXPECT().Dequeue(gomock.Any()).DoAndReturn(func(ctx context.Context) (domain.Job, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	)

	processor := NewSequentialProcessor(queue, p.writer, logger.NewNop())
	require.NoError(t, processor.Run(ctx))
	require.Equal(t, ProcessorStats{Applied: 1, Dropped: 1}, processor.Stats())
	require.Equal(t, 100.0, currentBid(t, p.store, listing.ID))
}

func TestListingWriter_ApplyClose(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	due := seedListing(t, p.store, base.Add(-time.Minute))
	require.NoError(t, p.writer.ApplyClose(ctx, &domain.CloseListingJob{ID: "close-1", ProductID: due.ID}))
	product, err := p.store.GetProduct(ctx, due.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProductEnded, product.Status)
	require.Len(t, p.notifier.ofType(domain.EventStatusChange), 1)

	require.ErrorIs(t, p.writer.ApplyClose(ctx, &domain.CloseListingJob{ID: "close-2", ProductID: due.ID}), domain.ErrAlreadyClosed)

	open := seedListing(t, p.store, base.Add(time.Hour))
	require.ErrorIs(t, p.writer.ApplyClose(ctx, &domain.CloseListingJob{ID: "close-3", ProductID: open.ID}), domain.ErrCloseNotDue)

	withBids := seedListing(t, p.store, base.Add(time.Hour))
	_, err = p.writer.ApplyBid(ctx, &domain.BidJob{ID: "bid-1", ProductID: withBids.ID, BidderID: 2, Amount: 100})
	require.NoError(t, err)
	p.clock.Advance(2 * time.Hour)
	require.ErrorIs(t, p.writer.ApplyClose(ctx, &domain.CloseListingJob{ID: "close-4", ProductID: withBids.ID}), domain.ErrCloseNotDue)
}
