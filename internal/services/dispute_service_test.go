package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/infrastructure/memory"
	"auction-marketplace/pkg/logger"
)

const (
	testBuyer  int64 = 2
	testSecond int64 = 3
	testThird  int64 = 4
)

var testDisputeOptions = DisputeOptions{
	Cooldown:        time.Hour,
	RateLimit:       5,
	RateWindow:      24 * time.Hour,
	RestartDuration: 24 * time.Hour,
	OfferTTL:        48 * time.Hour,
	MaxRetries:      2,
	RetryBackoff:    time.Millisecond,
}

type placedBid struct {
	bidder int64
	amount float64
}

type disputeFixture struct {
	store    *memory.ListingStore
	cache    *mapCache
	notifier *recordingNotifier
	clock    *fakeClock
	svc      *DisputeService
	product  *domain.Product
	tx       *domain.Transaction
}

// newDisputeFixture builds a listing sold to testBuyer at the first bid's
// amount, with the transaction created at base.
func newDisputeFixture(t *testing.T, bids ...placedBid) *disputeFixture {
	t.Helper()
	if len(bids) == 0 {
		bids = []placedBid{{testBuyer, 300}, {testSecond, 250}, {testThird, 200}}
	}
	ctx := context.Background()
	clock := newFakeClock(base)
	store := memory.NewListingStore()
	store.SetClock(clock.Now)

	product := seedListing(t, store, base.Add(-time.Minute))
	for _, b := range bids {
		require.NoError(t, store.CreateBid(ctx, &domain.Bid{ProductID: product.ID, BidderID: b.bidder, Amount: b.amount}))
	}
	require.NoError(t, store.UpdateCurrentBid(ctx, product.ID, bids[0].amount))
	require.NoError(t, store.UpdateProductStatus(ctx, product.ID, domain.ProductAvailable, domain.ProductSold))

	tx := &domain.Transaction{
		ProductID: product.ID,
		SellerID:  testSeller,
		BuyerID:   testBuyer,
		Amount:    bids[0].amount,
		Status:    domain.TransactionPending,
		CreatedAt: base,
	}
	require.NoError(t, store.CreateTransaction(ctx, tx))

	cache := newMapCache()
	require.NoError(t, cache.PutListing(ctx, product))

	notifier := &recordingNotifier{}
	svc := NewDisputeService(store, cache, notifier, testDisputeOptions, logger.NewNop())
	svc.SetClock(clock.Now)

	return &disputeFixture{
		store:    store,
		cache:    cache,
		notifier: notifier,
		clock:    clock,
		svc:      svc,
		product:  product,
		tx:       tx,
	}
}

// approvedVoid has the buyer open a void request after the cooldown and the
// seller approve it.
func (f *disputeFixture) approvedVoid(t *testing.T) *domain.VoidRequest {
	t.Helper()
	ctx := context.Background()
	f.clock.Advance(61 * time.Minute)
	vr, err := f.svc.CreateVoidRequest(ctx, testBuyer, f.tx.ID, "item never shipped")
	require.NoError(t, err)
	vr, err = f.svc.RespondToVoidRequest(ctx, testSeller, vr.ID, VoidApprove, "")
	require.NoError(t, err)
	return vr
}

func TestDisputeService_CreateRespectsCooldown(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	f.clock.Advance(10 * time.Minute)
	_, err := f.svc.CreateVoidRequest(ctx, testBuyer, f.tx.ID, "changed my mind")
	require.ErrorIs(t, err, domain.ErrVoidCooldown)

	f.clock.Advance(51 * time.Minute)
	vr, err := f.svc.CreateVoidRequest(ctx, testBuyer, f.tx.ID, "changed my mind")
	require.NoError(t, err)
	require.Equal(t, domain.VoidPending, vr.Status)
	require.Equal(t, domain.RoleBuyer, vr.InitiatorRole)
	require.Equal(t, f.product.ID, vr.ProductID)

	events := f.notifier.ofType(domain.EventVoidRequest)
	require.Equal(t, []string{domain.UserChannel(testSeller)}, channels(events))
}

func TestDisputeService_CreateGuards(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.clock.Advance(2 * time.Hour)

	_, err := f.svc.CreateVoidRequest(ctx, testBuyer, f.tx.ID, "   ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.CreateVoidRequest(ctx, testBuyer, 999, "reason")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = f.svc.CreateVoidRequest(ctx, testSecond, f.tx.ID, "reason")
	require.ErrorIs(t, err, domain.ErrNotParty)

	vr, err := f.svc.CreateVoidRequest(ctx, testSeller, f.tx.ID, "buyer unresponsive")
	require.NoError(t, err)
	require.Equal(t, domain.RoleSeller, vr.InitiatorRole)

	_, err = f.svc.CreateVoidRequest(ctx, testBuyer, f.tx.ID, "second attempt")
	require.ErrorIs(t, err, domain.ErrPendingVoidExists)

	require.NoError(t, f.store.UpdateTransactionStatus(ctx, f.tx.ID, domain.TransactionCompleted))
	_, err = f.svc.CreateVoidRequest(ctx, testBuyer, f.tx.ID, "too late")
	require.ErrorIs(t, err, domain.ErrNotVoidable)
}

func TestDisputeService_CreateIsRateLimited(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	opts := testDisputeOptions
	opts.RateLimit = 2
	svc := NewDisputeService(f.store, nil, f.notifier, opts, logger.NewNop())
	svc.SetClock(f.clock.Now)

	txIDs := []int64{f.tx.ID}
	for i := 0; i < 2; i++ {
		tx := &domain.Transaction{ProductID: f.product.ID, SellerID: testSeller, BuyerID: testBuyer, Amount: 10, Status: domain.TransactionPending, CreatedAt: base}
		require.NoError(t, f.store.CreateTransaction(ctx, tx))
		txIDs = append(txIDs, tx.ID)
	}
	f.clock.Advance(2 * time.Hour)

	_, err := svc.CreateVoidRequest(ctx, testBuyer, txIDs[0], "one")
	require.NoError(t, err)
	_, err = svc.CreateVoidRequest(ctx, testBuyer, txIDs[1], "two")
	require.NoError(t, err)
	_, err = svc.CreateVoidRequest(ctx, testBuyer, txIDs[2], "three")
	require.ErrorIs(t, err, domain.ErrVoidRateLimited)

	// The window rolls.
	f.clock.Advance(25 * time.Hour)
	_, err = svc.CreateVoidRequest(ctx, testBuyer, txIDs[2], "three")
	require.NoError(t, err)
}

func TestDisputeService_ApproveVoidsTransaction(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.clock.Advance(2 * time.Hour)

	vr, err := f.svc.CreateVoidRequest(ctx, testBuyer, f.tx.ID, "damaged")
	require.NoError(t, err)

	_, err = f.svc.RespondToVoidRequest(ctx, testBuyer, vr.ID, VoidApprove, "")
	require.ErrorIs(t, err, domain.ErrOwnVoidRequest)
	_, err = f.svc.RespondToVoidRequest(ctx, testThird, vr.ID, VoidApprove, "")
	require.ErrorIs(t, err, domain.ErrNotParty)
	_, err = f.svc.RespondToVoidRequest(ctx, testSeller, vr.ID, "maybe", "")
	require.ErrorIs(t, err, domain.ErrInvalidAction)
	_, err = f.svc.RespondToVoidRequest(ctx, testSeller, 999, VoidApprove, "")
	require.ErrorIs(t, err, domain.ErrVoidRequestNotFound)

	approved, err := f.svc.RespondToVoidRequest(ctx, testSeller, vr.ID, VoidApprove, "")
	require.NoError(t, err)
	require.Equal(t, domain.VoidApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	require.Equal(t, f.clock.Now(), *approved.ApprovedAt)

	tx, err := f.store.GetTransaction(ctx, f.tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionVoided, tx.Status)
	require.Equal(t, []string{domain.UserChannel(testBuyer)}, channels(f.notifier.ofType(domain.EventVoidApproved)))

	_, err = f.svc.RespondToVoidRequest(ctx, testSeller, vr.ID, VoidReject, "no")
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestDisputeService_RejectKeepsTransaction(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.clock.Advance(2 * time.Hour)

	vr, err := f.svc.CreateVoidRequest(ctx, testBuyer, f.tx.ID, "damaged")
	require.NoError(t, err)
	rejected, err := f.svc.RespondToVoidRequest(ctx, testSeller, vr.ID, VoidReject, "photos show it intact")
	require.NoError(t, err)
	require.Equal(t, domain.VoidRejected, rejected.Status)
	require.Equal(t, "photos show it intact", rejected.RejectionReason)
	require.Nil(t, rejected.ApprovedAt)

	tx, err := f.store.GetTransaction(ctx, f.tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionPending, tx.Status)

	events := f.notifier.ofType(domain.EventVoidRejected)
	require.Len(t, events, 1)
	require.Equal(t, "photos show it intact", events[0].event.Payload["rejectionReason"])

	_, err = f.svc.SubmitSellerChoice(ctx, testSeller, vr.ID, domain.ChoiceRestartBidding)
	require.ErrorIs(t, err, domain.ErrNotApproved)
}

func TestDisputeService_RestartBidding(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	vr := f.approvedVoid(t)
	approvedAt := *vr.ApprovedAt

	_, err := f.svc.SubmitSellerChoice(ctx, testBuyer, vr.ID, domain.ChoiceRestartBidding)
	require.ErrorIs(t, err, domain.ErrOnlySellerChooses)
	_, err = f.svc.SubmitSellerChoice(ctx, testSeller, vr.ID, "sell_to_friend")
	require.ErrorIs(t, err, domain.ErrInvalidAction)

	f.clock.Advance(time.Minute)
	updated, err := f.svc.SubmitSellerChoice(ctx, testSeller, vr.ID, domain.ChoiceRestartBidding)
	require.NoError(t, err)
	require.Equal(t, domain.ChoiceRestartBidding, updated.SellerChoice)
	require.Nil(t, updated.SecondBidderOffer)

	product, err := f.store.GetProduct(ctx, f.product.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProductAvailable, product.Status)
	require.True(t, product.AuctionEndDate.After(approvedAt))
	require.Equal(t, f.clock.Now().Add(24*time.Hour), product.AuctionEndDate)
	require.Equal(t, 300.0, product.CurrentBidValue())

	_, err = f.cache.GetListing(ctx, f.product.ID)
	require.ErrorIs(t, err, domain.ErrCacheMiss)

	require.Equal(t,
		[]string{domain.UserChannel(testBuyer), domain.UserChannel(testSecond), domain.UserChannel(testThird)},
		channels(f.notifier.ofType(domain.EventAuctionRestarted)))
	require.Contains(t, channels(f.notifier.ofType(domain.EventStatusChange)), domain.ProductChannel(f.product.ID))

	_, err = f.svc.SubmitSellerChoice(ctx, testSeller, vr.ID, domain.ChoiceOfferSecondBidder)
	require.ErrorIs(t, err, domain.ErrChoiceAlreadyMade)
}

func TestDisputeService_OfferSecondBidderAccepted(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	vr := f.approvedVoid(t)

	updated, err := f.svc.SubmitSellerChoice(ctx, testSeller, vr.ID, domain.ChoiceOfferSecondBidder)
	require.NoError(t, err)
	require.Equal(t, domain.ChoiceOfferSecondBidder, updated.SellerChoice)
	require.NotNil(t, updated.SecondBidderOffer)
	require.Equal(t, testSecond, updated.SecondBidderOffer.OfferedTo)
	require.Equal(t, 250.0, updated.SecondBidderOffer.OfferAmount)
	require.Equal(t, domain.OfferPending, updated.SecondBidderOffer.OfferStatus)
	require.Equal(t, []string{domain.UserChannel(testSecond)}, channels(f.notifier.ofType(domain.EventSecondBidderOffer)))

	_, err = f.svc.RespondAsSecondBidder(ctx, testThird, vr.ID, OfferAccept)
	require.ErrorIs(t, err, domain.ErrNotOfferee)
	_, err = f.svc.RespondAsSecondBidder(ctx, testSecond, vr.ID, "later")
	require.ErrorIs(t, err, domain.ErrInvalidAction)

	accepted, err := f.svc.RespondAsSecondBidder(ctx, testSecond, vr.ID, OfferAccept)
	require.NoError(t, err)
	require.Equal(t, domain.OfferAccepted, accepted.SecondBidderOffer.OfferStatus)
	require.NotNil(t, accepted.SecondBidderOffer.RespondedAt)

	product, err := f.store.GetProduct(ctx, f.product.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProductSold, product.Status)

	txs := f.store.Transactions(f.product.ID)
	require.Len(t, txs, 2)
	require.Equal(t, testSecond, txs[1].BuyerID)
	require.Equal(t, 250.0, txs[1].Amount)
	require.Equal(t, domain.TransactionPending, txs[1].Status)
	require.NotEmpty(t, txs[1].Notes)

	msgs := f.store.Messages(f.product.ID)
	require.Len(t, msgs, 1)
	require.Equal(t, testSecond, msgs[0].ReceiverID)

	require.Equal(t, []string{domain.UserChannel(testSeller)}, channels(f.notifier.ofType(domain.EventSecondBidderAccepted)))

	_, err = f.svc.RespondAsSecondBidder(ctx, testSecond, vr.ID, OfferDecline)
	require.ErrorIs(t, err, domain.ErrOfferNotPending)
}

func TestDisputeService_OfferSecondBidderDeclined(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	vr := f.approvedVoid(t)

	_, err := f.svc.RespondAsSecondBidder(ctx, testSecond, vr.ID, OfferAccept)
	require.ErrorIs(t, err, domain.ErrNoOffer)

	_, err = f.svc.SubmitSellerChoice(ctx, testSeller, vr.ID, domain.ChoiceOfferSecondBidder)
	require.NoError(t, err)

	declined, err := f.svc.RespondAsSecondBidder(ctx, testSecond, vr.ID, OfferDecline)
	require.NoError(t, err)
	require.Equal(t, domain.OfferDeclined, declined.SecondBidderOffer.OfferStatus)
	require.Len(t, f.store.Transactions(f.product.ID), 1)

	events := f.notifier.ofType(domain.EventSecondBidderDeclined)
	require.Len(t, events, 1)
	require.Equal(t, domain.UserChannel(testSeller), events[0].channel)
	require.Equal(t, string(domain.ChoiceRestartBidding), events[0].event.Payload["suggestion"])
}

func TestDisputeService_OfferSecondBidderNeedsTwoBids(t *testing.T) {
	tests := []struct {
		name string
		bids []placedBid
	}{
		{name: "single bid", bids: []placedBid{{testBuyer, 300}}},
		{name: "only the voided buyer bid", bids: []placedBid{{testBuyer, 300}, {testBuyer, 200}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDisputeFixture(t, tt.bids...)
			ctx := context.Background()
			vr := f.approvedVoid(t)

			_, err := f.svc.SubmitSellerChoice(ctx, testSeller, vr.ID, domain.ChoiceOfferSecondBidder)
			var noSecond *domain.NoSecondBidderError
			require.ErrorAs(t, err, &noSecond)
			require.Equal(t, domain.ChoiceRestartBidding, noSecond.OnlyOption)
			require.ErrorIs(t, err, domain.ErrNoSecondBidder)

			// The rejected choice leaves the remedy open.
			_, err = f.svc.SubmitSellerChoice(ctx, testSeller, vr.ID, domain.ChoiceRestartBidding)
			require.NoError(t, err)
		})
	}
}

func TestDisputeService_ExpireStaleOffers(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	vr := f.approvedVoid(t)
	_, err := f.svc.SubmitSellerChoice(ctx, testSeller, vr.ID, domain.ChoiceOfferSecondBidder)
	require.NoError(t, err)

	f.clock.Advance(47 * time.Hour)
	n, err := f.svc.ExpireStaleOffers(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	f.clock.Advance(2 * time.Hour)
	n, err = f.svc.ExpireStaleOffers(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stored, err := f.store.GetVoidRequest(ctx, vr.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OfferExpired, stored.SecondBidderOffer.OfferStatus)
	require.ElementsMatch(t,
		[]string{domain.UserChannel(testSeller), domain.UserChannel(testSecond)},
		channels(f.notifier.ofType(domain.EventOfferExpired)))

	_, err = f.svc.RespondAsSecondBidder(ctx, testSecond, vr.ID, OfferAccept)
	require.ErrorIs(t, err, domain.ErrOfferNotPending)

	n, err = f.svc.ExpireStaleOffers(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDisputeService_GetVoidRequestsForTransaction(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.clock.Advance(2 * time.Hour)

	first, err := f.svc.CreateVoidRequest(ctx, testBuyer, f.tx.ID, "late")
	require.NoError(t, err)
	_, err = f.svc.RespondToVoidRequest(ctx, testSeller, first.ID, VoidReject, "it shipped")
	require.NoError(t, err)
	second, err := f.svc.CreateVoidRequest(ctx, testBuyer, f.tx.ID, "still late")
	require.NoError(t, err)

	list, err := f.svc.GetVoidRequestsForTransaction(ctx, testSeller, f.tx.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)

	_, err = f.svc.GetVoidRequestsForTransaction(ctx, testThird, f.tx.ID)
	require.ErrorIs(t, err, domain.ErrNotParty)
}
