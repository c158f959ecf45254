package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

// VoidResponse is the counterparty's answer to a void request.
type VoidResponse string

const (
	VoidApprove VoidResponse = "approve"
	VoidReject  VoidResponse = "reject"
)

// OfferResponse is the second bidder's answer to an offer.
type OfferResponse string

const (
	OfferAccept  OfferResponse = "accept"
	OfferDecline OfferResponse = "decline"
)

type DisputeOptions struct {
	Cooldown        time.Duration
	RateLimit       int
	RateWindow      time.Duration
	RestartDuration time.Duration
	OfferTTL        time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
}

// DisputeService drives void requests from creation through the seller's
// remedy and the second bidder's answer. Every transition is a conditional
// write, so two racing actors cannot both move the same request, and
// transitions spanning several records commit together.
type DisputeService struct {
	store    domain.ListingStore
	cache    domain.ListingCache
	notifier Notifier
	opts     DisputeOptions
	retrier  storeRetry
	now      func() time.Time
	log      logger.Logger
}

func NewDisputeService(store domain.ListingStore, cache domain.ListingCache, notifier Notifier,
	opts DisputeOptions, log logger.Logger) *DisputeService {
	return &DisputeService{
		store:    store,
		cache:    cache,
		notifier: notifier,
		opts:     opts,
		retrier:  storeRetry{maxRetries: opts.MaxRetries, backoff: opts.RetryBackoff, log: log},
		now:      time.Now,
		log:      log,
	}
}

func (s *DisputeService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *DisputeService) getTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrTransactionNotFound
	}
	return tx, err
}

func (s *DisputeService) getVoidRequest(ctx context.Context, voidRequestID int64) (*domain.VoidRequest, *domain.Transaction, error) {
	vr, err := s.store.GetVoidRequest(ctx, voidRequestID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, domain.ErrVoidRequestNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	tx, err := s.getTransaction(ctx, vr.TransactionID)
	if err != nil {
		return nil, nil, err
	}
	return vr, tx, nil
}

func (s *DisputeService) invalidate(ctx context.Context, productID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateListing(ctx, productID); err != nil {
		s.log.Warn("Failed to invalidate listing snapshot", "product_id", productID, "error", err)
	}
}

func (s *DisputeService) CreateVoidRequest(ctx context.Context, callerID, transactionID int64, reason string) (*domain.VoidRequest, error) {
	reason = strings.TrimSpace(reason)
	if callerID <= 0 || transactionID <= 0 || reason == "" {
		return nil, domain.ErrInvalidInput
	}
	tx, err := s.getTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !tx.IsParty(callerID) {
		return nil, domain.ErrNotParty
	}
	if !tx.Status.Voidable() {
		return nil, domain.ErrNotVoidable
	}
	now := s.now()
	if now.Sub(tx.CreatedAt) < s.opts.Cooldown {
		return nil, domain.ErrVoidCooldown
	}

	pending, err := s.store.HasPendingVoidRequest(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, domain.ErrPendingVoidExists
	}
	recent, err := s.store.CountVoidRequestsSince(ctx, callerID, now.Add(-s.opts.RateWindow))
	if err != nil {
		return nil, err
	}
	if recent >= s.opts.RateLimit {
		return nil, domain.ErrVoidRateLimited
	}

	role := domain.RoleBuyer
	if callerID == tx.SellerID {
		role = domain.RoleSeller
	}
	vr := &domain.VoidRequest{
		TransactionID: tx.ID,
		ProductID:     tx.ProductID,
		InitiatorID:   callerID,
		InitiatorRole: role,
		Reason:        reason,
		Status:        domain.VoidPending,
		CreatedAt:     now,
	}
	err = s.retrier.do(ctx, "create_void_request", func() error {
		return s.store.CreateVoidRequest(ctx, vr)
	})
	if errors.Is(err, domain.ErrConflict) {
		return nil, domain.ErrPendingVoidExists
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("Void request created", "void_request_id", vr.ID, "transaction_id", tx.ID, "initiator_role", role)
	s.notifier.NotifyUser(tx.Counterparty(callerID), domain.NewEvent(domain.EventVoidRequest, map[string]interface{}{
		"voidRequestId": vr.ID,
		"transactionId": tx.ID,
		"productId":     tx.ProductID,
		"initiatorId":   callerID,
		"initiatorRole": string(role),
		"reason":        reason,
	}))
	return vr, nil
}

func (s *DisputeService) RespondToVoidRequest(ctx context.Context, callerID, voidRequestID int64, response VoidResponse, rejectionReason string) (*domain.VoidRequest, error) {
	if response != VoidApprove && response != VoidReject {
		return nil, domain.ErrInvalidAction
	}
	vr, tx, err := s.getVoidRequest(ctx, voidRequestID)
	if err != nil {
		return nil, err
	}
	if !tx.IsParty(callerID) {
		return nil, domain.ErrNotParty
	}
	if callerID == vr.InitiatorID {
		return nil, domain.ErrOwnVoidRequest
	}
	if vr.Status != domain.VoidPending {
		return nil, domain.ErrAlreadyResolved
	}

	now := s.now()
	rejectionReason = strings.TrimSpace(rejectionReason)
	status := domain.VoidRejected
	if response == VoidApprove {
		status = domain.VoidApproved
		err = s.retrier.do(ctx, "approve_void_request", func() error {
			return s.store.ApproveVoidRequest(ctx, vr.ID, tx.ID, now)
		})
	} else {
		err = s.retrier.do(ctx, "reject_void_request", func() error {
			return s.store.ResolveVoidRequest(ctx, vr.ID, status, rejectionReason, now)
		})
	}
	if errors.Is(err, domain.ErrConflict) {
		return nil, domain.ErrAlreadyResolved
	}
	if err != nil {
		return nil, err
	}

	if status == domain.VoidApproved {
		s.notifier.NotifyUser(vr.InitiatorID, domain.NewEvent(domain.EventVoidApproved, map[string]interface{}{
			"voidRequestId": vr.ID,
			"transactionId": tx.ID,
			"productId":     vr.ProductID,
		}))
		s.notifier.BroadcastToProduct(vr.ProductID, domain.NewEvent(domain.EventStatusChange, map[string]interface{}{
			"productId":         vr.ProductID,
			"transactionId":     tx.ID,
			"transactionStatus": string(domain.TransactionVoided),
		}))
	} else {
		s.notifier.NotifyUser(vr.InitiatorID, domain.NewEvent(domain.EventVoidRejected, map[string]interface{}{
			"voidRequestId":   vr.ID,
			"transactionId":   tx.ID,
			"productId":       vr.ProductID,
			"rejectionReason": rejectionReason,
		}))
	}

	s.log.Info("Void request resolved", "void_request_id", vr.ID, "status", status)
	return s.store.GetVoidRequest(ctx, vr.ID)
}

func (s *DisputeService) SubmitSellerChoice(ctx context.Context, callerID, voidRequestID int64, choice domain.SellerChoice) (*domain.VoidRequest, error) {
	if !choice.Valid() {
		return nil, domain.ErrInvalidAction
	}
	vr, tx, err := s.getVoidRequest(ctx, voidRequestID)
	if err != nil {
		return nil, err
	}
	if vr.Status != domain.VoidApproved {
		return nil, domain.ErrNotApproved
	}
	if vr.SellerChoice != domain.ChoiceNone {
		return nil, domain.ErrChoiceAlreadyMade
	}
	if callerID != tx.SellerID {
		return nil, domain.ErrOnlySellerChooses
	}

	if choice == domain.ChoiceRestartBidding {
		err = s.restartBidding(ctx, vr)
	} else {
		err = s.offerSecondBidder(ctx, vr, tx)
	}
	if err != nil {
		return nil, err
	}
	return s.store.GetVoidRequest(ctx, vr.ID)
}

func (s *DisputeService) restartBidding(ctx context.Context, vr *domain.VoidRequest) error {
	endDate := s.now().Add(s.opts.RestartDuration)
	err := s.retrier.do(ctx, "restart_listing", func() error {
		return s.store.RestartListing(ctx, vr.ID, vr.ProductID, endDate)
	})
	if errors.Is(err, domain.ErrConflict) {
		return domain.ErrChoiceAlreadyMade
	}
	if err != nil {
		return fmt.Errorf("restart listing: %w", err)
	}
	s.invalidate(ctx, vr.ProductID)

	bidders, err := s.store.ListBidders(ctx, vr.ProductID)
	if err != nil {
		s.log.Error("Failed to list bidders for restart notice", "product_id", vr.ProductID, "error", err)
	}
	for _, bidderID := range bidders {
		s.notifier.NotifyUser(bidderID, domain.NewEvent(domain.EventAuctionRestarted, map[string]interface{}{
			"voidRequestId":  vr.ID,
			"productId":      vr.ProductID,
			"auctionEndDate": endDate.UnixMilli(),
		}))
	}
	s.notifier.BroadcastToProduct(vr.ProductID, domain.NewEvent(domain.EventStatusChange, map[string]interface{}{
		"productId":      vr.ProductID,
		"status":         string(domain.ProductAvailable),
		"auctionEndDate": endDate.UnixMilli(),
	}))

	s.log.Info("Auction restarted", "void_request_id", vr.ID, "product_id", vr.ProductID, "notified_bidders", len(bidders))
	return nil
}

// offerSecondBidder offers the listing to the best bidder other than the
// voided buyer. At least two bids must exist.
func (s *DisputeService) offerSecondBidder(ctx context.Context, vr *domain.VoidRequest, tx *domain.Transaction) error {
	count, err := s.store.CountBids(ctx, vr.ProductID)
	if err != nil {
		return err
	}
	if count < 2 {
		return &domain.NoSecondBidderError{OnlyOption: domain.ChoiceRestartBidding}
	}
	second, err := s.store.HighestBidExcluding(ctx, vr.ProductID, tx.BuyerID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.NoSecondBidderError{OnlyOption: domain.ChoiceRestartBidding}
	}
	if err != nil {
		return err
	}

	offer := &domain.SecondBidderOffer{
		OfferedTo:   second.BidderID,
		OfferAmount: second.Amount,
		OfferStatus: domain.OfferPending,
		OfferedAt:   s.now(),
	}
	err = s.retrier.do(ctx, "offer_second_bidder", func() error {
		return s.store.SetSellerChoice(ctx, vr.ID, domain.ChoiceOfferSecondBidder, offer)
	})
	if errors.Is(err, domain.ErrConflict) {
		return domain.ErrChoiceAlreadyMade
	}
	if err != nil {
		return err
	}

	s.notifier.NotifyUser(second.BidderID, domain.NewEvent(domain.EventSecondBidderOffer, map[string]interface{}{
		"voidRequestId": vr.ID,
		"productId":     vr.ProductID,
		"offerAmount":   second.Amount,
		"senderId":      tx.SellerID,
	}))
	s.log.Info("Offered listing to second bidder", "void_request_id", vr.ID, "bidder_id", second.BidderID, "amount", second.Amount)
	return nil
}

func (s *DisputeService) RespondAsSecondBidder(ctx context.Context, callerID, voidRequestID int64, response OfferResponse) (*domain.VoidRequest, error) {
	if response != OfferAccept && response != OfferDecline {
		return nil, domain.ErrInvalidAction
	}
	vr, tx, err := s.getVoidRequest(ctx, voidRequestID)
	if err != nil {
		return nil, err
	}
	if vr.SellerChoice != domain.ChoiceOfferSecondBidder || vr.SecondBidderOffer == nil {
		return nil, domain.ErrNoOffer
	}
	offer := vr.SecondBidderOffer
	if offer.OfferStatus != domain.OfferPending {
		return nil, domain.ErrOfferNotPending
	}
	if callerID != offer.OfferedTo {
		return nil, domain.ErrNotOfferee
	}

	now := s.now()
	status := domain.OfferAccepted
	if response == OfferAccept {
		err = s.completeSecondBidderSale(ctx, vr, tx, offer, now)
	} else {
		status = domain.OfferDeclined
		err = s.retrier.do(ctx, "decline_offer", func() error {
			return s.store.RespondToOffer(ctx, vr.ID, status, now)
		})
	}
	if errors.Is(err, domain.ErrConflict) {
		return nil, domain.ErrOfferNotPending
	}
	if err != nil {
		return nil, err
	}

	if status == domain.OfferDeclined {
		s.notifier.NotifyUser(tx.SellerID, domain.NewEvent(domain.EventSecondBidderDeclined, map[string]interface{}{
			"voidRequestId": vr.ID,
			"productId":     vr.ProductID,
			"senderId":      callerID,
			"suggestion":    string(domain.ChoiceRestartBidding),
		}))
	}

	s.log.Info("Second bidder responded", "void_request_id", vr.ID, "offer_status", status)
	return s.store.GetVoidRequest(ctx, vr.ID)
}

// completeSecondBidderSale settles the offer and records the new sale in one
// step. The listing is still sold from the voided transaction.
func (s *DisputeService) completeSecondBidderSale(ctx context.Context, vr *domain.VoidRequest, tx *domain.Transaction, offer *domain.SecondBidderOffer, now time.Time) error {
	sale := &domain.Transaction{
		ProductID: vr.ProductID,
		SellerID:  tx.SellerID,
		BuyerID:   offer.OfferedTo,
		Amount:    offer.OfferAmount,
		Status:    domain.TransactionPending,
		Notes:     "Transaction created after void - offer to 2nd bidder accepted",
	}
	err := s.retrier.do(ctx, "accept_offer", func() error {
		return s.store.AcceptOffer(ctx, vr.ID, now, sale)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, vr.ProductID)

	msg := &domain.Message{
		ProductID:  vr.ProductID,
		SenderID:   tx.SellerID,
		ReceiverID: offer.OfferedTo,
		Body:       fmt.Sprintf("Congratulations! Your offer of %.2f has been accepted. Let's discuss the next steps.", offer.OfferAmount),
	}
	err = s.retrier.do(ctx, "create_message", func() error {
		return s.store.CreateMessage(ctx, msg)
	})
	if err != nil {
		s.log.Error("Failed to create contact message", "product_id", vr.ProductID, "buyer_id", offer.OfferedTo, "error", err)
	}

	s.notifier.NotifyUser(tx.SellerID, domain.NewEvent(domain.EventSecondBidderAccepted, map[string]interface{}{
		"voidRequestId": vr.ID,
		"productId":     vr.ProductID,
		"senderId":      offer.OfferedTo,
		"transactionId": sale.ID,
	}))
	s.notifier.BroadcastToProduct(vr.ProductID, domain.NewEvent(domain.EventStatusChange, map[string]interface{}{
		"productId":     vr.ProductID,
		"status":        string(domain.ProductSold),
		"buyerId":       offer.OfferedTo,
		"amount":        offer.OfferAmount,
		"transactionId": sale.ID,
	}))
	return nil
}

// GetVoidRequestsForTransaction lists a transaction's void requests, newest
// first. Only the parties may read them.
func (s *DisputeService) GetVoidRequestsForTransaction(ctx context.Context, callerID, transactionID int64) ([]*domain.VoidRequest, error) {
	tx, err := s.getTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !tx.IsParty(callerID) {
		return nil, domain.ErrNotParty
	}
	return s.store.ListVoidRequests(ctx, transactionID)
}

// ExpireStaleOffers marks second-bidder offers left unanswered past the offer
// TTL as expired and tells the seller. It returns how many expired.
func (s *DisputeService) ExpireStaleOffers(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.store.ListPendingOffers(ctx, now.Add(-s.opts.OfferTTL))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, vr := range stale {
		err := s.retrier.do(ctx, "expire_offer", func() error {
			return s.store.RespondToOffer(ctx, vr.ID, domain.OfferExpired, now)
		})
		if err != nil {
			if !errors.Is(err, domain.ErrConflict) {
				s.log.Error("Failed to expire offer", "void_request_id", vr.ID, "error", err)
			}
			continue
		}
		expired++

		tx, err := s.getTransaction(ctx, vr.TransactionID)
		if err != nil {
			s.log.Warn("Expired offer without transaction", "void_request_id", vr.ID, "error", err)
			continue
		}
		event := domain.NewEvent(domain.EventOfferExpired, map[string]interface{}{
			"voidRequestId": vr.ID,
			"productId":     vr.ProductID,
			"suggestion":    string(domain.ChoiceRestartBidding),
		})
		s.notifier.NotifyUser(tx.SellerID, event)
		s.notifier.NotifyUser(vr.SecondBidderOffer.OfferedTo, event)
	}

	if expired > 0 {
		s.log.Info("Expired stale second-bidder offers", "count", expired)
	}
	return expired, nil
}
