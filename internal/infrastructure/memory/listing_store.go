package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-marketplace/internal/domain"
)

// ListingStore is a concurrency-safe in-memory domain.ListingStore. Records
// are copied on the way in and out so callers never share state with it.
type ListingStore struct {
	mu           sync.RWMutex
	nextID       int64
	products     map[int64]*domain.Product
	bids         map[int64][]*domain.Bid // productID -> bids in insertion order
	bidsByJob    map[string]*domain.Bid
	transactions map[int64]*domain.Transaction
	voidRequests map[int64]*domain.VoidRequest
	messages     []*domain.Message
	now          func() time.Time
}

func NewListingStore() *ListingStore {
	return &ListingStore{
		products:     make(map[int64]*domain.Product),
		bids:         make(map[int64][]*domain.Bid),
		bidsByJob:    make(map[string]*domain.Bid),
		transactions: make(map[int64]*domain.Transaction),
		voidRequests: make(map[int64]*domain.VoidRequest),
		now:          time.Now,
	}
}

// SetClock overrides the time source used for created/updated stamps.
func (s *ListingStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *ListingStore) id() int64 {
	s.nextID++
	return s.nextID
}

// Products

func (s *ListingStore) CreateProduct(ctx context.Context, product *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == 0 {
		product.ID = s.id()
	} else if product.ID > s.nextID {
		s.nextID = product.ID
	}
	now := s.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = copyProduct(product)
	return nil
}

func (s *ListingStore) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("get product %d: %w", productID, domain.ErrNotFound)
	}
	return copyProduct(p), nil
}

func (s *ListingStore) UpdateCurrentBid(ctx context.Context, productID int64, amount float64) error {
	return s.updateProduct(productID, func(p *domain.Product) bool {
		if p.Status != domain.ProductAvailable || (p.CurrentBid != nil && *p.CurrentBid >= amount) {
			return false
		}
		v := amount
		p.CurrentBid = &v
		return true
	})
}

func (s *ListingStore) UpdateProductStatus(ctx context.Context, productID int64, from, to domain.ProductStatus) error {
	return s.updateProduct(productID, func(p *domain.Product) bool {
		if p.Status != from {
			return false
		}
		p.Status = to
		return true
	})
}

// updateProduct applies mutate when its guard holds. Callers hold no lock.
func (s *ListingStore) updateProduct(productID int64, mutate func(p *domain.Product) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateProductLocked(productID, mutate)
}

func (s *ListingStore) updateProductLocked(productID int64, mutate func(p *domain.Product) bool) error {
	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("update product %d: %w", productID, domain.ErrNotFound)
	}
	if !mutate(p) {
		return fmt.Errorf("update product %d: %w", productID, domain.ErrConflict)
	}
	p.UpdatedAt = s.now()
	return nil
}

func (s *ListingStore) ListExpiredListings(ctx context.Context, now time.Time, limit int) ([]*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Product
	for _, p := range s.products {
		if p.Status == domain.ProductAvailable && !p.AuctionEndDate.After(now) {
			out = append(out, copyProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuctionEndDate.Before(out[j].AuctionEndDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Bids

func (s *ListingStore) CreateBid(ctx context.Context, bid *domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[bid.ProductID]; !ok {
		return fmt.Errorf("create bid for product %d: %w", bid.ProductID, domain.ErrNotFound)
	}
	if bid.JobID != "" {
		if _, dup := s.bidsByJob[bid.JobID]; dup {
			return fmt.Errorf("create bid for job %s: %w", bid.JobID, domain.ErrConflict)
		}
	}
	bid.ID = s.id()
	if bid.BidTime.IsZero() {
		bid.BidTime = s.now()
	}
	stored := *bid
	s.bids[bid.ProductID] = append(s.bids[bid.ProductID], &stored)
	if bid.JobID != "" {
		s.bidsByJob[bid.JobID] = &stored
	}
	return nil
}

func (s *ListingStore) GetBidByJobID(ctx context.Context, jobID string) (*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bidsByJob[jobID]
	if !ok {
		return nil, fmt.Errorf("get bid for job %s: %w", jobID, domain.ErrNotFound)
	}
	out := *b
	return &out, nil
}

func (s *ListingStore) sortedBids(productID int64) []*domain.Bid {
	bids := make([]*domain.Bid, 0, len(s.bids[productID]))
	for _, b := range s.bids[productID] {
		c := *b
		bids = append(bids, &c)
	}
	sort.SliceStable(bids, func(i, j int) bool {
		if bids[i].Amount != bids[j].Amount {
			return bids[i].Amount > bids[j].Amount
		}
		return bids[i].BidTime.Before(bids[j].BidTime)
	})
	return bids
}

func (s *ListingStore) TopBids(ctx context.Context, productID int64, limit int) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids := s.sortedBids(productID)
	if limit > 0 && len(bids) > limit {
		bids = bids[:limit]
	}
	return bids, nil
}

func (s *ListingStore) HighestBidExcluding(ctx context.Context, productID, bidderID int64) (*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.sortedBids(productID) {
		if b.BidderID != bidderID {
			return b, nil
		}
	}
	return nil, fmt.Errorf("highest bid on product %d excluding %d: %w", productID, bidderID, domain.ErrNotFound)
}

func (s *ListingStore) CountBids(ctx context.Context, productID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bids[productID]), nil
}

func (s *ListingStore) ListBidders(ctx context.Context, productID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]bool)
	var bidders []int64
	for _, b := range s.bids[productID] {
		if !seen[b.BidderID] {
			seen[b.BidderID] = true
			bidders = append(bidders, b.BidderID)
		}
	}
	return bidders, nil
}

// Transactions

func (s *ListingStore) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertTransactionLocked(tx)
	return nil
}

func (s *ListingStore) insertTransactionLocked(tx *domain.Transaction) {
	tx.ID = s.id()
	now := s.now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	stored := *tx
	s.transactions[tx.ID] = &stored
}

func (s *ListingStore) GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("get transaction %d: %w", transactionID, domain.ErrNotFound)
	}
	out := *tx
	return &out, nil
}

func (s *ListingStore) UpdateTransactionStatus(ctx context.Context, transactionID int64, status domain.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return fmt.Errorf("update transaction %d: %w", transactionID, domain.ErrNotFound)
	}
	tx.Status = status
	tx.UpdatedAt = s.now()
	return nil
}

// Transactions returns every transaction for productID, oldest first.
func (s *ListingStore) Transactions(productID int64) []*domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for _, tx := range s.transactions {
		if tx.ProductID == productID {
			c := *tx
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Void requests

func (s *ListingStore) CreateVoidRequest(ctx context.Context, req *domain.VoidRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Status == domain.VoidPending && s.hasPendingLocked(req.TransactionID) {
		return fmt.Errorf("create void request for transaction %d: %w", req.TransactionID, domain.ErrConflict)
	}
	req.ID = s.id()
	now := s.now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	s.voidRequests[req.ID] = copyVoidRequest(req)
	return nil
}

func (s *ListingStore) GetVoidRequest(ctx context.Context, voidRequestID int64) (*domain.VoidRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vr, ok := s.voidRequests[voidRequestID]
	if !ok {
		return nil, fmt.Errorf("get void request %d: %w", voidRequestID, domain.ErrNotFound)
	}
	return copyVoidRequest(vr), nil
}

func (s *ListingStore) ListVoidRequests(ctx context.Context, transactionID int64) ([]*domain.VoidRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.VoidRequest
	for _, vr := range s.voidRequests {
		if vr.TransactionID == transactionID {
			out = append(out, copyVoidRequest(vr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *ListingStore) HasPendingVoidRequest(ctx context.Context, transactionID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasPendingLocked(transactionID), nil
}

func (s *ListingStore) hasPendingLocked(transactionID int64) bool {
	for _, vr := range s.voidRequests {
		if vr.TransactionID == transactionID && vr.Status == domain.VoidPending {
			return true
		}
	}
	return false
}

func (s *ListingStore) CountVoidRequestsSince(ctx context.Context, initiatorID int64, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, vr := range s.voidRequests {
		if vr.InitiatorID == initiatorID && vr.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *ListingStore) ResolveVoidRequest(ctx context.Context, voidRequestID int64, status domain.VoidRequestStatus, rejectionReason string, at time.Time) error {
	return s.updateVoidRequest(voidRequestID, resolve(status, rejectionReason, at))
}

func resolve(status domain.VoidRequestStatus, rejectionReason string, at time.Time) func(vr *domain.VoidRequest) bool {
	return func(vr *domain.VoidRequest) bool {
		if vr.Status != domain.VoidPending {
			return false
		}
		vr.Status = status
		vr.RejectionReason = rejectionReason
		if status == domain.VoidApproved {
			t := at
			vr.ApprovedAt = &t
		}
		return true
	}
}

func (s *ListingStore) SetSellerChoice(ctx context.Context, voidRequestID int64, choice domain.SellerChoice, offer *domain.SecondBidderOffer) error {
	return s.updateVoidRequest(voidRequestID, chooseRemedy(choice, offer))
}

func chooseRemedy(choice domain.SellerChoice, offer *domain.SecondBidderOffer) func(vr *domain.VoidRequest) bool {
	return func(vr *domain.VoidRequest) bool {
		if vr.Status != domain.VoidApproved || vr.SellerChoice != domain.ChoiceNone {
			return false
		}
		vr.SellerChoice = choice
		if offer != nil {
			o := *offer
			vr.SecondBidderOffer = &o
		}
		return true
	}
}

func (s *ListingStore) RespondToOffer(ctx context.Context, voidRequestID int64, status domain.OfferStatus, at time.Time) error {
	return s.updateVoidRequest(voidRequestID, settleOffer(status, at))
}

func settleOffer(status domain.OfferStatus, at time.Time) func(vr *domain.VoidRequest) bool {
	return func(vr *domain.VoidRequest) bool {
		if vr.SecondBidderOffer == nil || vr.SecondBidderOffer.OfferStatus != domain.OfferPending {
			return false
		}
		t := at
		vr.SecondBidderOffer.OfferStatus = status
		vr.SecondBidderOffer.RespondedAt = &t
		return true
	}
}

func (s *ListingStore) ListPendingOffers(ctx context.Context, offeredBefore time.Time) ([]*domain.VoidRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.VoidRequest
	for _, vr := range s.voidRequests {
		o := vr.SecondBidderOffer
		if o != nil && o.OfferStatus == domain.OfferPending && o.OfferedAt.Before(offeredBefore) {
			out = append(out, copyVoidRequest(vr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// updateVoidRequest applies mutate when its guard holds, mirroring a
// conditional UPDATE ... WHERE.
func (s *ListingStore) updateVoidRequest(voidRequestID int64, mutate func(vr *domain.VoidRequest) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateVoidRequestLocked(voidRequestID, mutate)
}

func (s *ListingStore) updateVoidRequestLocked(voidRequestID int64, mutate func(vr *domain.VoidRequest) bool) error {
	vr, ok := s.voidRequests[voidRequestID]
	if !ok {
		return fmt.Errorf("update void request %d: %w", voidRequestID, domain.ErrNotFound)
	}
	if !mutate(vr) {
		return fmt.Errorf("update void request %d: %w", voidRequestID, domain.ErrConflict)
	}
	vr.UpdatedAt = s.now()
	return nil
}

// Settlements. Guards are checked before anything is written, so a failed
// call leaves every record untouched.

func (s *ListingStore) SellListing(ctx context.Context, sale *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.updateProductLocked(sale.ProductID, func(p *domain.Product) bool {
		if p.Status != domain.ProductAvailable {
			return false
		}
		p.Status = domain.ProductSold
		return true
	})
	if err != nil {
		return err
	}
	s.insertTransactionLocked(sale)
	return nil
}

func (s *ListingStore) ApproveVoidRequest(ctx context.Context, voidRequestID, transactionID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return fmt.Errorf("void transaction %d: %w", transactionID, domain.ErrNotFound)
	}
	if err := s.updateVoidRequestLocked(voidRequestID, resolve(domain.VoidApproved, "", at)); err != nil {
		return err
	}
	tx.Status = domain.TransactionVoided
	tx.UpdatedAt = s.now()
	return nil
}

func (s *ListingStore) RestartListing(ctx context.Context, voidRequestID, productID int64, auctionEndDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vr, ok := s.voidRequests[voidRequestID]
	if !ok {
		return fmt.Errorf("restart from void request %d: %w", voidRequestID, domain.ErrNotFound)
	}
	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("restart product %d: %w", productID, domain.ErrNotFound)
	}
	if vr.Status != domain.VoidApproved || vr.SellerChoice != domain.ChoiceNone || p.Status != domain.ProductSold {
		return fmt.Errorf("restart product %d: %w", productID, domain.ErrConflict)
	}

	now := s.now()
	vr.SellerChoice = domain.ChoiceRestartBidding
	vr.UpdatedAt = now
	p.Status = domain.ProductAvailable
	p.AuctionEndDate = auctionEndDate
	p.UpdatedAt = now
	return nil
}

func (s *ListingStore) AcceptOffer(ctx context.Context, voidRequestID int64, at time.Time, sale *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateVoidRequestLocked(voidRequestID, settleOffer(domain.OfferAccepted, at)); err != nil {
		return err
	}
	s.insertTransactionLocked(sale)
	return nil
}

// Messages

func (s *ListingStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = s.id()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	stored := *msg
	s.messages = append(s.messages, &stored)
	return nil
}

// Messages returns the contact messages recorded for productID.
func (s *ListingStore) Messages(productID int64) []*domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Message
	for _, m := range s.messages {
		if m.ProductID == productID {
			c := *m
			out = append(out, &c)
		}
	}
	return out
}

func copyProduct(p *domain.Product) *domain.Product {
	c := *p
	if p.CurrentBid != nil {
		v := *p.CurrentBid
		c.CurrentBid = &v
	}
	return &c
}

func copyVoidRequest(vr *domain.VoidRequest) *domain.VoidRequest {
	c := *vr
	if vr.ApprovedAt != nil {
		t := *vr.ApprovedAt
		c.ApprovedAt = &t
	}
	if vr.SecondBidderOffer != nil {
		o := *vr.SecondBidderOffer
		if o.RespondedAt != nil {
			t := *o.RespondedAt
			o.RespondedAt = &t
		}
		c.SecondBidderOffer = &o
	}
	return &c
}
