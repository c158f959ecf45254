package services

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"auction-marketplace/internal/domain"
)

const monetaryPrecision int32 = 2

// BidValidator holds the admission rules shared by the gateway and the
// processor. Amounts are compared as decimals rounded to cents.
type BidValidator struct {
	maxBidMultiplier decimal.Decimal
	maxBidCeiling    decimal.Decimal
}

func NewBidValidator(maxBidMultiplier, maxBidCeiling float64) *BidValidator {
	return &BidValidator{
		maxBidMultiplier: decimal.NewFromFloat(maxBidMultiplier),
		maxBidCeiling:    decimal.NewFromFloat(maxBidCeiling),
	}
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(monetaryPrecision)
}

// MinimumBid is currentBid+bidInterval once bidding has started, otherwise the
// starting price.
func (v *BidValidator) MinimumBid(p *domain.Product) float64 {
	if current := p.CurrentBidValue(); current > 0 {
		minBid, _ := money(current).Add(money(p.BidInterval)).Float64()
		return minBid
	}
	minBid, _ := money(p.StartingPrice).Float64()
	return minBid
}

// MaximumBid caps griefing bids at a multiple of the current price, never
// below the absolute ceiling.
func (v *BidValidator) MaximumBid(p *domain.Product) float64 {
	base := money(p.StartingPrice)
	if current := p.CurrentBidValue(); current > 0 {
		base = money(current)
	}
	maxBid, _ := decimal.Max(base.Mul(v.maxBidMultiplier), v.maxBidCeiling).Round(monetaryPrecision).Float64()
	return maxBid
}

// CheckOpen rejects listings that cannot take bids at now. A listing that
// closes within buffer is treated as closing.
func (v *BidValidator) CheckOpen(p *domain.Product, now time.Time, buffer time.Duration) error {
	if p.Status != domain.ProductAvailable {
		return domain.ErrProductUnavailable
	}
	if !p.Active {
		return domain.ErrProductInactive
	}
	if !now.Before(p.AuctionEndDate) {
		return domain.ErrAuctionEnded
	}
	if buffer > 0 && p.AuctionEndDate.Sub(now) < buffer {
		return domain.ErrAuctionClosing
	}
	return nil
}

func (v *BidValidator) ValidateBid(p *domain.Product, bidderID int64, amount float64, now time.Time, buffer time.Duration) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := v.CheckOpen(p, now, buffer); err != nil {
		return err
	}
	if bidderID == p.SellerID {
		return domain.ErrSelfBid
	}

	bid := money(amount)
	minBid, maxBid := v.MinimumBid(p), v.MaximumBid(p)
	if bid.LessThan(money(minBid)) {
		return &domain.BidAmountError{Reason: domain.ErrBidTooLow, Amount: amount, MinimumBid: minBid, MaximumBid: maxBid, CurrentBid: p.CurrentBidValue()}
	}
	if bid.GreaterThan(money(maxBid)) {
		return &domain.BidAmountError{Reason: domain.ErrBidTooHigh, Amount: amount, MinimumBid: minBid, MaximumBid: maxBid, CurrentBid: p.CurrentBidValue()}
	}
	return nil
}

// ValidateAccept checks the seller may close the listing. Whether a bid
// exists is checked separately against the bid records.
func (v *BidValidator) ValidateAccept(p *domain.Product, sellerID int64) error {
	if sellerID != p.SellerID {
		return domain.ErrNotSeller
	}
	if p.Status != domain.ProductAvailable {
		return domain.ErrProductUnavailable
	}
	return nil
}

// Outbids reports whether amount beats the listing's current bid.
func Outbids(p *domain.Product, amount float64) bool {
	return p.CurrentBid == nil || money(amount).GreaterThan(money(*p.CurrentBid))
}
