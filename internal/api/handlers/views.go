package handlers

import (
	"time"

	"auction-marketplace/internal/domain"
)

type productView struct {
	ID             int64     `json:"id"`
	SellerID       int64     `json:"sellerId"`
	Title          string    `json:"title"`
	StartingPrice  float64   `json:"startingPrice"`
	BidInterval    float64   `json:"bidInterval"`
	CurrentBid     *float64  `json:"currentBid"`
	Status         string    `json:"status"`
	Active         bool      `json:"active"`
	AuctionEndDate time.Time `json:"auctionEndDate"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toProductView(p *domain.Product) productView {
	return productView{
		ID:             p.ID,
		SellerID:       p.SellerID,
		Title:          p.Title,
		StartingPrice:  p.StartingPrice,
		BidInterval:    p.BidInterval,
		CurrentBid:     p.CurrentBid,
		Status:         string(p.Status),
		Active:         p.Active,
		AuctionEndDate: p.AuctionEndDate,
		CreatedAt:      p.CreatedAt,
	}
}

type offerView struct {
	OfferedTo   int64      `json:"offeredTo"`
	OfferAmount float64    `json:"offerAmount"`
	OfferStatus string     `json:"offerStatus"`
	OfferedAt   time.Time  `json:"offeredAt"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
}

type voidRequestView struct {
	ID                int64      `json:"id"`
	TransactionID     int64      `json:"transactionId"`
	ProductID         int64      `json:"productId"`
	InitiatorID       int64      `json:"initiatorId"`
	InitiatorRole     string     `json:"initiatorRole"`
	Reason            string     `json:"reason"`
	Status            string     `json:"status"`
	RejectionReason   string     `json:"rejectionReason,omitempty"`
	ApprovedAt        *time.Time `json:"approvedAt,omitempty"`
	SellerChoice      string     `json:"sellerChoice,omitempty"`
	SecondBidderOffer *offerView `json:"secondBidderOffer,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func toVoidRequestView(vr *domain.VoidRequest) voidRequestView {
	view := voidRequestView{
		ID:              vr.ID,
		TransactionID:   vr.TransactionID,
		ProductID:       vr.ProductID,
		InitiatorID:     vr.InitiatorID,
		InitiatorRole:   string(vr.InitiatorRole),
		Reason:          vr.Reason,
		Status:          string(vr.Status),
		RejectionReason: vr.RejectionReason,
		ApprovedAt:      vr.ApprovedAt,
		SellerChoice:    string(vr.SellerChoice),
		CreatedAt:       vr.CreatedAt,
	}
	if o := vr.SecondBidderOffer; o != nil {
		view.SecondBidderOffer = &offerView{
			OfferedTo:   o.OfferedTo,
			OfferAmount: o.OfferAmount,
			OfferStatus: string(o.OfferStatus),
			OfferedAt:   o.OfferedAt,
			RespondedAt: o.RespondedAt,
		}
	}
	return view
}

func toVoidRequestViews(list []*domain.VoidRequest) []voidRequestView {
	views := make([]voidRequestView, 0, len(list))
	for _, vr := range list {
		views = append(views, toVoidRequestView(vr))
	}
	return views
}
