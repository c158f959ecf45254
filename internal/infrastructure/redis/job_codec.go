package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"auction-marketplace/internal/domain"
)

// jobPayload is the wire shape of a queued job. A payload without a type is a
// bid, which keeps producers that predate typed jobs working.
type jobPayload struct {
	Type      domain.JobType `json:"type,omitempty"`
	JobID     string         `json:"jobId"`
	ProductID int64          `json:"productId"`
	BidderID  int64          `json:"bidderId,omitempty"`
	SellerID  int64          `json:"sellerId,omitempty"`
	Amount    float64        `json:"amount,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

func EncodeJob(job domain.Job) ([]byte, error) {
	p := jobPayload{
		Type:      job.Type(),
		JobID:     job.JobID(),
		ProductID: job.Product(),
		Timestamp: job.EnqueuedAt().UnixMilli(),
	}
	switch j := job.(type) {
	case *domain.BidJob:
		p.BidderID = j.BidderID
		p.Amount = j.Amount
	case *domain.AcceptBidJob:
		p.SellerID = j.SellerID
		p.BidderID = j.BidderID
		p.Amount = j.Amount
	case *domain.CloseListingJob:
	default:
		return nil, fmt.Errorf("encode job %T: %w", job, domain.ErrMalformedJob)
	}
	return json.Marshal(p)
}

// DecodeJob parses a queued payload. Anything that cannot become a valid job
// is reported as domain.ErrMalformedJob.
func DecodeJob(data []byte) (domain.Job, error) {
	var p jobPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode job: %v: %w", err, domain.ErrMalformedJob)
	}
	if p.JobID == "" || p.ProductID <= 0 {
		return nil, fmt.Errorf("decode job: missing jobId or productId: %w", domain.ErrMalformedJob)
	}
	ts := time.UnixMilli(p.Timestamp)

	switch p.Type {
	case "", domain.JobBid:
		if p.BidderID <= 0 || p.Amount <= 0 {
			return nil, fmt.Errorf("decode bid job %s: missing bidderId or amount: %w", p.JobID, domain.ErrMalformedJob)
		}
		return &domain.BidJob{ID: p.JobID, ProductID: p.ProductID, BidderID: p.BidderID, Amount: p.Amount, Timestamp: ts}, nil
	case domain.JobAcceptBid:
		if p.SellerID <= 0 {
			return nil, fmt.Errorf("decode accept job %s: missing sellerId: %w", p.JobID, domain.ErrMalformedJob)
		}
		return &domain.AcceptBidJob{ID: p.JobID, ProductID: p.ProductID, SellerID: p.SellerID, BidderID: p.BidderID, Amount: p.Amount, Timestamp: ts}, nil
	case domain.JobCloseListing:
		return &domain.CloseListingJob{ID: p.JobID, ProductID: p.ProductID, Timestamp: ts}, nil
	default:
		return nil, fmt.Errorf("decode job %s: unknown type %q: %w", p.JobID, p.Type, domain.ErrMalformedJob)
	}
}
