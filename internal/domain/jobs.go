package domain

import "time"

type JobType string

const (
	JobBid          JobType = "bid"
	JobAcceptBid    JobType = "accept_bid"
	JobCloseListing JobType = "close_listing"
)

// Job is a unit of work for the sequential processor. The set of
// implementations is closed: BidJob, AcceptBidJob and CloseListingJob.
type Job interface {
	Type() JobType
	JobID() string
	Product() int64
	EnqueuedAt() time.Time
	isJob()
}

type BidJob struct {
	ID        string
	ProductID int64
	BidderID  int64
	Amount    float64
	Timestamp time.Time
}

func (j *BidJob) Type() JobType         { return JobBid }
func (j *BidJob) JobID() string         { return j.ID }
func (j *BidJob) Product() int64        { return j.ProductID }
func (j *BidJob) EnqueuedAt() time.Time { return j.Timestamp }
func (*BidJob) isJob()                  {}

// AcceptBidJob captures the highest bid seen at enqueue time. The processor
// re-reads bids before applying, so BidderID and Amount are informational.
type AcceptBidJob struct {
	ID        string
	ProductID int64
	SellerID  int64
	BidderID  int64
	Amount    float64
	Timestamp time.Time
}

func (j *AcceptBidJob) Type() JobType         { return JobAcceptBid }
func (j *AcceptBidJob) JobID() string         { return j.ID }
func (j *AcceptBidJob) Product() int64        { return j.ProductID }
func (j *AcceptBidJob) EnqueuedAt() time.Time { return j.Timestamp }
func (*AcceptBidJob) isJob()                  {}

type CloseListingJob struct {
	ID        string
	ProductID int64
	Timestamp time.Time
}

func (j *CloseListingJob) Type() JobType         { return JobCloseListing }
func (j *CloseListingJob) JobID() string         { return j.ID }
func (j *CloseListingJob) Product() int64        { return j.ProductID }
func (j *CloseListingJob) EnqueuedAt() time.Time { return j.Timestamp }
func (*CloseListingJob) isJob()                  {}
