package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"auction-marketplace/internal/domain"
)

const bidColumns = `id, product_id, bidder_id, amount, bid_time, job_id`

type bidRow struct {
	ID        int64          `db:"id"`
	ProductID int64          `db:"product_id"`
	BidderID  int64          `db:"bidder_id"`
	Amount    float64        `db:"amount"`
	BidTime   time.Time      `db:"bid_time"`
	JobID     sql.NullString `db:"job_id"`
}

func (r bidRow) toDomain() *domain.Bid {
	return &domain.Bid{
		ID:        r.ID,
		ProductID: r.ProductID,
		BidderID:  r.BidderID,
		Amount:    r.Amount,
		BidTime:   r.BidTime,
		JobID:     r.JobID.String,
	}
}

func toBids(rows []bidRow) []*domain.Bid {
	bids := make([]*domain.Bid, 0, len(rows))
	for _, r := range rows {
		bids = append(bids, r.toDomain())
	}
	return bids
}

func (s *ListingStore) CreateBid(ctx context.Context, bid *domain.Bid) error {
	if bid.BidTime.IsZero() {
		bid.BidTime = s.timestamp()
	}
	query := `
        INSERT INTO bids (product_id, bidder_id, amount, bid_time, job_id)
        VALUES (?, ?, ?, ?, ?)
    `
	res, err := s.db.ExecContext(ctx, query,
		bid.ProductID, bid.BidderID, bid.Amount, bid.BidTime.UTC(), nullString(bid.JobID))
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("create bid for job %s: %w", bid.JobID, domain.ErrConflict)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	bid.ID = id
	return nil
}

func (s *ListingStore) GetBidByJobID(ctx context.Context, jobID string) (*domain.Bid, error) {
	var row bidRow
	err := s.db.GetContext(ctx, &row, `SELECT `+bidColumns+` FROM bids WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, notFound(err, "bid for job", jobID)
	}
	return row.toDomain(), nil
}

func (s *ListingStore) TopBids(ctx context.Context, productID int64, limit int) ([]*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids
        WHERE product_id = ?
        ORDER BY amount DESC, bid_time ASC, id ASC
        LIMIT ?
    `
	var rows []bidRow
	if err := s.db.SelectContext(ctx, &rows, query, productID, limit); err != nil {
		return nil, err
	}
	return toBids(rows), nil
}

func (s *ListingStore) HighestBidExcluding(ctx context.Context, productID, bidderID int64) (*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids
        WHERE product_id = ? AND bidder_id <> ?
        ORDER BY amount DESC, bid_time ASC, id ASC
        LIMIT 1
    `
	var row bidRow
	if err := s.db.GetContext(ctx, &row, query, productID, bidderID); err != nil {
		return nil, notFound(err, "competing bid on product", productID)
	}
	return row.toDomain(), nil
}

func (s *ListingStore) CountBids(ctx context.Context, productID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bids WHERE product_id = ?`, productID)
	return n, err
}

func (s *ListingStore) ListBidders(ctx context.Context, productID int64) ([]int64, error) {
	query := `
        SELECT bidder_id
        FROM bids
        WHERE product_id = ?
        GROUP BY bidder_id
        ORDER BY MIN(id) ASC
    `
	var bidders []int64
	err := s.db.SelectContext(ctx, &bidders, query, productID)
	return bidders, err
}
