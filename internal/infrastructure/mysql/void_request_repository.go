package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"auction-marketplace/internal/domain"
)

const voidRequestColumns = `id, transaction_id, product_id, initiator_id, initiator_role, reason,
        status, rejection_reason, approved_at, seller_choice, offered_to, offer_amount,
        offer_status, offered_at, responded_at, created_at, updated_at`

type voidRequestRow struct {
	ID              int64           `db:"id"`
	TransactionID   int64           `db:"transaction_id"`
	ProductID       int64           `db:"product_id"`
	InitiatorID     int64           `db:"initiator_id"`
	InitiatorRole   string          `db:"initiator_role"`
	Reason          string          `db:"reason"`
	Status          string          `db:"status"`
	RejectionReason sql.NullString  `db:"rejection_reason"`
	ApprovedAt      sql.NullTime    `db:"approved_at"`
	SellerChoice    sql.NullString  `db:"seller_choice"`
	OfferedTo       sql.NullInt64   `db:"offered_to"`
	OfferAmount     sql.NullFloat64 `db:"offer_amount"`
	OfferStatus     sql.NullString  `db:"offer_status"`
	OfferedAt       sql.NullTime    `db:"offered_at"`
	RespondedAt     sql.NullTime    `db:"responded_at"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (r voidRequestRow) toDomain() *domain.VoidRequest {
	vr := &domain.VoidRequest{
		ID:              r.ID,
		TransactionID:   r.TransactionID,
		ProductID:       r.ProductID,
		InitiatorID:     r.InitiatorID,
		InitiatorRole:   domain.PartyRole(r.InitiatorRole),
		Reason:          r.Reason,
		Status:          domain.VoidRequestStatus(r.Status),
		RejectionReason: r.RejectionReason.String,
		ApprovedAt:      timePtr(r.ApprovedAt),
		SellerChoice:    domain.SellerChoice(r.SellerChoice.String),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.OfferStatus.Valid {
		vr.SecondBidderOffer = &domain.SecondBidderOffer{
			OfferedTo:   r.OfferedTo.Int64,
			OfferAmount: r.OfferAmount.Float64,
			OfferStatus: domain.OfferStatus(r.OfferStatus.String),
			OfferedAt:   r.OfferedAt.Time,
			RespondedAt: timePtr(r.RespondedAt),
		}
	}
	return vr
}

func toVoidRequests(rows []voidRequestRow) []*domain.VoidRequest {
	out := make([]*domain.VoidRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

func (s *ListingStore) CreateVoidRequest(ctx context.Context, req *domain.VoidRequest) error {
	now := s.timestamp()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	query := `
        INSERT INTO void_requests (transaction_id, product_id, initiator_id, initiator_role,
            reason, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	res, err := s.db.ExecContext(ctx, query,
		req.TransactionID, req.ProductID, req.InitiatorID, string(req.InitiatorRole),
		req.Reason, string(req.Status), req.CreatedAt.UTC(), req.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("create void request for transaction %d: %w", req.TransactionID, domain.ErrConflict)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	req.ID = id
	return nil
}

func (s *ListingStore) GetVoidRequest(ctx context.Context, voidRequestID int64) (*domain.VoidRequest, error) {
	var row voidRequestRow
	err := s.db.GetContext(ctx, &row, `SELECT `+voidRequestColumns+` FROM void_requests WHERE id = ?`, voidRequestID)
	if err != nil {
		return nil, notFound(err, "void request", voidRequestID)
	}
	return row.toDomain(), nil
}

func (s *ListingStore) ListVoidRequests(ctx context.Context, transactionID int64) ([]*domain.VoidRequest, error) {
	query := `
        SELECT ` + voidRequestColumns + `
        FROM void_requests
        WHERE transaction_id = ?
        ORDER BY created_at DESC, id DESC
    `
	var rows []voidRequestRow
	if err := s.db.SelectContext(ctx, &rows, query, transactionID); err != nil {
		return nil, err
	}
	return toVoidRequests(rows), nil
}

func (s *ListingStore) HasPendingVoidRequest(ctx context.Context, transactionID int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM void_requests WHERE transaction_id = ? AND status = ?`,
		transactionID, string(domain.VoidPending))
	return n > 0, err
}

func (s *ListingStore) CountVoidRequestsSince(ctx context.Context, initiatorID int64, since time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM void_requests WHERE initiator_id = ? AND created_at > ?`,
		initiatorID, since.UTC())
	return n, err
}

func (s *ListingStore) ResolveVoidRequest(ctx context.Context, voidRequestID int64, status domain.VoidRequestStatus, rejectionReason string, at time.Time) error {
	return s.resolveVoidRequest(ctx, s.db, voidRequestID, status, rejectionReason, at)
}

func (s *ListingStore) resolveVoidRequest(ctx context.Context, db sqlx.ExtContext, voidRequestID int64, status domain.VoidRequestStatus, rejectionReason string, at time.Time) error {
	var approvedAt sql.NullTime
	if status == domain.VoidApproved {
		approvedAt = nullTime(&at)
	}
	query := `
        UPDATE void_requests
        SET status = ?, rejection_reason = ?, approved_at = ?, updated_at = ?
        WHERE id = ? AND status = ?
    `
	res, err := db.ExecContext(ctx, query,
		string(status), nullString(rejectionReason), approvedAt, s.timestamp(),
		voidRequestID, string(domain.VoidPending))
	if err != nil {
		return err
	}
	return exactlyOne(ctx, db, res, "void_requests", voidRequestID)
}

func (s *ListingStore) SetSellerChoice(ctx context.Context, voidRequestID int64, choice domain.SellerChoice, offer *domain.SecondBidderOffer) error {
	var (
		offeredTo   sql.NullInt64
		offerAmount sql.NullFloat64
		offerStatus sql.NullString
		offeredAt   sql.NullTime
	)
	if offer != nil {
		offeredTo = sql.NullInt64{Int64: offer.OfferedTo, Valid: true}
		offerAmount = sql.NullFloat64{Float64: offer.OfferAmount, Valid: true}
		offerStatus = nullString(string(offer.OfferStatus))
		offeredAt = nullTime(&offer.OfferedAt)
	}
	query := `
        UPDATE void_requests
        SET seller_choice = ?, offered_to = ?, offer_amount = ?, offer_status = ?, offered_at = ?, updated_at = ?
        WHERE id = ? AND status = ? AND (seller_choice IS NULL OR seller_choice = '')
    `
	res, err := s.db.ExecContext(ctx, query,
		string(choice), offeredTo, offerAmount, offerStatus, offeredAt, s.timestamp(),
		voidRequestID, string(domain.VoidApproved))
	if err != nil {
		return err
	}
	return exactlyOne(ctx, s.db, res, "void_requests", voidRequestID)
}

func (s *ListingStore) RespondToOffer(ctx context.Context, voidRequestID int64, status domain.OfferStatus, at time.Time) error {
	return s.respondToOffer(ctx, s.db, voidRequestID, status, at)
}

func (s *ListingStore) respondToOffer(ctx context.Context, db sqlx.ExtContext, voidRequestID int64, status domain.OfferStatus, at time.Time) error {
	query := `
        UPDATE void_requests
        SET offer_status = ?, responded_at = ?, updated_at = ?
        WHERE id = ? AND offer_status = ?
    `
	res, err := db.ExecContext(ctx, query,
		string(status), at.UTC(), s.timestamp(), voidRequestID, string(domain.OfferPending))
	if err != nil {
		return err
	}
	return exactlyOne(ctx, db, res, "void_requests", voidRequestID)
}

func (s *ListingStore) ListPendingOffers(ctx context.Context, offeredBefore time.Time) ([]*domain.VoidRequest, error) {
	query := `
        SELECT ` + voidRequestColumns + `
        FROM void_requests
        WHERE offer_status = ? AND offered_at < ?
        ORDER BY id ASC
    `
	var rows []voidRequestRow
	if err := s.db.SelectContext(ctx, &rows, query, string(domain.OfferPending), offeredBefore.UTC()); err != nil {
		return nil, err
	}
	return toVoidRequests(rows), nil
}
