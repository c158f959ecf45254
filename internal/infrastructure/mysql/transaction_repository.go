package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"auction-marketplace/internal/domain"
)

type transactionRow struct {
	ID        int64          `db:"id"`
	ProductID int64          `db:"product_id"`
	SellerID  int64          `db:"seller_id"`
	BuyerID   int64          `db:"buyer_id"`
	Amount    float64        `db:"amount"`
	Status    string         `db:"status"`
	Notes     sql.NullString `db:"notes"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (s *ListingStore) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	return s.insertTransaction(ctx, s.db, tx)
}

func (s *ListingStore) insertTransaction(ctx context.Context, db sqlx.ExecerContext, tx *domain.Transaction) error {
	now := s.timestamp()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	query := `
        INSERT INTO transactions (product_id, seller_id, buyer_id, amount, status, notes, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	res, err := db.ExecContext(ctx, query,
		tx.ProductID, tx.SellerID, tx.BuyerID, tx.Amount, string(tx.Status),
		nullString(tx.Notes), tx.CreatedAt.UTC(), tx.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	tx.ID = id
	return nil
}

func (s *ListingStore) GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	query := `
        SELECT id, product_id, seller_id, buyer_id, amount, status, notes, created_at, updated_at
        FROM transactions WHERE id = ?
    `
	var row transactionRow
	if err := s.db.GetContext(ctx, &row, query, transactionID); err != nil {
		return nil, notFound(err, "transaction", transactionID)
	}
	return &domain.Transaction{
		ID:        row.ID,
		ProductID: row.ProductID,
		SellerID:  row.SellerID,
		BuyerID:   row.BuyerID,
		Amount:    row.Amount,
		Status:    domain.TransactionStatus(row.Status),
		Notes:     row.Notes.String,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *ListingStore) UpdateTransactionStatus(ctx context.Context, transactionID int64, status domain.TransactionStatus) error {
	query := `UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, string(status), s.timestamp(), transactionID)
	if err != nil {
		return err
	}
	return exactlyOne(ctx, s.db, res, "transactions", transactionID)
}
