package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"auction-marketplace/internal/domain"
)

// ListingStore implements domain.ListingStore over a SQL database. Queries use
// portable '?' placeholders; timestamps are stored in UTC.
type ListingStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewListingStore(db *sqlx.DB) *ListingStore {
	return &ListingStore{db: db, now: time.Now}
}

// SetClock overrides the time source used for created/updated stamps.
func (s *ListingStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ListingStore) timestamp() time.Time {
	return s.now().UTC()
}

// Schema is the MySQL DDL for the listing tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        seller_id BIGINT NOT NULL,
        title VARCHAR(255) NOT NULL,
        starting_price DECIMAL(12,2) NOT NULL,
        bid_interval DECIMAL(12,2) NOT NULL,
        current_bid DECIMAL(12,2) NULL,
        status VARCHAR(16) NOT NULL DEFAULT 'available',
        active BOOLEAN NOT NULL DEFAULT TRUE,
        auction_end_date DATETIME(3) NOT NULL,
        created_at DATETIME(3) NOT NULL,
        updated_at DATETIME(3) NOT NULL,
        INDEX idx_products_status_end (status, auction_end_date)
    ) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bids (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        product_id BIGINT NOT NULL,
        bidder_id BIGINT NOT NULL,
        amount DECIMAL(12,2) NOT NULL,
        bid_time DATETIME(3) NOT NULL,
        job_id VARCHAR(64) NULL,
        UNIQUE KEY uq_bids_job_id (job_id),
        INDEX idx_bids_product_amount (product_id, amount)
    ) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS transactions (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        product_id BIGINT NOT NULL,
        seller_id BIGINT NOT NULL,
        buyer_id BIGINT NOT NULL,
        amount DECIMAL(12,2) NOT NULL,
        status VARCHAR(16) NOT NULL,
        notes TEXT NULL,
        created_at DATETIME(3) NOT NULL,
        updated_at DATETIME(3) NOT NULL,
        INDEX idx_transactions_product (product_id)
    ) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS void_requests (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        transaction_id BIGINT NOT NULL,
        product_id BIGINT NOT NULL,
        initiator_id BIGINT NOT NULL,
        initiator_role VARCHAR(8) NOT NULL,
        reason TEXT NOT NULL,
        status VARCHAR(16) NOT NULL,
        rejection_reason TEXT NULL,
        approved_at DATETIME(3) NULL,
        seller_choice VARCHAR(32) NULL,
        offered_to BIGINT NULL,
        offer_amount DECIMAL(12,2) NULL,
        offer_status VARCHAR(16) NULL,
        offered_at DATETIME(3) NULL,
        responded_at DATETIME(3) NULL,
        created_at DATETIME(3) NOT NULL,
        updated_at DATETIME(3) NOT NULL,
        pending_transaction_id BIGINT AS (CASE WHEN status = 'pending' THEN transaction_id END) STORED,
        UNIQUE KEY uq_void_requests_pending (pending_transaction_id),
        INDEX idx_void_requests_transaction (transaction_id),
        INDEX idx_void_requests_initiator (initiator_id, created_at)
    ) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS messages (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        product_id BIGINT NOT NULL,
        sender_id BIGINT NOT NULL,
        receiver_id BIGINT NOT NULL,
        body TEXT NOT NULL,
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME(3) NOT NULL
    ) ENGINE=InnoDB`,
}

// EnsureSchema creates any missing tables.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// inTx runs fn in one database transaction, rolling back on any error.
func (s *ListingStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// exactlyOne turns a zero-row UPDATE into ErrNotFound or, when the row exists
// but the guard failed, ErrConflict. q must be the handle the UPDATE ran on.
func exactlyOne(ctx context.Context, q sqlx.QueryerContext, res sql.Result, table string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = sqlx.GetContext(ctx, q, &exists, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%s %d: %w", table, id, domain.ErrNotFound)
	}
	return fmt.Errorf("%s %d: %w", table, id, domain.ErrConflict)
}

func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, domain.ErrNotFound)
	}
	return err
}

func isDuplicate(err error) bool {
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
