package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"auction-marketplace/internal/domain"
)

const productColumns = `id, seller_id, title, starting_price, bid_interval, current_bid,
        status, active, auction_end_date, created_at, updated_at`

type productRow struct {
	ID             int64           `db:"id"`
	SellerID       int64           `db:"seller_id"`
	Title          string          `db:"title"`
	StartingPrice  float64         `db:"starting_price"`
	BidInterval    float64         `db:"bid_interval"`
	CurrentBid     sql.NullFloat64 `db:"current_bid"`
	Status         string          `db:"status"`
	Active         bool            `db:"active"`
	AuctionEndDate time.Time       `db:"auction_end_date"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r productRow) toDomain() *domain.Product {
	p := &domain.Product{
		ID:             r.ID,
		SellerID:       r.SellerID,
		Title:          r.Title,
		StartingPrice:  r.StartingPrice,
		BidInterval:    r.BidInterval,
		Status:         domain.ProductStatus(r.Status),
		Active:         r.Active,
		AuctionEndDate: r.AuctionEndDate,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.CurrentBid.Valid {
		v := r.CurrentBid.Float64
		p.CurrentBid = &v
	}
	return p
}

func (s *ListingStore) CreateProduct(ctx context.Context, product *domain.Product) error {
	now := s.timestamp()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	var currentBid sql.NullFloat64
	if product.CurrentBid != nil {
		currentBid = sql.NullFloat64{Float64: *product.CurrentBid, Valid: true}
	}

	query := `
        INSERT INTO products (seller_id, title, starting_price, bid_interval, current_bid,
            status, active, auction_end_date, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	res, err := s.db.ExecContext(ctx, query,
		product.SellerID, product.Title, product.StartingPrice, product.BidInterval, currentBid,
		string(product.Status), product.Active, product.AuctionEndDate.UTC(),
		product.CreatedAt.UTC(), product.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	product.ID = id
	return nil
}

func (s *ListingStore) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, `SELECT `+productColumns+` FROM products WHERE id = ?`, productID)
	if err != nil {
		return nil, notFound(err, "product", productID)
	}
	return row.toDomain(), nil
}

func (s *ListingStore) UpdateCurrentBid(ctx context.Context, productID int64, amount float64) error {
	query := `
        UPDATE products
        SET current_bid = ?, updated_at = ?
        WHERE id = ? AND status = ? AND (current_bid IS NULL OR current_bid < ?)
    `
	res, err := s.db.ExecContext(ctx, query,
		amount, s.timestamp(), productID, string(domain.ProductAvailable), amount)
	if err != nil {
		return err
	}
	return exactlyOne(ctx, s.db, res, "products", productID)
}

func (s *ListingStore) UpdateProductStatus(ctx context.Context, productID int64, from, to domain.ProductStatus) error {
	return updateProductStatus(ctx, s.db, productID, from, to, s.timestamp())
}

func updateProductStatus(ctx context.Context, db sqlx.ExtContext, productID int64, from, to domain.ProductStatus, at time.Time) error {
	query := `UPDATE products SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := db.ExecContext(ctx, query, string(to), at, productID, string(from))
	if err != nil {
		return err
	}
	return exactlyOne(ctx, db, res, "products", productID)
}

func (s *ListingStore) ListExpiredListings(ctx context.Context, now time.Time, limit int) ([]*domain.Product, error) {
	query := `
        SELECT ` + productColumns + `
        FROM products
        WHERE status = ? AND auction_end_date <= ?
        ORDER BY auction_end_date ASC
        LIMIT ?
    `
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, query, string(domain.ProductAvailable), now.UTC(), limit); err != nil {
		return nil, err
	}
	products := make([]*domain.Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, r.toDomain())
	}
	return products, nil
}
