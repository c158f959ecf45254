package mysql

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"auction-marketplace/internal/domain"
)

func (s *ListingStore) SellListing(ctx context.Context, sale *domain.Transaction) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := updateProductStatus(ctx, tx, sale.ProductID, domain.ProductAvailable, domain.ProductSold, s.timestamp())
		if err != nil {
			return err
		}
		return s.insertTransaction(ctx, tx, sale)
	})
}

func (s *ListingStore) ApproveVoidRequest(ctx context.Context, voidRequestID, transactionID int64, at time.Time) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.resolveVoidRequest(ctx, tx, voidRequestID, domain.VoidApproved, "", at); err != nil {
			return err
		}
		query := `UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?`
		res, err := tx.ExecContext(ctx, query, string(domain.TransactionVoided), s.timestamp(), transactionID)
		if err != nil {
			return err
		}
		return exactlyOne(ctx, tx, res, "transactions", transactionID)
	})
}

func (s *ListingStore) RestartListing(ctx context.Context, voidRequestID, productID int64, auctionEndDate time.Time) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := s.timestamp()
		query := `
            UPDATE void_requests
            SET seller_choice = ?, updated_at = ?
            WHERE id = ? AND status = ? AND (seller_choice IS NULL OR seller_choice = '')
        `
		res, err := tx.ExecContext(ctx, query,
			string(domain.ChoiceRestartBidding), now, voidRequestID, string(domain.VoidApproved))
		if err != nil {
			return err
		}
		if err := exactlyOne(ctx, tx, res, "void_requests", voidRequestID); err != nil {
			return err
		}

		query = `UPDATE products SET status = ?, auction_end_date = ?, updated_at = ? WHERE id = ? AND status = ?`
		res, err = tx.ExecContext(ctx, query,
			string(domain.ProductAvailable), auctionEndDate.UTC(), now, productID, string(domain.ProductSold))
		if err != nil {
			return err
		}
		return exactlyOne(ctx, tx, res, "products", productID)
	})
}

func (s *ListingStore) AcceptOffer(ctx context.Context, voidRequestID int64, at time.Time, sale *domain.Transaction) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.respondToOffer(ctx, tx, voidRequestID, domain.OfferAccepted, at); err != nil {
			return err
		}
		return s.insertTransaction(ctx, tx, sale)
	})
}
