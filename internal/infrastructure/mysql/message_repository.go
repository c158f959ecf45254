package mysql

import (
	"context"

	"auction-marketplace/internal/domain"
)

func (s *ListingStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.timestamp()
	}
	query := `
        INSERT INTO messages (product_id, sender_id, receiver_id, body, is_read, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `
	res, err := s.db.ExecContext(ctx, query,
		msg.ProductID, msg.SenderID, msg.ReceiverID, msg.Body, msg.Read, msg.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}
