package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/studycircle/studycircle-backend/internal/model"
)

// NotificationRepository handles notification persistence. Writes come from
// the notify worker draining the queue; reads serve the recipient's feed.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Insert persists a notification record.
func (r *NotificationRepository) Insert(ctx context.Context, n *model.Notification) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO notifications
		   (recipient_id, sender_id, type, title, message, group_id, chat_id, action_type, priority)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		n.Recipient, n.Sender, n.Type, n.Title, n.Message,
		n.Data.GroupID, n.Data.ChatID, n.Data.ActionType, n.Priority,
	).Scan(&n.ID, &n.CreatedAt)
}

// ListByRecipient retrieves a page of the recipient's notifications, newest
// first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, recipient_id, sender_id, type, title, message,
		        group_id, chat_id, action_type, priority, is_read, read_at, created_at
		 FROM notifications
		 WHERE recipient_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Sender, &n.Type, &n.Title, &n.Message,
			&n.Data.GroupID, &n.Data.ChatID, &n.Data.ActionType, &n.Priority,
			&n.IsRead, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountByRecipient returns total and unread counts for the recipient's feed.
func (r *NotificationRepository) CountByRecipient(ctx context.Context, recipientID uuid.UUID) (total, unread int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_read)
		 FROM notifications WHERE recipient_id = $1`, recipientID).Scan(&total, &unread)
	return total, unread, err
}

// MarkRead marks the given notifications as read. Already-read rows keep
// their original read_at. Returns the number of rows flipped.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $1
		 WHERE recipient_id = $2 AND id = ANY($3) AND NOT is_read`,
		at, recipientID, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkAllRead marks every unread notification of the recipient as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $1
		 WHERE recipient_id = $2 AND NOT is_read`,
		at, recipientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
