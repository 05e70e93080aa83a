package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/registry_api/internal/database"
	"github.com/GTDGit/registry_api/internal/models"
)

// NotificationRepository handles the outbound notification queue
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Enqueue stores a pending notification.
func (r *NotificationRepository) Enqueue(ctx context.Context, n *models.Notification) error {
	const query = `
		INSERT INTO notifications (registration_id, recipient, subject, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return r.db.GetContext(ctx, &n.ID, query, n.RegistrationID, n.Recipient, n.Subject, n.Body,
		models.NotificationPending, n.CreatedAt)
}

// ProcessPending claims up to limit pending notifications below maxAttempts
// and hands each to deliver inside one transaction. Rows are locked with
// SKIP LOCKED so concurrent workers never deliver the same notification.
// A delivery error is recorded on the row; after maxAttempts the row is
// marked failed.
func (r *NotificationRepository) ProcessPending(ctx context.Context, limit, maxAttempts int, deliver func(n *models.Notification) error) (sent, failed int, err error) {
	err = database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const claimQ = `
			SELECT id, registration_id, recipient, subject, body, status, attempts, last_error, created_at, sent_at
			FROM notifications
			WHERE status = 'pending' AND attempts < $2
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED`

		items := []models.Notification{}
		if err := tx.SelectContext(ctx, &items, claimQ, limit, maxAttempts); err != nil {
			return fmt.Errorf("claim notifications: %w", err)
		}

		for i := range items {
			n := &items[i]
			if derr := deliver(n); derr != nil {
				failed++
				const failQ = `
					UPDATE notifications SET
						attempts = attempts + 1,
						last_error = $2,
						status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END
					WHERE id = $1`
				if _, err := tx.ExecContext(ctx, failQ, n.ID, derr.Error(), maxAttempts); err != nil {
					return fmt.Errorf("record notification failure: %w", err)
				}
				continue
			}
			sent++
			const sentQ = `UPDATE notifications SET status = 'sent', attempts = attempts + 1, sent_at = $2, last_error = NULL WHERE id = $1`
			if _, err := tx.ExecContext(ctx, sentQ, n.ID, time.Now().UTC()); err != nil {
				return fmt.Errorf("mark notification sent: %w", err)
			}
		}
		return nil
	})
	return sent, failed, err
}

// ListByRegistration returns the notifications sent for a registration.
func (r *NotificationRepository) ListByRegistration(ctx context.Context, registrationID string) ([]models.Notification, error) {
	const query = `
		SELECT id, registration_id, recipient, subject, body, status, attempts, last_error, created_at, sent_at
		FROM notifications
		WHERE registration_id = $1
		ORDER BY created_at DESC`

	items := []models.Notification{}
	if err := r.db.SelectContext(ctx, &items, query, registrationID); err != nil {
		return nil, err
	}
	return items, nil
}
