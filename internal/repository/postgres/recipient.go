package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// RecipientRepo implements the dispatcher's recipient store against
// PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

// ListPending returns the session's pending recipients in import order.
// Every pass sees the same ordering, which keeps the per-account slices
// stable across passes.
func (r *RecipientRepo) ListPending(ctx context.Context, sessionID string) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, import_session_id, name, email,
		       COALESCE(category, ''), COALESCE(address, ''),
		       send_status, sent_at, retry_count, COALESCE(error_message, ''), created_at
		FROM email_recipients
		WHERE import_session_id = $1 AND send_status = 'pending'
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		var sentAt sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.ImportSessionID, &rec.Name, &rec.Email,
			&rec.Category, &rec.Address,
			&rec.SendStatus, &sentAt, &rec.RetryCount, &rec.ErrorMessage, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if sentAt.Valid {
			rec.SentAt = &sentAt.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkSent flips a recipient from pending to sent. The status guard in
// the WHERE clause makes redelivered passes skip already-handled rows;
// the returned bool reports whether this call won the flip.
func (r *RecipientRepo) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_recipients
		SET send_status = 'sent', sent_at = $1
		WHERE id = $2 AND send_status = 'pending'
	`, at, id)
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkFailed records a delivery failure.
func (r *RecipientRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_recipients
		SET send_status = 'failed', error_message = $1, retry_count = retry_count + 1
		WHERE id = $2
	`, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// CountPending returns how many of the session's recipients still wait.
func (r *RecipientRepo) CountPending(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM email_recipients
		WHERE import_session_id = $1 AND send_status = 'pending'
	`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}
