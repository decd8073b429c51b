package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// ErrAccountNotFound is returned when an account id matches no row.
var ErrAccountNotFound = errors.New("account not found")

// AccountRepo implements the dispatcher's account store against
// PostgreSQL.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed account repository.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

// Get returns a single account.
func (r *AccountRepo) Get(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, from_name, provider, credentials, status,
		       daily_limit, sent_today, last_reset_at,
		       max_per_hour, sent_this_hour, hour_started_at,
		       delay_between_emails_from, delay_between_emails_to,
		       created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// SaveCounters persists the quota state after a window reset or a send.
func (r *AccountRepo) SaveCounters(ctx context.Context, a *domain.Account) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET sent_today = $1, last_reset_at = $2,
		    sent_this_hour = $3, hour_started_at = $4,
		    updated_at = NOW()
		WHERE id = $5
	`, a.SentToday, a.LastResetAt, a.SentThisHour, a.HourStartedAt, a.ID)
	if err != nil {
		return fmt.Errorf("save counters: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetStatus transitions an account's status.
func (r *AccountRepo) SetStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("set account status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccount reads one account row in the column order the SELECTs in
// this package use. Credentials live in a single JSONB column.
func scanAccount(row rowScanner) (*domain.Account, error) {
	a := &domain.Account{}
	var creds []byte
	var lastReset, hourStarted sql.NullTime

	err := row.Scan(
		&a.ID, &a.Email, &a.FromName, &a.Provider, &creds, &a.Status,
		&a.DailyLimit, &a.SentToday, &lastReset,
		&a.MaxPerHour, &a.SentThisHour, &hourStarted,
		&a.DelayFromMs, &a.DelayToMs,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}

	if lastReset.Valid {
		a.LastResetAt = &lastReset.Time
	}
	if hourStarted.Valid {
		a.HourStartedAt = &hourStarted.Time
	}
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &a.Credentials); err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
	}
	return a, nil
}
