package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository and the campaign store the
// dispatcher consumes, against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

// Get returns a campaign with its accounts and templates loaded.
func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var scheduledAt, startedAt, completedAt sql.NullTime
	var sessionID sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, status, send_type, scheduled_at, import_session_id,
		       total_recipients, total_sent, total_failed,
		       started_at, completed_at, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Name, &c.Status, &c.SendType, &scheduledAt, &sessionID,
		&c.TotalRecipients, &c.TotalSent, &c.TotalFailed,
		&startedAt, &completedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}

	if scheduledAt.Valid {
		c.ScheduledAt = &scheduledAt.Time
	}
	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	if sessionID.Valid && sessionID.String != "" {
		c.ImportSessionID = &sessionID.String
	}

	if c.Accounts, err = r.loadAccounts(ctx, id); err != nil {
		return nil, err
	}
	if c.Templates, err = r.loadTemplates(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

// GetForDispatch is Get under the dispatcher's store contract. A missing
// row maps to the dispatcher's sentinel so the carrying job is dropped
// instead of retried.
func (r *CampaignRepo) GetForDispatch(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := r.Get(ctx, id)
	if errors.Is(err, campaign.ErrNotFound) {
		return nil, dispatch.ErrCampaignNotFound
	}
	return c, err
}

func (r *CampaignRepo) loadAccounts(ctx context.Context, campaignID string) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.email, a.from_name, a.provider, a.credentials, a.status,
		       a.daily_limit, a.sent_today, a.last_reset_at,
		       a.max_per_hour, a.sent_this_hour, a.hour_started_at,
		       a.delay_between_emails_from, a.delay_between_emails_to,
		       a.created_at, a.updated_at
		FROM accounts a
		JOIN campaign_accounts ca ON ca.account_id = a.id
		WHERE ca.campaign_id = $1
		ORDER BY a.created_at ASC, a.id ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) loadTemplates(ctx context.Context, campaignID string) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, subject, html_content, created_at
		FROM email_templates
		WHERE campaign_id = $1
		ORDER BY created_at ASC, id ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.HTML, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// List returns campaigns matching the filter plus the unpaginated total.
// Accounts and templates are not loaded here.
func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaigns"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `
		SELECT id, name, status, send_type, import_session_id,
		       total_recipients, total_sent, total_failed, created_at, updated_at
		FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		var sessionID sql.NullString
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Status, &c.SendType, &sessionID,
			&c.TotalRecipients, &c.TotalSent, &c.TotalFailed, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		if sessionID.Valid && sessionID.String != "" {
			c.ImportSessionID = &sessionID.String
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Status reads just the status column. The dispatcher calls this before
// every send, so it stays a single-row point read and reports a vanished
// row with the dispatcher's sentinel.
func (r *CampaignRepo) Status(ctx context.Context, id string) (domain.CampaignStatus, error) {
	var s domain.CampaignStatus
	err := r.db.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id = $1`, id).Scan(&s)
	if err == sql.ErrNoRows {
		return "", dispatch.ErrCampaignNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read status: %w", err)
	}
	return s, nil
}

// SetStatus transitions a campaign's status.
func (r *CampaignRepo) SetStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// MarkRunning flips the campaign to running. started_at is only set the
// first time so restarts keep the original start.
func (r *CampaignRepo) MarkRunning(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'running', started_at = COALESCE(started_at, $1), updated_at = NOW()
		WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// MarkCompleted sets the terminal completed state.
func (r *CampaignRepo) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'completed', completed_at = $1, updated_at = NOW()
		WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// AddSent bumps the sent counter.
func (r *CampaignRepo) AddSent(ctx context.Context, id string, n int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET total_sent = total_sent + $1, updated_at = NOW()
		WHERE id = $2
	`, n, id)
	if err != nil {
		return fmt.Errorf("add sent: %w", err)
	}
	return nil
}

// AddFailed bumps the failed counter.
func (r *CampaignRepo) AddFailed(ctx context.Context, id string, n int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET total_failed = total_failed + $1, updated_at = NOW()
		WHERE id = $2
	`, n, id)
	if err != nil {
		return fmt.Errorf("add failed: %w", err)
	}
	return nil
}

// Delete removes a campaign. Account links and templates go with it via
// ON DELETE CASCADE.
func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// ReleaseAccounts returns the campaign's busy accounts to active.
func (r *CampaignRepo) ReleaseAccounts(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET status = 'active', updated_at = NOW()
		WHERE status IN ('in_use', 'limit_reached')
		  AND id IN (SELECT account_id FROM campaign_accounts WHERE campaign_id = $1)
	`, campaignID)
	if err != nil {
		return fmt.Errorf("release accounts: %w", err)
	}
	return nil
}

// RecipientCounts reports send progress for an import session.
func (r *CampaignRepo) RecipientCounts(ctx context.Context, sessionID string) (campaign.Counts, error) {
	var c campaign.Counts
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE send_status = 'pending'),
		       COUNT(*) FILTER (WHERE send_status = 'sent'),
		       COUNT(*) FILTER (WHERE send_status = 'failed')
		FROM email_recipients
		WHERE import_session_id = $1
	`, sessionID).Scan(&c.Pending, &c.Sent, &c.Failed)
	if err != nil {
		return campaign.Counts{}, fmt.Errorf("recipient counts: %w", err)
	}
	return c, nil
}
