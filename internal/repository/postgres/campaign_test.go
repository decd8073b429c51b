package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/service/campaign"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func TestCampaignGetLoadsAccountsAndTemplates(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("FROM campaigns").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "status", "send_type", "scheduled_at", "import_session_id",
			"total_recipients", "total_sent", "total_failed",
			"started_at", "completed_at", "created_at", "updated_at",
		}).AddRow("c1", "spring promo", "running", "immediate", nil, "sess-1",
			100, 40, 2, now, nil, now, now))

	mock.ExpectQuery("JOIN campaign_accounts").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "from_name", "provider", "credentials", "status",
			"daily_limit", "sent_today", "last_reset_at",
			"max_per_hour", "sent_this_hour", "hour_started_at",
			"delay_between_emails_from", "delay_between_emails_to",
			"created_at", "updated_at",
		}).AddRow("a1", "a1@sender.test", "A One", "smtp",
			[]byte(`{"smtp_host":"mail.test","smtp_port":587,"smtp_user":"u","smtp_password":"p"}`),
			"active", 500, 10, now, 100, 3, now, 0, 0, now, now))

	mock.ExpectQuery("FROM email_templates").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "subject", "html_content", "created_at",
		}).AddRow("t1", "welcome", "Hi {{name}}", "<p>hi</p>", now))

	repo := NewCampaignRepo(db)
	c, err := repo.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.ImportSessionID == nil || *c.ImportSessionID != "sess-1" {
		t.Errorf("session id: %v", c.ImportSessionID)
	}
	if len(c.Accounts) != 1 || len(c.Templates) != 1 {
		t.Fatalf("loaded %d accounts, %d templates", len(c.Accounts), len(c.Templates))
	}
	if c.Accounts[0].Credentials.SMTPHost != "mail.test" {
		t.Errorf("credentials not decoded: %+v", c.Accounts[0].Credentials)
	}
	if c.Templates[0].Subject != "Hi {{name}}" {
		t.Errorf("template subject %q", c.Templates[0].Subject)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCampaignGetNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM campaigns").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	repo := NewCampaignRepo(db)
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetForDispatchNotFoundDropsJob(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM campaigns").WithArgs("gone").WillReturnError(sql.ErrNoRows)

	repo := NewCampaignRepo(db)
	_, err := repo.GetForDispatch(context.Background(), "gone")
	if !errors.Is(err, dispatch.ErrCampaignNotFound) {
		t.Fatalf("err = %v, want ErrCampaignNotFound", err)
	}
	if !dispatch.ConfigError(err) {
		t.Error("a vanished campaign must discard its job, not retry it")
	}
}

func TestCampaignStatusNotFoundDropsJob(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT status FROM campaigns").WithArgs("gone").WillReturnError(sql.ErrNoRows)

	repo := NewCampaignRepo(db)
	_, err := repo.Status(context.Background(), "gone")
	if !errors.Is(err, dispatch.ErrCampaignNotFound) {
		t.Fatalf("err = %v, want ErrCampaignNotFound", err)
	}
	if !dispatch.ConfigError(err) {
		t.Error("a vanished campaign must discard its job, not retry it")
	}
}

func TestCampaignMarkRunningKeepsFirstStart(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	at := time.Now()
	mock.ExpectExec("COALESCE\\(started_at").
		WithArgs(at, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewCampaignRepo(db)
	if err := repo.MarkRunning(context.Background(), "c1", at); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCampaignSetStatusNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE campaigns SET status").
		WithArgs("paused", "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewCampaignRepo(db)
	err := repo.SetStatus(context.Background(), "nope", domain.CampaignPaused)
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCampaignAddSent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("total_sent = total_sent").
		WithArgs(1, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewCampaignRepo(db)
	if err := repo.AddSent(context.Background(), "c1", 1); err != nil {
		t.Fatalf("AddSent: %v", err)
	}
}

func TestCampaignReleaseAccounts(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE accounts SET status = 'active'").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewCampaignRepo(db)
	if err := repo.ReleaseAccounts(context.Background(), "c1"); err != nil {
		t.Fatalf("ReleaseAccounts: %v", err)
	}
}

func TestCampaignRecipientCounts(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM email_recipients").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"pending", "sent", "failed"}).AddRow(10, 5, 1))

	repo := NewCampaignRepo(db)
	c, err := repo.RecipientCounts(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("RecipientCounts: %v", err)
	}
	if c.Pending != 10 || c.Sent != 5 || c.Failed != 1 {
		t.Errorf("counts: %+v", c)
	}
}

func TestCampaignList(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM campaigns").
		WithArgs("running").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs("running", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "status", "send_type", "import_session_id",
			"total_recipients", "total_sent", "total_failed", "created_at", "updated_at",
		}).AddRow("c1", "spring promo", "running", "immediate", nil, 100, 40, 2, now, now))

	repo := NewCampaignRepo(db)
	out, total, err := repo.List(context.Background(), campaign.ListFilter{Status: "running"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(out) != 1 {
		t.Fatalf("got %d campaigns (total %d)", len(out), total)
	}
	if out[0].ImportSessionID != nil {
		t.Error("null session id must stay nil")
	}
}
