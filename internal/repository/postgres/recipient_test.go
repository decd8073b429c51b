package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

func TestRecipientMarkSentWinsFlip(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	at := time.Now()
	mock.ExpectExec("send_status = 'sent'").
		WithArgs(at, "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRecipientRepo(db)
	ok, err := repo.MarkSent(context.Background(), "r1", at)
	if err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if !ok {
		t.Error("expected the flip to win")
	}
}

func TestRecipientMarkSentAlreadyHandled(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	at := time.Now()
	mock.ExpectExec("send_status = 'sent'").
		WithArgs(at, "r1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRecipientRepo(db)
	ok, err := repo.MarkSent(context.Background(), "r1", at)
	if err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if ok {
		t.Error("a non-pending row must not report a win")
	}
}

func TestRecipientMarkFailedBumpsRetry(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("retry_count = retry_count \\+ 1").
		WithArgs("mailbox unavailable", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRecipientRepo(db)
	if err := repo.MarkFailed(context.Background(), "r1", "mailbox unavailable"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRecipientListPendingOrdering(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("ORDER BY created_at ASC, id ASC").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "import_session_id", "name", "email",
			"category", "address",
			"send_status", "sent_at", "retry_count", "error_message", "created_at",
		}).
			AddRow("r1", "sess-1", "Alice", "alice@example.com", "vip", "", "pending", nil, 0, "", now).
			AddRow("r2", "sess-1", "Bob", "bob@example.com", "", "", "pending", nil, 0, "", now))

	repo := NewRecipientRepo(db)
	out, err := repo.ListPending(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(out) != 2 || out[0].ID != "r1" || out[1].ID != "r2" {
		t.Fatalf("order broken: %+v", out)
	}
	if out[0].SentAt != nil {
		t.Error("null sent_at must stay nil")
	}
}

func TestRecipientCountPending(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM email_recipients").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	repo := NewRecipientRepo(db)
	n, err := repo.CountPending(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if n != 7 {
		t.Errorf("count = %d, want 7", n)
	}
}

func TestAccountSaveCountersNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("SET sent_today").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewAccountRepo(db)
	if err := repo.SaveCounters(context.Background(), &domain.Account{ID: "ghost"}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestAccountSetStatus(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE accounts SET status").
		WithArgs("in_use", "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAccountRepo(db)
	if err := repo.SetStatus(context.Background(), "a1", "in_use"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
}
