package dispatch

import (
	"context"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/jobqueue"
)

// CampaignStore is the campaign persistence the dispatcher needs.
type CampaignStore interface {
	// GetForDispatch loads a campaign with its accounts and templates.
	// Returns ErrCampaignNotFound when the row is gone.
	GetForDispatch(ctx context.Context, id string) (*domain.Campaign, error)
	// Status re-reads just the status column. Called before every send
	// so a pause lands mid-pass.
	Status(ctx context.Context, id string) (domain.CampaignStatus, error)
	MarkRunning(ctx context.Context, id string, at time.Time) error
	MarkCompleted(ctx context.Context, id string, at time.Time) error
	AddSent(ctx context.Context, id string, n int) error
	AddFailed(ctx context.Context, id string, n int) error
}

// AccountStore persists account counters, window anchors, and status.
type AccountStore interface {
	SaveCounters(ctx context.Context, a *domain.Account) error
	SetStatus(ctx context.Context, id string, status domain.AccountStatus) error
}

// RecipientStore persists per-recipient delivery state.
type RecipientStore interface {
	// ListPending returns pending recipients of a session, oldest first.
	ListPending(ctx context.Context, sessionID string) ([]domain.Recipient, error)
	// MarkSent flips a recipient to sent only if it is still pending;
	// the bool reports whether this call won the flip.
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, errMsg string) error
	CountPending(ctx context.Context, sessionID string) (int, error)
}

// JobQueue is the slice of the job mechanism the dispatcher drives.
type JobQueue interface {
	Enqueue(ctx context.Context, name string, payload interface{}, opts jobqueue.Options) (string, bool, error)
	RemoveRepeatable(ctx context.Context, key string) error
}
