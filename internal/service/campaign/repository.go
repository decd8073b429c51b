package campaign

import (
	"context"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/jobqueue"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a campaign with its accounts and templates loaded.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter, ordered by created_at
	// DESC, plus the unpaginated total.
	List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error)

	// SetStatus transitions a campaign's status.
	SetStatus(ctx context.Context, id string, status domain.CampaignStatus) error

	// MarkCompleted sets completed status and the completion timestamp.
	MarkCompleted(ctx context.Context, id string, at time.Time) error

	// Delete removes a campaign and its account links.
	Delete(ctx context.Context, id string) error

	// ReleaseAccounts returns the campaign's in_use and limit_reached
	// accounts to active.
	ReleaseAccounts(ctx context.Context, campaignID string) error

	// RecipientCounts reports send progress for an import session.
	RecipientCounts(ctx context.Context, sessionID string) (Counts, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// Counts is the per-session recipient breakdown.
type Counts struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// Jobs is the slice of the job queue the service drives. Satisfied by
// jobqueue.Queue.
type Jobs interface {
	Enqueue(ctx context.Context, name string, payload interface{}, opts jobqueue.Options) (string, bool, error)
	AddRepeatable(ctx context.Context, name string, payload interface{}, spec, key string) error
	RemoveRepeatable(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
	RemoveByPrefix(ctx context.Context, prefix string) (int, error)
}
