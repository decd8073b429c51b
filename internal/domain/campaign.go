package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// SendType distinguishes campaigns that start on demand from campaigns
// that start at a scheduled time.
type SendType string

const (
	SendImmediate SendType = "immediate"
	SendScheduled SendType = "scheduled"
)

// Campaign represents a bulk email campaign tied to one recipient import
// session and a pool of sender accounts.
type Campaign struct {
	ID              string         `json:"id" db:"id"`
	Name            string         `json:"name" db:"name"`
	Status          CampaignStatus `json:"status" db:"status"`
	SendType        SendType       `json:"send_type" db:"send_type"`
	ScheduledAt     *time.Time     `json:"scheduled_at" db:"scheduled_at"`
	ImportSessionID *string        `json:"import_session_id" db:"import_session_id"`

	// Stats, maintained incrementally as sends are persisted.
	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	TotalSent       int `json:"total_sent" db:"total_sent"`
	TotalFailed     int `json:"total_failed" db:"total_failed"`

	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`

	// Populated by queries that load the full dispatch view.
	Accounts  []Account  `json:"accounts,omitempty" db:"-"`
	Templates []Template `json:"templates,omitempty" db:"-"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed
}

// Template is one of the message variants a campaign rotates through.
// Dispatch picks a template uniformly at random per recipient.
type Template struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Subject   string    `json:"subject" db:"subject"`
	HTML      string    `json:"html" db:"html"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ImportSession groups the recipients loaded from one uploaded file.
// A campaign sends to exactly one session.
type ImportSession struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	FileName  string    `json:"file_name" db:"file_name"`
	Used      bool      `json:"used" db:"used"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
