package domain

import (
	"time"
)

// Provider enumerates the supported delivery transports.
type Provider string

const (
	ProviderSendGrid Provider = "sendgrid"
	ProviderMailgun  Provider = "mailgun"
	ProviderSES      Provider = "aws_ses"
	ProviderSMTP     Provider = "smtp"
)

// AccountStatus enumerates sender account states. Accounts flip to in_use
// while a running campaign holds them and back to active on completion;
// limit_reached marks an account blocked on its daily quota.
type AccountStatus string

const (
	AccountActive       AccountStatus = "active"
	AccountInUse        AccountStatus = "in_use"
	AccountPaused       AccountStatus = "paused"
	AccountLimitReached AccountStatus = "limit_reached"
)

// Credentials carries provider-specific secrets for an account. Only the
// fields relevant to the account's Provider are populated; the struct is
// stored as a single JSON column.
type Credentials struct {
	APIKey    string `json:"api_key,omitempty"`
	Domain    string `json:"domain,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
	Region    string `json:"region,omitempty"`
	SMTPHost  string `json:"smtp_host,omitempty"`
	SMTPPort  int    `json:"smtp_port,omitempty"`
	SMTPUser  string `json:"smtp_user,omitempty"`
	SMTPPass  string `json:"smtp_password,omitempty"`
}

// Account is a quota-limited sender identity. The daily window anchors at
// LastResetAt and the hourly window at HourStartedAt; nil anchors mean the
// window has never started.
type Account struct {
	ID          string        `json:"id" db:"id"`
	Email       string        `json:"email" db:"email"`
	FromName    string        `json:"from_name" db:"from_name"`
	Provider    Provider      `json:"provider" db:"provider"`
	Credentials Credentials   `json:"credentials" db:"credentials"`
	Status      AccountStatus `json:"status" db:"status"`

	DailyLimit    int        `json:"daily_limit" db:"daily_limit"`
	SentToday     int        `json:"sent_today" db:"sent_today"`
	LastResetAt   *time.Time `json:"last_reset_at" db:"last_reset_at"`
	MaxPerHour    int        `json:"max_per_hour" db:"max_per_hour"`
	SentThisHour  int        `json:"sent_this_hour" db:"sent_this_hour"`
	HourStartedAt *time.Time `json:"hour_started_at" db:"hour_started_at"`

	// Pacing between consecutive sends, milliseconds. Zero DelayFromMs
	// disables pacing.
	DelayFromMs int `json:"delay_between_emails_from" db:"delay_between_emails_from"`
	DelayToMs   int `json:"delay_between_emails_to" db:"delay_between_emails_to"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Sendable reports whether the account may participate in a dispatch pass
// at all. Quota checks are separate and happen per pass.
func (a *Account) Sendable() bool {
	return a.Status != AccountPaused
}
