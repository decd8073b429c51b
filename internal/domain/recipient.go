package domain

import (
	"time"
)

// RecipientStatus enumerates per-recipient delivery states.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// Recipient is one address loaded from an import session. The personal
// fields feed template rendering; missing fields render empty.
type Recipient struct {
	ID              string          `json:"id" db:"id"`
	ImportSessionID string          `json:"import_session_id" db:"import_session_id"`
	Name            string          `json:"name" db:"name"`
	Email           string          `json:"email" db:"email"`
	Category        string          `json:"category" db:"category"`
	Address         string          `json:"address" db:"address"`
	SendStatus      RecipientStatus `json:"send_status" db:"send_status"`
	SentAt          *time.Time      `json:"sent_at" db:"sent_at"`
	RetryCount      int             `json:"retry_count" db:"retry_count"`
	ErrorMessage    string          `json:"error_message" db:"error_message"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
