// Package esp contains the delivery transport adapters and the resolver
// that maps a sender account's provider and credentials onto one of them.
//
// Adapters are split into individual files:
//   - ses.go:      AWS SES v2
//   - mailgun.go:  Mailgun Messages API
//   - sendgrid.go: SendGrid v3 Mail Send
//   - smtp.go:     authenticated SMTP submission
package esp

import (
	"context"
	"time"
)

// Message is a single outbound email.
type Message struct {
	FromEmail string
	FromName  string
	To        string
	Subject   string
	HTML      string
}

// Result reports the outcome of one delivery attempt. A refused or
// errored send comes back as Success=false with Reason set; adapters
// reserve error returns for request construction problems.
type Result struct {
	Success   bool
	MessageID string
	Reason    string
	Provider  string
	SentAt    time.Time
}

// Sender delivers a single message through one transport.
type Sender interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
}
