package esp

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// SMTPSender delivers mail through an authenticated SMTP submission
// endpoint using STARTTLS.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
}

// NewSMTPSender creates an SMTP sender. Port defaults to 587.
func NewSMTPSender(host string, port int, username, password string) *SMTPSender {
	if port == 0 {
		port = 587
	}
	return &SMTPSender{host: host, port: port, username: username, password: password}
}

// Send delivers a single email over SMTP. The context deadline is not
// honored mid-session; the server connection has its own timeouts.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	if s.host == "" {
		return nil, fmt.Errorf("SMTP host not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	var auth sasl.Client
	if s.username != "" {
		auth = sasl.NewPlainClient("", s.username, s.password)
	}

	raw := buildMIME(msg)
	if err := smtp.SendMail(addr, auth, msg.FromEmail, []string{msg.To}, strings.NewReader(raw)); err != nil {
		log.Printf("[SMTP] Failed to send to %s via %s: %v", logger.RedactEmail(msg.To), addr, err)
		return &Result{Success: false, Reason: err.Error(), Provider: "smtp"}, nil
	}

	log.Printf("[SMTP] Sent to %s via %s", logger.RedactEmail(msg.To), addr)
	return &Result{Success: true, Provider: "smtp", SentAt: time.Now()}, nil
}

// buildMIME assembles a minimal single-part HTML message.
func buildMIME(msg *Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", msg.FromName, msg.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	b.WriteString("\r\n")
	return b.String()
}
