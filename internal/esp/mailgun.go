package esp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/campaign-dispatch/internal/pkg/httpretry"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// MailgunSender sends emails via the Mailgun Messages API.
type MailgunSender struct {
	apiKey  string
	domain  string
	baseURL string
	client  httpretry.HTTPDoer
}

// NewMailgunSender creates a Mailgun sender targeting the given domain.
func NewMailgunSender(apiKey, domain string) *MailgunSender {
	return &MailgunSender{
		apiKey:  apiKey,
		domain:  domain,
		baseURL: "https://api.mailgun.net/v3",
		client:  httpretry.NewRetryClient(&http.Client{Timeout: 60 * time.Second}, 2),
	}
}

// Send delivers a single email through Mailgun.
func (s *MailgunSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("Mailgun API key not configured")
	}

	form := url.Values{}
	form.Add("from", fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail))
	form.Add("to", msg.To)
	form.Add("subject", msg.Subject)
	form.Add("html", msg.HTML)

	endpoint := fmt.Sprintf("%s/%s/messages", s.baseURL, s.domain)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return &Result{Success: false, Reason: err.Error(), Provider: "mailgun"}, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return &Result{Success: false, Reason: fmt.Sprintf("Mailgun error %d: %s", resp.StatusCode, string(body)), Provider: "mailgun"}, nil
	}

	var result struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	json.Unmarshal(body, &result)
	messageID := strings.Trim(result.ID, "<>")
	log.Printf("[Mailgun] Sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)

	return &Result{Success: true, MessageID: messageID, Provider: "mailgun", SentAt: time.Now()}, nil
}
