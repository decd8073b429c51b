package esp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ignite/campaign-dispatch/internal/pkg/httpretry"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// SendGridSender sends emails via the SendGrid v3 Mail Send API.
type SendGridSender struct {
	apiKey  string
	baseURL string
	client  httpretry.HTTPDoer
}

// NewSendGridSender creates a SendGrid sender.
func NewSendGridSender(apiKey string) *SendGridSender {
	return &SendGridSender{
		apiKey:  apiKey,
		baseURL: "https://api.sendgrid.com/v3",
		client:  httpretry.NewRetryClient(&http.Client{Timeout: 60 * time.Second}, 2),
	}
}

// Send delivers a single email through SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("SendGrid API key not configured")
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": msg.To}}},
		},
		"from":    map[string]string{"email": msg.FromEmail, "name": msg.FromName},
		"subject": msg.Subject,
		"content": []map[string]string{
			{"type": "text/html", "value": msg.HTML},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/mail/send", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &Result{Success: false, Reason: err.Error(), Provider: "sendgrid"}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return &Result{Success: false, Reason: fmt.Sprintf("SendGrid error %d: %s", resp.StatusCode, string(respBody)), Provider: "sendgrid"}, nil
	}

	messageID := resp.Header.Get("X-Message-Id")
	log.Printf("[SendGrid] Sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)

	return &Result{Success: true, MessageID: messageID, Provider: "sendgrid", SentAt: time.Now()}, nil
}
