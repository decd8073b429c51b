package esp

import (
	"fmt"
	"sync"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Resolver maps sender accounts onto transport adapters. Adapters are
// built once per account and cached, so a dispatch pass resolves each
// account's transport a single time.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]Sender
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]Sender)}
}

// SenderFor returns the transport for the account's provider, building it
// from the account's credentials on first use. Unknown providers and
// incomplete credentials are configuration errors.
func (r *Resolver) SenderFor(a *domain.Account) (Sender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.cache[a.ID]; ok {
		return s, nil
	}

	s, err := build(a)
	if err != nil {
		return nil, err
	}
	r.cache[a.ID] = s
	return s, nil
}

// Invalidate drops the cached transport for an account, forcing a rebuild
// on next use (credentials rotated, account edited).
func (r *Resolver) Invalidate(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, accountID)
}

func build(a *domain.Account) (Sender, error) {
	c := a.Credentials
	switch a.Provider {
	case domain.ProviderSendGrid:
		if c.APIKey == "" {
			return nil, fmt.Errorf("account %s: no SendGrid API key", a.ID)
		}
		return NewSendGridSender(c.APIKey), nil
	case domain.ProviderMailgun:
		if c.APIKey == "" || c.Domain == "" {
			return nil, fmt.Errorf("account %s: incomplete Mailgun credentials", a.ID)
		}
		return NewMailgunSender(c.APIKey, c.Domain), nil
	case domain.ProviderSES:
		s, err := NewSESSender(c.AccessKey, c.SecretKey, c.Region)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", a.ID, err)
		}
		return s, nil
	case domain.ProviderSMTP:
		if c.SMTPHost == "" {
			return nil, fmt.Errorf("account %s: no SMTP host", a.ID)
		}
		return NewSMTPSender(c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPass), nil
	default:
		return nil, fmt.Errorf("account %s: unsupported provider %q", a.ID, a.Provider)
	}
}
