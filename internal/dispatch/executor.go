package dispatch

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/esp"
	"github.com/ignite/campaign-dispatch/internal/template"
)

// SenderResolver yields the transport for an account. Satisfied by
// esp.Resolver.
type SenderResolver interface {
	SenderFor(a *domain.Account) (esp.Sender, error)
}

// Outcome is the result of one send attempt. Transport refusals are
// outcomes, not errors; the executor reserves error returns for broken
// transport configuration.
type Outcome struct {
	Sent       bool
	Reason     string
	TemplateID string
	Provider   string
}

// Executor performs a single send attempt: pick a template at random,
// render it for the recipient, deliver through the account's transport.
type Executor struct {
	resolver SenderResolver
	renderer *template.Renderer
	randIntn func(int) int
}

// NewExecutor creates an executor.
func NewExecutor(resolver SenderResolver, renderer *template.Renderer) *Executor {
	return &Executor{
		resolver: resolver,
		renderer: renderer,
		randIntn: rand.Intn,
	}
}

// Send attempts delivery of one recipient through one account. Template
// choice is uniform over the campaign's templates.
func (e *Executor) Send(ctx context.Context, acct *domain.Account, rec *domain.Recipient, templates []domain.Template) (*Outcome, error) {
	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}

	sender, err := e.resolver.SenderFor(acct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportConfig, err)
	}

	tpl := &templates[e.randIntn(len(templates))]
	subject, html := e.renderer.RenderMessage(tpl, rec)

	res, err := sender.Send(ctx, &esp.Message{
		FromEmail: acct.Email,
		FromName:  acct.FromName,
		To:        rec.Email,
		Subject:   subject,
		HTML:      html,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Outcome{Sent: false, Reason: err.Error(), TemplateID: tpl.ID, Provider: string(acct.Provider)}, nil
	}
	if !res.Success {
		return &Outcome{Sent: false, Reason: res.Reason, TemplateID: tpl.ID, Provider: res.Provider}, nil
	}
	return &Outcome{Sent: true, TemplateID: tpl.ID, Provider: res.Provider}, nil
}
