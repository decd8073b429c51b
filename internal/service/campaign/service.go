package campaign

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/esp"
	"github.com/ignite/campaign-dispatch/internal/jobqueue"
	"github.com/ignite/campaign-dispatch/internal/template"
)

// reportDailyPerAccount is the rough per-account daily throughput used for
// queue report ETAs. Real throughput depends on each account's limits;
// this is only a planning figure.
const reportDailyPerAccount = 300

// SenderResolver yields the transport for an account. Satisfied by
// esp.Resolver.
type SenderResolver interface {
	SenderFor(a *domain.Account) (esp.Sender, error)
}

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo     Repository
	jobs     Jobs
	resolver SenderResolver
	renderer *template.Renderer

	now      func() time.Time
	randIntn func(int) int
}

// NewService creates a campaign service.
func NewService(repo Repository, jobs Jobs, resolver SenderResolver, renderer *template.Renderer) *Service {
	return &Service{
		repo:     repo,
		jobs:     jobs,
		resolver: resolver,
		renderer: renderer,
		now:      time.Now,
		randIntn: rand.Intn,
	}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// Start kicks off sending: an immediate dispatch job plus a repeatable
// daily one that picks the campaign back up after limit windows roll
// over. The first pass flips the status to running.
func (s *Service) Start(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	switch c.Status {
	case domain.CampaignDraft, domain.CampaignScheduled, domain.CampaignPaused:
	default:
		return fmt.Errorf("start from %s: %w", c.Status, ErrInvalidTransition)
	}
	return s.schedule(ctx, c.ID)
}

// Pause stops a running campaign. The in-flight pass notices the status
// change and aborts; pending jobs are dropped so nothing restarts it.
func (s *Service) Pause(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignRunning {
		return fmt.Errorf("pause from %s: %w", c.Status, ErrInvalidTransition)
	}
	if err := s.repo.SetStatus(ctx, id, domain.CampaignPaused); err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if err := s.removeJobs(ctx, id); err != nil {
		return err
	}
	log.Printf("[campaign.Service] Campaign %s paused", id)
	return nil
}

// Resume restarts a paused campaign.
func (s *Service) Resume(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignPaused {
		return fmt.Errorf("resume from %s: %w", c.Status, ErrInvalidTransition)
	}
	return s.schedule(ctx, c.ID)
}

// Complete force-finishes a campaign regardless of remaining recipients:
// terminal status, jobs dropped, accounts released. Completing a
// completed campaign is a no-op.
func (s *Service) Complete(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.IsTerminal() {
		return nil
	}
	if err := s.removeJobs(ctx, id); err != nil {
		return err
	}
	if err := s.repo.MarkCompleted(ctx, id, s.now()); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if err := s.repo.ReleaseAccounts(ctx, id); err != nil {
		return fmt.Errorf("release accounts: %w", err)
	}
	log.Printf("[campaign.Service] Campaign %s force-completed", id)
	return nil
}

// Delete removes a non-running campaign and its jobs.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == domain.CampaignRunning {
		return ErrCampaignRunning
	}
	if err := s.removeJobs(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// Report describes a campaign's queue from the outside: progress counts
// and a rough completion estimate.
type Report struct {
	CampaignID    string                `json:"campaign_id"`
	Status        domain.CampaignStatus `json:"status"`
	Counts        Counts                `json:"counts"`
	Accounts      int                   `json:"accounts"`
	EstimatedDays int                   `json:"estimated_days"`
}

// QueueReport summarizes send progress. The estimate assumes each account
// moves about reportDailyPerAccount emails a day.
func (s *Service) QueueReport(ctx context.Context, id string) (*Report, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r := &Report{
		CampaignID: c.ID,
		Status:     c.Status,
		Accounts:   len(c.Accounts),
	}
	if c.ImportSessionID != nil && *c.ImportSessionID != "" {
		counts, err := s.repo.RecipientCounts(ctx, *c.ImportSessionID)
		if err != nil {
			return nil, fmt.Errorf("recipient counts: %w", err)
		}
		r.Counts = counts
	}
	if r.Counts.Pending > 0 && r.Accounts > 0 {
		perDay := r.Accounts * reportDailyPerAccount
		r.EstimatedDays = int(math.Ceil(float64(r.Counts.Pending) / float64(perDay)))
	}
	return r, nil
}

// SendTest delivers one rendered message to the given address through the
// campaign's first sendable account. Counters and recipient state are
// left untouched.
func (s *Service) SendTest(ctx context.Context, id, toAddress string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if len(c.Templates) == 0 {
		return ErrNoTemplates
	}

	var acct *domain.Account
	for i := range c.Accounts {
		if c.Accounts[i].Sendable() {
			acct = &c.Accounts[i]
			break
		}
	}
	if acct == nil {
		return ErrNoSendableAccount
	}

	sender, err := s.resolver.SenderFor(acct)
	if err != nil {
		return fmt.Errorf("resolve sender: %w", err)
	}

	tpl := &c.Templates[s.randIntn(len(c.Templates))]
	rec := &domain.Recipient{Name: "Test Recipient", Email: toAddress, Category: "test"}
	subject, html := s.renderer.RenderMessage(tpl, rec)

	res, err := sender.Send(ctx, &esp.Message{
		FromEmail: acct.Email,
		FromName:  acct.FromName,
		To:        toAddress,
		Subject:   "[TEST] " + subject,
		HTML:      html,
	})
	if err != nil {
		return fmt.Errorf("test send: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("test send refused: %s", res.Reason)
	}
	log.Printf("[campaign.Service] Campaign %s: test message sent via %s", id, acct.ID)
	return nil
}

// schedule arms the dispatch jobs for a campaign.
func (s *Service) schedule(ctx context.Context, id string) error {
	payload := dispatch.PassPayload{CampaignID: id}

	key := fmt.Sprintf("campaign-%s-immediate-%d", id, s.now().UnixMilli())
	if _, _, err := s.jobs.Enqueue(ctx, dispatch.JobDispatchCampaign, payload, jobqueue.Options{Key: key}); err != nil {
		return fmt.Errorf("enqueue dispatch: %w", err)
	}
	if err := s.jobs.AddRepeatable(ctx, dispatch.JobDispatchCampaign, payload, dispatch.DailyCronSpec, "campaign-"+id); err != nil {
		return fmt.Errorf("register daily dispatch: %w", err)
	}
	log.Printf("[campaign.Service] Campaign %s scheduled for dispatch", id)
	return nil
}

// removeJobs drops everything the queue may still hold for a campaign:
// the repeatable registration, the planned reschedule, and any pending
// immediate or continuation jobs.
func (s *Service) removeJobs(ctx context.Context, id string) error {
	if err := s.jobs.RemoveRepeatable(ctx, "campaign-"+id); err != nil {
		return fmt.Errorf("remove repeatable: %w", err)
	}
	if err := s.jobs.Remove(ctx, fmt.Sprintf("campaign-%s-scheduled", id)); err != nil {
		return fmt.Errorf("remove scheduled: %w", err)
	}
	if _, err := s.jobs.RemoveByPrefix(ctx, fmt.Sprintf("campaign-%s-continue-", id)); err != nil {
		return fmt.Errorf("remove continuations: %w", err)
	}
	if _, err := s.jobs.RemoveByPrefix(ctx, fmt.Sprintf("campaign-%s-immediate-", id)); err != nil {
		return fmt.Errorf("remove immediates: %w", err)
	}
	return nil
}
