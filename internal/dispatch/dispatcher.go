package dispatch

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/jobqueue"
	"github.com/ignite/campaign-dispatch/internal/metrics"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/quota"
)

const (
	// JobDispatchCampaign is the job name every dispatch pass runs under.
	JobDispatchCampaign = "dispatch-campaign"

	// DailyCronSpec re-arms every campaign shortly after the most common
	// daily window rollover.
	DailyCronSpec = "0 1 * * *"

	// continueDelay separates back-to-back passes of the same campaign
	// when capacity ran out mid-pass without a blocking constraint.
	continueDelay = time.Second

	// failureCooldown rests an account after a transport failure before
	// any pass uses it again.
	failureCooldown = time.Hour
)

// PassPayload is the job payload for a dispatch pass.
type PassPayload struct {
	CampaignID string `json:"campaignId"`
}

// PassResult summarizes what one dispatch pass did.
type PassResult struct {
	CampaignID  string        `json:"campaign_id"`
	Sent        int           `json:"sent"`
	Failed      int           `json:"failed"`
	Remaining   int           `json:"remaining"`
	Completed   bool          `json:"completed"`
	Aborted     bool          `json:"aborted"`
	Rescheduled bool          `json:"rescheduled"`
	Reason      Reason        `json:"reschedule_reason"`
	Delay       time.Duration `json:"reschedule_delay"`
}

func (r *PassResult) outcome() string {
	switch {
	case r.Completed:
		return "completed"
	case r.Aborted:
		return "aborted"
	case r.Rescheduled:
		return "rescheduled"
	default:
		return "noop"
	}
}

// Dispatcher runs dispatch passes. One Dispatcher serves all campaigns;
// per-campaign serialization is the caller's job (distributed lock around
// RunPass).
type Dispatcher struct {
	campaigns  CampaignStore
	accounts   AccountStore
	recipients RecipientStore
	executor   *Executor
	planner    *Planner
	queue      JobQueue

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	randIntn func(int) int
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(campaigns CampaignStore, accounts AccountStore, recipients RecipientStore, executor *Executor, planner *Planner, queue JobQueue) *Dispatcher {
	return &Dispatcher{
		campaigns:  campaigns,
		accounts:   accounts,
		recipients: recipients,
		executor:   executor,
		planner:    planner,
		queue:      queue,
		now:        time.Now,
		sleep:      sleepCtx,
		randIntn:   rand.Intn,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunPass executes one dispatch pass for the campaign. Store errors
// propagate so the surrounding job retries; configuration errors come
// back wrapped so the caller can drop the job instead.
func (d *Dispatcher) RunPass(ctx context.Context, campaignID string) (*PassResult, error) {
	started := d.now()
	res, err := d.runPass(ctx, campaignID)
	if res != nil {
		metrics.ObservePass(res.outcome(), d.now().Sub(started))
	}
	return res, err
}

func (d *Dispatcher) runPass(ctx context.Context, campaignID string) (*PassResult, error) {
	c, err := d.campaigns.GetForDispatch(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}

	res := &PassResult{CampaignID: c.ID}

	// A re-delivered job for a finished campaign is a no-op.
	if c.IsTerminal() {
		log.Printf("[Dispatcher] Campaign %s already %s, nothing to do", c.ID, c.Status)
		res.Completed = c.Status == domain.CampaignCompleted
		return res, nil
	}

	if len(c.Accounts) == 0 {
		return nil, fmt.Errorf("campaign %s: %w", c.ID, ErrNoAccounts)
	}
	if len(c.Templates) == 0 {
		return nil, fmt.Errorf("campaign %s: %w", c.ID, ErrNoTemplates)
	}
	if c.ImportSessionID == nil || *c.ImportSessionID == "" {
		return nil, fmt.Errorf("campaign %s: %w", c.ID, ErrNoImportSession)
	}
	session := *c.ImportSessionID

	if c.Status != domain.CampaignRunning {
		if err := d.campaigns.MarkRunning(ctx, c.ID, d.now()); err != nil {
			return nil, fmt.Errorf("mark running: %w", err)
		}
		c.Status = domain.CampaignRunning
	}

	pending, err := d.recipients.ListPending(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	metrics.SetPendingRecipients(c.ID, len(pending))
	if len(pending) == 0 {
		return res, d.complete(ctx, c, res)
	}

	// Claim the pool for this pass.
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.Sendable() && a.Status != domain.AccountInUse {
			if err := d.accounts.SetStatus(ctx, a.ID, domain.AccountInUse); err != nil {
				return nil, fmt.Errorf("claim account %s: %w", a.ID, err)
			}
			a.Status = domain.AccountInUse
		}
	}

	slices := Distribute(len(pending), len(c.Accounts))
	var constraints []Constraint

	log.Printf("[Dispatcher] Campaign %s: %d pending across %d accounts", c.ID, len(pending), len(c.Accounts))

accountLoop:
	for i := range c.Accounts {
		acct := &c.Accounts[i]
		if !acct.Sendable() {
			continue
		}

		if quota.RefreshWindows(acct, d.now()) {
			if err := d.accounts.SaveCounters(ctx, acct); err != nil {
				return nil, fmt.Errorf("save account %s: %w", acct.ID, err)
			}
		}

		if quota.DailyBlocked(acct) {
			constraints = append(constraints, Constraint{
				AccountID: acct.ID,
				Reason:    ReasonDailyLimit,
				Wait:      quota.UntilDailyReset(acct, d.now()),
			})
			if err := d.accounts.SetStatus(ctx, acct.ID, domain.AccountLimitReached); err != nil {
				return nil, fmt.Errorf("flag account %s: %w", acct.ID, err)
			}
			acct.Status = domain.AccountLimitReached
			continue
		}
		if quota.HourlyBlocked(acct) {
			constraints = append(constraints, Constraint{
				AccountID: acct.ID,
				Reason:    ReasonHourlyLimit,
				Wait:      quota.UntilHourlyReset(acct, d.now()),
			})
			continue
		}

		capacity := quota.Capacity(acct)
		slice := slices[i]
		sent := 0

		for j := slice.Start; j < slice.End && sent < capacity; j++ {
			rec := &pending[j]

			// Cooperative cancellation: an external pause or completion
			// aborts the whole pass, not just this account.
			status, err := d.campaigns.Status(ctx, c.ID)
			if err != nil {
				return nil, fmt.Errorf("re-read status: %w", err)
			}
			if status != domain.CampaignRunning {
				log.Printf("[Dispatcher] Campaign %s is %s, aborting pass", c.ID, status)
				res.Aborted = true
				return res, nil
			}

			outcome, err := d.executor.Send(ctx, acct, rec, c.Templates)
			if err != nil {
				return nil, fmt.Errorf("send via %s: %w", acct.ID, err)
			}

			if !outcome.Sent {
				metrics.IncEmailFailed(outcome.Provider)
				logger.Warn("send failed",
					"campaign_id", c.ID,
					"account_id", acct.ID,
					"recipient_email", rec.Email,
					"reason", outcome.Reason,
				)
				if err := d.recipients.MarkFailed(ctx, rec.ID, outcome.Reason); err != nil {
					return nil, fmt.Errorf("mark failed: %w", err)
				}
				if err := d.campaigns.AddFailed(ctx, c.ID, 1); err != nil {
					return nil, fmt.Errorf("count failure: %w", err)
				}
				res.Failed++
				constraints = append(constraints, Constraint{
					AccountID: acct.ID,
					Reason:    ReasonSendFailure,
					Wait:      failureCooldown,
				})
				// Rest this account for the remainder of the pass.
				continue accountLoop
			}

			ok, err := d.recipients.MarkSent(ctx, rec.ID, d.now())
			if err != nil {
				return nil, fmt.Errorf("mark sent: %w", err)
			}
			if ok {
				acct.SentToday++
				acct.SentThisHour++
				if err := d.accounts.SaveCounters(ctx, acct); err != nil {
					return nil, fmt.Errorf("save account %s: %w", acct.ID, err)
				}
				if err := d.campaigns.AddSent(ctx, c.ID, 1); err != nil {
					return nil, fmt.Errorf("count send: %w", err)
				}
				res.Sent++
				metrics.IncEmailSent(outcome.Provider)
				logger.Info("send ok",
					"campaign_id", c.ID,
					"account_id", acct.ID,
					"recipient_email", rec.Email,
					"template_id", outcome.TemplateID,
				)
			}
			sent++

			if quota.HourlyBlocked(acct) {
				constraints = append(constraints, Constraint{
					AccountID: acct.ID,
					Reason:    ReasonHourlyLimit,
					Wait:      quota.UntilHourlyReset(acct, d.now()),
				})
				continue accountLoop
			}

			if acct.DelayFromMs > 0 && j+1 < slice.End && sent < capacity {
				if err := d.pace(ctx, acct); err != nil {
					return nil, err
				}
			}
		}
	}

	remaining, err := d.recipients.CountPending(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}
	res.Remaining = remaining
	metrics.SetPendingRecipients(c.ID, remaining)

	if remaining == 0 {
		return res, d.complete(ctx, c, res)
	}

	if delay, reason, ok := d.planner.Plan(constraints); ok {
		res.Rescheduled = true
		res.Reason = reason
		res.Delay = delay
		key := fmt.Sprintf("campaign-%s-scheduled", c.ID)
		if _, _, err := d.queue.Enqueue(ctx, JobDispatchCampaign, PassPayload{CampaignID: c.ID}, jobqueue.Options{
			Delay:   delay,
			Key:     key,
			Replace: true,
		}); err != nil {
			return nil, fmt.Errorf("enqueue reschedule: %w", err)
		}
		metrics.IncReschedule(string(reason))
		log.Printf("[Dispatcher] Campaign %s: %d remaining, rescheduled in %s (%s)", c.ID, remaining, delay, reason)
		return res, nil
	}

	// Capacity ran out mid-pass without a blocking constraint; continue
	// almost immediately so fresh capacity is probed on a new pass.
	res.Rescheduled = true
	res.Reason = ReasonNone
	res.Delay = continueDelay
	key := fmt.Sprintf("campaign-%s-continue-%d", c.ID, d.now().UnixMilli())
	if _, _, err := d.queue.Enqueue(ctx, JobDispatchCampaign, PassPayload{CampaignID: c.ID}, jobqueue.Options{
		Delay: continueDelay,
		Key:   key,
	}); err != nil {
		return nil, fmt.Errorf("enqueue continuation: %w", err)
	}
	metrics.IncReschedule(string(ReasonNone))
	log.Printf("[Dispatcher] Campaign %s: %d remaining, continuing", c.ID, remaining)
	return res, nil
}

// complete finishes a campaign: terminal status, accounts released, the
// repeatable daily job dropped.
func (d *Dispatcher) complete(ctx context.Context, c *domain.Campaign, res *PassResult) error {
	if err := d.campaigns.MarkCompleted(ctx, c.ID, d.now()); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.Status == domain.AccountInUse || a.Status == domain.AccountLimitReached {
			if err := d.accounts.SetStatus(ctx, a.ID, domain.AccountActive); err != nil {
				return fmt.Errorf("release account %s: %w", a.ID, err)
			}
			a.Status = domain.AccountActive
		}
	}
	if err := d.queue.RemoveRepeatable(ctx, "campaign-"+c.ID); err != nil {
		return fmt.Errorf("remove repeatable: %w", err)
	}
	res.Completed = true
	log.Printf("[Dispatcher] Campaign %s completed (sent=%d failed=%d)", c.ID, res.Sent, res.Failed)
	return nil
}

// pace sleeps a uniform random duration in the account's delay range.
func (d *Dispatcher) pace(ctx context.Context, acct *domain.Account) error {
	from, to := acct.DelayFromMs, acct.DelayToMs
	if to < from {
		to = from
	}
	ms := from
	if span := to - from; span > 0 {
		ms += d.randIntn(span + 1)
	}
	return d.sleep(ctx, time.Duration(ms)*time.Millisecond)
}
