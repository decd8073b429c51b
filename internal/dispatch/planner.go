package dispatch

import "time"

// Reason labels why a pass wants to run again later.
type Reason string

const (
	ReasonNone        Reason = "none"
	ReasonDailyLimit  Reason = "daily_limit"
	ReasonHourlyLimit Reason = "hourly_limit"
	ReasonSendFailure Reason = "send_failure"
)

// Constraint is one limit a pass ran into: which account, why, and how
// long until that account frees up.
type Constraint struct {
	AccountID string
	Reason    Reason
	Wait      time.Duration
}

// Strategy selects how the planner combines constraints.
type Strategy int

const (
	// StrategyMax waits until every binding constraint has cleared, so
	// the next pass finds all blocked accounts usable again.
	StrategyMax Strategy = iota
	// StrategyMin resumes as soon as any capacity frees up, trading
	// extra wake-ups for earlier delivery.
	StrategyMin
)

// Planner turns the constraints observed during a pass into a reschedule
// decision.
type Planner struct {
	strategy Strategy
	floor    time.Duration
}

// NewPlanner creates a planner. Limit-driven delays are floored at one
// minute so a cluster of nearly-elapsed windows does not produce a
// stampede of immediate retries.
func NewPlanner(s Strategy) *Planner {
	return &Planner{strategy: s, floor: time.Minute}
}

// Plan picks the delay and reason for the next pass. The reason is that
// of the constraint whose wait was selected. ok is false when there are
// no constraints and no reschedule is called for.
func (p *Planner) Plan(constraints []Constraint) (delay time.Duration, reason Reason, ok bool) {
	if len(constraints) == 0 {
		return 0, ReasonNone, false
	}

	chosen := constraints[0]
	for _, c := range constraints[1:] {
		switch p.strategy {
		case StrategyMin:
			// Prefer the smallest positive wait; zero waits mean the
			// window already elapsed and the floor covers them.
			if c.Wait > 0 && (chosen.Wait <= 0 || c.Wait < chosen.Wait) {
				chosen = c
			}
		default:
			if c.Wait > chosen.Wait {
				chosen = c
			}
		}
	}

	delay = chosen.Wait
	if delay < p.floor {
		delay = p.floor
	}
	return delay, chosen.Reason, true
}
