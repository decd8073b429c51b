// Package quota implements the rolling send-quota windows of a sender
// account as pure functions over an account value and a clock instant.
// Nothing here touches storage; callers persist the account when a
// refresh reports a change.
package quota

import (
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

const (
	// DailyWindow and HourlyWindow anchor at first use, not at calendar
	// boundaries.
	DailyWindow  = 24 * time.Hour
	HourlyWindow = time.Hour
)

// RefreshWindows resets any quota window that has fully elapsed at now.
// The daily and hourly windows are independent; an unset anchor counts as
// elapsed. Returns true when the account was modified. Calling twice with
// the same now is a no-op the second time.
func RefreshWindows(a *domain.Account, now time.Time) bool {
	changed := false

	if a.LastResetAt == nil || now.Sub(*a.LastResetAt) >= DailyWindow {
		a.SentToday = 0
		t := now
		a.LastResetAt = &t
		changed = true
	}

	if a.HourStartedAt == nil || now.Sub(*a.HourStartedAt) >= HourlyWindow {
		a.SentThisHour = 0
		t := now
		a.HourStartedAt = &t
		changed = true
	}

	return changed
}

// RemainingDaily returns how many sends the daily window still allows.
func RemainingDaily(a *domain.Account) int {
	return remaining(a.DailyLimit, a.SentToday)
}

// RemainingHourly returns how many sends the hourly window still allows.
func RemainingHourly(a *domain.Account) int {
	return remaining(a.MaxPerHour, a.SentThisHour)
}

// Capacity returns the number of sends allowed right now, bounded by both
// windows.
func Capacity(a *domain.Account) int {
	d, h := RemainingDaily(a), RemainingHourly(a)
	if h < d {
		return h
	}
	return d
}

// DailyBlocked reports whether the daily window is exhausted.
func DailyBlocked(a *domain.Account) bool { return RemainingDaily(a) == 0 }

// HourlyBlocked reports whether the hourly window is exhausted.
func HourlyBlocked(a *domain.Account) bool { return RemainingHourly(a) == 0 }

// UntilDailyReset returns the time left until the daily window elapses,
// floored at zero. An unset anchor yields the full window.
func UntilDailyReset(a *domain.Account, now time.Time) time.Duration {
	return untilReset(a.LastResetAt, DailyWindow, now)
}

// UntilHourlyReset returns the time left until the hourly window elapses,
// floored at zero. An unset anchor yields the full window.
func UntilHourlyReset(a *domain.Account, now time.Time) time.Duration {
	return untilReset(a.HourStartedAt, HourlyWindow, now)
}

func remaining(limit, sent int) int {
	if r := limit - sent; r > 0 {
		return r
	}
	return 0
}

func untilReset(anchor *time.Time, window time.Duration, now time.Time) time.Duration {
	if anchor == nil {
		return window
	}
	if d := anchor.Add(window).Sub(now); d > 0 {
		return d
	}
	return 0
}
