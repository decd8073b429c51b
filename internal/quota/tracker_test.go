package quota

import (
	"testing"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

func ts(t time.Time) *time.Time { return &t }

func TestRefreshWindowsUnsetAnchors(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &domain.Account{SentToday: 7, SentThisHour: 3}

	if !RefreshWindows(a, now) {
		t.Fatal("expected change on first refresh")
	}
	if a.SentToday != 0 || a.SentThisHour != 0 {
		t.Errorf("counters not reset: daily=%d hourly=%d", a.SentToday, a.SentThisHour)
	}
	if a.LastResetAt == nil || !a.LastResetAt.Equal(now) {
		t.Error("daily anchor not set to now")
	}
	if a.HourStartedAt == nil || !a.HourStartedAt.Equal(now) {
		t.Error("hourly anchor not set to now")
	}

	// Second call at the same instant is a no-op.
	if RefreshWindows(a, now) {
		t.Error("refresh not idempotent")
	}
}

func TestRefreshWindowsIndependent(t *testing.T) {
	now := time.Date(2025, 3, 2, 10, 30, 0, 0, time.UTC)
	a := &domain.Account{
		SentToday:     400,
		LastResetAt:   ts(now.Add(-23 * time.Hour)),
		SentThisHour:  90,
		HourStartedAt: ts(now.Add(-61 * time.Minute)),
	}

	if !RefreshWindows(a, now) {
		t.Fatal("expected hourly reset")
	}
	if a.SentToday != 400 {
		t.Errorf("daily counter reset early: %d", a.SentToday)
	}
	if a.SentThisHour != 0 {
		t.Errorf("hourly counter not reset: %d", a.SentThisHour)
	}
	if !a.LastResetAt.Equal(now.Add(-23 * time.Hour)) {
		t.Error("daily anchor moved without a reset")
	}
	if !a.HourStartedAt.Equal(now) {
		t.Error("hourly anchor not re-anchored at now")
	}
}

func TestRefreshWindowsExactBoundary(t *testing.T) {
	now := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	a := &domain.Account{
		SentToday:   500,
		LastResetAt: ts(now.Add(-24 * time.Hour)),
	}
	RefreshWindows(a, now)
	if a.SentToday != 0 {
		t.Error("elapsed == window must reset")
	}
}

func TestRemainingAndBlocked(t *testing.T) {
	a := &domain.Account{DailyLimit: 500, SentToday: 480, MaxPerHour: 100, SentThisHour: 100}

	if got := RemainingDaily(a); got != 20 {
		t.Errorf("RemainingDaily = %d, want 20", got)
	}
	if got := RemainingHourly(a); got != 0 {
		t.Errorf("RemainingHourly = %d, want 0", got)
	}
	if got := Capacity(a); got != 0 {
		t.Errorf("Capacity = %d, want 0", got)
	}
	if DailyBlocked(a) {
		t.Error("daily should not be blocked")
	}
	if !HourlyBlocked(a) {
		t.Error("hourly should be blocked")
	}

	// Overshoot clamps at zero, never negative.
	a.SentToday = 510
	if got := RemainingDaily(a); got != 0 {
		t.Errorf("RemainingDaily after overshoot = %d, want 0", got)
	}
}

func TestUntilReset(t *testing.T) {
	now := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	a := &domain.Account{
		LastResetAt:   ts(now.Add(-20 * time.Hour)),
		HourStartedAt: ts(now.Add(-45 * time.Minute)),
	}

	if got := UntilDailyReset(a, now); got != 4*time.Hour {
		t.Errorf("UntilDailyReset = %v, want 4h", got)
	}
	if got := UntilHourlyReset(a, now); got != 15*time.Minute {
		t.Errorf("UntilHourlyReset = %v, want 15m", got)
	}

	// Elapsed windows floor at zero.
	a.LastResetAt = ts(now.Add(-30 * time.Hour))
	if got := UntilDailyReset(a, now); got != 0 {
		t.Errorf("UntilDailyReset past window = %v, want 0", got)
	}

	// Unset anchors yield the full window.
	b := &domain.Account{}
	if got := UntilDailyReset(b, now); got != DailyWindow {
		t.Errorf("UntilDailyReset unset = %v, want %v", got, DailyWindow)
	}
	if got := UntilHourlyReset(b, now); got != HourlyWindow {
		t.Errorf("UntilHourlyReset unset = %v, want %v", got, HourlyWindow)
	}
}
