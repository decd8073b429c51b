package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type passPayload struct {
	CampaignID string `json:"campaignId"`
}

func newTestQueue(t *testing.T) (*Queue, *time.Time) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewQueue(client, "dispatch")

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	return q, &now
}

func TestEnqueueIdempotencyKey(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, added, err := q.Enqueue(ctx, "dispatch-campaign", passPayload{CampaignID: "c1"}, Options{Key: "campaign-c1-scheduled"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !added || id != "campaign-c1-scheduled" {
		t.Fatalf("first enqueue: added=%v id=%s", added, id)
	}

	_, added, err = q.Enqueue(ctx, "dispatch-campaign", passPayload{CampaignID: "c1"}, Options{Key: "campaign-c1-scheduled"})
	if err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}
	if added {
		t.Error("duplicate key must not enqueue a second job")
	}

	scheduled, _, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if scheduled != 1 {
		t.Errorf("scheduled depth = %d, want 1", scheduled)
	}
}

func TestClaimOnlyDueJobs(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	if _, _, err := q.Enqueue(ctx, "dispatch-campaign", passPayload{CampaignID: "due"}, Options{Key: "due"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := q.Enqueue(ctx, "dispatch-campaign", passPayload{CampaignID: "later"}, Options{Key: "later", Delay: time.Hour}); err != nil {
		t.Fatal(err)
	}

	jobs, err := q.Claim(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "due" {
		t.Fatalf("claimed %d jobs, want just the due one: %+v", len(jobs), jobs)
	}

	// Advance the clock past the delay and the future job becomes due.
	*now = now.Add(2 * time.Hour)
	jobs, err = q.Claim(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "later" {
		t.Fatalf("second claim got %+v", jobs)
	}
}

func TestAckRemovesJob(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, "dispatch-campaign", passPayload{CampaignID: "c1"}, Options{Key: "j1"})
	jobs, _ := q.Claim(ctx, 1, time.Minute)
	if len(jobs) != 1 {
		t.Fatal("claim failed")
	}

	if err := q.Ack(ctx, jobs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	scheduled, processing, _ := q.Depth(ctx)
	if scheduled != 0 || processing != 0 {
		t.Errorf("depth after ack: scheduled=%d processing=%d", scheduled, processing)
	}
}

func TestRequeueStale(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, "dispatch-campaign", passPayload{CampaignID: "c1"}, Options{Key: "j1"})
	if _, err := q.Claim(ctx, 1, time.Minute); err != nil {
		t.Fatal(err)
	}

	// Before the deadline nothing is stale.
	n, err := q.RequeueStale(ctx)
	if err != nil {
		t.Fatalf("requeue stale: %v", err)
	}
	if n != 0 {
		t.Errorf("requeued %d before deadline", n)
	}

	*now = now.Add(2 * time.Minute)
	n, err = q.RequeueStale(ctx)
	if err != nil {
		t.Fatalf("requeue stale: %v", err)
	}
	if n != 1 {
		t.Errorf("requeued %d, want 1", n)
	}

	jobs, _ := q.Claim(ctx, 1, time.Minute)
	if len(jobs) != 1 || jobs[0].ID != "j1" {
		t.Errorf("stale job not claimable again: %+v", jobs)
	}
}

func TestReplaceReschedules(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, "dispatch-campaign", passPayload{CampaignID: "c1"}, Options{Key: "campaign-c1-scheduled", Delay: 3 * time.Hour})
	_, added, err := q.Enqueue(ctx, "dispatch-campaign", passPayload{CampaignID: "c1"}, Options{Key: "campaign-c1-scheduled", Delay: time.Minute, Replace: true})
	if err != nil {
		t.Fatalf("replace enqueue: %v", err)
	}
	if !added {
		t.Fatal("replace should add the new job")
	}

	*now = now.Add(5 * time.Minute)
	jobs, _ := q.Claim(ctx, 10, time.Minute)
	if len(jobs) != 1 {
		t.Fatalf("replaced job should be due after 1m, got %d jobs", len(jobs))
	}
}

func TestRemoveByPrefix(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, "dispatch-campaign", passPayload{CampaignID: "c1"}, Options{Key: "campaign-c1-scheduled"})
	q.Enqueue(ctx, "dispatch-campaign", passPayload{CampaignID: "c1"}, Options{Key: "campaign-c1-continue-123"})
	q.Enqueue(ctx, "dispatch-campaign", passPayload{CampaignID: "c2"}, Options{Key: "campaign-c2-scheduled"})

	n, err := q.RemoveByPrefix(ctx, "campaign-c1-")
	if err != nil {
		t.Fatalf("remove by prefix: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d, want 2", n)
	}

	scheduled, _, _ := q.Depth(ctx)
	if scheduled != 1 {
		t.Errorf("scheduled depth = %d, want 1 (other campaign untouched)", scheduled)
	}
}

func TestRepeatableArming(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	err := q.AddRepeatable(ctx, "dispatch-campaign", passPayload{CampaignID: "c1"}, "0 1 * * *", "campaign-c1")
	if err != nil {
		t.Fatalf("add repeatable: %v", err)
	}

	// Arming twice must still produce a single scheduled instance.
	if err := q.ArmRepeatables(ctx); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := q.ArmRepeatables(ctx); err != nil {
		t.Fatalf("arm: %v", err)
	}
	scheduled, _, _ := q.Depth(ctx)
	if scheduled != 1 {
		t.Fatalf("scheduled = %d, want 1", scheduled)
	}

	// The instance fires at the next 01:00.
	*now = time.Date(2025, 3, 11, 1, 0, 1, 0, time.UTC)
	jobs, err := q.Claim(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "dispatch-campaign" {
		t.Fatalf("claimed %+v", jobs)
	}

	// Removing the repeatable clears pending instances.
	if err := q.ArmRepeatables(ctx); err != nil {
		t.Fatal(err)
	}
	if err := q.RemoveRepeatable(ctx, "campaign-c1"); err != nil {
		t.Fatalf("remove repeatable: %v", err)
	}
	scheduled, _, _ = q.Depth(ctx)
	if scheduled != 0 {
		t.Errorf("scheduled = %d after removal, want 0", scheduled)
	}
}

func TestClaimBuriesUndecodablePayload(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	q.client.ZAdd(ctx, q.key("scheduled"), redis.Z{Score: float64(now.UnixMilli()), Member: "broken"})
	q.client.HSet(ctx, q.key("payload"), "broken", "{not json")

	jobs, err := q.Claim(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("claimed %d jobs from a broken payload", len(jobs))
	}

	scheduled, processing, _ := q.Depth(ctx)
	if scheduled != 0 || processing != 0 {
		t.Errorf("broken job still queued: scheduled=%d processing=%d", scheduled, processing)
	}
	dead, _ := q.client.LLen(ctx, q.key("dead")).Result()
	if dead != 1 {
		t.Errorf("dead list = %d entries, want 1", dead)
	}

	// The sweep must not resurrect it.
	*now = now.Add(2 * time.Minute)
	if n, _ := q.RequeueStale(ctx); n != 0 {
		t.Errorf("requeued %d buried jobs", n)
	}
}

func TestClaimDropsJobWithoutPayload(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	q.client.ZAdd(ctx, q.key("scheduled"), redis.Z{Score: float64(now.UnixMilli()), Member: "ghost"})

	jobs, err := q.Claim(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("claimed %d jobs without payloads", len(jobs))
	}
	scheduled, processing, _ := q.Depth(ctx)
	if scheduled != 0 || processing != 0 {
		t.Errorf("ghost job still queued: scheduled=%d processing=%d", scheduled, processing)
	}
}

func TestInvalidCronSpecRejected(t *testing.T) {
	q, _ := newTestQueue(t)
	if err := q.AddRepeatable(context.Background(), "x", nil, "not a cron", "k"); err == nil {
		t.Fatal("expected cron parse error")
	}
}
