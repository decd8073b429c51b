// Package jobqueue implements the delayed-job mechanism that carries
// campaign dispatch forward. There is no resident scheduler: a pass that
// must continue later enqueues a delayed job for itself, keyed so that
// duplicate schedules collapse into one.
//
// Jobs live in Redis: a scheduled sorted set scored by run-at time, a
// payload hash, and a processing sorted set scored by visibility
// deadline. Claims move jobs from scheduled to processing atomically; a
// recovery sweep returns jobs whose worker died.
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// Job is one unit of queued work.
type Job struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Options control how a job is enqueued.
type Options struct {
	// Delay postpones the job's first run.
	Delay time.Duration
	// Key is the idempotency key. Enqueueing an existing key is a
	// silent no-op unless Replace is set. Empty keys get a random ID.
	Key string
	// Replace drops any pending job under Key before enqueueing.
	Replace bool
}

// Queue is a Redis-backed delayed job queue.
type Queue struct {
	client *redis.Client
	name   string
	now    func() time.Time
}

// NewQueue creates a queue with the given name. Queues with different
// names share nothing.
func NewQueue(client *redis.Client, name string) *Queue {
	return &Queue{client: client, name: name, now: time.Now}
}

func (q *Queue) key(part string) string {
	return fmt.Sprintf("jobs:%s:%s", q.name, part)
}

var enqueueScript = redis.NewScript(`
	if ARGV[4] == "1" then
		redis.call("zrem", KEYS[1], ARGV[1])
		redis.call("hdel", KEYS[2], ARGV[1])
	end
	local added = redis.call("zadd", KEYS[1], "NX", ARGV[2], ARGV[1])
	if added == 1 then
		redis.call("hset", KEYS[2], ARGV[1], ARGV[3])
	end
	return added
`)

var claimScript = redis.NewScript(`
	local due = redis.call("zrangebyscore", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
	local out = {}
	for _, id in ipairs(due) do
		redis.call("zrem", KEYS[1], id)
		local p = redis.call("hget", KEYS[3], id)
		if p then
			redis.call("zadd", KEYS[2], ARGV[3], id)
			out[#out+1] = id
			out[#out+1] = p
		end
	end
	return out
`)

var requeueScript = redis.NewScript(`
	local stale = redis.call("zrangebyscore", KEYS[1], "-inf", ARGV[1])
	for _, id in ipairs(stale) do
		redis.call("zrem", KEYS[1], id)
		redis.call("zadd", KEYS[2], ARGV[1], id)
	end
	return #stale
`)

// Enqueue schedules a job. Returns the job ID and whether the job was
// actually added (false means an existing job under the same key won).
func (q *Queue) Enqueue(ctx context.Context, name string, payload interface{}, opts Options) (string, bool, error) {
	id := opts.Key
	if id == "" {
		id = uuid.New().String()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{ID: id, Name: name, Payload: raw, EnqueuedAt: q.now()}
	data, err := json.Marshal(job)
	if err != nil {
		return "", false, fmt.Errorf("marshal job: %w", err)
	}

	runAt := q.now().Add(opts.Delay).UnixMilli()
	replace := "0"
	if opts.Replace {
		replace = "1"
	}
	added, err := enqueueScript.Run(ctx, q.client,
		[]string{q.key("scheduled"), q.key("payload")},
		id, runAt, string(data), replace).Int()
	if err != nil {
		return "", false, fmt.Errorf("enqueue %s: %w", id, err)
	}
	return id, added == 1, nil
}

// Claim atomically moves up to limit due jobs into the processing set and
// returns them. Claimed jobs must be Acked, Requeued, or Buried before
// the visibility deadline, or the recovery sweep returns them. Jobs with
// a lost payload are dropped; jobs whose payload does not decode go to
// the dead list, since requeueing them would just claim them again.
func (q *Queue) Claim(ctx context.Context, limit int, visibility time.Duration) ([]*Job, error) {
	now := q.now()
	raws, err := claimScript.Run(ctx, q.client,
		[]string{q.key("scheduled"), q.key("processing"), q.key("payload")},
		now.UnixMilli(), limit, now.Add(visibility).UnixMilli()).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}

	// The script returns id, payload pairs.
	jobs := make([]*Job, 0, len(raws)/2)
	for i := 0; i+1 < len(raws); i += 2 {
		id, raw := raws[i], raws[i+1]
		var j Job
		if err := json.Unmarshal([]byte(raw), &j); err != nil {
			if buryErr := q.buryRaw(ctx, id, raw); buryErr != nil {
				return jobs, fmt.Errorf("bury undecodable job %s: %w", id, buryErr)
			}
			continue
		}
		jobs = append(jobs, &j)
	}
	return jobs, nil
}

// buryRaw parks a claimed entry that never became a Job.
func (q *Queue) buryRaw(ctx context.Context, id, data string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.key("processing"), id)
	pipe.HDel(ctx, q.key("payload"), id)
	pipe.LPush(ctx, q.key("dead"), data)
	_, err := pipe.Exec(ctx)
	return err
}

// Ack removes a finished job.
func (q *Queue) Ack(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.key("processing"), id)
	pipe.HDel(ctx, q.key("payload"), id)
	_, err := pipe.Exec(ctx)
	return err
}

// Requeue puts a claimed job back on the schedule after delay, with its
// attempt counter updated.
func (q *Queue) Requeue(ctx context.Context, job *Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.key("processing"), job.ID)
	pipe.HSet(ctx, q.key("payload"), job.ID, string(data))
	pipe.ZAdd(ctx, q.key("scheduled"), redis.Z{Score: float64(q.now().Add(delay).UnixMilli()), Member: job.ID})
	_, err = pipe.Exec(ctx)
	return err
}

// Bury parks a job in the dead set after its attempts are exhausted.
func (q *Queue) Bury(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.key("processing"), job.ID)
	pipe.HDel(ctx, q.key("payload"), job.ID)
	pipe.LPush(ctx, q.key("dead"), string(data))
	_, err = pipe.Exec(ctx)
	return err
}

// Remove drops a pending job by its idempotency key. Removing an absent
// key is not an error.
func (q *Queue) Remove(ctx context.Context, key string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.key("scheduled"), key)
	pipe.HDel(ctx, q.key("payload"), key)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveByPrefix drops every pending job whose key starts with prefix.
// Used when pausing a campaign to clear its continuations.
func (q *Queue) RemoveByPrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	var cursor uint64
	for {
		ids, next, err := q.client.ZScan(ctx, q.key("scheduled"), cursor, prefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("scan scheduled: %w", err)
		}
		// ZScan yields member, score pairs.
		for i := 0; i < len(ids); i += 2 {
			if err := q.Remove(ctx, ids[i]); err != nil {
				return removed, err
			}
			removed++
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// RequeueStale returns jobs whose visibility deadline passed back to the
// schedule. Run periodically; crashes between claim and ack otherwise
// strand jobs forever.
func (q *Queue) RequeueStale(ctx context.Context) (int, error) {
	n, err := requeueScript.Run(ctx, q.client,
		[]string{q.key("processing"), q.key("scheduled")},
		q.now().UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("requeue stale: %w", err)
	}
	return n, nil
}

// Depth reports how many jobs are scheduled and processing.
func (q *Queue) Depth(ctx context.Context) (scheduled, processing int64, err error) {
	scheduled, err = q.client.ZCard(ctx, q.key("scheduled")).Result()
	if err != nil {
		return 0, 0, err
	}
	processing, err = q.client.ZCard(ctx, q.key("processing")).Result()
	return scheduled, processing, err
}

// ======================= REPEATABLE JOBS =======================

// repeatEntry is the stored definition of a repeatable job.
type repeatEntry struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	Spec    string          `json:"spec"`
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// AddRepeatable registers a job that fires on a standard 5-field cron
// spec. Instances carry keys `{key}:{unix}` so every worker arming the
// same occurrence collapses to one job.
func (q *Queue) AddRepeatable(ctx context.Context, name string, payload interface{}, spec, key string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(repeatEntry{Name: name, Payload: raw, Spec: spec})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return q.client.HSet(ctx, q.key("repeat"), key, string(data)).Err()
}

// RemoveRepeatable drops a repeatable definition and any pending
// instances of it.
func (q *Queue) RemoveRepeatable(ctx context.Context, key string) error {
	if err := q.client.HDel(ctx, q.key("repeat"), key).Err(); err != nil {
		return err
	}
	_, err := q.RemoveByPrefix(ctx, key+":")
	return err
}

// ArmRepeatables schedules the next occurrence of every repeatable
// definition. Idempotent; meant to run on a short tick from consumers.
func (q *Queue) ArmRepeatables(ctx context.Context) error {
	entries, err := q.client.HGetAll(ctx, q.key("repeat")).Result()
	if err != nil {
		return fmt.Errorf("load repeatables: %w", err)
	}

	now := q.now()
	for key, data := range entries {
		var e repeatEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			continue
		}
		sched, err := cronParser.Parse(e.Spec)
		if err != nil {
			continue
		}
		next := sched.Next(now)
		instanceKey := fmt.Sprintf("%s:%d", key, next.Unix())
		if _, _, err := q.Enqueue(ctx, e.Name, e.Payload, Options{
			Delay: next.Sub(now),
			Key:   instanceKey,
		}); err != nil {
			return err
		}
	}
	return nil
}
