package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDiscard tells the consumer to ack a job without retrying it. Wrap or
// return it from a handler when re-running the job can never succeed.
var ErrDiscard = errors.New("jobqueue: discard job")

// Handler processes one claimed job.
type Handler func(ctx context.Context, job *Job) error

// Consumer runs a pool of workers that claim and handle jobs. A handler
// error reschedules the job with linear backoff until MaxAttempts, then
// buries it.
type Consumer struct {
	queue   *Queue
	handler Handler

	workers      int
	batchSize    int
	pollInterval time.Duration
	visibility   time.Duration
	maxAttempts  int
	retryBackoff time.Duration

	// Stats
	processed int64
	failed    int64
	buried    int64

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ConsumerConfig tunes a consumer pool. Zero values get defaults.
type ConsumerConfig struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	Visibility   time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// NewConsumer creates a consumer for the queue.
func NewConsumer(queue *Queue, handler Handler, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Second
	}
	return &Consumer{
		queue:        queue,
		handler:      handler,
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		pollInterval: cfg.PollInterval,
		visibility:   cfg.Visibility,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
	}
}

// Start launches the worker pool and the maintenance loop.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.ctx, c.cancel = context.WithCancel(context.Background())

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.workerLoop(i)
	}
	c.wg.Add(1)
	go c.maintenanceLoop()

	log.Printf("[Consumer] Started %d workers on queue %q", c.workers, c.queue.name)
	return nil
}

// Stop signals all workers and waits for them to drain.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	log.Printf("[Consumer] Stopped (processed=%d failed=%d buried=%d)",
		atomic.LoadInt64(&c.processed), atomic.LoadInt64(&c.failed), atomic.LoadInt64(&c.buried))
}

func (c *Consumer) workerLoop(id int) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			jobs, err := c.queue.Claim(c.ctx, c.batchSize, c.visibility)
			if err != nil {
				if c.ctx.Err() == nil {
					log.Printf("[Consumer] worker %d claim error: %v", id, err)
				}
				continue
			}
			for _, job := range jobs {
				c.handle(job)
			}
		}
	}
}

func (c *Consumer) handle(job *Job) {
	err := c.handler(c.ctx, job)
	switch {
	case err == nil:
		atomic.AddInt64(&c.processed, 1)
		if err := c.queue.Ack(c.ctx, job.ID); err != nil {
			log.Printf("[Consumer] ack %s: %v", job.ID, err)
		}
	case errors.Is(err, ErrDiscard):
		atomic.AddInt64(&c.processed, 1)
		log.Printf("[Consumer] Discarding job %s (%s): %v", job.ID, job.Name, err)
		if err := c.queue.Ack(c.ctx, job.ID); err != nil {
			log.Printf("[Consumer] ack %s: %v", job.ID, err)
		}
	default:
		atomic.AddInt64(&c.failed, 1)
		job.Attempts++
		if job.Attempts >= c.maxAttempts {
			atomic.AddInt64(&c.buried, 1)
			log.Printf("[Consumer] Burying job %s (%s) after %d attempts: %v", job.ID, job.Name, job.Attempts, err)
			if err := c.queue.Bury(c.ctx, job); err != nil {
				log.Printf("[Consumer] bury %s: %v", job.ID, err)
			}
			return
		}
		backoff := time.Duration(job.Attempts) * c.retryBackoff
		log.Printf("[Consumer] Job %s (%s) failed (attempt %d/%d), retrying in %s: %v",
			job.ID, job.Name, job.Attempts, c.maxAttempts, backoff, err)
		if err := c.queue.Requeue(c.ctx, job, backoff); err != nil {
			log.Printf("[Consumer] requeue %s: %v", job.ID, err)
		}
	}
}

// maintenanceLoop arms repeatable jobs and reclaims stale ones.
func (c *Consumer) maintenanceLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.queue.ArmRepeatables(c.ctx); err != nil && c.ctx.Err() == nil {
				log.Printf("[Consumer] arm repeatables: %v", err)
			}
			if n, err := c.queue.RequeueStale(c.ctx); err != nil && c.ctx.Err() == nil {
				log.Printf("[Consumer] requeue stale: %v", err)
			} else if n > 0 {
				log.Printf("[Consumer] Requeued %d stale jobs", n)
			}
		}
	}
}

// Stats reports lifetime counters for this consumer.
func (c *Consumer) Stats() (processed, failed, buried int64) {
	return atomic.LoadInt64(&c.processed), atomic.LoadInt64(&c.failed), atomic.LoadInt64(&c.buried)
}
