// Command worker runs the dispatch consumer: it claims dispatch jobs
// from Redis, takes a per-campaign lock, and executes passes against
// PostgreSQL.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/esp"
	"github.com/ignite/campaign-dispatch/internal/jobqueue"
	"github.com/ignite/campaign-dispatch/internal/metrics"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/repository/postgres"
	"github.com/ignite/campaign-dispatch/internal/template"
)

func main() {
	log.Println("Starting dispatch worker...")

	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("Failed to ping redis: %v", err)
	}
	log.Println("Connected to redis")

	metrics.SetGlobal(metrics.New())

	queue := jobqueue.NewQueue(redisClient, "dispatch")

	campaigns := postgres.NewCampaignRepo(db)
	accounts := postgres.NewAccountRepo(db)
	recipients := postgres.NewRecipientRepo(db)

	strategy := dispatch.StrategyMax
	if cfg.Dispatch.Strategy == "min" {
		strategy = dispatch.StrategyMin
	}

	dispatcher := dispatch.NewDispatcher(
		campaigns, accounts, recipients,
		dispatch.NewExecutor(esp.NewResolver(), template.NewRenderer()),
		dispatch.NewPlanner(strategy),
		queue,
	)

	handler := func(ctx context.Context, job *jobqueue.Job) error {
		if job.Name != dispatch.JobDispatchCampaign {
			log.Printf("[Worker] Unknown job %q, discarding", job.Name)
			return jobqueue.ErrDiscard
		}
		var p dispatch.PassPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			log.Printf("[Worker] Bad payload for job %s: %v", job.ID, err)
			return jobqueue.ErrDiscard
		}

		// One pass per campaign at a time across all workers.
		lock := distlock.NewLock(redisClient, db, "campaign-"+p.CampaignID, cfg.Dispatch.LockTTL())
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("campaign %s is already dispatching", p.CampaignID)
		}
		defer lock.Release(context.Background())

		res, err := dispatcher.RunPass(ctx, p.CampaignID)
		if err != nil {
			if dispatch.ConfigError(err) {
				log.Printf("[Worker] Campaign %s not dispatchable: %v", p.CampaignID, err)
				return jobqueue.ErrDiscard
			}
			return err
		}
		log.Printf("[Worker] Campaign %s: sent=%d failed=%d remaining=%d", res.CampaignID, res.Sent, res.Failed, res.Remaining)
		return nil
	}

	consumer := jobqueue.NewConsumer(queue, handler, jobqueue.ConsumerConfig{
		Workers:      cfg.Dispatch.Workers,
		BatchSize:    cfg.Dispatch.BatchSize,
		PollInterval: cfg.Dispatch.PollInterval(),
		Visibility:   cfg.Dispatch.Visibility(),
		MaxAttempts:  cfg.Dispatch.MaxAttempts,
		RetryBackoff: cfg.Dispatch.RetryBackoff(),
	})
	if err := consumer.Start(); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}
	log.Printf("Consumer started (%d workers, strategy=%s)", cfg.Dispatch.Workers, cfg.Dispatch.Strategy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Queue depth gauges for the /metrics endpoint.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				scheduled, processing, err := queue.Depth(ctx)
				if err == nil {
					metrics.SetQueueDepth(scheduled, processing)
				}
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down worker...")
	cancel()
	consumer.Stop()

	processed, failed, buried := consumer.Stats()
	log.Printf("Worker stopped (processed=%d failed=%d buried=%d)", processed, failed, buried)
}
