package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"discipleship/internal/audit"
	"discipleship/internal/config"
	"discipleship/internal/queue"
	"discipleship/internal/store"
)

// Worker drains the audit queue into the attendance_audit table.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis; the memory queue is drained inside the api process")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpen: 4, MaxIdle: 2})
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable yet, will keep retrying", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.AuditQueueKey)
	repo := audit.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Printf("worker started, draining %s", cfg.AuditQueueKey)
	for msg := range messages {
		e, err := audit.Decode(msg)
		if err != nil {
			log.Printf("skipping message: %v", err)
			continue
		}
		if err := insertWithRetry(ctx, repo, e); err != nil {
			log.Printf("audit event %s dropped: %v", e.ID, err)
			continue
		}
		log.Printf("audit %s %s %s", e.Action, e.Outcome, e.LiveSessionID)
	}

	log.Println("worker stopped")
}

// insertWithRetry retries transient database failures a few times. Inserts are
// idempotent on the event id.
func insertWithRetry(ctx context.Context, repo *audit.Repository, e audit.Event) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = repo.Insert(ctx, e); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}
	return err
}
