package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"discipleship/internal/attendance"
	"discipleship/internal/audit"
	"discipleship/internal/auth"
	"discipleship/internal/config"
	"discipleship/internal/handler"
	"discipleship/internal/httpmiddleware"
	"discipleship/internal/queue"
	"discipleship/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, store.PoolOptions{
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxOpenConns / 2,
		MaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// The worker cannot reach an in-process queue; drain it here.
		q = queue.NewInMemory(256)
		go drainLocally(ctx, q, audit.NewRepository(db.Client))
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.AuditQueueKey)
	}

	repo := attendance.NewRepository(db.Client)
	svc := attendance.NewService(repo, repo)
	h := handler.New(svc, audit.NewPublisher(q), audit.NewRepository(db.Client))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(securityHeaders())

	general, checkin := limiters(cfg, redisClient)
	r.Use(httpmiddleware.Middleware(general, httpmiddleware.ByClientIP))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	redisCheck := redisClient.Healthy
	if cfg.QueueBackend == "memory" && cfg.RateLimitBackend == "memory" {
		redisCheck = func(context.Context) bool { return true }
	}
	r.GET("/healthz", healthz(db.Healthy, redisCheck))

	h.Register(r,
		auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer),
		httpmiddleware.Middleware(checkin, bySubject),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// limiters returns the per-IP limiter for every route and the tighter
// per-user limiter guarding code submission.
func limiters(cfg config.App, rc *store.Redis) (general, checkin httpmiddleware.Limiter) {
	if cfg.RateLimitBackend == "redis" {
		return httpmiddleware.NewRedisWindow(rc.Client, "ratelimit", cfg.RateLimitPerMin),
			httpmiddleware.NewRedisWindow(rc.Client, "ratelimit:checkin", cfg.CheckInRateLimitPerMin)
	}
	return httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		httpmiddleware.NewSimpleTokenBucket(cfg.CheckInRateLimitPerMin, cfg.CheckInRateLimitPerMin)
}

func bySubject(c *gin.Context) string {
	if claims, ok := auth.FromContext(c); ok {
		return "sub:" + claims.Subject
	}
	return httpmiddleware.ByClientIP(c)
}

func drainLocally(ctx context.Context, q queue.Queue, repo *audit.Repository) {
	msgs, err := q.Consume(ctx)
	if err != nil {
		log.Printf("audit consume init failed: %v", err)
		return
	}
	for msg := range msgs {
		e, err := audit.Decode(msg)
		if err != nil {
			log.Printf("audit decode failed: %v", err)
			continue
		}
		if err := repo.Insert(ctx, e); err != nil {
			log.Printf("audit insert %s failed: %v", e.ID, err)
		}
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
