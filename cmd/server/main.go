package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"botforge-backend/internal/auth"
	"botforge-backend/internal/cache"
	"botforge-backend/internal/handlers"
	"botforge-backend/internal/middleware"
	"botforge-backend/internal/ratelimit"
	"botforge-backend/internal/services"
	"botforge-backend/internal/storage"
	"botforge-backend/internal/tasks"
	"botforge-backend/internal/workers"
)

func main() {
	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// Database connection (with retries)
	var db *sqlx.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sqlx.Connect("postgres", buildDSN())
		if err == nil {
			break
		}
		log.Printf("DB connection attempt %d failed: %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	// Redis cache
	redisClient, err := cache.NewRedisClient()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Storage + rate limiting
	store := storage.NewStorage(db)
	settingsCache := ratelimit.NewSettingsCache(store)
	limiter := ratelimit.NewLimiter(store, settingsCache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background task bus. The API degrades to synchronous-only (no audit
	// trail, no email) when NATS is unreachable.
	var dispatcher *tasks.Dispatcher
	var emailWorker *workers.EmailWorker
	var auditWriter *workers.AuditWriter
	natsClient, err := tasks.Connect()
	if err != nil {
		log.Printf("WARN NATS unavailable, background tasks disabled: %v", err)
	} else {
		defer natsClient.Close()
		dispatcher = tasks.NewDispatcher(natsClient.JS())

		emailWorker = workers.NewEmailWorker(natsClient.JS(), services.NewMailer())
		if err := emailWorker.Start(ctx); err != nil {
			log.Fatalf("Failed to start email worker: %v", err)
		}
		auditWriter = workers.NewAuditWriter(natsClient.JS(), store)
		if err := auditWriter.Start(ctx); err != nil {
			log.Fatalf("Failed to start audit writer: %v", err)
		}
	}

	// HTTP handlers
	authHandler := auth.NewHandler(store, limiter, dispatcher)
	apiHandler := handlers.New(store, redisClient, settingsCache)

	// Router
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CSRF(redisClient))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(redisClient))
		authHandler.RegisterRoutes(r)
	})
	apiHandler.RegisterRoutes(r)

	r.Get("/swagger/openapi.json", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, "static/openapi.json")
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/openapi.json")))

	server := &http.Server{
		Addr:    ":" + getEnv("PORT", "8080"),
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if emailWorker != nil {
			_ = emailWorker.Stop()
		}
		if auditWriter != nil {
			_ = auditWriter.Stop()
		}
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("Server starting on %s", server.Addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}

func buildDSN() string {
	return "host=" + getEnv("DB_HOST", "localhost") +
		" user=" + getEnv("DB_USER", "botforge") +
		" password=" + getEnv("DB_PASSWORD", "botforge") +
		" dbname=" + getEnv("DB_NAME", "botforge") +
		" sslmode=" + getEnv("DB_SSLMODE", "disable")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
