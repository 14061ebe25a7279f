package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpHandlers "github.com/komugidappei/ai-pose-editor-sub001/internal/adapters/http/handlers"
	httpMiddleware "github.com/komugidappei/ai-pose-editor-sub001/internal/adapters/http/middleware"
	promMetrics "github.com/komugidappei/ai-pose-editor-sub001/internal/adapters/metrics"
	memorystorage "github.com/komugidappei/ai-pose-editor-sub001/internal/adapters/storage/memory"
	redisstorage "github.com/komugidappei/ai-pose-editor-sub001/internal/adapters/storage/redis"
	sqlitestorage "github.com/komugidappei/ai-pose-editor-sub001/internal/adapters/storage/sqlite"
	"github.com/komugidappei/ai-pose-editor-sub001/internal/config"
	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	location, err := time.LoadLocation(cfg.Quota.Timezone)
	if err != nil {
		log.Fatalf("invalid QUOTA_TIMEZONE %q: %v", cfg.Quota.Timezone, err)
	}

	counters, ledger, closeFn, err := initStorage(cfg.Storage, cfg.Reclaim.RetentionDays)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}
	defer closeFn()

	recorder := promMetrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)

	limiter, err := services.NewRateLimiterService(counters, recorder, services.RateLimiterConfig{
		GlobalRule: cfg.RateLimit.GlobalRule,
		RouteRules: cfg.RateLimit.RouteRules,
	})
	if err != nil {
		log.Fatalf("failed to create rate limiter: %v", err)
	}

	admission, err := services.NewAdmissionService(services.NewIdentityResolver(), limiter, ledger, recorder, services.AdmissionConfig{
		QuotaLimit:    cfg.Quota.DailyLimit,
		LedgerTimeout: cfg.Quota.LedgerTimeout,
		Location:      location,
	})
	if err != nil {
		log.Fatalf("failed to create admission controller: %v", err)
	}

	reclaimer, err := services.NewReclaimer(ledger, cfg.Reclaim.RetentionDays, location, nil)
	if err != nil {
		log.Fatalf("failed to create reclaimer: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/healthz", httpHandlers.HealthHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/internal/reclaim", httpHandlers.NewReclaimHandler(reclaimer))

	r.Group(func(guarded chi.Router) {
		guarded.Use(httpMiddleware.NewAdmissionMiddleware(admission, ledger, httpMiddleware.Messages{
			RateLimited:   cfg.RateLimit.Message,
			QuotaExceeded: cfg.Quota.Message,
			Unavailable:   cfg.Quota.UnavailableMessage,
		}))
		guarded.Post("/generate", httpHandlers.NewGenerateHandler(placeholderGenerator{}))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Reclaim.Interval > 0 {
		go runReclaimLoop(ctx, reclaimer, cfg.Reclaim.Interval)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func initStorage(cfg config.StorageConfig, retentionDays int) (ports.CounterStore, ports.QuotaLedger, func(), error) {
	switch cfg.Type {
	case "memory":
		return memorystorage.NewCounterStore(), memorystorage.NewQuotaLedger(), func() {}, nil

	case "redis":
		client, err := redisstorage.NewClient(redisstorage.Config{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				log.Printf("failed to close redis client: %v", err)
			}
		}
		return redisstorage.NewCounterStore(client), redisstorage.NewQuotaLedger(client, retentionDays), closeFn, nil

	case "sqlite":
		ledger, err := sqlitestorage.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := ledger.Close(); err != nil {
				log.Printf("failed to close sqlite ledger: %v", err)
			}
		}
		// Rate-limit windows are short enough that per-instance counting is
		// acceptable when there is no shared Redis.
		return memorystorage.NewCounterStore(), ledger, closeFn, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func runReclaimLoop(ctx context.Context, reclaimer *services.Reclaimer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := reclaimer.Run(ctx); err != nil {
				log.Printf("scheduled reclaim failed: %v", err)
			}
		}
	}
}

// placeholderGenerator stands in for the hosted image-generation service,
// which is wired in at deployment. It echoes a deterministic artifact id so
// the admission path can be exercised end to end.
type placeholderGenerator struct{}

func (placeholderGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return fmt.Sprintf("generated:%d", len(prompt)), nil
}
