package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"github.com/anonify/anonify/internal/app/migrate"
	"github.com/anonify/anonify/internal/app/store"
	httpx "github.com/anonify/anonify/internal/http"
	"github.com/anonify/anonify/internal/mail"
	"github.com/anonify/anonify/internal/repository/postgres"
	"github.com/anonify/anonify/internal/service/auth"
	"github.com/anonify/anonify/internal/service/inbox"
	"github.com/anonify/anonify/internal/service/suggest"
	"github.com/anonify/anonify/internal/ws"
	"github.com/anonify/anonify/pkg/config"
	"github.com/anonify/anonify/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle, err := store.FromConfig(cfg, log)
	if err != nil {
		log.Error("invalid store configuration", "error", err)
		os.Exit(1)
	}
	openCtx, cancelOpen := context.WithTimeout(ctx, cfg.StoreTimeout)
	repo, err := handle.Acquire(openCtx)
	cancelOpen()
	if err != nil {
		log.Error("failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := handle.Release(closeCtx); err != nil {
			log.Error("failed to release store", "error", err)
		}
	}()

	if pg, ok := repo.(*postgres.Repository); ok {
		runner, err := migrate.New(pg.Pool(), cfg.DatabaseURL, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	mailer, err := mail.FromConfig(cfg, log)
	if err != nil {
		log.Error("failed to configure mail", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RateLimitRedisPass, DB: cfg.RateLimitRedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable; falling back to in-process state", "error", err)
			_ = client.Close()
		} else {
			redisClient = client
			defer redisClient.Close()
		}
	}

	limiter := httpx.NewMemoryRateLimiter()
	var revocations auth.Revocations = auth.NewMemoryRevocations()
	if redisClient != nil {
		limiter.Close()
		limiter = httpx.NewRedisRateLimiter(redisClient, log)
		if cfg.RevocationRedis {
			revocations = auth.NewRedisRevocations(redisClient, log)
		}
	}

	metrics := httpx.NewMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	hub := ws.NewHub()
	defer hub.Close()

	authSvc := auth.New(repo, mailer, revocations, log, cfg)
	inboxSvc := inbox.New(repo, hub, metrics, log)
	suggestSvc := suggest.New(suggest.FromConfig(cfg), log)
	if providers := authSvc.Providers(); len(providers) > 0 {
		log.Info("oauth providers enabled", "providers", providers)
	}

	router := httpx.NewRouter(httpx.Options{
		Logger:         log,
		Auth:           authSvc,
		Inbox:          inboxSvc,
		Suggest:        suggestSvc,
		Limiter:        limiter,
		Metrics:        metrics,
		StoreHealth:    repo.Ping,
		StateCookieKey: cfg.StateCookieKey,
		SecureCookies:  cfg.Environment == "production",
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
