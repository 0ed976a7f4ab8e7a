package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"receptionist-platform/internal/auth"
	"receptionist-platform/internal/config"
	"receptionist-platform/internal/metrics"
	"receptionist-platform/migrations"
	"receptionist-platform/pkg/logger"
	"receptionist-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const shutdownGrace = 20 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A local .env is optional; deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error(".env load failed", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Init()

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()

	if cfg.ShouldMigrate() {
		if err := migrations.Apply(ctx, db); err != nil {
			return err
		}
		log.Info("schema applied")
	}

	rdb, err := openRedis(ctx, cfg, log)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware(log))
	registerRoutes(r, cfg, deps{db: db, rdb: rdb, auth: authManager})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", srv.Addr,
			"vapi_configured", cfg.Vapi.APIKey != "",
			"calendar_configured", cfg.HasGoogleCalendar(),
			"smtp_configured", cfg.HasSMTP(),
			"redis_configured", rdb != nil,
		)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	return logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// openRedis returns a nil client when Redis is not configured. Outside
// production an unreachable Redis degrades to the process-local provisioning
// lock; in production it is fatal, since replicas would no longer serialize
// provisioning per tenant.
func openRedis(ctx context.Context, cfg config.Config, log *slog.Logger) (*redis.Client, error) {
	if !cfg.HasRedis() {
		return nil, nil
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err == nil {
		return rdb, nil
	}
	if cfg.IsProduction() {
		return nil, fmt.Errorf("redis: %w", err)
	}
	log.Warn("redis unavailable, using in-process provisioning lock", "err", err)
	return nil, nil
}
