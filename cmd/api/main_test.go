package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"receptionist-platform/internal/config"
)

func TestOpenRedis_UnreachableIsFatalOnlyInProduction(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		App:   config.AppConfig{Env: "production"},
		Redis: config.RedisConfig{Host: "127.0.0.1", Port: 1},
	}

	if _, err := openRedis(context.Background(), cfg, log); err == nil {
		t.Fatalf("expected production startup to fail without redis")
	}

	cfg.App.Env = "local"
	rdb, err := openRedis(context.Background(), cfg, log)
	if err != nil || rdb != nil {
		t.Fatalf("expected local fallback, got %v %v", rdb, err)
	}

	cfg.Redis = config.RedisConfig{}
	cfg.App.Env = "production"
	if rdb, err := openRedis(context.Background(), cfg, log); err != nil || rdb != nil {
		t.Fatalf("unconfigured redis is not an error here, got %v %v", rdb, err)
	}
}
