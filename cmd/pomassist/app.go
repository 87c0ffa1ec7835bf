package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/remote/cache"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/service"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/pomassist/pkg/redis"
)

// app is everything one command invocation needs.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	redis   *pkgredis.Client
	svc     *service.Service
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	a := &app{cfg: cfg, metrics: metrics.New(nil)}
	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, remote query caching disabled", "error", err)
		} else {
			a.redis = client
			queryCache = cache.New(client, cfg.Redis.CacheTTL, a.metrics)
			slog.Info("remote query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	a.svc = service.New(cfg, service.Options{Metrics: a.metrics, QueryCache: queryCache})
	return a, nil
}

func (a *app) Close() {
	if err := a.svc.Close(); err != nil {
		slog.Error("closing service", "error", err)
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// open reads a POM file and opens it in the service.
func (a *app) open(path string) (uri.URI, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", abs, err)
	}
	id := uri.File(abs)
	a.svc.Open(id, 1, string(data))
	return id, nil
}

// position resolves --line/--character in an open document.
func (a *app) position(id uri.URI, line, character uint32) (int, error) {
	return a.svc.OffsetAt(id, protocol.Position{Line: line, Character: character})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
