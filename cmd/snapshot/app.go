package main

import (
	"context"
	"io"
	"time"

	"crypto-snapshot/internal/cache"
	"crypto-snapshot/internal/config"
	"crypto-snapshot/internal/console"
	"crypto-snapshot/internal/metrics"
	"crypto-snapshot/internal/repository"
	"crypto-snapshot/internal/service"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	metrics *metrics.Metrics
	store   service.SnapshotStore
	printer *console.Printer
	report  *service.ReportService
	redis   *redis.Client
}

func setup(ctx context.Context, out io.Writer) (*app, error) {
	_ = loadEnvFunc()

	cfg := loadConfigFunc()
	log.SetLevel(cfg.LogLevel)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		tp:      tp,
		tracer:  tracer,
		metrics: metrics.New(),
		printer: console.New(out),
	}

	repo := repository.NewFileSnapshotRepository(cfg.StorageDir, tracer)
	a.store = repo

	client, err := initRedisFunc(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, continuing without snapshot cache", "err", err)
	} else if client != nil {
		a.redis = client
		a.store = cache.NewSnapshotCache(tracer, client, repo, cache.Namespace(cfg.Currency, cfg.StorageDir), cache.DefaultSnapshotTTL)
	}

	market := newMarketClientFunc(tracer, cfg)
	a.report = service.NewReportService(tracer, market, a.store, a.printer, a.metrics, cfg.Currency)
	return a, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn("error closing redis client", "err", err)
		}
	}
	if err := a.tp.Shutdown(ctx); err != nil {
		log.Warn("error shutting down tracer provider", "err", err)
	}
}
