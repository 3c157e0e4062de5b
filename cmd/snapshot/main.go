package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"

	"crypto-snapshot/internal/cache"
	"crypto-snapshot/internal/config"
	"crypto-snapshot/internal/job"
	"crypto-snapshot/internal/provider"
	"crypto-snapshot/internal/service"
	"crypto-snapshot/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

var (
	loadEnvFunc         = godotenv.Load
	loadConfigFunc      = config.Load
	initTracerFunc      = tracing.InitTracer
	initRedisFunc       = cache.InitRedis
	newMarketClientFunc = func(tracer trace.Tracer, cfg *config.Config) service.MarketDataClient {
		return provider.NewCoinMarketCapProvider(tracer, cfg.APIKey,
			provider.WithBaseURL(cfg.BaseURL),
			provider.WithMinVolume24h(cfg.MinVolume24h),
			provider.WithRatePerMinute(cfg.RateLimitPerMin),
		)
	}
	startSchedulerFunc     = func(s *job.DailyScheduler, ctx context.Context) { go s.Start(ctx) }
	newRouterFunc          = gin.New
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	exitFunc               = os.Exit
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitFunc(1)
	}
}
