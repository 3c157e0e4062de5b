package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"crypto-snapshot/internal/domain"
	"crypto-snapshot/internal/handler"
	"crypto-snapshot/internal/job"
	"crypto-snapshot/internal/repository"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "crypto-snapshot"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Daily crypto market snapshot",
		Long: `Fetches CoinMarketCap listings once a day, computes the day-over-day
return of the top 20 assets by market cap and stores a JSON snapshot per day.

Running without a subcommand is the same as "serve".`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the daily scheduler and the HTTP inspection API",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "once",
			Short: "Take one snapshot now and exit",
			Args:  cobra.NoArgs,
			RunE:  runOnce,
		},
		&cobra.Command{
			Use:   "show [DD_MM_YYYY]",
			Short: "Print a stored snapshot (default: today)",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runShow,
		},
	)
	return root
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := setup(ctx, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer a.close()

	scheduler, err := job.NewDailyScheduler(a.tracer, a.report, a.cfg.ReportTime, a.cfg.PollInterval)
	if err != nil {
		return err
	}
	a.printer.BotStarted(time.Now(), a.cfg.ReportTime, a.cfg.Currency)
	startSchedulerFunc(scheduler, ctx)

	var srv *http.Server
	if a.cfg.HTTPEnabled {
		r := newRouterFunc()
		r.Use(gin.Recovery(), otelgin.Middleware(serviceName))
		handler.New(a.tracer, a.store, a.metrics.Handler()).RegisterRoutes(r, a.cfg.HTTPAPIKey)

		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
				log.Error("http server stopped", "err", err)
				cancel()
			}
		}()
		log.Info("http server listening", "addr", srv.Addr)
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		select {
		case quit <- syscall.SIGTERM:
		default:
		}
	}()
	waitForSignalFunc(quit)
	log.Info("shutting down")
	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
	}
	return nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer a.close()

	result, err := a.report.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("snapshot run %s failed: %w", result.RunID, err)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer a.close()

	date := time.Now()
	if len(args) == 1 {
		date, err = domain.ParseDateKey(args[0], time.Local)
		if err != nil {
			return fmt.Errorf("date must be formatted as DD_MM_YYYY: %w", err)
		}
	}

	record, found, err := a.store.Load(cmd.Context(), date)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no snapshot stored as %s", repository.SnapshotKey(date))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}
