package job

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crypto-snapshot/internal/domain"
	"crypto-snapshot/internal/service"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultPollInterval = time.Second

// Runner executes one snapshot run.
type Runner interface {
	Run(ctx context.Context) (service.RunResult, error)
}

// DailyScheduler fires Runner once per calendar day at a wall-clock time.
// A missed trigger minute is not replayed later.
type DailyScheduler struct {
	tracer       trace.Tracer
	runner       Runner
	hour         int
	minute       int
	pollInterval time.Duration
	now          func() time.Time
	logger       *log.Logger

	// runSlot holds a token while a run is in flight; callers queue on it.
	runSlot   chan struct{}
	lastFired string
}

// ParseReportTime parses a 24-hour HH:MM time of day.
func ParseReportTime(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid report time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid report time %q: bad hour", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid report time %q: bad minute", s)
	}
	return hour, minute, nil
}

func NewDailyScheduler(tracer trace.Tracer, runner Runner, reportTime string, pollInterval time.Duration) (*DailyScheduler, error) {
	hour, minute, err := ParseReportTime(reportTime)
	if err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &DailyScheduler{
		tracer:       tracer,
		runner:       runner,
		hour:         hour,
		minute:       minute,
		pollInterval: pollInterval,
		now:          time.Now,
		logger:       log.Default().WithPrefix("scheduler"),
		runSlot:      make(chan struct{}, 1),
	}, nil
}

// Start polls the clock until ctx is cancelled, running the pipeline in the
// polling goroutine whenever the trigger time is reached.
func (s *DailyScheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler starting", "at", fmt.Sprintf("%02d:%02d", s.hour, s.minute), "poll", s.pollInterval)

	s.tick(ctx)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *DailyScheduler) tick(ctx context.Context) {
	now := s.now()
	if !s.due(now) {
		return
	}
	s.lastFired = domain.DateKey(now)
	if _, err := s.RunNow(ctx); err != nil {
		s.logger.Error("scheduled run failed, waiting for next trigger", "err", err)
	}
}

// due reports whether now is inside the trigger minute of a day that has not
// fired yet.
func (s *DailyScheduler) due(now time.Time) bool {
	if now.Hour() != s.hour || now.Minute() != s.minute {
		return false
	}
	return s.lastFired != domain.DateKey(now)
}

// RunNow runs the pipeline once. If another run is in flight it waits for it
// to finish first, so runs never overlap.
func (s *DailyScheduler) RunNow(ctx context.Context) (result service.RunResult, err error) {
	select {
	case s.runSlot <- struct{}{}:
	case <-ctx.Done():
		return service.RunResult{}, ctx.Err()
	}
	defer func() { <-s.runSlot }()

	ctx, span := s.tracer.Start(ctx, "daily-scheduler.run-once")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snapshot run panicked: %v", r)
			result.State = service.StateFailed
		}
	}()

	result, err = s.runner.Run(ctx)
	span.SetAttributes(attribute.String("state", string(result.State)))
	return result, err
}
