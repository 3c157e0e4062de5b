package service

import (
	"context"
	"errors"
	"time"

	"crypto-snapshot/internal/domain"
	"crypto-snapshot/internal/metrics"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RunState is a step of the report pipeline.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateFetching   RunState = "fetching"
	StateComputing  RunState = "computing"
	StatePersisting RunState = "persisting"
	StateDone       RunState = "done"
	StateFailed     RunState = "failed"
)

// MarketDataClient provides the aggregate views of the listings endpoint.
type MarketDataClient interface {
	TopByVolume(ctx context.Context, currency string) (domain.AssetQuote, error)
	TopByChange(ctx context.Context, currency string, dir domain.SortDirection) ([]domain.RankedAsset, error)
	TotalPrice(ctx context.Context, currency string, mode domain.PriceMode) (float64, error)
}

// SnapshotStore persists one snapshot per calendar date. Load reports a
// missing date with found=false and a nil error.
type SnapshotStore interface {
	Load(ctx context.Context, date time.Time) (record domain.SnapshotRecord, found bool, err error)
	Save(ctx context.Context, date time.Time, record domain.SnapshotRecord) error
}

// StatusReporter receives the human-readable progress of a run.
type StatusReporter interface {
	SessionStarted(at time.Time)
	FetchSucceeded(at time.Time)
	FetchFailed(err error)
	CalculatingReturn()
	ReturnCalculated(r domain.DailyReturn)
	NoPriorData()
	PriorDataUnreadable(err error)
	ReturnUnavailable(err error)
	SaveFailed(err error)
	Completed(d time.Duration)
}

// RunResult describes one finished run. Record is only set when State is
// StateDone.
type RunResult struct {
	RunID           string
	State           RunState
	StartedAt       time.Time
	Duration        time.Duration
	Record          domain.SnapshotRecord
	Return          domain.DailyReturn
	ReturnAvailable bool
}

// ReportService fetches the daily market aggregates, computes the return
// against yesterday's snapshot and stores today's snapshot.
// It keeps no state between runs.
type ReportService struct {
	tracer   trace.Tracer
	client   MarketDataClient
	store    SnapshotStore
	reporter StatusReporter
	metrics  *metrics.Metrics
	logger   *log.Logger
	currency string
	now      func() time.Time
}

func NewReportService(
	tracer trace.Tracer,
	client MarketDataClient,
	store SnapshotStore,
	reporter StatusReporter,
	m *metrics.Metrics,
	currency string,
) *ReportService {
	return &ReportService{
		tracer:   tracer,
		client:   client,
		store:    store,
		reporter: reporter,
		metrics:  m,
		logger:   log.Default().WithPrefix("report"),
		currency: currency,
		now:      time.Now,
	}
}

// Currency returns the conversion currency of every run.
func (s *ReportService) Currency() string {
	return s.currency
}

// Run executes the pipeline once. Fetch and save failures abort the run and
// are returned; return-calculation problems only leave the return out.
func (s *ReportService) Run(ctx context.Context) (RunResult, error) {
	ctx, span := s.tracer.Start(ctx, "report-service.run")
	defer span.End()

	start := s.now()
	result := RunResult{RunID: uuid.NewString(), State: StateIdle, StartedAt: start}
	logger := s.logger.With("run_id", result.RunID, "currency", s.currency)
	span.SetAttributes(attribute.String("run_id", result.RunID), attribute.String("currency", s.currency))

	s.transition(logger, &result, StateFetching)
	s.reporter.SessionStarted(start)

	record := domain.SnapshotRecord{
		Timestamp:   domain.FormatTimestamp(start),
		ConvertedIn: s.currency,
	}
	if err := s.fetch(ctx, &record); err != nil {
		s.reporter.FetchFailed(err)
		return s.fail(logger, span, result, err)
	}
	s.reporter.FetchSucceeded(s.now())

	s.transition(logger, &result, StateComputing)
	if ret, ok := s.computeReturn(ctx, logger, start, record.TotalPriceTop20ByMarketCap); ok {
		formatted := ret.Formatted
		record.TodayReturn = &formatted
		result.Return = ret
		result.ReturnAvailable = true
	}

	s.transition(logger, &result, StatePersisting)
	if err := s.store.Save(ctx, start, record); err != nil {
		s.reporter.SaveFailed(err)
		return s.fail(logger, span, result, err)
	}

	s.transition(logger, &result, StateDone)
	result.Record = record
	result.Duration = s.now().Sub(start)
	s.metrics.ObserveRun(metrics.OutcomeDone, result.Duration, start.Add(result.Duration))
	s.reporter.Completed(result.Duration)
	logger.Info("snapshot saved", "date", domain.DateKey(start), "duration", result.Duration)
	return result, nil
}

func (s *ReportService) transition(logger *log.Logger, result *RunResult, next RunState) {
	logger.Debug("state transition", "from", result.State, "to", next)
	result.State = next
}

func (s *ReportService) fail(logger *log.Logger, span trace.Span, result RunResult, err error) (RunResult, error) {
	from := result.State
	s.transition(logger, &result, StateFailed)
	result.Duration = s.now().Sub(result.StartedAt)
	s.metrics.ObserveRun(metrics.OutcomeFailed, result.Duration, result.StartedAt.Add(result.Duration))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("snapshot run failed", "state", from, "err", err)
	return result, err
}

// fetch fills the market fields of record, one upstream query at a time.
// The first failure stops the sequence.
func (s *ReportService) fetch(ctx context.Context, record *domain.SnapshotRecord) error {
	steps := []struct {
		query string
		run   func() error
	}{
		{"top_by_volume", func() (err error) {
			record.TopByVolume, err = s.client.TopByVolume(ctx, s.currency)
			return err
		}},
		{"top_by_increment", func() (err error) {
			record.TopByIncrement, err = s.client.TopByChange(ctx, s.currency, domain.SortDescending)
			return err
		}},
		{"worst_by_increment", func() (err error) {
			record.WorstByIncrement, err = s.client.TopByChange(ctx, s.currency, domain.SortAscending)
			return err
		}},
		{"total_price_market_cap", func() (err error) {
			record.TotalPriceTop20ByMarketCap, err = s.client.TotalPrice(ctx, s.currency, domain.PriceModeMarketCap)
			return err
		}},
		{"total_price_volume_floor", func() (err error) {
			record.TotalPriceMinVolumeBasket, err = s.client.TotalPrice(ctx, s.currency, domain.PriceModeVolumeFloor)
			return err
		}},
	}

	for _, step := range steps {
		err := step.run()
		s.metrics.ObserveUpstream(step.query, err)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *ReportService) computeReturn(ctx context.Context, logger *log.Logger, start time.Time, todayTotal float64) (domain.DailyReturn, bool) {
	s.reporter.CalculatingReturn()

	yesterday := domain.PreviousDay(start)
	prior, found, err := s.store.Load(ctx, yesterday)
	if err != nil {
		var corrupt *domain.CorruptRecordError
		if errors.As(err, &corrupt) {
			logger.Error("previous snapshot is corrupt", "key", corrupt.Key, "err", corrupt.Err)
		} else {
			logger.Error("load previous snapshot", "date", domain.DateKey(yesterday), "err", err)
		}
		s.reporter.PriorDataUnreadable(err)
		return domain.DailyReturn{}, false
	}
	if !found {
		logger.Info("no snapshot for previous day, skipping return", "date", domain.DateKey(yesterday))
		s.reporter.NoPriorData()
		return domain.DailyReturn{}, false
	}

	ret, ok, err := ComputeReturn(todayTotal, &prior)
	if err != nil {
		logger.Warn("return unavailable", "err", err)
		s.reporter.ReturnUnavailable(err)
		return domain.DailyReturn{}, false
	}
	s.reporter.ReturnCalculated(ret)
	s.metrics.ObserveReturn(ret)
	return ret, ok
}
