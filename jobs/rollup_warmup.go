package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rollup/internal/dedup"
	jobmetrics "github.com/odyssey-erp/odyssey-rollup/internal/jobs"
	"github.com/odyssey-erp/odyssey-rollup/internal/reconcile"
	"github.com/odyssey-erp/odyssey-rollup/internal/rollup"
	"github.com/odyssey-erp/odyssey-rollup/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RollupService is the subset of the reconcile service used by the jobs.
type RollupService interface {
	Rollup(ctx context.Context, q reconcile.Query) (reconcile.Report, error)
	Summary(ctx context.Context, q reconcile.SummaryQuery) (reconcile.Summary, error)
	Invalidate(ctx context.Context) error
}

// WarmupJob precomputes reports so the first request after a refresh hits
// the shared cache.
type WarmupJob struct {
	Service    RollupService
	Dimensions []string
	Timeout    time.Duration
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewWarmupJob wires dependencies for the warm-up handler.
func NewWarmupJob(service RollupService, dimensions []string, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{
		Service:    service,
		Dimensions: dimensions,
		Timeout:    2 * time.Minute,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes warm-up tasks.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("rollup warmup: handler not configured")
	}
	var payload WarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	dimensions := payload.Dimensions
	if len(dimensions) == 0 {
		dimensions = j.Dimensions
	}
	if len(dimensions) == 0 {
		dimensions = []string{rollup.DimVendor, rollup.DimMonth}
	}
	sources := payload.Sources
	if len(sources) == 0 {
		sources = []string{reconcile.SourceSales}
	}

	tracker := j.metrics().Track(TaskRollupWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Any("dimensions", dimensions), slog.Any("sources", sources))
	logger.Info("starting rollup warmup")
	start := j.now()

	if payload.Refresh {
		if err := j.Service.Invalidate(ctx); err != nil {
			resultErr = err
			logger.Error("refresh caches", slog.Any("error", err))
			return resultErr
		}
	}

	warmed := 0
	for _, source := range sources {
		n, err := j.warmSource(ctx, source, dimensions, payload.Consolidate)
		warmed += n
		if err != nil {
			resultErr = err
			logger.Error("warm source", slog.String("source", source), slog.Any("error", err))
			if isPermanent(err) {
				return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
			}
			return resultErr
		}
	}

	logger.Info("completed rollup warmup", slog.Int("reports", warmed), slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *WarmupJob) warmSource(ctx context.Context, source string, dimensions []string, consolidate bool) (int, error) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	sourceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := j.Service.Summary(sourceCtx, reconcile.SummaryQuery{Source: source}); err != nil {
		return 0, err
	}
	j.metrics().AddWarmed("", 1)
	warmed := 1

	for _, dim := range dimensions {
		q := reconcile.Query{
			Dimension:   dim,
			Source:      source,
			Consolidate: consolidate && dim == rollup.DimVendor,
		}
		_, err := j.Service.Rollup(sourceCtx, q)
		var integrityErr *dedup.IntegrityError
		switch {
		case errors.As(err, &integrityErr):
			// The report is still cached and carries the diagnostics.
			j.logger().Warn("warmed report failed integrity check", slog.String("dimension", dim), slog.Any("error", err))
		case err != nil:
			return warmed, fmt.Errorf("rollup warmup: %s/%s: %w", source, dim, err)
		}
		j.metrics().AddWarmed(dim, 1)
		warmed++
	}
	return warmed, nil
}

func isPermanent(err error) bool {
	return errors.Is(err, shared.ErrUnknownDimension) ||
		errors.Is(err, shared.ErrUnknownSource) ||
		errors.Is(err, shared.ErrValidation)
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRollupWarmup))
	}
	return slog.Default().With(slog.String("job", TaskRollupWarmup))
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *WarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
