package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-rollup/internal/jobs"
)

// Invalidator drops cached rollup state.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// InvalidateJob clears the shared caches, typically after an ERP import.
type InvalidateJob struct {
	Service Invalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewInvalidateJob wires dependencies for the invalidation handler.
func NewInvalidateJob(service Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvalidateJob {
	return &InvalidateJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle processes invalidation tasks.
func (j *InvalidateJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("rollup invalidate: handler not configured")
	}
	var payload InvalidatePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskRollupInvalidate)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err = j.Service.Invalidate(ctx); err != nil {
		logger.Error("invalidate rollup caches", slog.String("reason", payload.Reason), slog.Any("error", err))
		return err
	}
	logger.Info("rollup caches invalidated", slog.String("job", TaskRollupInvalidate), slog.String("reason", payload.Reason))
	return nil
}
