package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRollupWarmup precomputes the configured rollup reports.
	TaskRollupWarmup = "rollup:warmup"
	// TaskRollupInvalidate drops every cached snapshot and report.
	TaskRollupInvalidate = "rollup:invalidate"
)

// WarmupPayload selects which reports the warm-up job computes. Empty
// slices fall back to the job defaults.
type WarmupPayload struct {
	Dimensions  []string `json:"dimensions,omitempty"`
	Sources     []string `json:"sources,omitempty"`
	Consolidate bool     `json:"consolidate"`
	Refresh     bool     `json:"refresh"`
}

// InvalidatePayload records why caches were dropped.
type InvalidatePayload struct {
	Reason string `json:"reason"`
}

// NewWarmupTask constructs an Asynq warm-up task.
func NewWarmupTask(payload WarmupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRollupWarmup, body, asynq.Queue(QueueDefault)), nil
}

// NewInvalidateTask constructs an Asynq invalidation task.
func NewInvalidateTask(reason string) (*asynq.Task, error) {
	body, err := json.Marshal(InvalidatePayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRollupInvalidate, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
