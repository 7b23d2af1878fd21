package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TokenPruner removes session tokens that no longer verify.
type TokenPruner interface {
	PruneExpiredTokens(ctx context.Context) (int, error)
}

// PruneRecorder observes how many tokens each run removed and how the run went.
type PruneRecorder interface {
	RecordTokensPruned(n int)
	ObserveJob(job string, took time.Duration, err error)
}

// TokensPruneJob handles TaskTokensPrune.
type TokensPruneJob struct {
	pruner   TokenPruner
	logger   *slog.Logger
	recorder PruneRecorder
}

// NewTokensPruneJob constructs the job handler. recorder may be nil.
func NewTokensPruneJob(pruner TokenPruner, logger *slog.Logger, recorder PruneRecorder) *TokensPruneJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokensPruneJob{pruner: pruner, logger: logger, recorder: recorder}
}

// Handle runs one prune pass.
func (j *TokensPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload TokensPrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("jobs: decode prune payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	start := time.Now()
	removed, err := j.pruner.PruneExpiredTokens(ctx)
	if j.recorder != nil {
		j.recorder.RecordTokensPruned(removed)
		j.recorder.ObserveJob(TaskTokensPrune, time.Since(start), err)
	}
	if err != nil {
		j.logger.Error("prune tokens", slog.Any("error", err), slog.Int("removed", removed))
		return err
	}
	j.logger.Info("prune tokens", slog.Int("removed", removed), slog.String("reason", payload.Reason))
	return nil
}
