package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTokensPrune removes expired session tokens from user records.
	TaskTokensPrune = "tokens:prune"
)

// TokensPrunePayload describes a prune run.
type TokensPrunePayload struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewTokensPruneTask constructs an Asynq task for pruning tokens.
func NewTokensPruneTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(TokensPrunePayload{Reason: reason, RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTokensPrune, data, asynq.Queue(QueueDefault), asynq.Unique(time.Hour)), nil
}
