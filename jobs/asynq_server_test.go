package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientEnqueuesUniquePrune(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	info, err := client.EnqueueTokensPrune(ctx, "manual")
	require.NoError(t, err)
	assert.Equal(t, QueueDefault, info.Queue)
	assert.Equal(t, TaskTokensPrune, info.Type)

	_, err = client.EnqueueTokensPrune(ctx, "manual")
	assert.ErrorIs(t, err, asynq.ErrDuplicateTask)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()
	pending, err := rdb.LLen(ctx, "asynq:{"+QueueDefault+"}:pending").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"scheduled":0,"retry":0}`, rec.Body.String())
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewTokensPruneTask("scheduled")
	require.NoError(t, err)
	mr := miniredis.RunT(t)

	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: mr.Addr()},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	assert.Error(t, err)
}

func TestNewWorkerRejectsIncompleteHandler(t *testing.T) {
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers:  []TaskHandler{{Type: TaskTokensPrune}},
	})
	assert.Error(t, err)
}

func TestNewClientRequiresAddress(t *testing.T) {
	_, err := NewClient(asynq.RedisClientOpt{})
	assert.Error(t, err)
}
