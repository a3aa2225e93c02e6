package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps-arena/internal/service"
	"rps-arena/internal/tasks"
	"rps-arena/internal/worker"
)

type stubSweeper struct {
	result service.SweepResult
	err    error
	calls  int
}

func (s *stubSweeper) Sweep(ctx context.Context) (service.SweepResult, error) {
	s.calls++
	return s.result, s.err
}

func TestExpirySweepHandler_ProcessTask(t *testing.T) {
	sweeper := &stubSweeper{result: service.SweepResult{DeletedRooms: 1, DeletedSessions: 2}}
	h := worker.NewExpirySweepHandler(sweeper)

	task, err := tasks.NewExpirySweepTask("manual", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, tasks.TypeExpirySweep, task.Type())

	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, 1, sweeper.calls)
}

func TestExpirySweepHandler_EmptyPayload(t *testing.T) {
	sweeper := &stubSweeper{}
	h := worker.NewExpirySweepHandler(sweeper)

	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeExpirySweep, nil)))
	assert.Equal(t, 1, sweeper.calls)
}

func TestExpirySweepHandler_BadPayloadSkipsRetry(t *testing.T) {
	sweeper := &stubSweeper{}
	h := worker.NewExpirySweepHandler(sweeper)

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeExpirySweep, []byte("{not json")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, sweeper.calls)
}

func TestExpirySweepHandler_SweepFailure(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("store down")}
	h := worker.NewExpirySweepHandler(sweeper)

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeExpirySweep, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Contains(t, err.Error(), "store down")
}

func TestNewServeMux_RoutesSweepTask(t *testing.T) {
	sweeper := &stubSweeper{}
	mux := worker.NewServeMux(sweeper)

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeExpirySweep, nil)))
	assert.Equal(t, 1, sweeper.calls)

	assert.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask("unknown:type", nil)))
}

func TestNewExpirySweepHandler_NilPanics(t *testing.T) {
	assert.Panics(t, func() { worker.NewExpirySweepHandler(nil) })
}
