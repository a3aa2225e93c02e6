package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"rps-arena/internal/service"
	"rps-arena/internal/tasks"
)

// Sweeper 是清理任务依赖的能力，由 service.ExpirySweeper 实现
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// ExpirySweepHandler 处理周期性的过期清理任务
type ExpirySweepHandler struct {
	sweeper Sweeper
}

// NewExpirySweepHandler 创建 Handler 实例
func NewExpirySweepHandler(sweeper Sweeper) *ExpirySweepHandler {
	if sweeper == nil {
		panic("Sweeper cannot be nil for ExpirySweepHandler")
	}
	return &ExpirySweepHandler{sweeper: sweeper}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ExpirySweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
	})

	var payload tasks.ExpirySweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal task payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	logCtx = logCtx.WithField("reason", payload.Reason)

	result, err := h.sweeper.Sweep(ctx)
	if err != nil {
		// 下一个周期会重新清理，不需要重试
		logCtx.WithError(err).Error("Expiry sweep task failed")
		return fmt.Errorf("expiry sweep: %v: %w", err, asynq.SkipRetry)
	}
	logCtx.WithFields(logrus.Fields{
		"deleted_rooms":    result.DeletedRooms,
		"deleted_sessions": result.DeletedSessions,
	}).Debug("Expiry sweep task processed")
	return nil
}
