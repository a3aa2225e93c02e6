package worker

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"rps-arena/internal/tasks"
)

// DefaultSweepSchedule 是清理任务的默认周期
const DefaultSweepSchedule = "@every 1m"

// Scheduler 封装 asynq.Scheduler，负责入队周期任务
type Scheduler struct {
	scheduler *asynq.Scheduler
	log       *logrus.Entry
}

// NewScheduler 创建调度器并注册清理任务。
// period 用于任务去重，应与 schedule 的周期一致。
func NewScheduler(redisOpt asynq.RedisClientOpt, schedule string, period time.Duration, logger *logrus.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	logEntry := logger.WithField("component", "scheduler")

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   newAsynqLogger(logEntry),
		EnqueueErrorHandler: func(task *asynq.Task, opts []asynq.Option, err error) {
			// 同一周期已被其他进程入队
			if errors.Is(err, asynq.ErrDuplicateTask) {
				logEntry.WithField("task_type", task.Type()).Debug("Periodic task already enqueued for this period")
				return
			}
			logEntry.WithError(err).WithField("task_type", task.Type()).Error("Failed to enqueue periodic task")
		},
	})

	task, err := tasks.NewExpirySweepTask("scheduled", period)
	if err != nil {
		return nil, fmt.Errorf("create expiry sweep task: %w", err)
	}
	entryID, err := scheduler.Register(schedule, task)
	if err != nil {
		return nil, fmt.Errorf("register expiry sweep task with schedule %q: %w", schedule, err)
	}
	logEntry.Infof("Periodic expiry sweep registered with schedule '%s' (EntryID: %s)", schedule, entryID)

	return &Scheduler{scheduler: scheduler, log: logEntry}, nil
}

// Start 运行调度器，应该在单独的 goroutine 中调用
func (s *Scheduler) Start() {
	s.log.Info("Asynq scheduler starting...")
	if err := s.scheduler.Run(); err != nil {
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			s.log.Errorf("Asynq scheduler Run() failed: %v", err)
			return
		}
	}
	s.log.Info("Asynq scheduler stopped.")
}

// Shutdown 停止调度器
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
