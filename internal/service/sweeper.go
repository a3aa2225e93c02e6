package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSweepInterval 是进程内清理器的默认周期
const DefaultSweepInterval = time.Minute

// RoomSweeper 删除过期房间
type RoomSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SessionSweeper 删除过期在线记录
type SessionSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// SweepResult 是一次清理的结果
type SweepResult struct {
	DeletedRooms    int64 `json:"deletedRooms"`
	DeletedSessions int64 `json:"deletedSessions"`
}

// ExpirySweeper 同时清理房间和在线记录。
// 可以由 Run 在进程内周期执行，也可以由 asynq 周期任务触发 Sweep。
type ExpirySweeper struct {
	rooms    RoomSweeper
	sessions SessionSweeper
	log      *logrus.Entry
}

// NewExpirySweeper 创建 ExpirySweeper 实例
func NewExpirySweeper(rooms RoomSweeper, sessions SessionSweeper, logger *logrus.Logger) *ExpirySweeper {
	if rooms == nil || sessions == nil {
		panic("room and session sweepers cannot be nil for ExpirySweeper")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ExpirySweeper{
		rooms:    rooms,
		sessions: sessions,
		log:      logger.WithField("component", "expiry_sweeper"),
	}
}

// Sweep 执行一次清理。两部分互不影响，错误合并后返回。
func (s *ExpirySweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	var roomErr, sessionErr error

	result.DeletedRooms, roomErr = s.rooms.SweepExpired(ctx)
	if roomErr != nil {
		s.log.WithError(roomErr).Error("Room sweep failed")
	}
	result.DeletedSessions, sessionErr = s.sessions.Sweep(ctx)
	if sessionErr != nil {
		s.log.WithError(sessionErr).Error("Session sweep failed")
	}

	entry := s.log.WithFields(logrus.Fields{
		"deleted_rooms":    result.DeletedRooms,
		"deleted_sessions": result.DeletedSessions,
	})
	if result.DeletedRooms > 0 || result.DeletedSessions > 0 {
		entry.Info("Expiry sweep completed")
	} else {
		entry.Debug("Expiry sweep completed, nothing to delete")
	}
	return result, errors.Join(roomErr, sessionErr)
}

// Run 每隔 interval 执行一次清理，直到 ctx 结束。应该在单独的 goroutine 中调用。
func (s *ExpirySweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.WithField("interval", interval.String()).Info("In-process expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("In-process expiry sweeper stopped")
			return
		case <-ticker.C:
			_, _ = s.Sweep(ctx) // 错误已在 Sweep 中记录
		}
	}
}
