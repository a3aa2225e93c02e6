package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rps-arena/internal/domain"
	"rps-arena/internal/repository"
)

const (
	DefaultOnlineListLimit = 50
	MaxOnlineListLimit     = 200
)

// PresenceConfig 是 PresenceService 的可调参数
type PresenceConfig struct {
	Policy domain.PresencePolicy
	Now    func() time.Time
}

// PresenceService 维护心跳驱动的在线记录。
type PresenceService struct {
	sessionRepo repository.SessionRepository
	policy      domain.PresencePolicy
	now         func() time.Time
}

// NewPresenceService 创建 PresenceService 实例
func NewPresenceService(sessionRepo repository.SessionRepository, cfg PresenceConfig) *PresenceService {
	if sessionRepo == nil {
		panic("SessionRepository cannot be nil for PresenceService")
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &PresenceService{
		sessionRepo: sessionRepo,
		policy:      cfg.Policy.Normalize(),
		now:         now,
	}
}

// HeartbeatInput 是一次心跳的参数，SessionID 为空时由服务端生成。
type HeartbeatInput struct {
	UserID      string
	DisplayName string
	SessionID   string
	IPAddress   string
	UserAgent   string
}

// Heartbeat 刷新用户的在线记录并返回 sessionId。房间关联保持不变。
func (s *PresenceService) Heartbeat(ctx context.Context, in HeartbeatInput) (string, error) {
	userID := strings.TrimSpace(in.UserID)
	displayName := strings.TrimSpace(in.DisplayName)
	if userID == "" {
		return "", validationError("userId is required")
	}
	if displayName == "" {
		return "", validationError("displayName is required")
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "session_id": sessionID})

	err := s.sessionRepo.Upsert(ctx, &domain.Session{
		UserID:      userID,
		DisplayName: displayName,
		SessionID:   sessionID,
		LastActive:  s.now(),
		Online:      true,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Warn("Heartbeat rejected: sessionId belongs to another user")
			return "", validationError("sessionId is already in use")
		}
		logCtx.WithError(err).Error("Failed to upsert session")
		return "", ErrInternalServer
	}
	logCtx.Debug("Heartbeat recorded")
	return sessionID, nil
}

// OnlineCount 统计在线窗口内且未登出的用户数。
func (s *PresenceService) OnlineCount(ctx context.Context) (int64, error) {
	n, err := s.sessionRepo.CountOnline(ctx, s.policy.OnlineSince(s.now()))
	if err != nil {
		logrus.WithError(err).Error("Failed to count online sessions")
		return 0, ErrInternalServer
	}
	return n, nil
}

// ListOnline 返回在线玩家，最近活跃的在前。limit 被限制在 [1, 200]，0 表示默认值。
func (s *PresenceService) ListOnline(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	switch {
	case limit == 0:
		limit = DefaultOnlineListLimit
	case limit < 1:
		limit = 1
	case limit > MaxOnlineListLimit:
		limit = MaxOnlineListLimit
	}
	sessions, err := s.sessionRepo.ListOnline(ctx, s.policy.OnlineSince(s.now()), limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to list online sessions")
		return nil, ErrInternalServer
	}
	out := make([]domain.SessionSummary, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessions[i].Summary())
	}
	return out, nil
}

// Logout 把用户标记为离线，记录保留到被清理为止。未知用户直接忽略。
func (s *PresenceService) Logout(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return validationError("userId is required")
	}
	logCtx := logrus.WithField("user_id", userID)
	found, err := s.sessionRepo.MarkOffline(ctx, userID, s.now())
	if err != nil {
		logCtx.WithError(err).Error("Failed to mark session offline")
		return ErrInternalServer
	}
	if !found {
		logCtx.Debug("Logout for unknown user ignored")
		return nil
	}
	logCtx.Info("User logged out")
	return nil
}

// Sweep 删除超过清理窗口没有心跳的记录，返回删除数量。
func (s *PresenceService) Sweep(ctx context.Context) (int64, error) {
	n, err := s.sessionRepo.DeleteStale(ctx, s.policy.StaleBefore(s.now()))
	if err != nil {
		return n, fmt.Errorf("sweep stale sessions: %w", err)
	}
	return n, nil
}

// Session 返回用户的在线记录
func (s *PresenceService) Session(ctx context.Context, userID string) (*domain.Session, error) {
	session, err := s.sessionRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err, ErrSessionNotFound)
	}
	return session, nil
}

// EnterRoom 记录用户所在的房间，没有在线记录的用户被忽略。
func (s *PresenceService) EnterRoom(ctx context.Context, userID, roomID string) error {
	if userID == "" || roomID == "" {
		return nil
	}
	if err := s.sessionRepo.SetCurrentRoom(ctx, []string{userID}, roomID); err != nil {
		return fmt.Errorf("enter room %s: %w", roomID, err)
	}
	return nil
}

// ReleaseRoom 清除一组用户的房间关联
func (s *PresenceService) ReleaseRoom(ctx context.Context, userIDs ...string) error {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.sessionRepo.SetCurrentRoom(ctx, ids, ""); err != nil {
		return fmt.Errorf("release room: %w", err)
	}
	return nil
}
