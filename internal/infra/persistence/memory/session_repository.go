package memorypersistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"rps-arena/internal/domain"
	"rps-arena/internal/repository"
)

// SessionRepository 是 SessionRepository 接口的进程内实现。
// 所有写操作都很短，用一把锁即可满足单用户原子性。
type SessionRepository struct {
	mu        sync.RWMutex
	byUser    map[string]*domain.Session
	bySession map[string]string // sessionID -> userID
}

// NewSessionRepository 创建空的内存在线记录存储。
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byUser:    make(map[string]*domain.Session),
		bySession: make(map[string]string),
	}
}

// Upsert 实现按用户插入或更新在线记录
func (r *SessionRepository) Upsert(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, taken := r.bySession[session.SessionID]; taken && owner != session.UserID {
		return repository.ErrDuplicateEntry
	}

	existing, ok := r.byUser[session.UserID]
	if !ok {
		stored := *session
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = session.LastActive
		}
		stored.UpdatedAt = session.LastActive
		r.byUser[session.UserID] = &stored
		r.bySession[stored.SessionID] = stored.UserID
		return nil
	}

	if existing.SessionID != session.SessionID {
		delete(r.bySession, existing.SessionID)
		r.bySession[session.SessionID] = session.UserID
	}
	existing.DisplayName = session.DisplayName
	existing.SessionID = session.SessionID
	existing.LastActive = session.LastActive
	existing.Online = session.Online
	existing.IPAddress = session.IPAddress
	existing.UserAgent = session.UserAgent
	existing.UpdatedAt = session.LastActive
	return nil
}

// FindByUserID 实现根据用户 ID 查找在线记录
func (r *SessionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[userID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	c := *s
	return &c, nil
}

// MarkOffline 实现登出
func (r *SessionRepository) MarkOffline(ctx context.Context, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byUser[userID]
	if !ok {
		return false, nil
	}
	s.Online = false
	s.UpdatedAt = at
	return true, nil
}

// SetCurrentRoom 实现房间关联的设置和清除
func (r *SessionRepository) SetCurrentRoom(ctx context.Context, userIDs []string, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range userIDs {
		if s, ok := r.byUser[id]; ok {
			s.CurrentRoom = roomID
		}
	}
	return nil
}

func (r *SessionRepository) online(since time.Time) []domain.Session {
	var out []domain.Session
	for _, s := range r.byUser {
		if s.Online && !s.LastActive.Before(since) {
			out = append(out, *s)
		}
	}
	return out
}

// CountOnline 实现在线人数统计
func (r *SessionRepository) CountOnline(ctx context.Context, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.online(since))), nil
}

// ListOnline 实现在线玩家列表
func (r *SessionRepository) ListOnline(ctx context.Context, since time.Time, limit int) ([]domain.Session, error) {
	r.mu.RLock()
	out := r.online(since)
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].LastActive.After(out[j].LastActive)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteStale 实现过期在线记录清理
func (r *SessionRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for userID, s := range r.byUser {
		if s.LastActive.Before(before) {
			delete(r.byUser, userID)
			delete(r.bySession, s.SessionID)
			deleted++
		}
	}
	return deleted, nil
}
