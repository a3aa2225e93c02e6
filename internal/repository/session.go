package repository

import (
	"context"
	"time"

	"rps-arena/internal/domain"
)

// SessionRepository 定义了在线记录的存储操作。每个 userId 至多一条记录，
// 所有写操作都是单用户原子操作，不需要跨用户协调。
type SessionRepository interface {
	// Upsert 按 UserID 插入或更新记录：刷新 DisplayName、SessionID、LastActive、
	// Online、IPAddress、UserAgent，不修改 CurrentRoom。
	// SessionID 已被其他用户占用时返回 ErrDuplicateEntry。
	Upsert(ctx context.Context, session *domain.Session) error

	// FindByUserID 查找用户的记录，不存在时返回 ErrSessionNotFound。
	FindByUserID(ctx context.Context, userID string) (*domain.Session, error)

	// MarkOffline 把用户标记为离线但保留记录，updatedAt 记为 at，返回是否找到了记录。
	MarkOffline(ctx context.Context, userID string, at time.Time) (bool, error)

	// SetCurrentRoom 设置 (roomID 为空时清除) 一组用户的房间关联，没有记录的用户被忽略。
	SetCurrentRoom(ctx context.Context, userIDs []string, roomID string) error

	// CountOnline 统计 online=true 且 lastActive >= since 的记录数。
	CountOnline(ctx context.Context, since time.Time) (int64, error)

	// ListOnline 返回与 CountOnline 相同条件的记录，按 lastActive 从新到旧，最多 limit 条。
	ListOnline(ctx context.Context, since time.Time, limit int) ([]domain.Session, error)

	// DeleteStale 删除 lastActive < before 的记录，返回删除数量。
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
