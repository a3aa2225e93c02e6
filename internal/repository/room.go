package repository

import (
	"context"
	"time"

	"rps-arena/internal/domain"
)

// UpdateAction 告诉存储层如何提交 UpdateFunc 的结果。
type UpdateAction int

const (
	// ActionSave 保存修改后的房间 (版本号加一)。
	ActionSave UpdateAction = iota
	// ActionDelete 删除房间。
	ActionDelete
	// ActionNone 不写入任何内容。
	ActionNone
)

// UpdateFunc 在房间的独占区段内执行。它拿到的是房间的私有副本，
// 返回错误时存储层不写入任何内容并原样返回该错误。
// 乐观并发的实现可能多次调用它，因此它不能有外部副作用。
type UpdateFunc func(room *domain.Room) (UpdateAction, error)

// RoomRepository 定义了房间数据的存储和检索操作。
// 所有实现都必须保证同一房间上的 Update 串行化，不同房间之间互不阻塞。
type RoomRepository interface {
	// Create 保存新房间。房间 ID 已存在时返回 ErrDuplicateEntry。
	Create(ctx context.Context, room *domain.Room) error

	// FindByID 根据房间 ID 查找房间，不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id string) (*domain.Room, error)

	// Exists 检查房间 ID 是否已被占用。
	Exists(ctx context.Context, id string) (bool, error)

	// ListOpen 返回等待对手、公开且未过期的房间，按创建时间从新到旧排列。
	// limit <= 0 表示不限制数量。
	ListOpen(ctx context.Context, now time.Time, limit int) ([]domain.Room, error)

	// Update 原子地读取-修改-写入一个房间，返回提交后的房间
	// (ActionDelete 时返回删除前的最后状态)。
	// 房间不存在时返回 ErrRoomNotFound。
	Update(ctx context.Context, id string, fn UpdateFunc) (*domain.Room, error)

	// DeleteExpired 删除 domain.Room.Expired 为真的房间，返回删除数量。
	DeleteExpired(ctx context.Context, now time.Time, abandonAfter time.Duration) (int64, error)
}
