package memorypersistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"rps-arena/internal/domain"
	"rps-arena/internal/repository"
)

// roomEntry 持有单个房间及其独占锁。
// deleted 置位后 entry 即失效，即使仍被某个调用方引用也不会被复活。
type roomEntry struct {
	mu      sync.Mutex
	room    *domain.Room
	deleted bool
}

// RoomRepository 是 RoomRepository 接口的进程内实现。
// 索引锁只保护 map 本身；任何持有 entry 锁的路径都不会在持有索引锁时等待 entry 锁。
type RoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

// NewRoomRepository 创建空的内存房间存储。
func NewRoomRepository() *RoomRepository {
	return &RoomRepository{rooms: make(map[string]*roomEntry)}
}

func (r *RoomRepository) entry(id string) (*roomEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[id]
	return e, ok
}

// Create 实现保存新房间
func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[room.ID]; exists {
		return repository.ErrDuplicateEntry
	}
	stored := room.Clone()
	stored.Version = 1
	room.Version = 1
	r.rooms[room.ID] = &roomEntry{room: stored}
	return nil
}

// FindByID 实现根据房间 ID 查找房间
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, repository.ErrRoomNotFound
	}
	return e.room.Clone(), nil
}

// Exists 实现检查房间 ID 是否存在
func (r *RoomRepository) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := r.entry(id)
	return ok, nil
}

// snapshotEntries 在索引读锁下复制 entry 列表。
func (r *RoomRepository) snapshotEntries() []*roomEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	return entries
}

// ListOpen 实现大厅房间列表
func (r *RoomRepository) ListOpen(ctx context.Context, now time.Time, limit int) ([]domain.Room, error) {
	var open []domain.Room
	for _, e := range r.snapshotEntries() {
		e.mu.Lock()
		if !e.deleted && e.room.IsOpen(now) {
			open = append(open, *e.room.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].ID > open[j].ID
		}
		return open[i].CreatedAt.After(open[j].CreatedAt)
	})
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	return open, nil
}

// Update 实现房间的原子读-改-写，整个过程持有该房间的独占锁。
func (r *RoomRepository) Update(ctx context.Context, id string, fn repository.UpdateFunc) (*domain.Room, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, repository.ErrRoomNotFound
	}

	working := e.room.Clone()
	action, err := fn(working)
	if err != nil {
		return nil, err
	}
	switch action {
	case repository.ActionSave:
		working.Version = e.room.Version + 1
		e.room = working
		return working.Clone(), nil
	case repository.ActionDelete:
		r.removeLocked(id, e)
		return e.room.Clone(), nil
	default:
		return e.room.Clone(), nil
	}
}

// removeLocked 删除 entry，调用方必须持有 e.mu。
func (r *RoomRepository) removeLocked(id string, e *roomEntry) {
	e.deleted = true
	r.mu.Lock()
	if r.rooms[id] == e {
		delete(r.rooms, id)
	}
	r.mu.Unlock()
}

// DeleteExpired 实现过期房间清理
func (r *RoomRepository) DeleteExpired(ctx context.Context, now time.Time, abandonAfter time.Duration) (int64, error) {
	var deleted int64
	for _, e := range r.snapshotEntries() {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		e.mu.Lock()
		if !e.deleted && e.room.Expired(now, abandonAfter) {
			r.removeLocked(e.room.ID, e)
			deleted++
		}
		e.mu.Unlock()
	}
	return deleted, nil
}
