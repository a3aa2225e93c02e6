package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"rps-arena/internal/domain"
	"rps-arena/internal/repository"
)

// maxUpdateAttempts 是版本冲突时的最大重试次数
const maxUpdateAttempts = 16

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现。
// 并发控制使用 version 列做比较并交换：写入只在版本号未变时生效，否则重新读取再试。
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// Create 实现保存新房间
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	model := toRoomModel(room)
	model.Version = 1
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room %s: %w", room.ID, err)
	}
	room.Version = 1
	return nil
}

func (r *GormRoomRepository) find(ctx context.Context, id string) (*RoomModel, error) {
	var model RoomModel
	err := r.db.WithContext(ctx).Where("room_id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room %s: %w", id, err)
	}
	return &model, nil
}

// FindByID 实现根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	model, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.toDomain(), nil
}

// Exists 实现检查房间 ID 是否存在
func (r *GormRoomRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&RoomModel{}).Where("room_id = ?", id).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by id '%s': %w", id, err)
	}
	return count > 0, nil
}

// ListOpen 实现大厅房间列表
func (r *GormRoomRepository) ListOpen(ctx context.Context, now time.Time, limit int) ([]domain.Room, error) {
	var models []RoomModel
	q := r.db.WithContext(ctx).
		Where("status = ? AND guest_id IS NULL AND is_private = ? AND expires_at > ?", string(domain.StatusWaiting), false, now).
		Order("created_at DESC").Order("room_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm: list open rooms: %w", err)
	}
	rooms := make([]domain.Room, 0, len(models))
	for i := range models {
		rooms = append(rooms, *models[i].toDomain())
	}
	return rooms, nil
}

// Update 实现房间的原子读-改-写
func (r *GormRoomRepository) Update(ctx context.Context, id string, fn repository.UpdateFunc) (*domain.Room, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := r.find(ctx, id)
		if err != nil {
			return nil, err
		}
		working := current.toDomain()
		action, err := fn(working)
		if err != nil {
			return nil, err
		}

		var affected int64
		result := working
		switch action {
		case repository.ActionNone:
			return current.toDomain(), nil
		case repository.ActionDelete:
			res := r.db.WithContext(ctx).
				Where("room_id = ? AND version = ?", id, current.Version).
				Delete(&RoomModel{})
			if res.Error != nil {
				return nil, fmt.Errorf("gorm: delete room %s: %w", id, res.Error)
			}
			affected = res.RowsAffected
			result = current.toDomain()
		default:
			working.Version = current.Version + 1
			next := toRoomModel(working)
			res := r.db.WithContext(ctx).Model(&RoomModel{}).
				Where("room_id = ? AND version = ?", id, current.Version).
				Updates(next.updateColumns())
			if res.Error != nil {
				return nil, fmt.Errorf("gorm: update room %s: %w", id, res.Error)
			}
			affected = res.RowsAffected
		}
		if affected == 1 {
			return result, nil
		}
		// 版本已变 (或房间已被删除)，重新读取后再试
	}
	return nil, fmt.Errorf("gorm: update room %s: %w", id, repository.ErrOptimisticLock)
}

// DeleteExpired 实现过期房间清理。单条条件 DELETE，与并发的版本更新互不破坏：
// 被删除的房间之后的更新会因影响行数为 0 而重新读取，得到 ErrRoomNotFound。
func (r *GormRoomRepository) DeleteExpired(ctx context.Context, now time.Time, abandonAfter time.Duration) (int64, error) {
	q := r.db.WithContext(ctx).Where("status IN ? AND expires_at <= ?",
		[]string{string(domain.StatusWaiting), string(domain.StatusFinished)}, now)
	if abandonAfter > 0 {
		q = q.Or("status = ? AND expires_at <= ?", string(domain.StatusInProgress), now.Add(-abandonAfter))
	}
	res := q.Delete(&RoomModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("gorm: delete expired rooms: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// isDuplicateEntryError 检查唯一约束错误：MySQL 用错误码 1062，其他驱动退回到错误字符串。
func isDuplicateEntryError(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "Duplicate entry") || // MySQL
		strings.Contains(msg, "duplicate key value violates unique constraint") // PostgreSQL
}
