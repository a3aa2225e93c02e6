package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"rps-arena/internal/domain"
	"rps-arena/internal/repository"
)

// GormSessionRepository 是 SessionRepository 接口的 GORM 实现
type GormSessionRepository struct {
	db *gorm.DB // 依赖 GORM DB 连接
}

// NewGormSessionRepository 创建 GormSessionRepository 实例
// db *gorm.DB 通过依赖注入传入
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormSessionRepository")
	}
	return &GormSessionRepository{db: db}
}

// maxUpsertAttempts 是心跳写入遇到唯一键冲突时的最大尝试次数。
// 冲突只来自并发的首次心跳或并发占用同一个 session_id，重新检查一次就能确定结果。
const maxUpsertAttempts = 3

// Upsert 实现按用户插入或更新在线记录。
// 不使用 ON DUPLICATE KEY UPDATE：MySQL 下它会在任意唯一键 (包括 session_id) 冲突时
// 改写别人的记录。这里先检查 session_id 的归属，再按 user_id 更新或插入。
func (r *GormSessionRepository) Upsert(ctx context.Context, session *domain.Session) error {
	var err error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return upsertSession(tx, session)
		})
		if err == nil || errors.Is(err, repository.ErrDuplicateEntry) {
			return err
		}
		if !isDuplicateEntryError(err) {
			return fmt.Errorf("gorm: upsert session for user '%s': %w", session.UserID, err)
		}
		// 并发写入抢先占用了某个唯一键，重新检查
	}
	return fmt.Errorf("gorm: upsert session for user '%s' after %d attempts: %w", session.UserID, maxUpsertAttempts, err)
}

func upsertSession(tx *gorm.DB, session *domain.Session) error {
	var owner SessionModel
	err := tx.Select("user_id").Where("session_id = ?", session.SessionID).Take(&owner).Error
	switch {
	case err == nil && owner.UserID != session.UserID:
		return repository.ErrDuplicateEntry
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	var existing SessionModel
	err = tx.Select("id").Where("user_id = ?", session.UserID).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		model := toSessionModel(session)
		model.CreatedAt = session.LastActive
		model.UpdatedAt = session.LastActive
		return tx.Create(model).Error
	}
	if err != nil {
		return err
	}

	// current_room 和 created_at 保持不变
	return tx.Model(&SessionModel{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
		"display_name": session.DisplayName,
		"session_id":   session.SessionID,
		"last_active":  session.LastActive,
		"online":       session.Online,
		"ip_address":   session.IPAddress,
		"user_agent":   session.UserAgent,
		"updated_at":   session.LastActive,
	}).Error
}

// FindByUserID 实现根据用户 ID 查找在线记录
func (r *GormSessionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Session, error) {
	var model SessionModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, fmt.Errorf("gorm: find session by user '%s': %w", userID, err)
	}
	return model.toDomain(), nil
}

// MarkOffline 实现登出，记录保留到被清理为止
func (r *GormSessionRepository) MarkOffline(ctx context.Context, userID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&SessionModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"online": false, "updated_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("gorm: mark session offline for user '%s': %w", userID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetCurrentRoom 实现房间关联的设置和清除
func (r *GormSessionRepository) SetCurrentRoom(ctx context.Context, userIDs []string, roomID string) error {
	if len(userIDs) == 0 {
		return nil // 避免空的 IN 查询
	}
	var value interface{} = roomID
	if roomID == "" {
		value = gorm.Expr("NULL")
	}
	err := r.db.WithContext(ctx).Model(&SessionModel{}).
		Where("user_id IN ?", userIDs).
		Update("current_room", value).Error
	if err != nil {
		return fmt.Errorf("gorm: set current room for %d users: %w", len(userIDs), err)
	}
	return nil
}

// CountOnline 实现在线人数统计
func (r *GormSessionRepository) CountOnline(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&SessionModel{}).
		Where("online = ? AND last_active >= ?", true, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count online sessions: %w", err)
	}
	return count, nil
}

// ListOnline 实现在线玩家列表
func (r *GormSessionRepository) ListOnline(ctx context.Context, since time.Time, limit int) ([]domain.Session, error) {
	var models []SessionModel
	q := r.db.WithContext(ctx).
		Where("online = ? AND last_active >= ?", true, since).
		Order("last_active DESC").Order("user_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm: list online sessions: %w", err)
	}
	sessions := make([]domain.Session, 0, len(models))
	for i := range models {
		sessions = append(sessions, *models[i].toDomain())
	}
	return sessions, nil
}

// DeleteStale 实现过期在线记录清理
func (r *GormSessionRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("last_active < ?", before).Delete(&SessionModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("gorm: delete stale sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
