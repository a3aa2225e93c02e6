package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	gormpersistence "rps-arena/internal/infra/persistence/gorm"
)

// MigrateDB 使用传入的 GORM 连接迁移 rooms 和 sessions 表。
// 返回错误以便调用者知道迁移是否成功。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	// 两张表的唯一索引都建立在有长度限制的 VARCHAR 列上，AutoMigrate 可以直接处理
	if err := db.AutoMigrate(&gormpersistence.RoomModel{}, &gormpersistence.SessionModel{}); err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
