package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// 存储后端
const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
	StoreRedis  = "redis"
)

// Config 结构体用于存储从环境变量或 .env 文件加载的配置
type Config struct {
	AppEnv     string `env:"APP_ENV" envDefault:"development"`
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	RoomStore    string `env:"ROOM_STORE" envDefault:"memory"`
	SessionStore string `env:"SESSION_STORE" envDefault:"memory"`

	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBHost     string `env:"DB_HOST"`
	DBPort     string `env:"DB_PORT"`
	DBName     string `env:"DB_NAME"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix     string `env:"REDIS_KEY_PREFIX" envDefault:"rps:"`

	JWTSecret       string        `env:"IDENTITY_JWT_SECRET"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1s"`

	RoomTTL             time.Duration `env:"ROOM_TTL" envDefault:"1h"`
	AbandonedRoomTTL    time.Duration `env:"ABANDONED_ROOM_TTL" envDefault:"24h"`
	PresenceFreshWindow time.Duration `env:"PRESENCE_FRESH_WINDOW" envDefault:"5m"`
	PresenceStaleAfter  time.Duration `env:"PRESENCE_STALE_AFTER" envDefault:"30m"`
	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepSchedule       string        `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`
	PasswordHashCost    int           `env:"PASSWORD_HASH_COST" envDefault:"10"`

	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// LoadConfig 从 .env 文件 (如果存在) 和环境变量加载配置
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction 判断是否运行在生产环境
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// UsesMySQL 判断是否有存储使用 MySQL
func (c *Config) UsesMySQL() bool {
	return c.RoomStore == StoreMySQL || c.SessionStore == StoreMySQL
}

// Validate 检查配置组合是否可用，并修正可以降级的取值
func (c *Config) Validate() error {
	c.RoomStore = strings.ToLower(strings.TrimSpace(c.RoomStore))
	c.SessionStore = strings.ToLower(strings.TrimSpace(c.SessionStore))

	var errs []error
	switch c.RoomStore {
	case StoreMemory, StoreMySQL, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("ROOM_STORE must be memory, mysql or redis, got %q", c.RoomStore))
	}
	switch c.SessionStore {
	case StoreMemory, StoreMySQL:
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be memory or mysql, got %q", c.SessionStore))
	}
	if c.RoomStore == StoreRedis && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR must be set when ROOM_STORE=redis"))
	}
	if c.UsesMySQL() && c.DBUser == "" {
		errs = append(errs, errors.New("DB_USER must be set when a mysql store is configured"))
	}
	if c.RoomTTL <= 0 {
		errs = append(errs, errors.New("ROOM_TTL must be positive"))
	}
	if c.AbandonedRoomTTL < 0 {
		errs = append(errs, errors.New("ABANDONED_ROOM_TTL must not be negative"))
	}
	if c.PresenceFreshWindow <= 0 || c.PresenceStaleAfter < c.PresenceFreshWindow {
		errs = append(errs, errors.New("PRESENCE_STALE_AFTER must be at least PRESENCE_FRESH_WINDOW, both positive"))
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", c.LogLevel)
		c.LogLevel = "info"
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	return nil
}
