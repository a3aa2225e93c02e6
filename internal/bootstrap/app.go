package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	// --- 导入内部包 ---
	"rps-arena/internal/domain"
	httpHandler "rps-arena/internal/handler/http"
	gormpersistence "rps-arena/internal/infra/persistence/gorm"
	memorypersistence "rps-arena/internal/infra/persistence/memory"
	"rps-arena/internal/infra/setup"
	redisstate "rps-arena/internal/infra/state/redis"
	"rps-arena/internal/middleware"
	"rps-arena/internal/repository"
	"rps-arena/internal/service"
	"rps-arena/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB      // 未使用 MySQL 时为 nil
	RedisClient *redis.Client // 未配置 REDIS_ADDR 时为 nil
	Sweeper     *service.ExpirySweeper
	AsynqServer *worker.WorkerServer
	Scheduler   *worker.Scheduler
	HttpServer  *http.Server

	stopSweeper context.CancelFunc
}

// NewLogger 按配置创建 logger
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	// 服务层使用包级 logrus，保持同样的格式和级别
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig 用给定配置组装应用
func NewAppWithConfig(cfg *Config) (*App, error) {
	// 2. 初始化 Logger
	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s, Format: %T)", log.GetLevel().String(), log.Formatter)
	app := &App{Config: cfg, Log: log}

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	if cfg.UsesMySQL() {
		db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("failed to init DB: %w", err)
		}
		if err := setup.MigrateDB(db); err != nil {
			return nil, fmt.Errorf("failed to migrate DB: %w", err)
		}
		app.DB = db
		log.Info("Database initialized and migrated")
	}
	if cfg.RedisAddr != "" {
		redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		app.RedisClient = redisClient
		log.Info("Redis client initialized")
	}

	// 4. 初始化 Repositories
	roomRepo, sessionRepo := app.newRepositories()
	log.WithFields(logrus.Fields{"room_store": cfg.RoomStore, "session_store": cfg.SessionStore}).Info("Repositories initialized")

	// 5. 初始化 Services
	presenceService := service.NewPresenceService(sessionRepo, service.PresenceConfig{
		Policy: domain.PresencePolicy{FreshWindow: cfg.PresenceFreshWindow, StaleAfter: cfg.PresenceStaleAfter},
	})
	roomService := service.NewRoomService(roomRepo, presenceService, service.RoomConfig{
		RoomTTL:      cfg.RoomTTL,
		AbandonAfter: cfg.AbandonedRoomTTL,
		PasswordCost: cfg.PasswordHashCost,
	})
	app.Sweeper = service.NewExpirySweeper(roomService, presenceService, log)
	log.Info("Services initialized")

	// 6. 后台清理：有 Redis 时交给 asynq，多个进程每个周期只清理一次
	if app.RedisClient != nil {
		redisClientOpt := asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		app.AsynqServer = worker.NewWorkerServer(redisClientOpt, app.Sweeper, log)
		scheduler, err := worker.NewScheduler(redisClientOpt, cfg.SweepSchedule, cfg.SweepInterval, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init scheduler: %w", err)
		}
		app.Scheduler = scheduler
		log.Info("Asynq worker server and scheduler initialized")
	}

	// 7. 初始化 Gin Engine 和路由
	app.HttpServer = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           app.newRouter(roomService, presenceService),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// newRepositories 按配置选择存储实现
func (a *App) newRepositories() (repository.RoomRepository, repository.SessionRepository) {
	var roomRepo repository.RoomRepository
	switch a.Config.RoomStore {
	case StoreMySQL:
		roomRepo = gormpersistence.NewGormRoomRepository(a.DB)
	case StoreRedis:
		roomRepo = redisstate.NewRedisRoomRepository(a.RedisClient, a.Config.KeyPrefix)
	default:
		roomRepo = memorypersistence.NewRoomRepository()
	}

	var sessionRepo repository.SessionRepository
	if a.Config.SessionStore == StoreMySQL {
		sessionRepo = gormpersistence.NewGormSessionRepository(a.DB)
	} else {
		sessionRepo = memorypersistence.NewSessionRepository()
	}
	return roomRepo, sessionRepo
}

func (a *App) newRouter(rooms *service.RoomService, presence *service.PresenceService) *gin.Engine {
	if a.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(a.Log))
	router.Use(CORSMiddleware(a.Config.CORSAllowedOrigin))
	if a.RedisClient != nil {
		router.Use(middleware.RateLimit(a.RedisClient, a.Config.KeyPrefix, a.Config.RateLimitMax, a.Config.RateLimitWindow))
	}

	var protect []gin.HandlerFunc
	if a.Config.JWTSecret != "" {
		protect = append(protect, middleware.Identity(a.Config.JWTSecret))
		a.Log.Info("Identity token verification enabled")
	}
	httpHandler.RegisterRoutes(router.Group("/api"),
		httpHandler.NewRoomHandler(rooms),
		httpHandler.NewSessionHandler(presence, a.Sweeper),
		protect...)
	router.GET("/ping", httpHandler.Health)
	return router
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	if a.AsynqServer != nil {
		go a.AsynqServer.Start()
		go a.Scheduler.Start()
	} else {
		ctx, cancel := context.WithCancel(context.Background())
		a.stopSweeper = cancel
		go a.Sweeper.Run(ctx, a.Config.SweepInterval)
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 先停止接收请求
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 停止后台清理
	if a.stopSweeper != nil {
		a.stopSweeper()
	}
	if a.Scheduler != nil {
		a.Scheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 3. 关闭 Redis 和数据库连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			} else {
				a.Log.Info("Database connection closed.")
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}

// CORSMiddleware 允许前端跨域轮询
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
