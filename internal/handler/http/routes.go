package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 在 /api 分组上注册房间和在线状态路由。
// protect 中的中间件 (例如身份验证) 只作用于房间和在线状态路由，不影响健康检查。
func RegisterRoutes(api *gin.RouterGroup, rooms *RoomHandler, sessions *SessionHandler, protect ...gin.HandlerFunc) {
	api.GET("/health", Health)

	roomRoutes := api.Group("/rooms", protect...)
	{
		roomRoutes.POST("", rooms.CreateRoom)
		roomRoutes.POST("/create", rooms.CreateRoom)
		roomRoutes.GET("/available", rooms.ListAvailable)
		roomRoutes.POST("/join", rooms.JoinRoom)
		roomRoutes.GET("/:roomId", rooms.GetRoom)
		roomRoutes.POST("/:roomId/move", rooms.SubmitMove)
		roomRoutes.POST("/:roomId/leave", rooms.LeaveRoom)
	}

	sessionRoutes := api.Group("/sessions", protect...)
	{
		sessionRoutes.POST("/heartbeat", sessions.Heartbeat)
		sessionRoutes.GET("/online-count", sessions.OnlineCount)
		sessionRoutes.GET("/online-players", sessions.OnlinePlayers)
		sessionRoutes.POST("/logout", sessions.Logout)
		sessionRoutes.DELETE("/cleanup", sessions.Cleanup)
		// 旧客户端使用的路径
		sessionRoutes.POST("/session/heartbeat", sessions.Heartbeat)
		sessionRoutes.POST("/session/logout", sessions.Logout)
		sessionRoutes.DELETE("/session/cleanup", sessions.Cleanup)
	}
}

// Health 是存活检查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
}
