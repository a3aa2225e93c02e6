package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rps-arena/internal/middleware"
	"rps-arena/internal/service"
)

// SessionHandler 封装在线状态相关的 HTTP 处理逻辑
type SessionHandler struct {
	presence *service.PresenceService
	sweeper  *service.ExpirySweeper
	now      func() time.Time
}

// NewSessionHandler 创建 SessionHandler 实例
func NewSessionHandler(presence *service.PresenceService, sweeper *service.ExpirySweeper) *SessionHandler {
	if presence == nil || sweeper == nil {
		panic("PresenceService and ExpirySweeper cannot be nil for SessionHandler")
	}
	return &SessionHandler{
		presence: presence,
		sweeper:  sweeper,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HeartbeatRequest 定义心跳请求的结构体
type HeartbeatRequest struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	SessionID   string `json:"sessionId"`
}

// Heartbeat 刷新调用方的在线记录
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Heartbeat: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID, ok := resolveUserID(c, req.UserID)
	if !ok {
		return
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = middleware.DisplayName(c)
	}

	sessionID, err := h.presence.Heartbeat(c.Request.Context(), service.HeartbeatInput{
		UserID:      userID,
		DisplayName: displayName,
		SessionID:   req.SessionID,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"sessionId": sessionID, "message": "Session updated"})
}

// OnlineCount 返回在线人数
func (h *SessionHandler) OnlineCount(c *gin.Context) {
	count, err := h.presence.OnlineCount(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"count": count, "timestamp": h.now()})
}

// OnlinePlayers 返回在线玩家列表
func (h *SessionHandler) OnlinePlayers(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	players, err := h.presence.ListOnline(c.Request.Context(), limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, players)
}

// LogoutRequest 定义登出请求的结构体
type LogoutRequest struct {
	UserID string `json:"userId"`
}

// Logout 把调用方标记为离线
func (h *SessionHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Logout: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID, ok := resolveUserID(c, req.UserID)
	if !ok {
		return
	}
	if err := h.presence.Logout(c.Request.Context(), userID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Session ended"})
}

// Cleanup 立即执行一次过期清理
func (h *SessionHandler) Cleanup(c *gin.Context) {
	result, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Handler.Cleanup: Expiry sweep failed")
		InternalErrorResponse(c, "Failed to cleanup sessions", err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"message":         "Cleanup complete",
		"deletedRooms":    result.DeletedRooms,
		"deletedSessions": result.DeletedSessions,
	})
}
