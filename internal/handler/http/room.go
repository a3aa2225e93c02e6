package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rps-arena/internal/domain"
	"rps-arena/internal/middleware"
	"rps-arena/internal/service"
)

// RoomHandler 封装了与对战房间相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	HostID      string `json:"hostId"`
	HostName    string `json:"hostName"`
	RoomName    string `json:"roomName"`
	IsPrivate   bool   `json:"isPrivate"`
	Password    string `json:"password"`
	TotalRounds *int   `json:"totalRounds"`
}

// RoomResponse 是房间写操作的响应
type RoomResponse struct {
	Message     string              `json:"message"`
	Room        RoomView            `json:"room"`
	RoundResult *domain.RoundResult `json:"roundResult,omitempty"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	hostID, ok := resolveUserID(c, req.HostID)
	if !ok {
		return
	}
	hostName := req.HostName
	if hostName == "" {
		hostName = middleware.DisplayName(c)
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), service.CreateRoomInput{
		HostID:      hostID,
		HostName:    hostName,
		RoomName:    req.RoomName,
		IsPrivate:   req.IsPrivate,
		Password:    req.Password,
		TotalRounds: req.TotalRounds,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, RoomResponse{Message: "Room created", Room: NewRoomView(room, hostID)})
}

// ListAvailable 返回大厅中可加入的房间
func (h *RoomHandler) ListAvailable(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	rooms, err := h.roomService.ListAvailable(c.Request.Context(), limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, rooms)
}

// GetRoom 返回房间状态，?userId= 指定观察者
func (h *RoomHandler) GetRoom(c *gin.Context) {
	viewerID := c.Query("userId")
	if tokenUser, ok := middleware.UserID(c); ok {
		viewerID = tokenUser
	}
	room, err := h.roomService.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, NewRoomView(room, viewerID))
}

// JoinRoomRequest 定义加入房间请求的结构体
type JoinRoomRequest struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// JoinRoom 处理用户加入房间的请求
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.JoinRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID, ok := resolveUserID(c, req.UserID)
	if !ok {
		return
	}
	name := req.Name
	if name == "" {
		name = middleware.DisplayName(c)
	}

	room, err := h.roomService.JoinRoom(c.Request.Context(), service.JoinRoomInput{
		RoomID:   req.RoomID,
		UserID:   userID,
		Name:     name,
		Password: req.Password,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, RoomResponse{Message: "Joined room", Room: NewRoomView(room, userID)})
}

// MoveRequest 定义出拳请求的结构体
type MoveRequest struct {
	UserID string `json:"userId"`
	Choice string `json:"choice"`
}

// SubmitMove 处理出拳请求
func (h *RoomHandler) SubmitMove(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.SubmitMove: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID, ok := resolveUserID(c, req.UserID)
	if !ok {
		return
	}

	room, result, err := h.roomService.SubmitMove(c.Request.Context(), c.Param("roomId"), userID, req.Choice)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	message := "Move registered"
	if result != nil {
		message = "Round " + strconv.Itoa(result.Round) + " resolved"
	}
	SuccessResponse(c, http.StatusOK, RoomResponse{Message: message, Room: NewRoomView(room, userID), RoundResult: result})
}

// LeaveRequest 定义离开房间请求的结构体
type LeaveRequest struct {
	UserID string `json:"userId"`
}

// LeaveRoom 处理离开房间的请求
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	var req LeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.LeaveRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID, ok := resolveUserID(c, req.UserID)
	if !ok {
		return
	}
	if err := h.roomService.LeaveRoom(c.Request.Context(), c.Param("roomId"), userID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Left room"})
}

// resolveUserID 在启用身份验证时用 token 中的用户校验或补全请求体里的用户 ID。
// 返回 false 时已写入 403 响应。
func resolveUserID(c *gin.Context, claimed string) (string, bool) {
	tokenUser, ok := middleware.UserID(c)
	if !ok {
		return claimed, true
	}
	if claimed != "" && claimed != tokenUser {
		logrus.WithFields(logrus.Fields{"user_id": tokenUser, "claimed": claimed}).Warn("Request user does not match token")
		ErrorResponse(c, http.StatusForbidden, "userId does not match the authenticated user")
		return "", false
	}
	return tokenUser, true
}

// queryLimit 解析 ?limit=，缺省时返回 0。返回 false 时已写入 400 响应。
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "limit must be an integer")
		return 0, false
	}
	return limit, true
}
