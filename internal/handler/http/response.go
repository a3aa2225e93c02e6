package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rps-arena/internal/domain"
)

// HiddenChoice 代替对手尚未公开的出拳
const HiddenChoice = "hidden"

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}

// InternalErrorResponse 返回 500，只在 debug 模式下附带错误详情。
func InternalErrorResponse(c *gin.Context, message string, err error) {
	body := gin.H{"error": message}
	if err != nil && gin.IsDebugging() {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusInternalServerError, body)
}

// PendingMovesView 是对某个观察者可见的出拳状态
type PendingMovesView struct {
	Host  *string `json:"host"`
	Guest *string `json:"guest"`
}

// RoomView 是返回给客户端的房间状态，不含密码，对手的出拳被隐藏。
type RoomView struct {
	RoomID          string            `json:"roomId"`
	RoomName        string            `json:"roomName"`
	Host            domain.Player     `json:"host"`
	Guest           *domain.Player    `json:"guest"`
	Status          domain.RoomStatus `json:"status"`
	IsPrivate       bool              `json:"isPrivate"`
	TotalRounds     int               `json:"totalRounds"`
	CurrentRound    int               `json:"currentRound"`
	Scores          domain.Scores     `json:"scores"`
	PendingMoves    PendingMovesView  `json:"pendingMoves"`
	LastRoundWinner string            `json:"lastRoundWinner,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	ExpiresAt       time.Time         `json:"expiresAt"`
}

// NewRoomView 生成 viewerID 视角下的房间状态。viewerID 为空或不是参与者时双方出拳都被隐藏。
func NewRoomView(r *domain.Room, viewerID string) RoomView {
	role, _ := r.RoleOf(viewerID)
	return RoomView{
		RoomID:       r.ID,
		RoomName:     r.Name,
		Host:         r.Host,
		Guest:        r.Guest,
		Status:       r.Status,
		IsPrivate:    r.IsPrivate,
		TotalRounds:  r.TotalRounds,
		CurrentRound: r.CurrentRound,
		Scores:       r.Scores,
		PendingMoves: PendingMovesView{
			Host:  maskChoice(r.PendingMoves.Host, role == domain.RoleHost),
			Guest: maskChoice(r.PendingMoves.Guest, role == domain.RoleGuest),
		},
		LastRoundWinner: r.LastRoundWinner,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func maskChoice(c *domain.Choice, own bool) *string {
	if c == nil {
		return nil
	}
	v := HiddenChoice
	if own {
		v = string(*c)
	}
	return &v
}
