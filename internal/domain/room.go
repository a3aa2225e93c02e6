package domain

import (
	"errors"
	"time"
)

// RoomStatus 表示房间所处的阶段。删除状态不单独存储，以记录不存在表示。
type RoomStatus string

const (
	StatusWaiting    RoomStatus = "waiting"
	StatusInProgress RoomStatus = "in-progress"
	StatusFinished   RoomStatus = "finished"
)

// Role 是玩家在房间中的身份。
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// DrawWinner 是平局时 LastRoundWinner 的取值。
const DrawWinner = "draw"

// DefaultTotalRounds 是未指定回合数时的默认值。
const DefaultTotalRounds = 3

// 房间规则错误，由 service 层映射为对外的错误分类。
var (
	ErrInvalidChoice  = errors.New("domain: choice must be rock, paper or scissors")
	ErrRoomFull       = errors.New("domain: room already has a guest")
	ErrNotJoinable    = errors.New("domain: room is not waiting for a guest")
	ErrSelfJoin       = errors.New("domain: host cannot join own room")
	ErrWrongPassword  = errors.New("domain: invalid room password")
	ErrNotParticipant = errors.New("domain: user is not a participant of the room")
	ErrNotInProgress  = errors.New("domain: room is not in progress")
)

// Player 是房间中的一名参与者。
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Scores 记录双方得分。
type Scores struct {
	Host  int `json:"host"`
	Guest int `json:"guest"`
}

// PendingMoves 记录当前回合尚未结算的出拳，nil 表示尚未出拳。
type PendingMoves struct {
	Host  *Choice `json:"host"`
	Guest *Choice `json:"guest"`
}

// Room 是一局双人对战的完整状态。
type Room struct {
	ID              string       `json:"roomId"`
	Name            string       `json:"roomName"`
	Host            Player       `json:"host"`
	Guest           *Player      `json:"guest"`
	Status          RoomStatus   `json:"status"`
	IsPrivate       bool         `json:"isPrivate"`
	PasswordHash    string       `json:"-"` // bcrypt 哈希，绝不返回给客户端
	TotalRounds     int          `json:"totalRounds"`
	CurrentRound    int          `json:"currentRound"`
	Scores          Scores       `json:"scores"`
	PendingMoves    PendingMoves `json:"pendingMoves"`
	LastRoundWinner string       `json:"lastRoundWinner,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
	ExpiresAt       time.Time    `json:"expiresAt"`
	Version         uint64       `json:"version"`
}

// RoomSummary 是大厅列表中展示的房间摘要。
type RoomSummary struct {
	ID          string     `json:"roomId"`
	Name        string     `json:"roomName"`
	HostID      string     `json:"hostId"`
	HostName    string     `json:"hostName"`
	Status      RoomStatus `json:"status"`
	TotalRounds int        `json:"totalRounds"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

// RoundResult 只在触发结算的那次出拳调用中返回。
type RoundResult struct {
	Round       int     `json:"round"`
	HostChoice  Choice  `json:"hostChoice"`
	GuestChoice Choice  `json:"guestChoice"`
	Outcome     Outcome `json:"outcome"`              // 以房主视角
	Winner      string  `json:"winner"`               // host / guest / draw
	WinnerName  string  `json:"winnerName,omitempty"` // 平局时为空
	Finished    bool    `json:"finished"`
}

// NewRoom 创建一个等待对手加入的房间。
func NewRoom(id, name string, host Player, isPrivate bool, passwordHash string, totalRounds int, now time.Time, ttl time.Duration) *Room {
	if totalRounds <= 0 {
		totalRounds = DefaultTotalRounds
	}
	if !isPrivate {
		passwordHash = ""
	}
	return &Room{
		ID:           id,
		Name:         name,
		Host:         host,
		Status:       StatusWaiting,
		IsPrivate:    isPrivate,
		PasswordHash: passwordHash,
		TotalRounds:  totalRounds,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

// Clone 返回深拷贝，存储层借此隔离调用方的修改。
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	if r.Guest != nil {
		g := *r.Guest
		c.Guest = &g
	}
	if r.PendingMoves.Host != nil {
		h := *r.PendingMoves.Host
		c.PendingMoves.Host = &h
	}
	if r.PendingMoves.Guest != nil {
		g := *r.PendingMoves.Guest
		c.PendingMoves.Guest = &g
	}
	return &c
}

// Summary 生成大厅摘要。
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:          r.ID,
		Name:        r.Name,
		HostID:      r.Host.ID,
		HostName:    r.Host.Name,
		Status:      r.Status,
		TotalRounds: r.TotalRounds,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

// RoleOf 返回用户在房间中的身份。
func (r *Room) RoleOf(userID string) (Role, bool) {
	if userID == "" {
		return "", false
	}
	if r.Host.ID == userID {
		return RoleHost, true
	}
	if r.Guest != nil && r.Guest.ID == userID {
		return RoleGuest, true
	}
	return "", false
}

// IsOpen 表示房间可以出现在大厅列表中。
func (r *Room) IsOpen(now time.Time) bool {
	return r.Status == StatusWaiting && r.Guest == nil && !r.IsPrivate && now.Before(r.ExpiresAt)
}

// Expired 表示房间已过期且会被清理器删除。
// waiting / finished 房间在 ExpiresAt 之后过期；进行中的房间只有在
// 额外闲置 abandonAfter 之后才算被放弃 (abandonAfter <= 0 表示永不)。
func (r *Room) Expired(now time.Time, abandonAfter time.Duration) bool {
	switch r.Status {
	case StatusWaiting, StatusFinished:
		return !now.Before(r.ExpiresAt)
	case StatusInProgress:
		return abandonAfter > 0 && !now.Before(r.ExpiresAt.Add(abandonAfter))
	}
	return false
}

// Touch 在每次成功修改后刷新时间戳和过期时间。
func (r *Room) Touch(now time.Time, ttl time.Duration) {
	r.UpdatedAt = now
	r.ExpiresAt = now.Add(ttl)
}

// AssignGuest 让对手加入房间并开始对局。
// passwordOK 由调用方在临界区外校验密码后传入，房间不持有明文密码。
func (r *Room) AssignGuest(guest Player, passwordOK bool) error {
	if r.Guest != nil {
		return ErrRoomFull
	}
	if guest.ID == r.Host.ID {
		return ErrSelfJoin
	}
	if r.Status != StatusWaiting {
		return ErrNotJoinable
	}
	if r.IsPrivate && !passwordOK {
		return ErrWrongPassword
	}
	g := guest
	r.Guest = &g
	r.Status = StatusInProgress
	return nil
}

// RemoveGuest 让对手离开。回合数和比分保留；进行中的房间回到 waiting，
// 已结束的房间保持 finished。
func (r *Room) RemoveGuest() {
	r.Guest = nil
	r.PendingMoves = PendingMoves{}
	r.LastRoundWinner = ""
	if r.Status == StatusInProgress {
		r.Status = StatusWaiting
	}
}

// SubmitMove 记录一次出拳。同一身份在对手出拳之前重复提交时以最后一次为准；
// 双方都出拳后立即结算，返回本回合结果，否则返回 nil。
func (r *Room) SubmitMove(userID string, choice Choice) (*RoundResult, error) {
	if !choice.Valid() {
		return nil, ErrInvalidChoice
	}
	role, ok := r.RoleOf(userID)
	if !ok {
		return nil, ErrNotParticipant
	}
	if r.Status != StatusInProgress || r.CurrentRound >= r.TotalRounds {
		return nil, ErrNotInProgress
	}

	c := choice
	if role == RoleHost {
		r.PendingMoves.Host = &c
	} else {
		r.PendingMoves.Guest = &c
	}
	if r.PendingMoves.Host == nil || r.PendingMoves.Guest == nil {
		return nil, nil
	}
	return r.resolveRound(), nil
}

// resolveRound 结算当前回合，双方出拳必须都已存在。
func (r *Room) resolveRound() *RoundResult {
	hostChoice, guestChoice := *r.PendingMoves.Host, *r.PendingMoves.Guest
	outcome := Resolve(hostChoice, guestChoice)

	result := &RoundResult{
		HostChoice:  hostChoice,
		GuestChoice: guestChoice,
		Outcome:     outcome,
	}
	switch outcome {
	case FirstWins:
		r.Scores.Host++
		result.Winner = string(RoleHost)
		result.WinnerName = r.Host.Name
	case SecondWins:
		r.Scores.Guest++
		result.Winner = string(RoleGuest)
		result.WinnerName = r.Guest.Name
	default:
		result.Winner = DrawWinner
	}

	r.CurrentRound++
	r.LastRoundWinner = result.Winner
	r.PendingMoves = PendingMoves{}
	if r.CurrentRound == r.TotalRounds {
		r.Status = StatusFinished
	}

	result.Round = r.CurrentRound
	result.Finished = r.Status == StatusFinished
	return result
}
