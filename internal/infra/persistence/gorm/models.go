package gormpersistence

import (
	"time"

	"rps-arena/internal/domain"
)

// RoomModel 是 rooms 表的行结构。房间的嵌套字段在表中平铺存储。
type RoomModel struct {
	ID              uint      `gorm:"primaryKey"`
	RoomID          string    `gorm:"size:16;uniqueIndex;not null"` // 对外的短房间码
	RoomName        string    `gorm:"size:128;not null"`
	HostID          string    `gorm:"size:64;index;not null"`
	HostName        string    `gorm:"size:128;not null"`
	GuestID         *string   `gorm:"size:64;index"`
	GuestName       *string   `gorm:"size:128"`
	Status          string    `gorm:"size:16;index;not null"`
	IsPrivate       bool      `gorm:"index;not null"`
	PasswordHash    string    `gorm:"size:100"`
	TotalRounds     int       `gorm:"not null"`
	CurrentRound    int       `gorm:"not null"`
	HostScore       int       `gorm:"not null"`
	GuestScore      int       `gorm:"not null"`
	HostChoice      *string   `gorm:"size:16"`
	GuestChoice     *string   `gorm:"size:16"`
	LastRoundWinner string    `gorm:"size:16"`
	Version         uint64    `gorm:"not null"` // 乐观锁版本号
	CreatedAt       time.Time `gorm:"index;not null"`
	UpdatedAt       time.Time `gorm:"not null"`
	ExpiresAt       time.Time `gorm:"index;not null"`
}

// TableName 指定表名
func (RoomModel) TableName() string { return "rooms" }

// SessionModel 是 sessions 表的行结构。
type SessionModel struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      string    `gorm:"size:64;uniqueIndex;not null"`
	DisplayName string    `gorm:"size:128;not null"`
	SessionID   string    `gorm:"size:64;uniqueIndex;not null"`
	LastActive  time.Time `gorm:"index;not null"`
	Online      bool      `gorm:"index;not null"`
	CurrentRoom *string   `gorm:"size:16"`
	IPAddress   string    `gorm:"size:64"`
	UserAgent   string    `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定表名
func (SessionModel) TableName() string { return "sessions" }

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func choicePtr(c *domain.Choice) *string {
	if c == nil {
		return nil
	}
	return strPtr(string(*c))
}

func toChoice(s *string) *domain.Choice {
	if s == nil || *s == "" {
		return nil
	}
	c := domain.Choice(*s)
	return &c
}

func toRoomModel(room *domain.Room) *RoomModel {
	m := &RoomModel{
		RoomID:          room.ID,
		RoomName:        room.Name,
		HostID:          room.Host.ID,
		HostName:        room.Host.Name,
		Status:          string(room.Status),
		IsPrivate:       room.IsPrivate,
		PasswordHash:    room.PasswordHash,
		TotalRounds:     room.TotalRounds,
		CurrentRound:    room.CurrentRound,
		HostScore:       room.Scores.Host,
		GuestScore:      room.Scores.Guest,
		HostChoice:      choicePtr(room.PendingMoves.Host),
		GuestChoice:     choicePtr(room.PendingMoves.Guest),
		LastRoundWinner: room.LastRoundWinner,
		Version:         room.Version,
		CreatedAt:       room.CreatedAt,
		UpdatedAt:       room.UpdatedAt,
		ExpiresAt:       room.ExpiresAt,
	}
	if room.Guest != nil {
		m.GuestID = strPtr(room.Guest.ID)
		m.GuestName = strPtr(room.Guest.Name)
	}
	return m
}

func (m *RoomModel) toDomain() *domain.Room {
	room := &domain.Room{
		ID:           m.RoomID,
		Name:         m.RoomName,
		Host:         domain.Player{ID: m.HostID, Name: m.HostName},
		Status:       domain.RoomStatus(m.Status),
		IsPrivate:    m.IsPrivate,
		PasswordHash: m.PasswordHash,
		TotalRounds:  m.TotalRounds,
		CurrentRound: m.CurrentRound,
		Scores:       domain.Scores{Host: m.HostScore, Guest: m.GuestScore},
		PendingMoves: domain.PendingMoves{
			Host:  toChoice(m.HostChoice),
			Guest: toChoice(m.GuestChoice),
		},
		LastRoundWinner: m.LastRoundWinner,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		ExpiresAt:       m.ExpiresAt,
		Version:         m.Version,
	}
	if m.GuestID != nil {
		guest := domain.Player{ID: *m.GuestID}
		if m.GuestName != nil {
			guest.Name = *m.GuestName
		}
		room.Guest = &guest
	}
	return room
}

// updateColumns 是一次保存需要写入的全部可变列 (包括零值)。
func (m *RoomModel) updateColumns() map[string]interface{} {
	return map[string]interface{}{
		"room_name":         m.RoomName,
		"guest_id":          m.GuestID,
		"guest_name":        m.GuestName,
		"status":            m.Status,
		"total_rounds":      m.TotalRounds,
		"current_round":     m.CurrentRound,
		"host_score":        m.HostScore,
		"guest_score":       m.GuestScore,
		"host_choice":       m.HostChoice,
		"guest_choice":      m.GuestChoice,
		"last_round_winner": m.LastRoundWinner,
		"version":           m.Version,
		"updated_at":        m.UpdatedAt,
		"expires_at":        m.ExpiresAt,
	}
}

func toSessionModel(s *domain.Session) *SessionModel {
	return &SessionModel{
		UserID:      s.UserID,
		DisplayName: s.DisplayName,
		SessionID:   s.SessionID,
		LastActive:  s.LastActive,
		Online:      s.Online,
		CurrentRoom: strPtr(s.CurrentRoom),
		IPAddress:   s.IPAddress,
		UserAgent:   s.UserAgent,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func (m *SessionModel) toDomain() *domain.Session {
	s := &domain.Session{
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		SessionID:   m.SessionID,
		LastActive:  m.LastActive,
		Online:      m.Online,
		IPAddress:   m.IPAddress,
		UserAgent:   m.UserAgent,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.CurrentRoom != nil {
		s.CurrentRoom = *m.CurrentRoom
	}
	return s
}
