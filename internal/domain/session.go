package domain

import "time"

// Session 是一条心跳维护的在线记录，每个用户至多一条。
type Session struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	SessionID   string    `json:"sessionId"`
	LastActive  time.Time `json:"lastActive"`
	Online      bool      `json:"online"`
	CurrentRoom string    `json:"currentRoom,omitempty"` // 空表示不在任何房间中
	IPAddress   string    `json:"-"`
	UserAgent   string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SessionSummary 是在线列表中展示的玩家信息。
type SessionSummary struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	LastActive  time.Time `json:"lastActive"`
	InGame      bool      `json:"inGame"`
	CurrentRoom string    `json:"currentRoom,omitempty"`
}

// Summary 生成在线列表条目。
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		UserID:      s.UserID,
		DisplayName: s.DisplayName,
		LastActive:  s.LastActive,
		InGame:      s.CurrentRoom != "",
		CurrentRoom: s.CurrentRoom,
	}
}

const (
	DefaultFreshWindow = 5 * time.Minute
	DefaultStaleAfter  = 30 * time.Minute
)

// PresencePolicy 把两种过期语义放在同一个抽象里：
// FreshWindow 内有心跳且未登出的记录计为在线 (软过期)，
// 超过 StaleAfter 没有心跳的记录会被清理器删除 (硬过期)。
type PresencePolicy struct {
	FreshWindow time.Duration
	StaleAfter  time.Duration
}

// DefaultPresencePolicy 返回 5 分钟在线窗口、30 分钟清理窗口的策略。
func DefaultPresencePolicy() PresencePolicy {
	return PresencePolicy{FreshWindow: DefaultFreshWindow, StaleAfter: DefaultStaleAfter}
}

// Normalize 为未设置的窗口填入默认值，并保证清理窗口不短于在线窗口。
func (p PresencePolicy) Normalize() PresencePolicy {
	if p.FreshWindow <= 0 {
		p.FreshWindow = DefaultFreshWindow
	}
	if p.StaleAfter <= 0 {
		p.StaleAfter = DefaultStaleAfter
	}
	if p.StaleAfter < p.FreshWindow {
		p.StaleAfter = p.FreshWindow
	}
	return p
}

// OnlineSince 是计为在线所需的最早 lastActive。
func (p PresencePolicy) OnlineSince(now time.Time) time.Time {
	return now.Add(-p.FreshWindow)
}

// StaleBefore 早于此时间的记录可以删除。
func (p PresencePolicy) StaleBefore(now time.Time) time.Time {
	return now.Add(-p.StaleAfter)
}

// IsOnline 判断记录是否计入在线人数。
func (p PresencePolicy) IsOnline(s *Session, now time.Time) bool {
	return s.Online && !s.LastActive.Before(p.OnlineSince(now))
}

// IsStale 判断记录是否应被清理。
func (p PresencePolicy) IsStale(s *Session, now time.Time) bool {
	return s.LastActive.Before(p.StaleBefore(now))
}
