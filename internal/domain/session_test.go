package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rps-arena/internal/domain"
)

func TestPresencePolicy_Normalize(t *testing.T) {
	p := domain.PresencePolicy{}.Normalize()
	assert.Equal(t, domain.DefaultPresencePolicy(), p)

	p = domain.PresencePolicy{FreshWindow: 10 * time.Minute, StaleAfter: time.Minute}.Normalize()
	assert.Equal(t, 10*time.Minute, p.StaleAfter, "stale window never shorter than fresh window")
}

func TestPresencePolicy_Windows(t *testing.T) {
	p := domain.DefaultPresencePolicy()
	s := &domain.Session{UserID: "u", Online: true, LastActive: now}

	assert.True(t, p.IsOnline(s, now.Add(5*time.Minute)), "boundary is inclusive")
	assert.False(t, p.IsOnline(s, now.Add(6*time.Minute)))
	s.Online = false
	assert.False(t, p.IsOnline(s, now))

	assert.False(t, p.IsStale(s, now.Add(30*time.Minute)))
	assert.True(t, p.IsStale(s, now.Add(31*time.Minute)))
}

func TestSession_Summary(t *testing.T) {
	s := domain.Session{UserID: "u", DisplayName: "U", LastActive: now, CurrentRoom: "ROOM2345"}
	sum := s.Summary()
	assert.True(t, sum.InGame)
	assert.Equal(t, "ROOM2345", sum.CurrentRoom)

	s.CurrentRoom = ""
	assert.False(t, s.Summary().InGame)
}
