package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rps-arena/internal/domain"
	memorypersistence "rps-arena/internal/infra/persistence/memory"
	"rps-arena/internal/service"
)

var startTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock 是可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: startTime} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testEnv 把房间服务和在线服务接到内存存储上
type testEnv struct {
	clock    *fakeClock
	rooms    *memorypersistence.RoomRepository
	sessions *memorypersistence.SessionRepository
	presence *service.PresenceService
	svc      *service.RoomService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:    newFakeClock(),
		rooms:    memorypersistence.NewRoomRepository(),
		sessions: memorypersistence.NewSessionRepository(),
	}
	env.presence = service.NewPresenceService(env.sessions, service.PresenceConfig{Now: env.clock.Now})
	env.svc = service.NewRoomService(env.rooms, env.presence, service.RoomConfig{
		RoomTTL:      time.Hour,
		AbandonAfter: 24 * time.Hour,
		PasswordCost: bcrypt.MinCost,
		Now:          env.clock.Now,
	})
	return env
}

func (e *testEnv) heartbeat(t *testing.T, userID string) {
	t.Helper()
	_, err := e.presence.Heartbeat(context.Background(), service.HeartbeatInput{UserID: userID, DisplayName: "Player " + userID})
	require.NoError(t, err)
}

func (e *testEnv) createRoom(t *testing.T, hostID string) *domain.Room {
	t.Helper()
	room, err := e.svc.CreateRoom(context.Background(), service.CreateRoomInput{
		HostID:   hostID,
		HostName: "Host " + hostID,
		RoomName: "Room of " + hostID,
	})
	require.NoError(t, err)
	return room
}

func (e *testEnv) createCustomRoom(t *testing.T, hostID, password string, rounds int) *domain.Room {
	t.Helper()
	room, err := e.svc.CreateRoom(context.Background(), service.CreateRoomInput{
		HostID:      hostID,
		HostName:    "Host " + hostID,
		RoomName:    "Custom room",
		IsPrivate:   password != "",
		Password:    password,
		TotalRounds: &rounds,
	})
	require.NoError(t, err)
	return room
}

func (e *testEnv) join(t *testing.T, roomID, userID string) *domain.Room {
	t.Helper()
	room, err := e.svc.JoinRoom(context.Background(), service.JoinRoomInput{RoomID: roomID, UserID: userID, Name: "Guest " + userID})
	require.NoError(t, err)
	return room
}

func (e *testEnv) currentRoom(t *testing.T, userID string) string {
	t.Helper()
	s, err := e.presence.Session(context.Background(), userID)
	require.NoError(t, err)
	return s.CurrentRoom
}

func intPtr(v int) *int { return &v }
