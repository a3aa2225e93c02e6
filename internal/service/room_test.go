package service_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rps-arena/internal/domain"
	"rps-arena/internal/repository"
	"rps-arena/internal/repository/mocks"
	"rps-arena/internal/service"
)

// --- CreateRoom ---

func TestRoomService_CreateRoom_Validation(t *testing.T) {
	env := newTestEnv(t)
	valid := service.CreateRoomInput{HostID: "h1", HostName: "Alice", RoomName: "Lobby"}

	cases := []struct {
		name   string
		mutate func(in *service.CreateRoomInput)
	}{
		{"missing host id", func(in *service.CreateRoomInput) { in.HostID = "  " }},
		{"missing host name", func(in *service.CreateRoomInput) { in.HostName = "" }},
		{"missing room name", func(in *service.CreateRoomInput) { in.RoomName = "\t" }},
		{"room name too long", func(in *service.CreateRoomInput) { in.RoomName = strings.Repeat("é", 65) }},
		{"zero rounds", func(in *service.CreateRoomInput) { in.TotalRounds = intPtr(0) }},
		{"negative rounds", func(in *service.CreateRoomInput) { in.TotalRounds = intPtr(-2) }},
		{"private without password", func(in *service.CreateRoomInput) { in.IsPrivate = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			room, err := env.svc.CreateRoom(context.Background(), in)
			assert.ErrorIs(t, err, service.ErrValidation)
			assert.Nil(t, room)
		})
	}

	rooms, err := env.rooms.ListOpen(context.Background(), startTime, 0)
	require.NoError(t, err)
	assert.Empty(t, rooms, "rejected creates must not write")
}

func TestRoomService_CreateRoom_Defaults(t *testing.T) {
	env := newTestEnv(t)
	env.heartbeat(t, "h1")

	room, err := env.svc.CreateRoom(context.Background(), service.CreateRoomInput{
		HostID: " h1 ", HostName: "Alice", RoomName: "  Lobby  ",
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[A-HJ-NP-Z2-9]{8}$`), room.ID)
	assert.Equal(t, "Lobby", room.Name)
	assert.Equal(t, domain.Player{ID: "h1", Name: "Alice"}, room.Host)
	assert.Nil(t, room.Guest)
	assert.Equal(t, domain.StatusWaiting, room.Status)
	assert.Equal(t, domain.DefaultTotalRounds, room.TotalRounds)
	assert.Equal(t, 0, room.CurrentRound)
	assert.Equal(t, domain.Scores{}, room.Scores)
	assert.False(t, room.IsPrivate)
	assert.Empty(t, room.PasswordHash)
	assert.Equal(t, startTime, room.CreatedAt)
	assert.Equal(t, startTime.Add(time.Hour), room.ExpiresAt)

	assert.Equal(t, room.ID, env.currentRoom(t, "h1"), "host should be associated with the new room")
}

func TestRoomService_CreateRoom_PrivateStoresHash(t *testing.T) {
	env := newTestEnv(t)
	room := env.createCustomRoom(t, "h1", "s3cret", 5)

	assert.True(t, room.IsPrivate)
	assert.Equal(t, 5, room.TotalRounds)
	assert.NotEqual(t, "s3cret", room.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte("s3cret")))

	rooms, err := env.svc.ListAvailable(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, rooms, "private rooms are not listed")
}

func TestRoomService_CreateRoom_RedrawsTakenCode(t *testing.T) {
	env := newTestEnv(t)
	codes := []string{"TAKEN222", "TAKEN222", "FRESH333"}
	var mu sync.Mutex
	svc := service.NewRoomService(env.rooms, nil, service.RoomConfig{
		Now: env.clock.Now,
		CodeGenerator: func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			code := codes[0]
			codes = codes[1:]
			return code, nil
		},
	})

	first, err := svc.CreateRoom(context.Background(), service.CreateRoomInput{HostID: "h1", HostName: "A", RoomName: "one"})
	require.NoError(t, err)
	assert.Equal(t, "TAKEN222", first.ID)

	second, err := svc.CreateRoom(context.Background(), service.CreateRoomInput{HostID: "h2", HostName: "B", RoomName: "two"})
	require.NoError(t, err)
	assert.Equal(t, "FRESH333", second.ID)
}

func TestRoomService_CreateRoom_GivesUpAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	calls := 0
	svc := service.NewRoomService(env.rooms, nil, service.RoomConfig{
		Now: env.clock.Now,
		CodeGenerator: func() (string, error) {
			calls++
			return "SAME2222", nil
		},
	})
	_, err := svc.CreateRoom(context.Background(), service.CreateRoomInput{HostID: "h1", HostName: "A", RoomName: "one"})
	require.NoError(t, err)

	_, err = svc.CreateRoom(context.Background(), service.CreateRoomInput{HostID: "h2", HostName: "B", RoomName: "two"})
	assert.ErrorIs(t, err, service.ErrInternalServer)
	assert.Equal(t, 11, calls)
}

func TestRoomService_CreateRoom_RetriesRacingInsert(t *testing.T) {
	repo := mocks.NewRoomRepository(t)
	ctx := context.Background()
	repo.On("Exists", ctx, mock.Anything).Return(false, nil).Twice()
	repo.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateEntry).Once()
	repo.On("Create", ctx, mock.MatchedBy(func(r *domain.Room) bool { return r.Host.ID == "h1" })).Return(nil).Once()

	svc := service.NewRoomService(repo, nil, service.RoomConfig{})
	room, err := svc.CreateRoom(ctx, service.CreateRoomInput{HostID: "h1", HostName: "A", RoomName: "race"})
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
}

func TestRoomService_CreateRoom_StorageFailure(t *testing.T) {
	repo := mocks.NewRoomRepository(t)
	ctx := context.Background()
	repo.On("Exists", ctx, mock.Anything).Return(false, errors.New("connection refused")).Once()

	svc := service.NewRoomService(repo, nil, service.RoomConfig{})
	_, err := svc.CreateRoom(ctx, service.CreateRoomInput{HostID: "h1", HostName: "A", RoomName: "down"})
	assert.ErrorIs(t, err, service.ErrInternalServer)
}

// --- ListAvailable / GetRoom ---

func TestRoomService_ListAvailable(t *testing.T) {
	env := newTestEnv(t)
	older := env.createRoom(t, "h1")
	env.clock.Advance(time.Second)
	newer := env.createRoom(t, "h2")
	env.clock.Advance(time.Second)
	full := env.createRoom(t, "h3")
	env.join(t, full.ID, "g3")

	summaries, err := env.svc.ListAvailable(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, newer.ID, summaries[0].ID)
	assert.Equal(t, older.ID, summaries[1].ID)
	assert.Equal(t, "h2", summaries[0].HostID)
	assert.Equal(t, "Host h2", summaries[0].HostName)

	summaries, err = env.svc.ListAvailable(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, newer.ID, summaries[0].ID)
}

func TestRoomService_GetRoom(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "h1")

	got, err := env.svc.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	_, err = env.svc.GetRoom(context.Background(), "NOPE2222")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	_, err = env.svc.GetRoom(context.Background(), " ")
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestRoomService_GetRoom_ExpiredIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "h1")

	env.clock.Advance(time.Hour)
	_, err := env.svc.GetRoom(context.Background(), room.ID)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	summaries, err := env.svc.ListAvailable(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestRoomService_GetRoom_StorageFailure(t *testing.T) {
	repo := mocks.NewRoomRepository(t)
	ctx := context.Background()
	repo.On("FindByID", ctx, "ROOM2222").Return(nil, errors.New("i/o timeout")).Once()

	svc := service.NewRoomService(repo, nil, service.RoomConfig{})
	_, err := svc.GetRoom(ctx, "ROOM2222")
	assert.ErrorIs(t, err, service.ErrInternalServer)
}

// --- JoinRoom ---

func TestRoomService_JoinRoom_Success(t *testing.T) {
	env := newTestEnv(t)
	env.heartbeat(t, "g1")
	room := env.createRoom(t, "h1")
	env.clock.Advance(10 * time.Minute)

	joined := env.join(t, room.ID, "g1")
	require.NotNil(t, joined.Guest)
	assert.Equal(t, domain.Player{ID: "g1", Name: "Guest g1"}, *joined.Guest)
	assert.Equal(t, domain.StatusInProgress, joined.Status)
	assert.Equal(t, startTime.Add(10*time.Minute+time.Hour), joined.ExpiresAt, "join refreshes the inactivity TTL")
	assert.Equal(t, room.ID, env.currentRoom(t, "g1"))
}

func TestRoomService_JoinRoom_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	full := env.createRoom(t, "h1")
	env.join(t, full.ID, "g1")

	_, err := env.svc.JoinRoom(ctx, service.JoinRoomInput{RoomID: "NOPE2222", UserID: "g2", Name: "G"})
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	_, err = env.svc.JoinRoom(ctx, service.JoinRoomInput{RoomID: full.ID, UserID: "g2", Name: "G"})
	assert.ErrorIs(t, err, service.ErrRoomFull)

	// 满员检查先于自己加入自己的检查
	_, err = env.svc.JoinRoom(ctx, service.JoinRoomInput{RoomID: full.ID, UserID: "h1", Name: "H"})
	assert.ErrorIs(t, err, service.ErrRoomFull)

	open := env.createRoom(t, "h2")
	_, err = env.svc.JoinRoom(ctx, service.JoinRoomInput{RoomID: open.ID, UserID: "h2", Name: "H"})
	assert.ErrorIs(t, err, service.ErrSelfJoin)
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = env.svc.JoinRoom(ctx, service.JoinRoomInput{RoomID: open.ID, UserID: "", Name: "G"})
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = env.svc.JoinRoom(ctx, service.JoinRoomInput{RoomID: open.ID, UserID: "g3", Name: " "})
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestRoomService_JoinRoom_FinishedRoomIsNotJoinable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createCustomRoom(t, "h1", "", 1)
	env.join(t, room.ID, "g1")

	_, _, err := env.svc.SubmitMove(ctx, room.ID, "h1", "rock")
	require.NoError(t, err)
	_, res, err := env.svc.SubmitMove(ctx, room.ID, "g1", "rock")
	require.NoError(t, err)
	require.True(t, res.Finished)

	require.NoError(t, env.svc.LeaveRoom(ctx, room.ID, "g1"))
	got, err := env.svc.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, got.Status)
	assert.Nil(t, got.Guest)

	_, err = env.svc.JoinRoom(ctx, service.JoinRoomInput{RoomID: room.ID, UserID: "g2", Name: "G"})
	assert.ErrorIs(t, err, service.ErrInvalidState)
}

func TestRoomService_JoinRoom_PrivatePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createCustomRoom(t, "h1", "s3cret", 3)

	for _, pw := range []string{"wrong", ""} {
		_, err := env.svc.JoinRoom(ctx, service.JoinRoomInput{RoomID: room.ID, UserID: "g1", Name: "G", Password: pw})
		assert.ErrorIs(t, err, service.ErrInvalidPassword)
		assert.ErrorIs(t, err, service.ErrForbidden)
	}

	unchanged, err := env.svc.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, unchanged.Guest)
	assert.Equal(t, domain.StatusWaiting, unchanged.Status)
	assert.Equal(t, room.Version, unchanged.Version)

	joined, err := env.svc.JoinRoom(ctx, service.JoinRoomInput{RoomID: room.ID, UserID: "g1", Name: "G", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, joined.Status)
}

func TestRoomService_JoinRoom_ConcurrentJoinsHaveOneWinner(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "h1")

	const contenders = 20
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.JoinRoom(context.Background(), service.JoinRoomInput{
				RoomID: room.ID, UserID: fmt.Sprintf("g%d", i), Name: "G",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, service.ErrRoomFull)
	}
	assert.Equal(t, 1, wins)

	got, err := env.svc.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Guest)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

// --- SubmitMove ---

func TestRoomService_SubmitMove_RockBeatsScissors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, "h1")
	env.join(t, room.ID, "g1")

	after, res, err := env.svc.SubmitMove(ctx, room.ID, "h1", "rock")
	require.NoError(t, err)
	assert.Nil(t, res)
	require.NotNil(t, after.PendingMoves.Host)
	assert.Nil(t, after.PendingMoves.Guest)

	after, res, err = env.svc.SubmitMove(ctx, room.ID, "g1", "SCISSORS")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Round)
	assert.Equal(t, domain.Rock, res.HostChoice)
	assert.Equal(t, domain.Scissors, res.GuestChoice)
	assert.Equal(t, domain.FirstWins, res.Outcome)
	assert.Equal(t, "host", res.Winner)
	assert.Equal(t, "Host h1", res.WinnerName)
	assert.False(t, res.Finished)

	assert.Equal(t, domain.Scores{Host: 1, Guest: 0}, after.Scores)
	assert.Equal(t, 1, after.CurrentRound)
	assert.Equal(t, "host", after.LastRoundWinner)
	assert.Nil(t, after.PendingMoves.Host)
	assert.Nil(t, after.PendingMoves.Guest)
	assert.Equal(t, domain.StatusInProgress, after.Status)
}

func TestRoomService_SubmitMove_OverwriteBeforeOpponent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, "h1")
	env.join(t, room.ID, "g1")

	_, res, err := env.svc.SubmitMove(ctx, room.ID, "h1", "paper")
	require.NoError(t, err)
	assert.Nil(t, res)
	after, res, err := env.svc.SubmitMove(ctx, room.ID, "h1", "rock")
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 0, after.CurrentRound)
	assert.Equal(t, domain.Rock, *after.PendingMoves.Host)

	_, res, err = env.svc.SubmitMove(ctx, room.ID, "g1", "paper")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, domain.Rock, res.HostChoice)
	assert.Equal(t, "guest", res.Winner)
	assert.Equal(t, "Guest g1", res.WinnerName)
}

func TestRoomService_SubmitMove_Draw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, "h1")
	env.join(t, room.ID, "g1")

	_, _, err := env.svc.SubmitMove(ctx, room.ID, "g1", "paper")
	require.NoError(t, err)
	after, res, err := env.svc.SubmitMove(ctx, room.ID, "h1", "paper")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, domain.Draw, res.Outcome)
	assert.Equal(t, domain.DrawWinner, res.Winner)
	assert.Empty(t, res.WinnerName)
	assert.Equal(t, domain.Scores{}, after.Scores)
	assert.Equal(t, 1, after.CurrentRound)
	assert.Equal(t, domain.DrawWinner, after.LastRoundWinner)
}

func TestRoomService_SubmitMove_FinalRoundFinishesAndReleases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.heartbeat(t, "h1")
	env.heartbeat(t, "g1")
	room := env.createCustomRoom(t, "h1", "", 2)
	env.join(t, room.ID, "g1")
	require.Equal(t, room.ID, env.currentRoom(t, "h1"))
	require.Equal(t, room.ID, env.currentRoom(t, "g1"))

	var res *domain.RoundResult
	var after *domain.Room
	for i := 0; i < 2; i++ {
		_, _, err := env.svc.SubmitMove(ctx, room.ID, "h1", "scissors")
		require.NoError(t, err)
		var err2 error
		after, res, err2 = env.svc.SubmitMove(ctx, room.ID, "g1", "paper")
		require.NoError(t, err2)
	}
	require.NotNil(t, res)
	assert.True(t, res.Finished)
	assert.Equal(t, 2, res.Round)
	assert.Equal(t, domain.StatusFinished, after.Status)
	assert.Equal(t, 2, after.CurrentRound)
	assert.Equal(t, domain.Scores{Host: 2}, after.Scores)

	assert.Empty(t, env.currentRoom(t, "h1"))
	assert.Empty(t, env.currentRoom(t, "g1"))

	_, _, err := env.svc.SubmitMove(ctx, room.ID, "h1", "rock")
	assert.ErrorIs(t, err, service.ErrNotInProgress)
}

func TestRoomService_SubmitMove_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	waiting := env.createRoom(t, "h1")

	_, _, err := env.svc.SubmitMove(ctx, waiting.ID, "h1", "rock")
	assert.ErrorIs(t, err, service.ErrInvalidState)

	playing := env.createRoom(t, "h2")
	env.join(t, playing.ID, "g2")

	_, _, err = env.svc.SubmitMove(ctx, playing.ID, "stranger", "rock")
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, _, err = env.svc.SubmitMove(ctx, "NOPE2222", "h2", "rock")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	_, _, err = env.svc.SubmitMove(ctx, playing.ID, "h2", "lizard")
	assert.ErrorIs(t, err, service.ErrValidation)

	got, err := env.svc.GetRoom(ctx, playing.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PendingMoves.Host, "rejected moves must not write")
	assert.Nil(t, got.PendingMoves.Guest)
}

func TestRoomService_SubmitMove_InvalidChoiceDoesNotTouchStorage(t *testing.T) {
	repo := mocks.NewRoomRepository(t)
	svc := service.NewRoomService(repo, nil, service.RoomConfig{})

	_, _, err := svc.SubmitMove(context.Background(), "ROOM2222", "h1", "spock")
	assert.ErrorIs(t, err, service.ErrInvalidChoice)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestRoomService_SubmitMove_OptimisticLockExhaustedIsInternal(t *testing.T) {
	repo := mocks.NewRoomRepository(t)
	ctx := context.Background()
	repo.On("Update", ctx, "ROOM2222", mock.Anything).
		Return(nil, fmt.Errorf("gorm: update room ROOM2222: %w", repository.ErrOptimisticLock)).Once()

	svc := service.NewRoomService(repo, nil, service.RoomConfig{})
	_, _, err := svc.SubmitMove(ctx, "ROOM2222", "h1", "rock")
	assert.ErrorIs(t, err, service.ErrInternalServer)
}

func TestRoomService_SubmitMove_ConcurrentRoundsResolveOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createCustomRoom(t, "h1", "", 5)
	env.join(t, room.ID, "g1")

	for round := 1; round <= 5; round++ {
		var wg sync.WaitGroup
		results := make([]*domain.RoundResult, 2)
		for i, p := range []struct{ user, choice string }{{"h1", "rock"}, {"g1", "scissors"}} {
			wg.Add(1)
			go func(i int, user, choice string) {
				defer wg.Done()
				_, res, err := env.svc.SubmitMove(ctx, room.ID, user, choice)
				assert.NoError(t, err)
				results[i] = res
			}(i, p.user, p.choice)
		}
		wg.Wait()

		resolved := 0
		for _, res := range results {
			if res != nil {
				resolved++
			}
		}
		assert.Equal(t, 1, resolved, "round %d", round)

		got, err := env.svc.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, round, got.CurrentRound)
		assert.Equal(t, round, got.Scores.Host)
	}
}

// --- LeaveRoom ---

func TestRoomService_LeaveRoom_HostDeletesRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.heartbeat(t, "h1")
	env.heartbeat(t, "g1")
	room := env.createRoom(t, "h1")
	env.join(t, room.ID, "g1")

	require.NoError(t, env.svc.LeaveRoom(ctx, room.ID, "h1"))
	_, err := env.svc.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	assert.Empty(t, env.currentRoom(t, "h1"))
	assert.Empty(t, env.currentRoom(t, "g1"))

	assert.ErrorIs(t, env.svc.LeaveRoom(ctx, room.ID, "h1"), service.ErrRoomNotFound)
}

func TestRoomService_LeaveRoom_GuestKeepsScores(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.heartbeat(t, "g1")
	room := env.createRoom(t, "h1")
	env.join(t, room.ID, "g1")

	_, _, err := env.svc.SubmitMove(ctx, room.ID, "h1", "rock")
	require.NoError(t, err)
	_, _, err = env.svc.SubmitMove(ctx, room.ID, "g1", "scissors")
	require.NoError(t, err)
	_, _, err = env.svc.SubmitMove(ctx, room.ID, "h1", "paper")
	require.NoError(t, err)

	require.NoError(t, env.svc.LeaveRoom(ctx, room.ID, "g1"))
	got, err := env.svc.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Guest)
	assert.Equal(t, domain.StatusWaiting, got.Status)
	assert.Equal(t, 1, got.CurrentRound)
	assert.Equal(t, domain.Scores{Host: 1}, got.Scores)
	assert.Nil(t, got.PendingMoves.Host)
	assert.Empty(t, got.LastRoundWinner)
	assert.Empty(t, env.currentRoom(t, "g1"))

	// 房间重新出现在大厅并可被新对手加入
	summaries, err := env.svc.ListAvailable(ctx, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	joined := env.join(t, room.ID, "g2")
	assert.Equal(t, 1, joined.CurrentRound)
}

func TestRoomService_LeaveRoom_NonParticipant(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "h1")

	err := env.svc.LeaveRoom(context.Background(), room.ID, "stranger")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	err = env.svc.LeaveRoom(context.Background(), "NOPE2222", "h1")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	err = env.svc.LeaveRoom(context.Background(), room.ID, "")
	assert.ErrorIs(t, err, service.ErrValidation)
}

// --- SweepExpired ---

func TestRoomService_SweepExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	idle := env.createRoom(t, "h1")
	playing := env.createRoom(t, "h2")
	env.join(t, playing.ID, "g2")

	env.clock.Advance(2 * time.Hour)
	n, err := env.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = env.rooms.FindByID(ctx, idle.ID)
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
	_, err = env.svc.GetRoom(ctx, playing.ID)
	assert.NoError(t, err, "in-progress rooms survive until abandoned")

	env.clock.Advance(24 * time.Hour)
	n, err = env.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = env.svc.GetRoom(ctx, playing.ID)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}
