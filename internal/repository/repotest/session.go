package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps-arena/internal/domain"
	"rps-arena/internal/repository"
)

func newSession(userID string, lastActive time.Time) *domain.Session {
	return &domain.Session{
		UserID:      userID,
		DisplayName: "Player " + userID,
		SessionID:   "sess-" + userID,
		LastActive:  lastActive,
		Online:      true,
		IPAddress:   "127.0.0.1",
		UserAgent:   "repotest",
	}
}

func userIDs(sessions []domain.Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.UserID)
	}
	return ids
}

// RunSessionRepositorySuite 对一个 SessionRepository 实现运行完整的行为测试。
// newRepo 每次调用都必须返回一个空的独立存储。
func RunSessionRepositorySuite(t *testing.T, newRepo func(t *testing.T) repository.SessionRepository) {
	ctx := context.Background()

	t.Run("UpsertAndFind", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Upsert(ctx, newSession("u1", BaseTime)))

		found, err := repo.FindByUserID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Player u1", found.DisplayName)
		assert.Equal(t, "sess-u1", found.SessionID)
		assert.True(t, found.Online)
		assert.Empty(t, found.CurrentRoom)
		assert.Equal(t, "127.0.0.1", found.IPAddress)
		assert.True(t, BaseTime.Equal(found.LastActive))
	})

	t.Run("FindMissing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByUserID(ctx, "ghost")
		assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	})

	t.Run("UpsertRefreshesButKeepsRoom", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Upsert(ctx, newSession("u1", BaseTime)))
		require.NoError(t, repo.SetCurrentRoom(ctx, []string{"u1"}, "ROOM2345"))
		_, err := repo.MarkOffline(ctx, "u1", BaseTime)
		require.NoError(t, err)

		next := newSession("u1", BaseTime.Add(time.Minute))
		next.DisplayName = "Renamed"
		next.SessionID = "sess-u1-b"
		require.NoError(t, repo.Upsert(ctx, next))

		found, err := repo.FindByUserID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", found.DisplayName)
		assert.Equal(t, "sess-u1-b", found.SessionID)
		assert.True(t, found.Online)
		assert.Equal(t, "ROOM2345", found.CurrentRoom)
		assert.True(t, BaseTime.Add(time.Minute).Equal(found.LastActive))

		// 旧的 sessionId 释放后可以被其他用户使用
		other := newSession("u2", BaseTime)
		other.SessionID = "sess-u1"
		assert.NoError(t, repo.Upsert(ctx, other))
	})

	t.Run("UpsertSessionIDOwnedByOtherUser", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Upsert(ctx, newSession("u1", BaseTime)))
		thief := newSession("u2", BaseTime.Add(time.Minute))
		thief.SessionID = "sess-u1"
		thief.DisplayName = "Intruder"
		assert.ErrorIs(t, repo.Upsert(ctx, thief), repository.ErrDuplicateEntry)

		// 原记录不被改写，冲突方也没有得到记录
		owner, err := repo.FindByUserID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Player u1", owner.DisplayName)
		assert.True(t, BaseTime.Equal(owner.LastActive))
		_, err = repo.FindByUserID(ctx, "u2")
		assert.ErrorIs(t, err, repository.ErrSessionNotFound)

		// 已有记录的用户换成别人的 sessionId 同样被拒绝
		require.NoError(t, repo.Upsert(ctx, newSession("u3", BaseTime)))
		switcher := newSession("u3", BaseTime.Add(time.Minute))
		switcher.SessionID = "sess-u1"
		assert.ErrorIs(t, repo.Upsert(ctx, switcher), repository.ErrDuplicateEntry)
		mine, err := repo.FindByUserID(ctx, "u3")
		require.NoError(t, err)
		assert.Equal(t, "sess-u3", mine.SessionID)
	})

	t.Run("ConcurrentUpsertSingleRecord", func(t *testing.T) {
		repo := newRepo(t)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s := newSession("u1", BaseTime.Add(time.Duration(i)*time.Second))
				assert.NoError(t, repo.Upsert(ctx, s))
			}(i)
		}
		wg.Wait()

		n, err := repo.CountOnline(ctx, BaseTime.Add(-time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("MarkOffline", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Upsert(ctx, newSession("u1", BaseTime)))

		at := BaseTime.Add(2 * time.Minute)
		found, err := repo.MarkOffline(ctx, "u1", at)
		require.NoError(t, err)
		assert.True(t, found)
		s, err := repo.FindByUserID(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, s.Online)
		assert.True(t, at.Equal(s.UpdatedAt), "updatedAt comes from the caller's clock, got %v", s.UpdatedAt)
		assert.True(t, BaseTime.Equal(s.LastActive), "logout does not touch lastActive")

		found, err = repo.MarkOffline(ctx, "ghost", BaseTime)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("SetCurrentRoom", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Upsert(ctx, newSession("u1", BaseTime)))
		require.NoError(t, repo.Upsert(ctx, newSession("u2", BaseTime)))

		require.NoError(t, repo.SetCurrentRoom(ctx, []string{"u1", "u2", "ghost"}, "ROOM2345"))
		for _, id := range []string{"u1", "u2"} {
			s, err := repo.FindByUserID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "ROOM2345", s.CurrentRoom)
		}
		_, err := repo.FindByUserID(ctx, "ghost")
		assert.ErrorIs(t, err, repository.ErrSessionNotFound)

		require.NoError(t, repo.SetCurrentRoom(ctx, []string{"u1"}, ""))
		s, err := repo.FindByUserID(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, s.CurrentRoom)

		assert.NoError(t, repo.SetCurrentRoom(ctx, nil, "ROOM2345"))
	})

	t.Run("CountAndListOnline", func(t *testing.T) {
		repo := newRepo(t)
		for i := 1; i <= 4; i++ {
			require.NoError(t, repo.Upsert(ctx, newSession(fmt.Sprintf("u%d", i), BaseTime.Add(time.Duration(i)*time.Minute))))
		}
		// 同一时刻活跃的两个用户按 userId 排序
		require.NoError(t, repo.Upsert(ctx, newSession("u0", BaseTime.Add(4*time.Minute))))
		// 超出在线窗口
		require.NoError(t, repo.Upsert(ctx, newSession("old", BaseTime.Add(-time.Hour))))
		// 已登出
		require.NoError(t, repo.Upsert(ctx, newSession("gone", BaseTime.Add(5*time.Minute))))
		_, err := repo.MarkOffline(ctx, "gone", BaseTime)
		require.NoError(t, err)

		since := BaseTime
		n, err := repo.CountOnline(ctx, since)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		sessions, err := repo.ListOnline(ctx, since, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"u0", "u4", "u3", "u2", "u1"}, userIDs(sessions))

		sessions, err = repo.ListOnline(ctx, since, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"u0", "u4"}, userIDs(sessions))

		// 边界上的记录计为在线
		n, err = repo.CountOnline(ctx, BaseTime.Add(3*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("DeleteStale", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Upsert(ctx, newSession("fresh", BaseTime)))
		require.NoError(t, repo.Upsert(ctx, newSession("stale", BaseTime.Add(-time.Hour))))
		require.NoError(t, repo.Upsert(ctx, newSession("edge", BaseTime.Add(-30*time.Minute))))

		n, err := repo.DeleteStale(ctx, BaseTime.Add(-30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.FindByUserID(ctx, "stale")
		assert.ErrorIs(t, err, repository.ErrSessionNotFound)
		_, err = repo.FindByUserID(ctx, "edge")
		assert.NoError(t, err)
		_, err = repo.FindByUserID(ctx, "fresh")
		assert.NoError(t, err)
	})
}
