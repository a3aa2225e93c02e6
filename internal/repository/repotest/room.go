// Package repotest 提供各存储实现共用的行为测试。
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps-arena/internal/domain"
	"rps-arena/internal/repository"
)

// BaseTime 是测试用的固定时间点，精确到秒以适配各存储的时间精度。
var BaseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const testTTL = time.Hour

func newRoom(id string, createdAt time.Time) *domain.Room {
	return domain.NewRoom(id, "room "+id, domain.Player{ID: "host-" + id, Name: "Host " + id}, false, "", 3, createdAt, testTTL)
}

func joinGuest(t *testing.T, repo repository.RoomRepository, id string) *domain.Room {
	t.Helper()
	room, err := repo.Update(context.Background(), id, func(r *domain.Room) (repository.UpdateAction, error) {
		if err := r.AssignGuest(domain.Player{ID: "guest-" + id, Name: "Guest"}, true); err != nil {
			return repository.ActionNone, err
		}
		return repository.ActionSave, nil
	})
	require.NoError(t, err)
	return room
}

// RunRoomRepositorySuite 对一个 RoomRepository 实现运行完整的行为测试。
// newRepo 每次调用都必须返回一个空的独立存储。
func RunRoomRepositorySuite(t *testing.T, newRepo func(t *testing.T) repository.RoomRepository) {
	ctx := context.Background()

	t.Run("CreateAndFind", func(t *testing.T) {
		repo := newRepo(t)
		room := domain.NewRoom("ABCD2345", "Friday night", domain.Player{ID: "u1", Name: "Alice"}, true, "$2a$10$hash", 5, BaseTime, testTTL)
		require.NoError(t, repo.Create(ctx, room))
		assert.Equal(t, uint64(1), room.Version)

		found, err := repo.FindByID(ctx, "ABCD2345")
		require.NoError(t, err)
		assert.Equal(t, "Friday night", found.Name)
		assert.Equal(t, domain.Player{ID: "u1", Name: "Alice"}, found.Host)
		assert.Nil(t, found.Guest)
		assert.Equal(t, domain.StatusWaiting, found.Status)
		assert.True(t, found.IsPrivate)
		assert.Equal(t, "$2a$10$hash", found.PasswordHash)
		assert.Equal(t, 5, found.TotalRounds)
		assert.Equal(t, 0, found.CurrentRound)
		assert.Nil(t, found.PendingMoves.Host)
		assert.Nil(t, found.PendingMoves.Guest)
		assert.True(t, BaseTime.Equal(found.CreatedAt))
		assert.True(t, BaseTime.Add(testTTL).Equal(found.ExpiresAt))
		assert.Equal(t, uint64(1), found.Version)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newRoom("DUPL2345", BaseTime)))
		err := repo.Create(ctx, newRoom("DUPL2345", BaseTime))
		assert.ErrorIs(t, err, repository.ErrDuplicateEntry)
	})

	t.Run("FindMissing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByID(ctx, "NOPE2345")
		assert.ErrorIs(t, err, repository.ErrRoomNotFound)
	})

	t.Run("Exists", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newRoom("EXST2345", BaseTime)))
		ok, err := repo.Exists(ctx, "EXST2345")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.Exists(ctx, "MISS2345")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("UpdateSaveBumpsVersion", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newRoom("UPDT2345", BaseTime)))
		updated := joinGuest(t, repo, "UPDT2345")
		assert.Equal(t, uint64(2), updated.Version)
		assert.Equal(t, domain.StatusInProgress, updated.Status)

		rock := domain.Rock
		updated, err := repo.Update(ctx, "UPDT2345", func(r *domain.Room) (repository.UpdateAction, error) {
			r.PendingMoves.Host = &rock
			r.Touch(BaseTime.Add(time.Minute), testTTL)
			return repository.ActionSave, nil
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(3), updated.Version)

		found, err := repo.FindByID(ctx, "UPDT2345")
		require.NoError(t, err)
		require.NotNil(t, found.Guest)
		assert.Equal(t, "guest-UPDT2345", found.Guest.ID)
		require.NotNil(t, found.PendingMoves.Host)
		assert.Equal(t, domain.Rock, *found.PendingMoves.Host)
		assert.Nil(t, found.PendingMoves.Guest)
		assert.True(t, BaseTime.Add(time.Minute+testTTL).Equal(found.ExpiresAt))
		assert.Equal(t, uint64(3), found.Version)
	})

	t.Run("UpdateErrorWritesNothing", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newRoom("FAIL2345", BaseTime)))
		boom := errors.New("boom")
		_, err := repo.Update(ctx, "FAIL2345", func(r *domain.Room) (repository.UpdateAction, error) {
			r.Name = "changed"
			return repository.ActionSave, boom
		})
		assert.ErrorIs(t, err, boom)

		found, err := repo.FindByID(ctx, "FAIL2345")
		require.NoError(t, err)
		assert.Equal(t, "room FAIL2345", found.Name)
		assert.Equal(t, uint64(1), found.Version)
	})

	t.Run("UpdateNoneWritesNothing", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newRoom("NONE2345", BaseTime)))
		got, err := repo.Update(ctx, "NONE2345", func(r *domain.Room) (repository.UpdateAction, error) {
			r.Name = "changed"
			return repository.ActionNone, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "room NONE2345", got.Name)
		assert.Equal(t, uint64(1), got.Version)
	})

	t.Run("UpdateDelete", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newRoom("DELT2345", BaseTime)))
		last, err := repo.Update(ctx, "DELT2345", func(r *domain.Room) (repository.UpdateAction, error) {
			return repository.ActionDelete, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "DELT2345", last.ID)

		_, err = repo.FindByID(ctx, "DELT2345")
		assert.ErrorIs(t, err, repository.ErrRoomNotFound)
		_, err = repo.Update(ctx, "DELT2345", func(r *domain.Room) (repository.UpdateAction, error) {
			return repository.ActionSave, nil
		})
		assert.ErrorIs(t, err, repository.ErrRoomNotFound)
		// 删除后房间码可以重新使用
		require.NoError(t, repo.Create(ctx, newRoom("DELT2345", BaseTime)))
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		repo := newRepo(t)
		called := false
		_, err := repo.Update(ctx, "MISS2345", func(r *domain.Room) (repository.UpdateAction, error) {
			called = true
			return repository.ActionSave, nil
		})
		assert.ErrorIs(t, err, repository.ErrRoomNotFound)
		assert.False(t, called)
	})

	t.Run("ListOpen", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newRoom("OPEN0001", BaseTime)))
		require.NoError(t, repo.Create(ctx, newRoom("OPEN0002", BaseTime.Add(time.Second))))
		require.NoError(t, repo.Create(ctx, newRoom("OPEN0003", BaseTime.Add(2*time.Second))))

		private := domain.NewRoom("PRIV0001", "secret", domain.Player{ID: "p", Name: "P"}, true, "hash", 3, BaseTime.Add(3*time.Second), testTTL)
		require.NoError(t, repo.Create(ctx, private))
		require.NoError(t, repo.Create(ctx, newRoom("FULL0001", BaseTime.Add(4*time.Second))))
		joinGuest(t, repo, "FULL0001")
		// 已过期但尚未被清理的房间
		require.NoError(t, repo.Create(ctx, newRoom("OLD00001", BaseTime.Add(-2*testTTL))))

		now := BaseTime.Add(10 * time.Second)
		rooms, err := repo.ListOpen(ctx, now, 0)
		require.NoError(t, err)
		ids := make([]string, 0, len(rooms))
		for _, r := range rooms {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"OPEN0003", "OPEN0002", "OPEN0001"}, ids)

		rooms, err = repo.ListOpen(ctx, now, 2)
		require.NoError(t, err)
		require.Len(t, rooms, 2)
		assert.Equal(t, "OPEN0003", rooms[0].ID)
		assert.Equal(t, "OPEN0002", rooms[1].ID)
	})

	t.Run("ListOpenAfterGuestLeaves", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newRoom("BACK0001", BaseTime)))
		joinGuest(t, repo, "BACK0001")
		rooms, err := repo.ListOpen(ctx, BaseTime, 0)
		require.NoError(t, err)
		assert.Empty(t, rooms)

		_, err = repo.Update(ctx, "BACK0001", func(r *domain.Room) (repository.UpdateAction, error) {
			r.RemoveGuest()
			return repository.ActionSave, nil
		})
		require.NoError(t, err)
		rooms, err = repo.ListOpen(ctx, BaseTime, 0)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, "BACK0001", rooms[0].ID)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		repo := newRepo(t)
		abandon := 24 * time.Hour

		require.NoError(t, repo.Create(ctx, newRoom("WAIT0001", BaseTime)))                   // 过期
		require.NoError(t, repo.Create(ctx, newRoom("WAIT0002", BaseTime.Add(2*time.Hour)))) // 未过期
		require.NoError(t, repo.Create(ctx, newRoom("PLAY0001", BaseTime)))                   // 进行中，仍在放弃窗口内
		joinGuest(t, repo, "PLAY0001")
		require.NoError(t, repo.Create(ctx, newRoom("PLAY0002", BaseTime.Add(-48*time.Hour)))) // 进行中，已被放弃
		joinGuest(t, repo, "PLAY0002")

		now := BaseTime.Add(90 * time.Minute)
		n, err := repo.DeleteExpired(ctx, now, abandon)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		for id, want := range map[string]bool{"WAIT0001": false, "WAIT0002": true, "PLAY0001": true, "PLAY0002": false} {
			ok, err := repo.Exists(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, want, ok, "room %s", id)
		}

		// abandonAfter 为 0 时进行中的房间永不清理
		n, err = repo.DeleteExpired(ctx, now.Add(1000*time.Hour), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		ok, err := repo.Exists(ctx, "PLAY0001")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ConcurrentJoinHasSingleWinner", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newRoom("RACE0001", BaseTime)))

		const contenders = 8
		var wg sync.WaitGroup
		errs := make([]error, contenders)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = repo.Update(ctx, "RACE0001", func(r *domain.Room) (repository.UpdateAction, error) {
					if err := r.AssignGuest(domain.Player{ID: fmt.Sprintf("guest-%d", i), Name: "G"}, true); err != nil {
						return repository.ActionNone, err
					}
					return repository.ActionSave, nil
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
			assert.ErrorIs(t, err, domain.ErrRoomFull)
		}
		assert.Equal(t, 1, wins)

		found, err := repo.FindByID(ctx, "RACE0001")
		require.NoError(t, err)
		require.NotNil(t, found.Guest)
		assert.Equal(t, uint64(2), found.Version)
	})

	t.Run("ConcurrentMovesResolveEachRoundOnce", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newRoom("MOVE0001", BaseTime)))
		room := joinGuest(t, repo, "MOVE0001")

		for round := 1; round <= room.TotalRounds; round++ {
			var wg sync.WaitGroup
			results := make([]*domain.RoundResult, 2)
			players := []string{room.Host.ID, room.Guest.ID}
			choices := []domain.Choice{domain.Rock, domain.Scissors}
			for i := range players {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := repo.Update(ctx, "MOVE0001", func(r *domain.Room) (repository.UpdateAction, error) {
						res, err := r.SubmitMove(players[i], choices[i])
						if err != nil {
							return repository.ActionNone, err
						}
						results[i] = res
						return repository.ActionSave, nil
					})
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			resolved := 0
			for _, res := range results {
				if res != nil {
					resolved++
					assert.Equal(t, round, res.Round)
				}
			}
			assert.Equal(t, 1, resolved, "round %d", round)
		}

		found, err := repo.FindByID(ctx, "MOVE0001")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFinished, found.Status)
		assert.Equal(t, found.TotalRounds, found.CurrentRound)
		assert.Equal(t, domain.Scores{Host: found.TotalRounds, Guest: 0}, found.Scores)
	})

	t.Run("SerializedUpdates", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newRoom("SERL0001", BaseTime)))

		const writers = 10
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Update(ctx, "SERL0001", func(r *domain.Room) (repository.UpdateAction, error) {
					r.Scores.Host++
					return repository.ActionSave, nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		found, err := repo.FindByID(ctx, "SERL0001")
		require.NoError(t, err)
		assert.Equal(t, writers, found.Scores.Host)
		assert.Equal(t, uint64(writers+1), found.Version)
	})
}
