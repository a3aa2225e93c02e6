package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"rps-arena/internal/domain"
	"rps-arena/internal/repository"
)

// maxUpdateAttempts 是 WATCH 冲突时的最大重试次数
const maxUpdateAttempts = 16

// listBatchSize 是 ListOpen 每次 MGET 的房间数
const listBatchSize = 100

// RedisRoomRepository 是 RoomRepository 接口的 Redis 实现。
// 房间以 JSON 存在 room:{id} 下，另外维护两个有序集合作为索引：
// rooms:open 按创建时间记录等待中的公开房间，rooms:expiry 按过期时间记录全部房间。
// 写操作通过 WATCH/MULTI 做乐观并发控制。
type RedisRoomRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRoomRepository 创建 RedisRoomRepository 实例
func NewRedisRoomRepository(client *redis.Client, keyPrefix string) *RedisRoomRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisRoomRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "rps:"
	}
	return &RedisRoomRepository{client: client, keyPrefix: keyPrefix}
}

// --- Key Generation Helpers ---
func (r *RedisRoomRepository) roomKey(id string) string {
	return r.keyPrefix + "room:" + id
}

func (r *RedisRoomRepository) openIndexKey() string {
	return r.keyPrefix + "rooms:open"
}

func (r *RedisRoomRepository) expiryIndexKey() string {
	return r.keyPrefix + "rooms:expiry"
}

// storedRoom 是房间在 Redis 中的编码，额外保存对外隐藏的密码哈希。
type storedRoom struct {
	*domain.Room
	PasswordHash string `json:"passwordHash,omitempty"`
}

func encodeRoom(room *domain.Room) ([]byte, error) {
	return json.Marshal(storedRoom{Room: room, PasswordHash: room.PasswordHash})
}

func decodeRoom(data []byte) (*domain.Room, error) {
	s := storedRoom{Room: &domain.Room{}}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	s.Room.PasswordHash = s.PasswordHash
	return s.Room, nil
}

func millis(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// writeRoom 在事务管道中写入房间并维护索引。
func (r *RedisRoomRepository) writeRoom(ctx context.Context, pipe redis.Pipeliner, room *domain.Room, data []byte) {
	pipe.Set(ctx, r.roomKey(room.ID), data, 0)
	pipe.ZAdd(ctx, r.expiryIndexKey(), &redis.Z{Score: millis(room.ExpiresAt), Member: room.ID})
	if room.Status == domain.StatusWaiting && room.Guest == nil && !room.IsPrivate {
		pipe.ZAdd(ctx, r.openIndexKey(), &redis.Z{Score: millis(room.CreatedAt), Member: room.ID})
	} else {
		pipe.ZRem(ctx, r.openIndexKey(), room.ID)
	}
}

func (r *RedisRoomRepository) removeRoom(ctx context.Context, pipe redis.Pipeliner, id string) {
	pipe.Del(ctx, r.roomKey(id))
	pipe.ZRem(ctx, r.openIndexKey(), id)
	pipe.ZRem(ctx, r.expiryIndexKey(), id)
}

// Create 实现保存新房间
func (r *RedisRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	stored := room.Clone()
	stored.Version = 1
	data, err := encodeRoom(stored)
	if err != nil {
		return fmt.Errorf("redis: encode room %s: %w", room.ID, err)
	}
	key := r.roomKey(room.ID)

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err = r.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("redis: check room %s: %w", room.ID, err)
			}
			if n > 0 {
				return repository.ErrDuplicateEntry
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				r.writeRoom(ctx, pipe, stored, data)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		room.Version = 1
		return nil
	}
	return fmt.Errorf("redis: create room %s: %w", room.ID, repository.ErrOptimisticLock)
}

// FindByID 实现根据房间 ID 查找房间
func (r *RedisRoomRepository) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	data, err := r.client.Get(ctx, r.roomKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("redis: get room %s: %w", id, err)
	}
	room, err := decodeRoom(data)
	if err != nil {
		return nil, fmt.Errorf("redis: decode room %s: %w", id, err)
	}
	return room, nil
}

// Exists 实现检查房间 ID 是否存在
func (r *RedisRoomRepository) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.roomKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check room %s: %w", id, err)
	}
	return n > 0, nil
}

// ListOpen 实现大厅房间列表。
// 索引可能滞后于房间本身 (例如已过期未清理)，所以取出后仍按 IsOpen 过滤。
func (r *RedisRoomRepository) ListOpen(ctx context.Context, now time.Time, limit int) ([]domain.Room, error) {
	// 相同分数的成员按字典序逆序返回，与按 ID 倒序的次级排序一致
	ids, err := r.client.ZRevRange(ctx, r.openIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read open room index: %w", err)
	}

	rooms := make([]domain.Room, 0)
	for start := 0; start < len(ids); start += listBatchSize {
		end := start + listBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, r.roomKey(id))
		}
		values, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: load open rooms: %w", err)
		}
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				continue // 房间已被删除
			}
			room, err := decodeRoom([]byte(s))
			if err != nil {
				return nil, fmt.Errorf("redis: decode open room: %w", err)
			}
			if !room.IsOpen(now) {
				continue
			}
			rooms = append(rooms, *room)
			if limit > 0 && len(rooms) == limit {
				return rooms, nil
			}
		}
	}
	return rooms, nil
}

// Update 实现房间的原子读-改-写。WATCH 期间房间被其他客户端修改时事务失败，重新读取后再试。
func (r *RedisRoomRepository) Update(ctx context.Context, id string, fn repository.UpdateFunc) (*domain.Room, error) {
	key := r.roomKey(id)
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var result *domain.Room
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return repository.ErrRoomNotFound
				}
				return fmt.Errorf("redis: get room %s: %w", id, err)
			}
			current, err := decodeRoom(data)
			if err != nil {
				return fmt.Errorf("redis: decode room %s: %w", id, err)
			}

			working := current.Clone()
			action, err := fn(working)
			if err != nil {
				return err
			}
			switch action {
			case repository.ActionNone:
				result = current
				return nil
			case repository.ActionDelete:
				result = current
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					r.removeRoom(ctx, pipe, id)
					return nil
				})
				return err
			default:
				working.Version = current.Version + 1
				next, err := encodeRoom(working)
				if err != nil {
					return fmt.Errorf("redis: encode room %s: %w", id, err)
				}
				result = working
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					r.writeRoom(ctx, pipe, working, next)
					return nil
				})
				return err
			}
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("redis: update room %s: %w", id, repository.ErrOptimisticLock)
}

// DeleteExpired 实现过期房间清理。候选房间来自过期索引，
// 每个房间再在 Update 中按 Expired 复核，与并发写入互不破坏。
func (r *RedisRoomRepository) DeleteExpired(ctx context.Context, now time.Time, abandonAfter time.Duration) (int64, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.expiryIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: read expiry index: %w", err)
	}

	var deleted int64
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		removed := false
		_, err := r.Update(ctx, id, func(room *domain.Room) (repository.UpdateAction, error) {
			removed = room.Expired(now, abandonAfter)
			if removed {
				return repository.ActionDelete, nil
			}
			return repository.ActionNone, nil
		})
		if errors.Is(err, repository.ErrRoomNotFound) {
			// 房间已不存在，顺手清掉残留的索引
			if err := r.client.ZRem(ctx, r.expiryIndexKey(), id).Err(); err != nil {
				return deleted, fmt.Errorf("redis: drop stale index entry %s: %w", id, err)
			}
			r.client.ZRem(ctx, r.openIndexKey(), id)
			continue
		}
		if err != nil {
			return deleted, err
		}
		if removed {
			deleted++
		}
	}
	return deleted, nil
}
