package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"rps-arena/internal/domain"
	"rps-arena/internal/repository"
)

const (
	// roomCodeAlphabet 去掉了容易混淆的 I/O/0/1，长度 32 可以整除 256，取模没有偏差
	roomCodeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength    = 8
	maxCodeAttempts   = 10
	maxRoomNameLength = 64

	DefaultRoomTTL          = time.Hour
	DefaultAbandonedRoomTTL = 24 * time.Hour
	DefaultListLimit        = 50
)

// ParticipationTracker 维护用户与房间的在线关联，由 PresenceService 实现。
type ParticipationTracker interface {
	EnterRoom(ctx context.Context, userID, roomID string) error
	ReleaseRoom(ctx context.Context, userIDs ...string) error
}

// RoomConfig 是 RoomService 的可调参数，零值字段使用默认值。
type RoomConfig struct {
	RoomTTL      time.Duration // 无操作多久后房间过期
	AbandonAfter time.Duration // 进行中的房间在过期后再闲置多久才清理，0 表示永不
	PasswordCost int           // bcrypt cost
	Now          func() time.Time
	// CodeGenerator 生成房间码，为空时使用 crypto/rand
	CodeGenerator func() (string, error)
}

// RoomService 负责房间生命周期和对局相关的业务逻辑。
type RoomService struct {
	roomRepo     repository.RoomRepository
	participants ParticipationTracker
	ttl          time.Duration
	abandonAfter time.Duration
	passwordCost int
	now          func() time.Time
	newCode      func() (string, error)
}

// NewRoomService 创建 RoomService 实例。participants 可以为 nil。
func NewRoomService(roomRepo repository.RoomRepository, participants ParticipationTracker, cfg RoomConfig) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	s := &RoomService{
		roomRepo:     roomRepo,
		participants: participants,
		ttl:          cfg.RoomTTL,
		abandonAfter: cfg.AbandonAfter,
		passwordCost: cfg.PasswordCost,
		now:          cfg.Now,
		newCode:      cfg.CodeGenerator,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultRoomTTL
	}
	if s.abandonAfter < 0 {
		s.abandonAfter = 0
	}
	if s.passwordCost == 0 {
		s.passwordCost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newCode == nil {
		s.newCode = randomRoomCode
	}
	return s
}

// CreateRoomInput 是创建房间的参数
type CreateRoomInput struct {
	HostID      string
	HostName    string
	RoomName    string
	IsPrivate   bool
	Password    string
	TotalRounds *int // nil 表示使用默认回合数
}

// CreateRoom 创建一个等待对手的新房间，并把房主关联到该房间。
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput) (*domain.Room, error) {
	hostID := strings.TrimSpace(in.HostID)
	hostName := strings.TrimSpace(in.HostName)
	roomName := strings.TrimSpace(in.RoomName)
	switch {
	case hostID == "":
		return nil, validationError("hostId is required")
	case hostName == "":
		return nil, validationError("hostName is required")
	case roomName == "":
		return nil, validationError("roomName is required")
	case utf8.RuneCountInString(roomName) > maxRoomNameLength:
		return nil, validationError("roomName must be at most %d characters", maxRoomNameLength)
	case in.IsPrivate && in.Password == "":
		return nil, validationError("password is required for a private room")
	}
	totalRounds := domain.DefaultTotalRounds
	if in.TotalRounds != nil {
		if *in.TotalRounds < 1 {
			return nil, validationError("totalRounds must be at least 1")
		}
		totalRounds = *in.TotalRounds
	}
	logCtx := logrus.WithFields(logrus.Fields{"host_id": hostID, "private": in.IsPrivate})

	var passwordHash string
	if in.IsPrivate {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.passwordCost)
		if err != nil {
			logCtx.WithError(err).Error("Failed to hash room password")
			return nil, ErrInternalServer
		}
		passwordHash = string(hash)
	}

	host := domain.Player{ID: hostID, Name: hostName}
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.uniqueCandidate(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate room code")
			return nil, ErrInternalServer
		}
		if code == "" {
			logCtx.WithField("attempt", attempt).Warn("Generated room code already exists, retrying")
			continue
		}

		room := domain.NewRoom(code, roomName, host, in.IsPrivate, passwordHash, totalRounds, s.now(), s.ttl)
		err = s.roomRepo.Create(ctx, room)
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 检查之后被并发创建的房间抢占
			logCtx.WithField("room_id", code).Warn("Room code taken by a concurrent create, retrying")
			continue
		}
		if err != nil {
			logCtx.WithError(err).Error("Failed to save new room")
			return nil, ErrInternalServer
		}

		logCtx.WithField("room_id", room.ID).Info("Room created successfully")
		s.enter(ctx, hostID, room.ID)
		return room, nil
	}
	logCtx.Errorf("Failed to generate a unique room code after %d attempts", maxCodeAttempts)
	return nil, ErrInternalServer
}

// uniqueCandidate 生成一个当前未被占用的房间码，已被占用时返回空字符串。
func (s *RoomService) uniqueCandidate(ctx context.Context) (string, error) {
	code, err := s.newCode()
	if err != nil {
		return "", err
	}
	exists, err := s.roomRepo.Exists(ctx, code)
	if err != nil {
		return "", fmt.Errorf("check room code %s: %w", code, err)
	}
	if exists {
		return "", nil
	}
	return code, nil
}

// randomRoomCode 使用 crypto/rand 生成房间码
func randomRoomCode() (string, error) {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf), nil
}

// ListAvailable 返回大厅中可加入的房间摘要，最新创建的在前。
func (s *RoomService) ListAvailable(ctx context.Context, limit int) ([]domain.RoomSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rooms, err := s.roomRepo.ListOpen(ctx, s.now(), limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to list open rooms")
		return nil, ErrInternalServer
	}
	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for i := range rooms {
		summaries = append(summaries, rooms[i].Summary())
	}
	return summaries, nil
}

// GetRoom 返回房间当前状态。已过期 (清理器会删除) 的房间视为不存在。
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, validationError("roomId is required")
	}
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load room")
		}
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	if room.Expired(s.now(), s.abandonAfter) {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// JoinRoomInput 是加入房间的参数
type JoinRoomInput struct {
	RoomID   string
	UserID   string
	Name     string
	Password string
}

// JoinRoom 让用户作为对手加入房间，成功后对局开始。
// 密码在临界区外校验，临界区内只做状态检查和赋值。
func (s *RoomService) JoinRoom(ctx context.Context, in JoinRoomInput) (*domain.Room, error) {
	roomID := strings.TrimSpace(in.RoomID)
	userID := strings.TrimSpace(in.UserID)
	name := strings.TrimSpace(in.Name)
	switch {
	case roomID == "":
		return nil, validationError("roomId is required")
	case userID == "":
		return nil, validationError("userId is required")
	case name == "":
		return nil, validationError("name is required")
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	current, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	passwordOK := !current.IsPrivate
	if current.IsPrivate && in.Password != "" {
		passwordOK = bcrypt.CompareHashAndPassword([]byte(current.PasswordHash), []byte(in.Password)) == nil
	}

	now := s.now()
	guest := domain.Player{ID: userID, Name: name}
	room, err := s.roomRepo.Update(ctx, roomID, func(r *domain.Room) (repository.UpdateAction, error) {
		if r.Expired(now, s.abandonAfter) || !r.CreatedAt.Equal(current.CreatedAt) {
			// 创建时间变化说明房间码已被重新分配，之前的密码校验结果失效
			return repository.ActionNone, ErrRoomNotFound
		}
		if err := r.AssignGuest(guest, passwordOK); err != nil {
			return repository.ActionNone, err
		}
		r.Touch(now, s.ttl)
		return repository.ActionSave, nil
	})
	if err != nil {
		err = s.translate(err)
		s.logRejection(logCtx, err, "Join room rejected")
		return nil, err
	}

	logCtx.Info("Guest joined room, match started")
	s.enter(ctx, userID, roomID)
	return room, nil
}

// SubmitMove 记录一次出拳，双方都出拳后立即结算本回合。
// RoundResult 只在触发结算的调用中非空。
func (s *RoomService) SubmitMove(ctx context.Context, roomID, userID, rawChoice string) (*domain.Room, *domain.RoundResult, error) {
	choice, err := domain.ParseChoice(rawChoice)
	if err != nil {
		return nil, nil, ErrInvalidChoice
	}
	roomID = strings.TrimSpace(roomID)
	userID = strings.TrimSpace(userID)
	if roomID == "" {
		return nil, nil, validationError("roomId is required")
	}
	if userID == "" {
		return nil, nil, validationError("userId is required")
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	now := s.now()
	var result *domain.RoundResult
	room, err := s.roomRepo.Update(ctx, roomID, func(r *domain.Room) (repository.UpdateAction, error) {
		result = nil
		if r.Expired(now, s.abandonAfter) {
			return repository.ActionNone, ErrRoomNotFound
		}
		res, err := r.SubmitMove(userID, choice)
		if err != nil {
			return repository.ActionNone, err
		}
		result = res
		r.Touch(now, s.ttl)
		return repository.ActionSave, nil
	})
	if err != nil {
		err = s.translate(err)
		s.logRejection(logCtx, err, "Move rejected")
		return nil, nil, err
	}

	if result == nil {
		logCtx.Debug("Move recorded, waiting for opponent")
		return room, nil, nil
	}
	logCtx.WithFields(logrus.Fields{
		"round":    result.Round,
		"winner":   result.Winner,
		"finished": result.Finished,
	}).Info("Round resolved")
	if result.Finished {
		s.release(ctx, room)
	}
	return room, result, nil
}

// LeaveRoom 处理玩家离开：房主离开删除房间，对手离开让房间回到等待状态。
// 用户不是参与者时返回 ErrRoomNotFound。
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID string) error {
	roomID = strings.TrimSpace(roomID)
	userID = strings.TrimSpace(userID)
	if roomID == "" {
		return validationError("roomId is required")
	}
	if userID == "" {
		return validationError("userId is required")
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	now := s.now()
	var role domain.Role
	room, err := s.roomRepo.Update(ctx, roomID, func(r *domain.Room) (repository.UpdateAction, error) {
		if r.Expired(now, s.abandonAfter) {
			return repository.ActionNone, ErrRoomNotFound
		}
		var ok bool
		role, ok = r.RoleOf(userID)
		if !ok {
			return repository.ActionNone, ErrRoomNotFound
		}
		if role == domain.RoleHost {
			return repository.ActionDelete, nil
		}
		r.RemoveGuest()
		r.Touch(now, s.ttl)
		return repository.ActionSave, nil
	})
	if err != nil {
		err = s.translate(err)
		s.logRejection(logCtx, err, "Leave room rejected")
		return err
	}

	if role == domain.RoleHost {
		logCtx.Info("Host left, room deleted")
		s.release(ctx, room)
		return nil
	}
	logCtx.Info("Guest left, room waiting for a new opponent")
	s.releaseUsers(ctx, userID)
	return nil
}

// SweepExpired 删除过期和被放弃的房间，返回删除数量。
func (s *RoomService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.roomRepo.DeleteExpired(ctx, s.now(), s.abandonAfter)
	if err != nil {
		return n, fmt.Errorf("sweep expired rooms: %w", err)
	}
	return n, nil
}

// translate 把 Update 返回的错误映射为服务层错误
func (s *RoomService) translate(err error) error {
	if mapped := mapDomainError(err); mapped != nil {
		return mapped
	}
	if errors.Is(err, ErrRoomNotFound) {
		return err
	}
	return mapRepoError(err, ErrRoomNotFound)
}

// logRejection 客户端造成的拒绝记 Warn，内部错误记 Error
func (s *RoomService) logRejection(logCtx *logrus.Entry, err error, msg string) {
	if errors.Is(err, ErrInternalServer) {
		logCtx.WithError(err).Error(msg)
		return
	}
	logCtx.WithError(err).Warn(msg)
}

// --- 在线关联，失败只记录日志，不影响房间操作 ---

func (s *RoomService) enter(ctx context.Context, userID, roomID string) {
	if s.participants == nil {
		return
	}
	if err := s.participants.EnterRoom(ctx, userID, roomID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).
			Warn("Failed to associate user with room")
	}
}

func (s *RoomService) release(ctx context.Context, room *domain.Room) {
	ids := []string{room.Host.ID}
	if room.Guest != nil {
		ids = append(ids, room.Guest.ID)
	}
	s.releaseUsers(ctx, ids...)
}

func (s *RoomService) releaseUsers(ctx context.Context, userIDs ...string) {
	if s.participants == nil {
		return
	}
	if err := s.participants.ReleaseRoom(ctx, userIDs...); err != nil {
		logrus.WithError(err).WithField("user_ids", userIDs).Warn("Failed to release users from room")
	}
}
