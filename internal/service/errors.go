package service

import (
	"errors"
	"fmt"

	"rps-arena/internal/domain"
	"rps-arena/internal/repository"
)

// 服务层错误分类，HTTP 层按 errors.Is 映射状态码。
var (
	ErrValidation      = errors.New("validation failed")
	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrForbidden       = errors.New("forbidden")
	ErrRoomFull        = errors.New("room is full")
	ErrInvalidState    = errors.New("room is not in a valid state for this operation")
	ErrInternalServer  = errors.New("internal server error")
)

// 具体错误包装所属分类
var (
	ErrInvalidPassword = fmt.Errorf("%w: invalid room password", ErrForbidden)
	ErrNotParticipant  = fmt.Errorf("%w: user is not a participant of this room", ErrForbidden)
	ErrSelfJoin        = fmt.Errorf("%w: host cannot join own room", ErrValidation)
	ErrInvalidChoice   = fmt.Errorf("%w: choice must be rock, paper or scissors", ErrValidation)
	ErrNotWaiting      = fmt.Errorf("%w: room is not waiting for players", ErrInvalidState)
	ErrNotInProgress   = fmt.Errorf("%w: room is not in progress", ErrInvalidState)
)

// validationError 生成带字段说明的校验错误
func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// mapRepoError 将仓库层的错误映射到服务层定义的错误。
// notFound 是该资源不存在时使用的服务层错误。
func mapRepoError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	// 重试次数用尽、连接失败等都属于内部错误
	return ErrInternalServer
}

// mapDomainError 将房间规则错误映射到服务层定义的错误，无法识别时返回 nil。
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, domain.ErrRoomFull):
		return ErrRoomFull
	case errors.Is(err, domain.ErrSelfJoin):
		return ErrSelfJoin
	case errors.Is(err, domain.ErrNotJoinable):
		return ErrNotWaiting
	case errors.Is(err, domain.ErrWrongPassword):
		return ErrInvalidPassword
	case errors.Is(err, domain.ErrNotParticipant):
		return ErrNotParticipant
	case errors.Is(err, domain.ErrNotInProgress):
		return ErrNotInProgress
	case errors.Is(err, domain.ErrInvalidChoice):
		return ErrInvalidChoice
	}
	return nil
}
