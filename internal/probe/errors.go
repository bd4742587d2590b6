package probe

import (
	"errors"
	"fmt"
)

var (
	ErrInvalid       = errors.New("invalid argument")
	ErrInvalidAction = fmt.Errorf("%w: unknown probe action", ErrInvalid)
	ErrInit          = errors.New("probe context not initialized")
	ErrNoElement     = errors.New("required element missing")
	ErrFatal         = errors.New("fatal probe failure")
	ErrNoValue       = errors.New("field has neither value nor attributes")
)

// Status 是进程外探针在线上返回的状态码
type Status int

const (
	StatusOK        Status = 0
	StatusInvalid   Status = 1
	StatusInit      Status = 2
	StatusNoElement Status = 3
	StatusFatal     Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalid:
		return "invalid argument"
	case StatusInit:
		return "uninitialized context"
	case StatusNoElement:
		return "missing element"
	case StatusFatal:
		return "fatal"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// StatusOf 把错误映射到线上状态码
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrInvalid):
		return StatusInvalid
	case errors.Is(err, ErrInit):
		return StatusInit
	case errors.Is(err, ErrNoElement):
		return StatusNoElement
	}
	return StatusFatal
}

// Err 是 StatusOf 的逆映射
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusInvalid:
		return ErrInvalid
	case StatusInit:
		return ErrInit
	case StatusNoElement:
		return ErrNoElement
	}
	return ErrFatal
}

// ReturnCode 返回分发器约定的整数返回值: 0 表示有可用结果 (包括软错误)，-1 表示致命失败
func ReturnCode(err error) int {
	if err != nil {
		return -1
	}
	return 0
}
