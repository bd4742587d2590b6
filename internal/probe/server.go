package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/sexp"
)

// Lifecycle 是进程外探针的 main/fini 约定，由 InitFunc 创建
type Lifecycle interface {
	// Main 对一个对象求值并写入 out，同一实例上不会并发执行
	Main(ctx context.Context, in *sexp.Value, out *Cobj) error
	Fini()
}

// InitFunc 获取探针全局资源，失败时不返回上下文
type InitFunc func() (Lifecycle, error)

// Server 在独立进程中运行一个探针，从 r 读请求帧，向 w 写响应帧
type Server struct {
	Subtype oval.Subtype
	Init    InitFunc
	Logger  *zap.Logger

	lc Lifecycle
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Serve 处理请求直到对端关闭输入，退出前释放 INIT 获取的资源
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	defer s.fini()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := sexp.ReadFrame(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read request: %w", err)
		}

		if err := sexp.WriteFrame(w, s.handle(ctx, req)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

func (s *Server) handle(ctx context.Context, v *sexp.Value) *sexp.Value {
	action, subtype, objNode, err := decodeRequest(v)
	if err != nil {
		return encodeResponse(err, nil)
	}
	if subtype != s.Subtype {
		return encodeResponse(fmt.Errorf("%w: %s request sent to %s probe", ErrInvalid, subtype, s.Subtype), nil)
	}

	// 动作码的合法性只在 NewRequest 中判断
	req, err := NewRequest(action, nil)
	if err != nil {
		return encodeResponse(err, nil)
	}
	s.logger().Debug("probe request", zap.Stringer("action", action))

	switch req.(type) {
	case InitRequest:
		if s.lc != nil {
			return encodeResponse(nil, nil)
		}
		lc, err := s.Init()
		if err != nil {
			return encodeResponse(fmt.Errorf("%w: %v", ErrInit, err), nil)
		}
		s.lc = lc
		return encodeResponse(nil, nil)
	case FreeRequest:
		s.fini()
		return encodeResponse(nil, nil)
	case EvalRequest:
		if s.lc == nil {
			return encodeResponse(ErrInit, nil)
		}
		if objNode == nil {
			return encodeResponse(fmt.Errorf("%w: eval without object", ErrInvalid), nil)
		}
		out := NewCobj(oval.FlagUnknown)
		if err := s.runMain(ctx, objNode, out); err != nil {
			s.logger().Warn("probe main failed", zap.Error(err))
			return encodeResponse(err, nil)
		}
		return encodeResponse(nil, out)
	}
	// OPEN / CLOSE / RESET 在进程外探针上没有会话状态
	return encodeResponse(nil, nil)
}

func (s *Server) runMain(ctx context.Context, in *sexp.Value, out *Cobj) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: probe main panicked: %v", ErrFatal, r)
			s.logger().Error("探针执行 panic", zap.Any("panic", r), zap.String("stack", string(debug.Stack())))
		}
	}()
	return s.lc.Main(ctx, in, out)
}

func (s *Server) fini() {
	if s.lc != nil {
		s.lc.Fini()
		s.lc = nil
	}
}
