package probe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/25smoking/ovalprobe/internal/oval"
)

type loggerKey struct{}

// WithLogger 把 logger 放进 context，供 SafeDispatch 记录 panic
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom 取出 context 中的 logger，没有时返回 Nop
func LoggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}

// SafeDispatch 安全执行分发，捕获探针中的 panic 并转换为致命错误
func SafeDispatch(ctx context.Context, h Handler, subtype oval.Subtype, req Request) (cobj *Cobj, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			cobj = nil
			err = fmt.Errorf("%w: probe %s panicked: %v", ErrFatal, subtype, r)

			LoggerFrom(ctx).Error("探针执行 panic",
				zap.String("probe", string(subtype)),
				zap.Any("panic", r),
				zap.String("stack", stack),
			)
		}
	}()

	return Dispatch(ctx, h, subtype, req)
}
