package probe

import (
	"context"

	"github.com/25smoking/ovalprobe/internal/oval"
)

// VariableResolver 对变量求值并把结果记录在变量上。
// 实现可以递归求值其他对象；结果在会话内缓存，重复调用不会重新求值。
type VariableResolver interface {
	QueryVariable(ctx context.Context, v *oval.Variable) error
}
