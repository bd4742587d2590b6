package probe

import (
	"context"
	"fmt"

	"github.com/25smoking/ovalprobe/internal/oval"
)

type Action int

const (
	ActionInit Action = iota + 1
	ActionOpen
	ActionClose
	ActionEval
	ActionReset
	ActionFree
)

func (a Action) String() string {
	switch a {
	case ActionInit:
		return "init"
	case ActionOpen:
		return "open"
	case ActionClose:
		return "close"
	case ActionEval:
		return "eval"
	case ActionReset:
		return "reset"
	case ActionFree:
		return "free"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Request 是分发器的请求，每个动作一个变体，只携带该动作需要的参数
type Request interface {
	Action() Action
	isRequest()
}

type (
	InitRequest  struct{}
	OpenRequest  struct{}
	CloseRequest struct{}
	ResetRequest struct{}
	FreeRequest  struct{}

	// EvalRequest 请求对一个对象定义求值
	EvalRequest struct {
		Object *oval.Object
	}
)

func (InitRequest) Action() Action  { return ActionInit }
func (OpenRequest) Action() Action  { return ActionOpen }
func (CloseRequest) Action() Action { return ActionClose }
func (EvalRequest) Action() Action  { return ActionEval }
func (ResetRequest) Action() Action { return ActionReset }
func (FreeRequest) Action() Action  { return ActionFree }

func (InitRequest) isRequest()  {}
func (OpenRequest) isRequest()  {}
func (CloseRequest) isRequest() {}
func (EvalRequest) isRequest()  {}
func (ResetRequest) isRequest() {}
func (FreeRequest) isRequest()  {}

// NewRequest 根据动作码构造请求，未知动作码返回 ErrInvalidAction
func NewRequest(a Action, obj *oval.Object) (Request, error) {
	switch a {
	case ActionInit:
		return InitRequest{}, nil
	case ActionOpen:
		return OpenRequest{}, nil
	case ActionClose:
		return CloseRequest{}, nil
	case ActionEval:
		return EvalRequest{Object: obj}, nil
	case ActionReset:
		return ResetRequest{}, nil
	case ActionFree:
		return FreeRequest{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidAction, a)
}

// Handler 是每种探针实现的动作集合。
// 处理器自身就是 INIT 返回的上下文，后续动作都作用在它上面。
type Handler interface {
	Init(ctx context.Context) error
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	// Eval 返回 nil error 表示产生了可用结果 (可能是软错误结果)
	Eval(ctx context.Context, obj *oval.Object) (*Cobj, error)
	Reset(ctx context.Context) error
	Free(ctx context.Context) error
}

// NopLifecycle 为不持有资源的探针提供空的生命周期动作
type NopLifecycle struct{}

func (NopLifecycle) Init(context.Context) error  { return nil }
func (NopLifecycle) Open(context.Context) error  { return nil }
func (NopLifecycle) Close(context.Context) error { return nil }
func (NopLifecycle) Reset(context.Context) error { return nil }
func (NopLifecycle) Free(context.Context) error  { return nil }

// Dispatch 把请求路由到处理器的对应动作。
// 只有 EVAL 返回收集对象；无法识别的请求在调用任何探针逻辑之前以 ErrInvalidAction 失败。
func Dispatch(ctx context.Context, h Handler, subtype oval.Subtype, req Request) (*Cobj, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: no handler for %s", ErrInit, subtype)
	}

	switch r := req.(type) {
	case InitRequest:
		return nil, h.Init(ctx)
	case OpenRequest:
		return nil, h.Open(ctx)
	case CloseRequest:
		return nil, h.Close(ctx)
	case ResetRequest:
		return nil, h.Reset(ctx)
	case FreeRequest:
		return nil, h.Free(ctx)
	case EvalRequest:
		if r.Object == nil {
			return nil, fmt.Errorf("%w: eval without object", ErrInvalid)
		}
		if r.Object.Subtype != subtype {
			return nil, fmt.Errorf("%w: %s object sent to %s probe", ErrInvalid, r.Object.Subtype, subtype)
		}
		cobj, err := h.Eval(ctx, r.Object)
		if err != nil {
			return nil, err
		}
		if cobj == nil {
			return nil, fmt.Errorf("%w: %s probe returned no result", ErrFatal, subtype)
		}
		return cobj, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidAction, req)
}
