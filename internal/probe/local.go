package probe

import (
	"context"
	"fmt"
	"sync"

	"github.com/25smoking/ovalprobe/internal/oval"
)

// LocalHandler 在本进程内运行一个进程外约定的探针。
// 对象仍按线上格式编码后交给 Main，与子进程模式的行为一致。
type LocalHandler struct {
	init InitFunc

	mu sync.Mutex
	lc Lifecycle
}

func NewLocalHandler(init InitFunc) *LocalHandler {
	return &LocalHandler{init: init}
}

func (h *LocalHandler) Init(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.lc != nil {
		return nil
	}
	lc, err := h.init()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}
	h.lc = lc
	return nil
}

func (h *LocalHandler) Open(context.Context) error  { return nil }
func (h *LocalHandler) Close(context.Context) error { return nil }
func (h *LocalHandler) Reset(context.Context) error { return nil }

func (h *LocalHandler) Eval(ctx context.Context, obj *oval.Object) (*Cobj, error) {
	h.mu.Lock()
	lc := h.lc
	h.mu.Unlock()

	if lc == nil {
		return nil, ErrInit
	}
	in, err := ObjectValue(obj)
	if err != nil {
		return nil, err
	}
	out := NewCobj(oval.FlagUnknown)
	if err := lc.Main(ctx, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *LocalHandler) Free(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.lc != nil {
		h.lc.Fini()
		h.lc = nil
	}
	return nil
}
