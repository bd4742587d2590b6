// Package session 驱动一次收集会话：探针注册、变量求值和系统特征模型
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/probe"
	"github.com/25smoking/ovalprobe/internal/sysinfo"
)

var (
	ErrCycle          = errors.New("variable reference cycle")
	ErrUnknownObject  = errors.New("unknown object")
	ErrNoComponent    = errors.New("local variable without component")
	ErrUnknownVarKind = errors.New("unknown variable kind")
)

// Session 持有一组对象定义和按子类型注册的探针。
// 每个对象在会话内只求值一次，变量结果同样缓存到 Reset 为止。
type Session struct {
	id       string
	logger   *zap.Logger
	external map[string][]string
	collect  func(context.Context) (*sysinfo.Info, error)

	objects  map[string]*oval.Object
	order    []string
	handlers map[oval.Subtype]probe.Handler

	mu        sync.Mutex
	results   map[string]*probe.Cobj
	vars      map[string]*oval.Variable
	resolving map[string]bool
	info      *sysinfo.Info
	started   time.Time
}

type Option func(*Session)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithExternalVariables 提供 external 变量的取值，键为变量 id
func WithExternalVariables(values map[string][]string) Option {
	return func(s *Session) { s.external = values }
}

// WithSystemInfo 替换主机信息采集函数，nil 表示不采集
func WithSystemInfo(collect func(context.Context) (*sysinfo.Info, error)) Option {
	return func(s *Session) { s.collect = collect }
}

func New(objects []*oval.Object, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		logger:    zap.NewNop(),
		external:  map[string][]string{},
		collect:   sysinfo.Collect,
		objects:   make(map[string]*oval.Object, len(objects)),
		handlers:  map[oval.Subtype]probe.Handler{},
		results:   map[string]*probe.Cobj{},
		vars:      map[string]*oval.Variable{},
		resolving: map[string]bool{},
	}
	for _, o := range objects {
		if _, dup := s.objects[o.ID]; !dup {
			s.order = append(s.order, o.ID)
		}
		s.objects[o.ID] = o
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string { return s.id }

// Register 为一个子类型安装处理器，重复注册会覆盖
func (s *Session) Register(subtype oval.Subtype, h probe.Handler) {
	s.handlers[subtype] = h
}

func (s *Session) subtypes() []oval.Subtype {
	out := make([]oval.Subtype, 0, len(s.handlers))
	for st := range s.handlers {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Session) ctx(ctx context.Context) context.Context {
	return probe.WithLogger(ctx, s.logger)
}

// broadcast 把一个生命周期请求发给所有探针，失败不会中断其余探针
func (s *Session) broadcast(ctx context.Context, req probe.Request) error {
	ctx = s.ctx(ctx)
	var errs []error
	for _, st := range s.subtypes() {
		if _, err := probe.SafeDispatch(ctx, s.handlers[st], st, req); err != nil {
			s.logger.Warn("probe lifecycle failed",
				zap.String("probe", string(st)),
				zap.Stringer("action", req.Action()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s %s: %w", st, req.Action(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) Init(ctx context.Context) error {
	return s.broadcast(ctx, probe.InitRequest{})
}

// Open 打开所有探针并采集主机信息
func (s *Session) Open(ctx context.Context) error {
	err := s.broadcast(ctx, probe.OpenRequest{})

	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	if s.collect != nil {
		info, cerr := s.collect(ctx)
		if cerr != nil {
			s.logger.Warn("system info unavailable", zap.Error(cerr))
		} else {
			s.mu.Lock()
			s.info = info
			s.mu.Unlock()
		}
	}
	return err
}

func (s *Session) Close(ctx context.Context) error {
	return s.broadcast(ctx, probe.CloseRequest{})
}

// Reset 清空收集结果和变量缓存，再通知各探针
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.results = map[string]*probe.Cobj{}
	for _, v := range s.vars {
		v.Reset()
	}
	s.vars = map[string]*oval.Variable{}
	s.mu.Unlock()

	return s.broadcast(ctx, probe.ResetRequest{})
}

func (s *Session) Free(ctx context.Context) error {
	return s.broadcast(ctx, probe.FreeRequest{})
}

func (s *Session) cached(id string) (*probe.Cobj, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.results[id]
	return c, ok
}

func (s *Session) store(id string, c *probe.Cobj) {
	s.mu.Lock()
	s.results[id] = c
	s.mu.Unlock()
}

// Eval 对一个对象求值，结果按对象 id 缓存。
// 探针返回错误时仍记录一个 ERROR 收集对象，错误同时返回给调用方。
func (s *Session) Eval(ctx context.Context, obj *oval.Object) (*probe.Cobj, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: nil object", probe.ErrInvalid)
	}
	if c, ok := s.cached(obj.ID); ok {
		return c, nil
	}

	h, ok := s.handlers[obj.Subtype]
	if !ok {
		c := probe.NewCobj(oval.FlagNotCollected)
		c.AddMessage(oval.MessageWarning, fmt.Sprintf("no probe for %s", obj.Subtype))
		s.store(obj.ID, c)
		return c, nil
	}

	// 进程外探针只接收已解析的变量值，这里先求值
	if c, err := s.resolveEntities(ctx, obj); err != nil || c != nil {
		if err != nil {
			c = failed(err)
		}
		s.store(obj.ID, c)
		return c, err
	}

	c, err := probe.SafeDispatch(s.ctx(ctx), h, obj.Subtype, probe.EvalRequest{Object: obj})
	if err != nil {
		s.logger.Warn("object evaluation failed", zap.String("object", obj.ID), zap.Error(err))
		c = failed(err)
		s.store(obj.ID, c)
		return c, err
	}

	s.logger.Debug("object collected",
		zap.String("object", obj.ID),
		zap.Stringer("flag", c.Flag()),
		zap.Int("items", len(c.Items())),
	)
	s.store(obj.ID, c)
	return c, nil
}

func failed(err error) *probe.Cobj {
	c := probe.NewCobj(oval.FlagError)
	c.AddMessage(oval.MessageError, err.Error())
	return c
}

// resolveEntities 解析对象引用的所有变量。
// 某个变量的标志不可用时返回只带该标志的收集对象。
func (s *Session) resolveEntities(ctx context.Context, obj *oval.Object) (*probe.Cobj, error) {
	for _, e := range obj.Entities {
		v := e.Variable
		if v == nil {
			continue
		}
		if err := s.QueryVariable(ctx, v); err != nil {
			return nil, err
		}
		if !v.Flag().Usable() {
			c := probe.NewCobj(v.Flag())
			c.AddMessage(oval.MessageWarning, fmt.Sprintf("variable %s: %s", v.ID, v.Flag()))
			return c, nil
		}
	}
	return nil, nil
}

// QueryVariable 求值一个变量并缓存结果，实现 probe.VariableResolver
func (s *Session) QueryVariable(ctx context.Context, v *oval.Variable) error {
	s.mu.Lock()
	if v.Resolved() {
		s.mu.Unlock()
		return nil
	}
	if s.resolving[v.ID] {
		s.mu.Unlock()
		return fmt.Errorf("%w at %s", ErrCycle, v.ID)
	}
	s.resolving[v.ID] = true
	s.vars[v.ID] = v
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.resolving, v.ID)
		s.mu.Unlock()
	}()

	flag, values, err := s.evaluate(ctx, v)
	if err != nil {
		return fmt.Errorf("variable %s: %w", v.ID, err)
	}

	s.mu.Lock()
	v.SetResult(flag, values)
	s.mu.Unlock()

	s.logger.Debug("variable resolved",
		zap.String("variable", v.ID),
		zap.Stringer("flag", flag),
		zap.Int("values", len(values)),
	)
	return nil
}

func (s *Session) evaluate(ctx context.Context, v *oval.Variable) (oval.Flag, []string, error) {
	switch v.Kind {
	case oval.VariableConstant:
		return oval.FlagComplete, v.Values, nil

	case oval.VariableExternal:
		values, ok := s.external[v.ID]
		if !ok {
			s.logger.Warn("external variable has no value", zap.String("variable", v.ID))
			return oval.FlagError, nil, nil
		}
		return oval.FlagComplete, values, nil

	case oval.VariableLocal:
		if v.Component == nil {
			return oval.FlagError, nil, ErrNoComponent
		}
		obj, ok := s.objects[v.Component.ObjectRef]
		if !ok {
			return oval.FlagError, nil, fmt.Errorf("%w %q", ErrUnknownObject, v.Component.ObjectRef)
		}
		c, err := s.Eval(ctx, obj)
		if err != nil {
			return oval.FlagError, nil, err
		}
		var values []string
		for _, it := range c.Items() {
			if fv := it.FieldValue(v.Component.ItemField); fv != nil && !fv.IsList() {
				values = append(values, fv.Text())
			}
		}
		return c.Flag(), values, nil
	}
	return oval.FlagError, nil, fmt.Errorf("%w %d", ErrUnknownVarKind, v.Kind)
}

// EvalAll 按定义顺序求值所有对象，单个对象失败只记录日志
func (s *Session) EvalAll(ctx context.Context) error {
	for _, id := range s.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, _ = s.Eval(ctx, s.objects[id])
	}
	return nil
}
