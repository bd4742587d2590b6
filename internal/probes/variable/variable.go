// Package variable 实现 variable_object 的求值: 把变量解析为零个或多个值，每个值一个条目。
package variable

import (
	"context"

	"go.uber.org/zap"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/probe"
	"github.com/25smoking/ovalprobe/internal/sexp"
)

type Handler struct {
	probe.NopLifecycle

	resolver probe.VariableResolver
	logger   *zap.Logger
}

func New(resolver probe.VariableResolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{resolver: resolver, logger: logger}
}

// objectVariable 在对象的实体中查找保留的 var_ref 实体
func objectVariable(obj *oval.Object) *oval.Variable {
	for _, e := range obj.Entities {
		if e.Name == oval.VarRefEntity {
			return e.Variable
		}
	}
	return nil
}

// Eval 求值失败时返回只有标志、没有条目的结果，而不是错误
func (h *Handler) Eval(ctx context.Context, obj *oval.Object) (*probe.Cobj, error) {
	v := objectVariable(obj)
	if v == nil {
		h.logger.Warn("variable object without var_ref", zap.String("object", obj.ID))
		return probe.NewCobj(oval.FlagError), nil
	}
	if h.resolver == nil {
		return probe.NewCobj(oval.FlagError), nil
	}
	if err := h.resolver.QueryVariable(ctx, v); err != nil {
		h.logger.Warn("variable resolution failed", zap.String("variable", v.ID), zap.Error(err))
		return probe.NewCobj(oval.FlagError), nil
	}

	flag := v.Flag()
	if !flag.Usable() {
		return probe.NewCobj(flag), nil
	}

	values := v.ResolvedValues()
	cobj := probe.NewCobj(oval.FlagUnknown)

	// 同一批条目都来自这个变量，引用实体只构造一次
	ref := probe.NewSharedEntity(oval.VarRefEntity, sexp.String(v.ID))

	for _, text := range values {
		field := probe.Field{Name: "value"}
		if node, err := v.Datatype.Coerce(text); err != nil {
			field.Attrs = probe.ErrorAttrs(err.Error())
		} else {
			field.Value = node
		}

		item, err := probe.NewItem(oval.SubtypeVariable.ItemName(), field)
		if err != nil {
			return nil, err
		}
		if err := item.AttachShared(ref); err != nil {
			return nil, err
		}
		cobj.AddItem(item)
	}

	if len(values) == 0 {
		cobj.SetFlag(flag)
		return cobj, nil
	}
	cobj.ComputeFlag()
	// 变量本身不完整时结果也不能声称完整
	cobj.SetFlag(oval.Merge(cobj.Flag(), flag))
	return cobj, nil
}
