// Package envvar 是进程内的环境变量探针
package envvar

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/probe"
	"github.com/25smoking/ovalprobe/internal/sexp"
)

type Handler struct {
	probe.NopLifecycle

	resolver probe.VariableResolver
	logger   *zap.Logger
	lookup   func(string) (string, bool)
}

func New(resolver probe.VariableResolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{resolver: resolver, logger: logger, lookup: os.LookupEnv}
}

func (h *Handler) Eval(ctx context.Context, obj *oval.Object) (*probe.Cobj, error) {
	ent := obj.Entity("name")
	if ent == nil {
		return nil, fmt.Errorf("%w: %s has no name entity", probe.ErrNoElement, obj.ID)
	}

	names, varFlag, err := h.names(ctx, ent)
	if err != nil {
		return nil, err
	}
	if !varFlag.Usable() {
		return probe.NewCobj(varFlag), nil
	}

	cobj := probe.NewCobj(oval.FlagUnknown)
	for _, name := range names {
		value, ok := h.lookup(name)
		if !ok {
			h.logger.Debug("environment variable not set", zap.String("name", name))
			continue
		}
		item, err := probe.NewItem(oval.SubtypeEnvironmentVariable.ItemName(),
			probe.Field{Name: "name", Value: sexp.String(name)},
			probe.Field{Name: "value", Value: sexp.String(value)},
		)
		if err != nil {
			return nil, err
		}
		cobj.AddItem(item)
	}

	if len(cobj.Items()) == 0 {
		// 变量未设置是确定的答案，不是错误
		cobj.SetFlag(oval.FlagComplete)
	} else {
		cobj.ComputeFlag()
	}
	cobj.SetFlag(oval.Merge(cobj.Flag(), varFlag))
	return cobj, nil
}

// names 返回要查询的环境变量名，name 实体引用变量时返回变量的全部取值
func (h *Handler) names(ctx context.Context, ent *oval.Entity) ([]string, oval.Flag, error) {
	if v := ent.Variable; v != nil {
		if h.resolver == nil {
			return nil, oval.FlagError, nil
		}
		if err := h.resolver.QueryVariable(ctx, v); err != nil {
			h.logger.Warn("variable resolution failed", zap.String("variable", v.ID), zap.Error(err))
			return nil, oval.FlagError, nil
		}
		return v.ResolvedValues(), v.Flag(), nil
	}

	if ent.Datatype != oval.DatatypeString {
		return nil, oval.FlagError, fmt.Errorf("%w: name must be a string, got %s", probe.ErrInvalid, ent.Datatype)
	}
	name, ok := ent.Value.Str()
	if !ok {
		return nil, oval.FlagError, fmt.Errorf("%w: name entity has no string value", probe.ErrInvalid)
	}
	return []string{name}, oval.FlagComplete, nil
}
