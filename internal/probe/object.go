package probe

import (
	"fmt"
	"strings"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/sexp"
)

const (
	AttrID        = "id"
	AttrDatatype  = "datatype"
	AttrOperation = "operation"
	AttrVarRef    = oval.VarRefEntity
)

// ObjectValue 把对象定义编码为 (name (("id" id)) (entity...))，实体与条目字段同构。
// 引用变量的实体被展开成已求值的值列表并带上 var_ref 属性，变量未求值时返回 ErrInvalid。
func ObjectValue(obj *oval.Object) (*sexp.Value, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: nil object", ErrInvalid)
	}

	ents := sexp.List()
	for _, e := range obj.Entities {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}

		attrs := []Attr{NewAttribute(AttrDatatype, sexp.String(e.Datatype.String()))}
		if e.Operation != "" {
			attrs = append(attrs, NewAttribute(AttrOperation, sexp.String(string(e.Operation))))
		}
		for _, a := range e.Attrs {
			attrs = append(attrs, NewAttribute(a.Name, sexp.String(a.Value)))
		}

		value := e.Value.Clone()
		if v := e.Variable; v != nil {
			if !v.Resolved() {
				return nil, fmt.Errorf("%w: variable %s referenced by %s is not resolved", ErrInvalid, v.ID, e.Name)
			}
			attrs = append(attrs, NewAttribute(AttrVarRef, sexp.String(v.ID)))
			value = sexp.List()
			for _, text := range v.ResolvedValues() {
				node, err := e.Datatype.Coerce(text)
				if err != nil {
					return nil, fmt.Errorf("%w: variable %s: %v", ErrInvalid, v.ID, err)
				}
				value.Append(node)
			}
		}

		ents.Append(fieldNode(Field{Name: e.Name, Attrs: attrs, Value: value}))
	}

	head := attrsNode([]Attr{NewAttribute(AttrID, sexp.String(obj.ID))})
	return sexp.List(sexp.String(obj.Subtype.ObjectName()), head, ents), nil
}

// ObjectFromValue 解码 ObjectValue 的结果。
// 变量展开的实体 Value 为列表节点，其 var_ref 保留在 Attrs 中。
func ObjectFromValue(v *sexp.Value) (*oval.Object, error) {
	name, ok := v.Nth(0).Str()
	if !ok || v.Len() != 3 || !strings.HasSuffix(name, "_object") {
		return nil, fmt.Errorf("%w: malformed object %s", ErrInvalid, v)
	}

	obj := &oval.Object{Subtype: oval.Subtype(strings.TrimSuffix(name, "_object"))}
	for _, a := range decodeAttrs(v.Nth(1)) {
		if a.Name == AttrID {
			obj.ID = a.Value.Text()
		}
	}

	for _, n := range v.Nth(2).Children() {
		ename, _ := n.Nth(0).Str()
		e := &oval.Entity{Name: ename, Value: n.Nth(2)}
		for _, a := range decodeAttrs(n.Nth(1)) {
			switch a.Name {
			case AttrDatatype:
				dt, err := oval.ParseDatatype(a.Value.Text())
				if err != nil {
					return nil, fmt.Errorf("%w: entity %s: %v", ErrInvalid, ename, err)
				}
				e.Datatype = dt
			case AttrOperation:
				e.Operation = oval.Operation(a.Value.Text())
			default:
				e.Attrs = append(e.Attrs, oval.Attr{Name: a.Name, Value: a.Value.Text()})
			}
		}
		obj.Entities = append(obj.Entities, e)
	}
	return obj, nil
}

// EntityValues 返回实体的候选值: 原子返回自身，变量展开的列表返回其元素
func EntityValues(e *oval.Entity) []*sexp.Value {
	if e == nil || e.Value == nil {
		return nil
	}
	if e.Value.IsList() {
		return e.Value.Children()
	}
	return []*sexp.Value{e.Value}
}
