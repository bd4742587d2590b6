package oval

import (
	"errors"
	"fmt"

	"github.com/25smoking/ovalprobe/internal/sexp"
)

// VarRefEntity 是对象中引用变量的保留实体名
const VarRefEntity = "var_ref"

var ErrAmbiguousEntity = errors.New("entity has both a literal value and a variable reference")

type Operation string

const (
	OpEquals       Operation = "equals"
	OpNotEqual     Operation = "not equal"
	OpPatternMatch Operation = "pattern match"
)

// Attr 是实体上的一个有序属性
type Attr struct {
	Name  string
	Value string
}

// Entity 是对象的一个命名字段。
// Value 与 Variable 至多设置一个；两者都为空时实体只携带属性 (例如 behaviors)。
type Entity struct {
	Name      string
	Datatype  Datatype
	Operation Operation
	Value     *sexp.Value
	Variable  *Variable
	Attrs     []Attr
}

func (e *Entity) Validate() error {
	if e.Value != nil && e.Variable != nil {
		return fmt.Errorf("%s: %w", e.Name, ErrAmbiguousEntity)
	}
	return nil
}

func (e *Entity) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Object 描述要收集什么
type Object struct {
	ID       string
	Subtype  Subtype
	Comment  string
	Entities []*Entity
}

// Entity 返回第一个同名实体
func (o *Object) Entity(name string) *Entity {
	for _, e := range o.Entities {
		if e.Name == name {
			return e
		}
	}
	return nil
}

func (o *Object) Validate() error {
	if o.ID == "" {
		return errors.New("object without id")
	}
	for _, e := range o.Entities {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("object %s: %w", o.ID, err)
		}
	}
	return nil
}

type VariableKind int

const (
	VariableConstant VariableKind = iota
	VariableExternal
	VariableLocal
)

func (k VariableKind) String() string {
	switch k {
	case VariableConstant:
		return "constant"
	case VariableExternal:
		return "external"
	case VariableLocal:
		return "local"
	}
	return "unknown"
}

// Component 让局部变量取另一个对象收集到的条目字段
type Component struct {
	ObjectRef string
	ItemField string
}

// Variable 由定义层创建，第一次被引用时求值，之后在会话内缓存结果
type Variable struct {
	ID        string
	Kind      VariableKind
	Datatype  Datatype
	Values    []string
	Component *Component

	resolved bool
	flag     Flag
	values   []string
}

func (v *Variable) Resolved() bool { return v.resolved }

// Flag 返回求值后的收集标志，未求值时为 FlagUnknown
func (v *Variable) Flag() Flag { return v.flag }

func (v *Variable) ResolvedValues() []string {
	out := make([]string, len(v.values))
	copy(out, v.values)
	return out
}

// SetResult 记录一次求值结果
func (v *Variable) SetResult(flag Flag, values []string) {
	v.resolved = true
	v.flag = flag
	v.values = append(v.values[:0], values...)
}

// Reset 丢弃缓存的求值结果
func (v *Variable) Reset() {
	v.resolved = false
	v.flag = FlagUnknown
	v.values = nil
}
