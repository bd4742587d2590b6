package probe

import (
	"fmt"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/sexp"
)

// 属性名
const (
	AttrStatus  = "status"
	AttrMessage = "message"
)

// Attr 是字段或条目上的一个属性
type Attr struct {
	Name  string
	Value *sexp.Value
}

func NewAttribute(name string, value *sexp.Value) Attr {
	return Attr{Name: name, Value: value}
}

// ErrorAttrs 构造 status=ERROR, message=<msg> 属性对，用于表示单个字段的软错误
func ErrorAttrs(msg string) []Attr {
	return []Attr{
		NewAttribute(AttrStatus, sexp.Int(int64(oval.FlagError))),
		NewAttribute(AttrMessage, sexp.String(msg)),
	}
}

// Field 是条目中的一个字段: (name, attrs, value)
type Field struct {
	Name  string
	Attrs []Attr
	Value *sexp.Value
}

// Attr 返回同名属性的值
func (f Field) Attr(name string) *sexp.Value {
	for _, a := range f.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return nil
}

func (f Field) hasError() bool {
	n, ok := f.Attr(AttrStatus).Int64()
	return ok && oval.Flag(n) == oval.FlagError
}

// Item 是一条收集到的事实，编码为 (name, (item-attrs...), (fields...))。
// 构建完成后不再修改，唯一例外是 AttachShared 追加共享实体。
type Item struct {
	node *sexp.Value
}

// NewItem 根据字段列表构建条目。
// 任一字段既没有值也没有属性时视为上游构造失败，返回 ErrNoValue。
// 带 status=ERROR 属性的字段会把条目标志降为 INCOMPLETE。
func NewItem(name string, fields ...Field) (*Item, error) {
	flag := oval.FlagComplete
	list := sexp.List()

	for _, f := range fields {
		if f.Name == "" || (f.Value == nil && len(f.Attrs) == 0) {
			return nil, fmt.Errorf("item %s field %q: %w", name, f.Name, ErrNoValue)
		}
		if f.hasError() {
			flag = oval.FlagIncomplete
		}
		list.Append(fieldNode(f))
	}

	node := sexp.List(
		sexp.String(name),
		attrsNode([]Attr{NewAttribute(AttrStatus, sexp.Int(int64(flag)))}),
		list,
	)
	return &Item{node: node}, nil
}

// ItemFromValue 包装一个线上解码得到的条目节点
func ItemFromValue(v *sexp.Value) (*Item, error) {
	if v.Len() != 3 || !v.Nth(1).IsList() || !v.Nth(2).IsList() {
		return nil, fmt.Errorf("%w: malformed item %s", ErrInvalid, v)
	}
	if _, ok := v.Nth(0).Str(); !ok {
		return nil, fmt.Errorf("%w: item name is not a string", ErrInvalid)
	}
	return &Item{node: v}, nil
}

func fieldNode(f Field) *sexp.Value {
	return sexp.List(sexp.String(f.Name), attrsNode(f.Attrs), f.Value)
}

func attrsNode(attrs []Attr) *sexp.Value {
	l := sexp.List()
	for _, a := range attrs {
		l.Append(sexp.List(sexp.String(a.Name), a.Value))
	}
	return l
}

func decodeAttrs(v *sexp.Value) []Attr {
	var attrs []Attr
	for _, a := range v.Children() {
		name, _ := a.Nth(0).Str()
		attrs = append(attrs, Attr{Name: name, Value: a.Nth(1)})
	}
	return attrs
}

// Value 返回条目的结构化值节点
func (it *Item) Value() *sexp.Value { return it.node }

func (it *Item) Name() string {
	s, _ := it.node.Nth(0).Str()
	return s
}

// Flag 返回条目的收集标志
func (it *Item) Flag() oval.Flag {
	for _, a := range decodeAttrs(it.node.Nth(1)) {
		if a.Name != AttrStatus {
			continue
		}
		if n, ok := a.Value.Int64(); ok {
			if f := oval.Flag(n); f.Valid() {
				return f
			}
			return oval.FlagError
		}
	}
	return oval.FlagComplete
}

// Fields 按插入顺序读回所有字段
func (it *Item) Fields() []Field {
	var fields []Field
	for _, n := range it.node.Nth(2).Children() {
		name, _ := n.Nth(0).Str()
		fields = append(fields, Field{
			Name:  name,
			Attrs: decodeAttrs(n.Nth(1)),
			Value: n.Nth(2),
		})
	}
	return fields
}

// Entity 返回第一个同名字段的节点本身
func (it *Item) Entity(name string) *sexp.Value {
	for _, n := range it.node.Nth(2).Children() {
		if s, _ := n.Nth(0).Str(); s == name {
			return n
		}
	}
	return nil
}

// FieldValue 返回第一个同名字段的值
func (it *Item) FieldValue(name string) *sexp.Value {
	return it.Entity(name).Nth(2)
}

// NewSharedEntity 构建一个可以挂到多个兄弟条目上的共享实体
func NewSharedEntity(name string, value *sexp.Value) *sexp.Value {
	return sexp.Share(fieldNode(Field{Name: name, Value: value}))
}

// AttachShared 把共享实体按引用追加到条目的字段列表
func (it *Item) AttachShared(ent *sexp.Value) error {
	if !ent.IsShared() {
		return fmt.Errorf("%w: entity %s is not shared", ErrInvalid, ent)
	}
	it.node.Nth(2).Append(ent)
	return nil
}
