// Package sexp 实现探针核心使用的结构化值 (structured value) 树。
//
// 一个节点要么是原子 (字符串 / 整数 / 浮点数)，要么是有序、异构的子节点列表。
// 构建器接收的子节点归父节点所有，调用方之后不应再把它挂到别的父节点上；
// 唯一的例外是通过 Share 标记的共享节点，它可以被多个兄弟节点同时引用。
package sexp

import (
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindList:
		return "list"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value 是树中的一个节点
type Value struct {
	kind   Kind
	str    string
	num    int64
	float  float64
	list   []*Value
	shared bool
}

func String(s string) *Value {
	return &Value{kind: KindString, str: s}
}

func Int(n int64) *Value {
	return &Value{kind: KindInt, num: n}
}

func Float(f float64) *Value {
	return &Value{kind: KindFloat, float: f}
}

// List 创建列表节点，nil 子节点会被跳过
func List(children ...*Value) *Value {
	v := &Value{kind: KindList, list: make([]*Value, 0, len(children))}
	return v.Append(children...)
}

// Share 把节点标记为共享节点并原样返回。
// 共享节点可以同时挂在多个父节点下，Clone 时按引用保留而不是深拷贝。
func Share(v *Value) *Value {
	if v != nil {
		v.shared = true
	}
	return v
}

func (v *Value) Kind() Kind {
	if v == nil {
		return 0
	}
	return v.kind
}

func (v *Value) IsShared() bool {
	return v != nil && v.shared
}

func (v *Value) IsList() bool {
	return v.Kind() == KindList
}

// Str 返回字符串原子的内容
func (v *Value) Str() (string, bool) {
	if v.Kind() != KindString {
		return "", false
	}
	return v.str, true
}

// Int64 返回整数原子的值
func (v *Value) Int64() (int64, bool) {
	if v.Kind() != KindInt {
		return 0, false
	}
	return v.num, true
}

// Float64 返回数值原子的值，整数会被转换
func (v *Value) Float64() (float64, bool) {
	switch v.Kind() {
	case KindFloat:
		return v.float, true
	case KindInt:
		return float64(v.num), true
	}
	return 0, false
}

// Text 返回原子的文本形式，列表返回空串
func (v *Value) Text() string {
	switch v.Kind() {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.float, 'g', -1, 64)
	}
	return ""
}

func (v *Value) Len() int {
	if v.Kind() != KindList {
		return 0
	}
	return len(v.list)
}

// Nth 返回第 i 个子节点，越界或非列表时返回 nil
func (v *Value) Nth(i int) *Value {
	if v.Kind() != KindList || i < 0 || i >= len(v.list) {
		return nil
	}
	return v.list[i]
}

// Children 返回子节点切片的副本，节点本身不复制
func (v *Value) Children() []*Value {
	if v.Kind() != KindList {
		return nil
	}
	out := make([]*Value, len(v.list))
	copy(out, v.list)
	return out
}

// Append 把子节点追加到列表末尾并接管其所有权
func (v *Value) Append(children ...*Value) *Value {
	if v.Kind() != KindList {
		panic("sexp: Append on " + v.Kind().String() + " node")
	}
	for _, c := range children {
		if c != nil {
			v.list = append(v.list, c)
		}
	}
	return v
}

// Clone 深拷贝整棵子树，共享节点按引用保留
func (v *Value) Clone() *Value {
	if v == nil || v.shared {
		return v
	}
	c := *v
	if v.kind == KindList {
		c.list = make([]*Value, len(v.list))
		for i, child := range v.list {
			c.list[i] = child.Clone()
		}
	}
	return &c
}

// Equal 只比较树的形状和原子内容
func Equal(a, b *Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindString:
		return a.str == b.str
	case KindInt:
		return a.num == b.num
	case KindFloat:
		return a.float == b.float
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String 以 S 表达式文本输出，用于日志和调试
func (v *Value) String() string {
	var sb strings.Builder
	v.write(&sb)
	return sb.String()
}

func (v *Value) write(sb *strings.Builder) {
	switch v.Kind() {
	case KindString:
		sb.WriteString(strconv.Quote(v.str))
	case KindInt, KindFloat:
		sb.WriteString(v.Text())
	case KindList:
		sb.WriteByte('(')
		for i, c := range v.list {
			if i > 0 {
				sb.WriteByte(' ')
			}
			c.write(sb)
		}
		sb.WriteByte(')')
	default:
		sb.WriteString("nil")
	}
}
