package probe

import (
	"fmt"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/sexp"
)

// Message 是收集对象上的诊断消息
type Message struct {
	Level oval.MessageLevel
	Text  string
}

// Cobj 是一次对象求值的结果: 聚合标志、条目和诊断消息。
// 交给调用方之后核心不再修改它。
type Cobj struct {
	flag  oval.Flag
	items []*Item
	msgs  []Message
}

func NewCobj(flag oval.Flag) *Cobj {
	return &Cobj{flag: flag}
}

func (c *Cobj) Flag() oval.Flag { return c.flag }

func (c *Cobj) SetFlag(f oval.Flag) { c.flag = f }

// AddItem 接管条目的所有权并按插入顺序追加
func (c *Cobj) AddItem(it *Item) {
	if it != nil {
		c.items = append(c.items, it)
	}
}

func (c *Cobj) AddMessage(level oval.MessageLevel, text string) {
	c.msgs = append(c.msgs, Message{Level: level, Text: text})
}

func (c *Cobj) Items() []*Item {
	out := make([]*Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cobj) Messages() []Message {
	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// ComputeFlag 根据条目标志重新计算聚合标志并返回。
//
// 没有条目时保留调用方预置的标志，未预置 (UNKNOWN) 则为 ERROR。
// 有条目时取优先级最高者: ERROR > INCOMPLETE > COMPLETE > UNKNOWN > NOT_COLLECTED > NOT_APPLICABLE。
func (c *Cobj) ComputeFlag() oval.Flag {
	if len(c.items) == 0 {
		if c.flag == oval.FlagUnknown {
			c.flag = oval.FlagError
		}
		return c.flag
	}

	agg := oval.FlagNotApplicable
	for _, it := range c.items {
		agg = oval.Merge(agg, it.Flag())
	}
	c.flag = agg
	return agg
}

// Value 编码为线上信封 (flag (item...) ((level text)...))
func (c *Cobj) Value() *sexp.Value {
	items := sexp.List()
	for _, it := range c.items {
		items.Append(it.node.Clone())
	}
	msgs := sexp.List()
	for _, m := range c.msgs {
		msgs.Append(sexp.List(sexp.Int(int64(m.Level)), sexp.String(m.Text)))
	}
	return sexp.List(sexp.Int(int64(c.flag)), items, msgs)
}

// CobjFromValue 解码 Value 产生的信封
func CobjFromValue(v *sexp.Value) (*Cobj, error) {
	flag, ok := v.Nth(0).Int64()
	if v.Len() != 3 || !ok {
		return nil, fmt.Errorf("%w: malformed collected object %s", ErrInvalid, v)
	}

	if !oval.Flag(flag).Valid() {
		return nil, fmt.Errorf("%w: collected object flag %d", ErrInvalid, flag)
	}
	c := NewCobj(oval.Flag(flag))
	for _, n := range v.Nth(1).Children() {
		it, err := ItemFromValue(n)
		if err != nil {
			return nil, err
		}
		c.AddItem(it)
	}
	for _, n := range v.Nth(2).Children() {
		level, _ := n.Nth(0).Int64()
		text, _ := n.Nth(1).Str()
		c.AddMessage(oval.MessageLevel(level), text)
	}
	return c, nil
}
