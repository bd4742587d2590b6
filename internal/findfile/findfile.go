// Package findfile 按路径、文件名模式和 OVAL behaviors 匹配文件，每个匹配回调一次。
package findfile

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/25smoking/ovalprobe/internal/oval"
)

// behaviors 属性名
const (
	AttrMaxDepth          = "max_depth"
	AttrRecurseDirection  = "recurse_direction"
	AttrRecurseFileSystem = "recurse_file_system"
)

type Direction string

const (
	DirectionNone Direction = "none"
	DirectionDown Direction = "down"
	DirectionUp   Direction = "up"
)

type FileSystem string

const (
	FileSystemAll   FileSystem = "all"
	FileSystemLocal FileSystem = "local"
)

// Behaviors 控制递归方式，MaxDepth 为 -1 表示不限深度
type Behaviors struct {
	MaxDepth   int
	Direction  Direction
	FileSystem FileSystem
}

// ParseBehaviors 从 behaviors 实体的属性解析，缺失的属性取 OVAL 默认值
func ParseBehaviors(attrs []oval.Attr) (Behaviors, error) {
	b := Behaviors{MaxDepth: -1, Direction: DirectionNone, FileSystem: FileSystemAll}

	for _, a := range attrs {
		switch a.Name {
		case AttrMaxDepth:
			n, err := strconv.Atoi(a.Value)
			if err != nil || n < -1 {
				return b, fmt.Errorf("invalid %s %q", AttrMaxDepth, a.Value)
			}
			b.MaxDepth = n
		case AttrRecurseDirection:
			switch d := Direction(a.Value); d {
			case DirectionNone, DirectionDown, DirectionUp:
				b.Direction = d
			default:
				return b, fmt.Errorf("invalid %s %q", AttrRecurseDirection, a.Value)
			}
		case AttrRecurseFileSystem:
			switch fs := FileSystem(a.Value); fs {
			case FileSystemAll, FileSystemLocal:
				b.FileSystem = fs
			default:
				return b, fmt.Errorf("invalid %s %q", AttrRecurseFileSystem, a.Value)
			}
		}
	}
	return b, nil
}

// Pattern 匹配文件名，pattern match 操作使用正则，其余按相等比较
type Pattern struct {
	literal string
	negate  bool
	re      *regexp.Regexp
}

func NewPattern(value string, op oval.Operation) (Pattern, error) {
	switch op {
	case "", oval.OpEquals:
		return Pattern{literal: value}, nil
	case oval.OpNotEqual:
		return Pattern{literal: value, negate: true}, nil
	case oval.OpPatternMatch:
		re, err := regexp.Compile(value)
		if err != nil {
			return Pattern{}, fmt.Errorf("filename pattern %q: %w", value, err)
		}
		return Pattern{re: re}, nil
	}
	return Pattern{}, fmt.Errorf("unsupported filename operation %q", op)
}

func (p Pattern) Match(name string) bool {
	if p.re != nil {
		return p.re.MatchString(name)
	}
	return (name == p.literal) != p.negate
}

// Callback 对每个匹配的 (目录, 文件名) 调用一次，返回错误会终止查找
type Callback func(dir, name string) error

// Finder 是文件匹配协作者。返回匹配数；error 表示内部错误，而不是"没有匹配"。
type Finder interface {
	Find(ctx context.Context, path string, filename Pattern, b Behaviors, cb Callback) (int, error)
}
