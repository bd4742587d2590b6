package oval

import (
	"fmt"
)

// Flag 是收集标志，变量、条目和收集对象共用同一个枚举。
// 数值与线上格式保持一致，零值为 FlagUnknown。
type Flag int

const (
	FlagUnknown       Flag = 0
	FlagError         Flag = 1
	FlagComplete      Flag = 2
	FlagIncomplete    Flag = 3
	FlagNotCollected  Flag = 5
	FlagNotApplicable Flag = 6
)

// flagRank 是聚合时的优先级表，数值越大越"差"，聚合取最大值:
// ERROR > INCOMPLETE > COMPLETE > UNKNOWN > NOT_COLLECTED > NOT_APPLICABLE
var flagRank = map[Flag]int{
	FlagError:         6,
	FlagIncomplete:    5,
	FlagComplete:      4,
	FlagUnknown:       3,
	FlagNotCollected:  2,
	FlagNotApplicable: 1,
}

var flagNames = map[Flag]string{
	FlagUnknown:       "unknown",
	FlagError:         "error",
	FlagComplete:      "complete",
	FlagIncomplete:    "incomplete",
	FlagNotCollected:  "not collected",
	FlagNotApplicable: "not applicable",
}

func (f Flag) String() string {
	if s, ok := flagNames[f]; ok {
		return s
	}
	return fmt.Sprintf("flag(%d)", int(f))
}

func (f Flag) Valid() bool {
	_, ok := flagRank[f]
	return ok
}

// Rank 返回标志在聚合顺序中的位置，未知取值按 ERROR 处理
func (f Flag) Rank() int {
	if r, ok := flagRank[f]; ok {
		return r
	}
	return flagRank[FlagError]
}

// Merge 返回两个标志中优先级更高的一个，非法取值视为 ERROR
func Merge(a, b Flag) Flag {
	if !a.Valid() || !b.Valid() {
		return FlagError
	}
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Usable 表示变量的收集结果是否可以继续用于求值
func (f Flag) Usable() bool {
	return f == FlagComplete || f == FlagIncomplete
}
