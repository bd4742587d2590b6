package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/session"
)

// 图标
const (
	IconSuccess = "✓"
	IconWarning = "⚠"
	IconError   = "✗"
	IconInfo    = "ℹ"
	IconScan    = "🔍"
)

var (
	section = color.New(color.FgBlue)
	title   = color.New(color.FgWhite, color.Bold)
	dim     = color.New(color.Faint)
	cyan    = color.New(color.FgCyan)
)

// Console 在终端输出收集进度和结果摘要
type Console struct {
	w         io.Writer
	startTime time.Time
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w, startTime: time.Now()}
}

func (c *Console) PrintBanner(sessionID string) {
	cyan.Fprintf(c.w, "%s ovalprobe 系统特征收集  session %s\n", IconScan, sessionID)
}

func (c *Console) PrintSection(name string) {
	line := strings.Repeat("─", 65)
	section.Fprintf(c.w, "\n┌%s┐\n", line)
	section.Fprint(c.w, "│ ")
	title.Fprintf(c.w, "%-63s", name)
	section.Fprint(c.w, " │\n")
	section.Fprintf(c.w, "└%s┘\n\n", line)
}

func flagStyle(f oval.Flag) (string, *color.Color) {
	switch f {
	case oval.FlagComplete:
		return IconSuccess, color.New(color.FgGreen)
	case oval.FlagIncomplete:
		return IconWarning, color.New(color.FgYellow)
	case oval.FlagError:
		return IconError, color.New(color.FgRed, color.Bold)
	default:
		return IconInfo, color.New(color.FgCyan)
	}
}

// PrintResults 每个收集对象一行，附带诊断消息
func (c *Console) PrintResults(sc *session.SystemCharacteristics) {
	c.PrintSection("收集结果")
	if len(sc.Results) == 0 {
		dim.Fprintln(c.w, "  没有收集任何对象")
		return
	}

	for i, r := range sc.Results {
		icon, col := flagStyle(r.Cobj.Flag())
		fmt.Fprintf(c.w, "%s (%d/%d) [%s] %s - ", icon, i+1, len(sc.Results), r.Subtype, r.ObjectID)
		col.Fprintf(c.w, "%s", r.Cobj.Flag())
		fmt.Fprintf(c.w, " - %d 个条目\n", len(r.Cobj.Items()))
		if r.Comment != "" {
			dim.Fprintf(c.w, "  %s\n", r.Comment)
		}
		for _, m := range r.Cobj.Messages() {
			dim.Fprintf(c.w, "  [%s] ", m.Level)
			fmt.Fprintln(c.w, m.Text)
		}
	}
}

func (c *Console) PrintSummary(sc *session.SystemCharacteristics) {
	counts := sc.Counts()
	c.PrintSection("收集摘要")

	for _, f := range []oval.Flag{oval.FlagComplete, oval.FlagIncomplete, oval.FlagError, oval.FlagNotCollected, oval.FlagNotApplicable} {
		if counts[f] == 0 {
			continue
		}
		icon, col := flagStyle(f)
		fmt.Fprintf(c.w, "  %s ", icon)
		col.Fprintf(c.w, "%-15s", f)
		fmt.Fprintf(c.w, " %d\n", counts[f])
	}
	if sc.Info != nil {
		dim.Fprint(c.w, "  主机:    ")
		fmt.Fprintf(c.w, "%s (%s %s, %s)\n", sc.Info.Hostname, sc.Info.OSName, sc.Info.OSVersion, sc.Info.Architecture)
	}
	dim.Fprint(c.w, "  总耗时:  ")
	fmt.Fprintf(c.w, "%.2f 秒\n\n", time.Since(c.startTime).Seconds())
}
