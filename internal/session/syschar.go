package session

import (
	"time"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/probe"
	"github.com/25smoking/ovalprobe/internal/sysinfo"
)

// Result 是一个对象定义与它的收集对象
type Result struct {
	ObjectID string
	Subtype  oval.Subtype
	Comment  string
	Cobj     *probe.Cobj
}

// SystemCharacteristics 是一次会话的收集快照
type SystemCharacteristics struct {
	SessionID string
	Generated time.Time
	Info      *sysinfo.Info
	Results   []Result
}

// Syschar 按定义顺序返回已收集的对象，未求值的对象不出现
func (s *Session) Syschar() *SystemCharacteristics {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := &SystemCharacteristics{
		SessionID: s.id,
		Generated: s.started,
		Info:      s.info,
	}
	for _, id := range s.order {
		c, ok := s.results[id]
		if !ok {
			continue
		}
		obj := s.objects[id]
		sc.Results = append(sc.Results, Result{
			ObjectID: id,
			Subtype:  obj.Subtype,
			Comment:  obj.Comment,
			Cobj:     c,
		})
	}
	return sc
}

// Counts 统计各收集标志出现的次数
func (sc *SystemCharacteristics) Counts() map[oval.Flag]int {
	out := map[oval.Flag]int{}
	for _, r := range sc.Results {
		out[r.Cobj.Flag()]++
	}
	return out
}
