// Package filehash 实现 filemd5 / filehash 探针: 按路径和文件名匹配文件并计算摘要。
// 探针按进程外约定实现 (Init / Main / Fini)，同一实例上的 Main 串行执行。
package filehash

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/25smoking/ovalprobe/internal/digest"
	"github.com/25smoking/ovalprobe/internal/findfile"
	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/probe"
	"github.com/25smoking/ovalprobe/internal/sexp"
)

const (
	fileSeparator = '/'
	maxPathLen    = 4096
)

// ErrPathTooLong 由匹配回调返回，终止查找并使对象标记为 ERROR
var ErrPathTooLong = errors.New("candidate path too long")

type Probe struct {
	lock   sync.Locker
	digest *digest.Subsystem
	algo   digest.Algorithm
	finder findfile.Finder
	logger *zap.Logger
}

type Option func(*Probe)

func WithAlgorithm(a digest.Algorithm) Option { return func(p *Probe) { p.algo = a } }
func WithFinder(f findfile.Finder) Option     { return func(p *Probe) { p.finder = f } }
func WithLocker(l sync.Locker) Option         { return func(p *Probe) { p.lock = l } }

func WithLogger(l *zap.Logger) Option {
	return func(p *Probe) {
		if l != nil {
			p.logger = l
		}
	}
}

// Init 获取摘要子系统和串行化锁
func Init(opts ...Option) (*Probe, error) {
	ds, err := digest.Init()
	if err != nil {
		return nil, fmt.Errorf("init digest subsystem: %w", err)
	}

	p := &Probe{
		lock:   &sync.Mutex{},
		digest: ds,
		algo:   digest.MD5,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.finder == nil {
		p.finder = findfile.NewWalker(p.logger)
	}
	return p, nil
}

// Lifecycle 返回可交给 probe.Server 或 probe.LocalHandler 的 InitFunc
func Lifecycle(opts ...Option) probe.InitFunc {
	return func() (probe.Lifecycle, error) {
		return Init(opts...)
	}
}

// Fini 释放 Init 获取的资源，之后 Main 返回 ErrInit
func (p *Probe) Fini() {
	p.lock = nil
	p.digest = nil
}

func (p *Probe) itemName() string {
	if p.algo == digest.MD5 {
		return oval.SubtypeFileMD5.ItemName()
	}
	return oval.SubtypeFileHash.ItemName()
}

// Main 对一个 filemd5/filehash 对象求值。
// 串行化锁在整个调用期间持有 (包括所有匹配回调)，任何返回路径上都只获取和释放一次。
func (p *Probe) Main(ctx context.Context, in *sexp.Value, out *probe.Cobj) error {
	if in == nil || out == nil {
		return probe.ErrInvalid
	}
	if p == nil || p.lock == nil || p.digest == nil {
		return probe.ErrInit
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	obj, err := probe.ObjectFromValue(in)
	if err != nil {
		return err
	}

	path := obj.Entity("path")
	filename := obj.Entity("filename")
	if path == nil || filename == nil {
		return fmt.Errorf("%w: %s needs path and filename", probe.ErrNoElement, obj.ID)
	}

	behaviors, err := findfile.ParseBehaviors(normalizeBehaviors(obj.Entity("behaviors")).Attrs)
	if err != nil {
		return fmt.Errorf("%w: %v", probe.ErrInvalid, err)
	}

	failed := false
	for _, pv := range probe.EntityValues(path) {
		for _, fv := range probe.EntityValues(filename) {
			pat, err := findfile.NewPattern(fv.Text(), filename.Operation)
			if err != nil {
				return fmt.Errorf("%w: %v", probe.ErrInvalid, err)
			}

			n, err := p.finder.Find(ctx, pv.Text(), pat, behaviors, p.hashFile(out))
			if err != nil {
				failed = true
				out.AddMessage(oval.MessageError, fmt.Sprintf("find_files returned error: %v", err))
				p.logger.Warn("file matching failed", zap.String("path", pv.Text()), zap.Error(err))
				continue
			}
			p.logger.Debug("files matched", zap.String("path", pv.Text()), zap.Int("count", n))
		}
	}

	switch {
	case failed:
		out.SetFlag(oval.FlagError)
	case len(out.Items()) == 0:
		// 没有匹配的文件是确定的答案
		out.SetFlag(oval.FlagComplete)
	default:
		out.ComputeFlag()
	}
	return nil
}

// normalizeBehaviors 补全 behaviors 实体: 缺失时合成 max_depth=1, recurse_direction=none，
// 存在时只补充调用方没有给出的属性
func normalizeBehaviors(e *oval.Entity) *oval.Entity {
	if e == nil {
		return &oval.Entity{
			Name: "behaviors",
			Attrs: []oval.Attr{
				{Name: findfile.AttrMaxDepth, Value: "1"},
				{Name: findfile.AttrRecurseDirection, Value: string(findfile.DirectionNone)},
			},
		}
	}
	if _, ok := e.Attr(findfile.AttrMaxDepth); !ok {
		e.Attrs = append(e.Attrs, oval.Attr{Name: findfile.AttrMaxDepth, Value: "-1"})
	}
	if _, ok := e.Attr(findfile.AttrRecurseDirection); !ok {
		e.Attrs = append(e.Attrs, oval.Attr{Name: findfile.AttrRecurseDirection, Value: string(findfile.DirectionNone)})
	}
	return e
}

// hashFile 返回匹配回调。单个文件的失败只体现在它自己的条目上，不影响其他文件。
func (p *Probe) hashFile(out *probe.Cobj) findfile.Callback {
	return func(dir, name string) error {
		if name == "" {
			return nil
		}

		full := dir
		if !strings.HasSuffix(full, string(fileSeparator)) {
			full += string(fileSeparator)
		}
		full += name
		if len(full) > maxPathLen {
			return fmt.Errorf("%w: %s...", ErrPathTooLong, full[:64])
		}

		item, err := p.hashItem(dir, name, full)
		if err != nil {
			return err
		}
		out.AddItem(item)
		return nil
	}
}

func (p *Probe) hashItem(dir, name, full string) (*probe.Item, error) {
	f, err := os.Open(full)
	if err != nil {
		attrs := probe.ErrorAttrs(errorText(err))
		p.logger.Debug("open failed", zap.String("file", full), zap.Error(err))

		// 目录本身可以打开时错误归到 filename，否则归到 path
		d, derr := os.Open(dir)
		if derr != nil {
			return probe.NewItem(p.itemName(), probe.Field{Name: "path", Attrs: attrs})
		}
		d.Close()
		return probe.NewItem(p.itemName(),
			probe.Field{Name: "path", Value: sexp.String(dir)},
			probe.Field{Name: "filename", Attrs: attrs},
		)
	}
	defer f.Close()

	fields := []probe.Field{
		{Name: "path", Value: sexp.String(dir)},
		{Name: "filename", Value: sexp.String(name)},
	}

	sum, err := p.digest.Sum(f, p.algo)
	if err != nil {
		fields = append(fields, probe.Field{Name: string(p.algo), Attrs: probe.ErrorAttrs(errorText(err))})
	} else {
		fields = append(fields, probe.Field{Name: string(p.algo), Value: sexp.String(digest.Hex(sum))})
	}
	return probe.NewItem(p.itemName(), fields...)
}

// errorText 取系统错误文本，例如 "permission denied"
func errorText(err error) string {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return err.Error()
}
