package findfile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Walker 是基于 filepath.WalkDir 的默认 Finder
type Walker struct {
	logger  *zap.Logger
	isLocal func(path string) bool
}

func NewWalker(logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{logger: logger, isLocal: isLocalFS}
}

func (w *Walker) Find(ctx context.Context, root string, pat Pattern, b Behaviors, cb Callback) (int, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, nil
	}

	switch b.Direction {
	case DirectionDown:
		return w.walkDown(ctx, root, pat, b, cb)
	case DirectionUp:
		return w.walkUp(ctx, root, pat, b, cb)
	}
	return w.scanDir(ctx, root, pat, cb)
}

// scanDir 只匹配 dir 中的直接文件
func (w *Walker) scanDir(ctx context.Context, dir string, pat Pattern, cb Callback) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Debug("skip unreadable directory", zap.String("dir", dir), zap.Error(err))
		return 0, nil
	}

	count := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if e.IsDir() || !pat.Match(e.Name()) {
			continue
		}
		if err := cb(dir, e.Name()); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (w *Walker) walkDown(ctx context.Context, root string, pat Pattern, b Behaviors, cb Callback) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if b.MaxDepth >= 0 && depth(root, path) > b.MaxDepth {
			return filepath.SkipDir
		}
		if path != root && b.FileSystem == FileSystemLocal && !w.isLocal(path) {
			w.logger.Debug("skip remote file system", zap.String("dir", path))
			return filepath.SkipDir
		}

		n, err := w.scanDir(ctx, path, pat, cb)
		count += n
		return err
	})
	return count, err
}

func (w *Walker) walkUp(ctx context.Context, root string, pat Pattern, b Behaviors, cb Callback) (int, error) {
	count := 0
	dir := filepath.Clean(root)
	for level := 0; b.MaxDepth < 0 || level <= b.MaxDepth; level++ {
		n, err := w.scanDir(ctx, dir, pat, cb)
		count += n
		if err != nil {
			return count, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return count, nil
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
