package filehash

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/25smoking/ovalprobe/internal/digest"
	"github.com/25smoking/ovalprobe/internal/findfile"
	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/probe"
	"github.com/25smoking/ovalprobe/internal/sexp"
)

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

type countingLocker struct {
	locks, unlocks int
	held           bool
}

func (l *countingLocker) Lock()   { l.locks++; l.held = true }
func (l *countingLocker) Unlock() { l.unlocks++; l.held = false }

// fakeFinder 按固定列表回调，err 非空时在回调结束后返回它
type fakeFinder struct {
	matches [][2]string
	err     error
	lock    *countingLocker
	sawLock bool
}

func (f *fakeFinder) Find(_ context.Context, _ string, _ findfile.Pattern, _ findfile.Behaviors, cb findfile.Callback) (int, error) {
	if f.lock != nil {
		f.sawLock = f.lock.held
	}
	for _, m := range f.matches {
		if err := cb(m[0], m[1]); err != nil {
			return 0, err
		}
	}
	return len(f.matches), f.err
}

func object(t *testing.T, ents ...*oval.Entity) *sexp.Value {
	t.Helper()
	v, err := probe.ObjectValue(&oval.Object{ID: "oval:test:obj:1", Subtype: oval.SubtypeFileMD5, Entities: ents})
	require.NoError(t, err)
	return v
}

func pathFile(dir, name string) []*oval.Entity {
	return []*oval.Entity{
		{Name: "path", Value: sexp.String(dir)},
		{Name: "filename", Value: sexp.String(name)},
	}
}

func TestMainHashesMatchedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644))

	p, err := Init()
	require.NoError(t, err)
	defer p.Fini()

	out := probe.NewCobj(oval.FlagUnknown)
	require.NoError(t, p.Main(context.Background(), object(t, pathFile(dir, "hello.txt")...), out))

	require.Len(t, out.Items(), 1)
	it := out.Items()[0]
	assert.Equal(t, "filemd5_item", it.Name())
	assert.Equal(t, dir, it.FieldValue("path").Text())
	assert.Equal(t, "hello.txt", it.FieldValue("filename").Text())
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", it.FieldValue("md5").Text())
	assert.Equal(t, oval.FlagComplete, out.Flag())
}

func TestMainOtherAlgorithm(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644))

	p, err := Init(WithAlgorithm(digest.SHA1))
	require.NoError(t, err)

	out := probe.NewCobj(oval.FlagUnknown)
	require.NoError(t, p.Main(context.Background(), object(t, pathFile(dir, "hello.txt")...), out))
	require.Len(t, out.Items(), 1)
	assert.Equal(t, "filehash_item", out.Items()[0].Name())
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", out.Items()[0].FieldValue("sha1").Text())
}

func TestMainIsolatesUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readable"), []byte("data"), 0o644))

	finder := &fakeFinder{matches: [][2]string{{dir, "unreadable"}, {dir, "readable"}}}
	p, err := Init(WithFinder(finder))
	require.NoError(t, err)

	out := probe.NewCobj(oval.FlagUnknown)
	require.NoError(t, p.Main(context.Background(), object(t, pathFile(dir, "x")...), out))

	items := out.Items()
	require.Len(t, items, 2)

	bad := items[0].Fields()
	require.Len(t, bad, 2)
	assert.Equal(t, "filename", bad[1].Name)
	status, _ := bad[1].Attr(probe.AttrStatus).Int64()
	assert.Equal(t, oval.FlagError, oval.Flag(status))
	assert.Equal(t, "no such file or directory", bad[1].Attr(probe.AttrMessage).Text())

	good := items[1]
	assert.Equal(t, "readable", good.FieldValue("filename").Text())
	assert.Regexp(t, hex32, good.FieldValue("md5").Text())

	// 条目级软错误让聚合降为 INCOMPLETE，而不是 ERROR
	assert.Equal(t, oval.FlagIncomplete, out.Flag())
}

func TestMainPermissionDeniedFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	dir := t.TempDir()
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.WriteFile(locked, []byte("secret"), 0o644))
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })
	require.NoError(t, os.WriteFile(filepath.Join(dir, "open"), []byte("data"), 0o644))

	p, err := Init(WithFinder(&fakeFinder{matches: [][2]string{{dir, "locked"}, {dir, "open"}}}))
	require.NoError(t, err)

	out := probe.NewCobj(oval.FlagUnknown)
	require.NoError(t, p.Main(context.Background(), object(t, pathFile(dir, "x")...), out))

	items := out.Items()
	require.Len(t, items, 2)
	denied := items[0].Fields()
	require.Len(t, denied, 2)
	assert.Equal(t, "filename", denied[1].Name)
	assert.Equal(t, "permission denied", denied[1].Attr(probe.AttrMessage).Text())
	assert.Regexp(t, hex32, items[1].FieldValue("md5").Text())
	assert.Equal(t, oval.FlagIncomplete, out.Flag())
}

func TestMainOverlongPathIsError(t *testing.T) {
	long := strings.Repeat("a", maxPathLen+1)
	p, err := Init(WithFinder(&fakeFinder{matches: [][2]string{{"/tmp", long}}}))
	require.NoError(t, err)

	out := probe.NewCobj(oval.FlagUnknown)
	require.NoError(t, p.Main(context.Background(), object(t, pathFile("/tmp", "x")...), out))

	assert.Empty(t, out.Items())
	assert.Equal(t, oval.FlagError, out.Flag())
	require.Len(t, out.Messages(), 1)
	assert.Equal(t, oval.MessageError, out.Messages()[0].Level)
	assert.Contains(t, out.Messages()[0].Text, ErrPathTooLong.Error())
}

func TestMainUnopenableDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	p, err := Init(WithFinder(&fakeFinder{matches: [][2]string{{missing, "f"}}}))
	require.NoError(t, err)

	out := probe.NewCobj(oval.FlagUnknown)
	require.NoError(t, p.Main(context.Background(), object(t, pathFile(missing, "f")...), out))

	require.Len(t, out.Items(), 1)
	f := out.Items()[0].Fields()
	require.Len(t, f, 1)
	assert.Equal(t, "path", f[0].Name)
	assert.NotNil(t, f[0].Attr(probe.AttrMessage))
}

func TestMainMissingElement(t *testing.T) {
	lock := &countingLocker{}
	p, err := Init(WithLocker(lock))
	require.NoError(t, err)

	out := probe.NewCobj(oval.FlagUnknown)
	err = p.Main(context.Background(), object(t, &oval.Entity{Name: "path", Value: sexp.String("/tmp")}), out)
	assert.ErrorIs(t, err, probe.ErrNoElement)
	assert.Equal(t, probe.StatusNoElement, probe.StatusOf(err))
	assert.Empty(t, out.Items())
	assert.Equal(t, 1, lock.locks)
	assert.Equal(t, 1, lock.unlocks)
}

func TestMainFinderErrorKeepsCollectedItems(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok"), []byte("ok"), 0o644))

	finder := &fakeFinder{matches: [][2]string{{dir, "ok"}}, err: errors.New("walk exploded")}
	p, err := Init(WithFinder(finder))
	require.NoError(t, err)

	out := probe.NewCobj(oval.FlagUnknown)
	require.NoError(t, p.Main(context.Background(), object(t, pathFile(dir, "ok")...), out))

	assert.Len(t, out.Items(), 1)
	assert.Equal(t, oval.FlagError, out.Flag())
	require.Len(t, out.Messages(), 1)
	assert.Equal(t, oval.MessageError, out.Messages()[0].Level)
	assert.Contains(t, out.Messages()[0].Text, "walk exploded")
}

func TestMainNoMatchesIsComplete(t *testing.T) {
	p, err := Init(WithFinder(&fakeFinder{}))
	require.NoError(t, err)

	out := probe.NewCobj(oval.FlagUnknown)
	require.NoError(t, p.Main(context.Background(), object(t, pathFile("/nowhere", "x")...), out))
	assert.Empty(t, out.Items())
	assert.Equal(t, oval.FlagComplete, out.Flag())
}

func TestMainLockHeldAcrossCallbacksAndBalanced(t *testing.T) {
	dir := t.TempDir()
	lock := &countingLocker{}
	finder := &fakeFinder{lock: lock}
	p, err := Init(WithLocker(lock), WithFinder(finder))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Main(ctx, object(t, pathFile(dir, "a")...), probe.NewCobj(oval.FlagUnknown)))
	assert.True(t, finder.sawLock)

	bad := object(t, append(pathFile(dir, "a"), &oval.Entity{
		Name:  "behaviors",
		Attrs: []oval.Attr{{Name: findfile.AttrMaxDepth, Value: "deep"}},
	})...)
	assert.ErrorIs(t, p.Main(ctx, bad, probe.NewCobj(oval.FlagUnknown)), probe.ErrInvalid)

	assert.Equal(t, 2, lock.locks)
	assert.Equal(t, 2, lock.unlocks)
	assert.False(t, lock.held)
}

func TestMainContractErrors(t *testing.T) {
	p, err := Init()
	require.NoError(t, err)

	assert.ErrorIs(t, p.Main(context.Background(), nil, probe.NewCobj(oval.FlagUnknown)), probe.ErrInvalid)

	p.Fini()
	err = p.Main(context.Background(), object(t, pathFile("/", "x")...), probe.NewCobj(oval.FlagUnknown))
	assert.ErrorIs(t, err, probe.ErrInit)

	var nilProbe *Probe
	err = nilProbe.Main(context.Background(), object(t, pathFile("/", "x")...), probe.NewCobj(oval.FlagUnknown))
	assert.ErrorIs(t, err, probe.ErrInit)
}

func TestNormalizeBehaviors(t *testing.T) {
	def := normalizeBehaviors(nil)
	b, err := findfile.ParseBehaviors(def.Attrs)
	require.NoError(t, err)
	assert.Equal(t, 1, b.MaxDepth)
	assert.Equal(t, findfile.DirectionNone, b.Direction)

	given := &oval.Entity{Name: "behaviors", Attrs: []oval.Attr{{Name: findfile.AttrRecurseDirection, Value: "down"}}}
	b, err = findfile.ParseBehaviors(normalizeBehaviors(given).Attrs)
	require.NoError(t, err)
	assert.Equal(t, -1, b.MaxDepth)
	assert.Equal(t, findfile.DirectionDown, b.Direction)
}
