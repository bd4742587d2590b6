package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/probe"
	"github.com/25smoking/ovalprobe/internal/probes/envvar"
	"github.com/25smoking/ovalprobe/internal/probes/filehash"
	"github.com/25smoking/ovalprobe/internal/probes/variable"
	"github.com/25smoking/ovalprobe/internal/sexp"
	"github.com/25smoking/ovalprobe/internal/sysinfo"
)

func noInfo(context.Context) (*sysinfo.Info, error) { return nil, errors.New("offline") }

func newSession(t *testing.T, objects []*oval.Object, opts ...Option) *Session {
	t.Helper()
	s := New(objects, append([]Option{WithSystemInfo(noInfo)}, opts...)...)
	s.Register(oval.SubtypeEnvironmentVariable, envvar.New(s, nil))
	s.Register(oval.SubtypeVariable, variable.New(s, nil))
	s.Register(oval.SubtypeFileMD5, probe.NewLocalHandler(filehash.Lifecycle()))

	ctx := context.Background()
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Open(ctx))
	t.Cleanup(func() {
		_ = s.Close(ctx)
		_ = s.Free(ctx)
	})
	return s
}

func varObject(id string, v *oval.Variable) *oval.Object {
	return &oval.Object{
		ID:       id,
		Subtype:  oval.SubtypeVariable,
		Entities: []*oval.Entity{{Name: oval.VarRefEntity, Variable: v}},
	}
}

func envObject(id string, name *oval.Entity) *oval.Object {
	return &oval.Object{ID: id, Subtype: oval.SubtypeEnvironmentVariable, Entities: []*oval.Entity{name}}
}

func TestConstantVariable(t *testing.T) {
	v := &oval.Variable{ID: "var:1", Kind: oval.VariableConstant, Values: []string{"a", "b"}}
	obj := varObject("obj:1", v)
	s := newSession(t, []*oval.Object{obj})

	c, err := s.Eval(context.Background(), obj)
	require.NoError(t, err)
	assert.Equal(t, oval.FlagComplete, c.Flag())
	assert.Len(t, c.Items(), 2)
	assert.True(t, v.Resolved())
}

func TestExternalVariable(t *testing.T) {
	set := &oval.Variable{ID: "var:ext:set", Kind: oval.VariableExternal}
	unset := &oval.Variable{ID: "var:ext:unset", Kind: oval.VariableExternal}
	objSet := varObject("obj:set", set)
	objUnset := varObject("obj:unset", unset)

	s := newSession(t, []*oval.Object{objSet, objUnset},
		WithExternalVariables(map[string][]string{"var:ext:set": {"x"}}))

	c, err := s.Eval(context.Background(), objSet)
	require.NoError(t, err)
	assert.Equal(t, oval.FlagComplete, c.Flag())
	assert.Len(t, c.Items(), 1)

	c, err = s.Eval(context.Background(), objUnset)
	require.NoError(t, err)
	assert.Equal(t, oval.FlagError, c.Flag())
	assert.Empty(t, c.Items())
}

// 局部变量取 envvar 对象的 value 字段作为 filemd5 对象的 path
func TestLocalVariableFeedsFileProbe(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o600))
	t.Setenv("OVALPROBE_TEST_DIR", dir)

	env := envObject("obj:env", &oval.Entity{Name: "name", Value: sexp.String("OVALPROBE_TEST_DIR")})
	local := &oval.Variable{
		ID:        "var:local",
		Kind:      oval.VariableLocal,
		Component: &oval.Component{ObjectRef: "obj:env", ItemField: "value"},
	}
	file := &oval.Object{
		ID:      "obj:file",
		Subtype: oval.SubtypeFileMD5,
		Entities: []*oval.Entity{
			{Name: "path", Variable: local},
			{Name: "filename", Value: sexp.String("hello.txt")},
		},
	}
	s := newSession(t, []*oval.Object{env, file})

	c, err := s.Eval(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, oval.FlagComplete, c.Flag())
	require.Len(t, c.Items(), 1)
	assert.Equal(t, dir, c.Items()[0].FieldValue("path").Text())
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", c.Items()[0].FieldValue("md5").Text())

	assert.Equal(t, []string{dir}, local.ResolvedValues())

	// 嵌套求值的对象也进入快照
	sc := s.Syschar()
	require.Len(t, sc.Results, 2)
	assert.Equal(t, "obj:env", sc.Results[0].ObjectID)
	assert.Equal(t, "obj:file", sc.Results[1].ObjectID)
}

func TestVariableCycle(t *testing.T) {
	v := &oval.Variable{
		ID:        "var:loop",
		Kind:      oval.VariableLocal,
		Component: &oval.Component{ObjectRef: "obj:loop", ItemField: "value"},
	}
	obj := envObject("obj:loop", &oval.Entity{Name: "name", Variable: v})
	s := newSession(t, []*oval.Object{obj})

	c, err := s.Eval(context.Background(), obj)
	require.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, oval.FlagError, c.Flag())
	assert.False(t, v.Resolved())
}

func TestUnusableVariableShortCircuits(t *testing.T) {
	v := &oval.Variable{ID: "var:ext", Kind: oval.VariableExternal}
	file := &oval.Object{
		ID:      "obj:file",
		Subtype: oval.SubtypeFileMD5,
		Entities: []*oval.Entity{
			{Name: "path", Variable: v},
			{Name: "filename", Value: sexp.String("x")},
		},
	}
	s := newSession(t, []*oval.Object{file})

	c, err := s.Eval(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, oval.FlagError, c.Flag())
	assert.Empty(t, c.Items())
	assert.NotEmpty(t, c.Messages())
}

func TestNoProbeForSubtype(t *testing.T) {
	obj := &oval.Object{ID: "obj:hash", Subtype: oval.SubtypeFileHash}
	s := newSession(t, []*oval.Object{obj})

	c, err := s.Eval(context.Background(), obj)
	require.NoError(t, err)
	assert.Equal(t, oval.FlagNotCollected, c.Flag())
}

func TestProbeErrorIsRecorded(t *testing.T) {
	obj := envObject("obj:env", &oval.Entity{Name: "bogus", Value: sexp.String("x")})
	s := newSession(t, []*oval.Object{obj})

	c, err := s.Eval(context.Background(), obj)
	assert.ErrorIs(t, err, probe.ErrNoElement)
	assert.Equal(t, oval.FlagError, c.Flag())
	require.Len(t, c.Messages(), 1)
	assert.Equal(t, oval.MessageError, c.Messages()[0].Level)
}

func TestEvalCachesAndReset(t *testing.T) {
	v := &oval.Variable{ID: "var:1", Kind: oval.VariableConstant, Values: []string{"a"}}
	obj := varObject("obj:1", v)
	s := newSession(t, []*oval.Object{obj})
	ctx := context.Background()

	first, err := s.Eval(ctx, obj)
	require.NoError(t, err)
	again, err := s.Eval(ctx, obj)
	require.NoError(t, err)
	assert.Same(t, first, again)

	require.NoError(t, s.Reset(ctx))
	assert.False(t, v.Resolved())
	assert.Empty(t, s.Syschar().Results)

	fresh, err := s.Eval(ctx, obj)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
}

func TestEvalAll(t *testing.T) {
	t.Setenv("OVALPROBE_TEST_VAR", "1")
	objects := []*oval.Object{
		envObject("obj:a", &oval.Entity{Name: "name", Value: sexp.String("OVALPROBE_TEST_VAR")}),
		envObject("obj:b", &oval.Entity{Name: "bogus"}),
		{ID: "obj:c", Subtype: oval.SubtypeFileHash},
	}
	s := newSession(t, objects)

	require.NoError(t, s.EvalAll(context.Background()))
	sc := s.Syschar()
	require.Len(t, sc.Results, 3)
	assert.Equal(t, s.ID(), sc.SessionID)
	assert.Equal(t, map[oval.Flag]int{
		oval.FlagComplete:     1,
		oval.FlagError:        1,
		oval.FlagNotCollected: 1,
	}, sc.Counts())
}

func TestEvalAllStopsOnCancel(t *testing.T) {
	obj := envObject("obj:a", &oval.Entity{Name: "name", Value: sexp.String("X")})
	s := newSession(t, []*oval.Object{obj})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.EvalAll(ctx), context.Canceled)
	assert.Empty(t, s.Syschar().Results)
}

type lifecycleHandler struct {
	probe.NopLifecycle
	initErr error
	calls   []probe.Action
}

func (h *lifecycleHandler) Init(context.Context) error {
	h.calls = append(h.calls, probe.ActionInit)
	return h.initErr
}

func (h *lifecycleHandler) Free(context.Context) error {
	h.calls = append(h.calls, probe.ActionFree)
	return nil
}

func (h *lifecycleHandler) Eval(context.Context, *oval.Object) (*probe.Cobj, error) {
	panic("boom")
}

func TestLifecycleBroadcast(t *testing.T) {
	bad := &lifecycleHandler{initErr: errors.New("no digest")}
	good := &lifecycleHandler{}
	s := New(nil, WithSystemInfo(nil))
	s.Register(oval.SubtypeFileHash, bad)
	s.Register(oval.SubtypeFileMD5, good)

	ctx := context.Background()
	err := s.Init(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no digest")
	assert.Equal(t, []probe.Action{probe.ActionInit}, good.calls)

	require.NoError(t, s.Free(ctx))
	assert.Equal(t, []probe.Action{probe.ActionInit, probe.ActionFree}, bad.calls)
	assert.Equal(t, []probe.Action{probe.ActionInit, probe.ActionFree}, good.calls)
}

func TestPanickingProbe(t *testing.T) {
	obj := &oval.Object{ID: "obj:p", Subtype: oval.SubtypeFileHash}
	s := New([]*oval.Object{obj}, WithSystemInfo(nil))
	s.Register(oval.SubtypeFileHash, &lifecycleHandler{})

	c, err := s.Eval(context.Background(), obj)
	assert.ErrorIs(t, err, probe.ErrFatal)
	assert.Equal(t, oval.FlagError, c.Flag())
}

func TestSystemInfoInSnapshot(t *testing.T) {
	info := &sysinfo.Info{Hostname: "scanner"}
	s := New(nil, WithSystemInfo(func(context.Context) (*sysinfo.Info, error) { return info, nil }))

	require.NoError(t, s.Open(context.Background()))
	sc := s.Syschar()
	assert.Same(t, info, sc.Info)
	assert.False(t, sc.Generated.IsZero())
}
