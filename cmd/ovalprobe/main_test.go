package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/25smoking/ovalprobe/internal/config"
	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/probe"
)

func TestBuildSessionWithEmbeddedDefinitions(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.ParseConfig([]byte("external_variables:\n  var:ovalprobe:ext:1: [HOME]\n"))
	require.NoError(t, err)
	defs, err := config.LoadDefinitions("")
	require.NoError(t, err)
	objects, _, err := defs.Build()
	require.NoError(t, err)

	sess, err := buildSession(cfg, objects, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sess.Init(ctx))
	defer sess.Free(ctx)
	require.NoError(t, sess.EvalAll(ctx))

	sc := sess.Syschar()
	require.Len(t, sc.Results, len(objects))
	for _, r := range sc.Results {
		assert.NotEqual(t, oval.FlagNotCollected, r.Cobj.Flag(), r.ObjectID)
	}
	// HOME 是空目录，没有 .bashrc
	assert.Equal(t, oval.FlagComplete, sc.Results[4].Cobj.Flag())
}

func TestFileHandlerMode(t *testing.T) {
	h, err := fileHandler(config.ModeInProcess, oval.SubtypeFileMD5, "md5", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &probe.LocalHandler{}, h)

	h, err = fileHandler(config.ModeOutOfProcess, oval.SubtypeFileHash, "sha1", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &probe.ProcessHandler{}, h)
}

func TestBuildSessionRejectsDigest(t *testing.T) {
	cfg, err := config.ParseConfig([]byte("scanner:\n  digest: crc32\n"))
	require.NoError(t, err)
	_, err = buildSession(cfg, nil, zap.NewNop())
	assert.Error(t, err)
}
