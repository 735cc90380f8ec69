package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crmsync.log")

	l, err := New(Config{Level: "debug", File: FileConfig{Path: path}})
	require.NoError(t, err)

	l.WithComponent("syncer").Infow("run finished", "run_id", "r1", "new", 3)
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"syncer"`)
	assert.Contains(t, string(data), `"run_id":"r1"`)
}

func TestNewFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crmsync.log")

	l, err := New(Config{Level: "verbose", File: FileConfig{Path: path}})
	require.NoError(t, err)

	l.Debugw("hidden")
	l.Infow("shown")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestFromContext(t *testing.T) {
	nop := Nop()
	ctx := WithLogger(context.Background(), nop)
	assert.Same(t, nop, FromContext(ctx))

	assert.NotNil(t, FromContext(context.Background()))
}
