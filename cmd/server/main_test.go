package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "sweep")
}

func TestSweepCommandEmptiesStorage(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	dir := filepath.Join(t.TempDir(), "media")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"orphan.mp4", "orphan.srt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	t.Setenv("STORAGE_DIR", dir)

	root := newRootCmd()
	root.SetArgs([]string{"sweep"})
	require.NoError(t, root.Execute())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
