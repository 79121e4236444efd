package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesExtension(t *testing.T) {
	assert.True(t, matchesExtension("a.mkv"))
	assert.True(t, matchesExtension("a.SRT"))
	assert.True(t, matchesExtension("a.ass"))
	assert.False(t, matchesExtension("a.txt"))
}

func TestIsStableRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "empty.srt")
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	assert.False(t, isStable(p))
}

func TestIsStableAcceptsUnchangedFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "done.srt")
	require.NoError(t, os.WriteFile(p, []byte("content"), 0o644))
	assert.True(t, isStable(p))
}

func TestScanExistingOnlySubmitsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mkv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	var submitted []string
	sup := &Supervisor{submit: func(watcherID int64, path string) error {
		submitted = append(submitted, path)
		return nil
	}}

	require.NoError(t, sup.scanExisting(1, dir))
	require.Len(t, submitted, 1)
	assert.Equal(t, filepath.Join(dir, "movie.mkv"), submitted[0])
}
