package skip

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelin-dev/subtrans/internal/apperr"
)

type fakeHistory struct {
	hasHistory bool
	active     bool
}

func (f fakeHistory) HasHistory(string, string) (bool, error)     { return f.hasHistory, nil }
func (f fakeHistory) ActiveTaskExists(string, string) (bool, error) { return f.active, nil }

func TestEvaluateForceOverride(t *testing.T) {
	d, err := Evaluate(context.Background(), Request{Path: "/m/a.srt", TargetLanguage: "Chinese", ForceOverride: true}, fakeHistory{})
	require.NoError(t, err)
	assert.True(t, d.Proceed)
}

func TestEvaluateOutputExists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.srt")
	require.NoError(t, os.WriteFile(src, []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.zh.srt"), []byte(""), 0o644))

	d, err := Evaluate(context.Background(), Request{Path: src, TargetLanguage: "Chinese"}, fakeHistory{})
	require.NoError(t, err)
	assert.False(t, d.Proceed)
	assert.Equal(t, apperr.ReasonOutputExists, d.Reason)
}

func TestEvaluateHistory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.srt")
	require.NoError(t, os.WriteFile(src, []byte(""), 0o644))

	d, err := Evaluate(context.Background(), Request{Path: src, TargetLanguage: "Chinese"}, fakeHistory{hasHistory: true})
	require.NoError(t, err)
	assert.False(t, d.Proceed)
	assert.Equal(t, apperr.ReasonHistory, d.Reason)
}

func TestEvaluateFilenameMarker(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "show.s01e01.zh.srt")
	require.NoError(t, os.WriteFile(src, []byte(""), 0o644))

	d, err := Evaluate(context.Background(), Request{Path: src, TargetLanguage: "Chinese"}, fakeHistory{})
	require.NoError(t, err)
	assert.False(t, d.Proceed)
	assert.Equal(t, apperr.ReasonFilenameMarker, d.Reason)
}

func TestEvaluateInPlaceOverwriteIgnoresExistingSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(src, []byte(""), 0o644))

	// in-place output lands on the source path itself, which always
	// exists; the output_exists check must not fire for it
	d, err := Evaluate(context.Background(), Request{Path: src, TargetLanguage: "Chinese", OutputFormat: "mkv", OverwriteMKV: true}, fakeHistory{})
	require.NoError(t, err)
	assert.True(t, d.Proceed)
}

func TestEvaluateInProgress(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "movie.srt")
	require.NoError(t, os.WriteFile(src, []byte(""), 0o644))

	d, err := Evaluate(context.Background(), Request{Path: src, TargetLanguage: "Chinese"}, fakeHistory{active: true})
	require.NoError(t, err)
	assert.False(t, d.Proceed)
	assert.Equal(t, apperr.ReasonInProgress, d.Reason)
}

func TestEvaluateProceed(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "movie.srt")
	require.NoError(t, os.WriteFile(src, []byte(""), 0o644))

	d, err := Evaluate(context.Background(), Request{Path: src, TargetLanguage: "Chinese"}, fakeHistory{})
	require.NoError(t, err)
	assert.True(t, d.Proceed)
}
