package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelin-dev/subtrans/internal/llm"
	"github.com/kaelin-dev/subtrans/internal/progress"
	"github.com/kaelin-dev/subtrans/internal/scheduler"
	"github.com/kaelin-dev/subtrans/internal/store"
	"github.com/kaelin-dev/subtrans/internal/watcher"
)

type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }
func (fakeProvider) SendBatch(ctx context.Context, lines []llm.Line, systemPrompt string) ([]llm.Line, error) {
	return lines, nil
}
func (fakeProvider) Healthcheck(ctx context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := progress.New()
	sched := scheduler.New(st, bus, func(string) (llm.Provider, error) { return fakeProvider{}, nil }, t.TempDir(), 2, zerolog.Nop())
	require.NoError(t, sched.Start(context.Background()))
	sup := watcher.New(func(int64, string) error { return nil }, zerolog.Nop())

	s := NewServer(DefaultConfig(), st, sched, sup, bus, zerolog.Nop())
	return s, st
}

const sampleSRT = `1
00:00:00,000 --> 00:00:01,000
Hello

`

func writeSRT(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(sampleSRT), 0o644))
	return path
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndGetTask(t *testing.T) {
	s, _ := newTestServer(t)
	src := writeSRT(t, t.TempDir(), "show.srt")

	rec := doRequest(s, http.MethodPost, "/api/tasks", createTaskRequest{
		FilePath: src, TargetLanguage: "Chinese", LLMProvider: "fake",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created store.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)

	rec = doRequest(s, http.MethodGet, "/api/tasks/"+strconv.Itoa(int(created.ID)), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTaskRejectsMissingFile(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/api/tasks", createTaskRequest{
		FilePath: "/does/not/exist.srt", TargetLanguage: "Chinese", LLMProvider: "fake",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTaskSkipsDuplicateActiveTask(t *testing.T) {
	s, _ := newTestServer(t)
	src := writeSRT(t, t.TempDir(), "dup.srt")

	req := createTaskRequest{FilePath: src, TargetLanguage: "Chinese", LLMProvider: "fake"}
	rec := doRequest(s, http.MethodPost, "/api/tasks", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/tasks", req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["skipped"])
}

func TestListTasksEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	dir := t.TempDir()
	doRequest(s, http.MethodPost, "/api/tasks", createTaskRequest{FilePath: writeSRT(t, dir, "a.srt"), TargetLanguage: "Chinese", LLMProvider: "fake"})
	doRequest(s, http.MethodPost, "/api/tasks", createTaskRequest{FilePath: writeSRT(t, dir, "b.srt"), TargetLanguage: "Chinese", LLMProvider: "fake"})

	rec := doRequest(s, http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(50), body["limit"])
	assert.Equal(t, float64(0), body["offset"])
}

func TestTaskStatsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	dir := t.TempDir()
	doRequest(s, http.MethodPost, "/api/tasks", createTaskRequest{FilePath: writeSRT(t, dir, "a.srt"), TargetLanguage: "Chinese", LLMProvider: "fake"})
	doRequest(s, http.MethodPost, "/api/tasks", createTaskRequest{FilePath: writeSRT(t, dir, "b.srt"), TargetLanguage: "Chinese", LLMProvider: "fake"})

	rec := doRequest(s, http.MethodGet, "/api/tasks/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["total"])
	_, ok := body["stats"].(map[string]interface{})
	assert.True(t, ok)
}

func TestCreateTasksFromDirectory(t *testing.T) {
	s, _ := newTestServer(t)
	dir := t.TempDir()
	writeSRT(t, dir, "a.srt")
	writeSRT(t, dir, "b.srt")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	rec := doRequest(s, http.MethodPost, "/api/tasks/directory", createTasksFromDirectoryRequest{
		DirectoryPath: dir, TargetLanguage: "Chinese", LLMProvider: "fake",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["created_count"])
	assert.Len(t, body["task_ids"], 2)
}

func TestWatcherCreateListDelete(t *testing.T) {
	s, _ := newTestServer(t)
	dir := t.TempDir()

	rec := doRequest(s, http.MethodPost, "/api/watchers", createWatcherRequest{Path: dir, TargetLanguage: "Chinese", LLMProvider: "fake"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var w store.Watcher
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &w))

	rec = doRequest(s, http.MethodGet, "/api/watchers", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodDelete, "/api/watchers/"+strconv.Itoa(int(w.ID)), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWatcherToggleFlipsWithoutBody(t *testing.T) {
	s, st := newTestServer(t)
	dir := t.TempDir()

	rec := doRequest(s, http.MethodPost, "/api/watchers", createWatcherRequest{Path: dir, TargetLanguage: "Chinese", LLMProvider: "fake"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var w store.Watcher
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &w))
	require.True(t, w.Enabled)

	rec = doRequest(s, http.MethodPost, "/api/watchers/"+strconv.Itoa(int(w.ID))+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list, err := st.ListWatchers()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Enabled)
}

func TestCreateWatcherRejectsDuplicatePath(t *testing.T) {
	s, _ := newTestServer(t)
	dir := t.TempDir()

	rec := doRequest(s, http.MethodPost, "/api/watchers", createWatcherRequest{Path: dir, TargetLanguage: "Chinese", LLMProvider: "fake"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/watchers", createWatcherRequest{Path: dir, TargetLanguage: "Chinese", LLMProvider: "fake"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsGetPutRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	want := store.DefaultSettings()
	want.TargetLanguage = "Korean"
	rec = doRequest(s, http.MethodPut, "/api/settings", want)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/settings", nil)
	var got store.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Korean", got.TargetLanguage)
}

func TestSettingsPutRejectsInvalidConcurrency(t *testing.T) {
	s, _ := newTestServer(t)
	bad := store.DefaultSettings()
	bad.MaxConcurrentTasks = 0
	rec := doRequest(s, http.MethodPut, "/api/settings", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLLMProvidersAndLanguagesEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/settings/llm-providers", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(s, http.MethodGet, "/api/settings/languages", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
