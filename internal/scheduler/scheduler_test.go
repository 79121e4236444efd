package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelin-dev/subtrans/internal/llm"
	"github.com/kaelin-dev/subtrans/internal/progress"
	"github.com/kaelin-dev/subtrans/internal/store"
)

type fakeProvider struct {
	translate func([]llm.Line) []llm.Line
}

func (f fakeProvider) Name() string { return "fake" }
func (f fakeProvider) SendBatch(ctx context.Context, lines []llm.Line, systemPrompt string) ([]llm.Line, error) {
	return f.translate(lines), nil
}
func (f fakeProvider) Healthcheck(ctx context.Context) error { return nil }

const sampleSRT = `1
00:00:00,000 --> 00:00:01,000
Hello

2
00:00:01,000 --> 00:00:02,000
World

`

func newTestScheduler(t *testing.T, maxConcurrent int) (*Scheduler, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := progress.New()
	factory := func(providerName string) (llm.Provider, error) {
		return fakeProvider{translate: func(lines []llm.Line) []llm.Line {
			out := make([]llm.Line, len(lines))
			for i, l := range lines {
				out[i] = llm.Line{ID: l.ID, Text: "tr:" + l.Text}
			}
			return out
		}}, nil
	}
	sched := New(st, bus, factory, t.TempDir(), maxConcurrent, zerolog.Nop())
	return sched, st
}

func writeSampleFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "a.srt")
	require.NoError(t, os.WriteFile(path, []byte(sampleSRT), 0o644))
	return path
}

func waitForStatus(t *testing.T, st *store.Store, id int64, status store.TaskStatus, timeout time.Duration) *store.Task {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, err := st.GetTask(id)
		require.NoError(t, err)
		if task.Status == status {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %d did not reach status %s in time", id, status)
	return nil
}

func TestSubmitAndDispatchCompletesTask(t *testing.T) {
	sched, st := newTestScheduler(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.Start(ctx))

	path := writeSampleFile(t, t.TempDir())
	task := &store.Task{FilePath: path, FileName: "a.srt", TargetLanguage: "Chinese", LLMProvider: "fake"}
	require.NoError(t, sched.Submit(task))

	completed := waitForStatus(t, st, task.ID, store.StatusCompleted, 2*time.Second)
	assert.Equal(t, 100, completed.Progress)
	require.NotNil(t, completed.CompletedAt)
	assert.WithinDuration(t, time.Now(), *completed.CompletedAt, 5*time.Second)
}

func TestSubmitRejectedDuringShutdown(t *testing.T) {
	sched, _ := newTestScheduler(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.Start(ctx))
	require.NoError(t, sched.Shutdown(context.Background()))

	err := sched.Submit(&store.Task{FilePath: "/x.srt", FileName: "x.srt", TargetLanguage: "Chinese", LLMProvider: "fake"})
	assert.Error(t, err)
}

func TestRetryReEnqueuesFailedTask(t *testing.T) {
	sched, st := newTestScheduler(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.Start(ctx))

	task := &store.Task{FilePath: "/does/not/exist.srt", FileName: "exist.srt", TargetLanguage: "Chinese", LLMProvider: "fake"}
	require.NoError(t, st.CreateTask(task))
	task.Status = store.StatusFailed
	require.NoError(t, st.UpdateTask(task))

	require.NoError(t, sched.Retry(task.ID))
	reloaded, err := st.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, reloaded.Status)
	assert.Equal(t, 0, reloaded.Progress)
}

func TestRetryFromPausedKeepsProgress(t *testing.T) {
	sched, st := newTestScheduler(t, 1)

	task := &store.Task{FilePath: "/a.srt", FileName: "a.srt", TargetLanguage: "Chinese", LLMProvider: "fake"}
	require.NoError(t, st.CreateTask(task))
	task.Status = store.StatusPaused
	task.Progress = 38
	require.NoError(t, st.UpdateTask(task))

	require.NoError(t, sched.Retry(task.ID))
	reloaded, err := st.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, reloaded.Status)
	assert.Equal(t, 38, reloaded.Progress)
}

func TestPausePendingTaskDirectly(t *testing.T) {
	sched, st := newTestScheduler(t, 1)
	task := &store.Task{FilePath: "/a.srt", FileName: "a.srt", TargetLanguage: "Chinese", LLMProvider: "fake", Status: store.StatusPending}
	require.NoError(t, st.CreateTask(task))

	require.NoError(t, sched.Pause(task.ID))
	reloaded, err := st.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPaused, reloaded.Status)
}

func TestSetMaxConcurrentClampsRange(t *testing.T) {
	sched, _ := newTestScheduler(t, 2)
	sched.SetMaxConcurrent(50)
	sched.slotMu.Lock()
	assert.Equal(t, 10, sched.limit)
	sched.slotMu.Unlock()

	sched.SetMaxConcurrent(0)
	sched.slotMu.Lock()
	assert.Equal(t, 1, sched.limit)
	sched.slotMu.Unlock()
}

func TestRetryRejectsActiveTask(t *testing.T) {
	sched, st := newTestScheduler(t, 1)
	task := &store.Task{FilePath: "/a.srt", FileName: "a.srt", TargetLanguage: "Chinese", LLMProvider: "fake", Status: store.StatusPending}
	require.NoError(t, st.CreateTask(task))

	err := sched.Retry(task.ID)
	assert.Error(t, err)
}

func TestDeleteRemovesTaskRow(t *testing.T) {
	sched, st := newTestScheduler(t, 1)
	task := &store.Task{FilePath: "/a.srt", FileName: "a.srt", TargetLanguage: "Chinese", LLMProvider: "fake", Status: store.StatusPending}
	require.NoError(t, st.CreateTask(task))

	cancelled, err := sched.Delete(task.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)
	_, err = st.GetTask(task.ID)
	assert.Error(t, err)
}
