package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTaskCreateGetUpdateDelete(t *testing.T) {
	s := openTestStore(t)

	task := &Task{
		FilePath:       "/media/show.mkv",
		FileName:       "show.mkv",
		Status:         StatusPending,
		TargetLanguage: "Chinese",
		LLMProvider:    "openai",
	}
	require.NoError(t, s.CreateTask(task))
	assert.NotZero(t, task.ID)

	fetched, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "show.mkv", fetched.FileName)
	assert.Equal(t, StatusPending, fetched.Status)

	fetched.Status = StatusCompleted
	fetched.Progress = 100
	require.NoError(t, s.UpdateTask(fetched))

	updated, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.Equal(t, 100, updated.Progress)

	require.NoError(t, s.DeleteTask(task.ID))
	_, err = s.GetTask(task.ID)
	assert.Error(t, err)
}

func TestListTasksFilterAndPagination(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateTask(&Task{
			FilePath: "/a.mkv", FileName: "a.mkv", Status: StatusPending,
			TargetLanguage: "Chinese", LLMProvider: "openai",
		}))
	}
	require.NoError(t, s.CreateTask(&Task{
		FilePath: "/b.mkv", FileName: "b.mkv", Status: StatusCompleted,
		TargetLanguage: "Chinese", LLMProvider: "openai",
	}))

	pending, total, err := s.ListTasks("pending", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, pending, 3)

	page, total, err := s.ListTasks("", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, page, 2)
}

func TestActiveTaskExistsUniqueness(t *testing.T) {
	s := openTestStore(t)

	exists, err := s.ActiveTaskExists("/a.mkv", "Chinese")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.CreateTask(&Task{
		FilePath: "/a.mkv", FileName: "a.mkv", Status: StatusProcessing,
		TargetLanguage: "Chinese", LLMProvider: "openai",
	}))

	exists, err = s.ActiveTaskExists("/a.mkv", "Chinese")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.ActiveTaskExists("/a.mkv", "French")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecoverProcessingTasks(t *testing.T) {
	s := openTestStore(t)

	task := &Task{FilePath: "/a.mkv", FileName: "a.mkv", Status: StatusProcessing,
		TargetLanguage: "Chinese", LLMProvider: "openai"}
	require.NoError(t, s.CreateTask(task))
	require.NoError(t, s.UpdateTask(&Task{ID: task.ID, Status: StatusProcessing}))

	ids, err := s.RecoverProcessingTasks()
	require.NoError(t, err)
	assert.Contains(t, ids, task.ID)

	recovered, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, recovered.Status)
}

func TestWatcherCRUD(t *testing.T) {
	s := openTestStore(t)

	w := &Watcher{Path: "/watch/dir", Enabled: true, TargetLanguage: "Chinese", LLMProvider: "openai"}
	require.NoError(t, s.CreateWatcher(w))
	assert.NotZero(t, w.ID)

	list, err := s.ListWatchers()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "/watch/dir", list[0].Path)

	require.NoError(t, s.ToggleWatcher(w.ID, false))
	list, err = s.ListWatchers()
	require.NoError(t, err)
	assert.False(t, list[0].Enabled)

	require.NoError(t, s.DeleteWatcher(w.ID))
	list, err = s.ListWatchers()
	require.NoError(t, err)
	assert.Len(t, list, 0)
}

func TestSettingsRoundTripIncludingToolPaths(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), got)

	want := DefaultSettings()
	want.OpenAIAPIKey = "sk-test"
	want.TargetLanguage = "Japanese"
	want.MaxConcurrentTasks = 4
	want.FFmpegPath = "/opt/tools/ffmpeg"
	want.FFprobePath = "/opt/tools/ffprobe"
	want.MkvmergePath = "/opt/tools/mkvmerge"
	want.MkvextractPath = "/opt/tools/mkvextract"

	require.NoError(t, s.SaveSettings(want))
	got, err = s.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want.MaxConcurrentTasks = 8
	require.NoError(t, s.SaveSettings(want))
	got, err = s.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, 8, got.MaxConcurrentTasks)
}

func TestHistoryInsertAndLookup(t *testing.T) {
	s := openTestStore(t)

	has, err := s.HasHistory("/canonical/a.mkv", "Chinese")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.InsertHistory(&HistoryRecord{CanonicalFilePath: "/canonical/a.mkv", TargetLanguage: "Chinese"}))

	has, err = s.HasHistory("/canonical/a.mkv", "Chinese")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasHistory("/canonical/a.mkv", "French")
	require.NoError(t, err)
	assert.False(t, has)

	// re-inserting the same (path, language) updates rather than erroring
	require.NoError(t, s.InsertHistory(&HistoryRecord{CanonicalFilePath: "/canonical/a.mkv", TargetLanguage: "Chinese"}))
}
