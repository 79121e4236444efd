package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kaelin-dev/subtrans/internal/apperr"
	"github.com/kaelin-dev/subtrans/internal/llm"
	"github.com/kaelin-dev/subtrans/internal/media"
	"github.com/kaelin-dev/subtrans/internal/skip"
	"github.com/kaelin-dev/subtrans/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- tasks ---

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	limit, offset := 50, 0
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		offset = v
	}

	tasks, total, err := s.store.ListTasks(status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks, "total": total, "limit": limit, "offset": offset,
	})
}

// handleTaskStats returns per-status task counts plus a total.
func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	stats, total, err := s.store.TaskStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": stats, "total": total})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	t, err := s.store.GetTask(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type createTaskRequest struct {
	FilePath       string `json:"file_path"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	LLMProvider    string `json:"llm_provider"`
	SubtitleTrack  *int   `json:"subtitle_track"`
	ForceOverride  bool   `json:"force_override"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	t, decision, err := s.submitOne(r.Context(), req)
	if err != nil {
		if ue, ok := err.(*apperr.UserError); ok {
			writeError(w, http.StatusBadRequest, ue.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"skipped": true, "reason": decision.Reason})
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// submitOne runs the Skip Oracle and, if it says PROCEED, submits a task
// to the Scheduler; returns (nil, decision, nil) on a skip.
func (s *Server) submitOne(ctx context.Context, req createTaskRequest) (*store.Task, skip.Decision, error) {
	req.FilePath = expandHome(req.FilePath)
	if info, err := os.Stat(req.FilePath); err != nil || info.IsDir() {
		return nil, skip.Decision{}, &apperr.UserError{Message: "file does not exist: " + req.FilePath}
	}
	settings, err := s.store.GetSettings()
	if err != nil {
		return nil, skip.Decision{}, err
	}
	targetLang := req.TargetLanguage
	if targetLang == "" {
		targetLang = settings.TargetLanguage
	}
	provider := req.LLMProvider
	if provider == "" {
		provider = settings.DefaultLLM
	}

	decision, err := skip.Evaluate(ctx, skip.Request{
		Path:           req.FilePath,
		TargetLanguage: targetLang,
		ForceOverride:  req.ForceOverride,
		OutputFormat:   settings.SubtitleOutputFormat,
		OverwriteMKV:   settings.OverwriteMKV,
		Bilingual:      settings.BilingualOutput,
	}, s.store)
	if err != nil {
		return nil, skip.Decision{}, err
	}
	if !decision.Proceed {
		return nil, decision, nil
	}

	t := &store.Task{
		FilePath:       req.FilePath,
		FileName:       filepath.Base(req.FilePath),
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: targetLang,
		LLMProvider:    provider,
		SubtitleTrack:  req.SubtitleTrack,
		ForceOverride:  req.ForceOverride,
	}
	if err := s.sched.Submit(t); err != nil {
		return nil, skip.Decision{}, err
	}
	return t, decision, nil
}

type createTasksFromDirectoryRequest struct {
	DirectoryPath  string `json:"directory_path"`
	Recursive      bool   `json:"recursive"`
	TargetLanguage string `json:"target_language"`
	LLMProvider    string `json:"llm_provider"`
	ForceOverride  bool   `json:"force_override"`
}

func (s *Server) handleCreateTasksFromDirectory(w http.ResponseWriter, r *http.Request) {
	var req createTasksFromDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.DirectoryPath == "" {
		writeError(w, http.StatusBadRequest, "missing directory_path")
		return
	}

	taskIDs := []int64{}
	walk := func(path string, isDir bool) error {
		if isDir {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".mkv" && ext != ".srt" && ext != ".ass" {
			return nil
		}
		t, _, err := s.submitOne(r.Context(), createTaskRequest{
			FilePath:       path,
			TargetLanguage: req.TargetLanguage,
			LLMProvider:    req.LLMProvider,
			ForceOverride:  req.ForceOverride,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("directory scan: task submission failed")
			return nil
		}
		if t != nil {
			taskIDs = append(taskIDs, t.ID)
		}
		return nil
	}

	dir := expandHome(req.DirectoryPath)
	var err error
	if req.Recursive {
		err = filepath.WalkDir(dir, func(p string, d os.DirEntry, werr error) error {
			if werr != nil {
				return nil
			}
			return walk(p, d.IsDir())
		})
	} else {
		entries, rerr := os.ReadDir(dir)
		err = rerr
		for _, de := range entries {
			_ = walk(filepath.Join(dir, de.Name()), de.IsDir())
		}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"created_count": len(taskIDs), "task_ids": taskIDs,
	})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	if _, err := s.sched.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	if err := s.sched.Retry(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type idsRequest struct {
	TaskIDs []int64 `json:"task_ids"`
}

func (s *Server) handlePauseAll(w http.ResponseWriter, r *http.Request) {
	n := s.sched.PauseAll()
	writeJSON(w, http.StatusOK, map[string]int{"paused_count": n})
}

func (s *Server) handlePauseSelected(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	n := 0
	for _, id := range req.TaskIDs {
		if err := s.sched.Pause(id); err == nil {
			n++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"paused_count": n})
}

func (s *Server) deleteTasks(ids []int64) (cancelled, deleted int) {
	for _, id := range ids {
		wasRunning, err := s.sched.Delete(id)
		if err != nil {
			continue
		}
		deleted++
		if wasRunning {
			cancelled++
		}
	}
	return cancelled, deleted
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	tasks, _, err := s.store.ListTasks("", 100000, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	cancelled, deleted := s.deleteTasks(ids)
	writeJSON(w, http.StatusOK, map[string]int{"cancelled_count": cancelled, "deleted_count": deleted})
}

func (s *Server) handleDeleteSelected(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	cancelled, deleted := s.deleteTasks(req.TaskIDs)
	writeJSON(w, http.StatusOK, map[string]int{"cancelled_count": cancelled, "deleted_count": deleted})
}

// --- files ---

type fileEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

// expandHome turns a leading "~" into the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func (s *Server) handleBrowseFiles(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("path")
	if dir == "" {
		dir = "~"
	}
	dir = expandHome(dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out := make([]fileEntry, 0, len(entries))
	for _, de := range entries {
		out = append(out, fileEntry{Name: de.Name(), Path: filepath.Join(dir, de.Name()), IsDir: de.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubtitleTracks(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("file_path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing file_path query parameter")
		return
	}
	tracks, err := media.ListTracks(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// --- watchers ---

func (s *Server) handleListWatchers(w http.ResponseWriter, r *http.Request) {
	ws, err := s.store.ListWatchers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

type createWatcherRequest struct {
	Path           string `json:"path"`
	TargetLanguage string `json:"target_language"`
	LLMProvider    string `json:"llm_provider"`
}

func (s *Server) handleCreateWatcher(w http.ResponseWriter, r *http.Request) {
	var req createWatcherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return
	}
	path := expandHome(req.Path)
	existing, err := s.store.ListWatchers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, e := range existing {
		if e.Path == path {
			writeError(w, http.StatusBadRequest, "a watcher for this path already exists")
			return
		}
	}
	watch := &store.Watcher{Path: path, Enabled: true, TargetLanguage: req.TargetLanguage, LLMProvider: req.LLMProvider}
	if err := s.store.CreateWatcher(watch); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.sup.StartWatcher(watch.ID, watch.Path); err != nil {
		s.logger.Warn().Err(err).Str("path", watch.Path).Msg("start watcher")
	}
	writeJSON(w, http.StatusCreated, watch)
}

func (s *Server) handleDeleteWatcher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid watcher id")
		return
	}
	s.sup.StopWatcher(id)
	if err := s.store.DeleteWatcher(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleWatcher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid watcher id")
		return
	}
	var target *store.Watcher
	watchers, err := s.store.ListWatchers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, watch := range watchers {
		if watch.ID == id {
			target = watch
		}
	}
	if target == nil {
		writeError(w, http.StatusNotFound, "watcher not found")
		return
	}

	// an explicit {"enabled": ...} body wins; an empty body flips
	enabled := !target.Enabled
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.Enabled != nil {
		enabled = *body.Enabled
	}

	if err := s.store.ToggleWatcher(id, enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if enabled {
		if err := s.sup.StartWatcher(target.ID, target.Path); err != nil {
			s.logger.Warn().Err(err).Str("path", target.Path).Msg("restart watcher")
		}
	} else {
		s.sup.StopWatcher(id)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "enabled": enabled})
}

// --- settings ---

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings store.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if settings.MaxConcurrentTasks < 1 || settings.MaxConcurrentTasks > 10 {
		writeError(w, http.StatusBadRequest, "max_concurrent_tasks must be between 1 and 10")
		return
	}
	// overwrite_mkv=true only makes sense with mkv output; a non-mkv
	// format wins and switches overwrite off.
	if settings.SubtitleOutputFormat != "mkv" {
		settings.OverwriteMKV = false
	}
	if err := s.store.SaveSettings(settings); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.sched.SetMaxConcurrent(settings.MaxConcurrentTasks)
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleLLMProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]interface{}{
		{"id": "openai", "name": "OpenAI", "default_model": "gpt-4o-mini",
			"models": []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1-mini", "gpt-4.1"}},
		{"id": "claude", "name": "Claude", "default_model": "claude-sonnet-4-20250514",
			"models": []string{"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022"}},
		{"id": "deepseek", "name": "DeepSeek", "default_model": "deepseek-chat",
			"models": []string{"deepseek-chat", "deepseek-reasoner"}},
		{"id": "glm", "name": "GLM", "default_model": "glm-4-flash",
			"models": []string{"glm-4-flash", "glm-4-plus", "glm-4-air"}},
	})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []string{"Chinese", "English", "Japanese", "Korean", "Spanish", "French", "German"})
}

type testLLMRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
}

func (s *Server) handleTestLLM(w http.ResponseWriter, r *http.Request) {
	var req testLLMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	p, err := llm.New(req.Provider, req.APIKey, req.Model, req.BaseURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := p.Healthcheck(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}
