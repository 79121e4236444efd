// Package store is the sqlite-backed persistence layer for tasks,
// watchers, the settings singleton, and completion history
// (modernc.org/sqlite, no CGo; WAL mode, idempotent schema init).
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign_keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT NOT NULL,
	file_name TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	source_language TEXT,
	target_language TEXT NOT NULL,
	llm_provider TEXT NOT NULL,
	subtitle_track INTEGER,
	force_override INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_path_lang ON tasks(file_path, target_language);

CREATE TABLE IF NOT EXISTS watchers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	enabled INTEGER NOT NULL DEFAULT 1,
	target_language TEXT NOT NULL,
	llm_provider TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	openai_api_key TEXT, openai_model TEXT, openai_base_url TEXT,
	claude_api_key TEXT, claude_model TEXT,
	deepseek_api_key TEXT, deepseek_model TEXT, deepseek_base_url TEXT,
	glm_api_key TEXT, glm_model TEXT, glm_base_url TEXT,
	default_llm TEXT,
	target_language TEXT, source_language TEXT,
	bilingual_output INTEGER,
	subtitle_output_format TEXT,
	overwrite_mkv INTEGER,
	max_concurrent_tasks INTEGER,
	ffmpeg_path TEXT, ffprobe_path TEXT, mkvmerge_path TEXT, mkvextract_path TEXT
);

CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	canonical_file_path TEXT NOT NULL,
	target_language TEXT NOT NULL,
	completed_at DATETIME NOT NULL,
	UNIQUE(canonical_file_path, target_language)
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// --- tasks ---

func (s *Store) CreateTask(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	res, err := s.db.Exec(`INSERT INTO tasks
		(file_path, file_name, status, progress, source_language, target_language,
		 llm_provider, subtitle_track, force_override, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.FilePath, t.FileName, t.Status, t.Progress, t.SourceLanguage, t.TargetLanguage,
		t.LLMProvider, t.SubtitleTrack, t.ForceOverride, now, now)
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func (s *Store) UpdateTask(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.UpdatedAt = time.Now()
	_, err := s.db.Exec(`UPDATE tasks SET status=?, progress=?, error_message=?,
		subtitle_track=?, updated_at=?, completed_at=? WHERE id=?`,
		t.Status, t.Progress, t.ErrorMessage, t.SubtitleTrack, t.UpdatedAt, t.CompletedAt, t.ID)
	return err
}

func (s *Store) DeleteTask(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id=?`, id)
	return err
}

func (s *Store) GetTask(id int64) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(`SELECT id, file_path, file_name, status, progress, source_language,
		target_language, llm_provider, subtitle_track, force_override, error_message,
		created_at, updated_at, completed_at FROM tasks WHERE id=?`, id)
	return scanTask(row)
}

// ListTasks returns tasks matching an optional status filter, paginated.
func (s *Store) ListTasks(status string, limit, offset int) ([]*Task, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := "", []interface{}{}
	if status != "" {
		where = "WHERE status=?"
		args = append(args, status)
	}

	var total int
	if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM tasks %s", where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := s.db.Query(fmt.Sprintf(`SELECT id, file_path, file_name, status, progress, source_language,
		target_language, llm_provider, subtitle_track, force_override, error_message,
		created_at, updated_at, completed_at FROM tasks %s ORDER BY id LIMIT ? OFFSET ?`, where), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

// TaskStats returns the count of tasks per status.
func (s *Store) TaskStats() (map[string]int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	stats := map[string]int{}
	total := 0
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, 0, err
		}
		stats[status] = count
		total += count
	}
	return stats, total, rows.Err()
}

// ActiveTaskExists reports whether (file_path, target_language) already
// has a task in pending/processing/paused; at most one such task may
// exist per pair.
func (s *Store) ActiveTaskExists(filePath, targetLang string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE file_path=? AND target_language=?
		AND status IN ('pending','processing','paused')`, filePath, targetLang).Scan(&n)
	return n > 0, err
}

// RecoverProcessingTasks marks every task in 'processing' as 'pending'
// (crash-safe startup recovery) and returns their ids.
func (s *Store) RecoverProcessingTasks() ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id FROM tasks WHERE status='processing'`)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	_, err = s.db.Exec(`UPDATE tasks SET status='pending', updated_at=? WHERE status='processing'`, time.Now())
	return ids, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var subtitleTrack sql.NullInt64
	var errMsg sql.NullString
	var completedAt sql.NullTime
	var sourceLang sql.NullString

	err := row.Scan(&t.ID, &t.FilePath, &t.FileName, &t.Status, &t.Progress, &sourceLang,
		&t.TargetLanguage, &t.LLMProvider, &subtitleTrack, &t.ForceOverride, &errMsg,
		&t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if subtitleTrack.Valid {
		v := int(subtitleTrack.Int64)
		t.SubtitleTrack = &v
	}
	t.ErrorMessage = errMsg.String
	t.SourceLanguage = sourceLang.String
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

// --- watchers ---

func (s *Store) CreateWatcher(w *Watcher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.CreatedAt = time.Now()
	res, err := s.db.Exec(`INSERT INTO watchers (path, enabled, target_language, llm_provider, created_at)
		VALUES (?,?,?,?,?)`, w.Path, w.Enabled, w.TargetLanguage, w.LLMProvider, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create watcher: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	w.ID = id
	return nil
}

func (s *Store) ListWatchers() ([]*Watcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, path, enabled, target_language, llm_provider, created_at FROM watchers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Watcher
	for rows.Next() {
		var w Watcher
		if err := rows.Scan(&w.ID, &w.Path, &w.Enabled, &w.TargetLanguage, &w.LLMProvider, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

func (s *Store) ToggleWatcher(id int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE watchers SET enabled=? WHERE id=?`, enabled, id)
	return err
}

func (s *Store) DeleteWatcher(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM watchers WHERE id=?`, id)
	return err
}

// --- settings ---

// SettingsExist reports whether the singleton settings row has ever been
// saved, distinguishing a fresh database (no row, GetSettings falls back
// to DefaultSettings) from one already configured with those same values.
func (s *Store) SettingsExist() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM settings WHERE id=1`).Scan(&n)
	return n > 0, err
}

func (s *Store) GetSettings() (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT openai_api_key, openai_model, openai_base_url,
		claude_api_key, claude_model, deepseek_api_key, deepseek_model, deepseek_base_url,
		glm_api_key, glm_model, glm_base_url, default_llm, target_language, source_language,
		bilingual_output, subtitle_output_format, overwrite_mkv, max_concurrent_tasks,
		ffmpeg_path, ffprobe_path, mkvmerge_path, mkvextract_path
		FROM settings WHERE id=1`)

	var st Settings
	err := row.Scan(&st.OpenAIAPIKey, &st.OpenAIModel, &st.OpenAIBaseURL,
		&st.ClaudeAPIKey, &st.ClaudeModel, &st.DeepSeekAPIKey, &st.DeepSeekModel, &st.DeepSeekBaseURL,
		&st.GLMAPIKey, &st.GLMModel, &st.GLMBaseURL, &st.DefaultLLM, &st.TargetLanguage, &st.SourceLanguage,
		&st.BilingualOutput, &st.SubtitleOutputFormat, &st.OverwriteMKV, &st.MaxConcurrentTasks,
		&st.FFmpegPath, &st.FFprobePath, &st.MkvmergePath, &st.MkvextractPath)
	if err == sql.ErrNoRows {
		return DefaultSettings(), nil
	}
	return st, err
}

// SaveSettings upserts the singleton settings row.
func (s *Store) SaveSettings(st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO settings (id, openai_api_key, openai_model, openai_base_url,
		claude_api_key, claude_model, deepseek_api_key, deepseek_model, deepseek_base_url,
		glm_api_key, glm_model, glm_base_url, default_llm, target_language, source_language,
		bilingual_output, subtitle_output_format, overwrite_mkv, max_concurrent_tasks,
		ffmpeg_path, ffprobe_path, mkvmerge_path, mkvextract_path)
		VALUES (1,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			openai_api_key=excluded.openai_api_key, openai_model=excluded.openai_model,
			openai_base_url=excluded.openai_base_url, claude_api_key=excluded.claude_api_key,
			claude_model=excluded.claude_model, deepseek_api_key=excluded.deepseek_api_key,
			deepseek_model=excluded.deepseek_model, deepseek_base_url=excluded.deepseek_base_url,
			glm_api_key=excluded.glm_api_key, glm_model=excluded.glm_model, glm_base_url=excluded.glm_base_url,
			default_llm=excluded.default_llm, target_language=excluded.target_language,
			source_language=excluded.source_language, bilingual_output=excluded.bilingual_output,
			subtitle_output_format=excluded.subtitle_output_format, overwrite_mkv=excluded.overwrite_mkv,
			max_concurrent_tasks=excluded.max_concurrent_tasks,
			ffmpeg_path=excluded.ffmpeg_path, ffprobe_path=excluded.ffprobe_path,
			mkvmerge_path=excluded.mkvmerge_path, mkvextract_path=excluded.mkvextract_path`,
		st.OpenAIAPIKey, st.OpenAIModel, st.OpenAIBaseURL,
		st.ClaudeAPIKey, st.ClaudeModel, st.DeepSeekAPIKey, st.DeepSeekModel, st.DeepSeekBaseURL,
		st.GLMAPIKey, st.GLMModel, st.GLMBaseURL, st.DefaultLLM, st.TargetLanguage, st.SourceLanguage,
		st.BilingualOutput, st.SubtitleOutputFormat, st.OverwriteMKV, st.MaxConcurrentTasks,
		st.FFmpegPath, st.FFprobePath, st.MkvmergePath, st.MkvextractPath)
	return err
}

// --- history ---

func (s *Store) InsertHistory(h *HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.CompletedAt = time.Now()
	_, err := s.db.Exec(`INSERT INTO history (canonical_file_path, target_language, completed_at)
		VALUES (?,?,?) ON CONFLICT(canonical_file_path, target_language) DO UPDATE SET completed_at=excluded.completed_at`,
		h.CanonicalFilePath, h.TargetLanguage, h.CompletedAt)
	return err
}

func (s *Store) HasHistory(canonicalPath, targetLang string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM history WHERE canonical_file_path=? AND target_language=?`,
		canonicalPath, targetLang).Scan(&n)
	return n > 0, err
}
