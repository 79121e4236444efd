package store

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
	StatusPaused     TaskStatus = "paused"
)

// Active reports whether a task in this status occupies the
// (file_path, target_language) uniqueness slot.
func (s TaskStatus) Active() bool {
	return s == StatusPending || s == StatusProcessing || s == StatusPaused
}

// Task is a unit of translation work.
type Task struct {
	ID             int64      `json:"id"`
	FilePath       string     `json:"file_path"`
	FileName       string     `json:"file_name"`
	Status         TaskStatus `json:"status"`
	Progress       int        `json:"progress"`
	SourceLanguage string     `json:"source_language,omitempty"`
	TargetLanguage string     `json:"target_language"`
	LLMProvider    string     `json:"llm_provider"`
	SubtitleTrack  *int       `json:"subtitle_track,omitempty"`
	ForceOverride  bool       `json:"force_override"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Watcher is a persistent directive to ingest new files from a directory.
type Watcher struct {
	ID             int64     `json:"id"`
	Path           string    `json:"path"`
	Enabled        bool      `json:"enabled"`
	TargetLanguage string    `json:"target_language"`
	LLMProvider    string    `json:"llm_provider"`
	CreatedAt      time.Time `json:"created_at"`
}

// Settings is the singleton configuration row.
type Settings struct {
	OpenAIAPIKey    string `json:"openai_api_key"`
	OpenAIModel     string `json:"openai_model"`
	OpenAIBaseURL   string `json:"openai_base_url"`
	ClaudeAPIKey    string `json:"claude_api_key"`
	ClaudeModel     string `json:"claude_model"`
	DeepSeekAPIKey  string `json:"deepseek_api_key"`
	DeepSeekModel   string `json:"deepseek_model"`
	DeepSeekBaseURL string `json:"deepseek_base_url"`
	GLMAPIKey       string `json:"glm_api_key"`
	GLMModel        string `json:"glm_model"`
	GLMBaseURL      string `json:"glm_base_url"`
	DefaultLLM      string `json:"default_llm"`

	TargetLanguage string `json:"target_language"`
	SourceLanguage string `json:"source_language"`

	BilingualOutput      bool   `json:"bilingual_output"`
	SubtitleOutputFormat string `json:"subtitle_output_format"`
	OverwriteMKV         bool   `json:"overwrite_mkv"`
	MaxConcurrentTasks   int    `json:"max_concurrent_tasks"`

	// Tool path overrides, consulted by internal/executils.FindBinary
	// before it falls back to the XDG tools dir, the bin/ folder next
	// to the executable, and finally $PATH.
	FFmpegPath     string `json:"ffmpeg_path,omitempty"`
	FFprobePath    string `json:"ffprobe_path,omitempty"`
	MkvmergePath   string `json:"mkvmerge_path,omitempty"`
	MkvextractPath string `json:"mkvextract_path,omitempty"`
}

// DefaultSettings is the configuration a fresh install starts from.
func DefaultSettings() Settings {
	return Settings{
		OpenAIModel:          "gpt-4o-mini",
		ClaudeModel:          "claude-sonnet-4-20250514",
		DeepSeekModel:        "deepseek-chat",
		GLMModel:             "glm-4-flash",
		DefaultLLM:           "openai",
		TargetLanguage:       "Chinese",
		SourceLanguage:       "auto",
		BilingualOutput:      false,
		SubtitleOutputFormat: "srt",
		OverwriteMKV:         false,
		MaxConcurrentTasks:   2,
	}
}

// HistoryRecord is inserted once per successful completion and consulted
// by the Skip Oracle.
type HistoryRecord struct {
	ID                int64
	CanonicalFilePath string
	TargetLanguage    string
	CompletedAt       time.Time
}
