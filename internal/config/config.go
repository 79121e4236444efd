// Package config resolves the on-disk data directory and seeds the
// sqlite Settings singleton's first-run defaults from environment
// variables. The mutable settings themselves live in the store, not a
// config file; the environment only matters on first run.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/kaelin-dev/subtrans/internal/store"
)

// DataDir returns the directory holding app.db and the scratch tree,
// creating it if absent.
func DataDir() (string, error) {
	dir := filepath.Join(xdg.DataHome, "subtrans")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// envOverlay lists the environment variables that seed Settings keys on
// first run; each mirrors a settings key in uppercase.
var envOverlay = []string{
	"openai_api_key", "openai_model", "openai_base_url",
	"claude_api_key", "claude_model",
	"deepseek_api_key", "deepseek_model", "deepseek_base_url",
	"glm_api_key", "glm_model", "glm_base_url",
	"default_llm",
	"target_language", "source_language",
	"bilingual_output",
	"subtitle_output_format",
	"overwrite_mkv",
	"max_concurrent_tasks",
}

// SeedFromEnvironment applies environment variables named after the
// settings keys (SUBTRANS_-prefixed or bare, uppercased) onto the default Settings, then persists the result as the initial
// singleton row if one doesn't already exist.
func SeedFromEnvironment(st *store.Store) error {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envOverlay {
		// SUBTRANS_OPENAI_API_KEY wins over the bare OPENAI_API_KEY form
		_ = v.BindEnv(key, "SUBTRANS_"+strings.ToUpper(key), strings.ToUpper(key))
	}

	settings := store.DefaultSettings()
	apply(v, &settings)

	exists, err := st.SettingsExist()
	if err != nil {
		return err
	}
	if exists {
		return nil // a settings row already exists; environment only seeds first run
	}
	return st.SaveSettings(settings)
}

func apply(v *viper.Viper, s *store.Settings) {
	strs := map[string]*string{
		"openai_api_key": &s.OpenAIAPIKey, "openai_model": &s.OpenAIModel, "openai_base_url": &s.OpenAIBaseURL,
		"claude_api_key": &s.ClaudeAPIKey, "claude_model": &s.ClaudeModel,
		"deepseek_api_key": &s.DeepSeekAPIKey, "deepseek_model": &s.DeepSeekModel, "deepseek_base_url": &s.DeepSeekBaseURL,
		"glm_api_key": &s.GLMAPIKey, "glm_model": &s.GLMModel, "glm_base_url": &s.GLMBaseURL,
		"default_llm": &s.DefaultLLM, "target_language": &s.TargetLanguage, "source_language": &s.SourceLanguage,
		"subtitle_output_format": &s.SubtitleOutputFormat,
	}
	for key, field := range strs {
		if v.IsSet(key) {
			*field = v.GetString(key)
		}
	}
	if v.IsSet("bilingual_output") {
		s.BilingualOutput = v.GetBool("bilingual_output")
	}
	if v.IsSet("overwrite_mkv") {
		s.OverwriteMKV = v.GetBool("overwrite_mkv")
	}
	if v.IsSet("max_concurrent_tasks") {
		if n, err := strconv.Atoi(v.GetString("max_concurrent_tasks")); err == nil {
			s.MaxConcurrentTasks = n
		}
	}
}
