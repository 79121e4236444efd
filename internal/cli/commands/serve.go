package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kaelin-dev/subtrans/internal/config"
	"github.com/kaelin-dev/subtrans/internal/executils"
	"github.com/kaelin-dev/subtrans/internal/httpapi"
	"github.com/kaelin-dev/subtrans/internal/llm"
	"github.com/kaelin-dev/subtrans/internal/media"
	"github.com/kaelin-dev/subtrans/internal/progress"
	"github.com/kaelin-dev/subtrans/internal/scheduler"
	"github.com/kaelin-dev/subtrans/internal/skip"
	"github.com/kaelin-dev/subtrans/internal/store"
	"github.com/kaelin-dev/subtrans/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task scheduler, directory watchers, and HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("host", "127.0.0.1", "HTTP listen host")
	serveCmd.Flags().Int("port", 8080, "HTTP listen port")
	serveCmd.Flags().Int("max-concurrent", 0, "override max_concurrent_tasks from settings (0 = use settings)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := config.SeedFromEnvironment(st); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	settings, err := st.GetSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	maxConcurrent, _ := cmd.Flags().GetInt("max-concurrent")
	if maxConcurrent <= 0 {
		maxConcurrent = settings.MaxConcurrentTasks
	}

	media.Tools = executils.ToolPaths{
		FFmpeg:     settings.FFmpegPath,
		FFprobe:    settings.FFprobePath,
		Mkvmerge:   settings.MkvmergePath,
		Mkvextract: settings.MkvextractPath,
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	scratchRoot := filepath.Join(dataDir, "scratch")
	if err := os.MkdirAll(scratchRoot, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	bus := progress.New()
	sched := scheduler.New(st, bus, providerFactory(st), scratchRoot, maxConcurrent, logger)

	var sup *watcher.Supervisor
	sup = watcher.New(func(watcherID int64, path string) error {
		return submitFromWatcher(st, sched, sup, watcherID, path)
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	watchers, err := st.ListWatchers()
	if err != nil {
		return fmt.Errorf("list watchers: %w", err)
	}
	for _, w := range watchers {
		if !w.Enabled {
			continue
		}
		if err := sup.StartWatcher(w.ID, w.Path); err != nil {
			logger.Warn().Err(err).Str("path", w.Path).Msg("failed to start watcher")
		}
	}

	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host, httpCfg.Port = host, port
	server := httpapi.NewServer(httpCfg, st, sched, sup, bus, logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown")
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("scheduler shutdown")
	}
	return nil
}

func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, nil
	}
	dataDir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "app.db"), nil
}

// providerFactory builds the llm.Provider named by a task's llm_provider
// field from the current Settings row, re-read on every call so a
// Settings update takes effect on the next dispatched task.
func providerFactory(st *store.Store) scheduler.ProviderFactory {
	return func(providerName string) (llm.Provider, error) {
		settings, err := st.GetSettings()
		if err != nil {
			return nil, err
		}
		switch providerName {
		case "openai":
			return llm.New(providerName, settings.OpenAIAPIKey, settings.OpenAIModel, settings.OpenAIBaseURL)
		case "claude":
			return llm.New(providerName, settings.ClaudeAPIKey, settings.ClaudeModel, "")
		case "deepseek":
			return llm.New(providerName, settings.DeepSeekAPIKey, settings.DeepSeekModel, settings.DeepSeekBaseURL)
		case "glm":
			return llm.New(providerName, settings.GLMAPIKey, settings.GLMModel, settings.GLMBaseURL)
		default:
			return llm.New(providerName, "", "", "")
		}
	}
}

// submitFromWatcher runs the Skip Oracle on a candidate the Supervisor
// reports as stable, then submits it to the Scheduler on PROCEED.
func submitFromWatcher(st *store.Store, sched *scheduler.Scheduler, sup *watcher.Supervisor, watcherID int64, path string) error {
	watchers, err := st.ListWatchers()
	if err != nil {
		return err
	}
	var w *store.Watcher
	for _, candidate := range watchers {
		if candidate.ID == watcherID {
			w = candidate
			break
		}
	}
	if w == nil {
		return fmt.Errorf("watcher %d no longer exists", watcherID)
	}

	settings, err := st.GetSettings()
	if err != nil {
		return err
	}
	targetLang := w.TargetLanguage
	if targetLang == "" {
		targetLang = settings.TargetLanguage
	}
	provider := w.LLMProvider
	if provider == "" {
		provider = settings.DefaultLLM
	}

	decision, err := skip.Evaluate(context.Background(), skip.Request{
		Path:           path,
		TargetLanguage: targetLang,
		OutputFormat:   settings.SubtitleOutputFormat,
		OverwriteMKV:   settings.OverwriteMKV,
		Bilingual:      settings.BilingualOutput,
	}, st)
	if err != nil {
		return err
	}
	if !decision.Proceed {
		return nil
	}

	return sched.Submit(&store.Task{
		FilePath:       path,
		FileName:       filepath.Base(path),
		TargetLanguage: targetLang,
		LLMProvider:    provider,
	})
}
