// Package pipeline drives one task's extract→chunk→translate→assemble→
// place state machine inside a single scheduler-owned worker slot,
// checkpointing after every chunk so a paused or interrupted task can
// resume without resending already-translated batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kaelin-dev/subtrans/internal/apperr"
	"github.com/kaelin-dev/subtrans/internal/langtag"
	"github.com/kaelin-dev/subtrans/internal/llm"
	"github.com/kaelin-dev/subtrans/internal/media"
	"github.com/kaelin-dev/subtrans/internal/subscodec"
)

// ErrPaused is returned by Run when a pause was observed at a
// suspension point; the caller (Scheduler) treats it as a normal
// control transition, not a failure.
var ErrPaused = errors.New("pipeline: paused")

// Task is the subset of store.Task the Pipeline needs; kept as a local
// struct (rather than importing store directly) so Pipeline tests don't
// need a database.
type Task struct {
	ID             int64
	FilePath       string
	SourceLanguage string
	TargetLanguage string
	SubtitleTrack  *int
	ForceOverride  bool
}

// Config configures output shape, independent of any one task.
type Config struct {
	ScratchRoot          string // parent of every task's scratch dir
	BilingualOutput      bool
	SubtitleOutputFormat string // "mkv", "srt", or "ass"
	OverwriteMKV         bool
}

// Hooks let the Scheduler observe progress and persist state without
// the Pipeline depending on the store or progress-bus packages
// directly.
type Hooks struct {
	OnProgress  func(pct int)
	OnStatus    func(status string, errMsg string)
	OnHistory   func(canonicalPath, targetLangCode string) error
	ShouldPause func() bool
}

type Pipeline struct {
	Provider llm.Provider
	Config   Config
	Hooks    Hooks
}

func New(provider llm.Provider, cfg Config, hooks Hooks) *Pipeline {
	return &Pipeline{Provider: provider, Config: cfg, Hooks: hooks}
}

// Run executes INIT through DONE (or a side transition) for one task.
func (p *Pipeline) Run(ctx context.Context, task Task) error {
	scratch := filepath.Join(p.Config.ScratchRoot, fmt.Sprintf("%d", task.ID))

	p.status("processing", "")
	if cp, err := loadCheckpoint(scratch); err != nil || cp == nil {
		// a resuming task keeps its checkpointed progress instead of
		// briefly flashing back to 0
		p.progress(0)
	}

	target, err := langtag.Resolve(task.TargetLanguage)
	if err != nil {
		return p.fail(scratch, &apperr.ConsistencyError{Message: fmt.Sprintf("pipeline: resolve target language: %v", err)})
	}

	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return p.fail(scratch, fmt.Errorf("pipeline: create scratch dir: %w", err))
	}

	// --- INIT / EXTRACTING ---
	isMKV := strings.EqualFold(filepath.Ext(task.FilePath), ".mkv")
	extractedPath := task.FilePath
	var mkvTracks []media.Track

	if isMKV {
		mkvTracks, err = media.ListTracks(ctx, task.FilePath)
		if err != nil {
			return p.fail(scratch, err)
		}
		trackIdx, ext, err := selectTrack(mkvTracks, task)
		if err != nil {
			return p.fail(scratch, err)
		}
		extractedPath = filepath.Join(scratch, "extracted."+ext)
		if p.paused() {
			return p.pause(scratch, nil)
		}
		if err := media.ExtractTrack(ctx, task.FilePath, trackIdx, extractedPath); err != nil {
			return p.fail(scratch, err)
		}
	}

	// --- CHUNKING ---
	subs, err := subscodec.Open(extractedPath)
	if err != nil {
		return p.fail(scratch, err)
	}
	units := subs.Units()
	chunks := BuildChunks(units)

	startIdx := 0
	translated := make([]string, len(units))
	if cp, err := loadCheckpoint(scratch); err == nil && cp != nil && cp.TotalChunks == len(chunks) {
		startIdx = cp.CompletedChunks
		copy(translated, cp.TranslatedUnits)
	}

	// --- TRANSLATING ---
	systemPrompt := buildSystemPrompt(task.SourceLanguage, task.TargetLanguage)
	offset := chunkOffset(chunks, startIdx)

	for i := startIdx; i < len(chunks); i++ {
		select {
		case <-ctx.Done():
			return p.cancel(scratch, ctx.Err())
		default:
		}
		if p.paused() {
			return p.pause(scratch, nil)
		}

		chunk := chunks[i]
		payload := make([]llm.Line, len(chunk.Units))
		for j, u := range chunk.Units {
			payload[j] = llm.Line{ID: j, Text: u.Text}
		}

		result, err := llm.TranslateBatch(ctx, p.Provider, payload, systemPrompt)
		if err != nil {
			if ctx.Err() != nil {
				return p.cancel(scratch, ctx.Err())
			}
			return p.fail(scratch, classifyLLMError(err))
		}

		byID := make(map[int]string, len(result))
		for _, r := range result {
			byID[r.ID] = r.Text
		}
		for j, u := range chunk.Units {
			text, ok := byID[j]
			if !ok {
				text = u.Text
			}
			translated[offset+j] = text
		}
		offset += len(chunk.Units)

		if err := saveCheckpoint(scratch, Checkpoint{
			TaskID: task.ID, CompletedChunks: i + 1, TotalChunks: len(chunks), TranslatedUnits: translated,
		}); err != nil {
			return p.fail(scratch, fmt.Errorf("pipeline: save checkpoint: %w", err))
		}
		p.progress(pctForChunks(i+1, len(chunks)))
	}

	// --- ASSEMBLING ---
	sep := ""
	if err := subs.ApplyTranslations(translated, p.Config.BilingualOutput, sep); err != nil {
		return p.fail(scratch, err)
	}
	subFormat := subs.Format
	if f := p.Config.SubtitleOutputFormat; f == "srt" || f == "ass" {
		subFormat = subscodec.Format(f)
	}
	subs.Format = subFormat
	assembledPath := filepath.Join(scratch, "assembled."+string(subFormat))
	if p.paused() {
		return p.pause(scratch, nil)
	}
	if err := subs.Write(assembledPath); err != nil {
		return p.fail(scratch, fmt.Errorf("pipeline: write assembled subtitle: %w", err))
	}

	// --- PLACING ---
	if p.paused() {
		return p.pause(scratch, nil)
	}
	select {
	case <-ctx.Done():
		return p.cancel(scratch, ctx.Err())
	default:
	}
	if err := p.place(ctx, task, assembledPath, scratch, isMKV, target); err != nil {
		return p.fail(scratch, err)
	}

	if p.Hooks.OnHistory != nil {
		canonical, absErr := filepath.Abs(task.FilePath)
		if absErr != nil {
			canonical = task.FilePath
		}
		if err := p.Hooks.OnHistory(canonical, target.Code()); err != nil {
			return p.fail(scratch, fmt.Errorf("pipeline: record history: %w", err))
		}
	}

	os.RemoveAll(scratch)
	p.progress(100)
	p.status("completed", "")
	return nil
}

// place writes the assembled subtitle to its final destination: a
// sibling <stem>.<lang>.<ext> for srt/ass output, or a remuxed MKV
// (new sibling or in-place, per OverwriteMKV) for mkv output. Every
// path goes through media.PlaceFile so a destination on another mount
// degrades to copy-then-unlink instead of failing on EXDEV.
func (p *Pipeline) place(ctx context.Context, task Task, assembledPath, scratch string, isMKV bool, target langtag.Tag) error {
	dir := filepath.Dir(task.FilePath)
	stem := strings.TrimSuffix(filepath.Base(task.FilePath), filepath.Ext(task.FilePath))
	format := p.Config.SubtitleOutputFormat

	if format == "mkv" {
		if !isMKV {
			return &apperr.ConsistencyError{Message: "invalid_output_format: subtitle_output_format=mkv requires an MKV source"}
		}
		muxed := filepath.Join(scratch, "muxed.mkv")
		if err := media.Merge(ctx, media.MergeOptions{
			SourceMKV:    task.FilePath,
			SubtitlePath: assembledPath,
			OutputMKV:    muxed,
			LanguageTag:  target.Code(),
			Default:      p.Config.OverwriteMKV,
		}); err != nil {
			return err
		}
		dst := filepath.Join(dir, stem+".translated.mkv")
		if p.Config.OverwriteMKV {
			dst = task.FilePath
		}
		return media.PlaceFile(muxed, dst)
	}

	ext := strings.TrimPrefix(filepath.Ext(assembledPath), ".")
	dst := filepath.Join(dir, fmt.Sprintf("%s.%s.%s", stem, target.Code(), ext))
	return media.PlaceFile(assembledPath, dst)
}

func selectTrack(tracks []media.Track, task Task) (int, string, error) {
	if task.SubtitleTrack != nil {
		for _, t := range tracks {
			if t.Index == *task.SubtitleTrack {
				return t.Index, extFromCodec(t.Codec), nil
			}
		}
		return 0, "", fmt.Errorf("pipeline: subtitle track %d not found", *task.SubtitleTrack)
	}
	t, ok := media.SelectSubtitleTrack(tracks, task.SourceLanguage, task.TargetLanguage)
	if !ok {
		return 0, "", &apperr.ConsistencyError{Message: "pipeline: no subtitle track found in MKV"}
	}
	return t.Index, extFromCodec(t.Codec), nil
}

func extFromCodec(codec string) string {
	lc := strings.ToLower(codec)
	if strings.Contains(lc, "ass") || strings.Contains(lc, "ssa") || strings.Contains(lc, "substation") {
		return "ass"
	}
	return "srt"
}

func buildSystemPrompt(sourceLang, targetLang string) string {
	src := sourceLang
	if src == "" {
		src = "auto-detected source language"
	}
	return fmt.Sprintf(
		"Translate each numbered subtitle text from %s into %s. "+
			"Preserve the exact count and order of entries, and preserve inline "+
			"markup (ASS override tags like {\\i1}, HTML-style tags). "+
			"Respond with only a JSON array of {\"i\":<id>,\"t\":<translation>} objects.",
		src, targetLang)
}

func chunkOffset(chunks []Chunk, upTo int) int {
	n := 0
	for i := 0; i < upTo && i < len(chunks); i++ {
		n += len(chunks[i].Units)
	}
	return n
}

// pctForChunks is floor(100 * done/total * 0.95), reserving the last 5%
// for assembly and placement so progress only reaches 100 once the task
// actually completes.
func pctForChunks(done, total int) int {
	if total == 0 {
		return 95
	}
	return done * 95 / total
}

func classifyLLMError(err error) error {
	if llm.IsAuthError(err) {
		var pe *llm.ProviderError
		errors.As(err, &pe)
		return &apperr.AuthError{Provider: pe.Provider, Message: pe.Message}
	}
	return &apperr.TransientError{Op: "translate_batch", Err: err}
}

func (p *Pipeline) progress(pct int) {
	if p.Hooks.OnProgress != nil {
		p.Hooks.OnProgress(pct)
	}
}

func (p *Pipeline) status(status, errMsg string) {
	if p.Hooks.OnStatus != nil {
		p.Hooks.OnStatus(status, errMsg)
	}
}

func (p *Pipeline) paused() bool {
	return p.Hooks.ShouldPause != nil && p.Hooks.ShouldPause()
}

func (p *Pipeline) pause(scratch string, _ error) error {
	p.status("paused", "")
	return ErrPaused
}

func (p *Pipeline) cancel(scratch string, err error) error {
	os.RemoveAll(scratch)
	p.status("cancelled", "")
	return err
}

// fail releases the task's scratch arena and persists the terminal
// status; a failed task restarts from scratch on retry, so nothing in
// the arena is worth keeping.
func (p *Pipeline) fail(scratch string, err error) error {
	os.RemoveAll(scratch)
	p.status("failed", err.Error())
	return err
}
