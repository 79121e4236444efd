// Package skip implements the decision of whether a (path, target
// language) pair warrants a new translation task, running an ordered
// chain of guard checks before a task is ever created.
package skip

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kaelin-dev/subtrans/internal/apperr"
	"github.com/kaelin-dev/subtrans/internal/langtag"
	"github.com/kaelin-dev/subtrans/internal/media"
)

// Decision is the Oracle's verdict: Proceed, or Skip with a reason.
type Decision struct {
	Proceed bool
	Reason  apperr.SkipReason
}

// History is the subset of the store the Oracle consults for
// completed-work and in-flight-task checks.
type History interface {
	HasHistory(canonicalPath, targetLang string) (bool, error)
	ActiveTaskExists(filePath, targetLang string) (bool, error)
}

// Request bundles the inputs the seven-step decision chain needs.
type Request struct {
	Path           string
	TargetLanguage string
	ForceOverride  bool
	OutputFormat   string // "mkv", "srt", or "ass" — determines the predicted output path
	OverwriteMKV   bool   // in-place mkv output has no sibling file to predict
	Bilingual      bool
}

// Evaluate runs the ordered checks and returns the first matching
// verdict. Calling it twice on the same non-force_override request
// yields the same decision: every check here reads external state
// (filesystem, store) but performs no writes.
func Evaluate(ctx context.Context, req Request, hist History) (Decision, error) {
	if req.ForceOverride {
		return Decision{Proceed: true}, nil
	}

	target, err := langtag.Resolve(req.TargetLanguage)
	if err != nil {
		return Decision{}, fmt.Errorf("skip: resolve target language %q: %w", req.TargetLanguage, err)
	}

	if strings.EqualFold(filepath.Ext(req.Path), ".mkv") {
		tracks, err := media.ListTracks(ctx, req.Path)
		if err == nil {
			for _, t := range tracks {
				tag, err := langtag.Resolve(t.Language)
				if err == nil && langtag.Equal(tag, target) {
					return Decision{Reason: apperr.ReasonAlreadyHasTrack}, nil
				}
			}
		}
	}

	if !(req.OutputFormat == "mkv" && req.OverwriteMKV) {
		outputPath := predictedOutputPath(req.Path, target, req.OutputFormat)
		if _, err := os.Stat(outputPath); err == nil {
			return Decision{Reason: apperr.ReasonOutputExists}, nil
		}
	}

	canonical, err := filepath.Abs(req.Path)
	if err != nil {
		canonical = req.Path
	}
	has, err := hist.HasHistory(canonical, target.Code())
	if err != nil {
		return Decision{}, fmt.Errorf("skip: check history: %w", err)
	}
	if has {
		return Decision{Reason: apperr.ReasonHistory}, nil
	}

	if tag, ok := langtag.GuessFromFilename(req.Path); ok && langtag.Equal(tag, target) {
		return Decision{Reason: apperr.ReasonFilenameMarker}, nil
	}

	active, err := hist.ActiveTaskExists(req.Path, req.TargetLanguage)
	if err != nil {
		return Decision{}, fmt.Errorf("skip: check in-progress: %w", err)
	}
	if active {
		return Decision{Reason: apperr.ReasonInProgress}, nil
	}

	return Decision{Proceed: true}, nil
}

// predictedOutputPath mirrors what the Pipeline's PLACING step will
// write, so the Oracle can detect a stale prior run without a task.
func predictedOutputPath(srcPath string, target langtag.Tag, outputFormat string) string {
	dir := filepath.Dir(srcPath)
	stem := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))

	if outputFormat == "mkv" {
		return filepath.Join(dir, stem+".translated.mkv")
	}
	ext := outputFormat
	if ext == "" {
		ext = "srt"
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%s.%s", stem, target.Code(), ext))
}
