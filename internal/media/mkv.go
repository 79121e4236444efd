// Package media invokes the external ffmpeg/mkvmerge/mkvextract binaries
// to list, extract, and merge subtitle tracks, and provides the
// cross-device-safe atomic file placement every Pipeline write goes
// through.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/kaelin-dev/subtrans/internal/apperr"
	"github.com/kaelin-dev/subtrans/internal/executils"
)

// Tools resolves the external binaries against the caller's configured
// overrides; the zero value falls straight through to the tools dir,
// bin dir, and PATH tiers of executils.FindBinary.
var Tools executils.ToolPaths

// Track is one stream reported by mkvmerge -J, filtered to subtitles by
// ListTracks.
type Track struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language,omitempty"`
	Title    string `json:"title,omitempty"`
}

type rawMkvmergeOutput struct {
	Tracks []struct {
		ID         int    `json:"id"`
		Type       string `json:"type"`
		Codec      string `json:"codec"`
		Properties struct {
			Language  string `json:"language"`
			TrackName string `json:"track_name"`
		} `json:"properties"`
	} `json:"tracks"`
}

// ListTracks returns the subtitle streams of an MKV container.
func ListTracks(ctx context.Context, path string) ([]Track, error) {
	out, err := runCapture(ctx, "mkvmerge", "-J", path)
	if err != nil {
		return nil, err
	}

	var raw rawMkvmergeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("media: parse mkvmerge -J output: %w", err)
	}

	var tracks []Track
	for _, t := range raw.Tracks {
		if t.Type != "subtitles" {
			continue
		}
		tracks = append(tracks, Track{
			Index:    t.ID,
			Codec:    t.Codec,
			Language: t.Properties.Language,
			Title:    t.Properties.TrackName,
		})
	}
	return tracks, nil
}

// ExtractTrack extracts one subtitle track to a scratch path in its
// native format.
func ExtractTrack(ctx context.Context, inPath string, trackIndex int, outPath string) error {
	_, err := runCapture(ctx, "mkvextract", "tracks", inPath, fmt.Sprintf("%d:%s", trackIndex, outPath))
	return err
}

// MergeOptions configures a new-track mux.
type MergeOptions struct {
	SourceMKV    string
	SubtitlePath string
	OutputMKV    string
	LanguageTag  string
	TrackName    string
	Default      bool
}

// Merge produces a new MKV with the subtitle added as a new track.
func Merge(ctx context.Context, opts MergeOptions) error {
	// Track options apply to the input that follows them, so the
	// subtitle's flags must sit between the source container and the
	// subtitle file.
	args := []string{"-o", opts.OutputMKV, opts.SourceMKV}
	if opts.LanguageTag != "" {
		args = append(args, "--language", fmt.Sprintf("0:%s", opts.LanguageTag))
	}
	if opts.TrackName != "" {
		args = append(args, "--track-name", fmt.Sprintf("0:%s", opts.TrackName))
	}
	if opts.Default {
		args = append(args, "--default-track-flag", "0:yes")
	}
	args = append(args, opts.SubtitlePath)

	_, err := runCapture(ctx, "mkvmerge", args...)
	return err
}

// runCapture is context-bounded so a task cancel observed at the
// tool-invocation suspension point also kills an in-flight subprocess.
func runCapture(ctx context.Context, name string, args ...string) ([]byte, error) {
	bin, err := executils.FindBinary(name, Tools)
	if err != nil {
		bin = name // let exec.Command surface the real lookup failure via ToolError below
	}

	cmd := executils.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return nil, &apperr.ToolError{
			Command:    fmt.Sprintf("%s %v", name, args),
			ExitCode:   exitCode,
			StderrTail: tail(stderr.Bytes(), 1024),
		}
	}
	return stdout.Bytes(), nil
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
