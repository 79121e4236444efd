package media

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/kaelin-dev/subtrans/internal/executils"
)

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

// FFmpegVersion returns the ffmpeg binary's reported version string.
func FFmpegVersion() (string, error) {
	bin, err := executils.FindBinary("ffmpeg", Tools)
	if err != nil {
		return "", fmt.Errorf("media: %w", err)
	}
	out, err := executils.NewCommand(bin, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("media: ffmpeg -version: %w", err)
	}
	m := versionRe.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("media: could not parse ffmpeg version output")
	}
	return string(m[1]), nil
}

// Probe runs ffprobe against a media file and returns its raw stdout
// (JSON with -of json).
func Probe(path string) ([]byte, error) {
	bin, err := executils.FindBinary("ffprobe", Tools)
	if err != nil {
		return nil, fmt.Errorf("media: %w", err)
	}
	cmd := executils.NewCommand(bin, "-v", "error", "-show_format", "-show_streams", "-of", "json", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("media: ffprobe %s: %w: %s", path, err, tail(stderr.Bytes(), 1024))
	}
	return stdout.Bytes(), nil
}
