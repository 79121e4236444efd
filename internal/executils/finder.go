// Package executils locates and launches the external ffmpeg/mkvmerge
// toolchain binaries, and wraps os/exec so command construction is
// identical across platforms (a hidden console window on Windows,
// a plain exec.Cmd elsewhere).
package executils

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/adrg/xdg"
)

// ToolPaths carries the Settings overrides FindBinary checks first,
// before falling back to the XDG tools dir, the bin/ folder next to
// the executable, and finally $PATH.
type ToolPaths struct {
	FFmpeg     string
	FFprobe    string
	Mkvmerge   string
	Mkvextract string
}

// FindBinary searches for a binary with a 4-tier priority:
// 1. A path saved in Settings (ToolPaths)
// 2. A local "tools" folder under the XDG data directory
// 3. A local "bin" folder relative to the running executable
// 4. The system PATH
func FindBinary(name string, overrides ToolPaths) (string, error) {
	if goruntime.GOOS == "windows" && !strings.HasSuffix(name, ".exe") {
		name += ".exe"
	}

	if saved := savedPath(name, overrides); saved != "" && fileExists(saved) {
		return saved, nil
	}

	toolsDir := filepath.Join(xdg.DataHome, "subtrans", "tools")
	if localPath := filepath.Join(toolsDir, name); fileExists(localPath) {
		return localPath, nil
	}

	if ex, err := os.Executable(); err == nil {
		localPath := filepath.Join(filepath.Dir(ex), "bin", name)
		if fileExists(localPath) {
			return localPath, nil
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("executils: %s not found in settings, tools dir, bin dir, or PATH", name)
}

func savedPath(name string, overrides ToolPaths) string {
	switch {
	case strings.HasPrefix(name, "ffmpeg"):
		return overrides.FFmpeg
	case strings.HasPrefix(name, "ffprobe"):
		return overrides.FFprobe
	case strings.HasPrefix(name, "mkvmerge"):
		return overrides.Mkvmerge
	case strings.HasPrefix(name, "mkvextract"):
		return overrides.Mkvextract
	default:
		return ""
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
