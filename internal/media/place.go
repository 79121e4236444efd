package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// SameFilesystem reports whether two paths resolve to the same mount;
// used to anticipate a cross-device rename before attempting one.
func SameFilesystem(path1, path2 string) (bool, error) {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return false, fmt.Errorf("media: list partitions: %w", err)
	}
	m1 := findMountpoint(path1, partitions)
	m2 := findMountpoint(path2, partitions)
	return m1 != "" && m1 == m2, nil
}

func findMountpoint(path string, partitions []disk.PartitionStat) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	var best string
	for _, p := range partitions {
		if strings.HasPrefix(abs, p.Mountpoint) && len(p.Mountpoint) > len(best) {
			best = p.Mountpoint
		}
	}
	return best
}

// PlaceFile moves src onto dst atomically when possible (a single
// os.Rename on the same filesystem), degrading to copy-then-unlink when src and dst
// live on different filesystems — the EXDEV case os.Rename cannot do
// in-kernel. The source and destination are routinely on different
// mounts (SMB/NFS media shares), so the fallback is not optional.
// SameFilesystem routes a known cross-mount move straight to the copy
// path; a rename that still hits EXDEV (bind mounts the partition table
// doesn't expose) falls back the same way.
func PlaceFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("media: mkdir for %s: %w", dst, err)
	}

	if same, err := SameFilesystem(src, dst); err == nil && !same {
		return copyThenUnlink(src, dst)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("media: rename %s -> %s: %w", src, dst, err)
	}
	return copyThenUnlink(src, dst)
}

func copyThenUnlink(src, dst string) error {
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("media: cross-device copy %s -> %s: %w", src, dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("media: unlink source %s after cross-device copy: %w", src, err)
	}
	return nil
}

func isCrossDevice(err error) bool {
	linkErr, ok := err.(*os.LinkError)
	if !ok {
		return false
	}
	return strings.Contains(linkErr.Err.Error(), "cross-device") || strings.Contains(linkErr.Err.Error(), "EXDEV")
}

func copyFile(src, dst string) error {
	tmp := dst + ".tmp-copy"
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
