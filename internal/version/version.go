// Package version reports the build's identity and whether a newer
// release tag exists upstream.
package version

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
)

const releasesURL = "https://api.github.com/repos/kaelin-dev/subtrans/releases/latest"

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
)

type Info struct {
	Version         string `json:"version"`
	Commit          string `json:"commit"`
	UpdateAvailable bool   `json:"update_available"`
}

func (i Info) String() string {
	s := fmt.Sprintf("subtrans %s (%s)\n", i.Version, i.Commit)
	if i.UpdateAvailable {
		s += "a newer release is available\n"
	}
	return s
}

var (
	once   sync.Once
	cached Info
)

// GetInfo returns the build info, consulting the release feed at most
// once per process. Dev builds skip the remote check entirely.
func GetInfo() Info {
	once.Do(func() {
		cached = Info{Version: Version, Commit: Commit}
		if Version == "dev" {
			return
		}
		latest, err := latestReleaseTag()
		if err != nil {
			return
		}
		local, errL := semver.NewVersion(Version)
		remote, errR := semver.NewVersion(latest)
		if errL == nil && errR == nil && remote.GreaterThan(local) {
			cached.UpdateAvailable = true
		}
	})
	return cached
}

func latestReleaseTag() (string, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(releasesURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("version: release feed returned %d", resp.StatusCode)
	}
	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}
	return release.TagName, nil
}
