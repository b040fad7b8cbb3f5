// SPDX-License-Identifier: MIT
//
// Package build carries the detector's build metadata. Name, build time,
// commit and version are injected with -ldflags "-X"; development builds
// report "unknown" for each.
package build

import (
	"errors"
	"fmt"
)

// Description is the one-line summary shown by the CLI.
const Description = "Two-microphone water submersion detector"

// Info holds build-time information injected during compilation.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String renders a single version line.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &Info{
		Name:    "waterdetect",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "unknown",
	}
)

// ErrMissing is returned by Initialize when an ldflags value was not set.
var ErrMissing = errors.New("build flag is required")

// Initialize copies the ldflags values into the build info. It fails on the
// first missing value and leaves the defaults in place.
func Initialize() error {
	for _, f := range []struct{ name, val string }{
		{"BuildName", buildName},
		{"BuildTime", buildTime},
		{"BuildCommit", buildCommit},
		{"BuildVersion", buildVersion},
	} {
		if f.val == "" {
			return fmt.Errorf("%s: %w", f.name, ErrMissing)
		}
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}
