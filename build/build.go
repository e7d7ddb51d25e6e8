// Package build reports what restyle binary is running. Release builds set
// Version and InfoJSON through -ldflags; everything else falls back to the
// module information the Go toolchain embeds.
package build

import (
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/amp-labs/restyle/build.Version=...".
var (
	Version  = ""   //nolint:gochecknoglobals
	InfoJSON = "{}" //nolint:gochecknoglobals
)

// Info describes a build.
type Info struct {
	Version      string            `json:"version"`
	GitCommit    string            `json:"git_commit,omitempty"` //nolint:tagliatelle
	GitDate      string            `json:"git_date,omitempty"`   //nolint:tagliatelle
	Modified     bool              `json:"modified,omitempty"`
	BuildTime    string            `json:"build_time,omitempty"` //nolint:tagliatelle
	GoVersion    string            `json:"go_version,omitempty"` //nolint:tagliatelle
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Parse deserializes a JSON string into build Info.
// Returns (nil, false) if the input is empty, "{}", or fails to parse.
func Parse(js string) (*Info, bool) {
	if strings.TrimSpace(js) == "" || js == "{}" {
		return nil, false
	}

	var info Info

	if err := json.Unmarshal([]byte(js), &info); err != nil {
		slog.Warn("Failed to parse build info from JSON",
			"data", js,
			"error", err)

		return nil, false
	}

	return &info, true
}

// Current returns the injected build info, completed from the embedded
// module information.
func Current() *Info {
	info, ok := Parse(InfoJSON)
	if !ok {
		info = &Info{}
	}

	if embedded, ok := debug.ReadBuildInfo(); ok {
		merge(info, embedded)
	}

	if Version != "" {
		info.Version = Version
	}

	if info.Version == "" {
		info.Version = "dev"
	}

	return info
}

// CurrentVersion is Current().Version.
func CurrentVersion() string {
	return Current().Version
}

func merge(info *Info, embedded *debug.BuildInfo) {
	if info.GoVersion == "" {
		info.GoVersion = embedded.GoVersion
	}

	if info.Version == "" && embedded.Main.Version != "" && embedded.Main.Version != "(devel)" {
		info.Version = embedded.Main.Version
	}

	for _, setting := range embedded.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = setting.Value
			}
		case "vcs.time":
			if info.GitDate == "" {
				info.GitDate = setting.Value
			}
		case "vcs.modified":
			info.Modified = info.Modified || setting.Value == "true"
		}
	}

	if len(info.Dependencies) == 0 && len(embedded.Deps) > 0 {
		info.Dependencies = make(map[string]string, len(embedded.Deps))

		for _, dep := range embedded.Deps {
			if dep.Replace != nil {
				dep = dep.Replace
			}

			info.Dependencies[dep.Path] = dep.Version
		}
	}
}
