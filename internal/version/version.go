// Package version reports the build identity of the binary.
package version

import (
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

const defaultModule = "pkt.systems/nexus"

// buildVersion is set via -ldflags "-X pkt.systems/nexus/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running build.
type Info struct {
	Module   string
	Version  string
	Revision string
	Time     time.Time
	Dirty    bool
}

// String renders the version, marking dirty working trees.
func (i Info) String() string {
	if i.Dirty && !strings.HasSuffix(i.Version, "+dirty") {
		return i.Version + "+dirty"
	}
	return i.Version
}

var (
	readOnce sync.Once
	current  Info
)

// Get returns the build info, read once per process.
func Get() Info {
	readOnce.Do(func() {
		info, _ := debug.ReadBuildInfo()
		current = resolve(info, buildVersion)
	})
	return current
}

// Current returns the version without a dirty marker.
func Current() string {
	return strings.TrimSuffix(Get().Version, "+dirty")
}

// CurrentWithDirty returns the version, marking dirty working trees.
func CurrentWithDirty() string {
	return Get().String()
}

// Module returns the main module path.
func Module() string {
	return Get().Module
}

// resolve picks, in order, the linker-provided version, the module version
// and a pseudo-version derived from VCS stamps.
func resolve(info *debug.BuildInfo, linked string) Info {
	out := Info{Module: defaultModule, Version: "v0.0.0-unknown"}
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				out.Revision = setting.Value
			case "vcs.time":
				if ts, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					out.Time = ts.UTC()
				}
			case "vcs.modified":
				out.Dirty = setting.Value == "true"
			}
		}
	}
	switch {
	case strings.TrimSpace(linked) != "":
		out.Version = strings.TrimSpace(linked)
		if strings.HasSuffix(out.Version, "+dirty") {
			out.Dirty = true
		}
	case info != nil && info.Main.Version != "" && info.Main.Version != "(devel)":
		out.Version = info.Main.Version
	case out.Revision != "" && !out.Time.IsZero():
		rev := out.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		out.Version = "v0.0.0-" + out.Time.Format("20060102150405") + "-" + rev
	}
	return out
}
