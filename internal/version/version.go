package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const AppName = "LocalBox"

const devVersion = "0.2.0-dev"

// Release builds set these with -ldflags "-X". Unset values are filled from
// the module's build info.
var (
	Version   = devVersion
	Revision  = ""
	BuildDate = ""
)

// Info describes the running binary.
type Info struct {
	Version   string
	Revision  string
	Dirty     bool
	BuildDate string
	GoVersion string
	Platform  string
}

func Current() Info {
	info := Info{
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		info = info.withBuildInfo(bi)
	}
	return info
}

func (i Info) withBuildInfo(bi *debug.BuildInfo) Info {
	if i.Version == devVersion || i.Version == "" {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			i.Version = strings.TrimPrefix(v, "v")
		}
	}

	// vcs.modified only describes the vcs.revision it came with
	fromVCS := i.Revision == ""
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if fromVCS {
				i.Revision = s.Value
			}
		case "vcs.modified":
			i.Dirty = fromVCS && s.Value == "true"
		case "vcs.time":
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
		}
	}
	return i
}

// Short returns `0.2.0 (5e23a4b)`.
func (i Info) Short() string {
	rev := i.Revision
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if rev == "" {
		rev = "unknown"
	}
	if i.Dirty {
		rev += "-dirty"
	}
	return fmt.Sprintf("%s (%s)", i.Version, rev)
}

// String returns `LocalBox 0.2.0 (5e23a4b) go1.24.0 linux/amd64 built <date>`.
func (i Info) String() string {
	s := fmt.Sprintf("%s %s %s %s", AppName, i.Short(), i.GoVersion, i.Platform)
	if i.BuildDate != "" {
		s += " built " + i.BuildDate
	}
	return s
}
