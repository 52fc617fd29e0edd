package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/longkey1/advchat/internal/version.Version=..."
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuiltAt   string `json:"built_at"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Current returns the build information of this binary.
func Current() Build {
	return Build{
		Version:   Version,
		Commit:    CommitSHA,
		BuiltAt:   BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short returns the version number only
func Short() string {
	return Version
}

func (b Build) String() string {
	return fmt.Sprintf("advchat %s\n  commit:     %s\n  built:      %s\n  go version: %s\n  platform:   %s",
		b.Version, b.Commit, b.BuiltAt, b.GoVersion, b.Platform)
}

// UserAgent is sent with every request to the answering service.
func UserAgent() string {
	return "advchat/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
