// Package version carries the build stamp of the buzzsnip binary.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/buzzsnip/buzzsnip/version.Version=1.2.0 \
//	  -X github.com/buzzsnip/buzzsnip/version.CommitHash=$(git rev-parse HEAD)"
package version

import (
	"runtime"
	"strings"
)

// ServiceName is reported by the health endpoint
const ServiceName = "BuzzSnip Backend"

const shortHashLen = 7

var (
	Version    = "dev"
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// Info is the build stamp plus the runtime the binary runs on.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get snapshots the build stamp.
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short is the abbreviated commit hash.
func (i Info) Short() string {
	if len(i.CommitHash) < shortHashLen {
		return i.CommitHash
	}
	return i.CommitHash[:shortHashLen]
}

func (i Info) String() string {
	var b strings.Builder
	b.WriteString("buzzsnip ")
	b.WriteString(i.Version)
	b.WriteString(" (commit ")
	b.WriteString(i.Short())
	b.WriteString(", built ")
	b.WriteString(i.BuildTime)
	b.WriteString(")")
	return b.String()
}
