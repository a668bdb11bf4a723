// Package buildinfo reports how and when the running binary was built.
package buildinfo

import (
	"runtime"
	"time"
)

// Set via -ldflags at build time
var (
	Version    = "dev"
	BuildTime  string // when the binary was compiled
	CommitTime string // last git commit time (last code edit)
	CommitHash string // short git commit hash
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC()

// Info is the payload of the status endpoint.
type Info struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	BuildTime  string `json:"buildTime,omitempty"`
	CommitTime string `json:"commitTime,omitempty"`
	CommitHash string `json:"commitHash,omitempty"`
	GoVersion  string `json:"goVersion"`
	StartedAt  string `json:"startedAt"`
	Uptime     string `json:"uptime"`
}

// Current describes the running process.
func Current() Info {
	return Info{
		Status:     "running",
		Version:    Version,
		BuildTime:  BuildTime,
		CommitTime: CommitTime,
		CommitHash: CommitHash,
		GoVersion:  runtime.Version(),
		StartedAt:  StartTime.Format(time.RFC3339),
		Uptime:     time.Since(StartTime).Truncate(time.Second).String(),
	}
}
