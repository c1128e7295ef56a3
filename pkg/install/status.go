// Package install resolves browser-engine availability: it detects or
// installs engine binaries, persists per-engine installation status, and
// deduplicates concurrent installs of the same engine kind.
package install

import (
	"time"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/engine"
)

// Status is the persisted installation record for one engine kind.
type Status struct {
	Installed   bool      `json:"installed"`
	Path        string    `json:"path,omitempty"`
	Version     string    `json:"version,omitempty"`
	LastChecked time.Time `json:"lastChecked"`
}

// Source says where an available engine binary came from.
type Source string

const (
	// SourceInstalled means the binary was installed by us (or a prior run).
	SourceInstalled Source = "installed"

	// SourceSystem means a system-wide browser was detected and reused.
	SourceSystem Source = "system"

	// SourceNone means no usable binary exists yet.
	SourceNone Source = "none"
)

// Availability is the result of resolving one engine kind.
type Availability struct {
	Available       bool
	Source          Source
	ExecutablePath  string
	Version         string
	RequiresInstall bool
}

// Phase identifies the install step that progress (or failure) refers to.
type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseVerifying   Phase = "verifying"
	PhaseComplete    Phase = "complete"
)

// Progress is one install progress report.
type Progress struct {
	Kind  engine.Kind
	Phase Phase
}

// ProgressFunc receives install progress reports. It may be nil.
type ProgressFunc func(Progress)

// EnsureOptions controls EnsureAvailable.
type EnsureOptions struct {
	// Interactive permits starting an install when no binary is found.
	// When false, EnsureAvailable reports RequiresInstall instead.
	Interactive bool

	// Progress receives install progress if an install is started.
	Progress ProgressFunc
}

// InstallOptions controls Install.
type InstallOptions struct {
	// ForceReinstall installs even when the cache says installed.
	ForceReinstall bool

	// Progress receives phase reports.
	Progress ProgressFunc
}
