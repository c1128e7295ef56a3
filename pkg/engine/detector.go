package engine

import (
	"os/exec"
	"strings"
)

// systemBinaries maps each engine kind to the binary names probed on PATH,
// in preference order.
var systemBinaries = map[Kind][]string{
	Chromium: {"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"},
	Firefox:  {"firefox", "firefox-esr"},
	WebKit:   {"epiphany", "MiniBrowser"},
}

// PathDetector finds system-installed browsers by probing well-known binary
// names on PATH and asking each candidate for its version.
type PathDetector struct{}

// NewPathDetector creates a PATH-based system browser detector.
func NewPathDetector() *PathDetector {
	return &PathDetector{}
}

// Detect returns the first usable system binary for the given kind, or a
// result with Usable=false when none is found. It never returns an error
// for "not found" — only for unexpected probe failures.
func (d *PathDetector) Detect(kind Kind) (*SystemBrowser, error) {
	for _, name := range systemBinaries[kind] {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		return &SystemBrowser{
			Usable:         true,
			ExecutablePath: path,
			Version:        probeVersion(path),
		}, nil
	}
	return &SystemBrowser{Usable: false}, nil
}

// probeVersion asks the binary for its version string. Failures resolve to
// an empty version rather than an error; the path alone is still usable.
func probeVersion(path string) string {
	out, err := exec.Command(path, "--version").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
