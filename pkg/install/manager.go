package install

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/metrics"
)

// Installer is the opaque download mechanism for engine binaries. In
// production this is the playwright driver's package install.
type Installer interface {
	// InstallBrowser downloads the binaries for one engine kind.
	InstallBrowser(kind engine.Kind) error

	// ExecutablePath reports where the binary for a kind lives once
	// installed.
	ExecutablePath(kind engine.Kind) string
}

// Manager resolves engine availability. At most one install per engine
// kind is ever in flight; concurrent callers share its result.
type Manager struct {
	store     *Store
	installer Installer
	driver    engine.Driver
	detector  engine.SystemDetector
	metrics   *metrics.Metrics
	logger    *logging.Logger

	// flight deduplicates installs per engine kind. Do() is an atomic
	// check-and-insert on the key and removes it on completion.
	flight singleflight.Group

	// inflight mirrors the flight group so non-interactive callers can
	// await an install they are not allowed to start. Each channel is
	// closed when its install completes.
	inflightMu sync.Mutex
	inflight   map[engine.Kind]chan struct{}
}

// NewManager creates an installation manager. The detector may be nil to
// disable system-browser reuse.
func NewManager(store *Store, installer Installer, driver engine.Driver, detector engine.SystemDetector, m *metrics.Metrics) *Manager {
	logger, _ := logging.NewLogger("install")
	return &Manager{
		store:     store,
		installer: installer,
		driver:    driver,
		detector:  detector,
		metrics:   m,
		logger:    logger,
		inflight:  make(map[engine.Kind]chan struct{}),
	}
}

// EnsureAvailable resolves a usable binary for kind. Resolution order:
// validated cache, system detector, then install (only when interactive).
// If another caller's install for the same kind is in flight, its result
// is shared — interactive callers join it, non-interactive callers await
// it before concluding an install is required. A shared failure causes
// one re-evaluation from the top rather than propagating directly.
func (m *Manager) EnsureAvailable(ctx context.Context, kind engine.Kind, opts EnsureOptions) (*Availability, error) {
	for attempt := 0; ; attempt++ {
		if st, ok := m.validCached(kind); ok {
			return &Availability{
				Available:      true,
				Source:         SourceInstalled,
				ExecutablePath: st.Path,
				Version:        st.Version,
			}, nil
		}

		if m.detector != nil {
			sys, err := m.detector.Detect(kind)
			if err == nil && sys != nil && sys.Usable {
				return &Availability{
					Available:      true,
					Source:         SourceSystem,
					ExecutablePath: sys.ExecutablePath,
					Version:        sys.Version,
				}, nil
			}
			if err != nil {
				m.logger.Warnf("system detection for %s failed: %v", kind, err)
			}
		}

		if !opts.Interactive {
			// An install another caller already started may be about to
			// satisfy us; await it and re-evaluate instead of reporting
			// "not installed".
			if ch := m.inflightInstall(kind); ch != nil && attempt == 0 {
				select {
				case <-ch:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			return &Availability{Source: SourceNone, RequiresInstall: true}, nil
		}

		_, err, shared := m.flight.Do(string(kind), func() (interface{}, error) {
			finish := m.markInflight(kind)
			defer finish()
			return nil, m.Install(ctx, kind, InstallOptions{Progress: opts.Progress})
		})
		if err != nil {
			// A failure we merely observed may have raced our own view of
			// the world; re-evaluate once before giving up.
			if shared && attempt == 0 {
				continue
			}
			return nil, err
		}

		st, ok := m.store.Get(kind)
		if !ok {
			return nil, fmt.Errorf("install of %s completed but no status was recorded", kind)
		}
		return &Availability{
			Available:      true,
			Source:         SourceInstalled,
			ExecutablePath: st.Path,
			Version:        st.Version,
		}, nil
	}
}

// Install downloads and verifies the binaries for kind. Already-installed
// kinds are skipped unless ForceReinstall. Failures are returned as
// *InstallationError carrying the phase that failed.
func (m *Manager) Install(ctx context.Context, kind engine.Kind, opts InstallOptions) error {
	if _, ok := m.validCached(kind); ok && !opts.ForceReinstall {
		return nil
	}

	report := func(phase Phase) {
		if opts.Progress != nil {
			opts.Progress(Progress{Kind: kind, Phase: phase})
		}
	}
	fail := func(phase Phase, err error) error {
		m.metrics.Installs.WithLabelValues(kind.String(), "failure").Inc()
		m.logger.Errorf("install of %s failed during %s: %v", kind, phase, err)
		return &InstallationError{Kind: kind, Phase: phase, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(PhaseDownloading, err)
	}

	report(PhaseDownloading)
	m.logger.Infof("installing %s", kind)
	if err := m.installer.InstallBrowser(kind); err != nil {
		return fail(PhaseDownloading, err)
	}

	if err := ctx.Err(); err != nil {
		return fail(PhaseVerifying, err)
	}

	report(PhaseVerifying)
	version, err := m.verify(kind)
	if err != nil {
		return fail(PhaseVerifying, err)
	}

	status := Status{
		Installed:   true,
		Path:        m.installer.ExecutablePath(kind),
		Version:     version,
		LastChecked: now(),
	}
	if err := m.store.Put(kind, status); err != nil {
		return fail(PhaseComplete, err)
	}

	report(PhaseComplete)
	m.metrics.Installs.WithLabelValues(kind.String(), "success").Inc()
	m.logger.Infof("installed %s (version %s)", kind, version)
	return nil
}

// verify confirms the installed binary actually starts: a short headless
// launch-and-close. Returns the engine version reported by the process.
func (m *Manager) verify(kind engine.Kind) (string, error) {
	proc, err := m.driver.Launch(kind, engine.LaunchSpec{Headless: true})
	if err != nil {
		return "", fmt.Errorf("verification launch failed: %w", err)
	}
	version := proc.Version()
	if err := proc.Close(); err != nil {
		m.logger.Warnf("verification close for %s failed: %v", kind, err)
	}
	return version, nil
}

// GetStatus reports installation status for one kind. It never fails:
// uncertainty resolves to "not installed". A cached path whose file has
// vanished is evicted and re-detected from the installer's expected path.
func (m *Manager) GetStatus(kind engine.Kind) Status {
	if st, ok := m.validCached(kind); ok {
		return st
	}

	// Filesystem re-detection: the binary may exist without a cache entry,
	// e.g. after the cache file was removed.
	path := m.installer.ExecutablePath(kind)
	if path != "" && fileExists(path) {
		st := Status{Installed: true, Path: path, LastChecked: now()}
		if err := m.store.Put(kind, st); err != nil {
			m.logger.Warnf("failed to persist re-detected status for %s: %v", kind, err)
		}
		return st
	}

	return Status{Installed: false, LastChecked: now()}
}

// CheckInstalled reports whether kind's binary is installed and present on
// disk. Unlike GetStatus this is fallible: unexpected filesystem errors
// propagate instead of resolving to "not installed", because callers gate
// availability decisions on the answer.
func (m *Manager) CheckInstalled(kind engine.Kind) (bool, error) {
	st, ok := m.store.Get(kind)
	if !ok || !st.Installed {
		return false, nil
	}
	if st.Path == "" {
		return true, nil
	}
	if _, err := os.Stat(st.Path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s binary: %w", kind, err)
	}
	return true, nil
}

// GetAllStatus reports status for every supported kind. Never fails.
func (m *Manager) GetAllStatus() map[engine.Kind]Status {
	out := make(map[engine.Kind]Status, len(engine.Kinds()))
	for _, kind := range engine.Kinds() {
		out[kind] = m.GetStatus(kind)
	}
	return out
}

// validCached returns the cached status for kind if it claims installed and
// its executable still exists. A stale entry is evicted.
func (m *Manager) validCached(kind engine.Kind) (Status, bool) {
	st, ok := m.store.Get(kind)
	if !ok || !st.Installed {
		return Status{}, false
	}
	if st.Path != "" && !fileExists(st.Path) {
		m.logger.Warnf("cached %s binary at %s is gone, evicting cache entry", kind, st.Path)
		if err := m.store.Delete(kind); err != nil {
			m.logger.Warnf("failed to evict cache entry for %s: %v", kind, err)
		}
		return Status{}, false
	}
	return st, true
}

// markInflight publishes an in-flight install for kind and returns the
// function that retracts it. Called only from the flight leader.
func (m *Manager) markInflight(kind engine.Kind) func() {
	ch := make(chan struct{})
	m.inflightMu.Lock()
	m.inflight[kind] = ch
	m.inflightMu.Unlock()
	return func() {
		m.inflightMu.Lock()
		delete(m.inflight, kind)
		m.inflightMu.Unlock()
		close(ch)
	}
}

// inflightInstall returns the completion channel of an install currently
// in flight for kind, or nil when none is.
func (m *Manager) inflightInstall(kind engine.Kind) <-chan struct{} {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	return m.inflight[kind]
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func now() time.Time {
	return time.Now()
}
