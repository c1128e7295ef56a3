package browser

import (
	"context"
	"fmt"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/config"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/install"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/metrics"
)

// Resolver is the slice of the installation manager the factory consumes.
type Resolver interface {
	EnsureAvailable(ctx context.Context, kind engine.Kind, opts install.EnsureOptions) (*install.Availability, error)
	Install(ctx context.Context, kind engine.Kind, opts install.InstallOptions) error
	CheckInstalled(kind engine.Kind) (bool, error)
}

// AcquisitionStrategy resolves engine availability for a launch. The
// factory tries strategies in order; only the last one's failure is fatal.
type AcquisitionStrategy interface {
	Acquire(ctx context.Context, kind engine.Kind) (*install.Availability, error)
}

// standardAcquisition is the full resolution path through the
// installation manager, installing on demand.
type standardAcquisition struct {
	resolver Resolver
}

func (s *standardAcquisition) Acquire(ctx context.Context, kind engine.Kind) (*install.Availability, error) {
	return s.resolver.EnsureAvailable(ctx, kind, install.EnsureOptions{Interactive: true})
}

// warmAcquisition is the pooled-mode fast path: it only accepts engines
// already recorded as installed and never triggers detection or installs.
type warmAcquisition struct {
	resolver Resolver
}

func (w *warmAcquisition) Acquire(ctx context.Context, kind engine.Kind) (*install.Availability, error) {
	avail, err := w.resolver.EnsureAvailable(ctx, kind, install.EnsureOptions{Interactive: false})
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, fmt.Errorf("%s is not warm", kind)
	}
	return avail, nil
}

// CreateOptions are per-call launch overrides. Nil pointer fields inherit
// from per-engine overrides, then factory defaults.
type CreateOptions struct {
	TeamID         string
	Kind           engine.Kind
	Headless       *bool
	TimeoutMs      *float64
	ViewportWidth  *int
	ViewportHeight *int
	UserAgent      *string
	MaxMemoryMB    *int
	ExtraArgs      []string
}

// Factory builds live instances from configuration. It merges factory
// defaults, per-engine overrides, and per-call options, resolves engine
// availability through its acquisition chain, and launches.
type Factory struct {
	cfg        *config.Config
	driver     engine.Driver
	resolver   Resolver
	strategies []AcquisitionStrategy
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

// NewFactory creates a factory. With cfg.PooledMode set, the warm
// acquisition strategy is tried before the standard path; a warm miss
// silently falls back rather than failing the launch.
func NewFactory(cfg *config.Config, driver engine.Driver, resolver Resolver, m *metrics.Metrics) *Factory {
	logger, _ := logging.NewLogger("factory")

	strategies := []AcquisitionStrategy{}
	if cfg.PooledMode {
		strategies = append(strategies, &warmAcquisition{resolver: resolver})
	}
	strategies = append(strategies, &standardAcquisition{resolver: resolver})

	return &Factory{
		cfg:        cfg,
		driver:     driver,
		resolver:   resolver,
		strategies: strategies,
		metrics:    m,
		logger:     logger,
	}
}

// CreateInstance resolves availability, merges launch options, launches
// the engine, and initializes the instance. Launch and initialize errors
// propagate unchanged.
func (f *Factory) CreateInstance(ctx context.Context, opts CreateOptions) (*Instance, error) {
	avail, err := f.acquire(ctx, opts.Kind)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, fmt.Errorf("%s is not available (install it first)", opts.Kind)
	}

	instCfg := f.mergeConfig(opts)
	if avail.Source == install.SourceSystem {
		instCfg.ExecutablePath = avail.ExecutablePath
	}

	spec := engine.LaunchSpec{
		Headless:       instCfg.Headless,
		ExecutablePath: instCfg.ExecutablePath,
		Args:           launchArgs(instCfg),
		TimeoutMs:      instCfg.TimeoutMs,
	}

	proc, err := f.driver.Launch(opts.Kind, spec)
	if err != nil {
		return nil, err
	}

	inst := NewInstance(instCfg, f.metrics)
	if err := inst.Initialize(proc); err != nil {
		// The process is ours and unreachable by anyone else; don't leak it
		if closeErr := proc.Close(); closeErr != nil {
			f.logger.Warnf("failed to close process after init failure: %v", closeErr)
		}
		return nil, err
	}

	f.logger.Infof("created instance %s (%s, team %q, source %s)", inst.ID(), opts.Kind, opts.TeamID, avail.Source)
	return inst, nil
}

// acquire walks the strategy chain. Non-final strategy failures are logged
// and skipped; the final strategy's error propagates.
func (f *Factory) acquire(ctx context.Context, kind engine.Kind) (*install.Availability, error) {
	var lastErr error
	for idx, strategy := range f.strategies {
		avail, err := strategy.Acquire(ctx, kind)
		if err == nil {
			return avail, nil
		}
		lastErr = err
		if idx < len(f.strategies)-1 {
			f.logger.Debugf("acquisition strategy %d for %s missed: %v", idx, kind, err)
		}
	}
	return nil, lastErr
}

// mergeConfig flattens defaults, per-engine overrides, and per-call
// options into one instance config. Later layers win.
func (f *Factory) mergeConfig(opts CreateOptions) InstanceConfig {
	cfg := InstanceConfig{
		TeamID:         opts.TeamID,
		Kind:           opts.Kind,
		Headless:       f.cfg.Headless,
		TimeoutMs:      f.cfg.TimeoutMs,
		ViewportWidth:  f.cfg.Viewport.Width,
		ViewportHeight: f.cfg.Viewport.Height,
		UserAgent:      f.cfg.UserAgent,
		MaxMemoryMB:    f.cfg.ResourceLimits.MaxMemoryMB,
	}

	ov := f.cfg.OverridesFor(opts.Kind.String())
	if ov.Headless != nil {
		cfg.Headless = *ov.Headless
	}
	if ov.TimeoutMs != nil {
		cfg.TimeoutMs = *ov.TimeoutMs
	}
	if ov.UserAgent != nil {
		cfg.UserAgent = *ov.UserAgent
	}
	cfg.ExtraArgs = append(cfg.ExtraArgs, ov.ExtraArgs...)

	if opts.Headless != nil {
		cfg.Headless = *opts.Headless
	}
	if opts.TimeoutMs != nil {
		cfg.TimeoutMs = *opts.TimeoutMs
	}
	if opts.ViewportWidth != nil {
		cfg.ViewportWidth = *opts.ViewportWidth
	}
	if opts.ViewportHeight != nil {
		cfg.ViewportHeight = *opts.ViewportHeight
	}
	if opts.UserAgent != nil {
		cfg.UserAgent = *opts.UserAgent
	}
	if opts.MaxMemoryMB != nil {
		cfg.MaxMemoryMB = *opts.MaxMemoryMB
	}
	cfg.ExtraArgs = append(cfg.ExtraArgs, opts.ExtraArgs...)

	return cfg
}

// launchArgs renders config into engine arguments. The memory limit is
// only passed when positive; zero means no limit argument at all.
func launchArgs(cfg InstanceConfig) []string {
	args := append([]string{}, cfg.ExtraArgs...)
	if cfg.MaxMemoryMB > 0 {
		args = append(args, fmt.Sprintf("--js-flags=--max-old-space-size=%d", cfg.MaxMemoryMB))
	}
	return args
}

// PreinstallBrowsers installs each kind best-effort: one kind's failure is
// logged and does not abort the rest.
func (f *Factory) PreinstallBrowsers(ctx context.Context, kinds []engine.Kind, progress install.ProgressFunc) {
	for _, kind := range kinds {
		if err := f.resolver.Install(ctx, kind, install.InstallOptions{Progress: progress}); err != nil {
			f.logger.Errorf("preinstall of %s failed: %v", kind, err)
			continue
		}
		f.logger.Infof("preinstalled %s", kind)
	}
}

// BrowserStatus reports installed state per kind. Unlike preinstall this
// is strict: the first per-kind failure propagates, because callers gate
// availability decisions on the result.
func (f *Factory) BrowserStatus() (map[engine.Kind]bool, error) {
	out := make(map[engine.Kind]bool, len(engine.Kinds()))
	for _, kind := range engine.Kinds() {
		installed, err := f.resolver.CheckInstalled(kind)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", kind, err)
		}
		out[kind] = installed
	}
	return out, nil
}
