// Package browser owns live browser instances: the per-instance lifecycle
// state machine, the factory that builds instances from configuration, and
// the pool that holds them.
package browser

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/metrics"
)

// HealthStatus is the instance health classification. It only changes
// through CheckHealth.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// degradedErrorThreshold is the error count above which a connected
// instance is reported degraded.
const degradedErrorThreshold = 10

type instanceState int

const (
	stateUninitialized instanceState = iota
	stateActive
	stateClosed
)

// InstanceConfig is the fully merged configuration for one instance.
type InstanceConfig struct {
	ID             string
	TeamID         string
	Kind           engine.Kind
	Headless       bool
	TimeoutMs      float64
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	MaxMemoryMB    int
	ExtraArgs      []string
	ExecutablePath string
}

// InstanceMetrics is a point-in-time snapshot of instance counters.
type InstanceMetrics struct {
	PageCount    int
	RequestCount int64
	ErrorCount   int64
}

// CloseResult records per-step outcomes of a Close. Close itself never
// fails; callers inspect the result if they care.
type CloseResult struct {
	PageErrors int
	ContextErr error
	ProcessErr error
	KillErr    error
}

// Instance is one live engine process with its browsing context and pages.
// The team owner is fixed at creation and never changes.
type Instance struct {
	id        string
	teamID    string
	kind      engine.Kind
	createdAt time.Time
	cfg       InstanceConfig

	mu           sync.Mutex
	state        instanceState
	lastUsed     time.Time
	health       HealthStatus
	proc         engine.Process
	browserCtx   engine.BrowserContext
	pages        map[string]engine.Page
	pageOrder    []string
	requestCount int64
	errorCount   int64

	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewInstance creates an uninitialized instance. Call Initialize with a
// launched process before using it.
func NewInstance(cfg InstanceConfig, m *metrics.Metrics) *Instance {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	logger, _ := logging.NewLogger("instance")
	now := time.Now()
	return &Instance{
		id:        cfg.ID,
		teamID:    cfg.TeamID,
		kind:      cfg.Kind,
		createdAt: now,
		lastUsed:  now,
		cfg:       cfg,
		state:     stateUninitialized,
		health:    HealthHealthy,
		pages:     make(map[string]engine.Page),
		metrics:   m,
		logger:    logger,
	}
}

// Initialize attaches the launched process and creates the browsing
// context. The instance only becomes active once the context exists; a
// failed context creation leaves it inactive and unusable.
func (i *Instance) Initialize(proc engine.Process) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state == stateClosed {
		return fmt.Errorf("instance %s is closed", i.id)
	}
	if i.state == stateActive {
		return fmt.Errorf("instance %s is already initialized", i.id)
	}

	browserCtx, err := proc.NewContext(engine.ContextSpec{
		ViewportWidth:   i.cfg.ViewportWidth,
		ViewportHeight:  i.cfg.ViewportHeight,
		UserAgent:       i.cfg.UserAgent,
		IgnoreTLSErrors: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create context: %w", err)
	}

	i.proc = proc
	i.browserCtx = browserCtx
	i.state = stateActive
	i.lastUsed = time.Now()
	return nil
}

// CreatePage opens a new page, applies the instance timeout, and wires the
// request, page-error, and close observers. Returns the page id.
func (i *Instance) CreatePage() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	page, err := i.createPageLocked()
	if err != nil {
		return "", err
	}
	return i.trackPageLocked(page), nil
}

func (i *Instance) createPageLocked() (engine.Page, error) {
	switch i.state {
	case stateUninitialized:
		return nil, fmt.Errorf("instance %s is not initialized", i.id)
	case stateClosed:
		return nil, fmt.Errorf("instance %s is not active", i.id)
	}

	page, err := i.browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	if i.cfg.TimeoutMs > 0 {
		page.SetDefaultTimeout(i.cfg.TimeoutMs)
	}
	return page, nil
}

// trackPageLocked registers a created page and its observers. The
// callbacks take the mutex themselves; the driver invokes them from its
// own event loop, never synchronously inside this call.
func (i *Instance) trackPageLocked(page engine.Page) string {
	pageID := uuid.New().String()
	i.pages[pageID] = page
	i.pageOrder = append(i.pageOrder, pageID)
	i.lastUsed = time.Now()

	page.OnRequest(func() {
		i.mu.Lock()
		i.requestCount++
		i.mu.Unlock()
		i.metrics.PageEvents.WithLabelValues(i.kind.String(), "request").Inc()
	})
	page.OnPageError(func(err error) {
		i.mu.Lock()
		i.errorCount++
		i.mu.Unlock()
		i.metrics.PageEvents.WithLabelValues(i.kind.String(), "error").Inc()
		i.logger.Warnf("page error on instance %s: %v", i.id, err)
	})
	page.OnClose(func() {
		i.dropPage(pageID)
	})

	return pageID
}

// dropPage removes a page from tracking. Safe to call for ids that are
// already gone, so a close observer firing after an explicit ClosePage
// cannot double-decrement the page count.
func (i *Instance) dropPage(pageID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.pages[pageID]; !ok {
		return
	}
	delete(i.pages, pageID)
	for idx, id := range i.pageOrder {
		if id == pageID {
			i.pageOrder = append(i.pageOrder[:idx], i.pageOrder[idx+1:]...)
			break
		}
	}
}

// MainPage returns the most-recently-created open page, creating one if
// none exists.
func (i *Instance) MainPage() (engine.Page, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for idx := len(i.pageOrder) - 1; idx >= 0; idx-- {
		pageID := i.pageOrder[idx]
		page, ok := i.pages[pageID]
		if !ok {
			continue
		}
		if page.IsClosed() {
			// Stale entry; the close observer hasn't fired yet
			delete(i.pages, pageID)
			i.pageOrder = append(i.pageOrder[:idx], i.pageOrder[idx+1:]...)
			continue
		}
		i.lastUsed = time.Now()
		return page, nil
	}

	page, err := i.createPageLocked()
	if err != nil {
		return nil, err
	}
	i.trackPageLocked(page)
	return page, nil
}

// ClosePage closes and forgets a page. Idempotent: unknown ids and
// already-closed pages are no-ops.
func (i *Instance) ClosePage(pageID string) {
	i.mu.Lock()
	page, ok := i.pages[pageID]
	if ok {
		delete(i.pages, pageID)
		for idx, id := range i.pageOrder {
			if id == pageID {
				i.pageOrder = append(i.pageOrder[:idx], i.pageOrder[idx+1:]...)
				break
			}
		}
	}
	i.mu.Unlock()

	if !ok || page.IsClosed() {
		return
	}
	if err := page.Close(); err != nil {
		i.logger.Warnf("failed to close page %s on instance %s: %v", pageID, i.id, err)
	}
}

// CheckHealth probes the process and reclassifies health. Returns false
// only when the instance is unusable (disconnected). Probe failures of any
// kind, including panics from the driver, resolve to unhealthy rather than
// propagating.
func (i *Instance) CheckHealth() (healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			i.mu.Lock()
			i.health = HealthUnhealthy
			i.mu.Unlock()
			i.logger.Errorf("health probe for instance %s panicked: %v", i.id, r)
			healthy = false
		}
	}()

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.proc == nil || !i.proc.IsConnected() {
		i.health = HealthUnhealthy
		return false
	}
	if i.errorCount > degradedErrorThreshold {
		i.health = HealthDegraded
		return true
	}
	i.health = HealthHealthy
	return true
}

// Close tears the instance down: pages, then context, then process. Each
// step is guarded so one failure does not block the next. With force, a
// failed graceful process close is followed by a hard kill. The instance
// is unconditionally inactive afterwards.
func (i *Instance) Close(force bool) CloseResult {
	i.mu.Lock()
	pages := make([]engine.Page, 0, len(i.pages))
	for _, p := range i.pages {
		pages = append(pages, p)
	}
	i.pages = make(map[string]engine.Page)
	i.pageOrder = nil
	browserCtx := i.browserCtx
	proc := i.proc
	i.browserCtx = nil
	i.state = stateClosed
	i.mu.Unlock()

	var result CloseResult
	for _, page := range pages {
		if page.IsClosed() {
			continue
		}
		if err := page.Close(); err != nil {
			result.PageErrors++
			i.logger.Warnf("failed to close page on instance %s: %v", i.id, err)
		}
	}

	if browserCtx != nil {
		if err := browserCtx.Close(); err != nil {
			result.ContextErr = err
			i.logger.Warnf("failed to close context on instance %s: %v", i.id, err)
		}
	}

	if proc != nil {
		if err := proc.Close(); err != nil {
			result.ProcessErr = err
			i.logger.Warnf("failed to close process on instance %s: %v", i.id, err)
			if force {
				if killErr := proc.Kill(); killErr != nil {
					result.KillErr = killErr
					i.logger.Errorf("failed to kill process on instance %s: %v", i.id, killErr)
				}
			}
		}
	}

	return result
}

// Idle reports whether the instance has no open pages and has been unused
// for longer than maxIdle. An instance with any open page is never idle.
func (i *Instance) Idle(maxIdle time.Duration) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.pages) > 0 {
		return false
	}
	return time.Since(i.lastUsed) > maxIdle
}

// Touch refreshes the last-used timestamp.
func (i *Instance) Touch() {
	i.mu.Lock()
	i.lastUsed = time.Now()
	i.mu.Unlock()
}

// ID returns the opaque instance id.
func (i *Instance) ID() string { return i.id }

// TeamID returns the immutable owning team id (may be empty).
func (i *Instance) TeamID() string { return i.teamID }

// Kind returns the engine kind this instance runs.
func (i *Instance) Kind() engine.Kind { return i.kind }

// CreatedAt returns the creation timestamp.
func (i *Instance) CreatedAt() time.Time { return i.createdAt }

// LastUsed returns the last-used timestamp.
func (i *Instance) LastUsed() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastUsed
}

// IsActive reports whether the instance is usable.
func (i *Instance) IsActive() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state == stateActive
}

// Health returns the current health classification.
func (i *Instance) Health() HealthStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.health
}

// Metrics returns a snapshot of the instance counters.
func (i *Instance) Metrics() InstanceMetrics {
	i.mu.Lock()
	defer i.mu.Unlock()
	return InstanceMetrics{
		PageCount:    len(i.pages),
		RequestCount: i.requestCount,
		ErrorCount:   i.errorCount,
	}
}

// Headless reports the launch mode this instance was created with.
func (i *Instance) Headless() bool { return i.cfg.Headless }

// TimeoutMs returns the default operation timeout for this instance.
func (i *Instance) TimeoutMs() float64 { return i.cfg.TimeoutMs }
