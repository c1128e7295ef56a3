package engine

// LaunchSpec carries the fully merged options for one engine launch.
type LaunchSpec struct {
	// Headless controls whether the engine runs without a visible window
	Headless bool

	// ExecutablePath overrides the driver's bundled binary when set
	ExecutablePath string

	// Args are extra engine command-line arguments
	Args []string

	// TimeoutMs bounds the launch itself (0 means driver default)
	TimeoutMs float64
}

// ContextSpec configures the browsing context created on a live process.
type ContextSpec struct {
	ViewportWidth   int
	ViewportHeight  int
	UserAgent       string
	IgnoreTLSErrors bool
}

// Driver launches engine processes. It is the boundary to the external
// browser-automation runtime; the core never talks to the runtime directly.
type Driver interface {
	Launch(kind Kind, spec LaunchSpec) (Process, error)
}

// Process is one live engine process.
type Process interface {
	// IsConnected reports whether the driver connection is still up.
	IsConnected() bool

	// NewContext creates an isolated browsing context.
	NewContext(spec ContextSpec) (BrowserContext, error)

	// Close shuts the process down gracefully.
	Close() error

	// Kill force-terminates the process when graceful close failed.
	Kill() error

	// Version reports the engine version string, if known.
	Version() string
}

// BrowserContext is an isolated cookie/cache/storage scope on a process.
type BrowserContext interface {
	NewPage() (Page, error)
	Close() error
}

// Page is one open tab. Observer registration is fire-and-forget: the
// driver invokes callbacks from its own event loop.
type Page interface {
	Goto(url string, timeoutMs float64) (finalURL string, err error)
	Evaluate(script string) (any, error)
	Title() (string, error)
	URL() string
	Content() (string, error)
	SetDefaultTimeout(timeoutMs float64)
	Close() error
	IsClosed() bool

	OnRequest(fn func())
	OnPageError(fn func(error))
	OnClose(fn func())
}

// SystemBrowser describes a browser binary found outside the driver's
// managed install directory.
type SystemBrowser struct {
	Usable         bool
	ExecutablePath string
	Version        string
}

// SystemDetector probes the host for an already-present engine binary.
type SystemDetector interface {
	Detect(kind Kind) (*SystemBrowser, error)
}
