package browser

import (
	"context"
	"sync"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/install"
)

// fakeDriver records launches and hands out a configured process.
type fakeDriver struct {
	mu        sync.Mutex
	launchErr error
	proc      *fakeProcess
	lastKind  engine.Kind
	lastSpec  engine.LaunchSpec
	launches  int
}

func (d *fakeDriver) Launch(kind engine.Kind, spec engine.LaunchSpec) (engine.Process, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launches++
	d.lastKind = kind
	d.lastSpec = spec
	if d.launchErr != nil {
		return nil, d.launchErr
	}
	if d.proc == nil {
		d.proc = newFakeProcess()
	}
	return d.proc, nil
}

type fakeProcess struct {
	mu            sync.Mutex
	connected     bool
	connectPanics bool
	newContextErr error
	closeErr      error
	killErr       error
	closed        bool
	killed        bool
	lastSpec      engine.ContextSpec
	ctx           *fakeContext
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{connected: true}
}

func (p *fakeProcess) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectPanics {
		panic("connection probe exploded")
	}
	return p.connected
}

func (p *fakeProcess) Version() string { return "120.0-test" }

func (p *fakeProcess) NewContext(spec engine.ContextSpec) (engine.BrowserContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSpec = spec
	if p.newContextErr != nil {
		return nil, p.newContextErr
	}
	p.ctx = &fakeContext{}
	return p.ctx, nil
}

func (p *fakeProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	return p.killErr
}

func (p *fakeProcess) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

type fakeContext struct {
	mu         sync.Mutex
	newPageErr error
	closeErr   error
	closed     bool
	pages      []*fakePage
}

func (c *fakeContext) NewPage() (engine.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.newPageErr != nil {
		return nil, c.newPageErr
	}
	page := &fakePage{url: "about:blank"}
	c.pages = append(c.pages, page)
	return page, nil
}

func (c *fakeContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.closeErr
}

// fakePage lets tests fire driver events by hand. Close delivers the close
// event synchronously, which is the harshest interleaving for the
// idempotence guarantees.
type fakePage struct {
	mu          sync.Mutex
	closed      bool
	closeErr    error
	timeout     float64
	url         string
	title       string
	gotoErr     error
	evalResult  any
	evalErr     error
	onRequest   func()
	onPageError func(error)
	onClose     func()
}

func (p *fakePage) Goto(url string, timeoutMs float64) (string, error) {
	if p.gotoErr != nil {
		return "", p.gotoErr
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return url, nil
}

func (p *fakePage) Evaluate(script string) (any, error) {
	return p.evalResult, p.evalErr
}

func (p *fakePage) Title() (string, error) { return p.title, nil }

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Content() (string, error) { return "<html></html>", nil }

func (p *fakePage) SetDefaultTimeout(timeoutMs float64) {
	p.mu.Lock()
	p.timeout = timeoutMs
	p.mu.Unlock()
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	onClose := p.onClose
	closeErr := p.closeErr
	p.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return closeErr
}

func (p *fakePage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) OnRequest(fn func()) {
	p.mu.Lock()
	p.onRequest = fn
	p.mu.Unlock()
}

func (p *fakePage) OnPageError(fn func(error)) {
	p.mu.Lock()
	p.onPageError = fn
	p.mu.Unlock()
}

func (p *fakePage) OnClose(fn func()) {
	p.mu.Lock()
	p.onClose = fn
	p.mu.Unlock()
}

func (p *fakePage) fireRequest() {
	p.mu.Lock()
	fn := p.onRequest
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *fakePage) firePageError(err error) {
	p.mu.Lock()
	fn := p.onPageError
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// fakeResolver implements Resolver with pluggable behavior.
type fakeResolver struct {
	mu             sync.Mutex
	ensureFn       func(kind engine.Kind, opts install.EnsureOptions) (*install.Availability, error)
	installFn      func(kind engine.Kind) error
	checkFn        func(kind engine.Kind) (bool, error)
	ensureCalls    []install.EnsureOptions
	installedKinds []engine.Kind
}

func (r *fakeResolver) EnsureAvailable(ctx context.Context, kind engine.Kind, opts install.EnsureOptions) (*install.Availability, error) {
	r.mu.Lock()
	r.ensureCalls = append(r.ensureCalls, opts)
	r.mu.Unlock()
	if r.ensureFn != nil {
		return r.ensureFn(kind, opts)
	}
	return &install.Availability{Available: true, Source: install.SourceInstalled}, nil
}

func (r *fakeResolver) Install(ctx context.Context, kind engine.Kind, opts install.InstallOptions) error {
	r.mu.Lock()
	r.installedKinds = append(r.installedKinds, kind)
	r.mu.Unlock()
	if r.installFn != nil {
		return r.installFn(kind)
	}
	return nil
}

func (r *fakeResolver) CheckInstalled(kind engine.Kind) (bool, error) {
	if r.checkFn != nil {
		return r.checkFn(kind)
	}
	return true, nil
}
