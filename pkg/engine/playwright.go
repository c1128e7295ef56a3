package engine

import (
	"fmt"
	"io"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver implements Driver on top of the playwright-go runtime.
type PlaywrightDriver struct {
	pw *playwright.Playwright
}

// StartPlaywright boots the playwright runtime (installing the driver
// itself if needed, but not any browsers) and returns a Driver over it.
func StartPlaywright() (*PlaywrightDriver, error) {
	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("failed to install playwright driver: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	return &PlaywrightDriver{pw: pw}, nil
}

// InstallBrowser downloads the engine binaries for the given kind through
// the playwright package mechanism.
func (d *PlaywrightDriver) InstallBrowser(kind Kind) error {
	opts := &playwright.RunOptions{
		Browsers: []string{kind.String()},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install %s: %w", kind, err)
	}
	return nil
}

// ExecutablePath reports where the driver expects the engine binary for
// the given kind, whether or not it is installed yet.
func (d *PlaywrightDriver) ExecutablePath(kind Kind) string {
	return d.browserType(kind).ExecutablePath()
}

// Stop shuts the playwright runtime down.
func (d *PlaywrightDriver) Stop() error {
	return d.pw.Stop()
}

func (d *PlaywrightDriver) browserType(kind Kind) playwright.BrowserType {
	switch kind {
	case Firefox:
		return d.pw.Firefox
	case WebKit:
		return d.pw.WebKit
	default:
		return d.pw.Chromium
	}
}

// Launch starts one engine process.
func (d *PlaywrightDriver) Launch(kind Kind, spec LaunchSpec) (Process, error) {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(spec.Headless),
	}
	if len(spec.Args) > 0 {
		opts.Args = spec.Args
	}
	if spec.ExecutablePath != "" {
		opts.ExecutablePath = playwright.String(spec.ExecutablePath)
	}
	if spec.TimeoutMs > 0 {
		opts.Timeout = playwright.Float(spec.TimeoutMs)
	}

	browser, err := d.browserType(kind).Launch(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", kind, err)
	}
	return &playwrightProcess{browser: browser}, nil
}

type playwrightProcess struct {
	browser playwright.Browser
}

func (p *playwrightProcess) IsConnected() bool {
	return p.browser.IsConnected()
}

func (p *playwrightProcess) Version() string {
	return p.browser.Version()
}

func (p *playwrightProcess) NewContext(spec ContextSpec) (BrowserContext, error) {
	opts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(spec.IgnoreTLSErrors),
	}
	if spec.ViewportWidth > 0 && spec.ViewportHeight > 0 {
		opts.Viewport = &playwright.Size{
			Width:  spec.ViewportWidth,
			Height: spec.ViewportHeight,
		}
	}
	if spec.UserAgent != "" {
		opts.UserAgent = playwright.String(spec.UserAgent)
	}

	ctx, err := p.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	return &playwrightContext{ctx: ctx}, nil
}

func (p *playwrightProcess) Close() error {
	return p.browser.Close()
}

// Kill is the hard-stop path. The playwright driver owns the OS process,
// so the strongest signal available is another close through the driver.
func (p *playwrightProcess) Kill() error {
	return p.browser.Close()
}

type playwrightContext struct {
	ctx playwright.BrowserContext
}

func (c *playwrightContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (c *playwrightContext) Close() error {
	return c.ctx.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(url string, timeoutMs float64) (string, error) {
	opts := playwright.PageGotoOptions{}
	if timeoutMs > 0 {
		opts.Timeout = playwright.Float(timeoutMs)
	}
	if _, err := p.page.Goto(url, opts); err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}
	return p.page.URL(), nil
}

func (p *playwrightPage) Evaluate(script string) (any, error) {
	return p.page.Evaluate(script)
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) SetDefaultTimeout(timeoutMs float64) {
	p.page.SetDefaultTimeout(timeoutMs)
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

func (p *playwrightPage) IsClosed() bool {
	return p.page.IsClosed()
}

func (p *playwrightPage) OnRequest(fn func()) {
	p.page.OnRequest(func(playwright.Request) { fn() })
}

func (p *playwrightPage) OnPageError(fn func(error)) {
	p.page.OnPageError(fn)
}

func (p *playwrightPage) OnClose(fn func()) {
	p.page.OnClose(func(playwright.Page) { fn() })
}
