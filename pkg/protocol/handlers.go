package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/browser"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/engine"
)

func (r *Router) handleLaunchBrowser(ctx context.Context, params map[string]any, teamID string) (*handlerResult, error) {
	kindStr, _ := params["engineKind"].(string)
	if kindStr == "" {
		kindStr, _ = params["browserType"].(string)
	}
	kind, err := engine.ParseKind(kindStr)
	if err != nil {
		return nil, err
	}

	opts := browser.CreateOptions{TeamID: teamID, Kind: kind}
	if v, ok := params["headless"].(bool); ok {
		opts.Headless = &v
	}
	if v, ok := paramFloat(params, "timeoutMs"); ok {
		opts.TimeoutMs = &v
	}
	if v, ok := params["userAgent"].(string); ok && v != "" {
		opts.UserAgent = &v
	}
	if v, ok := paramInt(params, "maxMemoryMB"); ok {
		opts.MaxMemoryMB = &v
	}
	if viewport, ok := params["viewport"].(map[string]any); ok {
		if w, ok := paramInt(viewport, "width"); ok {
			opts.ViewportWidth = &w
		}
		if h, ok := paramInt(viewport, "height"); ok {
			opts.ViewportHeight = &h
		}
	}

	inst, err := r.factory.CreateInstance(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := r.pool.Add(inst); err != nil {
		inst.Close(true)
		return nil, err
	}
	r.registerSession(inst.ID(), teamID)

	return &handlerResult{
		browserID: inst.ID(),
		result: map[string]any{
			"status":     "launched",
			"browserId":  inst.ID(),
			"engineKind": kind.String(),
			"headless":   inst.Headless(),
		},
	}, nil
}

// targetInstance resolves and authorizes the instance a call operates on.
func (r *Router) targetInstance(params map[string]any, teamID string) (*browser.Instance, string, error) {
	browserID, err := r.resolveBrowserID(params, teamID)
	if err != nil {
		return nil, "", err
	}
	if err := r.validateAccess(browserID, teamID); err != nil {
		return nil, "", err
	}
	inst, ok := r.pool.Get(browserID)
	if !ok {
		return nil, "", &SessionNotFoundError{BrowserID: browserID}
	}
	inst.Touch()
	return inst, browserID, nil
}

func (r *Router) handleNavigateToURL(ctx context.Context, params map[string]any, teamID string) (*handlerResult, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	inst, browserID, err := r.targetInstance(params, teamID)
	if err != nil {
		return nil, err
	}

	page, err := inst.MainPage()
	if err != nil {
		return nil, err
	}

	timeout, _ := paramFloat(params, "timeoutMs")
	finalURL, err := page.Goto(url, timeout)
	if err != nil {
		return nil, err
	}

	title, err := page.Title()
	if err != nil {
		title = ""
	}

	return &handlerResult{
		browserID: browserID,
		result: map[string]any{
			"status": "navigated",
			"url":    finalURL,
			"title":  title,
		},
	}, nil
}

func (r *Router) handleExecuteScript(ctx context.Context, params map[string]any, teamID string) (*handlerResult, error) {
	script, _ := params["script"].(string)
	if script == "" {
		return nil, fmt.Errorf("script is required")
	}

	inst, browserID, err := r.targetInstance(params, teamID)
	if err != nil {
		return nil, err
	}

	page, err := inst.MainPage()
	if err != nil {
		return nil, err
	}

	value, err := page.Evaluate(script)
	if err != nil {
		return nil, err
	}

	return &handlerResult{
		browserID: browserID,
		result: map[string]any{
			"status": "executed",
			"result": value,
		},
	}, nil
}

func (r *Router) handleGetPageContent(ctx context.Context, params map[string]any, teamID string) (*handlerResult, error) {
	inst, browserID, err := r.targetInstance(params, teamID)
	if err != nil {
		return nil, err
	}

	page, err := inst.MainPage()
	if err != nil {
		return nil, err
	}

	content, err := page.Content()
	if err != nil {
		return nil, err
	}

	return &handlerResult{
		browserID: browserID,
		result: map[string]any{
			"url":     page.URL(),
			"content": content,
		},
	}, nil
}

func (r *Router) handleListBrowsers(ctx context.Context, params map[string]any, teamID string) (*handlerResult, error) {
	browsers := make([]map[string]any, 0)
	for _, inst := range r.pool.List() {
		if inst.TeamID() != "" && teamID != "" && inst.TeamID() != teamID {
			continue
		}
		m := inst.Metrics()
		browsers = append(browsers, map[string]any{
			"browserId":    inst.ID(),
			"engineKind":   inst.Kind().String(),
			"healthStatus": string(inst.Health()),
			"isActive":     inst.IsActive(),
			"pageCount":    m.PageCount,
			"requestCount": m.RequestCount,
			"errorCount":   m.ErrorCount,
			"createdAt":    inst.CreatedAt().UTC(),
			"lastUsed":     inst.LastUsed().UTC(),
		})
	}
	return &handlerResult{result: map[string]any{"browsers": browsers}}, nil
}

func (r *Router) handleGetBrowserStatus(ctx context.Context, params map[string]any, teamID string) (*handlerResult, error) {
	statuses, err := r.factory.BrowserStatus()
	if err != nil {
		return nil, err
	}
	engines := make(map[string]bool, len(statuses))
	for kind, installed := range statuses {
		engines[kind.String()] = installed
	}
	return &handlerResult{result: map[string]any{"engines": engines}}, nil
}

// handleCloseBrowser is idempotent by exception: a close aimed at a
// session that no longer exists reports already_closed success instead of
// a session-not-found error.
func (r *Router) handleCloseBrowser(ctx context.Context, params map[string]any, teamID string) (*handlerResult, error) {
	browserID, _ := params["browserId"].(string)
	if browserID == "" {
		resolved, err := r.resolveBrowserID(params, teamID)
		if err != nil {
			return nil, err
		}
		browserID = resolved
	}

	if err := r.validateAccess(browserID, teamID); err != nil {
		var notFound *SessionNotFoundError
		if errors.As(err, &notFound) {
			return &handlerResult{
				browserID: browserID,
				result: map[string]any{
					"status":    "already_closed",
					"browserId": browserID,
				},
			}, nil
		}
		return nil, err
	}

	force, _ := params["force"].(bool)
	r.pool.Remove(browserID, force)
	r.unregisterSession(browserID)

	return &handlerResult{
		browserID: browserID,
		result: map[string]any{
			"status":    "closed",
			"browserId": browserID,
		},
	}, nil
}

// paramFloat reads a numeric parameter. JSON numbers arrive as float64,
// but int is accepted for direct in-process callers.
func paramFloat(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func paramInt(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
