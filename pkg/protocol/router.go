package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/browser"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/metrics"
)

// handlerResult is what a handler returns on success.
type handlerResult struct {
	result    map[string]any
	browserID string
}

type handlerFunc func(ctx context.Context, params map[string]any, teamID string) (*handlerResult, error)

// Router dispatches tool calls. It owns the session table mapping browser
// ids to their owning team and last-touched time; ownership is enforced on
// every resolved access. The router never retries — recovery belongs to
// the pool and the engine driver.
type Router struct {
	pool    *browser.Pool
	factory *browser.Factory
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*session

	handlers map[Tool]handlerFunc
}

// NewRouter creates a router over the given pool and factory. The handler
// table is built here once; it is the exhaustive set of supported tools.
func NewRouter(pool *browser.Pool, factory *browser.Factory, m *metrics.Metrics) *Router {
	logger, _ := logging.NewLogger("router")
	r := &Router{
		pool:     pool,
		factory:  factory,
		metrics:  m,
		logger:   logger,
		sessions: make(map[string]*session),
	}
	r.handlers = map[Tool]handlerFunc{
		ToolLaunchBrowser:    r.handleLaunchBrowser,
		ToolNavigateToURL:    r.handleNavigateToURL,
		ToolExecuteScript:    r.handleExecuteScript,
		ToolGetPageContent:   r.handleGetPageContent,
		ToolListBrowsers:     r.handleListBrowsers,
		ToolGetBrowserStatus: r.handleGetBrowserStatus,
		ToolCloseBrowser:     r.handleCloseBrowser,
	}
	return r
}

// Route executes one tool call. Every outcome, including panics with
// non-error values, comes back as a Response; nothing escapes raw.
func (r *Router) Route(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	tool := Tool(req.Tool)
	params := req.Params
	if params == nil {
		params = make(map[string]any)
	}
	normalizeAliases(params)

	defer func() {
		if rec := recover(); rec != nil {
			if err, ok := rec.(error); ok {
				resp = r.failure(tool, req.TeamID, start, "", err)
			} else {
				r.logger.Errorf("handler for %s panicked with non-error value: %v", tool, rec)
				resp = Response{
					Success: false,
					Error: &ErrorInfo{
						Code:    CodeUnknownError,
						Message: fmt.Sprintf("unexpected failure: %v", rec),
						Tool:    string(tool),
					},
					Meta: r.meta(start, "", req.TeamID),
				}
			}
		}
		code := "OK"
		if resp.Error != nil {
			code = resp.Error.Code
		}
		r.metrics.ToolRequests.WithLabelValues(string(tool), code).Inc()
	}()

	handler, ok := r.handlers[tool]
	if !ok {
		return r.failure(tool, req.TeamID, start, "", fmt.Errorf("unknown tool %q", req.Tool))
	}

	hr, err := handler(ctx, params, req.TeamID)
	if err != nil {
		return r.failure(tool, req.TeamID, start, "", err)
	}

	return Response{
		Success: true,
		Result:  hr.result,
		Meta:    r.meta(start, hr.browserID, req.TeamID),
	}
}

func (r *Router) failure(tool Tool, teamID string, start time.Time, browserID string, err error) Response {
	info := formatError(tool, err)
	r.logger.Warnf("%s failed for team %q: %s (%s)", tool, teamID, info.Message, info.Code)
	return Response{
		Success: false,
		Error:   info,
		Meta:    r.meta(start, browserID, teamID),
	}
}

func (r *Router) meta(start time.Time, browserID, teamID string) Meta {
	return Meta{
		BrowserID:       browserID,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		TeamID:          teamID,
	}
}

// normalizeAliases folds legacy id parameter names into browserId.
func normalizeAliases(params map[string]any) {
	if _, ok := params["browserId"]; ok {
		return
	}
	for _, alias := range []string{"id", "instanceId", "browser_id"} {
		if v, ok := params[alias]; ok {
			params["browserId"] = v
			return
		}
	}
}

// resolveBrowserID picks the target instance for a call. An explicit live
// id wins. An explicit unknown id fails only under byId targeting; the
// default ("latest"/"current") falls back to the caller's most-recently-
// touched live session. The resolved session's lastTouched is refreshed.
// Ownership is NOT checked here; that is validateAccess's job.
func (r *Router) resolveBrowserID(params map[string]any, teamID string) (string, error) {
	browserID, _ := params["browserId"].(string)
	target, _ := params["target"].(string)

	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if browserID != "" {
		if s, ok := r.sessions[browserID]; ok {
			if _, live := r.pool.Get(browserID); live {
				s.lastTouched = now
				return browserID, nil
			}
			// The pool reaped it behind our back; drop the stale entry
			delete(r.sessions, browserID)
		}
		if target == "byId" {
			return "", &SessionNotFoundError{BrowserID: browserID}
		}
	}

	var bestID string
	var bestTouched time.Time
	for id, s := range r.sessions {
		if s.teamID != "" && teamID != "" && s.teamID != teamID {
			continue
		}
		if _, live := r.pool.Get(id); !live {
			delete(r.sessions, id)
			continue
		}
		if s.lastTouched.After(bestTouched) {
			bestID = id
			bestTouched = s.lastTouched
		}
	}
	if bestID == "" {
		return "", errNoActiveSession
	}
	r.sessions[bestID].lastTouched = now
	return bestID, nil
}

// validateAccess enforces team ownership of a session. A mismatch only
// exists when both the session and the caller carry a team id.
func (r *Router) validateAccess(browserID, teamID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[browserID]
	if !ok {
		return &SessionNotFoundError{BrowserID: browserID}
	}
	if s.teamID != "" && teamID != "" && s.teamID != teamID {
		return &AccessDeniedError{BrowserID: browserID, OwnerTeam: s.teamID}
	}
	return nil
}

func (r *Router) registerSession(browserID, teamID string) {
	r.mu.Lock()
	r.sessions[browserID] = &session{teamID: teamID, lastTouched: time.Now()}
	r.mu.Unlock()
}

func (r *Router) unregisterSession(browserID string) {
	r.mu.Lock()
	delete(r.sessions, browserID)
	r.mu.Unlock()
}
