// Package protocol dispatches tool calls onto the browser core. The router
// resolves the target instance from a call, enforces team ownership, and
// normalizes every outcome into a stable response envelope.
package protocol

import "time"

// Tool identifies one protocol operation. The handler table over these
// constants is the complete dispatch surface.
type Tool string

const (
	ToolLaunchBrowser    Tool = "launch_browser"
	ToolNavigateToURL    Tool = "navigate_to_url"
	ToolExecuteScript    Tool = "execute_script"
	ToolGetPageContent   Tool = "get_page_content"
	ToolListBrowsers     Tool = "list_browsers"
	ToolGetBrowserStatus Tool = "get_browser_status"
	ToolCloseBrowser     Tool = "close_browser"
)

// Request is the abstract tool-call envelope received from the transport.
type Request struct {
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params"`
	TeamID    string         `json:"teamId,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}

// ErrorInfo is the normalized failure shape. Code is machine-checkable;
// Suggestion, when present, tells the caller how to recover.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Tool       string `json:"tool"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Meta carries response bookkeeping.
type Meta struct {
	BrowserID       string `json:"browserId,omitempty"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	TeamID          string `json:"teamId,omitempty"`
}

// Response is the envelope returned for every request; exactly one of
// Result and Error is set.
type Response struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *ErrorInfo     `json:"error,omitempty"`
	Meta    Meta           `json:"metadata"`
}

// session is the router's bookkeeping entry for one live instance.
type session struct {
	teamID      string
	lastTouched time.Time
}
