package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes form a closed set; every failure leaving the router carries
// exactly one of them.
const (
	CodeBrowserTimeout = "BROWSER_TIMEOUT"
	CodeSessionMissing = "BROOKLYN_SESSION_MISSING"
	CodeElementMissing = "ELEMENT_NOT_FOUND"
	CodeAccessDenied   = "ACCESS_DENIED"
	CodeBrowserError   = "BROWSER_ERROR"
	CodeUnknownError   = "UNKNOWN_ERROR"
)

// sessionMissingMessage is the canonical user-visible phrase for every
// session-not-found variant.
const sessionMissingMessage = "Browser session not found. Launch a browser first with launch_browser."

// SessionNotFoundError is raised when a browser id does not name a live
// session.
type SessionNotFoundError struct {
	BrowserID string
}

func (e *SessionNotFoundError) Error() string {
	if e.BrowserID == "" {
		return "browser session not found"
	}
	return fmt.Sprintf("browser session %q not found", e.BrowserID)
}

// AccessDeniedError is raised when a caller touches a session owned by
// another team.
type AccessDeniedError struct {
	BrowserID string
	OwnerTeam string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: browser session %q belongs to team %s", e.BrowserID, e.OwnerTeam)
}

// errNoActiveSession is the implicit-target miss: the caller asked for
// "latest" but owns no live sessions.
var errNoActiveSession = errors.New("no active browser session - launch one first")

// formatError converts any failure into the stable error envelope. The
// mapping is a closed taxonomy; anything unrecognized becomes
// BROWSER_ERROR and non-error panic values become UNKNOWN_ERROR upstream.
func formatError(tool Tool, err error) *ErrorInfo {
	info := &ErrorInfo{Tool: string(tool)}

	var notFound *SessionNotFoundError
	var denied *AccessDeniedError
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case errors.As(err, &notFound), errors.Is(err, errNoActiveSession):
		info.Code = CodeSessionMissing
		info.Message = sessionMissingMessage
		info.Suggestion = "Call launch_browser to start a session, or pass a valid browserId."
	case errors.As(err, &denied):
		info.Code = CodeAccessDenied
		info.Message = msg
		info.Suggestion = "Use a browserId owned by your team."
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		info.Code = CodeBrowserTimeout
		info.Message = msg
		info.Suggestion = "Retry with a longer timeoutMs or check that the page is responsive."
	case strings.Contains(lower, "session not found"):
		info.Code = CodeSessionMissing
		info.Message = sessionMissingMessage
	case strings.Contains(lower, "not found"):
		info.Code = CodeElementMissing
		info.Message = msg
		info.Suggestion = "Verify the selector or wait for the element to appear."
	case strings.Contains(lower, "access denied"):
		info.Code = CodeAccessDenied
		info.Message = msg
	default:
		info.Code = CodeBrowserError
		info.Message = msg
	}

	return info
}
