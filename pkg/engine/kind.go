package engine

import "fmt"

// Kind identifies a browser-engine family.
type Kind string

const (
	Chromium Kind = "chromium"
	Firefox  Kind = "firefox"
	WebKit   Kind = "webkit"
)

// Kinds lists every supported engine kind in a stable order.
func Kinds() []Kind {
	return []Kind{Chromium, Firefox, WebKit}
}

// ParseKind validates a raw engine-kind string. Empty input defaults
// to Chromium.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return Chromium, nil
	case Chromium, Firefox, WebKit:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unsupported engine kind %q (must be 'chromium', 'firefox', or 'webkit')", s)
	}
}

func (k Kind) String() string {
	return string(k)
}
