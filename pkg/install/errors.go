package install

import (
	"fmt"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/engine"
)

// InstallationError is raised when an install fails. It carries the engine
// kind and the phase that failed so callers can report actionable errors.
type InstallationError struct {
	Kind  engine.Kind
	Phase Phase
	Err   error
}

func (e *InstallationError) Error() string {
	return fmt.Sprintf("installation of %s failed during %s: %v", e.Kind, e.Phase, e.Err)
}

func (e *InstallationError) Unwrap() error {
	return e.Err
}
