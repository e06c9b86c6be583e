package pipeline

import (
	"fmt"

	"github.com/moonrepo/moon/internal/action"
)

// errMissingHandler is returned when the executor releases a node whose
// kind has no registered Handler.
func errMissingHandler(kind action.Kind) error {
	return fmt.Errorf("pipeline: no handler registered for %s", kind)
}
