package lock

import (
	"errors"
	"fmt"
	"strings"
)

// Conflict names one blocking declaration against one requested path.
type Conflict struct {
	Path      string
	SessionID string
	Agent     string
}

// ConflictError is returned when one or more requested files are already
// covered by another session's live declaration.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s locked by %s/%s", c.Path, c.Agent, c.SessionID))
	}
	return "conflicts with: " + strings.Join(parts, ", ")
}

// ErrUnknownState is returned when a partial disk failure makes it
// impossible to safely confirm no conflict exists.
var ErrUnknownState = errors.New("lock registry: could not read declaration state")
