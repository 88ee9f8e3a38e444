package rebase

import "errors"

var (
	// ErrAlreadyScheduled is returned by Schedule when sessionID already has
	// a running cycle.
	ErrAlreadyScheduled = errors.New("session already has a rebase schedule")

	// ErrNotScheduled is returned by Cancel/Pause/Resume/ForceCheck for an
	// unknown session.
	ErrNotScheduled = errors.New("session has no rebase schedule")
)
