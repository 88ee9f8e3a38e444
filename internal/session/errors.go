package session

import "errors"

var (
	// ErrNotFound is returned when a requested sessionId is absent from the profile.
	ErrNotFound = errors.New("session not found")

	// ErrStaleState names the condition where a process's expected state is
	// gone, e.g. after an external wipe of the profile file. No Store method
	// detects that condition or returns this error.
	ErrStaleState = errors.New("session store state is stale")
)
