package watch

import "errors"

var (
	// ErrAlreadySubscribed is returned by Subscribe when a session already
	// has an active watcher.
	ErrAlreadySubscribed = errors.New("session already has an active watcher")

	// ErrNotSubscribed is returned by Unsubscribe for an unknown session.
	ErrNotSubscribed = errors.New("session has no active watcher")
)
