// Package watch implements the WatcherPool: one recursive file watcher per
// session, debounced per path, feeding file-change events and drop-file
// commit triggers to whoever owns the session.
package watch

// Kind classifies a filesystem event relative to the previous known state
// of a path.
type Kind string

const (
	KindAdded   Kind = "add"
	KindChanged Kind = "change"
	KindRemoved Kind = "remove"
)

// FileEvent is published on the event bus (as watcher:file-changed) and
// handed to DropFileHandler for drop-file writes.
type FileEvent struct {
	SessionID    string
	RelativePath string
	Kind         Kind
}

// DropFileHandler is invoked when a session's commit-message drop file
// receives an add/change event. The commit pipeline registers one per
// subscription to schedule its debounced commit.
type DropFileHandler func(evt FileEvent)
