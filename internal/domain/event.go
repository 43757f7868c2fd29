package domain

import "time"

// EventKind is the kind of filesystem change delivered by the watch service.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventModify EventKind = "modify"
	EventRemove EventKind = "remove"
)

// FileEvent is one change under the protected root.
type FileEvent struct {
	Path      string
	Kind      EventKind
	Timestamp time.Time
}

// NewFileEvent creates an event stamped with the current time.
func NewFileEvent(path string, kind EventKind) FileEvent {
	return FileEvent{
		Path:      path,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// HasContent reports whether the event may have left readable content behind.
func (e FileEvent) HasContent() bool {
	return e.Kind == EventCreate || e.Kind == EventModify
}
