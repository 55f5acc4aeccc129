package reloader

// Event names published by a Reloader.
const (
	EventInit         = "init"
	EventWatchMatch   = "watch_match"
	EventReloadStart  = "reload_start"
	EventUnload       = "unload"
	EventReloadDone   = "reload_done"
	EventReloadFailed = "reload_failed"
	EventDeinit       = "deinit"
)

// Event represents a reloader lifecycle event.
// Minimal and stable: name, artifact path, reload cycle id and optional fields.
type Event struct {
	Name    string
	Path    string
	CycleID string
	Fields  map[string]any
}

// EventPublisher receives events from the reloader. Implementations should be
// lightweight and non-blocking; Publish is called on the driving goroutine and
// must not call back into the Reloader.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
