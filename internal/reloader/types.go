package reloader

import "time"

// State is the lifecycle state of a Reloader.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoaded   State = "loaded"
	StateClosed   State = "closed"
)

// NoHost selects the host-less variant: artifacts receive a NULL host pointer
// and must declare a zero host signature.
type NoHost struct{}

// Stats is a point-in-time summary of a Reloader.
type Stats struct {
	State          State
	Path           string
	Generation     uint64 // successful loads, including the first
	Updates        uint64
	Reloads        uint64
	ReloadFailures uint64
	StateBytes     int
	LastError      string
	LoadedAt       time.Time
	LastReloadAt   time.Time
}
