package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: load /srv/libgame.so: symbol RELOAD_API not found
	Error string `json:"error" example:"load /srv/libgame.so: symbol RELOAD_API not found"`
	// HTTP status code.
	// example: 500
	Code int `json:"code" example:"500"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Canonical path of the watched artifact.
	// example: /srv/game/libgame.so
	Artifact string `json:"artifact" example:"/srv/game/libgame.so"`
	// Reloader state: loaded, unloaded or closed.
	// example: loaded
	State string `json:"state" example:"loaded"`
	// Whether the tick loop is running.
	Running bool `json:"running"`
	// Successful loads, including the first.
	// example: 3
	Generation uint64 `json:"generation" example:"3"`
	// Ticks driven by the runner.
	// example: 120000
	Ticks uint64 `json:"ticks" example:"120000"`
	// update calls that reached a loaded artifact.
	// example: 119990
	Updates uint64 `json:"updates" example:"119990"`
	// Successful reloads.
	// example: 2
	Reloads uint64 `json:"reloads" example:"2"`
	// Failed reloads.
	// example: 1
	ReloadFailures uint64 `json:"reload_failures" example:"1"`
	// Size of the state buffer in bytes.
	// example: 64
	StateBytes int `json:"state_bytes" example:"64"`
	// Last reload error, cleared by the next successful reload.
	LastError string `json:"last_error,omitempty"`
	// Time of the last successful load (unix seconds).
	// example: 1700000000
	LoadedAtUnix int64 `json:"loaded_at_unix,omitempty" example:"1700000000"`
	// Uptime of the runner in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// ReloadResponse is returned by POST /reload.
type ReloadResponse struct {
	// State after the reload.
	// example: loaded
	State string `json:"state" example:"loaded"`
	// Generation after the reload.
	// example: 4
	Generation uint64 `json:"generation" example:"4"`
	// Wall time of the reload in milliseconds.
	// example: 3
	DurationMS int64 `json:"duration_ms" example:"3"`
}
