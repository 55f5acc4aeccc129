package httpapi

import "time"

// reloadTimeout bounds how long POST /reload waits for the runner to pick up
// the request and finish the reload.
var reloadTimeout = 30 * time.Second

// SetReloadTimeout sets the forced reload timeout (<= 0 restores the default).
func SetReloadTimeout(d time.Duration) {
	if d <= 0 {
		reloadTimeout = 30 * time.Second
		return
	}
	reloadTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
