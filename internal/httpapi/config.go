package httpapi

import (
	"net/http"
	"time"
)

// generateTimeout bounds one /generate call. Zero means no limit beyond the
// client connection.
var generateTimeout time.Duration

// SetGenerateTimeout sets the generate timeout (<= 0 disables).
func SetGenerateTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	generateTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS for the router built by the next NewMux.
// Empty origins allow any origin; empty methods allow GET and OPTIONS.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	if len(corsAllowedOrigins) == 0 {
		corsAllowedOrigins = []string{"*"}
	}
	corsAllowedMethods = append([]string(nil), methods...)
	if len(corsAllowedMethods) == 0 {
		corsAllowedMethods = []string{http.MethodGet, http.MethodOptions}
	}
	corsAllowedHeaders = append([]string(nil), headers...)
	if len(corsAllowedHeaders) == 0 {
		corsAllowedHeaders = []string{"Accept", "Content-Type", "X-Log-Level"}
	}
}
