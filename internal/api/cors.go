package api

import (
	"net/http"
	"strings"
)

const (
	corsAllowedMethods = "GET, POST, OPTIONS"
	corsAllowedHeaders = "Content-Type, X-Trace-ID"
)

// CORSMiddleware answers preflight requests and tags responses for allowed
// origins, credentials included. Preflights echo the requested headers.
// Entries match the Origin header exactly, or by host when the entry has no
// scheme; "*" allows any origin.
func CORSMiddleware(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if origin != "" && originAllowed(allowed, origin) {
					w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
					headers := corsAllowedHeaders
					if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
						headers = requested
					}
					w.Header().Set("Access-Control-Allow-Headers", headers)
					w.Header().Set("Access-Control-Max-Age", "600")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	host := origin
	if _, rest, ok := strings.Cut(origin, "://"); ok {
		host = rest
	}
	for _, entry := range allowed {
		switch {
		case entry == "*":
			return true
		case strings.EqualFold(entry, origin):
			return true
		case !strings.Contains(entry, "://") && strings.EqualFold(entry, host):
			return true
		}
	}
	return false
}
