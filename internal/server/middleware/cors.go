package middleware

import (
	"net/http"
	"strings"
)

// CORS returns middleware that answers cross-origin requests for the
// configured origins. An empty list, or a "*" entry, allows any origin.
// Preflight requests are answered directly with 204 No Content.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				// Responses differ per origin, so caches must key on it.
				w.Header().Add("Vary", "Origin")

				_, ok := allowed[strings.ToLower(origin)]
				if allowAll || ok {
					hdr := w.Header()
					hdr.Set("Access-Control-Allow-Origin", origin)
					hdr.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
					hdr.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					hdr.Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
