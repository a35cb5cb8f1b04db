package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireAPIKey checks the bearer token on API routes against the configured
// admin key. With no key configured the API is open in DEV and closed
// everywhere else.
func (s *Server) RequireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.config.GetAdminAPIKey()
		if key == "" {
			if s.env == "DEV" {
				next(w, r)
				return
			}
			writeJSONError(w, "unauthorized", "admin API key is not configured", http.StatusUnauthorized)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="hub"`)
			writeJSONError(w, "unauthorized", "invalid or missing bearer token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
