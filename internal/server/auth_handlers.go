package server

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// basicAuthRealm is sent in the WWW-Authenticate challenge.
const basicAuthRealm = "curator"

// basicAuthMiddleware requires HTTP basic auth when a password hash is
// configured. Any user name is accepted; only the password is checked.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	hash := []byte(s.config.Server.PasswordHash)
	if len(hash) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		_, password, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+basicAuthRealm+`", charset="UTF-8"`)
			s.respondWithError(w, r, http.StatusUnauthorized, "Authentication required", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isPublicPath checks if a path should be accessible without authentication
func isPublicPath(path string) bool {
	publicPaths := []string{
		"/health",
	}

	for _, publicPath := range publicPaths {
		if strings.HasPrefix(path, publicPath) {
			return true
		}
	}

	return false
}
