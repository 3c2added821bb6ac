package middleware

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuth protects operational endpoints such as /metrics with HTTP basic
// authentication. When both username and password are empty every request
// passes through.
type BasicAuth struct {
	realm    string
	username string
	password string
}

// NewBasicAuth creates a basic auth middleware for realm.
func NewBasicAuth(realm, username, password string) *BasicAuth {
	return &BasicAuth{realm: realm, username: username, password: password}
}

// Enabled reports whether credentials are required.
func (m *BasicAuth) Enabled() bool {
	return m.username != "" || m.password != ""
}

// Handler returns middleware that requires the configured credentials.
func (m *BasicAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		// Both comparisons always run so timing does not reveal which failed.
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(m.password)) == 1
		if !ok || !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+m.realm+`"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
