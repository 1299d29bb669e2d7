package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// allow checks the method and token. It writes the error response and
// returns false when the request must not proceed.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	methodOK := false
	for _, m := range methods {
		if r.Method == m {
			methodOK = true
			break
		}
	}
	if !methodOK {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return false
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return false
	}
	if r.Method != http.MethodGet && s.cfg.ReadOnly {
		writeAPIError(w, http.StatusForbidden, "READ_ONLY", "server is in read-only mode")
		return false
	}
	return true
}

func (s *Server) authorizeRequest(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" && secureEqual(q, s.cfg.Token) {
		return true
	}
	if h := bearerToken(r.Header.Get("Authorization")); h != "" && secureEqual(h, s.cfg.Token) {
		return true
	}
	return false
}

func bearerToken(authHeader string) string {
	const bearerPrefix = "Bearer "
	authHeader = strings.TrimSpace(authHeader)
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
