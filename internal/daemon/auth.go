package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"archivist/internal/logging"
)

// requireToken rejects requests whose bearer token does not match the
// configured api_token. An empty token leaves the API open.
func (s *apiServer) requireToken(token string, next http.Handler) http.Handler {
	token = strings.TrimSpace(token)
	if token == "" {
		return next
	}
	expected := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, presented, _ := strings.Cut(r.Header.Get("Authorization"), " ")
		if !strings.EqualFold(scheme, "Bearer") || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), expected) != 1 {
			s.log().Debug("api request rejected",
				logging.String("path", r.URL.Path),
				logging.String("remote", r.RemoteAddr),
				logging.String(logging.FieldEventType, "api_unauthorized"),
			)
			s.writeError(w, http.StatusUnauthorized, "missing or invalid api token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
