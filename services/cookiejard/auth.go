package cookiejard

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// Authenticator validates incoming admin requests against a static bearer
// token.
type Authenticator struct {
	bearerToken string
}

// NewAuthenticator constructs an Authenticator from the configured token.
func NewAuthenticator(token string) (*Authenticator, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("bearer token must be configured")
	}
	return &Authenticator{bearerToken: token}, nil
}

// Middleware enforces authentication for admin handlers.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			http.Error(w, "authentication unavailable", http.StatusInternalServerError)
			return
		}
		if a.authenticate(r) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "authentication required", http.StatusUnauthorized)
	})
}

func (a *Authenticator) authenticate(r *http.Request) bool {
	if r == nil {
		return false
	}
	token := parseBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.bearerToken)) == 1
}

func parseBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
