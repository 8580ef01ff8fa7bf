package auth

import (
	"net/http"
	"strings"
)

// TokenFromRequest extracts a bearer credential from the upgrade request.
// The Authorization header wins over the token query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
