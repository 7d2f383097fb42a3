// ABOUTME: Bearer token extraction from HTTP requests and websocket upgrades
// ABOUTME: Accepts Authorization header or a token query parameter

package auth

import (
	"net/http"
	"strings"
)

// BearerFromRequest extracts a bearer token from a request. The
// Authorization header wins; the token query parameter is the fallback for
// websocket clients that cannot set headers.
func BearerFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
