package auth

import (
	"net/http"
	"strings"
)

// ExtractToken gets token from the configured header (optionally Bearer-prefixed)
// or the query parameter used by browsers opening a websocket.
func ExtractToken(r *http.Request, header, bearerPrefix, queryKey string) string {
	if header != "" {
		v := strings.TrimSpace(r.Header.Get(header))
		if v != "" {
			if bearerPrefix != "" && strings.HasPrefix(v, bearerPrefix) {
				return strings.TrimSpace(strings.TrimPrefix(v, bearerPrefix))
			}
			return v
		}
	}
	if queryKey != "" {
		q := strings.TrimSpace(r.URL.Query().Get(queryKey))
		if q != "" {
			return q
		}
	}
	return ""
}
