package middleware

import (
	"net/http"
	"strings"

	"github.com/phrazzld/taskrelay/internal/api/shared"
)

// UserIDHeader carries the caller identity set by the fronting gateway.
const UserIDHeader = "X-User-ID"

// Identity copies the caller identity into the request context. It is read
// from the X-User-ID header, or from the user_id query parameter for
// clients that cannot set headers (browser websockets). Requests without
// one run as the system user. Authentication happens upstream.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			userID = strings.TrimSpace(r.URL.Query().Get("user_id"))
		}
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.WithUserID(r.Context(), userID)))
	})
}
