package middleware

import (
	"context"
	"net/http"
	"strings"
)

const (
	// ProjectHeader scopes a request to one project.
	ProjectHeader = "X-Project-ID"
	projectKey    = contextKey("project")
)

// ProjectFromContext returns the project named by the request, or "" when
// the caller did not name one.
func ProjectFromContext(ctx context.Context) string {
	p, _ := ctx.Value(projectKey).(string)
	return p
}

// Project stores the X-Project-ID header in the request context.
func Project(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimSpace(r.Header.Get(ProjectHeader))
		if p == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(p) > 128 {
			writeError(w, http.StatusBadRequest, "project id too long")
			return
		}
		ctx := context.WithValue(r.Context(), projectKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
