package middleware

import (
	"net/http"
	"strings"

	"gqlpipeline/internal/pipeline"
)

// RequestBindingMiddleware attaches a fresh pipeline request record to every
// HTTP request's context, carrying the Authorization bearer token when one is
// present. All resolvers invoked during the request share the one record.
// When the pipeline provisioned its own execution handle during resolution,
// it is released here, after the last resolver has run.
func RequestBindingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := pipeline.NewRequest()
			req.Token = bearerToken(r)

			ctx := pipeline.WithRequest(r.Context(), req)
			defer func() { _ = req.ReleaseExecutor() }()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. A bare token without the scheme is accepted as well.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
