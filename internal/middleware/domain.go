package middleware

import (
	"context"
	"net/http"
)

// DomainScope copies the {domainId} path value into the request context so every log line
// written while serving the request carries it. Wrap individual routes with it: path values
// exist only after the mux has matched.
func DomainScope(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id := r.PathValue("domainId"); id != "" {
			r = r.WithContext(WithDomainID(r.Context(), id))
		}
		next(w, r)
	}
}

func WithDomainID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, DomainKey, id)
}

// GetDomainID returns the domain of the current request, or "" outside a domain scope.
func GetDomainID(ctx context.Context) string {
	id, _ := ctx.Value(DomainKey).(string)
	return id
}
