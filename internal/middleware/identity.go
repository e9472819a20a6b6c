package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Identity carries the caller identity resolved from gateway headers. The
// upstream API gateway terminates authentication and forwards the verified
// principal through X-Tenant-ID / X-User-ID / X-Roles.
type Identity struct {
	UserID     string
	TenantID   string
	SuperAdmin bool
	ReadOnly   bool
}

const identityKey contextKey = "identity"

// WithIdentity resolves the caller identity from request headers and stores it
// in the request context. Requests without a tenant are rejected up front.
func WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			UserID:   strings.TrimSpace(r.Header.Get("X-User-ID")),
			TenantID: strings.TrimSpace(r.Header.Get("X-Tenant-ID")),
		}
		for _, role := range strings.Split(r.Header.Get("X-Roles"), ",") {
			switch strings.TrimSpace(role) {
			case "super_admin":
				id.SuperAdmin = true
			case "read_only":
				id.ReadOnly = true
			}
		}
		if id.TenantID == "" {
			http.Error(w, `{"error":"missing tenant"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
