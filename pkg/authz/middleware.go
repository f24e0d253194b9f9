package authz

import (
	"net/http"
)

// UserIDFromRequest extracts the authenticated user from a request.
// The platform gateway terminates authentication and forwards the
// identity in a header; services embedding the resolver can override
// this to read their own auth context.
type UserIDFromRequest func(r *http.Request) string

// HeaderIdentity reads the user from the X-User-ID header.
func HeaderIdentity(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// Middleware guards HTTP handlers with path-scoped capability checks.
type Middleware struct {
	resolver *Resolver
	identity UserIDFromRequest
}

// NewMiddleware creates a middleware over the resolver. identity nil
// defaults to HeaderIdentity.
func NewMiddleware(resolver *Resolver, identity UserIDFromRequest) *Middleware {
	if identity == nil {
		identity = HeaderIdentity
	}
	return &Middleware{resolver: resolver, identity: identity}
}

// RequireCapability requires the capability on the resource named by
// the request URL path, treated as a path under resourceType. Returns
// 401 without an identity, 403 on deny, 503 when the stores are down.
func (m *Middleware) RequireCapability(resourceType string, action Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := m.identity(r)
			if userID == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			decision, _, err := m.resolver.Authorize(r.Context(), userID, resourceType, r.URL.Path, action)
			if err != nil {
				http.Error(w, "authorization unavailable", http.StatusServiceUnavailable)
				return
			}
			if decision != DecisionAllow {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
