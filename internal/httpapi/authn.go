package httpapi

import (
	"net/http"

	"utilitygrid.org/internal/audit"
	"utilitygrid.org/internal/authz"
)

const authHeader = "Authorization"

// publicPaths are reachable without a bearer token. Logout is public because
// it is an idempotent no-op for unknown tokens and must not demand a valid
// access token to give one up.
var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/v1/auth/guest",
	"/v1/auth/refresh",
	"/v1/auth/logout",
	"/v1/auth/email-check",
	"/v1/auth/forgot-password",
	"/v1/auth/verify-otp",
	"/v1/auth/reset-password",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.engine == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := a.engine.Authenticate(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx := authz.ContextWithPrincipal(r.Context(), principal)
		ctx = audit.WithActor(ctx, principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principal returns the authenticated principal or fails the request 401.
func (a *API) principal(w http.ResponseWriter, r *http.Request) (authz.Principal, bool) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return authz.Principal{}, false
	}
	return p, true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
