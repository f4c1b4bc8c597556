package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/authz"
	"adminkit.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// authenticate resolves the bearer token into a Principal built from the
// user's current snapshot. Requests without one are rejected with 401.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			a.denyRoute(w, r, err.Error())
			return
		}
		claims, err := a.sessions.Verify(r.Context(), token, auth.TokenTypeAccess)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				a.denyRoute(w, r, "invalid token")
				return
			}
			obs.Logger().Error("token verification failed", "error", err)
			writeError(w, r, http.StatusServiceUnavailable, "authentication unavailable")
			return
		}
		user, err := a.loader.LoadUser(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				a.denyRoute(w, r, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if !user.Active() {
			a.denyRoute(w, r, "user disabled")
			return
		}

		principal := auth.NewPrincipal(&user, a.policy)
		if a.gate.Route(principal.Access).Outcome != authz.Proceed {
			a.denyRoute(w, r, "unauthorized")
			return
		}
		obs.RecordDecision("route", true)

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		ctx = auth.ContextWithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) denyRoute(w http.ResponseWriter, r *http.Request, msg string) {
	obs.RecordDecision("route", false)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// requirePermission gates a handler on one action permission. Root users
// pass regardless of their permission set.
func (a *API) requirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			allowed := a.gate.PermissionAllowed(principal.Access, permission)
			obs.RecordDecision("action", allowed)
			if !allowed {
				writeError(w, r, http.StatusForbidden, "missing permission "+permission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
