package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/authz"
	"adminkit.org/internal/obs"
)

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenResponse struct {
	auth.TokenPair
	User auth.User `json:"user"`
}

type meResponse struct {
	User        auth.User        `json:"user"`
	Roles       []string         `json:"roles"`
	Permissions []string         `json:"permissions"`
	Root        bool             `json:"root"`
	Navigation  []authz.NavEntry `json:"navigation"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	user, err := a.svc.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		a.audit(r, "auth.login.failed", "user", "", map[string]string{"login": req.Login})
		handleServiceError(w, r, err)
		return
	}
	pair, err := a.sessions.Start(r.Context(), user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	a.audit(r, "auth.login", "user", user.ID, nil)
	writeJSON(w, http.StatusOK, tokenResponse{TokenPair: pair, User: user})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	claims, err := a.sessions.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		obs.Logger().Error("refresh rotation failed", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "token store unavailable")
		return
	}
	user, err := a.svc.GetUser(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		handleServiceError(w, r, err)
		return
	}
	if !user.Active() {
		writeError(w, r, http.StatusUnauthorized, "user disabled")
		return
	}
	pair, err := a.sessions.Start(r.Context(), user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{TokenPair: pair, User: user})
}

// handleLogout ends the caller's session. With ?all=true every session of
// the user is ended.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	all := r.URL.Query().Get("all") == "true"
	var err error
	if all {
		err = a.sessions.EndAll(r.Context(), claims.Subject)
	} else {
		err = a.sessions.End(r.Context(), claims)
	}
	if err != nil {
		obs.Logger().Error("logout failed", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "token store unavailable")
		return
	}
	a.audit(r, "auth.logout", "user", claims.Subject, map[string]string{
		"all_sessions": strconv.FormatBool(all),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User:        *p.User,
		Roles:       p.User.RoleNames(),
		Permissions: p.Permissions(),
		Root:        p.IsRoot(),
		Navigation:  a.gate.Navigation(p.Access),
	})
}

func (a *API) handleNavigation(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sections": a.gate.Navigation(p.Access),
	})
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.svc.Permissions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": perms})
}
