package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/authz"
	"adminkit.org/internal/obs"
	"adminkit.org/internal/store/memory"
)

// ReadyProbe reports whether dependencies (database, cache) are reachable.
type ReadyProbe func(ctx context.Context) error

// Options wires the API to its collaborators.
type Options struct {
	Service *auth.RBACService
	Tokens  *auth.TokenIssuer
	// Revoker backs logout and refresh rotation; defaults to process memory.
	Revoker auth.TokenRevoker
	// Loader resolves principals on each request; defaults to Service.
	Loader auth.UserLoader
	// Policy is used as given; nil selects authz.DefaultPolicy.
	Policy *authz.Policy
	Gate   authz.Gate
	Ready  ReadyProbe

	Version        string
	MaxBodyBytes   int64
	RateBurst      int
	RatePerSecond  float64
	AllowedOrigins []string
	// TrustedProxies lists peers (CIDR or address) whose X-Forwarded-For is
	// believed. Empty means the header is ignored.
	TrustedProxies []string
}

// API is the HTTP layer of the admin console.
type API struct {
	router   chi.Router
	svc      *auth.RBACService
	sessions *auth.Sessions
	loader   auth.UserLoader
	policy   authz.Policy
	gate     authz.Gate
	ready    ReadyProbe
	validate *validator.Validate

	version    string
	maxBody    int64
	rateBurst  int
	ratePerSec float64
	origins    []string
	proxies    []netip.Prefix
}

func New(opts Options) (*API, error) {
	if opts.Service == nil {
		return nil, errors.New("httpapi: rbac service is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("httpapi: token issuer is required")
	}
	a := &API{
		svc:        opts.Service,
		loader:     opts.Loader,
		policy:     authz.DefaultPolicy(),
		gate:       opts.Gate,
		ready:      opts.Ready,
		validate:   validator.New(),
		version:    opts.Version,
		maxBody:    opts.MaxBodyBytes,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSecond,
		origins:    opts.AllowedOrigins,
	}
	if a.loader == nil {
		a.loader = opts.Service
	}
	revoker := opts.Revoker
	if revoker == nil {
		revoker = memory.NewRevoker()
	}
	sessions, err := auth.NewSessions(opts.Tokens, revoker)
	if err != nil {
		return nil, err
	}
	a.sessions = sessions
	if a.proxies, err = ParseTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	if opts.Policy != nil {
		a.policy = *opts.Policy
	}
	if len(a.gate.Sections) == 0 {
		a.gate = authz.NewGate()
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 20
	}
	a.router = a.routes()
	return a, nil
}

func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(ClientIP(a.proxies))
	r.Use(LoggingJSON)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(CORS(a.origins))
	r.Use(obs.Instrument)
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) })
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.maxBody) })

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/refresh", a.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)

			r.Get("/auth/me", a.handleMe)
			r.Post("/auth/logout", a.handleLogout)
			r.Get("/navigation", a.handleNavigation)
			r.With(a.requirePermission(auth.PermRolesView)).Get("/permissions", a.listPermissions)
			r.With(a.requirePermission(auth.PermRolesView)).Get("/audit", a.listAudit)

			r.Route("/users", func(r chi.Router) {
				r.Put("/me/password", a.changeOwnPassword)
				r.With(a.requirePermission(auth.PermUsersView)).Get("/", a.listUsers)
				r.With(a.requirePermission(auth.PermUsersCreate)).Post("/", a.createUser)
				r.With(a.requirePermission(auth.PermUsersView)).Get("/{id}", a.getUser)
				r.With(a.requirePermission(auth.PermUsersEdit)).Put("/{id}", a.updateUser)
				r.With(a.requirePermission(auth.PermUsersDelete)).Delete("/{id}", a.deleteUser)
				r.With(a.requirePermission(auth.PermUsersEdit)).Post("/{id}/roles", a.assignRole)
				r.With(a.requirePermission(auth.PermUsersEdit)).Delete("/{id}/roles/{roleID}", a.removeRole)
			})

			r.Route("/roles", func(r chi.Router) {
				r.With(a.requirePermission(auth.PermRolesView)).Get("/", a.listRoles)
				r.With(a.requirePermission(auth.PermRolesCreate)).Post("/", a.createRole)
				r.With(a.requirePermission(auth.PermRolesView)).Get("/{id}", a.getRole)
				r.With(a.requirePermission(auth.PermRolesEdit)).Put("/{id}", a.updateRole)
				r.With(a.requirePermission(auth.PermRolesEdit)).Put("/{id}/permissions", a.setRolePermissions)
				r.With(a.requirePermission(auth.PermRolesDelete)).Delete("/{id}", a.deleteRole)
			})
		})
	})
	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "adminkit-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
