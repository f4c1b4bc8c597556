package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRoutePatternLabels(t *testing.T) {
	var seen string
	capture := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			seen = routePattern(r)
		})
	}
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	r := chi.NewRouter()
	r.Use(capture)
	r.Get("/metrics", ok)
	r.Route("/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Get("/", ok)
			r.Get("/{id}", ok)
			r.Delete("/{id}/roles/{roleID}", ok)
		})
	})

	cases := map[string]string{
		"/metrics":                 "/metrics",
		"/v1/users":                "/v1/users",
		"/v1/users/abc":            "/v1/users/{id}",
		"/v1/users/def?limit=10":   "/v1/users/{id}",
		"/v1/users/abc/roles/r1":   "/v1/users/{id}/roles/{roleID}",
		"/v1/users/abc/extra/junk": unmatchedRoute,
		"/v1/random":               unmatchedRoute,
		"/nope/at/all":             unmatchedRoute,
	}
	for target, want := range cases {
		method := http.MethodGet
		if want == "/v1/users/{id}/roles/{roleID}" {
			method = http.MethodDelete
		}
		seen = ""
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, target, nil))
		if seen != want {
			t.Fatalf("%s %s labelled %q, want %q", method, target, seen, want)
		}
	}
}

func TestRoutePatternWithoutRouter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/users/abc", nil)
	if got := routePattern(req); got != unmatchedRoute {
		t.Fatalf("expected %q outside a chi router, got %q", unmatchedRoute, got)
	}
}

func TestInstrumentPassesThroughStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/v1/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things/42", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}
