// Package httpapi exposes the identity and access services over HTTP.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"fincore.org/internal/access"
	"fincore.org/internal/identity"
	"fincore.org/internal/obs"
)

// ReadyProbe checks backing dependencies for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API wires the HTTP surface.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	identity *identity.Service
	resolver *identity.ContextResolver
	admin    *identity.AdminService
	policies *access.Service
	engine   *access.Engine
}

// New builds the API and registers all routes.
func New(rp ReadyProbe, version string, svc *identity.Service, resolver *identity.ContextResolver,
	admin *identity.AdminService, policies *access.Service, engine *access.Engine) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		identity:   svc,
		resolver:   resolver,
		admin:      admin,
		policies:   policies,
		engine:     engine,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/profile", a.handleProfile)

	// organization context
	a.mux.HandleFunc("/v1/context", a.handleOrgContext)

	// tenancy admin surface
	a.mux.HandleFunc("/v1/customer", a.handleCustomer)
	a.mux.HandleFunc("/v1/organizations", a.handleOrganizations)
	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizationByID)
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleByID)
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserByID)

	// cross-org access policies
	a.mux.HandleFunc("/v1/access/policies", a.handlePolicies)
	a.mux.HandleFunc("/v1/access/policies/", a.handlePolicyByID)
	a.mux.HandleFunc("/v1/access/check", a.handleAccessCheck)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 50, 25)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "fincore-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "fincore-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
