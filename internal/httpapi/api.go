// Package httpapi is the HTTP surface over the access-control core. Routing
// is a plain ServeMux with path-splitting handlers; every request passes the
// middleware chain (request id, logging, security headers, CORS, rate limit,
// body cap, bearer authentication, metrics).
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"utilitygrid.org/internal/authz"
	"utilitygrid.org/internal/identity"
	"utilitygrid.org/internal/membership"
	"utilitygrid.org/internal/obs"
	"utilitygrid.org/internal/quote"
	"utilitygrid.org/internal/token"
	"utilitygrid.org/internal/utility"
)

// ReadyProbe checks downstream readiness (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Probe   ReadyProbe
	Version string

	Engine      *authz.Engine
	Identities  *identity.Service
	Tokens      *token.Service
	Memberships *membership.Service
	Utilities   *utility.Service
	Quotes      *quote.Service

	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	probe   ReadyProbe
	version string

	engine      *authz.Engine
	identities  *identity.Service
	tokens      *token.Service
	memberships *membership.Service
	utilities   *utility.Service
	quotes      *quote.Service

	rateBurst     int
	ratePerSecond int
}

func New(d Deps) *API {
	a := &API{
		mux:           http.NewServeMux(),
		probe:         d.Probe,
		version:       d.Version,
		engine:        d.Engine,
		identities:    d.Identities,
		tokens:        d.Tokens,
		memberships:   d.Memberships,
		utilities:     d.Utilities,
		quotes:        d.Quotes,
		rateBurst:     d.RateBurst,
		ratePerSecond: d.RatePerSecond,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSecond <= 0 {
		a.ratePerSecond = 10
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// identity + tokens
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/guest", a.handleGuestLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/validate", a.handleValidate)
	a.mux.HandleFunc("/v1/auth/email-check", a.handleEmailCheck)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/verify-otp", a.handleVerifyOTP)
	a.mux.HandleFunc("/v1/auth/reset-password", a.handleResetPassword)

	// users
	a.mux.HandleFunc("/v1/users/", a.handleUserScoped)

	// membership graph
	a.mux.HandleFunc("/v1/businesses", a.handleBusinesses)
	a.mux.HandleFunc("/v1/businesses/", a.handleBusinessScoped)
	a.mux.HandleFunc("/v1/invites/", a.handleInviteScoped)
	a.mux.HandleFunc("/v1/sites", a.handleSites)
	a.mux.HandleFunc("/v1/sites/", a.handleSiteScoped)
	a.mux.HandleFunc("/v1/site-invites/accept", a.handleAcceptSiteInvite)

	// resources
	a.mux.HandleFunc("/v1/utilities", a.handleUtilities)
	a.mux.HandleFunc("/v1/utilities/", a.handleUtilityScoped)
	a.mux.HandleFunc("/v1/quotes", a.handleQuotes)
	a.mux.HandleFunc("/v1/quotes/", a.handleQuoteScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- probes ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "utilitygrid-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "utilitygrid-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
