// Package httpapi is the HTTP surface: routing, middleware, the auth
// resolver, and the handlers for login, token grants and punches.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pontual.org/internal/audit"
	"pontual.org/internal/directory"
	"pontual.org/internal/oauth"
	"pontual.org/internal/obs"
	"pontual.org/internal/punch"
	"pontual.org/internal/token"
)

// ReadyProbe checks service readiness (database ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries the collaborators the API layer wires together.
type Deps struct {
	Directory directory.Store
	Codec     *token.Codec
	Tokens    *oauth.Service
	Gate      *punch.Gate
	Engine    *punch.Engine
	Punches   punch.Store
	Zones     punch.ZoneStore
	Audit     *audit.Recorder

	ReadyProbe ReadyProbe
	Version    string

	// LoginTokenTTL is the lifetime of stateless tokens minted by
	// /api/auth/login.
	LoginTokenTTL time.Duration

	RateLimitPerSecond int
	RateLimitBurst     int
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	deps Deps
}

func New(deps Deps) *API {
	if deps.LoginTokenTTL <= 0 {
		deps.LoginTokenTTL = time.Hour
	}
	a := &API{
		mux:  http.NewServeMux(),
		deps: deps,
	}

	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.HandleFunc("GET /readyz", a.readyz)
	a.mux.HandleFunc("GET /v1/info", a.info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.Handle("POST /api/auth/login", a.rateLimited(http.HandlerFunc(a.login)))
	a.mux.HandleFunc("POST /api/auth/change-password", a.changePassword)

	a.mux.Handle("POST /oauth/token", a.rateLimited(http.HandlerFunc(a.oauthToken)))
	a.mux.HandleFunc("POST /oauth/revoke", a.oauthRevoke)
	a.mux.HandleFunc("POST /oauth/revoke-all", a.oauthRevokeAll)
	a.mux.HandleFunc("GET /oauth/tokens", a.oauthTokens)

	a.mux.HandleFunc("POST /punch", a.punchGeneric)
	a.mux.HandleFunc("POST /punch/code", a.punchWith(punch.MethodCode))
	a.mux.HandleFunc("POST /punch/qrcode", a.punchWith(punch.MethodQR))
	a.mux.Handle("POST /punch/face", a.rateLimited(a.punchWith(punch.MethodFacial)))
	a.mux.HandleFunc("POST /punch/fingerprint", a.punchWith(punch.MethodFingerprint))
	a.mux.HandleFunc("GET /punch/today", a.punchToday)
	a.mux.HandleFunc("GET /punch/geofences", a.punchGeofences)
	a.mux.HandleFunc("GET /punch/{id}/verify", a.punchVerify)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware-wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return h
}

func (a *API) rateLimited(next http.Handler) http.Handler {
	if a.deps.RateLimitPerSecond <= 0 {
		return next
	}
	return RateLimit(next, a.deps.RateLimitBurst, a.deps.RateLimitPerSecond)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "pontual-api",
		"version": a.deps.Version,
	})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.ReadyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "pontual-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.deps.Version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
