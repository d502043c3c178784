// Package httpapi exposes the engine's MFA and client-key operations over
// HTTP for the goguard server. Identity comes from the gateway: handlers
// read the resolved session from the request context and never trust
// caller-supplied user or tenant ids.
package httpapi

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// API holds the handlers.
type API struct {
	engine *goGuard.Engine
	logger *zap.Logger
}

// New creates the handler set.
func New(engine *goGuard.Engine, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{engine: engine, logger: logger.Named("httpapi")}
}

// Register mounts the session routes under /api/v1 and the client-key
// routes under /api/client/v1.
func (a *API) Register(r chi.Router, clientKeys middleware.ClientKeyOptions) {
	r.Route("/api/v1/mfa", func(r chi.Router) {
		r.Get("/status", a.mfaStatus)
		r.Post("/enroll", a.mfaEnroll)
		r.Post("/confirm", a.mfaConfirm)
		r.Post("/verify", a.mfaVerify)
		r.Post("/disable", a.mfaDisable)
		r.Post("/backup-codes", a.mfaRegenerate)
	})
	r.Route("/api/v1/keys", func(r chi.Router) {
		r.Get("/", a.listKeys)
		r.Post("/", a.createKey)
		r.Delete("/{keyID}", a.revokeKey)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireClientKey(a.engine, clientKeys))
		r.Get("/api/client/v1/whoami", a.whoami)
	})
}

// NewRouter assembles the full server handler: request ids, panic
// recovery, the gateway, health probes and the API.
func NewRouter(api *API, gateway *middleware.Gateway, clientKeys middleware.ClientKeyOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(gateway.Middleware)
		api.Register(r, clientKeys)
	})
	return r
}
