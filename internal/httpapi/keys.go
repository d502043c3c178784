package httpapi

import (
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/go-chi/chi/v5"
)

type createKeyRequest struct {
	Name               string    `json:"name"`
	Environment        string    `json:"environment"`
	Domains            []string  `json:"domains"`
	AllowedRoutes      []string  `json:"allowed_routes"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	ExpiresAt          time.Time `json:"expires_at"`
}

type createKeyResponse struct {
	Key    string            `json:"key"`
	Record goGuard.KeyRecord `json:"record"`
}

// GET /api/v1/keys
func (a *API) listKeys(w http.ResponseWriter, r *http.Request) {
	sess, ok := principal(w, r)
	if !ok {
		return
	}
	keys, err := a.engine.ListKeys(r.Context(), sess.TenantID)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// POST /api/v1/keys
func (a *API) createKey(w http.ResponseWriter, r *http.Request) {
	sess, ok := principal(w, r)
	if !ok {
		return
	}
	var req createKeyRequest
	if !readJSON(w, r, &req) {
		return
	}
	created, err := a.engine.CreateKey(r.Context(), sess.TenantID, req.Name, goGuard.KeyOptions{
		Environment:        goGuard.KeyEnvironment(req.Environment),
		Domains:            req.Domains,
		AllowedRoutes:      req.AllowedRoutes,
		RateLimitPerMinute: req.RateLimitPerMinute,
		ExpiresAt:          req.ExpiresAt,
	})
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createKeyResponse{Key: created.PlaintextKey, Record: created.Record})
}

// DELETE /api/v1/keys/{keyID}
func (a *API) revokeKey(w http.ResponseWriter, r *http.Request) {
	sess, ok := principal(w, r)
	if !ok {
		return
	}
	revoked, err := a.engine.RevokeKey(r.Context(), chi.URLParam(r, "keyID"), sess.TenantID)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	if !revoked {
		writeError(w, http.StatusNotFound, string(goGuard.AuditErrKeyNotFound), "no active key with that id")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/client/v1/whoami
func (a *API) whoami(w http.ResponseWriter, r *http.Request) {
	rec, ok := middleware.ClientKeyFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "client_key_required", "a client key is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key_id":      rec.ID,
		"tenant_id":   rec.TenantID,
		"name":        rec.Name,
		"usage_count": rec.UsageCount,
	})
}
