package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/session"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, desc string) {
	writeJSON(w, status, apiError{Error: code, ErrorDescription: desc})
}

// readJSON decodes a bounded JSON body, rejecting unknown fields.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := strings.ToLower(r.Header.Get("Content-Type")); !strings.Contains(ct, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "invalid_request", "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return false
	}
	return true
}

// writeEngineError maps the engine error taxonomy to a response.
func (a *API) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := string(goGuard.AuditCode(err))
	switch {
	case errors.Is(err, goGuard.ErrInvalidVerificationToken):
		writeError(w, http.StatusUnauthorized, code, "verification code is not valid")
	case errors.Is(err, goGuard.ErrInvalidEncoding):
		writeError(w, http.StatusBadRequest, code, "secret is not valid base32")
	case errors.Is(err, goGuard.ErrWeakSecret):
		writeError(w, http.StatusBadRequest, code, "secret is too short")
	case errors.Is(err, goGuard.ErrMFAAttemptsExceeded):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, code, "too many failed attempts")
	case errors.Is(err, goGuard.ErrMFAAlreadyEnabled), errors.Is(err, goGuard.ErrMFANotEnabled):
		writeError(w, http.StatusConflict, code, err.Error())
	case errors.Is(err, goGuard.ErrInvalidKeyOptions),
		errors.Is(err, goGuard.ErrUserRequired),
		errors.Is(err, goGuard.ErrTenantRequired):
		writeError(w, http.StatusBadRequest, code, err.Error())
	case errors.Is(err, goGuard.ErrStoreUnavailable), errors.Is(err, goGuard.ErrEngineNotReady):
		a.logger.Warn("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, string(goGuard.AuditErrUnavailable), "try again later")
	default:
		a.logger.Error("unexpected error", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, string(goGuard.AuditErrInternal), "internal error")
	}
}

// principal returns the gateway session or writes 401.
func principal(w http.ResponseWriter, r *http.Request) (*session.Descriptor, bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, string(goGuard.AuditErrSessionAbsent), "sign in required")
		return nil, false
	}
	return sess, true
}
