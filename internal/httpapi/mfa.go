package httpapi

import (
	"net/http"
	"time"
)

type codeRequest struct {
	Code string `json:"code"`
}

type confirmRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

type statusResponse struct {
	State                string     `json:"state"`
	EnrolledAt           *time.Time `json:"enrolled_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}

// GET /api/v1/mfa/status
func (a *API) mfaStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := principal(w, r)
	if !ok {
		return
	}
	st, err := a.engine.MFAStatus(r.Context(), sess.UserID)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	resp := statusResponse{State: st.State.String(), BackupCodesRemaining: st.BackupCodesRemaining}
	if !st.EnrolledAt.IsZero() {
		resp.EnrolledAt = &st.EnrolledAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/v1/mfa/enroll
func (a *API) mfaEnroll(w http.ResponseWriter, r *http.Request) {
	sess, ok := principal(w, r)
	if !ok {
		return
	}
	label := sess.Email
	if label == "" {
		label = sess.UserID
	}
	e, err := a.engine.BeginEnrollment(r.Context(), sess.UserID, label)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret":           e.Secret,
		"provisioning_uri": e.ProvisioningURI,
		"state":            e.State.String(),
	})
}

// POST /api/v1/mfa/confirm
func (a *API) mfaConfirm(w http.ResponseWriter, r *http.Request) {
	sess, ok := principal(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := a.engine.ConfirmEnrollment(r.Context(), sess.UserID, sess.TenantID, req.Secret, req.Code)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backup_codes": res.BackupCodes,
		"enabled_at":   res.EnabledAt,
	})
}

// POST /api/v1/mfa/verify
//
// A wrong code is 200 with verified=false; only throttling and outages are
// errors.
func (a *API) mfaVerify(w http.ResponseWriter, r *http.Request) {
	sess, ok := principal(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !readJSON(w, r, &req) {
		return
	}
	verified, err := a.engine.VerifyLogin(r.Context(), sess.UserID, req.Code)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": verified})
}

// POST /api/v1/mfa/disable
func (a *API) mfaDisable(w http.ResponseWriter, r *http.Request) {
	sess, ok := principal(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := a.engine.Disable(r.Context(), sess.UserID, req.Code); err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/mfa/backup-codes
func (a *API) mfaRegenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := principal(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !readJSON(w, r, &req) {
		return
	}
	codes, err := a.engine.RegenerateBackupCodes(r.Context(), sess.UserID, req.Code)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"backup_codes": codes})
}
