package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Request headers the gateway owns. Incoming copies are always removed so a
// client cannot impersonate a resolved principal.
const (
	HeaderUserID             = "X-User-Id"
	HeaderUserEmail          = "X-User-Email"
	HeaderTenantID           = "X-Tenant-Id"
	HeaderTenantName         = "X-Tenant-Name"
	HeaderUserRole           = "X-User-Role"
	HeaderClientIP           = "X-Client-Ip"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderClientKeyID        = "X-Client-Key-Id"
)

var contextHeaders = [...]string{
	HeaderUserID,
	HeaderUserEmail,
	HeaderTenantID,
	HeaderTenantName,
	HeaderUserRole,
	HeaderClientIP,
	HeaderRateLimitRemaining,
	HeaderClientKeyID,
}

func stripContextHeaders(h http.Header) {
	for _, name := range contextHeaders {
		h.Del(name)
	}
}

func setSecurityHeaders(h http.Header) {
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")
	h.Set("X-XSS-Protection", "1; mode=block")
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			first, _, _ := strings.Cut(xf, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

type errorPayload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorPayload{Error: code, ErrorDescription: desc})
}

func setRetryAfter(h http.Header, seconds int) {
	h.Set("Retry-After", strconv.Itoa(seconds))
	h.Set(HeaderRateLimitRemaining, "0")
}

// redirectTarget builds target?redirect=<original request URI>&k=v.
func redirectTarget(target string, r *http.Request, extra ...string) string {
	q := url.Values{}
	q.Set("redirect", r.URL.RequestURI())
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return target + "?" + q.Encode()
}
