package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/permission"
)

// RateRule limits requests under Prefix per client IP.
type RateRule struct {
	Prefix string        `yaml:"prefix"`
	Class  string        `yaml:"class"`
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// RoleRule requires MinRole or higher under Prefix.
type RoleRule struct {
	Prefix  string          `yaml:"prefix"`
	MinRole permission.Role `yaml:"min_role"`
}

// GatewayConfig is the route table and response policy of a [Gateway].
//
// Every prefix list is matched per path segment: "/dashboard" matches
// "/dashboard" and "/dashboard/x" but not "/dashboards". When several rules
// of one kind match, the longest prefix wins.
type GatewayConfig struct {
	// ProtectedPrefixes require a resolved session.
	ProtectedPrefixes []string `yaml:"protected_prefixes"`
	// PublicOnlyPrefixes are sign-in style pages; a session with a tenant is
	// sent to LandingPath instead.
	PublicOnlyPrefixes []string `yaml:"public_only_prefixes"`
	// TenantRequiredPrefixes require the session to carry a tenant.
	TenantRequiredPrefixes []string `yaml:"tenant_required_prefixes"`
	// SensitivePrefixes require a session younger than FreshnessWindow.
	SensitivePrefixes []string `yaml:"sensitive_prefixes"`
	// APIPrefixes get JSON errors instead of redirects.
	APIPrefixes []string `yaml:"api_prefixes"`

	RateRules []RateRule `yaml:"rate_rules"`
	RoleRules []RoleRule `yaml:"role_rules"`

	LoginPath        string `yaml:"login_path"`
	OnboardingPath   string `yaml:"onboarding_path"`
	UnauthorizedPath string `yaml:"unauthorized_path"`
	LandingPath      string `yaml:"landing_path"`

	FreshnessWindow time.Duration `yaml:"freshness_window"`
	ResolveTimeout  time.Duration `yaml:"resolve_timeout"`
	LimiterTimeout  time.Duration `yaml:"limiter_timeout"`

	// TrustForwardedFor takes the client IP from the first X-Forwarded-For
	// entry. Enable only behind a proxy that overwrites the header.
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

// DefaultGatewayConfig returns a dashboard-style route table.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		ProtectedPrefixes:      []string{"/dashboard", "/settings", "/admin", "/api/v1"},
		PublicOnlyPrefixes:     []string{"/login", "/register"},
		TenantRequiredPrefixes: []string{"/dashboard", "/settings", "/api/v1/keys"},
		SensitivePrefixes: []string{
			"/settings/security",
			"/settings/billing",
			"/admin",
			"/api/v1/mfa/disable",
			"/api/v1/mfa/backup-codes",
		},
		APIPrefixes: []string{"/api"},
		RateRules: []RateRule{
			{Prefix: "/login", Class: "auth", Limit: 10, Window: time.Minute},
			{Prefix: "/register", Class: "auth", Limit: 5, Window: time.Minute},
			{Prefix: "/api", Class: "api", Limit: 120, Window: time.Minute},
		},
		RoleRules: []RoleRule{
			{Prefix: "/settings/billing", MinRole: permission.RoleOwner},
			{Prefix: "/admin", MinRole: permission.RoleAdmin},
			{Prefix: "/api/v1/keys", MinRole: permission.RoleManager},
		},
		LoginPath:        "/login",
		OnboardingPath:   "/onboarding",
		UnauthorizedPath: "/unauthorized",
		LandingPath:      "/dashboard",
		FreshnessWindow:  30 * time.Minute,
		ResolveTimeout:   2 * time.Second,
		LimiterTimeout:   500 * time.Millisecond,
	}
}

// Validate checks the route table once at startup.
func (c GatewayConfig) Validate() error {
	var errs []error

	lists := []struct {
		name     string
		prefixes []string
	}{
		{"protected_prefixes", c.ProtectedPrefixes},
		{"public_only_prefixes", c.PublicOnlyPrefixes},
		{"tenant_required_prefixes", c.TenantRequiredPrefixes},
		{"sensitive_prefixes", c.SensitivePrefixes},
		{"api_prefixes", c.APIPrefixes},
	}
	for _, l := range lists {
		for _, p := range l.prefixes {
			if err := validPrefix(p); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
			}
		}
	}

	for i, r := range c.RateRules {
		if err := validPrefix(r.Prefix); err != nil {
			errs = append(errs, fmt.Errorf("rate_rules[%d]: %w", i, err))
		}
		if r.Class == "" {
			errs = append(errs, fmt.Errorf("rate_rules[%d]: class is required", i))
		}
		if strings.Contains(r.Class, ":") {
			errs = append(errs, fmt.Errorf("rate_rules[%d]: class %q must not contain ':'", i, r.Class))
		}
		if r.Limit <= 0 || r.Window <= 0 {
			errs = append(errs, fmt.Errorf("rate_rules[%d]: limit and window must be positive", i))
		}
	}
	for i, r := range c.RoleRules {
		if err := validPrefix(r.Prefix); err != nil {
			errs = append(errs, fmt.Errorf("role_rules[%d]: %w", i, err))
		}
		if !r.MinRole.Valid() || r.MinRole == permission.RoleNone {
			errs = append(errs, fmt.Errorf("role_rules[%d]: min_role must be a named role", i))
		}
	}

	for name, p := range map[string]string{
		"login_path":        c.LoginPath,
		"onboarding_path":   c.OnboardingPath,
		"unauthorized_path": c.UnauthorizedPath,
		"landing_path":      c.LandingPath,
	} {
		if err := validPrefix(p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if c.FreshnessWindow <= 0 {
		errs = append(errs, errors.New("freshness_window must be positive"))
	}
	if c.ResolveTimeout <= 0 {
		errs = append(errs, errors.New("resolve_timeout must be positive"))
	}
	if c.LimiterTimeout <= 0 {
		errs = append(errs, errors.New("limiter_timeout must be positive"))
	}

	// A public-only landing page would bounce signed-in users forever.
	if c.LandingPath != "" && matchAny(c.PublicOnlyPrefixes, c.LandingPath) {
		errs = append(errs, errors.New("landing_path must not be public-only"))
	}
	if c.LoginPath != "" && matchAny(c.ProtectedPrefixes, c.LoginPath) {
		errs = append(errs, errors.New("login_path must not be protected"))
	}

	return errors.Join(errs...)
}

func validPrefix(p string) error {
	switch {
	case p == "":
		return errors.New("empty path")
	case !strings.HasPrefix(p, "/"):
		return fmt.Errorf("%q must start with /", p)
	case strings.ContainsAny(p, "?#"):
		return fmt.Errorf("%q must not contain a query or fragment", p)
	}
	return nil
}

func cloneGatewayConfig(c GatewayConfig) GatewayConfig {
	out := c
	out.ProtectedPrefixes = append([]string(nil), c.ProtectedPrefixes...)
	out.PublicOnlyPrefixes = append([]string(nil), c.PublicOnlyPrefixes...)
	out.TenantRequiredPrefixes = append([]string(nil), c.TenantRequiredPrefixes...)
	out.SensitivePrefixes = append([]string(nil), c.SensitivePrefixes...)
	out.APIPrefixes = append([]string(nil), c.APIPrefixes...)
	out.RateRules = append([]RateRule(nil), c.RateRules...)
	out.RoleRules = append([]RoleRule(nil), c.RoleRules...)
	return out
}
