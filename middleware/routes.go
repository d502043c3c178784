package middleware

import "strings"

// routeClass is everything the gateway needs to know about one path.
type routeClass struct {
	protected      bool
	publicOnly     bool
	tenantRequired bool
	sensitive      bool
	api            bool
	rate           *RateRule
	role           *RoleRule
}

// hasPrefix reports whether path is prefix or lies below it.
func hasPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

func matchAny(prefixes []string, path string) bool {
	for _, p := range prefixes {
		if hasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (c *GatewayConfig) classify(path string) routeClass {
	rc := routeClass{
		protected:      matchAny(c.ProtectedPrefixes, path),
		publicOnly:     matchAny(c.PublicOnlyPrefixes, path),
		tenantRequired: matchAny(c.TenantRequiredPrefixes, path),
		sensitive:      matchAny(c.SensitivePrefixes, path),
		api:            matchAny(c.APIPrefixes, path),
	}

	best := -1
	for i := range c.RateRules {
		r := &c.RateRules[i]
		if hasPrefix(path, r.Prefix) && len(r.Prefix) > best {
			rc.rate, best = r, len(r.Prefix)
		}
	}
	best = -1
	for i := range c.RoleRules {
		r := &c.RoleRules[i]
		if hasPrefix(path, r.Prefix) && len(r.Prefix) > best {
			rc.role, best = r, len(r.Prefix)
		}
	}

	// Tenant, freshness and role gates all need a session to evaluate.
	if rc.tenantRequired || rc.sensitive || rc.role != nil {
		rc.protected = true
	}
	return rc
}
