// Package security decides which browser origins may talk to the server.
package security

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker validates WebSocket and CORS origins.
type OriginChecker struct {
	allowedOrigins []string
	loopbackOnly   bool
}

// NewOriginChecker creates a new origin checker. With no allowed origins a
// loopback-only checker accepts loopback origins and any other checker
// accepts everything.
func NewOriginChecker(allowedOrigins []string, loopbackOnly bool) *OriginChecker {
	return &OriginChecker{
		allowedOrigins: allowedOrigins,
		loopbackOnly:   loopbackOnly,
	}
}

// ForBindAddress creates a checker for a server bound to host.
func ForBindAddress(host string, allowedOrigins []string) *OriginChecker {
	return NewOriginChecker(allowedOrigins, IsLoopback(host))
}

// Allow reports whether origin may connect. An empty origin is a
// same-origin or non-browser request.
func (oc *OriginChecker) Allow(origin string) bool {
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	if oc.loopbackOnly && IsLoopback(parsed.Hostname()) {
		return true
	}

	for _, allowed := range oc.allowedOrigins {
		if matchOrigin(parsed, origin, allowed) {
			return true
		}
	}

	return len(oc.allowedOrigins) == 0 && !oc.loopbackOnly
}

// CheckOrigin validates the Origin header of r. It has the signature of
// websocket.Upgrader.CheckOrigin.
func (oc *OriginChecker) CheckOrigin(r *http.Request) bool {
	return oc.Allow(r.Header.Get("Origin"))
}

// IsLoopback reports whether host names the local machine.
func IsLoopback(host string) bool {
	host = strings.Trim(host, "[]")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// matchOrigin supports exact matches and wildcard subdomains (*.example.com).
func matchOrigin(parsed *url.URL, origin, allowed string) bool {
	if strings.EqualFold(strings.TrimRight(origin, "/"), strings.TrimRight(allowed, "/")) {
		return true
	}

	if domain, ok := strings.CutPrefix(allowed, "*."); ok {
		host := strings.ToLower(parsed.Hostname())
		domain = strings.ToLower(domain)
		return strings.HasSuffix(host, "."+domain)
	}
	return false
}
