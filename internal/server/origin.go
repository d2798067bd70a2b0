package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/Tyrowin/mentionchat/internal/observability"
)

// wildcardOrigin in AllowedOrigins admits every browser origin.
const wildcardOrigin = "*"

// OriginPolicy decides which browser origins may open the bot WebSocket.
// Origins are compared as lower-cased scheme://host[:port]; requests without
// an Origin header are refused.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// NewOriginPolicy builds a policy from configured origins. Entries that are
// not http(s) URLs with a host are skipped.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, origin := range cleanOrigins(origins) {
		if origin == wildcardOrigin {
			p.allowAll = true
			continue
		}
		p.allowed[origin] = struct{}{}
	}
	return p
}

// Allows reports whether origin may connect.
func (p *OriginPolicy) Allows(origin string) bool {
	key, ok := originKey(origin)
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	_, ok = p.allowed[key]
	return ok
}

// Check is a websocket.Upgrader CheckOrigin func.
func (p *OriginPolicy) Check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if p.Allows(origin) {
		return true
	}
	observability.LoggerFromContext(r.Context()).Warn("blocked websocket connection from disallowed origin",
		"origin", origin)
	return false
}

// cleanOrigins trims and canonicalizes origins in order, keeping the wildcard
// and dropping blanks and invalid entries.
func cleanOrigins(origins []string) []string {
	if len(origins) == 0 {
		return nil
	}

	cleaned := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch trimmed {
		case "":
			continue
		case wildcardOrigin:
			cleaned = append(cleaned, wildcardOrigin)
			continue
		}

		key, ok := originKey(trimmed)
		if !ok {
			observability.Logger().Warn("ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		cleaned = append(cleaned, key)
	}
	return cleaned
}

func originKey(origin string) (string, bool) {
	if origin == "" {
		return "", false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	return scheme + "://" + strings.ToLower(u.Host), true
}
