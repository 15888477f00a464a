package mcpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/codemcp-dev/codemcp/internal/config"
)

// WellKnownHandler serves the unauthenticated OAuth protected-resource
// discovery document (§4.10 last paragraph). Grounded on
// bobmcallan-vire-portal/internal/auth/discovery.go's handleProtectedResource
// and its baseURLFromRequest helper, trimmed to only the protected-resource
// document: this server is a resource server pointing at an external
// authorization server, not an authorization server itself, so the
// authorization-server metadata endpoint the teacher also serves has no
// equivalent here.
func WellKnownHandler(cfg config.AuthConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		metadata := map[string]interface{}{
			"resource":              baseURLFromRequest(r),
			"authorization_servers": []string{cfg.Authority},
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		json.NewEncoder(w).Encode(metadata)
	}
}

// baseURLFromRequest derives this server's external base URL from the
// incoming request's Host header and scheme.
func baseURLFromRequest(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + sanitizeHost(r.Host)
}
