// Package creds resolves per-API upstream credentials from process
// environment and per-request overrides, producing an immutable map
// consulted lazily by the dispatcher (§4.8).
package creds

import (
	"os"
	"strings"
)

// Credential is one API's resolved upstream credential.
type Credential struct {
	Kind  string // "bearer" | "api_key" | "basic" | "none"
	Token string // bearer or api_key value
	User  string // basic auth user
	Pass  string // basic auth pass
}

// Override is the shape of one entry in the tool call's out-of-band `auth`
// metadata map (§4.8, §6): {type, token} or {type, user, pass}.
type Override struct {
	Type  string
	Token string
	User  string
	Pass  string
}

// Map is keyed by API slug; never logged, never exposed to scripts (§3
// CredentialMap).
type Map map[string]Credential

// Resolve builds a CredentialMap for the given API slugs, applying process
// environment first and then per-request overrides (later wins) (§4.8).
func Resolve(apiSlugs []string, overrides map[string]Override) Map {
	out := make(Map, len(apiSlugs))
	for _, slug := range apiSlugs {
		if c, ok := fromEnv(slug); ok {
			out[slug] = c
		}
	}
	for slug, o := range overrides {
		out[slug] = fromOverride(o)
	}
	return out
}

// fromEnv checks <S_UPPER>_BEARER_TOKEN, then <S_UPPER>_API_KEY, then
// <S_UPPER>_BASIC_USER + <S_UPPER>_BASIC_PASS, first match wins (§4.8).
func fromEnv(apiSlug string) (Credential, bool) {
	prefix := strings.ToUpper(apiSlug)

	if v := os.Getenv(prefix + "_BEARER_TOKEN"); v != "" {
		return Credential{Kind: "bearer", Token: v}, true
	}
	if v := os.Getenv(prefix + "_API_KEY"); v != "" {
		return Credential{Kind: "api_key", Token: v}, true
	}
	user := os.Getenv(prefix + "_BASIC_USER")
	pass := os.Getenv(prefix + "_BASIC_PASS")
	if user != "" && pass != "" {
		return Credential{Kind: "basic", User: user, Pass: pass}, true
	}
	return Credential{}, false
}

func fromOverride(o Override) Credential {
	switch o.Type {
	case "bearer":
		return Credential{Kind: "bearer", Token: o.Token}
	case "api_key":
		return Credential{Kind: "api_key", Token: o.Token}
	case "basic":
		return Credential{Kind: "basic", User: o.User, Pass: o.Pass}
	default:
		return Credential{Kind: "none"}
	}
}

// Get returns the credential for an API slug, or a credential of Kind
// "none" if unresolved. Never errors: missing credentials are not
// errors (§7); dispatch may fail 401 downstream.
func (m Map) Get(apiSlug string) Credential {
	if c, ok := m[apiSlug]; ok {
		return c
	}
	return Credential{Kind: "none"}
}
