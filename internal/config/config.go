// Package config defines the server's typed configuration: inputs, frozen
// parameters, resource limits, and transport auth settings (§6, §4.2).
//
// Layering follows the teacher's pattern: defaults -> TOML file -> env ->
// CLI flags, each layer overriding the last.
package config

import (
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Limits  LimitsConfig  `toml:"limits"`
	Auth    AuthConfig    `toml:"auth"`
	Frozen  FrozenConfig  `toml:"frozen_params"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig controls transport selection and HTTP bind address.
type ServerConfig struct {
	Transport string `toml:"transport"` // "stdio" | "sse"
	Port      int    `toml:"port"`
}

// LimitsConfig controls per-execution resource bounds (§4.5, §5).
type LimitsConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	MemoryLimitMB  int `toml:"memory_limit_mb"`
	MaxAPICalls    int `toml:"max_api_calls"`
}

// AuthConfig controls transport-level JWT validation (§4.10). Authority
// empty means transport auth is disabled (stdio always trusts its peer
// regardless of this setting).
type AuthConfig struct {
	Authority string `toml:"authority"`
	Audience  string `toml:"audience"`
	JWKSURI   string `toml:"jwks_uri"`
}

// Enabled reports whether transport auth is configured.
func (a AuthConfig) Enabled() bool { return a.Authority != "" }

// FrozenConfig is the two-level frozen-parameter merge input (§4.2, §9):
// global values apply to every API; per-API values win on conflict.
type FrozenConfig struct {
	Global map[string]string            `toml:"global"`
	PerAPI map[string]map[string]string `toml:"per_api"`
}

// Merged returns the effective frozen-value map for one API slug, applying
// global values first and letting per-API values override them.
func (f FrozenConfig) Merged(apiSlug string) map[string]string {
	out := make(map[string]string, len(f.Global))
	for k, v := range f.Global {
		out[k] = v
	}
	for k, v := range f.PerAPI[apiSlug] {
		out[k] = v
	}
	return out
}

// LoggingConfig controls the server's own operational log, not the
// per-script log buffer captured in ExecutionResult.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// Default returns a Config populated with the §6 flag defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: "stdio",
			Port:      8080,
		},
		Limits: LimitsConfig{
			TimeoutSeconds: 30,
			MemoryLimitMB:  64,
			MaxAPICalls:    100,
		},
		Frozen: FrozenConfig{
			Global: map[string]string{},
			PerAPI: map[string]map[string]string{},
		},
		Logging: LoggingConfig{
			Level:   "info",
			Outputs: []string{"console"},
		},
	}
}

// LoadFromFile loads configuration starting from defaults, applying a TOML
// file (if path is non-empty and exists) and then environment overrides.
// CLI flags are applied afterward by the caller via the Apply* setters.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies MCP_AUTH_* environment overrides (§6). Upstream
// credential env vars (<API>_BEARER_TOKEN etc.) are read directly by the
// credential resolver, not through this struct.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MCP_AUTH_AUTHORITY"); v != "" {
		cfg.Auth.Authority = v
	}
	if v := os.Getenv("MCP_AUTH_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("MCP_AUTH_JWKS_URI"); v != "" {
		cfg.Auth.JWKSURI = v
	}
}

// ApplyTimeoutFlag overrides the timeout if the flag was explicitly set
// (seconds > 0).
func ApplyTimeoutFlag(cfg *Config, seconds int) {
	if seconds > 0 {
		cfg.Limits.TimeoutSeconds = seconds
	}
}

// ApplyMemoryLimitFlag overrides the memory limit if the flag was explicitly
// set (mb > 0).
func ApplyMemoryLimitFlag(cfg *Config, mb int) {
	if mb > 0 {
		cfg.Limits.MemoryLimitMB = mb
	}
}

// ApplyMaxAPICallsFlag overrides the API call cap if the flag was explicitly
// set (n > 0).
func ApplyMaxAPICallsFlag(cfg *Config, n int) {
	if n > 0 {
		cfg.Limits.MaxAPICalls = n
	}
}

// ApplyPortFlag overrides the bind port if the flag was explicitly set
// (port > 0).
func ApplyPortFlag(cfg *Config, port int) {
	if port > 0 {
		cfg.Server.Port = port
	}
}

// ApplyTransportFlag overrides the transport if the flag was explicitly set
// (non-empty).
func ApplyTransportFlag(cfg *Config, transport string) {
	if transport != "" {
		cfg.Server.Transport = transport
	}
}

// ParseIntEnv is a small helper used by callers that read numeric env
// overrides not covered by applyEnvOverrides (e.g. test harnesses).
func ParseIntEnv(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
