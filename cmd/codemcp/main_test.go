package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommonFlagsResolveDefaultsWhenUnset(t *testing.T) {
	f := &commonFlags{transport: "stdio", port: 8080}
	cfg, err := f.resolve()
	require.NoError(t, err)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Limits.TimeoutSeconds)
	assert.False(t, cfg.Auth.Enabled())
}

func TestCommonFlagsResolveOverridesLayerOnTop(t *testing.T) {
	f := &commonFlags{
		transport:     "sse",
		port:          9999,
		timeout:       45,
		memoryLimit:   256,
		maxAPICalls:   20,
		authAuthority: "https://auth.example.com/",
		authAudience:  "codemcp",
		authJWKSURI:   "https://auth.example.com/jwks.json",
	}
	cfg, err := f.resolve()
	require.NoError(t, err)
	assert.Equal(t, "sse", cfg.Server.Transport)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 45, cfg.Limits.TimeoutSeconds)
	assert.Equal(t, 256, cfg.Limits.MemoryLimitMB)
	assert.Equal(t, 20, cfg.Limits.MaxAPICalls)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, "https://auth.example.com/", cfg.Auth.Authority)
	assert.Equal(t, "codemcp", cfg.Auth.Audience)
	assert.Equal(t, "https://auth.example.com/jwks.json", cfg.Auth.JWKSURI)
}

func TestCommonFlagsResolveUnsetFlagsLeaveBuiltinDefault(t *testing.T) {
	f := &commonFlags{}
	cfg, err := f.resolve()
	require.NoError(t, err)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 8080, cfg.Server.Port)
}

// TestCommonFlagsResolveConfigFileSurvivesUnsetFlags guards against
// cobra's own non-zero defaults (which register() never uses for
// transport/port precisely so this can hold) silently overriding a
// config file's [server] section when the user never passed
// --transport/--port on the command line.
func TestCommonFlagsResolveConfigFileSurvivesUnsetFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
transport = "sse"
port = 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	f := &commonFlags{configFile: path}
	cfg, err := f.resolve()
	require.NoError(t, err)
	assert.Equal(t, "sse", cfg.Server.Transport)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestCommonFlagsResolveExplicitFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
transport = "sse"
port = 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	f := &commonFlags{configFile: path, transport: "stdio", port: 7000}
	cfg, err := f.resolve()
	require.NoError(t, err)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 7000, cfg.Server.Port)
}
