package main

import (
	"fmt"
	"net/http"
	"os"

	server "github.com/mark3labs/mcp-go/server"

	"github.com/codemcp-dev/codemcp/internal/config"
	"github.com/codemcp-dev/codemcp/internal/logging"
	"github.com/codemcp-dev/codemcp/internal/manifest"
	"github.com/codemcp-dev/codemcp/internal/mcpserver"
)

// runServer starts the MCP server over cfg's configured transport, blocking
// until the server exits. Grounded on bobmcallan-vire-portal/cmd/vire-mcp/main.go's
// stdio-vs-HTTP branch, replacing the teacher's ad hoc *Handler wiring with
// this system's mcpserver.Server (tool registration) composed with
// mcpserver.TransportAuth and mcpserver.WellKnownHandler for the HTTP case.
func runServer(cfg *config.Config, m *manifest.Manifest, logger *logging.Logger) error {
	srv := mcpserver.New(cfg, m, logger)
	built := srv.Build()

	switch cfg.Server.Transport {
	case "stdio":
		return server.ServeStdio(built)
	case "sse":
		return runHTTP(cfg, built, logger)
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Server.Transport)
	}
}

func runHTTP(cfg *config.Config, built *server.MCPServer, logger *logging.Logger) error {
	mux := buildHTTPMux(cfg, built, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info().Int("port", cfg.Server.Port).Bool("auth_enabled", cfg.Auth.Enabled()).Msg("starting HTTP transport")
	fmt.Fprintf(os.Stderr, "listening on %s\n", addr)

	return http.ListenAndServe(addr, mux)
}

// buildHTTPMux assembles the well-known-document handler and the
// TransportAuth-wrapped streamable MCP endpoint on a plain mux, split out
// of runHTTP so a test can drive the real chain behind an httptest.Server
// instead of a bound port.
func buildHTTPMux(cfg *config.Config, built *server.MCPServer, logger *logging.Logger) *http.ServeMux {
	streamable := server.NewStreamableHTTPServer(built, server.WithStateLess(true))

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-protected-resource", mcpserver.WellKnownHandler(cfg.Auth))
	mux.Handle("/mcp", mcpserver.TransportAuth(cfg.Auth, logger, streamable))
	return mux
}
