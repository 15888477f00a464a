// Command codemcp turns one or more OpenAPI documents into a scriptable MCP
// tool surface: generate emits a manifest and annotations to disk, serve
// runs the MCP server from a pre-generated directory, and run does both in
// one step (§6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codemcp-dev/codemcp/internal/config"
)

// POSIX-style exit codes, following bluefunda-abaper's app.go convention.
const (
	exitSuccess = 0
	exitFailure = 1
)

// commonFlags holds the §6 "Common options" flag values shared by serve and
// run.
type commonFlags struct {
	transport     string
	port          int
	timeout       int
	memoryLimit   int
	maxAPICalls   int
	authAuthority string
	authAudience  string
	authJWKSURI   string
	configFile    string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.transport, "transport", "", "Transport framing: stdio | sse (default \"stdio\")")
	cmd.Flags().IntVar(&f.port, "port", 0, "HTTP bind port (default 8080)")
	cmd.Flags().IntVar(&f.timeout, "timeout", 0, "Per-script wall-clock deadline, in seconds (default 30)")
	cmd.Flags().IntVar(&f.memoryLimit, "memory-limit", 0, "VM memory cap, in MB (default 64)")
	cmd.Flags().IntVar(&f.maxAPICalls, "max-api-calls", 0, "Upstream call cap per script (default 100)")
	cmd.Flags().StringVar(&f.authAuthority, "auth-authority", "", "Issuer URL; enables transport auth")
	cmd.Flags().StringVar(&f.authAudience, "auth-audience", "", "Required JWT audience")
	cmd.Flags().StringVar(&f.authJWKSURI, "auth-jwks-uri", "", "Override JWKS endpoint")
	cmd.Flags().StringVar(&f.configFile, "config", "", "Path to a TOML config file")
}

// resolve loads config.Default() layered with the config file, environment,
// and then these flags (flags win last, per config.go's documented layering).
func (f *commonFlags) resolve() (*config.Config, error) {
	cfg, err := config.LoadFromFile(f.configFile)
	if err != nil {
		return nil, err
	}
	config.ApplyTransportFlag(cfg, f.transport)
	config.ApplyPortFlag(cfg, f.port)
	config.ApplyTimeoutFlag(cfg, f.timeout)
	config.ApplyMemoryLimitFlag(cfg, f.memoryLimit)
	config.ApplyMaxAPICallsFlag(cfg, f.maxAPICalls)
	if f.authAuthority != "" {
		cfg.Auth.Authority = f.authAuthority
	}
	if f.authAudience != "" {
		cfg.Auth.Audience = f.authAudience
	}
	if f.authJWKSURI != "" {
		cfg.Auth.JWKSURI = f.authJWKSURI
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "codemcp",
		Short:         "Serve OpenAPI specs as a scriptable MCP tool surface",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
	os.Exit(exitSuccess)
}
