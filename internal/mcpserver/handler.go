// Package mcpserver binds the manifest and script runtime to the external
// tool-call protocol (§4.9) and, for the HTTP transport, transport-level
// bearer JWT authentication (§4.10).
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/codemcp-dev/codemcp/internal/config"
	"github.com/codemcp-dev/codemcp/internal/creds"
	"github.com/codemcp-dev/codemcp/internal/dispatch"
	"github.com/codemcp-dev/codemcp/internal/docs"
	"github.com/codemcp-dev/codemcp/internal/logging"
	"github.com/codemcp-dev/codemcp/internal/manifest"
	"github.com/codemcp-dev/codemcp/internal/sandbox"
	"github.com/codemcp-dev/codemcp/internal/sdkbind"
)

// Server owns everything shared read-only across every execution in the
// process's lifetime (§5): the manifest, the doc service, the dispatcher,
// and configuration. It never holds per-execution state.
type Server struct {
	cfg        *config.Config
	manifest   *manifest.Manifest
	docs       *docs.Service
	dispatcher *dispatch.Dispatcher
	logger     *logging.Logger
	apiSlugs   []string
}

// New builds a Server over an already-built manifest.
func New(cfg *config.Config, m *manifest.Manifest, logger *logging.Logger) *Server {
	slugs := make([]string, 0, len(m.Apis))
	for _, api := range m.Apis {
		slugs = append(slugs, api.Slug)
	}
	return &Server{
		cfg:        cfg,
		manifest:   m,
		docs:       docs.New(m),
		dispatcher: dispatch.New(),
		logger:     logger,
		apiSlugs:   slugs,
	}
}

// Build assembles the mcp-go server with the six tool-call operations named
// in §4.9: the five pure documentation tools delegate directly to
// internal/docs; execute_script drives a fresh sandbox.Execution per call.
func (s *Server) Build() *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(
		"codemcp",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	srv.AddTool(
		mcp.NewTool("list_apis", mcp.WithDescription("List every API surfaced by this server.")),
		s.handleListApis,
	)
	srv.AddTool(
		mcp.NewTool("list_functions",
			mcp.WithDescription("List callable operations, optionally filtered by API slug and/or tag."),
			mcp.WithString("api", mcp.Description("API slug to filter by.")),
			mcp.WithString("tag", mcp.Description("Operation tag to filter by.")),
		),
		s.handleListFunctions,
	)
	srv.AddTool(
		mcp.NewTool("get_function_docs",
			mcp.WithDescription("Get the full signature and schema documentation for one operation."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Operation id, as returned by list_functions.")),
		),
		s.handleGetFunctionDocs,
	)
	srv.AddTool(
		mcp.NewTool("search_docs",
			mcp.WithDescription("Full-text search across operation and schema documentation."),
			mcp.WithString("query", mcp.Required()),
		),
		s.handleSearchDocs,
	)
	srv.AddTool(
		mcp.NewTool("get_schema",
			mcp.WithDescription("Get one named schema, rendered as annotation text and JSON Schema."),
			mcp.WithString("name", mcp.Required()),
		),
		s.handleGetSchema,
	)
	srv.AddTool(
		mcp.NewTool("execute_script",
			mcp.WithDescription("Run a script against the sdk table and return its result, logs, and stats."),
			mcp.WithString("script", mcp.Required(), mcp.Description("Script source.")),
			mcp.WithNumber("timeout_ms", mcp.Description("Override of the per-script wall-clock deadline, in milliseconds.")),
		),
		s.handleExecuteScript,
	)

	return srv
}

func (s *Server) handleListApis(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.docs.ListApis())
}

func (s *Server) handleListFunctions(_ context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	api := r.GetString("api", "")
	tag := r.GetString("tag", "")
	return jsonResult(s.docs.ListFunctions(api, tag))
}

func (s *Server) handleGetFunctionDocs(_ context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := r.GetString("name", "")
	text, ok := s.docs.GetFunctionDocs(name)
	if !ok {
		return errorResult(fmt.Sprintf("unknown operation %q", name)), nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}, nil
}

func (s *Server) handleSearchDocs(_ context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := r.GetString("query", "")
	return jsonResult(s.docs.SearchDocs(query))
}

func (s *Server) handleGetSchema(_ context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := r.GetString("name", "")
	text, ok := s.docs.GetSchema(name)
	if !ok {
		return errorResult(fmt.Sprintf("unknown schema %q", name)), nil
	}
	jsonSchema, _ := s.docs.GetSchemaJSON(name)
	return jsonResult(struct {
		Annotation string      `json:"annotation"`
		JSONSchema interface{} `json:"json_schema"`
	}{Annotation: text, JSONSchema: jsonSchema})
}

// executeScriptOutput is the §4.9 execute_script result shape:
// {result, logs, stats: {api_calls, duration_ms}}.
type executeScriptOutput struct {
	Result interface{} `json:"result"`
	Logs   []string    `json:"logs"`
	Stats  struct {
		APICalls   int   `json:"api_calls"`
		DurationMS int64 `json:"duration_ms"`
	} `json:"stats"`
}

// authOverride is the shape of one entry of the out-of-band `auth` metadata
// map (§4.8, §6), which maps API slug -> credential override.
type authOverride struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	User  string `json:"user"`
	Pass  string `json:"pass"`
}

func (s *Server) handleExecuteScript(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	script := r.GetString("script", "")
	if script == "" {
		return errorResult("script is required"), nil
	}

	cfg := sandbox.Config{
		Timeout:       time.Duration(s.cfg.Limits.TimeoutSeconds) * time.Second,
		MemoryLimitMB: s.cfg.Limits.MemoryLimitMB,
		MaxAPICalls:   s.cfg.Limits.MaxAPICalls,
	}
	if timeoutMS := requestedTimeoutMS(r); timeoutMS > 0 {
		cfg.Timeout = time.Duration(timeoutMS) * time.Millisecond
	}

	overrides := readAuthOverrides(r)
	credMap := creds.Resolve(s.apiSlugs, overrides)

	execID := uuid.New().String()
	execLogger := s.logger.WithCorrelationId(execID)

	// rt.Execution is set below, before the script runs; the bound sdk
	// closures only dereference it at call time, once Run has started.
	rt := &sdkbind.Runtime{Manifest: s.manifest, Dispatcher: s.dispatcher, Creds: credMap}
	exec := sandbox.New(cfg, sdkbind.BindAll(rt))
	rt.Execution = exec
	defer exec.Close()

	result, runErr := exec.Run(script)

	out := executeScriptOutput{Result: result, Logs: exec.Logs()}
	out.Stats.APICalls = exec.APICalls()
	out.Stats.DurationMS = exec.DurationMS()

	if runErr != nil {
		execLogger.Warn().Str("execution_id", execID).Str("error", runErr.Error()).Msg("script execution failed")
		body, _ := json.Marshal(out)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(runErr.Error()), mcp.NewTextContent(string(body))},
			IsError: true,
		}, nil
	}

	execLogger.Info().Str("execution_id", execID).Int("api_calls", out.Stats.APICalls).Msg("script execution completed")
	return jsonResult(out)
}

// requestedTimeoutMS reads the optional timeout_ms argument. JSON numbers
// arrive as float64 through GetArguments.
func requestedTimeoutMS(r mcp.CallToolRequest) int {
	args := r.GetArguments()
	v, ok := args["timeout_ms"]
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int(f)
}

// readAuthOverrides reads the per-request `auth` credential override off the
// tool call's out-of-band `_meta` object (§4.8, §6), never off the regular,
// agent-visible arguments the script text travels in — keeping the
// credential channel separate from anything the agent authors or reads.
func readAuthOverrides(r mcp.CallToolRequest) map[string]creds.Override {
	if r.Params.Meta == nil {
		return nil
	}
	raw, ok := r.Params.Meta.AdditionalFields["auth"]
	if !ok {
		return nil
	}
	rawMap, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]creds.Override, len(rawMap))
	for slug, v := range rawMap {
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		var o authOverride
		if err := json.Unmarshal(b, &o); err != nil {
			continue
		}
		out[slug] = creds.Override{Type: o.Type, Token: o.Token, User: o.User, Pass: o.Pass}
	}
	return out
}

// errorResult builds an MCP error result carrying a plain-text message.
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(message)},
		IsError: true,
	}
}

// jsonResult marshals v as the tool result's single text content block.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResult("internal error rendering tool result"), nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(body))}}, nil
}
