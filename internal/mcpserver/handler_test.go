package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemcp-dev/codemcp/internal/config"
	"github.com/codemcp-dev/codemcp/internal/logging"
	"github.com/codemcp-dev/codemcp/internal/manifest"
	"github.com/codemcp-dev/codemcp/internal/openapi"
)

func buildTestServer(t *testing.T, upstreamURL string) *Server {
	t.Helper()
	docs, err := openapi.Load([]string{"../../testdata/petstore.yaml"})
	require.NoError(t, err)
	nd, err := openapi.Normalize(docs[0])
	require.NoError(t, err)
	if upstreamURL != "" {
		nd.BaseURL = upstreamURL
	}
	m, err := manifest.Build([]*openapi.NormalizedDocument{nd}, config.FrozenConfig{})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Limits.TimeoutSeconds = 2
	cfg.Limits.MaxAPICalls = 10
	return New(cfg, m, logging.NewSilent())
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandleListApisReturnsSeededAPI(t *testing.T) {
	s := buildTestServer(t, "")
	request := mcp.CallToolRequest{}

	result, err := s.handleListApis(context.Background(), request)
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := textContent(t, result)
	assert.Contains(t, text, "test_api")
}

func TestHandleListFunctionsFiltersByTag(t *testing.T) {
	s := buildTestServer(t, "")
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{"tag": "pets"}

	result, err := s.handleListFunctions(context.Background(), request)
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := textContent(t, result)
	assert.Contains(t, text, "list_pets")
	assert.Contains(t, text, "get_pet")
	assert.Contains(t, text, "create_pet")
}

func TestHandleGetFunctionDocsUnknownNameIsError(t *testing.T) {
	s := buildTestServer(t, "")
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{"name": "does_not_exist"}

	result, err := s.handleGetFunctionDocs(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGetFunctionDocsKnownNameReturnsSignature(t *testing.T) {
	s := buildTestServer(t, "")
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{"name": "get_pet"}

	result, err := s.handleGetFunctionDocs(context.Background(), request)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, textContent(t, result), "sdk.get_pet(")
}

func TestHandleSearchDocsReturnsHits(t *testing.T) {
	s := buildTestServer(t, "")
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{"query": "pet"}

	result, err := s.handleSearchDocs(context.Background(), request)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, textContent(t, result), "\"kind\"")
}

func TestHandleGetSchemaUnknownNameIsError(t *testing.T) {
	s := buildTestServer(t, "")
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{"name": "NoSuchSchema"}

	result, err := s.handleGetSchema(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGetSchemaKnownNameIncludesAnnotationAndJSONSchema(t *testing.T) {
	s := buildTestServer(t, "")
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{"name": "Pet"}

	result, err := s.handleGetSchema(context.Background(), request)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var body struct {
		Annotation string `json:"annotation"`
		JSONSchema struct {
			Type string `json:"type"`
		} `json:"json_schema"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &body))
	assert.Contains(t, body.Annotation, "type Pet = {")
	assert.Equal(t, "object", body.JSONSchema.Type)
}

func TestHandleExecuteScriptMissingScriptIsError(t *testing.T) {
	s := buildTestServer(t, "")
	request := mcp.CallToolRequest{}

	result, err := s.handleExecuteScript(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleExecuteScriptRunsAgainstUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": 1, "name": "fido", "status": "active",
		})
	}))
	defer upstream.Close()

	s := buildTestServer(t, upstream.URL)
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{
		"script": `return sdk.get_pet({ pet_id = 1 })`,
	}

	result, err := s.handleExecuteScript(context.Background(), request)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var body struct {
		Result map[string]interface{} `json:"result"`
		Stats  struct {
			APICalls int `json:"api_calls"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &body))
	assert.Equal(t, "fido", body.Result["name"])
	assert.Equal(t, 1, body.Stats.APICalls)
}

func TestHandleExecuteScriptTimeoutOverride(t *testing.T) {
	s := buildTestServer(t, "")
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{
		"script":     `while true do end`,
		"timeout_ms": float64(50),
	}

	result, err := s.handleExecuteScript(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "timed out")
}

func TestHandleExecuteScriptAppliesAuthOverride(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]interface{}{})
	}))
	defer upstream.Close()

	s := buildTestServer(t, upstream.URL)
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{
		"script": `return sdk.list_pets({})`,
	}
	request.Params.Meta = &mcp.Meta{
		AdditionalFields: map[string]interface{}{
			"auth": map[string]interface{}{
				"test_api": map[string]interface{}{
					"type":  "bearer",
					"token": "override-token",
				},
			},
		},
	}

	result, err := s.handleExecuteScript(context.Background(), request)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "Bearer override-token", gotAuth)
}

func TestHandleExecuteScriptIgnoresAuthOnRegularArguments(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]interface{}{})
	}))
	defer upstream.Close()

	s := buildTestServer(t, upstream.URL)
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{
		"script": `return sdk.list_pets({})`,
		"auth": map[string]interface{}{
			"test_api": map[string]interface{}{
				"type":  "bearer",
				"token": "should-not-be-used",
			},
		},
	}

	result, err := s.handleExecuteScript(context.Background(), request)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Empty(t, gotAuth)
}
