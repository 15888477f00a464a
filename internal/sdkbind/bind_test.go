package sdkbind

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemcp-dev/codemcp/internal/config"
	"github.com/codemcp-dev/codemcp/internal/creds"
	"github.com/codemcp-dev/codemcp/internal/dispatch"
	"github.com/codemcp-dev/codemcp/internal/manifest"
	"github.com/codemcp-dev/codemcp/internal/openapi"
	"github.com/codemcp-dev/codemcp/internal/sandbox"
)

// buildTestManifest runs the real load/normalize/build pipeline over the
// petstore fixture, rewriting its base URL to point at an httptest server.
func buildTestManifest(t *testing.T, serverURL string) *manifest.Manifest {
	t.Helper()

	docs, err := openapi.Load([]string{"../../testdata/petstore.yaml"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	normalized, err := openapi.Normalize(docs[0])
	require.NoError(t, err)
	normalized.BaseURL = serverURL

	m, err := manifest.Build([]*openapi.NormalizedDocument{normalized}, config.FrozenConfig{})
	require.NoError(t, err)
	return m
}

// newRuntimeAndSDK builds a Runtime (Execution unset) and its bound sdk
// functions, then wires a fresh sandbox.Execution carrying those functions
// back onto the Runtime. Callers may override sandbox.Config via cfg.
func newRuntimeAndSDK(t *testing.T, m *manifest.Manifest, credMap creds.Map, cfg sandbox.Config) *sandbox.Execution {
	t.Helper()
	rt := &Runtime{
		Manifest:   m,
		Dispatcher: dispatch.New(),
		Creds:      credMap,
	}
	sdk := BindAll(rt)
	exec := sandbox.New(cfg, sdk)
	t.Cleanup(exec.Close)
	rt.Execution = exec
	return exec
}

func TestListPetsReturnsSeededData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pets", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{"id": 1, "name": "fido", "status": "active"},
				{"id": 2, "name": "rex", "status": "pending"},
			},
			"total": 2,
		})
	}))
	defer server.Close()

	m := buildTestManifest(t, server.URL)
	exec := newRuntimeAndSDK(t, m, creds.Map{}, sandbox.Config{Timeout: 5 * time.Second, MaxAPICalls: 20})

	out, err := exec.Run(`
		local result = sdk.list_pets()
		return result.total
	`)
	require.NoError(t, err)
	assert.Equal(t, float64(2), out)
}

func TestGetPetSubstitutesPathParam(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pets/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 42, "name": "fido", "status": "active"})
	}))
	defer server.Close()

	m := buildTestManifest(t, server.URL)
	exec := newRuntimeAndSDK(t, m, creds.Map{}, sandbox.Config{Timeout: 5 * time.Second, MaxAPICalls: 20})

	out, err := exec.Run(`
		local pet = sdk.get_pet({ pet_id = 42 })
		return pet.name
	`)
	require.NoError(t, err)
	assert.Equal(t, "fido", out)
}

func TestCreatePetSendsBodyAndBearerToken(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 7, "name": gotBody["name"], "status": gotBody["status"]})
	}))
	defer server.Close()

	m := buildTestManifest(t, server.URL)
	credMap := creds.Map{"test_api": creds.Credential{Kind: "bearer", Token: "secret-token"}}
	exec := newRuntimeAndSDK(t, m, credMap, sandbox.Config{Timeout: 5 * time.Second, MaxAPICalls: 20})

	out, err := exec.Run(`
		local pet = sdk.create_pet({ name = "fido", status = "active" })
		return pet.id
	`)
	require.NoError(t, err)
	assert.Equal(t, float64(7), out)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "fido", gotBody["name"])
}

func TestMissingCredentialProduces401AsCatchableError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "name": "fido", "status": "active"})
	}))
	defer server.Close()

	m := buildTestManifest(t, server.URL)
	exec := newRuntimeAndSDK(t, m, creds.Map{}, sandbox.Config{Timeout: 5 * time.Second, MaxAPICalls: 20})

	out, err := exec.Run(`
		local ok, err = pcall(function() return sdk.get_pet({ pet_id = 1 }) end)
		if ok then
			return "unexpected success"
		end
		return err.status
	`)
	require.NoError(t, err)
	assert.Equal(t, float64(401), out)
}

func TestMissingRequiredParamIsCatchable(t *testing.T) {
	m := buildTestManifest(t, "https://petstore.example.com/v1")
	exec := newRuntimeAndSDK(t, m, creds.Map{}, sandbox.Config{Timeout: 5 * time.Second, MaxAPICalls: 20})

	out, err := exec.Run(`
		local ok, err = pcall(function() return sdk.get_pet({}) end)
		return ok
	`)
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestAPICallCapStopsExecutionAtExactCount(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}, "total": 0})
	}))
	defer server.Close()

	m := buildTestManifest(t, server.URL)
	exec := newRuntimeAndSDK(t, m, creds.Map{}, sandbox.Config{Timeout: 5 * time.Second, MaxAPICalls: 3})

	_, err := exec.Run(`
		for i = 1, 10 do
			sdk.list_pets()
		end
		return "unreachable"
	`)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 4, exec.APICalls())
}

func TestEnumViolationIsCatchable(t *testing.T) {
	m := buildTestManifest(t, "https://petstore.example.com/v1")
	exec := newRuntimeAndSDK(t, m, creds.Map{}, sandbox.Config{Timeout: 5 * time.Second, MaxAPICalls: 20})

	out, err := exec.Run(`
		local ok, err = pcall(function() return sdk.list_pets({ status = "not-a-status" }) end)
		return ok
	`)
	require.NoError(t, err)
	assert.Equal(t, false, out)
}
