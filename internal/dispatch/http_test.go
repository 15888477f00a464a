package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemcp-dev/codemcp/internal/creds"
	"github.com/codemcp-dev/codemcp/internal/manifest"
)

func TestDoAppliesBearerAuth(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := New()
	_, err := d.Do(context.Background(), Request{
		Operation: "get_pet",
		Method:    "GET",
		URL:       server.URL,
		Auth:      manifest.AuthScheme{Kind: "bearer"},
		Cred:      creds.Credential{Kind: "bearer", Token: "tok"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestDoAppliesAPIKeyInQuery(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("api_key")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := New()
	_, err := d.Do(context.Background(), Request{
		Operation: "list_pets",
		Method:    "GET",
		URL:       server.URL,
		Auth:      manifest.AuthScheme{Kind: "api_key", KeyName: "api_key", KeyIn: "query"},
		Cred:      creds.Credential{Kind: "api_key", Token: "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, "secret", gotQuery)
}

func TestDoAppliesAPIKeyInHeader(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := New()
	_, err := d.Do(context.Background(), Request{
		Operation: "list_pets",
		Method:    "GET",
		URL:       server.URL,
		Auth:      manifest.AuthScheme{Kind: "api_key", KeyName: "X-Api-Key", KeyIn: "header"},
		Cred:      creds.Credential{Kind: "api_key", Token: "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, "secret", gotHeader)
}

func TestDoAppliesBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	var ok bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, ok = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := New()
	_, err := d.Do(context.Background(), Request{
		Operation: "list_pets",
		Method:    "GET",
		URL:       server.URL,
		Auth:      manifest.AuthScheme{Kind: "basic"},
		Cred:      creds.Credential{Kind: "basic", User: "alice", Pass: "hunter2"},
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "hunter2", gotPass)
}

func TestDoDecodesJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 1, "name": "fido"}`))
	}))
	defer server.Close()

	d := New()
	resp, err := d.Do(context.Background(), Request{Operation: "get_pet", Method: "GET", URL: server.URL})
	require.NoError(t, err)
	assert.True(t, resp.IsJSON)
	m, ok := resp.JSON.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "fido", m["name"])
}

func TestDoNonJSONBodyIsBodyText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain text"))
	}))
	defer server.Close()

	d := New()
	resp, err := d.Do(context.Background(), Request{Operation: "get_pet", Method: "GET", URL: server.URL})
	require.NoError(t, err)
	assert.False(t, resp.IsJSON)
	assert.Equal(t, "plain text", resp.BodyText)
}

func TestDoPropagatesStatusOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	d := New()
	resp, err := d.Do(context.Background(), Request{Operation: "get_pet", Method: "GET", URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.Status)
}

func TestDoRespectsRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := New()
	_, err := d.Do(context.Background(), Request{
		Operation: "get_pet",
		Method:    "GET",
		URL:       server.URL,
		Timeout:   10 * time.Millisecond,
	})
	require.Error(t, err)
}

func TestDoSendsBodyWithContentType(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	d := New()
	_, err := d.Do(context.Background(), Request{
		Operation: "create_pet",
		Method:    "POST",
		URL:       server.URL,
		Body:      []byte(`{"name":"fido"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, `{"name":"fido"}`, string(gotBody))
}
