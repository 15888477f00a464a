package openapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLocalFile(t *testing.T) {
	docs, err := Load([]string{"../../testdata/petstore.yaml"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, "Test API", doc.Info.Title)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "https://petstore.example.com/v1", doc.Servers[0].URL)
	assert.Contains(t, doc.Paths, "/pets")
	assert.Contains(t, doc.Paths, "/pets/{pet_id}")
}

func TestLoadOverHTTP(t *testing.T) {
	fixture, err := readFixture(t)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture)
	}))
	defer server.Close()

	docs, err := Load([]string{server.URL})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Test API", docs[0].Info.Title)
}

func TestLoadMissingFileIsBadSpec(t *testing.T) {
	_, err := Load([]string{"../../testdata/does_not_exist.yaml"})
	require.Error(t, err)
}

func TestLoadRejectsUpstream4xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := Load([]string{server.URL})
	require.Error(t, err)
}

func readFixture(t *testing.T) ([]byte, error) {
	t.Helper()
	return os.ReadFile("../../testdata/petstore.yaml")
}

func TestLoadCapturesTopLevelSecurityRequirement(t *testing.T) {
	docs, err := Load([]string{"../../testdata/petstore.yaml"})
	require.NoError(t, err)
	require.Len(t, docs[0].Security, 1)
	assert.Equal(t, SecurityRequirement{"bearerAuth"}, docs[0].Security[0])
}

func TestDecodeSecurityDistinguishesAbsentFromExplicitlyEmpty(t *testing.T) {
	assert.Nil(t, decodeSecurity(nil))

	empty := decodeSecurity([]any{})
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	reqs := decodeSecurity([]any{
		map[string]any{"bearerAuth": []any{}},
	})
	require.Len(t, reqs, 1)
	assert.Equal(t, SecurityRequirement{"bearerAuth"}, reqs[0])
}
