package docs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemcp-dev/codemcp/internal/config"
	"github.com/codemcp-dev/codemcp/internal/manifest"
	"github.com/codemcp-dev/codemcp/internal/openapi"
)

func buildPetstoreService(t *testing.T) *Service {
	t.Helper()
	docs, err := openapi.Load([]string{"../../testdata/petstore.yaml"})
	require.NoError(t, err)
	nd, err := openapi.Normalize(docs[0])
	require.NoError(t, err)
	m, err := manifest.Build([]*openapi.NormalizedDocument{nd}, config.FrozenConfig{})
	require.NoError(t, err)
	return New(m)
}

func TestListApisReturnsOneEntryPerAPI(t *testing.T) {
	s := buildPetstoreService(t)
	apis := s.ListApis()
	require.Len(t, apis, 1)
	assert.Equal(t, "test_api", apis[0].Name)
	assert.Equal(t, 3, apis[0].OperationCount)
}

func TestListFunctionsFiltersByAPIAndTag(t *testing.T) {
	s := buildPetstoreService(t)

	all := s.ListFunctions("", "")
	assert.Len(t, all, 3)

	byAPI := s.ListFunctions("test_api", "")
	assert.Len(t, byAPI, 3)

	byTag := s.ListFunctions("", "pets")
	assert.Len(t, byTag, 3)

	none := s.ListFunctions("nonexistent", "")
	assert.Empty(t, none)
}

func TestGetFunctionDocsUnknownNameIsMiss(t *testing.T) {
	s := buildPetstoreService(t)
	_, ok := s.GetFunctionDocs("does_not_exist")
	assert.False(t, ok)
}

func TestGetFunctionDocsKnownNameReturnsNonEmpty(t *testing.T) {
	s := buildPetstoreService(t)
	doc, ok := s.GetFunctionDocs("get_pet")
	require.True(t, ok)
	assert.NotEmpty(t, doc)
	assert.Contains(t, doc, "sdk.get_pet(")
}

func TestGetSchemaUnknownNameIsMiss(t *testing.T) {
	s := buildPetstoreService(t)
	_, ok := s.GetSchema("NoSuchSchema")
	assert.False(t, ok)
}

func TestGetSchemaJSONRendersTypedSchema(t *testing.T) {
	s := buildPetstoreService(t)
	schema, ok := s.GetSchemaJSON("Pet")
	require.True(t, ok)
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, "Pet", schema.Title)
	assert.ElementsMatch(t, []string{"id", "name", "status"}, schema.Required)
}

func TestSearchDocsRanksNameHitsAboveDescriptionHits(t *testing.T) {
	s := buildPetstoreService(t)
	hits := s.SearchDocs("pet")
	require.NotEmpty(t, hits)
	assert.Equal(t, "function", hits[0].Kind)
}

func TestSearchDocsFindsSchemaFields(t *testing.T) {
	s := buildPetstoreService(t)
	hits := s.SearchDocs("owner_id")
	found := false
	for _, h := range hits {
		if h.Kind == "field" && h.Name == "Pet.owner_id" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSearchDocsEmptyQueryReturnsNoHits(t *testing.T) {
	s := buildPetstoreService(t)
	assert.Empty(t, s.SearchDocs(""))
}

func TestResourceURIJoinsWithSlashes(t *testing.T) {
	assert.Equal(t, "sdk://test_api/get_pet", ResourceURI("test_api", "get_pet"))
}
