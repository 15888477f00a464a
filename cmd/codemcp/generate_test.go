package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemcp-dev/codemcp/internal/config"
)

func TestBuildManifestFromFixture(t *testing.T) {
	m, err := buildManifest([]string{"../../testdata/petstore.yaml"}, config.FrozenConfig{})
	require.NoError(t, err)
	require.Len(t, m.Apis, 1)
	assert.Equal(t, "test_api", m.Apis[0].Slug)
	assert.Len(t, m.Apis[0].Operations, 3)
}

func TestBuildManifestMissingFileIsError(t *testing.T) {
	_, err := buildManifest([]string{filepath.Join(t.TempDir(), "missing.yaml")}, config.FrozenConfig{})
	assert.Error(t, err)
}

func TestWriteManifestDirEmitsManifestAndAnnotations(t *testing.T) {
	m, err := buildManifest([]string{"../../testdata/petstore.yaml"}, config.FrozenConfig{})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, writeManifestDir(dir, m))

	manifestPath := filepath.Join(dir, "manifest.json")
	require.FileExists(t, manifestPath)
	annotationsPath := filepath.Join(dir, "test_api.annotations.txt")
	require.FileExists(t, annotationsPath)

	annotations, err := os.ReadFile(annotationsPath)
	require.NoError(t, err)
	assert.Contains(t, string(annotations), "sdk.list_pets(")
	assert.Contains(t, string(annotations), "sdk.get_pet(")
	assert.Contains(t, string(annotations), "sdk.create_pet(")
}

func TestWriteManifestDirIsIdempotent(t *testing.T) {
	m, err := buildManifest([]string{"../../testdata/petstore.yaml"}, config.FrozenConfig{})
	require.NoError(t, err)

	dirA := t.TempDir()
	dirB := t.TempDir()
	require.NoError(t, writeManifestDir(dirA, m))
	require.NoError(t, writeManifestDir(dirB, m))

	a, err := os.ReadFile(filepath.Join(dirA, "manifest.json"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dirB, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
