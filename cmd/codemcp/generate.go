package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codemcp-dev/codemcp/internal/annotate"
	"github.com/codemcp-dev/codemcp/internal/config"
	"github.com/codemcp-dev/codemcp/internal/manifest"
	"github.com/codemcp-dev/codemcp/internal/openapi"
)

func newGenerateCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "generate <specs>...",
		Short: "Emit a manifest and per-API annotations to disk",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildManifest(args, config.Default().Frozen)
			if err != nil {
				return err
			}
			return writeManifestDir(out, m)
		},
	}
	cmd.Flags().StringVar(&out, "out", "manifest_out", "Output directory for manifest.json and annotations")
	return cmd
}

// buildManifest runs the §4.1-§4.2 pipeline: load, normalize, build.
func buildManifest(specs []string, frozen config.FrozenConfig) (*manifest.Manifest, error) {
	docs, err := openapi.Load(specs)
	if err != nil {
		return nil, err
	}

	normalized := make([]*openapi.NormalizedDocument, 0, len(docs))
	for _, doc := range docs {
		n, err := openapi.Normalize(doc)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, n)
	}

	return manifest.Build(normalized, frozen)
}

// writeManifestDir emits manifest.json plus one annotation file per API into
// dir (§6 "Manifest on disk"). Byte-identical across repeated runs on the
// same inputs, per §8's idempotence property: Marshal sorts schemas by name
// and annotation text is built from the manifest's own declaration order,
// so nothing here depends on map iteration order.
func writeManifestDir(dir string, m *manifest.Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := manifest.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		return err
	}

	for _, api := range m.Apis {
		var b strings.Builder
		for _, op := range api.Operations {
			b.WriteString(annotate.FunctionDoc(m, op))
			b.WriteString("\n\n")
		}
		path := filepath.Join(dir, api.Slug+".annotations.txt")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return err
		}
	}

	return nil
}
