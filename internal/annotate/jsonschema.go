package annotate

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/invopop/jsonschema"

	"github.com/codemcp-dev/codemcp/internal/manifest"
)

// SchemaJSON renders a manifest Schema as a JSON Schema document, for the
// get_schema tool's machine-readable variant (§4.4, SPEC_FULL domain stack).
// Object-typed fields reference their target schema by name rather than
// inlining a full $defs section — a script author already has get_schema to
// pull that document up separately.
func SchemaJSON(s *manifest.Schema) *jsonschema.Schema {
	root := &jsonschema.Schema{
		Type:        "object",
		Title:       s.Name,
		Description: s.Description,
		Properties:  orderedmap.New[string, *jsonschema.Schema](),
	}

	var required []string
	for _, f := range s.FieldOrder() {
		root.Properties.Set(f.Name, fieldSchema(f))
		if f.Required {
			required = append(required, f.Name)
		}
	}
	root.Required = required
	return root
}

func fieldSchema(f *manifest.Field) *jsonschema.Schema {
	sch := typeSchema(f.Type)
	sch.Description = f.Description
	sch.Format = f.Format
	for _, v := range f.EnumValues {
		sch.Enum = append(sch.Enum, v)
	}
	return sch
}

func typeSchema(t manifest.FieldType) *jsonschema.Schema {
	switch t.Kind {
	case "array":
		return &jsonschema.Schema{Type: "array", Items: typeSchema(*t.Elem)}
	case "map":
		return &jsonschema.Schema{
			Type:                 "object",
			AdditionalProperties: typeSchema(*t.Elem),
		}
	case "object":
		if t.Schema == "" || t.Schema == "unknown" {
			return &jsonschema.Schema{}
		}
		return &jsonschema.Schema{Ref: "sdk://schema/" + t.Schema}
	case "integer":
		return &jsonschema.Schema{Type: "integer"}
	case "number":
		return &jsonschema.Schema{Type: "number"}
	case "boolean":
		return &jsonschema.Schema{Type: "boolean"}
	default:
		return &jsonschema.Schema{Type: "string"}
	}
}
