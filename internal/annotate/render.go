// Package annotate renders manifest schemas and operations as typed,
// human- and agent-readable documentation strings (§4.3).
package annotate

import (
	"fmt"
	"strings"

	"github.com/codemcp-dev/codemcp/internal/manifest"
)

// TypeExpr renders a FieldType per §4.3's mapping: primitive ->
// string|number|boolean; array -> {T}; object-ref -> schema name;
// map -> {[string]: T}.
func TypeExpr(t manifest.FieldType) string {
	switch t.Kind {
	case "array":
		if t.Elem == nil {
			return "{unknown}"
		}
		return "{" + TypeExpr(*t.Elem) + "}"
	case "map":
		if t.Elem == nil {
			return "{[string]: unknown}"
		}
		return "{[string]: " + TypeExpr(*t.Elem) + "}"
	case "object":
		if t.Schema == "" {
			return "unknown"
		}
		return t.Schema
	case "integer":
		return "number"
	case "":
		return "unknown"
	default:
		return t.Kind
	}
}

// Schema renders a named record type: one `name: TypeExpr<?>` line per
// field, with a trailing comment carrying description and format hint
// (§4.3).
func Schema(s *manifest.Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "type %s = {\n", s.Name)
	if s.Description != "" {
		fmt.Fprintf(&b, "  -- %s\n", s.Description)
	}
	for _, f := range s.FieldOrder() {
		b.WriteString("  ")
		b.WriteString(fieldLine(f))
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

func fieldLine(f *manifest.Field) string {
	optionalMark := ""
	if !f.Required || f.Nullable {
		optionalMark = "?"
	}
	line := fmt.Sprintf("%s: %s%s", f.Name, TypeExpr(f.Type), optionalMark)

	var comment []string
	if f.Description != "" {
		comment = append(comment, f.Description)
	}
	if f.Format != "" {
		comment = append(comment, "("+f.Format+")")
	}
	if len(f.EnumValues) > 0 {
		comment = append(comment, "one of: "+strings.Join(f.EnumValues, ", "))
	}
	if len(comment) > 0 {
		line += " -- " + strings.Join(comment, " ")
	}
	return line
}

// Signature renders an operation's function signature per §4.3's four-case
// table, keyed on (visible params present, has body).
func Signature(m *manifest.Manifest, op *manifest.Operation) string {
	visible := op.VisibleParams()

	var argParts []string
	if len(visible) > 0 {
		argParts = append(argParts, "params: "+paramsRecord(visible))
	}
	if op.HasBody {
		bodyType := "unknown"
		if op.BodySchema != "" {
			bodyType = op.BodySchema
		}
		argParts = append(argParts, "body: "+bodyType)
	}

	return fmt.Sprintf("sdk.%s(%s)", op.ID, strings.Join(argParts, ", "))
}

func paramsRecord(params []*manifest.Parameter) string {
	var b strings.Builder
	b.WriteString("{ ")
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		optionalMark := ""
		if !p.Required {
			optionalMark = "?"
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(TypeExpr(p.Type))
		b.WriteString(optionalMark)
	}
	b.WriteString(" }")
	return b.String()
}

// FunctionDoc renders the full annotation for an operation: its signature,
// summary/description, and the rendered form of every schema it
// transitively references (§4.4 get_function_docs).
func FunctionDoc(m *manifest.Manifest, op *manifest.Operation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", Signature(m, op))
	if op.Summary != "" {
		fmt.Fprintf(&b, "%s\n", op.Summary)
	}
	if op.Description != "" && op.Description != op.Summary {
		fmt.Fprintf(&b, "%s\n", op.Description)
	}

	seen := map[string]bool{}
	var names []string
	for _, p := range op.VisibleParams() {
		collectSchemaNames(m, p.Type, seen, &names)
	}
	if op.BodySchema != "" {
		collectSchemaNames(m, manifest.FieldType{Kind: "object", Schema: op.BodySchema}, seen, &names)
	}
	if op.ResponseSchema != "" {
		collectSchemaNames(m, manifest.FieldType{Kind: "object", Schema: op.ResponseSchema}, seen, &names)
	}

	for _, name := range names {
		if s, ok := m.Schemas[name]; ok {
			b.WriteString("\n")
			b.WriteString(Schema(s))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// collectSchemaNames walks a FieldType and every schema it transitively
// references, appending each newly-seen schema name to names in discovery
// order.
func collectSchemaNames(m *manifest.Manifest, t manifest.FieldType, seen map[string]bool, names *[]string) {
	switch t.Kind {
	case "array", "map":
		if t.Elem != nil {
			collectSchemaNames(m, *t.Elem, seen, names)
		}
	case "object":
		if t.Schema == "" || seen[t.Schema] {
			return
		}
		seen[t.Schema] = true
		*names = append(*names, t.Schema)
		if s, ok := m.Schemas[t.Schema]; ok {
			for _, f := range s.FieldOrder() {
				collectSchemaNames(m, f.Type, seen, names)
			}
		}
	}
}
