// Package manifest defines the normalized, language-neutral IR described in
// spec.md §3: Api, Operation, Parameter, Schema, Field, plus the immutable
// Manifest that owns them all.
//
// A Manifest is built once per server lifetime and handed out as a
// read-only shared reference (§5): nothing in this package mutates a
// Manifest after New returns it.
package manifest

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FieldType enumerates the field type kinds a Schema field or Parameter can
// carry (§3).
type FieldType struct {
	Kind   string // "string" | "integer" | "number" | "boolean" | "array" | "object" | "map"
	Elem   *FieldType // set when Kind == "array" or "map" (value type)
	Schema string     // set when Kind == "object": name of the referenced Schema
}

// Field describes one property of a Schema (§3).
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Nullable    bool
	Format      string
	EnumValues  []string
	Description string
}

// Schema is a named record type referenced by operations and other schemas
// (§3). Fields keep the order they were inserted in via an ordered map
// (alphabetical by property name for schemas built from a loaded document),
// so annotation rendering and JSON-Schema emission are deterministic (§8
// idempotence).
type Schema struct {
	Name        string
	Description string
	Fields      *orderedmap.OrderedMap[string, *Field]
}

// FieldOrder returns the schema's fields in stored (insertion) order.
func (s *Schema) FieldOrder() []*Field {
	out := make([]*Field, 0, s.Fields.Len())
	for pair := s.Fields.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// ParamLocation enumerates where a Parameter is carried on the wire (§3).
type ParamLocation string

const (
	ParamPath   ParamLocation = "path"
	ParamQuery  ParamLocation = "query"
	ParamHeader ParamLocation = "header"
)

// Parameter describes one operation parameter (§3). A frozen parameter
// (FrozenValue != nil) is never rendered in the agent-facing signature
// (§4.2, §4.3) but is still injected at dispatch time (§4.6 step 2).
type Parameter struct {
	Name        string
	In          ParamLocation
	Type        FieldType
	Required    bool
	Default     *string
	Enum        []string
	FrozenValue *string
	Description string
}

// Frozen reports whether this parameter's value is fixed at configuration
// time and hidden from the agent.
func (p *Parameter) Frozen() bool { return p.FrozenValue != nil }

// Operation describes one callable bound to one HTTP method+path of one API
// (§3).
type Operation struct {
	ID          string // snake_case slug, unique within the manifest
	APISlug     string
	Method      string
	PathTemplate string
	Tag         string
	Summary     string
	Description string
	Parameters  *orderedmap.OrderedMap[string, *Parameter] // ordered, keyed by name
	HasBody     bool
	BodySchema  string // schema name, empty if no body or body is untyped
	// ResponseSchema is the schema name of the first 2xx (or default)
	// application/json response, or "" if none (§4.2 response selection).
	ResponseSchema string
}

// ParamOrder returns the operation's parameters in declaration order.
func (o *Operation) ParamOrder() []*Parameter {
	out := make([]*Parameter, 0, o.Parameters.Len())
	for pair := o.Parameters.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// VisibleParams returns the operation's non-frozen parameters in
// declaration order — the shape the agent actually sees (§4.2, §4.3).
func (o *Operation) VisibleParams() []*Parameter {
	all := o.ParamOrder()
	out := make([]*Parameter, 0, len(all))
	for _, p := range all {
		if !p.Frozen() {
			out = append(out, p)
		}
	}
	return out
}

// AuthScheme describes how an API's credentials are applied to outbound
// requests (§4.7, §4.8).
type AuthScheme struct {
	Kind       string // "bearer" | "api_key" | "basic" | "none"
	KeyName    string // header or query parameter name, for api_key
	KeyIn      string // "header" | "query", for api_key
}

// Api describes one OpenAPI document's callable surface (§3).
type Api struct {
	Slug        string
	Title       string
	BaseURL     string
	Description string
	Auth        AuthScheme
	Operations  []*Operation // declaration order
}

// Manifest is the full, immutable IR produced from one or more OpenAPI
// documents (§3). It is safe for concurrent read-only use across every
// execution in the server's lifetime.
type Manifest struct {
	Apis       []*Api
	Schemas    map[string]*Schema
	operations map[string]*Operation // by Operation.ID, across all APIs
}

// New assembles a Manifest from already-built Apis and Schemas, indexing
// operations by ID for O(1) lookup.
func New(apis []*Api, schemas map[string]*Schema) *Manifest {
	m := &Manifest{
		Apis:       apis,
		Schemas:    schemas,
		operations: make(map[string]*Operation),
	}
	for _, api := range apis {
		for _, op := range api.Operations {
			m.operations[op.ID] = op
		}
	}
	return m
}

// Operation looks up an operation by its manifest-wide unique ID.
func (m *Manifest) Operation(id string) (*Operation, bool) {
	op, ok := m.operations[id]
	return op, ok
}

// AllOperations returns every operation across every API, grouped by API in
// declaration order.
func (m *Manifest) AllOperations() []*Operation {
	out := make([]*Operation, 0, len(m.operations))
	for _, api := range m.Apis {
		out = append(out, api.Operations...)
	}
	return out
}

// FindAPI looks up an API by slug.
func (m *Manifest) FindAPI(slug string) (*Api, bool) {
	for _, api := range m.Apis {
		if api.Slug == slug {
			return api, true
		}
	}
	return nil, false
}
