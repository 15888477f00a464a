// Package openapi loads and normalizes OpenAPI 3.x documents into a form the
// manifest builder can consume without further indirection (§4.1).
package openapi

// Document is a minimally-typed parse of one OpenAPI 3.x document. Fields
// are kept as generic maps/slices rather than a full OpenAPI object model:
// the normalizer only needs $ref resolution, allOf/oneOf/anyOf handling,
// and the handful of keywords named in §4.1.
type Document struct {
	Source     string
	OpenAPI    string
	Info       Info
	Servers    []Server
	Paths      map[string]map[string]RawOperation // path -> method (lowercase) -> op
	Components Components
	Security   []SecurityRequirement // top-level security requirement (§4.1 auth scheme resolution)
}

// SecurityRequirement mirrors one entry of OpenAPI's security array: the set
// of scheme names ANDed together to satisfy that entry. Scopes are dropped
// since nothing downstream needs them; names are sorted at decode time
// because decoding a requirement object into a generic map loses whatever
// order it had on the wire (same tradeoff as RawSchema.PropertyOrder).
type SecurityRequirement []string

// Info mirrors OpenAPI's info object.
type Info struct {
	Title       string
	Description string
}

// Server mirrors one entry of OpenAPI's servers array.
type Server struct {
	URL string
}

// Components mirrors the subset of OpenAPI's components object this system
// resolves refs against.
type Components struct {
	Schemas         map[string]*RawSchema
	SecuritySchemes map[string]*RawSecurityScheme
}

// RawSecurityScheme mirrors OpenAPI's securityScheme object.
type RawSecurityScheme struct {
	Type   string // "http" | "apiKey"
	Scheme string // "bearer" | "basic", for type=http
	In     string // "header" | "query", for type=apiKey
	Name   string // header/query parameter name, for type=apiKey
}

// RawOperation mirrors one OpenAPI operation object.
type RawOperation struct {
	OperationID string
	Tags        []string
	Summary     string
	Description string
	Parameters  []*RawParameter
	RequestBody *RawRequestBody
	Responses   map[string]*RawResponse // status code string, or "default"

	// Security is the operation's own requirement as written (§4.1 auth
	// scheme resolution). Nil means the key is absent; a non-nil empty slice
	// is OpenAPI's `security: []`. Normalize reads it only when the document
	// has no top-level requirement, taking the first non-nil one in path and
	// method order for the whole API; it does not override the document-level
	// requirement for an individual operation.
	Security []SecurityRequirement
}

// RawParameter mirrors OpenAPI's parameter object.
type RawParameter struct {
	Name        string
	In          string // "path" | "query" | "header"
	Required    bool
	Description string
	Schema      *RawSchema
}

// RawRequestBody mirrors OpenAPI's requestBody object, narrowed to the
// application/json content entry.
type RawRequestBody struct {
	Required bool
	Schema   *RawSchema // content["application/json"].schema
}

// RawResponse mirrors OpenAPI's response object, narrowed to the
// application/json content entry.
type RawResponse struct {
	Description string
	Schema      *RawSchema // content["application/json"].schema, may be nil
}

// RawSchema mirrors OpenAPI's schema object, inline or referenced.
type RawSchema struct {
	Ref                  string
	Type                 string // "string" | "integer" | "number" | "boolean" | "array" | "object" | ""
	Format               string
	Description          string
	Nullable             bool
	Enum                 []string
	Items                *RawSchema
	Properties           map[string]*RawSchema
	PropertyOrder        []string // property names in alphabetical order; decoding into a generic map does not keep declaration order
	Required             []string
	AdditionalProperties *RawAdditionalProperties
	AllOf                []*RawSchema
	OneOf                []*RawSchema
	AnyOf                []*RawSchema
}

// RawAdditionalProperties models OpenAPI's additionalProperties, which is
// either a boolean or a schema.
type RawAdditionalProperties struct {
	Bool   *bool
	Schema *RawSchema
}
