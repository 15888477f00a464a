package openapi

import (
	"sort"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/codemcp-dev/codemcp/internal/apperrors"
)

// FieldType is this package's own copy of the manifest field-type shape
// (§3): normalization happens before a Manifest exists, so it cannot import
// the manifest package without creating a cycle. internal/manifest converts
// these into its own FieldType when building.
type FieldType struct {
	Kind   string // "string" | "integer" | "number" | "boolean" | "array" | "object" | "map"
	Elem   *FieldType
	Schema string
}

// Field mirrors manifest.Field, pre-conversion.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Nullable    bool
	Format      string
	EnumValues  []string
	Description string
}

// Schema mirrors manifest.Schema, pre-conversion.
type Schema struct {
	Name        string
	Description string
	Fields      *orderedmap.OrderedMap[string, *Field]
}

// NormalizedDocument is a Document with every $ref resolved, allOf flattened,
// and oneOf/anyOf collapsed to the "unknown" schema (§4.1).
type NormalizedDocument struct {
	Source          string
	Title           string
	Description     string
	BaseURL         string
	SecuritySchemes map[string]*RawSecurityScheme
	Security        []SecurityRequirement // resolved auth-scheme lookup order (§4.1)
	Schemas         map[string]*Schema
	Operations      []*NormalizedOperation
}

// NormalizedOperation is one path+method entry with every parameter and body
// schema resolved.
type NormalizedOperation struct {
	OperationID string
	Method      string
	Path        string
	Tag         string
	Summary     string
	Description string
	Parameters  []*NormalizedParameter
	HasBody     bool
	BodySchema  string
	Responses   []NormalizedResponse // ascending status order, "default" last
}

// NormalizedParameter is one resolved parameter.
type NormalizedParameter struct {
	Name        string
	In          string
	Type        FieldType
	Required    bool
	Enum        []string
	Description string
}

// NormalizedResponse is one resolved response entry.
type NormalizedResponse struct {
	Status     string // "200", "201", ..., or "default"
	SchemaName string // "" if no application/json schema
	IsArray    bool   // true if the schema is an array whose element is SchemaName
}

// unknownSchemaName is the sentinel schema used for oneOf/anyOf fields
// (§4.1: "the field is treated as untyped").
const unknownSchemaName = "unknown"

type builder struct {
	doc        *Document
	schemas    map[string]*Schema
	inProgress map[string]bool
	used       map[string]bool
}

// Normalize resolves a Document's $refs, flattens allOf, and collapses
// oneOf/anyOf, producing the input the manifest builder consumes (§4.1).
func Normalize(doc *Document) (*NormalizedDocument, error) {
	b := &builder{
		doc:        doc,
		schemas:    map[string]*Schema{},
		inProgress: map[string]bool{},
		used:       map[string]bool{},
	}

	baseURL := ""
	if len(doc.Servers) > 0 {
		baseURL = doc.Servers[0].URL
	}

	nd := &NormalizedDocument{
		Source:          doc.Source,
		Title:           doc.Info.Title,
		Description:     doc.Info.Description,
		BaseURL:         baseURL,
		SecuritySchemes: doc.Components.SecuritySchemes,
		Security:        doc.Security,
	}

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	// If the document declares no top-level security requirement, fall back
	// to the first operation that declares its own (§4.1 auth scheme
	// resolution): the first one encountered in path/method order wins.
	var fallbackSecurity []SecurityRequirement

	for _, path := range paths {
		methods := doc.Paths[path]
		for _, method := range []string{"get", "put", "post", "delete", "patch", "head", "options"} {
			raw, ok := methods[method]
			if !ok {
				continue
			}
			if len(nd.Security) == 0 && fallbackSecurity == nil && raw.Security != nil {
				fallbackSecurity = raw.Security
			}
			op, err := b.normalizeOperation(method, path, raw)
			if err != nil {
				return nil, err
			}
			nd.Operations = append(nd.Operations, op)
		}
	}

	if len(nd.Security) == 0 {
		nd.Security = fallbackSecurity
	}

	nd.Schemas = b.schemas
	return nd, nil
}

func (b *builder) normalizeOperation(method, path string, raw RawOperation) (*NormalizedOperation, error) {
	op := &NormalizedOperation{
		OperationID: raw.OperationID,
		Method:      strings.ToUpper(method),
		Path:        path,
		Summary:     raw.Summary,
		Description: raw.Description,
	}
	if len(raw.Tags) > 0 {
		op.Tag = raw.Tags[0]
	}

	for _, p := range raw.Parameters {
		r, err := b.resolve(p.Schema, paramNameHint(raw.OperationID, p.Name))
		if err != nil {
			return nil, err
		}
		op.Parameters = append(op.Parameters, &NormalizedParameter{
			Name:        p.Name,
			In:          p.In,
			Type:        r.Type,
			Required:    p.Required,
			Enum:        r.Enum,
			Description: firstNonEmpty(p.Description, r.Description),
		})
	}

	if raw.RequestBody != nil && raw.RequestBody.Schema != nil {
		r, err := b.resolve(raw.RequestBody.Schema, bodyNameHint(raw.OperationID, method, path))
		if err != nil {
			return nil, err
		}
		op.HasBody = true
		op.BodySchema = r.Type.Schema
	}

	statuses := make([]string, 0, len(raw.Responses))
	for code := range raw.Responses {
		statuses = append(statuses, code)
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i] == "default" {
			return false
		}
		if statuses[j] == "default" {
			return true
		}
		return statuses[i] < statuses[j]
	})

	for _, code := range statuses {
		resp := raw.Responses[code]
		nr := NormalizedResponse{Status: code}
		if resp.Schema != nil {
			if resp.Schema.Type == "array" && resp.Schema.Items != nil {
				r, err := b.resolve(resp.Schema.Items, responseNameHint(raw.OperationID, method, path)+"Item")
				if err != nil {
					return nil, err
				}
				nr.SchemaName = r.Type.Schema
				nr.IsArray = true
			} else {
				r, err := b.resolve(resp.Schema, responseNameHint(raw.OperationID, method, path))
				if err != nil {
					return nil, err
				}
				nr.SchemaName = r.Type.Schema
			}
		}
		op.Responses = append(op.Responses, nr)
	}

	return op, nil
}

// resolved is the intermediate result of resolving one schema occurrence:
// its field type plus the metadata that lives on a Field rather than a
// Schema (enum, format, description, nullable).
type resolved struct {
	Type        FieldType
	Enum        []string
	Format      string
	Description string
	Nullable    bool
}

func (b *builder) resolve(raw *RawSchema, nameHint string) (resolved, error) {
	if raw == nil {
		return resolved{Type: FieldType{Kind: "string"}}, nil
	}

	if raw.Ref != "" {
		name, err := refComponentName(raw.Ref)
		if err != nil {
			return resolved{}, err
		}
		return b.resolveComponent(name)
	}

	if len(raw.OneOf) > 0 || len(raw.AnyOf) > 0 {
		b.registerUnknown()
		return resolved{Type: FieldType{Kind: "object", Schema: unknownSchemaName}}, nil
	}

	if len(raw.AllOf) > 0 {
		return b.resolveAllOf(raw, nameHint)
	}

	switch raw.Type {
	case "array":
		var elem resolved
		var err error
		if raw.Items != nil {
			elem, err = b.resolve(raw.Items, nameHint+"Item")
			if err != nil {
				return resolved{}, err
			}
		} else {
			elem = resolved{Type: FieldType{Kind: "string"}}
		}
		et := elem.Type
		return resolved{
			Type:        FieldType{Kind: "array", Elem: &et},
			Description: raw.Description,
			Nullable:    raw.Nullable,
		}, nil

	case "object", "":
		if raw.Properties != nil || raw.Type == "object" {
			if raw.AdditionalProperties != nil && len(raw.Properties) == 0 {
				return b.resolveMap(raw, nameHint)
			}
			return b.resolveObject(raw, nameHint)
		}
		if raw.AdditionalProperties != nil {
			return b.resolveMap(raw, nameHint)
		}
		// No type, no properties: treat as an opaque object.
		return b.resolveObject(raw, nameHint)

	default:
		return resolved{
			Type:        FieldType{Kind: raw.Type},
			Enum:        raw.Enum,
			Format:      raw.Format,
			Description: raw.Description,
			Nullable:    raw.Nullable,
		}, nil
	}
}

func (b *builder) resolveMap(raw *RawSchema, nameHint string) (resolved, error) {
	ap := raw.AdditionalProperties
	if ap.Schema != nil {
		valR, err := b.resolve(ap.Schema, nameHint+"Value")
		if err != nil {
			return resolved{}, err
		}
		vt := valR.Type
		return resolved{
			Type:        FieldType{Kind: "map", Elem: &vt},
			Description: raw.Description,
			Nullable:    raw.Nullable,
		}, nil
	}
	if ap.Bool != nil && *ap.Bool {
		return resolved{
			Type:        FieldType{Kind: "map", Elem: &FieldType{Kind: "string"}},
			Description: raw.Description,
			Nullable:    raw.Nullable,
		}, nil
	}
	// additionalProperties: false with no properties: opaque object.
	return b.resolveObject(raw, nameHint)
}

func (b *builder) resolveObject(raw *RawSchema, nameHint string) (resolved, error) {
	name := b.uniqueName(nameHint)
	b.schemas[name] = &Schema{
		Name:        name,
		Description: raw.Description,
		Fields:      orderedmap.New[string, *Field](),
	}

	requiredSet := map[string]bool{}
	for _, r := range raw.Required {
		requiredSet[r] = true
	}

	for _, propName := range raw.PropertyOrder {
		propRaw := raw.Properties[propName]
		r, err := b.resolve(propRaw, name+"_"+propName)
		if err != nil {
			return resolved{}, err
		}
		field := &Field{
			Name:        propName,
			Type:        r.Type,
			Required:    requiredSet[propName],
			Nullable:    r.Nullable || propRaw.Nullable,
			Format:      firstNonEmpty(propRaw.Format, r.Format),
			EnumValues:  firstNonEmptyEnum(propRaw.Enum, r.Enum),
			Description: firstNonEmpty(propRaw.Description, r.Description),
		}
		b.schemas[name].Fields.Set(propName, field)
	}

	return resolved{
		Type:        FieldType{Kind: "object", Schema: name},
		Description: raw.Description,
		Nullable:    raw.Nullable,
	}, nil
}

// resolveAllOf composes properties and required sets from each member in
// listed order (later overrides earlier on property-name collision), then
// treats any sibling properties as contributed after the allOf members
// (§4.1).
func (b *builder) resolveAllOf(raw *RawSchema, nameHint string) (resolved, error) {
	combined := &RawSchema{
		Type:        "object",
		Description: raw.Description,
		Properties:  map[string]*RawSchema{},
		Required:    nil,
	}
	requiredSet := map[string]bool{}

	merge := func(member *RawSchema) error {
		resolvedMember := member
		if member.Ref != "" {
			name, err := refComponentName(member.Ref)
			if err != nil {
				return err
			}
			raw, ok := b.doc.Components.Schemas[name]
			if !ok {
				return &apperrors.UnsupportedRef{Ref: member.Ref}
			}
			resolvedMember = raw
		}
		for _, propName := range resolvedMember.PropertyOrder {
			if _, exists := combined.Properties[propName]; !exists {
				combined.PropertyOrder = append(combined.PropertyOrder, propName)
			}
			combined.Properties[propName] = resolvedMember.Properties[propName]
		}
		for _, r := range resolvedMember.Required {
			requiredSet[r] = true
		}
		return nil
	}

	for _, member := range raw.AllOf {
		if err := merge(member); err != nil {
			return resolved{}, err
		}
	}
	// Sibling type: object properties on the allOf schema itself contribute
	// after the allOf members.
	if err := merge(raw); err != nil {
		return resolved{}, err
	}

	for r := range requiredSet {
		combined.Required = append(combined.Required, r)
	}
	sort.Strings(combined.Required)

	return b.resolveObject(combined, nameHint)
}

func (b *builder) resolveComponent(name string) (resolved, error) {
	if s, ok := b.schemas[name]; ok {
		return resolved{Type: FieldType{Kind: "object", Schema: s.Name}}, nil
	}
	if b.inProgress[name] {
		// Self- or mutually-recursive schema: the caller gets a forward
		// reference; the registration completes when the outer call
		// returns.
		return resolved{Type: FieldType{Kind: "object", Schema: name}}, nil
	}

	raw, ok := b.doc.Components.Schemas[name]
	if !ok {
		return resolved{}, &apperrors.UnsupportedRef{Ref: "#/components/schemas/" + name}
	}

	b.inProgress[name] = true
	r, err := b.resolveNamed(raw, name)
	delete(b.inProgress, name)
	return r, err
}

// resolveNamed resolves a top-level component schema under its declared
// name rather than a synthesized one, so component refs are stable and
// human-readable.
func (b *builder) resolveNamed(raw *RawSchema, name string) (resolved, error) {
	if len(raw.OneOf) > 0 || len(raw.AnyOf) > 0 {
		b.registerUnknown()
		return resolved{Type: FieldType{Kind: "object", Schema: unknownSchemaName}}, nil
	}
	if len(raw.AllOf) > 0 {
		return b.resolveAllOfNamed(raw, name)
	}
	if raw.Type == "object" || raw.Type == "" || raw.Properties != nil || raw.AdditionalProperties != nil {
		return b.resolveObjectNamed(raw, name)
	}
	return resolved{
		Type:        FieldType{Kind: raw.Type},
		Enum:        raw.Enum,
		Format:      raw.Format,
		Description: raw.Description,
		Nullable:    raw.Nullable,
	}, nil
}

func (b *builder) resolveObjectNamed(raw *RawSchema, name string) (resolved, error) {
	if raw.AdditionalProperties != nil && len(raw.Properties) == 0 {
		return b.resolveMap(raw, name)
	}
	b.used[name] = true
	b.schemas[name] = &Schema{
		Name:        name,
		Description: raw.Description,
		Fields:      orderedmap.New[string, *Field](),
	}
	requiredSet := map[string]bool{}
	for _, r := range raw.Required {
		requiredSet[r] = true
	}
	for _, propName := range raw.PropertyOrder {
		propRaw := raw.Properties[propName]
		r, err := b.resolve(propRaw, name+"_"+propName)
		if err != nil {
			return resolved{}, err
		}
		field := &Field{
			Name:        propName,
			Type:        r.Type,
			Required:    requiredSet[propName],
			Nullable:    r.Nullable || propRaw.Nullable,
			Format:      firstNonEmpty(propRaw.Format, r.Format),
			EnumValues:  firstNonEmptyEnum(propRaw.Enum, r.Enum),
			Description: firstNonEmpty(propRaw.Description, r.Description),
		}
		b.schemas[name].Fields.Set(propName, field)
	}
	return resolved{Type: FieldType{Kind: "object", Schema: name}}, nil
}

func (b *builder) resolveAllOfNamed(raw *RawSchema, name string) (resolved, error) {
	combined := &RawSchema{Type: "object", Description: raw.Description, Properties: map[string]*RawSchema{}}
	requiredSet := map[string]bool{}
	merge := func(member *RawSchema) error {
		m := member
		if member.Ref != "" {
			refName, err := refComponentName(member.Ref)
			if err != nil {
				return err
			}
			raw, ok := b.doc.Components.Schemas[refName]
			if !ok {
				return &apperrors.UnsupportedRef{Ref: member.Ref}
			}
			m = raw
		}
		for _, propName := range m.PropertyOrder {
			if _, exists := combined.Properties[propName]; !exists {
				combined.PropertyOrder = append(combined.PropertyOrder, propName)
			}
			combined.Properties[propName] = m.Properties[propName]
		}
		for _, r := range m.Required {
			requiredSet[r] = true
		}
		return nil
	}
	for _, member := range raw.AllOf {
		if err := merge(member); err != nil {
			return resolved{}, err
		}
	}
	if err := merge(raw); err != nil {
		return resolved{}, err
	}
	for r := range requiredSet {
		combined.Required = append(combined.Required, r)
	}
	sort.Strings(combined.Required)
	return b.resolveObjectNamed(combined, name)
}

func (b *builder) registerUnknown() {
	if _, ok := b.schemas[unknownSchemaName]; ok {
		return
	}
	b.schemas[unknownSchemaName] = &Schema{
		Name:   unknownSchemaName,
		Fields: orderedmap.New[string, *Field](),
	}
}

// uniqueName disambiguates a synthesized schema name against everything
// already registered.
func (b *builder) uniqueName(hint string) string {
	if hint == "" {
		hint = "Schema"
	}
	if !b.used[hint] {
		b.used[hint] = true
		return hint
	}
	for i := 2; ; i++ {
		candidate := hint + "_" + strconv.Itoa(i)
		if !b.used[candidate] {
			b.used[candidate] = true
			return candidate
		}
	}
}

func refComponentName(ref string) (string, error) {
	const prefix = "#/components/schemas/"
	if !strings.HasPrefix(ref, prefix) {
		return "", &apperrors.UnsupportedRef{Ref: ref}
	}
	return strings.TrimPrefix(ref, prefix), nil
}

func paramNameHint(opID, paramName string) string {
	return opID + "_" + paramName + "_Schema"
}

func bodyNameHint(opID, method, path string) string {
	if opID != "" {
		return titleCase(opID) + "Body"
	}
	return titleCase(method) + titleCase(sanitizePath(path)) + "Body"
}

func responseNameHint(opID, method, path string) string {
	if opID != "" {
		return titleCase(opID) + "Response"
	}
	return titleCase(method) + titleCase(sanitizePath(path)) + "Response"
}

func sanitizePath(path string) string {
	var b strings.Builder
	for _, r := range path {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyEnum(vals ...[]string) []string {
	for _, v := range vals {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}

