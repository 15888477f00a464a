package manifest

import (
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/codemcp-dev/codemcp/internal/apperrors"
	"github.com/codemcp-dev/codemcp/internal/config"
	"github.com/codemcp-dev/codemcp/internal/openapi"
)

// Build transforms normalized documents into an immutable Manifest (§4.2).
func Build(docs []*openapi.NormalizedDocument, frozen config.FrozenConfig) (*Manifest, error) {
	usedSlugs := map[string]bool{}
	schemas := map[string]*Schema{}
	apis := make([]*Api, 0, len(docs))
	opIDs := map[string]bool{}

	for _, doc := range docs {
		slug := uniqueSlug(apiSlug(doc.Title), usedSlugs)
		usedSlugs[slug] = true

		api := &Api{
			Slug:        slug,
			Title:       doc.Title,
			BaseURL:     doc.BaseURL,
			Description: doc.Description,
			Auth:        resolveAuthScheme(doc.SecuritySchemes, doc.Security),
		}

		for name, s := range doc.Schemas {
			schemas[name] = convertSchema(s)
		}

		opNames := map[string]bool{}
		for _, nop := range doc.Operations {
			op, err := buildOperation(slug, nop, opNames, frozen)
			if err != nil {
				return nil, err
			}
			if opIDs[op.ID] {
				return nil, &apperrors.DuplicateName{Kind: "operation", Name: op.ID}
			}
			opIDs[op.ID] = true
			api.Operations = append(api.Operations, op)
		}

		apis = append(apis, api)
	}

	return New(apis, schemas), nil
}

// apiSlug derives an API's slug from its document title (§4.2).
func apiSlug(title string) string {
	slug := slugify(title)
	if slug == "" || (slug[0] >= '0' && slug[0] <= '9') {
		slug = "api_" + slug
	}
	return slug
}

func slugify(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

func uniqueSlug(base string, used map[string]bool) string {
	if !used[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if !used[candidate] {
			return candidate
		}
	}
}

// operationID derives a snake_case operation id from an OpenAPI
// operationId, or synthesizes one from method+path when absent (§4.2).
func operationID(raw string, method, path string) string {
	if raw != "" {
		return camelToSnake(raw)
	}
	return synthesizeOperationID(method, path)
}

func camelToSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				prev := runes[i-1]
				isBoundary := (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9')
				nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
				if isBoundary || (nextLower && b.Len() > 0 && b.String()[b.Len()-1] != '_') {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r - 'A' + 'a')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			if b.Len() > 0 && b.String()[b.Len()-1] != '_' {
				b.WriteByte('_')
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// synthesizeOperationID builds an id from method + path, e.g.
// "GET /pets/{id}" -> "get_pet" (§4.2).
func synthesizeOperationID(method, path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	var kept []string
	for _, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			continue
		}
		kept = append(kept, slugify(seg))
	}
	noun := strings.Join(kept, "_")
	if noun == "" {
		noun = "root"
	}
	// Trailing path parameter on GET/DELETE/PUT/PATCH implies a
	// singular resource fetch/mutation; naively singularize by trimming a
	// trailing "s" on the last segment when the path ends in a parameter.
	endsWithParam := len(segments) > 0 && strings.HasPrefix(segments[len(segments)-1], "{")
	if endsWithParam && strings.HasSuffix(noun, "s") {
		noun = strings.TrimSuffix(noun, "s")
	}

	verb := strings.ToLower(method)
	switch verb {
	case "get":
		if endsWithParam {
			verb = "get"
		} else {
			verb = "list"
		}
	case "post":
		verb = "create"
	case "put":
		verb = "update"
	case "patch":
		verb = "patch"
	case "delete":
		verb = "delete"
	}
	return verb + "_" + noun
}

func buildOperation(apiSlug string, nop *openapi.NormalizedOperation, used map[string]bool, frozen config.FrozenConfig) (*Operation, error) {
	id := operationID(nop.OperationID, nop.Method, nop.Path)
	if used[id] {
		for i := 2; ; i++ {
			candidate := id + "_" + strconv.Itoa(i)
			if !used[candidate] {
				id = candidate
				break
			}
		}
	}
	used[id] = true

	op := &Operation{
		ID:           id,
		APISlug:      apiSlug,
		Method:       nop.Method,
		PathTemplate: nop.Path,
		Tag:          nop.Tag,
		Summary:      nop.Summary,
		Description:  nop.Description,
		Parameters:   orderedmap.New[string, *Parameter](),
		HasBody:      nop.HasBody,
		BodySchema:   nop.BodySchema,
	}

	pathParams := extractPathParams(nop.Path)
	seenPathParams := map[string]bool{}

	merged := frozen.Merged(apiSlug)

	for _, np := range nop.Parameters {
		loc := ParamLocation(np.In)
		if loc == ParamHeader && isReservedHeader(np.Name) {
			return nil, &apperrors.ReservedHeader{Operation: id, Header: np.Name}
		}

		p := &Parameter{
			Name:        np.Name,
			In:          loc,
			Type:        convertFieldType(np.Type),
			Required:    np.Required,
			Enum:        np.Enum,
			Description: np.Description,
		}
		if v, ok := merged[np.Name]; ok {
			frozenVal := v
			p.FrozenValue = &frozenVal
		}
		if loc == ParamPath {
			seenPathParams[np.Name] = true
		}
		op.Parameters.Set(np.Name, p)
	}

	for placeholder := range pathParams {
		if !seenPathParams[placeholder] {
			return nil, &apperrors.BadPathTemplate{
				Operation: id,
				Path:      nop.Path,
				Reason:    "placeholder {" + placeholder + "} has no corresponding path parameter",
			}
		}
	}

	op.ResponseSchema = selectResponseSchema(nop.Responses)

	return op, nil
}

// extractPathParams returns the set of {placeholder} names in a path
// template.
func extractPathParams(path string) map[string]bool {
	out := map[string]bool{}
	for {
		start := strings.IndexByte(path, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(path[start:], '}')
		if end < 0 {
			break
		}
		out[path[start+1:start+end]] = true
		path = path[start+end+1:]
	}
	return out
}

func isReservedHeader(name string) bool {
	lower := strings.ToLower(name)
	return lower == "authorization" || lower == "x-api-key"
}

// selectResponseSchema scans 2xx responses in ascending status order,
// falling back to "default", per §4.2.
func selectResponseSchema(responses []openapi.NormalizedResponse) string {
	for _, r := range responses {
		if r.Status == "default" {
			continue
		}
		if strings.HasPrefix(r.Status, "2") && r.SchemaName != "" {
			return r.SchemaName
		}
	}
	for _, r := range responses {
		if r.Status == "default" && r.SchemaName != "" {
			return r.SchemaName
		}
	}
	return ""
}

// convertFieldType maps openapi's pre-manifest field-type shape onto this
// package's own FieldType.
func convertFieldType(t openapi.FieldType) FieldType {
	ft := FieldType{Kind: t.Kind, Schema: t.Schema}
	if t.Elem != nil {
		elem := convertFieldType(*t.Elem)
		ft.Elem = &elem
	}
	return ft
}

// convertSchema maps an openapi.Schema (built during normalization, before a
// Manifest exists) onto a manifest.Schema.
func convertSchema(s *openapi.Schema) *Schema {
	out := &Schema{
		Name:        s.Name,
		Description: s.Description,
		Fields:      orderedmap.New[string, *Field](),
	}
	for pair := s.Fields.Oldest(); pair != nil; pair = pair.Next() {
		f := pair.Value
		out.Fields.Set(f.Name, &Field{
			Name:        f.Name,
			Type:        convertFieldType(f.Type),
			Required:    f.Required,
			Nullable:    f.Nullable,
			Format:      f.Format,
			EnumValues:  f.EnumValues,
			Description: f.Description,
		})
	}
	return out
}

// resolveAuthScheme picks the scheme named by the resolved security
// requirement (§4.1), trying each requirement entry in order and, within an
// entry, each scheme name in order, rather than ranging over the unordered
// components.securitySchemes map directly. An empty or absent requirement
// resolves to "none".
func resolveAuthScheme(schemes map[string]*openapi.RawSecurityScheme, security []openapi.SecurityRequirement) AuthScheme {
	for _, req := range security {
		for _, name := range req {
			s, ok := schemes[name]
			if !ok {
				continue
			}
			if scheme, ok := authSchemeFromRaw(s); ok {
				return scheme
			}
		}
	}
	return AuthScheme{Kind: "none"}
}

func authSchemeFromRaw(s *openapi.RawSecurityScheme) (AuthScheme, bool) {
	switch {
	case s.Type == "http" && s.Scheme == "bearer":
		return AuthScheme{Kind: "bearer"}, true
	case s.Type == "http" && s.Scheme == "basic":
		return AuthScheme{Kind: "basic"}, true
	case s.Type == "apiKey":
		return AuthScheme{Kind: "api_key", KeyName: s.Name, KeyIn: s.In}, true
	}
	return AuthScheme{}, false
}
