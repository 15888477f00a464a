package openapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codemcp-dev/codemcp/internal/apperrors"
)

// fetchTimeout bounds remote spec fetches (§4.1: "a reasonable timeout").
const fetchTimeout = 15 * time.Second

// Load resolves each source (a local file path or an http(s) URL) into a
// parsed Document (§4.1 load).
func Load(sources []string) ([]*Document, error) {
	docs := make([]*Document, 0, len(sources))
	for _, src := range sources {
		raw, err := fetch(src)
		if err != nil {
			return nil, err
		}
		generic, err := parseGeneric(src, raw)
		if err != nil {
			return nil, err
		}
		doc, err := decodeDocument(src, generic)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func fetch(src string) ([]byte, error) {
	if u, err := url.Parse(src); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		client := &http.Client{Timeout: fetchTimeout}
		resp, err := client.Get(src)
		if err != nil {
			return nil, &apperrors.SpecFetch{URL: src, Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, &apperrors.SpecFetch{URL: src, Err: errStatus(resp.StatusCode)}
		}
		buf := make([]byte, 0, 64*1024)
		chunk := make([]byte, 32*1024)
		for {
			n, rerr := resp.Body.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
			}
			if rerr != nil {
				break
			}
		}
		return buf, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, &apperrors.BadSpec{Path: src, Reason: err.Error()}
	}
	return data, nil
}

type statusError int

func (e statusError) Error() string { return http.StatusText(int(e)) }

func errStatus(code int) error { return statusError(code) }

// parseGeneric auto-detects JSON vs YAML and returns a generic tree of
// map[string]any / []any / scalars.
func parseGeneric(src string, raw []byte) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw2string(raw))
	var out map[string]any
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
	}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, &apperrors.BadSpec{Path: src, Reason: err.Error()}
	}
	if out == nil {
		return nil, &apperrors.BadSpec{Path: src, Reason: "empty document"}
	}
	return out, nil
}

func raw2string(b []byte) string { return string(b) }

func decodeDocument(src string, m map[string]any) (*Document, error) {
	doc := &Document{Source: src}

	doc.OpenAPI, _ = m["openapi"].(string)

	if info, ok := m["info"].(map[string]any); ok {
		doc.Info.Title, _ = info["title"].(string)
		doc.Info.Description, _ = info["description"].(string)
	}

	if servers, ok := m["servers"].([]any); ok {
		for _, s := range servers {
			if sm, ok := s.(map[string]any); ok {
				if u, ok := sm["url"].(string); ok {
					doc.Servers = append(doc.Servers, Server{URL: u})
				}
			}
		}
	}

	doc.Components.Schemas = map[string]*RawSchema{}
	doc.Components.SecuritySchemes = map[string]*RawSecurityScheme{}
	if comps, ok := m["components"].(map[string]any); ok {
		if schemas, ok := comps["schemas"].(map[string]any); ok {
			for name, raw := range schemas {
				sm, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				doc.Components.Schemas[name] = decodeSchema(sm)
			}
		}
		if secs, ok := comps["securitySchemes"].(map[string]any); ok {
			for name, raw := range secs {
				sm, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				ss := &RawSecurityScheme{}
				ss.Type, _ = sm["type"].(string)
				ss.Scheme, _ = sm["scheme"].(string)
				ss.In, _ = sm["in"].(string)
				ss.Name, _ = sm["name"].(string)
				doc.Components.SecuritySchemes[name] = ss
			}
		}
	}

	doc.Security = decodeSecurity(m["security"])

	doc.Paths = map[string]map[string]RawOperation{}
	if paths, ok := m["paths"].(map[string]any); ok {
		for path, raw := range paths {
			pm, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			methods := map[string]RawOperation{}
			for _, method := range []string{"get", "put", "post", "delete", "patch", "head", "options"} {
				opRaw, ok := pm[method]
				if !ok {
					continue
				}
				om, ok := opRaw.(map[string]any)
				if !ok {
					continue
				}
				methods[method] = decodeOperation(om)
			}
			if len(methods) > 0 {
				doc.Paths[path] = methods
			}
		}
	}

	return doc, nil
}

func decodeOperation(m map[string]any) RawOperation {
	op := RawOperation{}
	op.OperationID, _ = m["operationId"].(string)
	op.Summary, _ = m["summary"].(string)
	op.Description, _ = m["description"].(string)

	if tags, ok := m["tags"].([]any); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				op.Tags = append(op.Tags, s)
			}
		}
	}

	if params, ok := m["parameters"].([]any); ok {
		for _, p := range params {
			pm, ok := p.(map[string]any)
			if !ok {
				continue
			}
			rp := &RawParameter{}
			rp.Name, _ = pm["name"].(string)
			rp.In, _ = pm["in"].(string)
			rp.Required, _ = pm["required"].(bool)
			rp.Description, _ = pm["description"].(string)
			if sm, ok := pm["schema"].(map[string]any); ok {
				rp.Schema = decodeSchema(sm)
			} else {
				rp.Schema = &RawSchema{Type: "string"}
			}
			op.Parameters = append(op.Parameters, rp)
		}
	}

	if rb, ok := m["requestBody"].(map[string]any); ok {
		body := &RawRequestBody{}
		body.Required, _ = rb["required"].(bool)
		body.Schema = extractJSONSchema(rb)
		op.RequestBody = body
	}

	op.Security = decodeSecurity(m["security"])

	op.Responses = map[string]*RawResponse{}
	if responses, ok := m["responses"].(map[string]any); ok {
		for code, raw := range responses {
			rm, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			resp := &RawResponse{}
			resp.Description, _ = rm["description"].(string)
			resp.Schema = extractJSONSchema(rm)
			op.Responses[code] = resp
		}
	}

	return op
}

// extractJSONSchema pulls content["application/json"].schema out of a
// requestBody or response object, if present.
func extractJSONSchema(m map[string]any) *RawSchema {
	content, ok := m["content"].(map[string]any)
	if !ok {
		return nil
	}
	jsonContent, ok := content["application/json"].(map[string]any)
	if !ok {
		return nil
	}
	sm, ok := jsonContent["schema"].(map[string]any)
	if !ok {
		return nil
	}
	return decodeSchema(sm)
}

func decodeSchema(m map[string]any) *RawSchema {
	s := &RawSchema{}

	if ref, ok := m["$ref"].(string); ok {
		s.Ref = ref
		return s
	}

	s.Type, _ = m["type"].(string)
	s.Format, _ = m["format"].(string)
	s.Description, _ = m["description"].(string)
	s.Nullable, _ = m["nullable"].(bool)

	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			s.Enum = append(s.Enum, toStringValue(e))
		}
	}

	if required, ok := m["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}

	if items, ok := m["items"].(map[string]any); ok {
		s.Items = decodeSchema(items)
	}

	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = map[string]*RawSchema{}
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		// YAML/JSON decode into map[string]any loses declaration order;
		// fall back to alphabetical so rendering is at least deterministic.
		sort.Strings(names)
		for _, name := range names {
			pm, ok := props[name].(map[string]any)
			if !ok {
				continue
			}
			s.Properties[name] = decodeSchema(pm)
			s.PropertyOrder = append(s.PropertyOrder, name)
		}
	}

	if ap, ok := m["additionalProperties"]; ok {
		switch v := ap.(type) {
		case bool:
			b := v
			s.AdditionalProperties = &RawAdditionalProperties{Bool: &b}
		case map[string]any:
			s.AdditionalProperties = &RawAdditionalProperties{Schema: decodeSchema(v)}
		}
	}

	if allOf, ok := m["allOf"].([]any); ok {
		for _, a := range allOf {
			if am, ok := a.(map[string]any); ok {
				s.AllOf = append(s.AllOf, decodeSchema(am))
			}
		}
	}
	if oneOf, ok := m["oneOf"].([]any); ok {
		for _, a := range oneOf {
			if am, ok := a.(map[string]any); ok {
				s.OneOf = append(s.OneOf, decodeSchema(am))
			}
		}
	}
	if anyOf, ok := m["anyOf"].([]any); ok {
		for _, a := range anyOf {
			if am, ok := a.(map[string]any); ok {
				s.AnyOf = append(s.AnyOf, decodeSchema(am))
			}
		}
	}

	return s
}

// decodeSecurity parses an OpenAPI `security` array. A missing key decodes
// to nil (inherit); a present-but-empty array decodes to a non-nil empty
// slice (explicitly no auth) so callers can tell the two apart.
func decodeSecurity(v any) []SecurityRequirement {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	reqs := make([]SecurityRequirement, 0, len(arr))
	for _, item := range arr {
		rm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		names := make([]string, 0, len(rm))
		for name := range rm {
			names = append(names, name)
		}
		sort.Strings(names)
		reqs = append(reqs, SecurityRequirement(names))
	}
	return reqs
}

func toStringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
