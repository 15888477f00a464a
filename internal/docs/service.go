// Package docs serves agent introspection requests over an immutable
// manifest: listing, per-operation and per-schema docs, and ranked full-text
// search (§4.4).
package docs

import (
	"sort"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/codemcp-dev/codemcp/internal/annotate"
	"github.com/codemcp-dev/codemcp/internal/manifest"
)

// ApiSummary is one list_apis() entry.
type ApiSummary struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	BaseURL        string `json:"base_url"`
	OperationCount int    `json:"operation_count"`
}

// FunctionSummary is one list_functions() entry.
type FunctionSummary struct {
	Name    string `json:"name"`
	Api     string `json:"api"`
	Tag     string `json:"tag,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// SearchHit is one search_docs() result.
type SearchHit struct {
	Kind string `json:"kind"` // "function" | "schema" | "field"
	Name string `json:"name"`
	Api  string `json:"api,omitempty"`
	Rank int    `json:"-"`
}

// Service serves the doc surface over a frozen manifest. It is stateless
// aside from the search index, which is built once and never mutated
// (§5: shared read-only across workers).
type Service struct {
	manifest *manifest.Manifest
	index    *searchIndex
}

// New builds a Service over m, constructing the search index once.
func New(m *manifest.Manifest) *Service {
	return &Service{
		manifest: m,
		index:    buildIndex(m),
	}
}

// ListApis returns every API's summary (§4.4 list_apis).
func (s *Service) ListApis() []ApiSummary {
	out := make([]ApiSummary, 0, len(s.manifest.Apis))
	for _, api := range s.manifest.Apis {
		out = append(out, ApiSummary{
			Name:           api.Slug,
			Description:    api.Description,
			BaseURL:        api.BaseURL,
			OperationCount: len(api.Operations),
		})
	}
	return out
}

// ListFunctions returns function summaries, optionally filtered by API slug
// and/or tag (§4.4 list_functions).
func (s *Service) ListFunctions(apiSlug, tag string) []FunctionSummary {
	var out []FunctionSummary
	for _, api := range s.manifest.Apis {
		if apiSlug != "" && api.Slug != apiSlug {
			continue
		}
		for _, op := range api.Operations {
			if tag != "" && op.Tag != tag {
				continue
			}
			out = append(out, FunctionSummary{
				Name:    op.ID,
				Api:     api.Slug,
				Tag:     op.Tag,
				Summary: op.Summary,
			})
		}
	}
	return out
}

// GetFunctionDocs returns the full annotation for one operation, or "", false
// if it doesn't exist (§4.4 get_function_docs).
func (s *Service) GetFunctionDocs(name string) (string, bool) {
	op, ok := s.manifest.Operation(name)
	if !ok {
		return "", false
	}
	return annotate.FunctionDoc(s.manifest, op), true
}

// GetSchema returns the annotation for a single schema (§4.4 get_schema).
func (s *Service) GetSchema(name string) (string, bool) {
	sch, ok := s.manifest.Schemas[name]
	if !ok {
		return "", false
	}
	return annotate.Schema(sch), true
}

// GetSchemaJSON returns the machine-readable JSON Schema rendering of one
// schema, or nil, false if it doesn't exist (§4.4 get_schema, SPEC_FULL
// domain stack).
func (s *Service) GetSchemaJSON(name string) (*jsonschema.Schema, bool) {
	sch, ok := s.manifest.Schemas[name]
	if !ok {
		return nil, false
	}
	return annotate.SchemaJSON(sch), true
}

// SearchDocs ranks matches across operation names, summaries, descriptions,
// schema and field names/descriptions (§4.4 search_docs). Ranking is
// name hit > summary hit > description hit, tie-broken alphabetically.
func (s *Service) SearchDocs(query string) []SearchHit {
	return s.index.search(query)
}

// ResourceURI builds an sdk://{api}/... browsable resource URI (§4.4
// Resources).
func ResourceURI(parts ...string) string {
	return "sdk://" + strings.Join(parts, "/")
}

// searchIndex is a case-insensitive token inverted index over operation and
// schema documentation, built once at manifest freeze (§9).
type searchIndex struct {
	// token -> set of entries containing it, each tagged with the strength
	// of the hit (name/summary/description) it was found under.
	postings map[string][]indexedHit
}

type indexedHit struct {
	kind  string
	name  string
	api   string
	level int // 3 = name, 2 = summary, 1 = description/field
}

func buildIndex(m *manifest.Manifest) *searchIndex {
	idx := &searchIndex{postings: map[string][]indexedHit{}}

	for _, api := range m.Apis {
		for _, op := range api.Operations {
			hit := indexedHit{kind: "function", name: op.ID, api: api.Slug}
			idx.add(op.ID, hit, 3)
			idx.add(op.Summary, hit, 2)
			idx.add(op.Description, hit, 1)
		}
	}

	for name, schema := range m.Schemas {
		hit := indexedHit{kind: "schema", name: name}
		idx.add(name, hit, 3)
		idx.add(schema.Description, hit, 1)
		for _, f := range schema.FieldOrder() {
			fieldHit := indexedHit{kind: "field", name: name + "." + f.Name}
			idx.add(f.Name, fieldHit, 3)
			idx.add(f.Description, fieldHit, 1)
		}
	}

	return idx
}

func (idx *searchIndex) add(text string, hit indexedHit, level int) {
	for _, tok := range tokenize(text) {
		h := hit
		h.level = level
		idx.postings[tok] = append(idx.postings[tok], h)
	}
}

func (idx *searchIndex) search(query string) []SearchHit {
	best := map[string]SearchHit{}
	for _, tok := range tokenize(query) {
		for _, hit := range idx.postings[tok] {
			key := hit.kind + ":" + hit.name
			existing, ok := best[key]
			if !ok || hit.level > existing.Rank {
				best[key] = SearchHit{Kind: hit.kind, Name: hit.name, Api: hit.api, Rank: hit.level}
			}
		}
	}

	out := make([]SearchHit, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		if li, lj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name); li != lj {
			return li < lj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}
