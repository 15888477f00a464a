package manifest

import (
	"encoding/json"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// dtoFieldType mirrors FieldType for on-disk encoding, carrying the "kind"
// discriminator the on-disk contract names explicitly (§6 "Manifest on
// disk").
type dtoFieldType struct {
	Kind   string        `json:"kind"`
	Elem   *dtoFieldType `json:"elem,omitempty"`
	Schema string        `json:"schema,omitempty"`
}

type dtoField struct {
	Name        string       `json:"name"`
	Type        dtoFieldType `json:"field_type"`
	Required    bool         `json:"required,omitempty"`
	Nullable    bool         `json:"nullable,omitempty"`
	Format      string       `json:"format,omitempty"`
	EnumValues  []string     `json:"enum_values,omitempty"`
	Description string       `json:"description,omitempty"`
}

type dtoSchema struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Fields      []dtoField `json:"fields"`
}

type dtoParameter struct {
	Name        string       `json:"name"`
	In          string       `json:"in"`
	Type        dtoFieldType `json:"field_type"`
	Required    bool         `json:"required,omitempty"`
	Default     *string      `json:"default,omitempty"`
	Enum        []string     `json:"enum,omitempty"`
	FrozenValue *string      `json:"frozen_value,omitempty"`
	Description string       `json:"description,omitempty"`
}

type dtoOperation struct {
	ID             string         `json:"id"`
	Method         string         `json:"method"`
	PathTemplate   string         `json:"path_template"`
	Tag            string         `json:"tag,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Description    string         `json:"description,omitempty"`
	Parameters     []dtoParameter `json:"parameters,omitempty"`
	HasBody        bool           `json:"has_body,omitempty"`
	BodySchema     string         `json:"body_schema,omitempty"`
	ResponseSchema string         `json:"response_schema,omitempty"`
}

type dtoAuthScheme struct {
	Kind    string `json:"kind"`
	KeyName string `json:"key_name,omitempty"`
	KeyIn   string `json:"key_in,omitempty"`
}

type dtoApi struct {
	Slug        string         `json:"slug"`
	Title       string         `json:"title"`
	BaseURL     string         `json:"base_url"`
	Description string         `json:"description,omitempty"`
	Auth        dtoAuthScheme  `json:"auth"`
	Operations  []dtoOperation `json:"operations"`
}

type dtoManifest struct {
	Apis    []dtoApi    `json:"apis"`
	Schemas []dtoSchema `json:"schemas"`
}

// Marshal renders m as the on-disk manifest.json document (§6): optional
// fields at their zero value are omitted, and schemas are sorted by name so that
// running generate twice on the same inputs produces byte-identical output
// (§8 idempotence) regardless of map iteration order.
func Marshal(m *Manifest) ([]byte, error) {
	doc := dtoManifest{}

	for _, api := range m.Apis {
		dApi := dtoApi{
			Slug:        api.Slug,
			Title:       api.Title,
			BaseURL:     api.BaseURL,
			Description: api.Description,
			Auth:        toDTOAuthScheme(api.Auth),
		}
		for _, op := range api.Operations {
			dApi.Operations = append(dApi.Operations, toDTOOperation(op))
		}
		doc.Apis = append(doc.Apis, dApi)
	}

	names := make([]string, 0, len(m.Schemas))
	for name := range m.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc.Schemas = append(doc.Schemas, toDTOSchema(m.Schemas[name]))
	}

	return json.MarshalIndent(doc, "", "  ")
}

// Unmarshal parses an on-disk manifest.json document back into a Manifest
// (the `serve <dir>` code path).
func Unmarshal(data []byte) (*Manifest, error) {
	var doc dtoManifest
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	schemas := make(map[string]*Schema, len(doc.Schemas))
	for _, ds := range doc.Schemas {
		schemas[ds.Name] = fromDTOSchema(ds)
	}

	apis := make([]*Api, 0, len(doc.Apis))
	for _, da := range doc.Apis {
		api := &Api{
			Slug:        da.Slug,
			Title:       da.Title,
			BaseURL:     da.BaseURL,
			Description: da.Description,
			Auth:        fromDTOAuthScheme(da.Auth),
		}
		for _, do := range da.Operations {
			op := fromDTOOperation(do)
			op.APISlug = da.Slug
			api.Operations = append(api.Operations, op)
		}
		apis = append(apis, api)
	}

	return New(apis, schemas), nil
}

func toDTOFieldType(t FieldType) dtoFieldType {
	out := dtoFieldType{Kind: t.Kind, Schema: t.Schema}
	if t.Elem != nil {
		elem := toDTOFieldType(*t.Elem)
		out.Elem = &elem
	}
	return out
}

func fromDTOFieldType(t dtoFieldType) FieldType {
	out := FieldType{Kind: t.Kind, Schema: t.Schema}
	if t.Elem != nil {
		elem := fromDTOFieldType(*t.Elem)
		out.Elem = &elem
	}
	return out
}

func toDTOSchema(s *Schema) dtoSchema {
	out := dtoSchema{Name: s.Name, Description: s.Description}
	for _, f := range s.FieldOrder() {
		out.Fields = append(out.Fields, dtoField{
			Name:        f.Name,
			Type:        toDTOFieldType(f.Type),
			Required:    f.Required,
			Nullable:    f.Nullable,
			Format:      f.Format,
			EnumValues:  f.EnumValues,
			Description: f.Description,
		})
	}
	return out
}

func fromDTOSchema(ds dtoSchema) *Schema {
	out := &Schema{
		Name:        ds.Name,
		Description: ds.Description,
		Fields:      orderedmap.New[string, *Field](),
	}
	for _, df := range ds.Fields {
		out.Fields.Set(df.Name, &Field{
			Name:        df.Name,
			Type:        fromDTOFieldType(df.Type),
			Required:    df.Required,
			Nullable:    df.Nullable,
			Format:      df.Format,
			EnumValues:  df.EnumValues,
			Description: df.Description,
		})
	}
	return out
}

func toDTOOperation(op *Operation) dtoOperation {
	out := dtoOperation{
		ID:             op.ID,
		Method:         op.Method,
		PathTemplate:   op.PathTemplate,
		Tag:            op.Tag,
		Summary:        op.Summary,
		Description:    op.Description,
		HasBody:        op.HasBody,
		BodySchema:     op.BodySchema,
		ResponseSchema: op.ResponseSchema,
	}
	for _, p := range op.ParamOrder() {
		out.Parameters = append(out.Parameters, dtoParameter{
			Name:        p.Name,
			In:          string(p.In),
			Type:        toDTOFieldType(p.Type),
			Required:    p.Required,
			Default:     p.Default,
			Enum:        p.Enum,
			FrozenValue: p.FrozenValue,
			Description: p.Description,
		})
	}
	return out
}

func fromDTOOperation(do dtoOperation) *Operation {
	out := &Operation{
		ID:             do.ID,
		Method:         do.Method,
		PathTemplate:   do.PathTemplate,
		Tag:            do.Tag,
		Summary:        do.Summary,
		Description:    do.Description,
		Parameters:     orderedmap.New[string, *Parameter](),
		HasBody:        do.HasBody,
		BodySchema:     do.BodySchema,
		ResponseSchema: do.ResponseSchema,
	}
	for _, dp := range do.Parameters {
		out.Parameters.Set(dp.Name, &Parameter{
			Name:        dp.Name,
			In:          ParamLocation(dp.In),
			Type:        fromDTOFieldType(dp.Type),
			Required:    dp.Required,
			Default:     dp.Default,
			Enum:        dp.Enum,
			FrozenValue: dp.FrozenValue,
			Description: dp.Description,
		})
	}
	return out
}

func toDTOAuthScheme(a AuthScheme) dtoAuthScheme {
	return dtoAuthScheme{Kind: a.Kind, KeyName: a.KeyName, KeyIn: a.KeyIn}
}

func fromDTOAuthScheme(a dtoAuthScheme) AuthScheme {
	return AuthScheme{Kind: a.Kind, KeyName: a.KeyName, KeyIn: a.KeyIn}
}
