// Package export derives structural descriptions of registered schemas
// without needing an instance, and renders them as JSON Schema and OpenAPI
// component schemas.
//
// Nested schemas are exported as named references. Every referenced schema
// is described once, so recursive and cyclic schema graphs export finitely.
package export

import (
	"fmt"

	"github.com/artpar/modelgate/core/coerce"
	"github.com/artpar/modelgate/core/registry"
	"github.com/artpar/modelgate/core/schema"
)

// Type tags used in descriptions.
const (
	TagPrimitive     = "primitive"
	TagFixedSequence = "fixed_sequence"
	TagSequence      = "sequence"
	TagNested        = "nested"
	TagUndeclared    = "undeclared"
)

// Description is the structural description of a schema.
type Description struct {
	Schema      string             `json:"schema"`
	Description string             `json:"description,omitempty"`
	Extra       string             `json:"extra"`
	Fields      []FieldDescription `json:"fields"`

	// Definitions describes every schema reachable from the root through
	// nested references, in first-encounter order. The root itself is never
	// listed. Only set on the root description.
	Definitions []*Description `json:"definitions,omitempty"`
}

// FieldDescription describes one field.
type FieldDescription struct {
	Name        string          `json:"name"`
	Alias       string          `json:"alias,omitempty"`
	Description string          `json:"description,omitempty"`
	Type        TypeDescription `json:"type"`
	Required    bool            `json:"required"`
	Computed    bool            `json:"computed,omitempty"`
	Nullable    bool            `json:"nullable,omitempty"`

	// Default is the JSON form of a static default. Factory defaults are
	// reported by HasDefault only.
	Default    any  `json:"default,omitempty"`
	HasDefault bool `json:"has_default,omitempty"`
}

// TypeDescription describes a declared type.
type TypeDescription struct {
	Tag      string            `json:"tag"`
	Kind     string            `json:"kind,omitempty"`
	Elements []TypeDescription `json:"elements,omitempty"`
	Elem     *TypeDescription  `json:"elem,omitempty"`

	// Ref names the nested schema for TagNested.
	Ref string `json:"ref,omitempty"`
}

// Definition returns the description of a referenced schema by name.
func (d *Description) Definition(name string) (*Description, bool) {
	if name == d.Schema {
		return d, true
	}
	for _, def := range d.Definitions {
		if def.Schema == name {
			return def, true
		}
	}
	return nil, false
}

// Describe builds the description of the named schema and of every schema
// it references.
func Describe(resolver registry.Resolver, name string) (*Description, error) {
	root, err := resolver.Resolve(name)
	if err != nil {
		return nil, err
	}

	desc := describeSchema(root)
	seen := map[string]bool{root.Name(): true}
	queue := root.References()

	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if seen[ref] {
			continue
		}
		seen[ref] = true

		s, err := resolver.Resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", name, err)
		}
		desc.Definitions = append(desc.Definitions, describeSchema(s))
		queue = append(queue, s.References()...)
	}

	return desc, nil
}

func describeSchema(s *schema.Schema) *Description {
	d := &Description{
		Schema:      s.Name(),
		Description: s.Description(),
		Extra:       string(s.Extra()),
	}
	for _, f := range s.Fields() {
		fd := FieldDescription{
			Name:        f.Name,
			Alias:       f.Alias,
			Description: f.Description,
			Type:        describeType(f.Type),
			Required:    f.Required,
			Computed:    f.IsComputed(),
			Nullable:    f.Nullable,
			HasDefault:  f.HasDefault(),
		}
		if f.Default != nil {
			fd.Default = encodeDefault(f.Default, f.Type)
		}
		d.Fields = append(d.Fields, fd)
	}
	return d
}

func describeType(t schema.TypeSpec) TypeDescription {
	switch t.Tag {
	case schema.TagPrimitive:
		return TypeDescription{Tag: TagPrimitive, Kind: string(t.Kind)}
	case schema.TagFixedSequence:
		td := TypeDescription{Tag: TagFixedSequence, Elements: make([]TypeDescription, len(t.Elements))}
		for i, e := range t.Elements {
			td.Elements[i] = describeType(e)
		}
		return td
	case schema.TagSequence:
		td := TypeDescription{Tag: TagSequence}
		if t.Elem != nil {
			elem := describeType(*t.Elem)
			td.Elem = &elem
		}
		return td
	case schema.TagNested:
		return TypeDescription{Tag: TagNested, Ref: t.Schema}
	default:
		return TypeDescription{Tag: TagUndeclared}
	}
}

// encodeDefault converts a coerced default to its JSON form.
func encodeDefault(v any, t schema.TypeSpec) any {
	items, isSeq := v.([]any)
	switch {
	case t.Tag == schema.TagPrimitive:
		return coerce.Encode(v, t.Kind)
	case t.Tag == schema.TagFixedSequence && isSeq:
		out := make([]any, len(items))
		for i, item := range items {
			if i < len(t.Elements) {
				out[i] = encodeDefault(item, t.Elements[i])
			}
		}
		return out
	case t.Tag == schema.TagSequence && isSeq && t.Elem != nil:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = encodeDefault(item, *t.Elem)
		}
		return out
	default:
		return coerce.Encode(v, schema.KindAny)
	}
}
