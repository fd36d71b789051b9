package export

import (
	"github.com/invopop/jsonschema"

	"github.com/artpar/modelgate/core/schema"
)

// JSON Schema formats for primitive kinds.
var jsonFormats = map[schema.Kind]string{
	schema.KindDatetime: "date-time",
	schema.KindDate:     "date",
	schema.KindUUID:     "uuid",
	schema.KindEmail:    "email",
	schema.KindURL:      "uri",
}

var jsonTypes = map[schema.Kind]string{
	schema.KindString:   "string",
	schema.KindInt:      "integer",
	schema.KindFloat:    "number",
	schema.KindBool:     "boolean",
	schema.KindDatetime: "string",
	schema.KindDate:     "string",
	schema.KindDuration: "string",
	schema.KindUUID:     "string",
	schema.KindEmail:    "string",
	schema.KindURL:      "string",
}

// JSONSchema renders a description as a draft 2020-12 JSON Schema document.
// Referenced schemas are placed under $defs and linked with $ref; a
// reference back to the root uses "#".
func JSONSchema(desc *Description) *jsonschema.Schema {
	doc := objectSchema(desc, desc.Schema)
	doc.Version = jsonschema.Version

	if len(desc.Definitions) > 0 {
		doc.Definitions = make(jsonschema.Definitions, len(desc.Definitions))
		for _, def := range desc.Definitions {
			doc.Definitions[def.Schema] = objectSchema(def, desc.Schema)
		}
	}
	return doc
}

func objectSchema(desc *Description, root string) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:        "object",
		Title:       desc.Schema,
		Description: desc.Description,
		Properties:  jsonschema.NewProperties(),
	}

	for _, f := range desc.Fields {
		prop := typeSchema(f.Type, root)
		if f.Nullable {
			prop = &jsonschema.Schema{AnyOf: []*jsonschema.Schema{prop, {Type: "null"}}}
		}
		prop.Description = f.Description
		prop.ReadOnly = f.Computed
		prop.Default = f.Default
		if f.Alias != "" {
			prop.Extras = map[string]any{"x-alias": f.Alias}
		}
		s.Properties.Set(f.Name, prop)

		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}

	if desc.Extra == string(schema.ExtraForbid) {
		s.AdditionalProperties = jsonschema.FalseSchema
	}
	return s
}

func typeSchema(t TypeDescription, root string) *jsonschema.Schema {
	switch t.Tag {
	case TagPrimitive:
		kind := schema.Kind(t.Kind)
		return &jsonschema.Schema{Type: jsonTypes[kind], Format: jsonFormats[kind]}
	case TagFixedSequence:
		n := uint64(len(t.Elements))
		s := &jsonschema.Schema{
			Type:     "array",
			MinItems: &n,
			MaxItems: &n,
			Items:    jsonschema.FalseSchema,
		}
		for _, e := range t.Elements {
			s.PrefixItems = append(s.PrefixItems, typeSchema(e, root))
		}
		return s
	case TagSequence:
		s := &jsonschema.Schema{Type: "array"}
		if t.Elem != nil {
			s.Items = typeSchema(*t.Elem, root)
		}
		return s
	case TagNested:
		if t.Ref == root {
			return &jsonschema.Schema{Ref: "#"}
		}
		return &jsonschema.Schema{Ref: "#/$defs/" + t.Ref}
	default:
		return &jsonschema.Schema{}
	}
}
