package export

import (
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/artpar/modelgate/core/registry"
	"github.com/artpar/modelgate/core/schema"
)

const componentPrefix = "#/components/schemas/"

// ValidationErrorComponent names the component schema describing a
// validation failure response.
const ValidationErrorComponent = "ValidationError"

// OpenAPISchemas returns OpenAPI 3.0 component schemas for the named schemas
// and everything they reference. Nested fields point to
// "#/components/schemas/<name>".
func OpenAPISchemas(resolver registry.Resolver, names ...string) (openapi3.Schemas, error) {
	out := make(openapi3.Schemas)
	for _, name := range names {
		desc, err := Describe(resolver, name)
		if err != nil {
			return nil, err
		}
		out[desc.Schema] = openapi3.NewSchemaRef("", openAPIObject(desc))
		for _, def := range desc.Definitions {
			if _, ok := out[def.Schema]; !ok {
				out[def.Schema] = openapi3.NewSchemaRef("", openAPIObject(def))
			}
		}
	}
	return out, nil
}

// Info describes the generated API document.
type Info struct {
	Title       string
	Description string
	Version     string
}

// OpenAPIDocument generates an OpenAPI 3.0 document for the HTTP surface
// serving the named schemas: validation and record endpoints per schema
// plus their component schemas.
func OpenAPIDocument(resolver registry.Resolver, info Info, names ...string) (*openapi3.T, error) {
	schemas, err := OpenAPISchemas(resolver, names...)
	if err != nil {
		return nil, err
	}
	schemas[ValidationErrorComponent] = openapi3.NewSchemaRef("", validationErrorSchema())

	if info.Title == "" {
		info.Title = "modelgate"
	}
	if info.Version == "" {
		info.Version = "1.0.0"
	}

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       info.Title,
			Description: info.Description,
			Version:     info.Version,
		},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: schemas},
	}

	for _, name := range names {
		addSchemaPaths(doc, name)
	}
	return doc, nil
}

func addSchemaPaths(doc *openapi3.T, name string) {
	ref := openapi3.NewSchemaRef(componentPrefix+name, nil)
	errRef := openapi3.NewSchemaRef(componentPrefix+ValidationErrorComponent, nil)

	envelope := openapi3.NewObjectSchema().
		WithProperty("schema", openapi3.NewStringSchema()).
		WithPropertyRef("data", ref)

	validate := &openapi3.Operation{
		Tags:        []string{name},
		Summary:     fmt.Sprintf("Validate a %s", name),
		OperationID: "validate_" + name,
		RequestBody: &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(ref),
		},
		Responses: openapi3.NewResponses(
			openapi3.WithStatus(http.StatusOK, response("Validated instance", envelope)),
			openapi3.WithStatus(http.StatusUnprocessableEntity, responseRef("Validation failed", errRef)),
			openapi3.WithStatus(http.StatusNotFound, response("Unknown schema", nil)),
		),
	}
	doc.Paths.Set("/schemas/"+name+"/validate", &openapi3.PathItem{Post: validate})

	record := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewUUIDSchema()).
		WithProperty("schema", openapi3.NewStringSchema()).
		WithProperty("created_at", openapi3.NewDateTimeSchema()).
		WithPropertyRef("data", ref)

	create := &openapi3.Operation{
		Tags:        []string{name},
		Summary:     fmt.Sprintf("Validate and store a %s", name),
		OperationID: "create_" + name,
		RequestBody: &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(ref),
		},
		Responses: openapi3.NewResponses(
			openapi3.WithStatus(http.StatusCreated, response("Stored record", record)),
			openapi3.WithStatus(http.StatusUnprocessableEntity, responseRef("Validation failed", errRef)),
		),
	}
	doc.Paths.Set("/schemas/"+name+"/records", &openapi3.PathItem{Post: create})

	get := &openapi3.Operation{
		Tags:        []string{name},
		Summary:     fmt.Sprintf("Get a stored %s", name),
		OperationID: "get_" + name,
		Parameters: openapi3.Parameters{
			{Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewUUIDSchema())},
		},
		Responses: openapi3.NewResponses(
			openapi3.WithStatus(http.StatusOK, response("Stored record", record)),
			openapi3.WithStatus(http.StatusNotFound, response("Record not found", nil)),
		),
	}
	doc.Paths.Set("/schemas/"+name+"/records/{id}", &openapi3.PathItem{Get: get})
}

func response(description string, body *openapi3.Schema) *openapi3.ResponseRef {
	r := openapi3.NewResponse().WithDescription(description)
	if body != nil {
		r = r.WithJSONSchema(body)
	}
	return &openapi3.ResponseRef{Value: r}
}

func responseRef(description string, body *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(description).WithJSONSchemaRef(body)}
}

func validationErrorSchema() *openapi3.Schema {
	fieldError := openapi3.NewObjectSchema().
		WithProperty("path", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("kind", openapi3.NewStringSchema().WithEnum(
			string(schema.MissingField), string(schema.InvalidFormat), string(schema.ArityMismatch),
			string(schema.ValueError), string(schema.ModelError), string(schema.ExtraField),
		)).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("expected", openapi3.NewStringSchema()).
		WithProperty("input", &openapi3.Schema{})
	fieldError.Required = []string{"path", "kind", "message"}

	s := openapi3.NewObjectSchema().
		WithProperty("schema", openapi3.NewStringSchema()).
		WithProperty("errors", openapi3.NewArraySchema().WithItems(fieldError))
	s.Required = []string{"schema", "errors"}
	return s
}

func openAPIObject(desc *Description) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Title = desc.Schema
	s.Description = desc.Description

	for _, f := range desc.Fields {
		prop := openAPIType(f.Type)
		if f.Nullable || f.Computed || f.Description != "" || f.Alias != "" || f.Default != nil {
			// $ref siblings are ignored in 3.0, so references are wrapped
			if prop.Ref != "" {
				prop = openapi3.NewSchemaRef("", &openapi3.Schema{AllOf: openapi3.SchemaRefs{prop}})
			}
			prop.Value.Nullable = f.Nullable
			prop.Value.ReadOnly = f.Computed
			prop.Value.Description = f.Description
			prop.Value.Default = f.Default
			if f.Alias != "" {
				prop.Value.Extensions = map[string]any{"x-alias": f.Alias}
			}
		}
		s.Properties[f.Name] = prop

		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}

	if desc.Extra == string(schema.ExtraForbid) {
		s.WithoutAdditionalProperties()
	}
	return s
}

func openAPIType(t TypeDescription) *openapi3.SchemaRef {
	switch t.Tag {
	case TagPrimitive:
		kind := schema.Kind(t.Kind)
		s := &openapi3.Schema{Format: jsonFormats[kind]}
		if typ, ok := jsonTypes[kind]; ok {
			s.Type = &openapi3.Types{typ}
		}
		return openapi3.NewSchemaRef("", s)
	case TagFixedSequence:
		// 3.0 has no tuples: fix the length and allow any element type
		items := make(openapi3.SchemaRefs, len(t.Elements))
		for i, e := range t.Elements {
			items[i] = openAPIType(e)
		}
		s := openapi3.NewArraySchema().WithMinItems(int64(len(items))).WithMaxItems(int64(len(items)))
		s.Items = openapi3.NewSchemaRef("", &openapi3.Schema{AnyOf: items})
		return openapi3.NewSchemaRef("", s)
	case TagSequence:
		s := openapi3.NewArraySchema()
		if t.Elem != nil {
			s.Items = openAPIType(*t.Elem)
		} else {
			s.Items = openapi3.NewSchemaRef("", &openapi3.Schema{})
		}
		return openapi3.NewSchemaRef("", s)
	case TagNested:
		return openapi3.NewSchemaRef(componentPrefix+t.Ref, nil)
	default:
		return openapi3.NewSchemaRef("", &openapi3.Schema{})
	}
}
