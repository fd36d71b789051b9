/*
Package schema defines the core types for declarative model definitions.

A schema is an ordered list of field descriptors plus optional model-level
validators. Schemas are built once, registered, and never mutated afterwards.
Validation against a schema is performed by the validation package.

# Building a Schema

Schemas are assembled with a builder:

	delivery := schema.New("delivery").
		Field("timestamp", schema.Datetime(), schema.Required()).
		Field("dimensions", schema.FixedSequence(schema.Int(), schema.Int(), schema.Int()), schema.Required()).
		Computed("volume", schema.Int(), func(v schema.Values) (any, error) {
			d := v["dimensions"].([]any)
			return d[0].(int64) * d[1].(int64) * d[2].(int64), nil
		}).
		MustBuild()

# Field Types

A TypeSpec is one of:

  - Primitive:     string, int, float, bool, datetime, date, duration, uuid, email, url, any
  - FixedSequence: ordered sequence with one spec per position, e.g. (int, int, int)
  - Sequence:      homogeneous list of any length, e.g. [string]
  - Nested:        reference to another registered schema by name, e.g. ref:delivery

Type strings in that grammar are parsed with ParseType.

# Missing Values

For every field exactly one of the following decides what happens when the
input does not carry it:

  - Required:       a missing_field error is reported
  - Default:        the static default or the default factory result is used
  - Computed:       the value is derived after all other fields validate

Fields with none of these are optional and simply absent from the result.

# Errors

Field failures are reported as FieldError values collected into a single
ValidationError; nothing is short-circuited.
*/
package schema
