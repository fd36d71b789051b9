// Package storage persists validated instances as JSON documents.
//
// A stored record holds the JSON mapping of an instance. Reading a record
// back yields plain data; Load re-validates it into an instance.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/artpar/modelgate/core/schema"
	"github.com/artpar/modelgate/core/validation"
)

// IDField is the field that receives the generated record identifier when
// a schema declares it and the instance leaves it unset.
const IDField = "id"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a record with the same id exists.
	ErrDuplicate = errors.New("record already exists")
)

// Record is a stored instance.
type Record struct {
	ID        string         `json:"id"`
	Schema    string         `json:"schema"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store persists validated instances.
type Store interface {
	// Save stores an instance and returns the stored record.
	Save(ctx context.Context, inst *validation.Instance) (Record, error)

	// Get retrieves a record by schema and id.
	Get(ctx context.Context, schemaName, id string) (Record, error)

	// List retrieves records of a schema, oldest first unless OrderDesc.
	List(ctx context.Context, schemaName string, opts ListOptions) ([]Record, int64, error)

	// Delete removes a record.
	Delete(ctx context.Context, schemaName, id string) error

	// Close closes the storage connection.
	Close() error
}

// ListOptions configures list queries.
type ListOptions struct {
	// Limit is the maximum number of records to return.
	Limit int

	// Offset is the number of records to skip.
	Offset int

	// Filters are top-level field-value pairs to filter by.
	Filters map[string]any

	// OrderDesc sorts newest first.
	OrderDesc bool
}

// ParseFilterValue types a textual filter value so it compares equal to the
// stored JSON number or boolean.
func ParseFilterValue(v string) any {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}

// Validator validates raw mappings against registered schemas.
type Validator interface {
	Validate(name string, raw map[string]any) (*validation.Instance, error)
}

// Load reads a record and validates it back into an instance.
func Load(ctx context.Context, store Store, v Validator, schemaName, id string) (*validation.Instance, error) {
	rec, err := store.Get(ctx, schemaName, id)
	if err != nil {
		return nil, err
	}
	inst, err := v.Validate(schemaName, rec.Data)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", schemaName, id, err)
	}
	return inst, nil
}

// assignsID reports whether a generated identifier can be written to the
// id field of s without failing re-validation.
func assignsID(s *schema.Schema) bool {
	f, ok := s.Field(IDField)
	if !ok || f.IsComputed() || f.Type.Tag != schema.TagPrimitive {
		return false
	}
	switch f.Type.Kind {
	case schema.KindString, schema.KindUUID, schema.KindAny:
		return true
	default:
		return false
	}
}
