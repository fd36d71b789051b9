// Package registry maps schema names to their definitions.
// Registration is append-only; lookups are safe for concurrent use.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/modelgate/core/schema"
)

var (
	// ErrDuplicateSchema is returned when a schema name is registered twice.
	ErrDuplicateSchema = errors.New("schema already registered")

	// ErrUnknownSchema is returned when a name does not resolve.
	ErrUnknownSchema = errors.New("unknown schema")
)

// Resolver looks up schemas by name.
type Resolver interface {
	Resolve(name string) (*schema.Schema, error)
}

// Registry holds registered schemas.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*schema.Schema
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		schemas: make(map[string]*schema.Schema),
	}
}

// Register adds a schema. It fails with ErrDuplicateSchema if the name is
// taken.
func (r *Registry) Register(s *schema.Schema) error {
	if s == nil {
		return fmt.Errorf("register: nil schema")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[s.Name()]; exists {
		return fmt.Errorf("register %q: %w", s.Name(), ErrDuplicateSchema)
	}
	r.schemas[s.Name()] = s
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(s *schema.Schema) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// RegisterAll registers schemas in order and stops at the first error.
func (r *Registry) RegisterAll(schemas ...*schema.Schema) error {
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the schema registered under name. It fails with
// ErrUnknownSchema otherwise.
func (r *Registry) Resolve(name string) (*schema.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", name, ErrUnknownSchema)
	}
	return s, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.schemas[name]
	return ok
}

// Names returns the registered schema names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered schemas sorted by name.
func (r *Registry) List() []*schema.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*schema.Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schemas)
}

// CheckReferences verifies that every nested schema reference resolves.
func (r *Registry) CheckReferences() error {
	var missing []MissingReference
	for _, s := range r.List() {
		for _, f := range s.Fields() {
			for _, ref := range f.Type.References() {
				if !r.Has(ref) {
					missing = append(missing, MissingReference{Schema: s.Name(), Field: f.Name, Target: ref})
				}
			}
		}
	}
	if len(missing) > 0 {
		return &ReferenceError{Missing: missing}
	}
	return nil
}

// MissingReference is a nested type pointing at an unregistered schema.
type MissingReference struct {
	Schema string
	Field  string
	Target string
}

// ReferenceError lists unresolved schema references.
type ReferenceError struct {
	Missing []MissingReference
}

func (e *ReferenceError) Error() string {
	msgs := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		msgs[i] = fmt.Sprintf("%s.%s references unknown schema %q", m.Schema, m.Field, m.Target)
	}
	return fmt.Sprintf("unresolved schema references:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Unwrap makes errors.Is(err, ErrUnknownSchema) hold.
func (e *ReferenceError) Unwrap() error { return ErrUnknownSchema }
