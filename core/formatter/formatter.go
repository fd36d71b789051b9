// Package formatter serializes validated instances and renders instances
// and validation errors for display.
//
// ToMapping, ToJSONMapping, ToText and Decode convert a single instance.
// The Formatter implementations (table, json, yaml) are registered in
// DefaultRegistry and used by the command line.
package formatter

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/artpar/modelgate/core/schema"
	"github.com/artpar/modelgate/core/validation"
)

// Formatter renders instances and errors in a specific output format.
type Formatter interface {
	// Name returns the formatter name (e.g., "table", "json", "yaml").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// FormatList formats instances of one schema.
	FormatList(w io.Writer, s *schema.Schema, instances []*validation.Instance, opts FormatOptions) error

	// FormatRecord formats a single instance.
	FormatRecord(w io.Writer, inst *validation.Instance, opts FormatOptions) error

	// FormatErrors formats the field errors of a failed validation.
	FormatErrors(w io.Writer, verr *schema.ValidationError) error

	// FormatError formats any other error.
	FormatError(w io.Writer, err error) error
}

// FormatOptions configures formatting behavior.
type FormatOptions struct {
	// Columns specifies which fields to include (nil = all).
	Columns []string

	// NoHeader disables header row for tabular formats.
	NoHeader bool

	// Compact minimizes whitespace (for json).
	Compact bool

	// MaxWidth truncates long values (0 = no limit).
	MaxWidth int
}

// Registry manages registered formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
	defaultFmt string
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		formatters: make(map[string]Formatter),
		defaultFmt: "table",
	}
}

// Register adds a formatter to the registry.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Name()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}

	r.formatters[f.Name()] = f
	return nil
}

// Get returns a formatter by name.
func (r *Registry) Get(name string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[name]
	return f, ok
}

// Default returns the default formatter.
func (r *Registry) Default() Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[r.defaultFmt]
	if !ok {
		// Fallback to the first name in order
		names := r.names()
		if len(names) == 0 {
			return nil
		}
		return r.formatters[names[0]]
	}
	return f
}

// SetDefault sets the default formatter.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[name]; !exists {
		return fmt.Errorf("formatter %q not registered", name)
	}

	r.defaultFmt = name
	return nil
}

// List returns all registered formatter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(f Formatter) error {
	return DefaultRegistry.Register(f)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, bool) {
	return DefaultRegistry.Get(name)
}

// Default returns the default formatter from the default registry.
func Default() Formatter {
	return DefaultRegistry.Default()
}

// List returns all formatter names from the default registry.
func List() []string {
	return DefaultRegistry.List()
}

// Render formats inst with the named formatter, falling back to the
// default formatter when name is empty.
func Render(w io.Writer, name string, inst *validation.Instance, opts FormatOptions) error {
	f, err := lookup(name)
	if err != nil {
		return err
	}
	return f.FormatRecord(w, inst, opts)
}

// RenderError formats err with the named formatter. Validation errors are
// rendered field by field.
func RenderError(w io.Writer, name string, err error) error {
	f, lerr := lookup(name)
	if lerr != nil {
		return lerr
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return f.FormatErrors(w, verr)
	}
	return f.FormatError(w, err)
}

func lookup(name string) (Formatter, error) {
	if name == "" {
		if f := Default(); f != nil {
			return f, nil
		}
		return nil, fmt.Errorf("no formatters registered")
	}
	f, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %v)", name, List())
	}
	return f, nil
}

// selectFields returns the field names to render for an instance, in
// declaration order, limited to columns when given.
func selectFields(inst *validation.Instance, columns []string) []string {
	if len(columns) == 0 {
		return inst.Fields()
	}
	var names []string
	for _, col := range columns {
		if inst.Has(col) {
			names = append(names, col)
		}
	}
	return names
}
