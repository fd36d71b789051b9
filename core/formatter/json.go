package formatter

import (
	"encoding/json"
	"fmt"
	"io"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/artpar/modelgate/core/schema"
	"github.com/artpar/modelgate/core/validation"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Description returns the formatter description.
func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// FormatList formats a list of instances as JSON.
func (f *JSONFormatter) FormatList(w io.Writer, s *schema.Schema, instances []*validation.Instance, opts FormatOptions) error {
	data := make([]any, len(instances))
	for i, inst := range instances {
		data[i] = filterRecord(inst, opts.Columns)
	}

	output := orderedmap.New[string, any]()
	output.Set("schema", s.Name())
	output.Set("count", len(instances))
	output.Set("data", data)

	return f.encode(w, output, opts.Compact)
}

// FormatRecord formats a single instance as JSON.
func (f *JSONFormatter) FormatRecord(w io.Writer, inst *validation.Instance, opts FormatOptions) error {
	output := orderedmap.New[string, any]()
	if inst == nil {
		output.Set("data", nil)
		return f.encode(w, output, opts.Compact)
	}

	output.Set("schema", inst.Schema().Name())
	output.Set("data", filterRecord(inst, opts.Columns))
	return f.encode(w, output, opts.Compact)
}

// FormatErrors formats validation errors as JSON.
func (f *JSONFormatter) FormatErrors(w io.Writer, verr *schema.ValidationError) error {
	return f.encode(w, encodeErrors(verr), false)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	return f.encode(w, output, false)
}

// encode writes JSON to the writer.
func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// filterRecord returns the ordered JSON form of inst limited to columns.
func filterRecord(inst *validation.Instance, columns []string) *orderedmap.OrderedMap[string, any] {
	full := Ordered(inst)
	if len(columns) == 0 {
		return full
	}

	result := orderedmap.New[string, any]()
	for _, name := range selectFields(inst, columns) {
		if v, ok := full.Get(name); ok {
			result.Set(name, v)
		}
	}
	return result
}

// encodeErrors builds the wire form shared by the json and yaml formatters.
// Inputs are encoded so that typed values stay readable.
func encodeErrors(verr *schema.ValidationError) *orderedmap.OrderedMap[string, any] {
	items := make([]any, len(verr.Errors))
	for i, fe := range verr.Errors {
		item := orderedmap.New[string, any]()
		item.Set("loc", fe.Location())
		item.Set("kind", string(fe.Kind))
		item.Set("message", fe.Message)
		if fe.Expected != "" {
			item.Set("expected", fe.Expected)
		}
		if fe.Input != nil {
			item.Set("input", encodeDynamic(fe.Input, func(n *validation.Instance) any { return Ordered(n) }))
		}
		items[i] = item
	}

	output := orderedmap.New[string, any]()
	output.Set("schema", verr.Schema)
	output.Set("error", fmt.Sprintf("%d validation error(s)", len(verr.Errors)))
	output.Set("errors", items)
	return output
}

func init() {
	if err := Register(NewJSONFormatter()); err != nil {
		fmt.Printf("failed to register json formatter: %v\n", err)
	}
}
