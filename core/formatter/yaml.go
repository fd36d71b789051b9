package formatter

import (
	"fmt"
	"io"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	"github.com/artpar/modelgate/core/schema"
	"github.com/artpar/modelgate/core/validation"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Name returns the formatter name.
func (f *YAMLFormatter) Name() string {
	return "yaml"
}

// Description returns the formatter description.
func (f *YAMLFormatter) Description() string {
	return "YAML output format"
}

// FormatList formats a list of instances as YAML.
func (f *YAMLFormatter) FormatList(w io.Writer, s *schema.Schema, instances []*validation.Instance, opts FormatOptions) error {
	data := make([]any, len(instances))
	for i, inst := range instances {
		data[i] = filterRecord(inst, opts.Columns)
	}

	output := orderedmap.New[string, any]()
	output.Set("schema", s.Name())
	output.Set("count", len(instances))
	output.Set("data", data)

	return f.encode(w, output)
}

// FormatRecord formats a single instance as YAML.
func (f *YAMLFormatter) FormatRecord(w io.Writer, inst *validation.Instance, opts FormatOptions) error {
	output := orderedmap.New[string, any]()
	if inst == nil {
		output.Set("data", nil)
		return f.encode(w, output)
	}

	output.Set("schema", inst.Schema().Name())
	output.Set("data", filterRecord(inst, opts.Columns))
	return f.encode(w, output)
}

// FormatErrors formats validation errors as YAML.
func (f *YAMLFormatter) FormatErrors(w io.Writer, verr *schema.ValidationError) error {
	return f.encode(w, encodeErrors(verr))
}

// FormatError formats an error as YAML.
func (f *YAMLFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	return f.encode(w, output)
}

// encode writes YAML to the writer.
func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(data)
}

func init() {
	if err := Register(NewYAMLFormatter()); err != nil {
		fmt.Printf("failed to register yaml formatter: %v\n", err)
	}
}
