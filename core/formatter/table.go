package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/artpar/modelgate/core/schema"
	"github.com/artpar/modelgate/core/validation"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Aligned text table output"
}

// FormatList formats a list of instances as a table.
func (f *TableFormatter) FormatList(w io.Writer, s *schema.Schema, instances []*validation.Instance, opts FormatOptions) error {
	if len(instances) == 0 {
		fmt.Fprintln(w, "No records found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	columns := f.resolveColumns(s, opts.Columns)

	if !opts.NoHeader {
		var headers []string
		for _, col := range columns {
			headers = append(headers, strings.ToUpper(col))
		}
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
	}

	for _, inst := range instances {
		record := ToJSONMapping(inst)
		var values []string
		for _, col := range columns {
			values = append(values, f.formatValue(record[col], opts.MaxWidth))
		}
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}

	return tw.Flush()
}

// FormatRecord formats a single instance as key-value pairs.
func (f *TableFormatter) FormatRecord(w io.Writer, inst *validation.Instance, opts FormatOptions) error {
	if inst == nil {
		fmt.Fprintln(w, "Record not found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	record := ToJSONMapping(inst)
	for _, col := range selectFields(inst, opts.Columns) {
		label := f.formatLabel(col)
		val := f.formatValue(record[col], 0) // No truncation for detail view
		fmt.Fprintf(tw, "%s:\t%s\n", label, val)
	}

	return tw.Flush()
}

// FormatErrors formats validation errors, one row per field error.
func (f *TableFormatter) FormatErrors(w io.Writer, verr *schema.ValidationError) error {
	fmt.Fprintf(w, "%s: %d validation error(s)\n", verr.Schema, len(verr.Errors))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tKIND\tMESSAGE\tINPUT")
	for _, fe := range verr.Errors {
		input := "-"
		if fe.Input != nil {
			input = f.formatValue(encodeDynamic(fe.Input, func(n *validation.Instance) any { return ToJSONMapping(n) }), 40)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", fe.Location(), fe.Kind, fe.Message, input)
	}
	return tw.Flush()
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

// resolveColumns determines which columns to display.
func (f *TableFormatter) resolveColumns(s *schema.Schema, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}

	var columns []string
	for _, field := range s.Fields() {
		columns = append(columns, field.Name)
	}
	return columns
}

// formatLabel formats a field name as a label.
func (f *TableFormatter) formatLabel(name string) string {
	// Convert snake_case to Title Case
	words := strings.Split(name, "_")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// formatValue formats a value for display.
func (f *TableFormatter) formatValue(val any, maxWidth int) string {
	if val == nil {
		return "-"
	}

	var str string
	switch v := val.(type) {
	case string:
		str = v
	case bool:
		if v {
			str = "yes"
		} else {
			str = "no"
		}
	case []byte:
		str = "[binary]"
	case float64:
		// Check if it's a whole number
		if v == float64(int64(v)) {
			str = fmt.Sprintf("%d", int64(v))
		} else {
			str = fmt.Sprintf("%.2f", v)
		}
	default:
		b, _ := json.Marshal(v)
		str = string(b)
	}

	// Truncate if needed
	if maxWidth > 3 && len(str) > maxWidth {
		str = str[:maxWidth-3] + "..."
	}

	return str
}

func init() {
	if err := Register(NewTableFormatter()); err != nil {
		fmt.Printf("failed to register table formatter: %v\n", err)
	}
}
