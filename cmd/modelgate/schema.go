package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artpar/modelgate/core/export"
)

// Export formats.
const (
	exportDescription = "description"
	exportJSONSchema  = "jsonschema"
	exportOpenAPI     = "openapi"
)

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and export registered schemas",
	}
	cmd.AddCommand(newSchemaListCmd(opts), newSchemaExportCmd(opts))
	return cmd
}

func newSchemaListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.loadRegistry()
			if err != nil {
				return err
			}

			type entry struct {
				Name        string   `json:"name" yaml:"name"`
				Description string   `json:"description,omitempty" yaml:"description,omitempty"`
				Fields      int      `json:"fields" yaml:"fields"`
				References  []string `json:"references,omitempty" yaml:"references,omitempty"`
			}
			var entries []entry
			for _, s := range reg.List() {
				entries = append(entries, entry{
					Name:        s.Name(),
					Description: s.Description(),
					Fields:      s.Len(),
					References:  s.References(),
				})
			}

			out := cmd.OutOrStdout()
			switch opts.output {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			case "yaml":
				return yaml.NewEncoder(out).Encode(entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(out, "No schemas registered.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFIELDS\tREFERENCES\tDESCRIPTION")
			for _, e := range entries {
				refs := "-"
				if len(e.References) > 0 {
					refs = strings.Join(e.References, ",")
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Name, e.Fields, refs, e.Description)
			}
			return tw.Flush()
		},
	}
}

func newSchemaExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format      string
		title       string
		description string
		apiVersion  string
	)

	cmd := &cobra.Command{
		Use:   "export [schema...]",
		Short: "Export schema descriptions, JSON Schema or OpenAPI",
		Long: `Export the structure of registered schemas.

Formats:
  description  structural description of one schema and its references
  jsonschema   JSON Schema (draft 2020-12) for one schema
  openapi      OpenAPI 3 document for the named schemas (all when omitted)

Output is JSON unless --output yaml is given.

Examples:
  modelgate schema export package --format jsonschema
  modelgate schema export --format openapi -o yaml > openapi.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.loadRegistry()
			if err != nil {
				return err
			}

			var doc any
			switch format {
			case exportDescription, exportJSONSchema:
				if len(args) != 1 {
					return fmt.Errorf("%s export needs exactly one schema name", format)
				}
				desc, err := export.Describe(reg, args[0])
				if err != nil {
					return err
				}
				doc = desc
				if format == exportJSONSchema {
					doc = export.JSONSchema(desc)
				}
			case exportOpenAPI:
				names := args
				if len(names) == 0 {
					names = reg.Names()
				}
				doc, err = export.OpenAPIDocument(reg, export.Info{
					Title:       title,
					Description: description,
					Version:     apiVersion,
				}, names...)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown export format %q (available: %s, %s, %s)",
					format, exportDescription, exportJSONSchema, exportOpenAPI)
			}

			return writeDocument(cmd.OutOrStdout(), doc, opts.output == "yaml")
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", exportDescription, "export format (description, jsonschema, openapi)")
	cmd.Flags().StringVar(&title, "title", "", "OpenAPI title")
	cmd.Flags().StringVar(&description, "description", "", "OpenAPI description")
	cmd.Flags().StringVar(&apiVersion, "api-version", "", "OpenAPI version")
	return cmd
}

// writeDocument writes doc as indented JSON, or as YAML with the key order
// of its JSON form.
func writeDocument(w io.Writer, doc any, asYAML bool) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if !asYAML {
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("convert document: %w", err)
	}
	resetStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// resetStyle drops the flow and quoting styles inherited from JSON.
func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}
