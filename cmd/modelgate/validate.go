package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artpar/modelgate/core/formatter"
	"github.com/artpar/modelgate/core/schema"
	"github.com/artpar/modelgate/core/validation"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var (
		columns []string
		compact bool
	)

	cmd := &cobra.Command{
		Use:   "validate <schema> [file]",
		Short: "Validate JSON or YAML data against a schema",
		Long: `Validate one or more documents against a registered schema.

Input is read from the file argument, or from stdin when the file is
omitted or "-". A document is a JSON object, a JSON array of objects,
newline-delimited JSON objects, or YAML (multiple documents separated
by "---"). Every validation error is reported; the command exits non-zero
when any document fails.

Examples:
  modelgate validate package data.json --schemas ./schemas
  cat data.yaml | modelgate validate package -o json
  modelgate validate package batch.json -o table --columns name,volume`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.outputFormatter()
			if err != nil {
				return err
			}

			reg, err := opts.loadRegistry()
			if err != nil {
				return err
			}
			s, err := reg.Resolve(args[0])
			if err != nil {
				return err
			}

			path := ""
			if len(args) == 2 {
				path = args[1]
			}
			docs, err := readDocuments(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}

			engine := validation.New(reg)
			out := cmd.OutOrStdout()
			fmtOpts := formatter.FormatOptions{Columns: columns, Compact: compact}

			var valid []*validation.Instance
			failed := 0
			for _, doc := range docs {
				inst, err := engine.ValidateSchema(s, doc)
				if err != nil {
					var verr *schema.ValidationError
					if !errors.As(err, &verr) {
						return err
					}
					failed++
					if err := f.FormatErrors(out, verr); err != nil {
						return err
					}
					continue
				}
				valid = append(valid, inst)
			}

			switch {
			case len(docs) == 1 && len(valid) == 1:
				err = f.FormatRecord(out, valid[0], fmtOpts)
			case len(docs) > 1 && len(valid) > 0:
				err = f.FormatList(out, s, valid, fmtOpts)
			}
			if err != nil {
				return err
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d document(s) failed validation", failed, len(docs))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&columns, "columns", nil, "fields to include in the output")
	cmd.Flags().BoolVar(&compact, "compact", false, "compact json output")
	return cmd
}

// readDocuments reads the input at path, or r when path is empty or "-",
// and decodes it into one mapping per document.
func readDocuments(r io.Reader, path string) ([]map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(r)
		path = "stdin"
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	docs, err := decodeDocuments(data, isJSON(path, data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

func isJSON(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".ndjson", ".jsonl":
		return true
	case ".yaml", ".yml":
		return false
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// decodeDocuments decodes a JSON or YAML stream. Top-level arrays are
// flattened into their elements.
func decodeDocuments(data []byte, asJSON bool) ([]map[string]any, error) {
	var values []any
	if asJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		for {
			var v any
			err := dec.Decode(&v)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("parse json: %w", err)
			}
			values = append(values, v)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		for {
			var v any
			err := dec.Decode(&v)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("parse yaml: %w", err)
			}
			if v != nil {
				values = append(values, v)
			}
		}
	}

	var docs []map[string]any
	for _, v := range values {
		items := []any{v}
		if list, ok := v.([]any); ok {
			items = list
		}
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("document %d: expected an object, got %T", len(docs)+1, item)
			}
			docs = append(docs, m)
		}
	}

	if len(docs) == 0 {
		return nil, errors.New("no documents found")
	}
	return docs, nil
}
