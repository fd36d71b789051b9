package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/go-cmp/cmp"

	"github.com/artpar/modelgate/bootstrap"
	"github.com/artpar/modelgate/core/registry"
	"github.com/artpar/modelgate/core/storage"
	"github.com/artpar/modelgate/core/validation"
)

const testSchemas = `
schema: delivery
fields:
  - name: timestamp
    type: datetime
    required: true
  - name: dimensions
    type: "(int, int, int)"
    required: true
  - name: volume
    type: int
    computed: "dimensions[0] * dimensions[1] * dimensions[2]"
---
schema: package
description: A shipped package
fields:
  - name: id
    type: uuid
  - name: name
    type: string
    required: true
  - name: delivery
    type: ref
    to: delivery
`

// testEnv writes the test schemas and returns the flags that select them.
func testEnv(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "schemas.yaml")
	if err := os.WriteFile(path, []byte(testSchemas), 0o644); err != nil {
		t.Fatalf("write schemas: %v", err)
	}
	return []string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"--schemas", path,
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "modelgate dev") {
		t.Errorf("output = %q, want version line", out)
	}
}

func TestValidate_File(t *testing.T) {
	input := writeFile(t, "delivery.json", `{"timestamp":"2024-03-01T10:00:00Z","dimensions":[10,20,30]}`)

	args := append([]string{"validate", "delivery", input, "-o", "json", "--compact"}, testEnv(t)...)
	out, err := run(t, "", args...)
	if err != nil {
		t.Fatalf("validate error = %v\n%s", err, out)
	}

	want := `{"schema":"delivery","data":{"timestamp":"2024-03-01T10:00:00Z","dimensions":[10,20,30],"volume":6000}}` + "\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_YAMLStdin(t *testing.T) {
	stdin := "name: box\ndelivery:\n  timestamp: \"2024-03-01T10:00:00Z\"\n  dimensions: [1, 2, 3]\n"

	args := append([]string{"validate", "package", "-o", "json"}, testEnv(t)...)
	out, err := run(t, stdin, args...)
	if err != nil {
		t.Fatalf("validate error = %v\n%s", err, out)
	}

	var got struct {
		Schema string `json:"schema"`
		Data   struct {
			Name     string `json:"name"`
			Delivery struct {
				Volume int `json:"volume"`
			} `json:"delivery"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if got.Schema != "package" || got.Data.Name != "box" || got.Data.Delivery.Volume != 6 {
		t.Errorf("unexpected output: %+v", got)
	}
}

func TestValidate_Errors(t *testing.T) {
	args := append([]string{"validate", "delivery", "-", "-o", "json"}, testEnv(t)...)
	out, err := run(t, `{"dimensions":[1,2]}`, args...)
	if err == nil {
		t.Fatal("expected error for invalid document")
	}
	if !strings.Contains(err.Error(), "1 of 1 document(s) failed validation") {
		t.Errorf("error = %v", err)
	}

	var got struct {
		Errors []struct {
			Loc  string `json:"loc"`
			Kind string `json:"kind"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	kinds := map[string]string{}
	for _, e := range got.Errors {
		kinds[e.Loc] = e.Kind
	}
	want := map[string]string{"timestamp": "missing_field", "dimensions": "arity_mismatch"}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_Batch(t *testing.T) {
	input := writeFile(t, "batch.json", `[
		{"timestamp":"2024-03-01T10:00:00Z","dimensions":[1,2,3]},
		{"timestamp":"yesterday","dimensions":[1,2,3]},
		{"timestamp":"2024-03-02T10:00:00Z","dimensions":[2,2,2]}
	]`)

	args := append([]string{"validate", "delivery", input, "-o", "table"}, testEnv(t)...)
	out, err := run(t, "", args...)
	if err == nil || !strings.Contains(err.Error(), "1 of 3 document(s)") {
		t.Fatalf("error = %v, want 1 of 3 failed", err)
	}
	for _, want := range []string{"LOCATION", "invalid_format", "VOLUME", "6", "8"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidate_Failures(t *testing.T) {
	env := func(t *testing.T) []string { return testEnv(t) }

	t.Run("unknown schema", func(t *testing.T) {
		_, err := run(t, "{}", append([]string{"validate", "ghost"}, env(t)...)...)
		if !errors.Is(err, registry.ErrUnknownSchema) {
			t.Errorf("error = %v, want ErrUnknownSchema", err)
		}
	})

	t.Run("unknown output", func(t *testing.T) {
		_, err := run(t, "{}", append([]string{"validate", "delivery", "-o", "xml"}, env(t)...)...)
		if err == nil || !strings.Contains(err.Error(), "unknown output format") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("no schemas", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		_, err := run(t, "{}", "validate", "delivery", "--config", missing)
		if err == nil || !strings.Contains(err.Error(), "no schemas configured") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := run(t, "", append([]string{"validate", "delivery", "/nonexistent.json"}, env(t)...)...)
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("error = %v, want not exist", err)
		}
	})

	t.Run("bad arity", func(t *testing.T) {
		if _, err := run(t, "", "validate"); err == nil {
			t.Error("expected argument error")
		}
	})
}

func TestDecodeDocuments(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		asJSON  bool
		want    int
		wantErr bool
	}{
		{"json object", `{"a":1}`, true, 1, false},
		{"json array", `[{"a":1},{"a":2}]`, true, 2, false},
		{"ndjson", "{\"a\":1}\n{\"a\":2}\n{\"a\":3}\n", true, 3, false},
		{"yaml documents", "a: 1\n---\na: 2\n", false, 2, false},
		{"yaml list", "- a: 1\n- a: 2\n", false, 2, false},
		{"json scalar", `42`, true, 0, true},
		{"array of scalars", `[1,2]`, true, 0, true},
		{"broken json", `{"a":`, true, 0, true},
		{"empty", "", false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := decodeDocuments([]byte(tt.data), tt.asJSON)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", docs)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeDocuments() error = %v", err)
			}
			if len(docs) != tt.want {
				t.Errorf("len(docs) = %d, want %d", len(docs), tt.want)
			}
		})
	}
}

func TestDecodeDocuments_JSONNumbers(t *testing.T) {
	docs, err := decodeDocuments([]byte(`{"n":9007199254740993}`), true)
	if err != nil {
		t.Fatalf("decodeDocuments() error = %v", err)
	}
	if got := docs[0]["n"]; got != json.Number("9007199254740993") {
		t.Errorf("n = %#v, want exact json.Number", got)
	}
}

func TestIsJSON(t *testing.T) {
	tests := []struct {
		path string
		data string
		want bool
	}{
		{"a.json", "a: 1", true},
		{"a.yml", "{}", false},
		{"stdin", "  {\"a\":1}", true},
		{"stdin", "[1]", true},
		{"stdin", "a: 1", false},
	}
	for _, tt := range tests {
		if got := isJSON(tt.path, []byte(tt.data)); got != tt.want {
			t.Errorf("isJSON(%q, %q) = %v, want %v", tt.path, tt.data, got, tt.want)
		}
	}
}

func TestSchemaList(t *testing.T) {
	out, err := run(t, "", append([]string{"schema", "list", "-o", "json"}, testEnv(t)...)...)
	if err != nil {
		t.Fatalf("schema list error = %v", err)
	}

	var entries []struct {
		Name       string   `json:"name"`
		Fields     int      `json:"fields"`
		References []string `json:"references"`
	}
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(entries) != 2 || entries[0].Name != "delivery" || entries[1].Name != "package" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Fields != 3 {
		t.Errorf("delivery fields = %d, want 3", entries[0].Fields)
	}
	if diff := cmp.Diff([]string{"delivery"}, entries[1].References); diff != "" {
		t.Errorf("package references mismatch (-want +got):\n%s", diff)
	}

	out, err = run(t, "", append([]string{"schema", "list"}, testEnv(t)...)...)
	if err != nil {
		t.Fatalf("schema list error = %v", err)
	}
	for _, want := range []string{"NAME", "A shipped package"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestSchemaExport_JSONSchema(t *testing.T) {
	args := append([]string{"schema", "export", "package", "--format", "jsonschema"}, testEnv(t)...)
	out, err := run(t, "", args...)
	if err != nil {
		t.Fatalf("export error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if doc["$schema"] != "https://json-schema.org/draft/2020-12/schema" {
		t.Errorf("$schema = %v", doc["$schema"])
	}
	defs, _ := doc["$defs"].(map[string]any)
	if _, ok := defs["delivery"]; !ok {
		t.Errorf("$defs missing delivery: %v", doc["$defs"])
	}
}

func TestSchemaExport_OpenAPI(t *testing.T) {
	args := append([]string{"schema", "export", "--format", "openapi", "--title", "Shipping"}, testEnv(t)...)
	out, err := run(t, "", args...)
	if err != nil {
		t.Fatalf("export error = %v", err)
	}

	doc, err := openapi3.NewLoader().LoadFromData([]byte(out))
	if err != nil {
		t.Fatalf("load openapi: %v", err)
	}
	if doc.Info.Title != "Shipping" {
		t.Errorf("title = %s, want Shipping", doc.Info.Title)
	}
	if doc.Components.Schemas["package"] == nil {
		t.Error("components missing package")
	}

	args = append([]string{"schema", "export", "--format", "openapi", "-o", "yaml"}, testEnv(t)...)
	out, err = run(t, "", args...)
	if err != nil {
		t.Fatalf("export yaml error = %v", err)
	}
	if !strings.Contains(out, "\nopenapi: 3.0.3\n") {
		t.Errorf("yaml output missing openapi version:\n%s", out)
	}
	if _, err := openapi3.NewLoader().LoadFromData([]byte(out)); err != nil {
		t.Errorf("load yaml openapi: %v", err)
	}
}

func TestSchemaExport_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"description needs a name", []string{"schema", "export"}},
		{"unknown format", []string{"schema", "export", "package", "--format", "avro"}},
		{"unknown schema", []string{"schema", "export", "ghost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, "", append(tt.args, testEnv(t)...)...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRecordsCommands(t *testing.T) {
	env := testEnv(t)
	dbPath := filepath.Join(t.TempDir(), "records.db")

	reg, err := bootstrap.LoadRegistry([]string{env[3]})
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	engine := validation.New(reg)
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	var ids []string
	for _, name := range []string{"box", "crate"} {
		inst, err := engine.Validate("package", map[string]any{"name": name})
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		rec, err := store.Save(context.Background(), inst)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		ids = append(ids, rec.ID)
	}
	store.Close()

	withDB := func(args ...string) []string {
		return append(append(args, "--db", dbPath), env...)
	}

	out, err := run(t, "", withDB("records", "list", "package", "-o", "json")...)
	if err != nil {
		t.Fatalf("records list error = %v", err)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if list.Count != 2 {
		t.Errorf("count = %d, want 2", list.Count)
	}

	out, err = run(t, "", withDB("records", "list", "package", "--filter", "name=crate", "--limit", "1")...)
	if err != nil {
		t.Fatalf("records list filtered error = %v", err)
	}
	if !strings.Contains(out, "crate") || strings.Contains(out, "box") {
		t.Errorf("filtered output:\n%s", out)
	}

	out, err = run(t, "", withDB("records", "get", "package", ids[0], "-o", "json")...)
	if err != nil {
		t.Fatalf("records get error = %v", err)
	}
	if !strings.Contains(out, ids[0]) || !strings.Contains(out, `"name": "box"`) {
		t.Errorf("get output:\n%s", out)
	}

	if _, err := run(t, "", withDB("records", "delete", "package", ids[0])...); err != nil {
		t.Fatalf("records delete error = %v", err)
	}

	_, err = run(t, "", withDB("records", "get", "package", ids[0])...)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("get after delete error = %v, want ErrNotFound", err)
	}

	_, err = run(t, "", withDB("records", "list", "package", "--filter", "broken")...)
	if err == nil {
		t.Error("expected error for malformed filter")
	}
}
