package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artpar/modelgate/core/expression"
	"github.com/artpar/modelgate/core/registry"
	"github.com/artpar/modelgate/core/schema"
)

// ParseFile parses schema definitions from a YAML file.
func ParseFile(path string) ([]*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	schemas, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return schemas, nil
}

// Parse parses one or more schema documents from YAML bytes.
func Parse(data []byte) ([]*schema.Schema, error) {
	return ParseWith(data, expression.Default)
}

// ParseWith is like Parse with an explicit expression compiler.
func ParseWith(data []byte, compiler *expression.Compiler) ([]*schema.Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var schemas []*schema.Schema
	for i := 0; ; i++ {
		var doc Document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse yaml document %d: %w", i, err)
		}

		s, err := Compile(doc, compiler)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}

	if len(schemas) == 0 {
		return nil, fmt.Errorf("no schema documents found")
	}
	return schemas, nil
}

// ParseDir parses all schema files from a directory, including subdirectories.
func ParseDir(dir string) ([]*schema.Schema, error) {
	var schemas []*schema.Schema

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			sub, err := ParseDir(path)
			if err != nil {
				return nil, err
			}
			schemas = append(schemas, sub...)
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		parsed, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, parsed...)
	}

	return schemas, nil
}

// Load parses every schema file or directory in paths into reg and verifies
// that all nested references resolve.
func Load(reg *registry.Registry, paths ...string) error {
	var schemas []*schema.Schema
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("load schemas: %w", err)
		}

		var parsed []*schema.Schema
		if info.IsDir() {
			parsed, err = ParseDir(path)
		} else {
			parsed, err = ParseFile(path)
		}
		if err != nil {
			return err
		}
		schemas = append(schemas, parsed...)
	}

	if err := reg.RegisterAll(schemas...); err != nil {
		return err
	}
	return reg.CheckReferences()
}
