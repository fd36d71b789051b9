package schema

import (
	"fmt"
	"strings"
)

// Kind identifies a primitive value kind.
type Kind string

const (
	KindString   Kind = "string"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindBool     Kind = "bool"
	KindDatetime Kind = "datetime"
	KindDate     Kind = "date"
	KindDuration Kind = "duration"
	KindUUID     Kind = "uuid"
	KindEmail    Kind = "email"
	KindURL      Kind = "url"
	KindAny      Kind = "any"
)

// Kinds lists every primitive kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindString, KindInt, KindFloat, KindBool,
		KindDatetime, KindDate, KindDuration,
		KindUUID, KindEmail, KindURL, KindAny,
	}
}

// IsValid reports whether k is a known primitive kind.
func (k Kind) IsValid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Tag discriminates the TypeSpec variants.
type Tag uint8

const (
	TagPrimitive Tag = iota + 1
	TagFixedSequence
	TagSequence
	TagNested
)

// TypeSpec declares the type of a field. The zero value means "undeclared"
// and is only valid on computed fields.
type TypeSpec struct {
	Tag Tag

	// Kind is set for TagPrimitive.
	Kind Kind

	// Elements holds one spec per position for TagFixedSequence.
	Elements []TypeSpec

	// Elem is the element spec for TagSequence.
	Elem *TypeSpec

	// Schema names the referenced schema for TagNested.
	Schema string
}

// Primitive returns a spec for a primitive kind.
func Primitive(k Kind) TypeSpec { return TypeSpec{Tag: TagPrimitive, Kind: k} }

func String() TypeSpec   { return Primitive(KindString) }
func Int() TypeSpec      { return Primitive(KindInt) }
func Float() TypeSpec    { return Primitive(KindFloat) }
func Bool() TypeSpec     { return Primitive(KindBool) }
func Datetime() TypeSpec { return Primitive(KindDatetime) }
func Date() TypeSpec     { return Primitive(KindDate) }
func Duration() TypeSpec { return Primitive(KindDuration) }
func UUID() TypeSpec     { return Primitive(KindUUID) }
func Email() TypeSpec    { return Primitive(KindEmail) }
func URL() TypeSpec      { return Primitive(KindURL) }
func Any() TypeSpec      { return Primitive(KindAny) }

// FixedSequence returns a spec for an ordered sequence of exactly
// len(elements) values.
func FixedSequence(elements ...TypeSpec) TypeSpec {
	return TypeSpec{Tag: TagFixedSequence, Elements: append([]TypeSpec(nil), elements...)}
}

// Sequence returns a spec for a homogeneous list of any length.
func Sequence(elem TypeSpec) TypeSpec {
	return TypeSpec{Tag: TagSequence, Elem: &elem}
}

// Nested returns a spec referencing another schema by name.
func Nested(schemaName string) TypeSpec {
	return TypeSpec{Tag: TagNested, Schema: schemaName}
}

// IsZero reports whether the spec is undeclared.
func (t TypeSpec) IsZero() bool { return t.Tag == 0 }

// String renders the spec in ParseType grammar.
func (t TypeSpec) String() string {
	switch t.Tag {
	case TagPrimitive:
		return string(t.Kind)
	case TagFixedSequence:
		parts := make([]string, len(t.Elements))
		for i, e := range t.Elements {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case TagSequence:
		if t.Elem == nil {
			return "[]"
		}
		return "[" + t.Elem.String() + "]"
	case TagNested:
		return "ref:" + t.Schema
	default:
		return ""
	}
}

// References returns the names of all schemas referenced by the spec,
// in order of appearance.
func (t TypeSpec) References() []string {
	var refs []string
	t.walk(func(s TypeSpec) {
		if s.Tag == TagNested {
			refs = append(refs, s.Schema)
		}
	})
	return refs
}

func (t TypeSpec) walk(fn func(TypeSpec)) {
	fn(t)
	switch t.Tag {
	case TagFixedSequence:
		for _, e := range t.Elements {
			e.walk(fn)
		}
	case TagSequence:
		if t.Elem != nil {
			t.Elem.walk(fn)
		}
	}
}

// check reports structural problems in the spec.
func (t TypeSpec) check() error {
	switch t.Tag {
	case TagPrimitive:
		if !t.Kind.IsValid() {
			return fmt.Errorf("unknown type %q", t.Kind)
		}
	case TagFixedSequence:
		if len(t.Elements) == 0 {
			return fmt.Errorf("fixed sequence requires at least one element")
		}
		for i, e := range t.Elements {
			if err := e.check(); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case TagSequence:
		if t.Elem == nil {
			return fmt.Errorf("sequence requires an element type")
		}
		return t.Elem.check()
	case TagNested:
		if !isValidIdentifier(t.Schema) {
			return fmt.Errorf("schema reference %q is not a valid identifier", t.Schema)
		}
	default:
		return fmt.Errorf("type is not declared")
	}
	return nil
}

// ParseType converts a type string into a TypeSpec.
//
// Grammar:
//
//	type     = kind | "[" type "]" | "(" type { "," type } ")" | "ref:" name
//	kind     = "string" | "int" | "float" | "bool" | "datetime" | "date" |
//	           "duration" | "uuid" | "email" | "url" | "any"
func ParseType(s string) (TypeSpec, error) {
	p := &typeParser{src: s}
	spec, err := p.parse()
	if err != nil {
		return TypeSpec{}, fmt.Errorf("parse type %q: %w", s, err)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return TypeSpec{}, fmt.Errorf("parse type %q: unexpected %q at offset %d", s, p.src[p.pos:], p.pos)
	}
	return spec, nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *typeParser) parse() (TypeSpec, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return TypeSpec{}, fmt.Errorf("unexpected end of input")
	}

	switch p.src[p.pos] {
	case '[':
		p.pos++
		elem, err := p.parse()
		if err != nil {
			return TypeSpec{}, err
		}
		if err := p.expect(']'); err != nil {
			return TypeSpec{}, err
		}
		return Sequence(elem), nil

	case '(':
		p.pos++
		var elems []TypeSpec
		for {
			elem, err := p.parse()
			if err != nil {
				return TypeSpec{}, err
			}
			elems = append(elems, elem)
			p.skipSpace()
			if p.pos < len(p.src) && p.src[p.pos] == ',' {
				p.pos++
				continue
			}
			break
		}
		if err := p.expect(')'); err != nil {
			return TypeSpec{}, err
		}
		return FixedSequence(elems...), nil
	}

	word := p.word()
	if word == "" {
		return TypeSpec{}, fmt.Errorf("unexpected %q at offset %d", p.src[p.pos:p.pos+1], p.pos)
	}
	if name, ok := strings.CutPrefix(word, "ref:"); ok {
		if !isValidIdentifier(name) {
			return TypeSpec{}, fmt.Errorf("schema reference %q is not a valid identifier", name)
		}
		return Nested(name), nil
	}
	kind := Kind(word)
	if !kind.IsValid() {
		return TypeSpec{}, fmt.Errorf("unknown type %q", word)
	}
	return Primitive(kind), nil
}

func (p *typeParser) word() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '[' || c == ']' || c == '(' || c == ')' || c == ',' || c == ' ' || c == '\t' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}
