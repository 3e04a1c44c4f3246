// Package listing loads guest functions from YAML or JSON listings. A listing
// is the textual form of what a bytecode decoder produces: per function, the
// instruction stream, constant and name tables and, for modern dialects, the
// exception table.
package listing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deepnoodle-ai/lift/bytecode"
	"github.com/deepnoodle-ai/lift/errz"
	"github.com/deepnoodle-ai/lift/op"
	"github.com/deepnoodle-ai/lift/version"
)

// Document is a parsed listing.
type Document struct {
	// Version applies to every function that does not set its own.
	Version   version.Version `yaml:"version"`
	Functions []Function      `yaml:"functions"`
}

// Function describes one guest function.
type Function struct {
	Name           string                         `yaml:"name"`
	Filename       string                         `yaml:"filename,omitempty"`
	FirstLine      int                            `yaml:"first_line,omitempty"`
	Version        version.Version                `yaml:"version,omitempty"`
	Args           int                            `yaml:"args,omitempty"`
	Locals         []string                       `yaml:"locals,omitempty"`
	Names          []string                       `yaml:"names,omitempty"`
	Constants      []any                          `yaml:"constants,omitempty"`
	Instructions   []Instruction                  `yaml:"instructions"`
	ExceptionTable []bytecode.ExceptionTableEntry `yaml:"exception_table,omitempty"`
}

// Instruction is one listed instruction. A missing offset defaults to twice
// the instruction's index, the guest's two-byte code unit.
type Instruction struct {
	Offset *int   `yaml:"offset,omitempty"`
	Op     string `yaml:"op"`
	Arg    int    `yaml:"arg,omitempty"`
	Line   int    `yaml:"line,omitempty"`
}

// Parse decodes a listing. JSON is a subset of YAML, so both are accepted.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty listing")
		}
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return &doc, nil
}

// Load reads and parses the listing at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range doc.Functions {
		if doc.Functions[i].Filename == "" {
			doc.Functions[i].Filename = path
		}
	}
	return doc, nil
}

// Build converts the listing into functions. A non-zero override replaces
// every version named in the document.
func (d *Document) Build(override version.Version) ([]*bytecode.Function, error) {
	fns := make([]*bytecode.Function, 0, len(d.Functions))
	for i, f := range d.Functions {
		v := override
		if v.IsZero() {
			v = f.Version
		}
		if v.IsZero() {
			v = d.Version
		}
		if v.IsZero() {
			return nil, fmt.Errorf("function %d (%s): no guest version", i, f.Name)
		}
		fn, err := f.build(v)
		if err != nil {
			return nil, fmt.Errorf("function %d (%s): %w", i, f.Name, err)
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

func (f Function) build(v version.Version) (*bytecode.Function, error) {
	instructions := make([]bytecode.Instruction, len(f.Instructions))
	last := -1
	for i, li := range f.Instructions {
		offset := 2 * i
		if li.Offset != nil {
			offset = *li.Offset
		}
		if offset <= last {
			return nil, &errz.InvalidInstructionError{
				Offset: offset,
				Reason: fmt.Sprintf("offset not greater than previous offset %d", last),
			}
		}
		last = offset
		code, ok := op.Lookup(strings.ToUpper(strings.TrimSpace(li.Op)))
		if !ok {
			return nil, &errz.InvalidInstructionError{
				Offset: offset,
				Reason: fmt.Sprintf("unknown opcode %q", li.Op),
			}
		}
		instructions[i] = bytecode.Instruction{Offset: offset, Op: code, Arg: li.Arg, Line: li.Line}
	}
	constants := make([]any, len(f.Constants))
	for i, c := range f.Constants {
		value, err := constant(c)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		constants[i] = value
	}
	return bytecode.NewFunction(bytecode.FunctionParams{
		Name:           f.Name,
		Filename:       f.Filename,
		FirstLine:      f.FirstLine,
		Version:        v,
		ArgCount:       f.Args,
		Instructions:   instructions,
		Constants:      constants,
		Names:          f.Names,
		LocalNames:     f.Locals,
		ExceptionTable: f.ExceptionTable,
	}), nil
}

// constant narrows a decoded YAML value to the constant kinds a guest
// function can carry. Sequences become tuples.
func constant(v any) (any, error) {
	switch v := v.(type) {
	case nil, bool, string, float64, int64:
		return v, nil
	case int:
		return int64(v), nil
	case uint64:
		return nil, fmt.Errorf("integer %d out of range", v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			c, err := constant(item)
			if err != nil {
				return nil, err
			}
			items[i] = c
		}
		return items, nil
	}
	return nil, fmt.Errorf("unsupported constant of type %T", v)
}
