package bytecode

import (
	"sort"

	"github.com/deepnoodle-ai/lift/op"
	"github.com/deepnoodle-ai/lift/version"
)

// Function is one decoded guest function. It is immutable after creation and
// safe for concurrent use.
type Function struct {
	name      string
	filename  string
	firstLine int
	version   version.Version
	argCount  int

	instructions   []Instruction
	constants      []any
	names          []string
	localNames     []string
	exceptionTable []ExceptionTableEntry

	// offsets maps an instruction offset to its index.
	offsets map[int]int
}

// FunctionParams contains parameters for creating a new Function.
type FunctionParams struct {
	Name      string
	Filename  string
	FirstLine int
	Version   version.Version
	ArgCount  int

	Instructions   []Instruction
	Constants      []any
	Names          []string
	LocalNames     []string
	ExceptionTable []ExceptionTableEntry
}

// NewFunction creates a new immutable Function from the given parameters.
// Input slices are copied. The exception table is sorted by start offset.
func NewFunction(params FunctionParams) *Function {
	fn := &Function{
		name:           params.Name,
		filename:       params.Filename,
		firstLine:      params.FirstLine,
		version:        params.Version,
		argCount:       params.ArgCount,
		instructions:   clone(params.Instructions),
		constants:      clone(params.Constants),
		names:          clone(params.Names),
		localNames:     clone(params.LocalNames),
		exceptionTable: clone(params.ExceptionTable),
		offsets:        make(map[int]int, len(params.Instructions)),
	}
	sort.SliceStable(fn.exceptionTable, func(i, j int) bool {
		return fn.exceptionTable[i].Start < fn.exceptionTable[j].Start
	})
	for i, inst := range fn.instructions {
		if _, dup := fn.offsets[inst.Offset]; !dup {
			fn.offsets[inst.Offset] = i
		}
	}
	return fn
}

// Name returns the function name.
func (f *Function) Name() string {
	return f.name
}

// Filename returns the source filename, if known.
func (f *Function) Filename() string {
	return f.filename
}

// FirstLine returns the line of the function definition.
func (f *Function) FirstLine() int {
	return f.firstLine
}

// Version returns the guest version the function was compiled for.
func (f *Function) Version() version.Version {
	return f.version
}

// ArgCount returns the number of positional parameters. Parameters occupy
// the first local slots.
func (f *Function) ArgCount() int {
	return f.argCount
}

// InstructionCount returns the number of instructions.
func (f *Function) InstructionCount() int {
	return len(f.instructions)
}

// InstructionAt returns the instruction at the given index.
func (f *Function) InstructionAt(index int) Instruction {
	return f.instructions[index]
}

// IndexOf returns the index of the instruction at offset.
func (f *Function) IndexOf(offset int) (int, bool) {
	index, ok := f.offsets[offset]
	return index, ok
}

// ConstantCount returns the number of constants.
func (f *Function) ConstantCount() int {
	return len(f.constants)
}

// ConstantAt returns the constant at the given index.
func (f *Function) ConstantAt(index int) any {
	return f.constants[index]
}

// NameCount returns the number of global and attribute names.
func (f *Function) NameCount() int {
	return len(f.names)
}

// NameAt returns the name at the given index.
func (f *Function) NameAt(index int) string {
	return f.names[index]
}

// LocalCount returns the number of local variable slots. It is never less
// than the argument count.
func (f *Function) LocalCount() int {
	if len(f.localNames) < f.argCount {
		return f.argCount
	}
	return len(f.localNames)
}

// LocalNameAt returns the local variable name at the given index.
// Returns an empty string if the index is out of range.
func (f *Function) LocalNameAt(index int) string {
	if index < 0 || index >= len(f.localNames) {
		return ""
	}
	return f.localNames[index]
}

// ExceptionEntryCount returns the number of exception table rows.
func (f *Function) ExceptionEntryCount() int {
	return len(f.exceptionTable)
}

// ExceptionEntryAt returns the exception table row at the given index.
func (f *Function) ExceptionEntryAt(index int) ExceptionTableEntry {
	return f.exceptionTable[index]
}

// Instructions returns a copy of the instruction sequence.
func (f *Function) Instructions() []Instruction {
	return clone(f.instructions)
}

// ExceptionTable returns a copy of the exception table.
func (f *Function) ExceptionTable() []ExceptionTableEntry {
	return clone(f.exceptionTable)
}

// Constants returns a copy of the constant pool.
func (f *Function) Constants() []any {
	return clone(f.constants)
}

// Names returns a copy of the name table.
func (f *Function) Names() []string {
	return clone(f.names)
}

// LocalNames returns a copy of the local variable names.
func (f *Function) LocalNames() []string {
	return clone(f.localNames)
}

// Stats returns statistics about this function.
func (f *Function) Stats() Stats {
	counts := map[op.Code]int{}
	for _, inst := range f.instructions {
		counts[inst.Op]++
	}
	return Stats{
		InstructionCount:    len(f.instructions),
		ConstantCount:       len(f.constants),
		NameCount:           len(f.names),
		LocalCount:          f.LocalCount(),
		ExceptionEntryCount: len(f.exceptionTable),
		Opcodes:             counts,
	}
}
