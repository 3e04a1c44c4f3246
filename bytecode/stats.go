package bytecode

import "github.com/deepnoodle-ai/lift/op"

// Stats contains statistics about a decoded function.
// This is useful for auditing input before translation.
type Stats struct {
	// InstructionCount is the total number of guest instructions.
	InstructionCount int

	// ConstantCount is the number of constants in the constant pool.
	ConstantCount int

	// NameCount is the number of global and attribute names.
	NameCount int

	// LocalCount is the number of local variable slots.
	LocalCount int

	// ExceptionEntryCount is the number of exception table rows.
	ExceptionEntryCount int

	// Opcodes counts the instructions of each kind.
	Opcodes map[op.Code]int
}
