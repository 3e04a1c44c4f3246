package bytecode

import (
	"fmt"

	"github.com/deepnoodle-ai/lift/op"
)

// Instruction is one decoded guest instruction.
type Instruction struct {
	// Offset is the instruction's byte offset within the function. Offsets
	// are strictly increasing but not necessarily contiguous.
	Offset int `json:"offset" yaml:"offset" cbor:"1,keyasint"`

	// Op is the opcode.
	Op op.Code `json:"op" yaml:"op" cbor:"2,keyasint"`

	// Arg is the operand. For jumps it is the absolute target offset.
	Arg int `json:"arg,omitempty" yaml:"arg,omitempty" cbor:"3,keyasint,omitempty"`

	// Line is the 1-based source line, or 0 when unknown.
	Line int `json:"line,omitempty" yaml:"line,omitempty" cbor:"4,keyasint,omitempty"`
}

// String returns a short textual form such as "12 LOAD_FAST 0".
func (i Instruction) String() string {
	if op.GetInfo(i.Op).HasArg {
		return fmt.Sprintf("%d %s %d", i.Offset, i.Op, i.Arg)
	}
	return fmt.Sprintf("%d %s", i.Offset, i.Op)
}
