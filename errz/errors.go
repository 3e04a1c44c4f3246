package errz

import (
	"fmt"

	"github.com/deepnoodle-ai/lift/version"
)

// StackUnderflowError is returned when an instruction pops more slots than
// the abstract stack holds. It always indicates a translator or decoder bug,
// never a guest program error.
type StackUnderflowError struct {
	Want int
	Have int
}

func (e *StackUnderflowError) Error() string {
	return fmt.Sprintf("stack underflow: need %d slot(s), have %d", e.Want, e.Have)
}

// StackShapeConflictError is returned when two stack shapes reaching the same
// program point cannot be unified. Position is the slot index (from the
// bottom) of the first incompatible slot, or -1 when the depths differ.
type StackShapeConflictError struct {
	LeftDepth  int
	RightDepth int
	Position   int
	Left       string
	Right      string
}

func (e *StackShapeConflictError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("stack shape conflict: depth %d vs %d", e.LeftDepth, e.RightDepth)
	}
	return fmt.Sprintf("stack shape conflict at slot %d: %s vs %s", e.Position, e.Left, e.Right)
}

// MalformedExceptionRegionError is returned when the exception state of a
// handler region is not where the region says it should be.
type MalformedExceptionRegionError struct {
	Region  int
	Handler int
	Want    int
	Have    int
	Reason  string
}

func (e *MalformedExceptionRegionError) Error() string {
	msg := fmt.Sprintf("malformed exception region %d (handler %d)", e.Region, e.Handler)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Want != e.Have {
		msg += fmt.Sprintf(": expected depth %d, got %d", e.Want, e.Have)
	}
	return msg
}

// UnsupportedGuestVersionError is returned when an instruction has no defined
// behavior for the guest version being translated. Offset is -1 when the
// error does not concern a particular instruction.
type UnsupportedGuestVersionError struct {
	Version version.Version
	Opcode  string
	Offset  int
}

func (e *UnsupportedGuestVersionError) Error() string {
	if e.Opcode == "" {
		return fmt.Sprintf("unsupported guest version %s", e.Version)
	}
	if e.Offset < 0 {
		return fmt.Sprintf("%s is not defined for guest version %s", e.Opcode, e.Version)
	}
	return fmt.Sprintf("%s at offset %d is not defined for guest version %s",
		e.Opcode, e.Offset, e.Version)
}

// InvalidInstructionError is returned for instructions the decoder should
// never have produced: unknown opcodes, jumps to offsets that do not exist,
// operands out of range.
type InvalidInstructionError struct {
	Offset int
	Reason string
}

func (e *InvalidInstructionError) Error() string {
	return fmt.Sprintf("invalid instruction at offset %d: %s", e.Offset, e.Reason)
}
