// Package errz defines the errors produced while translating guest bytecode.
//
// Every failure aborts the translation of the enclosing function only. The
// driver wraps the specific error in a [TranslationError] that records which
// function, instruction offset and guest version it concerns.
package errz

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/lift/version"
)

// ErrorKind represents the category of a translation error.
type ErrorKind int

const (
	// ErrInternal is any failure not covered by a more specific kind.
	ErrInternal ErrorKind = iota
	// ErrUnderflow indicates an abstract stack underflow.
	ErrUnderflow
	// ErrShapeConflict indicates irreconcilable stack shapes at a join.
	ErrShapeConflict
	// ErrMalformedRegion indicates an exception handler depth mismatch.
	ErrMalformedRegion
	// ErrUnsupportedVersion indicates a dialect without defined behavior.
	ErrUnsupportedVersion
	// ErrInvalidInstruction indicates a bad decoded instruction.
	ErrInvalidInstruction
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrUnderflow:
		return "stack underflow"
	case ErrShapeConflict:
		return "stack shape conflict"
	case ErrMalformedRegion:
		return "malformed exception region"
	case ErrUnsupportedVersion:
		return "unsupported guest version"
	case ErrInvalidInstruction:
		return "invalid instruction"
	default:
		return "translation error"
	}
}

// Code returns the error code for the kind.
func (k ErrorKind) Code() ErrorCode {
	switch k {
	case ErrUnderflow:
		return E4001
	case ErrShapeConflict:
		return E4002
	case ErrMalformedRegion:
		return E4003
	case ErrUnsupportedVersion:
		return E4004
	case ErrInvalidInstruction:
		return E4005
	default:
		return ""
	}
}

// KindOf classifies err by the most specific error type it wraps.
func KindOf(err error) ErrorKind {
	var (
		underflow   *StackUnderflowError
		conflict    *StackShapeConflictError
		malformed   *MalformedExceptionRegionError
		unsupported *UnsupportedGuestVersionError
		invalid     *InvalidInstructionError
	)
	switch {
	case errors.As(err, &underflow):
		return ErrUnderflow
	case errors.As(err, &conflict):
		return ErrShapeConflict
	case errors.As(err, &malformed):
		return ErrMalformedRegion
	case errors.As(err, &unsupported):
		return ErrUnsupportedVersion
	case errors.As(err, &invalid):
		return ErrInvalidInstruction
	default:
		return ErrInternal
	}
}

// TranslationError attributes a failure to one instruction of one function.
type TranslationError struct {
	Kind     ErrorKind
	Function string
	Filename string
	Offset   int
	Opcode   string
	Line     int
	Version  version.Version
	Err      error
}

// NewTranslationError wraps err with its function and instruction context.
// The kind is derived from err.
func NewTranslationError(function string, offset int, opcode string, v version.Version, err error) *TranslationError {
	return &TranslationError{
		Kind:     KindOf(err),
		Function: function,
		Offset:   offset,
		Opcode:   opcode,
		Version:  v,
		Err:      err,
	}
}

// Error implements the error interface.
func (e *TranslationError) Error() string {
	if e.Opcode == "" {
		return fmt.Sprintf("%s: %s (guest %s): %v", e.Kind, e.Function, e.Version, e.Err)
	}
	return fmt.Sprintf("%s: %s at offset %d (%s, guest %s): %v",
		e.Kind, e.Function, e.Offset, e.Opcode, e.Version, e.Err)
}

// Unwrap returns the underlying cause of the error.
func (e *TranslationError) Unwrap() error {
	return e.Err
}

// IsFatal always returns true. Translation is deterministic, so there is
// nothing to retry.
func (e *TranslationError) IsFatal() bool {
	return true
}

// Code returns the error code for the error's kind.
func (e *TranslationError) Code() ErrorCode {
	return e.Kind.Code()
}

// FriendlyErrorMessage returns a multi-line description suitable for a
// terminal.
func (e *TranslationError) FriendlyErrorMessage() string {
	var msg bytes.Buffer
	if code := e.Code(); code != "" {
		msg.WriteString(fmt.Sprintf("error[%s]: %s\n", code, e.Kind))
	} else {
		msg.WriteString(fmt.Sprintf("error: %s\n", e.Kind))
	}
	msg.WriteString(fmt.Sprintf("  --> %s", e.Function))
	if e.Filename != "" {
		msg.WriteString(fmt.Sprintf(" (%s", e.Filename))
		if e.Line > 0 {
			msg.WriteString(fmt.Sprintf(":%d", e.Line))
		}
		msg.WriteString(")")
	} else if e.Line > 0 {
		msg.WriteString(fmt.Sprintf(" (line %d)", e.Line))
	}
	msg.WriteString("\n")
	if e.Opcode != "" {
		msg.WriteString(fmt.Sprintf("   | offset %d: %s\n", e.Offset, e.Opcode))
	}
	msg.WriteString(fmt.Sprintf("   | guest version %s\n", e.Version))
	msg.WriteString(fmt.Sprintf("   = %v\n", e.Err))
	return msg.String()
}
