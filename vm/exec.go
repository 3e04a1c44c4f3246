package vm

import (
	"context"

	"github.com/deepnoodle-ai/lift/host"
)

// Snippet is the state left by Exec.
type Snippet struct {
	Stack  []any
	Locals []any

	// FellThrough is set when execution ran past the last operation.
	FellThrough bool

	// Exited is set when a jump targeted a label outside the snippet. Exit
	// holds that label.
	Exited bool
	Exit   int

	// Returned is set when the snippet executed Return. Value holds the
	// returned value.
	Returned bool
	Value    any

	// Thrown holds an exception that escaped the snippet.
	Thrown *Exception
}

// Exec executes a straight-line snippet of operations against the given
// stack and locals, neither of which is modified. Jumps to labels defined
// within ops are followed; a jump to any other label ends execution.
// Exec is how the operations emitted for a single guest instruction are
// measured in isolation.
func (vm *VirtualMachine) Exec(ctx context.Context, ops []host.Operation, stack []any, locals []any) (*Snippet, error) {
	r := &host.Routine{Name: "<snippet>", LocalCount: len(locals), Ops: ops}
	f := newFrame(r, nil)
	for _, v := range stack {
		f.push(normalize(v))
	}
	for i, v := range locals {
		f.locals[i] = normalize(v)
	}
	vm.steps = 0
	res, err := vm.eval(ctx, f, true)
	if err != nil {
		return nil, err
	}
	return &Snippet{
		Stack:       f.stack,
		Locals:      f.locals,
		FellThrough: res.fellOff,
		Exited:      res.exited,
		Exit:        res.exit,
		Returned:    res.returned,
		Value:       res.value,
		Thrown:      res.thrown,
	}, nil
}

// Unbound is the value Exec reports for a local with no binding. Passing it
// in locals leaves that local unbound.
var Unbound any = unbound{}
