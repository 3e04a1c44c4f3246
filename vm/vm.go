// Package vm provides a VirtualMachine that executes translated host
// routines. It is the reference runtime the translator is checked against.
package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/lift/host"
)

const (
	MaxStackDepth = 1024
	MaxFrameDepth = 256

	// DefaultContextCheckInterval is the number of operations between
	// checks of ctx.Done(). Set to 0 to disable.
	DefaultContextCheckInterval = 1000
)

var (
	// ErrStepLimit is returned when execution exceeds the configured
	// maximum number of operations.
	ErrStepLimit = errors.New("step limit exceeded")

	// ErrHalted is returned when an observer stops execution.
	ErrHalted = errors.New("execution halted by observer")
)

// VirtualMachine executes host routines. A VirtualMachine is not safe for
// concurrent use; create one per goroutine.
type VirtualMachine struct {
	globals map[string]any
	helpers map[host.Helper]HelperFunc

	// handled is the exception currently being handled, or nil.
	handled any

	frameDepth           int
	steps                int
	maxSteps             int
	contextCheckInterval int
	observer             Observer
	observerConfig       ObserverConfig
	lastOrigin           int
}

// New creates a new VirtualMachine.
func New(options ...Option) *VirtualMachine {
	vm := &VirtualMachine{
		globals:              DefaultGlobals(),
		helpers:              DefaultHelpers(),
		contextCheckInterval: DefaultContextCheckInterval,
		lastOrigin:           -2,
	}
	for _, opt := range options {
		opt(vm)
	}
	if vm.observer != nil {
		vm.observerConfig = NormalizeConfig(vm.observer.Config())
	}
	return vm
}

// Get returns a global by name.
func (vm *VirtualMachine) Get(name string) (any, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// Handled returns the exception currently being handled, or nil.
func (vm *VirtualMachine) Handled() any {
	return vm.handled
}

// Run executes r with the given arguments and returns its result. An
// uncaught guest exception is returned as an *Exception error.
func (vm *VirtualMachine) Run(ctx context.Context, r *host.Routine, args ...any) (any, error) {
	vm.steps = 0
	return vm.run(ctx, r, args)
}

// Call calls a runtime callable: a Builtin, a Function, or an exception
// class.
func (vm *VirtualMachine) Call(ctx context.Context, fn any, args ...any) (any, error) {
	switch fn := fn.(type) {
	case *Builtin:
		if !vm.notifyCall(fn.Name, len(args)) {
			return nil, ErrHalted
		}
		result, err := fn.Fn(args...)
		if err != nil {
			var exc *Exception
			if errors.As(err, &exc) {
				return nil, exc
			}
			return nil, Errorf(RuntimeError, "%s: %v", fn.Name, err)
		}
		if !vm.notifyReturn(fn.Name) {
			return nil, ErrHalted
		}
		return normalize(result), nil
	case *Function:
		return vm.run(ctx, fn.Routine, args)
	case *Class:
		return NewException(fn, args...), nil
	}
	return nil, Errorf(TypeError, "'%s' object is not callable", typeName(fn))
}

func (vm *VirtualMachine) run(ctx context.Context, r *host.Routine, args []any) (any, error) {
	if vm.frameDepth >= MaxFrameDepth {
		return nil, Errorf(RecursionErrorClass, "maximum recursion depth exceeded")
	}
	if !vm.notifyCall(r.Name, len(args)) {
		return nil, ErrHalted
	}
	vm.frameDepth++
	defer func() { vm.frameDepth-- }()

	f := newFrame(r, args)
	res, err := vm.eval(ctx, f, false)
	if err != nil {
		return nil, err
	}
	if res.thrown != nil {
		return nil, res.thrown
	}
	if !res.returned {
		return nil, fmt.Errorf("routine %s ended without returning", r.Name)
	}
	if !vm.notifyReturn(r.Name) {
		return nil, ErrHalted
	}
	return res.value, nil
}

// outcome describes how evaluation of a frame ended.
type outcome struct {
	returned bool
	value    any
	thrown   *Exception
	// exit is the label jumped to when it lies outside the frame's
	// operations. Only snippets exit this way.
	exit    int
	exited  bool
	fellOff bool
}

// eval runs f until it returns, throws past its regions, or, when snippet
// is set, leaves the operation list.
func (vm *VirtualMachine) eval(ctx context.Context, f *frame, snippet bool) (outcome, error) {
	var sinceCheck int
	doneChan := ctx.Done()
	ops := f.routine.Ops

	for f.ip < len(ops) {
		if vm.contextCheckInterval > 0 && doneChan != nil {
			sinceCheck++
			if sinceCheck >= vm.contextCheckInterval {
				sinceCheck = 0
				select {
				case <-doneChan:
					return outcome{}, ctx.Err()
				default:
				}
			}
		}
		vm.steps++
		if vm.maxSteps > 0 && vm.steps > vm.maxSteps {
			return outcome{}, ErrStepLimit
		}

		ip := f.ip
		o := ops[ip]
		if !vm.notifyStep(f, ip, o) {
			return outcome{}, ErrHalted
		}
		f.ip++

		res, thrown, err := vm.step(ctx, f, o, snippet)
		if err != nil {
			return outcome{}, err
		}
		if thrown != nil {
			if thrown.Lasti < 0 {
				thrown.Lasti = f.origin(ip)
			}
			if origin := f.origin(ip); origin >= 0 {
				thrown.Traceback = append(thrown.Traceback, origin)
			}
			region, ok := f.routine.RegionAt(ip)
			if !ok {
				return outcome{thrown: thrown}, nil
			}
			target, ok := f.labels[region.Handler]
			if !ok {
				return outcome{}, fmt.Errorf("undefined handler label %d", region.Handler)
			}
			if len(f.stack) < region.Depth {
				return outcome{}, fmt.Errorf("stack depth %d below protected depth %d at operation %d",
					len(f.stack), region.Depth, ip)
			}
			f.stack = f.stack[:region.Depth]
			f.push(thrown)
			f.ip = target
			continue
		}
		if res != nil {
			return *res, nil
		}
	}
	if snippet {
		return outcome{fellOff: true}, nil
	}
	return outcome{}, fmt.Errorf("control fell off the end of routine %s", f.routine.Name)
}

// step executes one operation. It returns a non-nil outcome when evaluation
// of the frame is over, and a non-nil exception when guest code raised.
func (vm *VirtualMachine) step(ctx context.Context, f *frame, o host.Operation, snippet bool) (*outcome, *Exception, error) {
	pops, pushes := o.Effect()
	if len(f.stack) < pops {
		return nil, nil, fmt.Errorf("stack underflow at operation %d (%s)", f.ip-1, o)
	}
	if len(f.stack)-pops+pushes > MaxStackDepth {
		return nil, nil, fmt.Errorf("stack overflow at operation %d", f.ip-1)
	}
	jump := func(label int) (*outcome, *Exception, error) {
		target, ok := f.labels[label]
		if !ok {
			if snippet {
				return &outcome{exit: label, exited: true}, nil, nil
			}
			return nil, nil, fmt.Errorf("undefined label %d", label)
		}
		f.ip = target
		return nil, nil, nil
	}

	switch o := o.(type) {
	case host.Label:
	case host.Const:
		f.push(normalize(o.Value))
	case host.LoadLocal:
		if o.Index >= len(f.locals) {
			return nil, nil, fmt.Errorf("local %d out of range", o.Index)
		}
		v := f.locals[o.Index]
		if _, ok := v.(unbound); ok {
			return nil, Errorf(UnboundLocalError, "local variable %d referenced before assignment", o.Index), nil
		}
		f.push(v)
	case host.StoreLocal:
		if o.Index >= len(f.locals) {
			return nil, nil, fmt.Errorf("local %d out of range", o.Index)
		}
		f.locals[o.Index] = f.pop()
	case host.DeleteLocal:
		if o.Index >= len(f.locals) {
			return nil, nil, fmt.Errorf("local %d out of range", o.Index)
		}
		if _, ok := f.locals[o.Index].(unbound); ok {
			return nil, Errorf(UnboundLocalError, "local variable %d referenced before assignment", o.Index), nil
		}
		f.locals[o.Index] = unbound{}
	case host.LoadGlobal:
		v, ok := vm.globals[o.Name]
		if !ok {
			return nil, Errorf(NameError, "name '%s' is not defined", o.Name), nil
		}
		f.push(v)
	case host.StoreGlobal:
		vm.globals[o.Name] = f.pop()
	case host.Pop:
		f.pop()
	case host.Dup:
		f.push(f.stack[len(f.stack)-1])
	case host.Pick:
		f.push(f.stack[len(f.stack)-1-o.Depth])
	case host.Swap:
		top, other := len(f.stack)-1, len(f.stack)-1-o.Depth
		f.stack[top], f.stack[other] = f.stack[other], f.stack[top]
	case host.Invoke:
		helper, ok := vm.helpers[o.Helper]
		if !ok {
			return nil, nil, fmt.Errorf("unknown helper %q", o.Helper)
		}
		args := append([]any(nil), f.stack[len(f.stack)-o.Args:]...)
		f.stack = f.stack[:len(f.stack)-o.Args]
		results, err := helper(ctx, vm, o, args)
		if err != nil {
			var exc *Exception
			if errors.As(err, &exc) {
				return nil, exc, nil
			}
			return nil, nil, err
		}
		if len(results) != o.Results {
			return nil, nil, fmt.Errorf("helper %s returned %d value(s), expected %d",
				o.Helper, len(results), o.Results)
		}
		for _, r := range results {
			f.push(r)
		}
	case host.Goto:
		return jump(o.Label)
	case host.IfTrue:
		if truthy(f.pop()) {
			return jump(o.Label)
		}
	case host.IfFalse:
		if !truthy(f.pop()) {
			return jump(o.Label)
		}
	case host.Return:
		return &outcome{returned: true, value: f.pop()}, nil, nil
	case host.Throw:
		return nil, asException(f.pop()), nil
	case host.GetHandled:
		f.push(vm.handled)
	case host.SetHandled:
		vm.handled = f.pop()
	default:
		return nil, nil, fmt.Errorf("unknown operation %s", o.Kind())
	}
	return nil, nil, nil
}
