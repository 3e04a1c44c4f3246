package compiler

import (
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/lift/bytecode"
	"github.com/deepnoodle-ai/lift/errz"
	"github.com/deepnoodle-ai/lift/op"
	"github.com/deepnoodle-ai/lift/stack"
)

var errUnhandledOpcode = errors.New("unhandled opcode")

// Opcode is one guest instruction bound to the behavior its function's
// guest version gives it. Opcodes are created once per translation and
// never mutated.
type Opcode struct {
	inst     bytecode.Instruction
	info     op.Info
	behavior op.Behavior
}

// NewOpcode validates inst against fm and resolves its version behavior.
func NewOpcode(fm *FunctionMetadata, inst bytecode.Instruction) (*Opcode, error) {
	if !op.Defined(inst.Op) {
		return nil, &errz.InvalidInstructionError{
			Offset: inst.Offset,
			Reason: fmt.Sprintf("unknown opcode %d", inst.Op),
		}
	}
	behavior, err := op.Resolve(inst.Op, fm.Version())
	if err != nil {
		var unsupported *errz.UnsupportedGuestVersionError
		if errors.As(err, &unsupported) {
			unsupported.Offset = inst.Offset
		}
		return nil, err
	}
	o := &Opcode{inst: inst, info: op.GetInfo(inst.Op), behavior: behavior}
	if err := o.validate(fm); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Opcode) invalid(format string, args ...any) error {
	return &errz.InvalidInstructionError{Offset: o.inst.Offset, Reason: fmt.Sprintf(format, args...)}
}

func (o *Opcode) validate(fm *FunctionMetadata) error {
	fn := fm.Function()
	arg := o.inst.Arg
	if o.info.Jump {
		if _, ok := fn.IndexOf(arg); !ok {
			return o.invalid("jump target %d is not an instruction", arg)
		}
	}
	inRange := func(what string, index, count int) error {
		if index < 0 || index >= count {
			return o.invalid("%s index %d out of range [0, %d)", what, index, count)
		}
		return nil
	}
	switch o.inst.Op {
	case op.LoadConst:
		return inRange("constant", arg, fn.ConstantCount())
	case op.LoadFast, op.StoreFast, op.DeleteFast:
		return inRange("local", arg, fn.LocalCount())
	case op.LoadGlobal, op.LoadAttr:
		return inRange("name", arg>>o.behavior.NameShift, fn.NameCount())
	case op.StoreGlobal, op.StoreAttr:
		return inRange("name", arg, fn.NameCount())
	case op.Copy:
		if arg < 1 {
			return o.invalid("COPY operand must be at least 1")
		}
	case op.Swap:
		if arg < 2 {
			return o.invalid("SWAP operand must be at least 2")
		}
	case op.BuildTuple, op.BuildList, op.CallFunction, op.Call:
		if arg < 0 {
			return o.invalid("negative count %d", arg)
		}
	case op.RaiseVarargs:
		if arg < 0 || arg > 2 {
			return o.invalid("RAISE_VARARGS operand must be 0, 1 or 2")
		}
	case op.BinaryOp:
		if arg < 0 || arg >= 2*int(op.InplaceOffset) || op.BinaryOpType(arg%int(op.InplaceOffset)).String() == "" {
			return o.invalid("unknown binary operator %d", arg)
		}
	case op.CompareOp:
		if kind := arg >> o.behavior.CompareShift; kind < 0 || kind > int(op.GreaterThanOrEqual) {
			return o.invalid("unknown comparison %d", kind)
		}
	}
	return nil
}

// Instruction returns the guest instruction.
func (o *Opcode) Instruction() bytecode.Instruction {
	return o.inst
}

// Code returns the guest opcode.
func (o *Opcode) Code() op.Code {
	return o.inst.Op
}

// Behavior returns the resolved version behavior.
func (o *Opcode) Behavior() op.Behavior {
	return o.behavior
}

// MayRaise reports whether the instruction's host operations can raise.
// Only raising instructions add an edge to their handler.
func (o *Opcode) MayRaise() bool {
	switch o.inst.Op {
	case op.Nop, op.Resume, op.Cache,
		op.PopTop, op.RotTwo, op.DupTop, op.Copy, op.Swap, op.PushNull,
		op.LoadConst, op.StoreFast,
		op.JumpForward, op.JumpAbsolute, op.JumpBackward,
		op.SetupFinally, op.PopBlock, op.PopExcept, op.PushExcInfo,
		op.ReturnValue:
		return false
	}
	return true
}

func (o *Opcode) String() string {
	return o.inst.String()
}

// Edge is a control transfer to another instruction together with the
// stack shape it carries.
type Edge struct {
	Target int
	Stack  stack.Metadata
	// Handler marks the edge a SETUP_FINALLY adds to its handler. It is
	// taken only by raising, never by a host jump.
	Handler bool
}

// Flow describes the stack after an instruction on each of its paths.
type Flow struct {
	// Next is the stack after the instruction's pops and pushes on its
	// primary path. For terminators it is the stack after the pops.
	Next stack.Metadata
	// Falls is set when control may continue with the next instruction.
	Falls bool
	// Branches lists the jump and handler edges.
	Branches []Edge
}

// StackEffect returns the stack after the instruction on its primary path.
// It never emits.
func (o *Opcode) StackEffect(fm *FunctionMetadata, in stack.Metadata) (stack.Metadata, error) {
	flow, err := o.Flow(fm, in)
	if err != nil {
		return stack.Metadata{}, err
	}
	return flow.Next, nil
}

// Flow computes the stack after the instruction for every path leaving it.
func (o *Opcode) Flow(fm *FunctionMetadata, in stack.Metadata) (Flow, error) {
	arg := o.inst.Arg
	falls := func(s stack.Metadata, err error) (Flow, error) {
		if err != nil {
			return Flow{}, err
		}
		return Flow{Next: s, Falls: true}, nil
	}
	replace := func(n int, slots ...stack.Slot) (Flow, error) {
		s, err := in.Pop(n)
		if err != nil {
			return Flow{}, err
		}
		return Flow{Next: s.Push(slots...), Falls: true}, nil
	}
	jump := func(s stack.Metadata, err error) (Flow, error) {
		if err != nil {
			return Flow{}, err
		}
		return Flow{Next: s, Branches: []Edge{{Target: arg, Stack: s}}}, nil
	}
	branch := func(s stack.Metadata, err error) (Flow, error) {
		if err != nil {
			return Flow{}, err
		}
		return Flow{Next: s, Falls: true, Branches: []Edge{{Target: arg, Stack: s}}}, nil
	}
	terminate := func(n int) (Flow, error) {
		s, err := in.Pop(n)
		if err != nil {
			return Flow{}, err
		}
		return Flow{Next: s}, nil
	}

	switch o.inst.Op {
	case op.Nop, op.Resume, op.Cache:
		return falls(in, nil)

	case op.PopTop:
		return replace(1)
	case op.RotTwo:
		top, err := in.Top(2)
		if err != nil {
			return Flow{}, err
		}
		return replace(2, top[1], top[0])
	case op.DupTop:
		top, err := in.Peek(0)
		if err != nil {
			return Flow{}, err
		}
		return falls(in.Push(top.Untagged()), nil)
	case op.Copy:
		slot, err := in.Peek(arg - 1)
		if err != nil {
			return Flow{}, err
		}
		return falls(in.Push(slot.Untagged()), nil)
	case op.Swap:
		top, err := in.Top(arg)
		if err != nil {
			return Flow{}, err
		}
		top[0], top[arg-1] = top[arg-1], top[0]
		return replace(arg, top...)
	case op.PushNull:
		return falls(in.Push(stack.Value(stack.Null)), nil)

	case op.LoadConst:
		return falls(in.Push(stack.Const(fm.Function().ConstantAt(arg))), nil)
	case op.LoadFast:
		local := in.Local(arg)
		if local.Kind == stack.Unbound {
			local = stack.Value(stack.Object)
		}
		return falls(in.Push(local.Untagged()), nil)
	case op.LoadGlobal:
		if o.behavior.NullBit && arg&1 == 1 {
			return falls(in.Push(stack.Value(stack.Null), stack.Value(stack.Object)), nil)
		}
		return falls(in.Push(stack.Value(stack.Object)), nil)
	case op.LoadAttr:
		if o.behavior.NullBit && arg&1 == 1 {
			return replace(1, stack.Value(stack.Null), stack.Value(stack.Object))
		}
		return replace(1, stack.Value(stack.Object))

	case op.StoreFast:
		top, err := in.Peek(0)
		if err != nil {
			return Flow{}, err
		}
		s, _ := in.Pop(1)
		return falls(s.SetLocal(arg, top.Untagged()), nil)
	case op.StoreGlobal:
		return replace(1)
	case op.StoreAttr:
		return replace(2)
	case op.DeleteFast:
		return falls(in.SetLocal(arg, stack.Value(stack.Unbound)), nil)

	case op.UnaryNot:
		return replace(1, stack.Value(stack.Bool))
	case op.UnaryNegative:
		top, err := in.Peek(0)
		if err != nil {
			return Flow{}, err
		}
		kind := stack.Object
		if top.Kind == stack.Int || top.Kind == stack.Float {
			kind = top.Kind
		}
		return replace(1, stack.Value(kind))
	case op.BinaryAdd:
		return o.binary(in, op.Add)
	case op.BinarySubtract:
		return o.binary(in, op.Subtract)
	case op.BinaryMultiply:
		return o.binary(in, op.Multiply)
	case op.BinaryOp:
		return o.binary(in, op.BinaryOpType(arg%int(op.InplaceOffset)))
	case op.CompareOp, op.IsOp, op.ContainsOp:
		return replace(2, stack.Value(stack.Bool))

	case op.BuildTuple:
		return replace(arg, stack.Value(stack.Tuple))
	case op.BuildList:
		return replace(arg, stack.Value(stack.List))

	case op.CallFunction, op.Call:
		return replace(arg+o.behavior.CallPrefix, stack.Value(stack.Object))
	case op.ReturnValue:
		return terminate(1)

	case op.GetIter:
		return replace(1, stack.Value(stack.Iterator))
	case op.ForIter:
		exhausted, err := in.Pop(1)
		if err != nil {
			return Flow{}, err
		}
		return Flow{
			Next:     in.Push(stack.Value(stack.Object)),
			Falls:    true,
			Branches: []Edge{{Target: arg, Stack: exhausted}},
		}, nil

	case op.JumpForward, op.JumpAbsolute, op.JumpBackward:
		return jump(in, nil)
	case op.PopJumpIfFalse, op.PopJumpIfTrue:
		return branch(in.Pop(1))

	case op.SetupFinally:
		r := fm.SetupRegion(o.inst.Offset)
		if r == nil {
			return Flow{}, o.invalid("SETUP_FINALLY without a region")
		}
		handler := in.Push(handlerLowering{fm}.state(r)...)
		return Flow{
			Next:     in,
			Falls:    true,
			Branches: []Edge{{Target: arg, Stack: handler, Handler: true}},
		}, nil
	case op.PopBlock:
		return falls(in, nil)
	case op.PopExcept:
		if err := (handlerLowering{fm}).checkLeave(in, o.behavior.ExceptionSlots); err != nil {
			return Flow{}, err
		}
		return replace(o.behavior.ExceptionSlots)
	case op.Reraise:
		n := o.behavior.ExceptionSlots
		if o.behavior.Dialect == op.Modern && arg != 0 {
			n++
		}
		return terminate(n)
	case op.RaiseVarargs:
		return terminate(arg)
	case op.JumpIfNotExcMatch:
		if err := (handlerLowering{fm}).checkTriple(in, 1); err != nil {
			return Flow{}, err
		}
		return branch(in.Pop(1))
	case op.PushExcInfo:
		top, err := in.Peek(0)
		if err != nil {
			return Flow{}, err
		}
		prev := stack.Slot{Kind: stack.PrevException, Region: top.Region}
		return replace(1, prev, top)
	case op.CheckExcMatch:
		return replace(1, stack.Value(stack.Bool))
	}
	return Flow{}, fmt.Errorf("%w: %s", errUnhandledOpcode, o.inst.Op)
}

func (o *Opcode) binary(in stack.Metadata, kind op.BinaryOpType) (Flow, error) {
	operands, err := in.Top(2)
	if err != nil {
		return Flow{}, err
	}
	result := stack.Value(stack.Object)
	a, b := operands[0].Kind, operands[1].Kind
	switch {
	case kind == op.TrueDivide:
		if (a == stack.Int || a == stack.Float) && (b == stack.Int || b == stack.Float) {
			result = stack.Value(stack.Float)
		}
	case a == stack.Int && b == stack.Int:
		if kind != op.Power {
			result = stack.Value(stack.Int)
		}
	case (a == stack.Float || a == stack.Int) && (b == stack.Float || b == stack.Int):
		result = stack.Value(stack.Float)
	case a == stack.Str && b == stack.Str && kind == op.Add:
		result = stack.Value(stack.Str)
	}
	s, _ := in.Pop(2)
	return Flow{Next: s.Push(result), Falls: true}, nil
}
