package compiler

import (
	"fmt"

	"github.com/deepnoodle-ai/lift/host"
	"github.com/deepnoodle-ai/lift/op"
	"github.com/deepnoodle-ai/lift/stack"
)

// Emit appends the host operations implementing the instruction to b. in
// is the stack shape before the instruction. Guest jump targets are host
// labels whose ID is the target offset.
func (o *Opcode) Emit(fm *FunctionMetadata, in stack.Metadata, b *host.Builder) error {
	fn := fm.Function()
	arg := o.inst.Arg
	h := handlerLowering{fm}
	invoke := func(helper host.Helper, args, results int) host.Invoke {
		return host.Invoke{Helper: helper, Args: args, Results: results}
	}
	binary := func(kind op.BinaryOpType) {
		b.Emit(host.Invoke{Helper: host.HelperBinaryOp, Args: 2, Results: 1, Arg: int(kind)})
	}
	test := func(jump host.Operation) {
		b.Emit(invoke(host.HelperIsTrue, 1, 1), jump)
	}

	switch o.inst.Op {
	case op.Nop, op.Resume, op.Cache:
	case op.PopTop:
		b.Emit(host.Pop{})
	case op.RotTwo:
		b.Emit(host.Swap{Depth: 1})
	case op.DupTop:
		b.Emit(host.Dup{})
	case op.Copy:
		b.Emit(host.Pick{Depth: arg - 1})
	case op.Swap:
		b.Emit(host.Swap{Depth: arg - 1})
	case op.PushNull:
		b.Emit(host.Const{Value: host.Null})

	case op.LoadConst:
		b.Emit(host.Const{Value: fn.ConstantAt(arg)})
	case op.LoadFast:
		b.Emit(host.LoadLocal{Index: arg})
	case op.StoreFast:
		b.Emit(host.StoreLocal{Index: arg})
	case op.DeleteFast:
		b.Emit(host.DeleteLocal{Index: arg})
	case op.LoadGlobal:
		if o.behavior.NullBit && arg&1 == 1 {
			b.Emit(host.Const{Value: host.Null})
		}
		b.Emit(host.LoadGlobal{Name: fn.NameAt(arg >> o.behavior.NameShift)})
	case op.StoreGlobal:
		b.Emit(host.StoreGlobal{Name: fn.NameAt(arg)})
	case op.LoadAttr:
		name := fn.NameAt(arg >> o.behavior.NameShift)
		if o.behavior.NullBit && arg&1 == 1 {
			b.Emit(host.Invoke{Helper: host.HelperGetMethod, Args: 1, Results: 2, Name: name})
		} else {
			b.Emit(host.Invoke{Helper: host.HelperGetAttr, Args: 1, Results: 1, Name: name})
		}
	case op.StoreAttr:
		b.Emit(host.Invoke{Helper: host.HelperSetAttr, Args: 2, Results: 0, Name: fn.NameAt(arg)})

	case op.UnaryNot:
		b.Emit(invoke(host.HelperUnaryNot, 1, 1))
	case op.UnaryNegative:
		b.Emit(invoke(host.HelperUnaryNegative, 1, 1))
	case op.BinaryAdd:
		binary(op.Add)
	case op.BinarySubtract:
		binary(op.Subtract)
	case op.BinaryMultiply:
		binary(op.Multiply)
	case op.BinaryOp:
		binary(op.BinaryOpType(arg))
	case op.CompareOp:
		b.Emit(host.Invoke{Helper: host.HelperCompare, Args: 2, Results: 1, Arg: arg >> o.behavior.CompareShift})
	case op.IsOp:
		b.Emit(host.Invoke{Helper: host.HelperIs, Args: 2, Results: 1, Arg: arg})
	case op.ContainsOp:
		b.Emit(host.Invoke{Helper: host.HelperContains, Args: 2, Results: 1, Arg: arg})

	case op.BuildTuple:
		b.Emit(invoke(host.HelperBuildTuple, arg, 1))
	case op.BuildList:
		b.Emit(invoke(host.HelperBuildList, arg, 1))

	case op.CallFunction:
		b.Emit(invoke(host.HelperCall, arg+o.behavior.CallPrefix, 1))
	case op.Call:
		b.Emit(invoke(host.HelperCallMethod, arg+o.behavior.CallPrefix, 1))
	case op.ReturnValue:
		b.Emit(host.Return{})

	case op.GetIter:
		b.Emit(invoke(host.HelperGetIter, 1, 1))
	case op.ForIter:
		next := b.NewLabel()
		b.Emit(
			host.Dup{},
			invoke(host.HelperIterNext, 1, 2),
			host.IfTrue{Label: next},
			host.Pop{},
			host.Pop{},
			host.Goto{Label: arg},
			host.Label{ID: next},
		)

	case op.JumpForward, op.JumpAbsolute, op.JumpBackward:
		b.Emit(host.Goto{Label: arg})
	case op.PopJumpIfFalse:
		test(host.IfFalse{Label: arg})
	case op.PopJumpIfTrue:
		test(host.IfTrue{Label: arg})

	case op.SetupFinally, op.PopBlock:
		// Protection is attached to the operations of each instruction.
	case op.PopExcept:
		h.leave(b, in, o.behavior.ExceptionSlots)
	case op.Reraise:
		h.reraise(b, arg)
	case op.RaiseVarargs:
		switch arg {
		case 0:
			b.Emit(host.GetHandled{})
		case 1:
			b.Emit(invoke(host.HelperMakeException, 1, 1))
		case 2:
			b.Emit(invoke(host.HelperMakeFrom, 2, 1))
		}
		b.Emit(host.Throw{})
	case op.JumpIfNotExcMatch:
		// [type, value, traceback, match]
		b.Emit(
			host.Pick{Depth: 3},
			host.Swap{Depth: 1},
			invoke(host.HelperExcMatches, 2, 1),
			host.IfFalse{Label: arg},
		)
	case op.PushExcInfo:
		b.Emit(host.GetHandled{}, host.Swap{Depth: 1}, host.Dup{}, host.SetHandled{})
	case op.CheckExcMatch:
		// [exception, match]
		b.Emit(host.Pick{Depth: 1}, host.Swap{Depth: 1}, invoke(host.HelperExcMatches, 2, 1))

	default:
		return fmt.Errorf("%w: %s", errUnhandledOpcode, o.inst.Op)
	}
	return nil
}
