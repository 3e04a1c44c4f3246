package compiler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/deepnoodle-ai/lift/bytecode"
	"github.com/deepnoodle-ai/lift/host"
	"github.com/deepnoodle-ai/lift/op"
	"github.com/deepnoodle-ai/lift/stack"
	"github.com/deepnoodle-ai/lift/version"
	"github.com/deepnoodle-ai/lift/vm"
	"github.com/stretchr/testify/require"
)

var allVersions = []version.Version{version.Py39, version.Py310, version.Py311, version.Py312}

type ins struct {
	op  op.Code
	arg int
}

// assemble lays instructions out two bytes apart, starting at offset 0.
func assemble(code ...ins) []bytecode.Instruction {
	out := make([]bytecode.Instruction, len(code))
	for i, c := range code {
		out[i] = bytecode.Instruction{Offset: 2 * i, Op: c.op, Arg: c.arg, Line: 1 + i}
	}
	return out
}

// single wraps one instruction at offset 0 in a function with two trailing
// NOPs, so jumps may target offset 4.
func single(v version.Version, code op.Code, arg int) *bytecode.Function {
	return bytecode.NewFunction(bytecode.FunctionParams{
		Name:         "single",
		Version:      v,
		Instructions: assemble(ins{code, arg}, ins{op.Nop, 0}, ins{op.Nop, 0}),
		Constants:    []any{int64(7)},
		Names:        []string{"len", "name"},
		LocalNames:   []string{"x"},
	})
}

func objects(n int) stack.Metadata {
	s := stack.New(1, 0)
	for i := 0; i < n; i++ {
		s = s.Push(stack.Value(stack.Object))
	}
	return s
}

func newIterator(t *testing.T, items ...any) any {
	t.Helper()
	snip, err := vm.New().Exec(context.Background(),
		[]host.Operation{host.Invoke{Helper: host.HelperGetIter, Args: 1, Results: 1}},
		[]any{vm.Tuple(items)}, nil)
	require.Nil(t, err)
	require.Len(t, snip.Stack, 1)
	return snip.Stack[0]
}

type effectCase struct {
	name   string
	code   op.Code
	arg    int
	argAt  func(v version.Version) int
	values func(t *testing.T) []any
	locals []any
	slots  []stack.Slot
	raises bool
	// dialect restricts the case to one dialect when set.
	dialect op.Dialect
}

func (c effectCase) argFor(v version.Version) int {
	if c.argAt != nil {
		return c.argAt(v)
	}
	return c.arg
}

func (c effectCase) input(t *testing.T) ([]any, stack.Metadata) {
	var values []any
	if c.values != nil {
		values = c.values(t)
	}
	in := objects(len(values))
	if c.slots != nil {
		require.Len(t, c.slots, len(values))
		in = stack.New(1, 0).Push(c.slots...)
	}
	return values, in
}

func vals(v ...any) func(t *testing.T) []any {
	return func(t *testing.T) []any { return v }
}

func modernShift(arg int) func(v version.Version) int {
	return func(v version.Version) int {
		if v.IsAtLeast(version.Py312) {
			return arg << 4
		}
		return arg
	}
}

func effectCases() []effectCase {
	lenFn := vm.DefaultGlobals()["len"]
	boom := func() *vm.Exception { return vm.NewException(vm.ValueError, "boom") }
	triple := []stack.Slot{
		stack.Tagged(stack.ExcType, 1),
		stack.Tagged(stack.ExcValue, 1),
		stack.Tagged(stack.ExcTraceback, 1),
	}
	return []effectCase{
		{name: "nop", code: op.Nop},
		{name: "resume", code: op.Resume},
		{name: "cache", code: op.Cache},
		{name: "pop top", code: op.PopTop, values: vals(int64(1))},
		{name: "rot two", code: op.RotTwo, values: vals(int64(1), int64(2))},
		{name: "dup top", code: op.DupTop, values: vals(int64(1))},
		{name: "copy", code: op.Copy, arg: 2, values: vals(int64(1), int64(2))},
		{name: "swap", code: op.Swap, arg: 2, values: vals(int64(1), int64(2))},
		{name: "push null", code: op.PushNull},
		{name: "load const", code: op.LoadConst},
		{name: "load fast", code: op.LoadFast, locals: []any{int64(5)}},
		{name: "store fast", code: op.StoreFast, values: vals(int64(1))},
		{name: "delete fast", code: op.DeleteFast, locals: []any{int64(5)}},
		{name: "load global", code: op.LoadGlobal, argAt: func(v version.Version) int {
			if v.IsAtLeast(version.ExceptionTable) {
				return 1
			}
			return 0
		}},
		{name: "store global", code: op.StoreGlobal, values: vals(int64(1))},
		{name: "load attr", code: op.LoadAttr, argAt: func(v version.Version) int {
			if v.IsAtLeast(version.Py312) {
				return 1<<1 | 1
			}
			return 1
		}, values: func(*testing.T) []any {
			return []any{vm.NewRecord("point", map[string]any{"name": "x"})}
		}},
		{name: "store attr", code: op.StoreAttr, arg: 1, values: func(*testing.T) []any {
			return []any{"y", vm.NewRecord("point", map[string]any{"name": "x"})}
		}},
		{name: "unary not", code: op.UnaryNot, values: vals(true)},
		{name: "unary negative", code: op.UnaryNegative, values: vals(int64(3))},
		{name: "binary add", code: op.BinaryAdd, values: vals(int64(1), int64(2))},
		{name: "binary subtract", code: op.BinarySubtract, values: vals(int64(1), int64(2))},
		{name: "binary multiply", code: op.BinaryMultiply, values: vals(int64(1), int64(2))},
		{name: "binary op", code: op.BinaryOp, arg: int(op.TrueDivide), values: vals(int64(1), int64(2))},
		{name: "compare", code: op.CompareOp, argAt: modernShift(int(op.LessThan)), values: vals(int64(1), int64(2))},
		{name: "is", code: op.IsOp, values: vals(int64(1), int64(1))},
		{name: "contains", code: op.ContainsOp, values: vals(int64(1), vm.Tuple{int64(1)})},
		{name: "build tuple", code: op.BuildTuple, arg: 2, values: vals(int64(1), int64(2))},
		{name: "build list", code: op.BuildList, arg: 2, values: vals(int64(1), int64(2))},
		{name: "call function", code: op.CallFunction, arg: 1, values: vals(lenFn, vm.Tuple{int64(1), int64(2)})},
		{name: "call", code: op.Call, arg: 1, values: vals(host.Null, lenFn, vm.Tuple{int64(1), int64(2)})},
		{name: "return", code: op.ReturnValue, values: vals(int64(1))},
		{name: "get iter", code: op.GetIter, values: vals(vm.Tuple{int64(1)})},
		{name: "for iter next", code: op.ForIter, arg: 4, values: func(t *testing.T) []any {
			return []any{newIterator(t, int64(1))}
		}},
		{name: "for iter exhausted", code: op.ForIter, arg: 4, values: func(t *testing.T) []any {
			return []any{newIterator(t)}
		}},
		{name: "jump forward", code: op.JumpForward, arg: 4},
		{name: "jump absolute", code: op.JumpAbsolute, arg: 4},
		{name: "jump backward", code: op.JumpBackward, arg: 4},
		{name: "pop jump if false taken", code: op.PopJumpIfFalse, arg: 4, values: vals(false)},
		{name: "pop jump if false not taken", code: op.PopJumpIfFalse, arg: 4, values: vals(true)},
		{name: "pop jump if true", code: op.PopJumpIfTrue, arg: 4, values: vals(true)},
		{name: "setup finally", code: op.SetupFinally, arg: 4},
		{name: "pop block", code: op.PopBlock},
		{name: "pop except", code: op.PopExcept, dialect: op.Legacy, values: func(*testing.T) []any {
			return []any{vm.ValueError, boom(), vm.Tuple{}}
		}},
		{name: "pop except", code: op.PopExcept, dialect: op.Modern, values: func(*testing.T) []any {
			return []any{boom()}
		}},
		{name: "reraise", code: op.Reraise, dialect: op.Legacy, raises: true, values: func(*testing.T) []any {
			return []any{vm.ValueError, boom(), vm.Tuple{}}
		}},
		{name: "reraise", code: op.Reraise, dialect: op.Modern, raises: true, values: func(*testing.T) []any {
			return []any{boom()}
		}},
		{name: "reraise lasti", code: op.Reraise, arg: 1, dialect: op.Modern, raises: true, values: func(*testing.T) []any {
			return []any{int64(4), boom()}
		}},
		{name: "raise bare", code: op.RaiseVarargs, arg: 0, raises: true},
		{name: "raise", code: op.RaiseVarargs, arg: 1, raises: true, values: vals(vm.ValueError)},
		{name: "raise from", code: op.RaiseVarargs, arg: 2, raises: true, values: vals(vm.ValueError, vm.TypeError)},
		{
			name: "jump if not exc match", code: op.JumpIfNotExcMatch, arg: 4,
			values: func(*testing.T) []any {
				return []any{vm.ValueError, boom(), vm.Tuple{}, vm.TypeError}
			},
			slots: append(append([]stack.Slot{}, triple...), stack.Value(stack.Object)),
		},
		{name: "push exc info", code: op.PushExcInfo, values: func(*testing.T) []any {
			return []any{boom()}
		}},
		{name: "check exc match", code: op.CheckExcMatch, values: func(*testing.T) []any {
			return []any{boom(), vm.ValueError}
		}},
	}
}

// caseVersions returns the versions whose policy covers c.
func caseVersions(c effectCase) []version.Version {
	var out []version.Version
	for _, v := range allVersions {
		behavior, err := op.Resolve(c.code, v)
		if err != nil {
			continue
		}
		if c.dialect != 0 && behavior.Dialect != c.dialect {
			continue
		}
		out = append(out, v)
	}
	return out
}

func TestStackEffectMatchesEmittedCode(t *testing.T) {
	ctx := context.Background()
	for _, c := range effectCases() {
		for _, v := range caseVersions(c) {
			t.Run(fmt.Sprintf("%s/%s", c.name, v), func(t *testing.T) {
				fn := single(v, c.code, c.argFor(v))
				fm, err := NewFunctionMetadata(fn)
				require.Nil(t, err)
				o, err := NewOpcode(fm, fn.InstructionAt(0))
				require.Nil(t, err)

				values, in := c.input(t)
				flow, err := o.Flow(fm, in)
				require.Nil(t, err)

				b := host.NewBuilder("probe", fm.HostLocals())
				require.Nil(t, o.Emit(fm, in, b))

				locals := make([]any, fm.HostLocals())
				for i := range locals {
					locals[i] = vm.Unbound
					if i < len(c.locals) {
						locals[i] = c.locals[i]
					}
				}
				snip, err := vm.New().Exec(ctx, b.Build().Ops, values, locals)
				require.Nil(t, err)

				switch {
				case snip.Thrown != nil:
					require.True(t, c.raises, "unexpected exception: %v", snip.Thrown)
					require.False(t, flow.Falls)
					require.Len(t, snip.Stack, flow.Next.Depth())
				case snip.Returned:
					require.False(t, flow.Falls)
					require.Len(t, snip.Stack, flow.Next.Depth())
				case snip.Exited:
					require.False(t, c.raises)
					var edge *Edge
					for i := range flow.Branches {
						if flow.Branches[i].Target == snip.Exit {
							edge = &flow.Branches[i]
						}
					}
					require.NotNil(t, edge, "no edge to %d", snip.Exit)
					require.Len(t, snip.Stack, edge.Stack.Depth())
				default:
					require.True(t, snip.FellThrough)
					require.False(t, c.raises)
					require.True(t, flow.Falls)
					require.Len(t, snip.Stack, flow.Next.Depth())
				}
			})
		}
	}
}

func TestEveryPolicyRuleHasEffectCase(t *testing.T) {
	covered := map[op.Code]bool{}
	for _, c := range effectCases() {
		covered[c.code] = true
	}
	for _, rule := range op.Rules() {
		require.True(t, covered[rule.Code], "no effect case for %s", rule.Code)
	}
}

func TestFlowAndEmitHandleEveryResolvedOpcode(t *testing.T) {
	for _, rule := range op.Rules() {
		for _, v := range allVersions {
			if !rule.Contains(v) {
				continue
			}
			arg := 0
			switch rule.Code {
			case op.Copy:
				arg = 1
			case op.Swap:
				arg = 2
			}
			info := op.GetInfo(rule.Code)
			if info.Jump {
				arg = 4
			}
			fn := single(v, rule.Code, arg)
			fm, err := NewFunctionMetadata(fn)
			require.Nil(t, err)
			o, err := NewOpcode(fm, fn.InstructionAt(0))
			require.Nil(t, err, "%s under %s", rule.Code, v)

			_, err = o.Flow(fm, objects(8))
			require.False(t, errors.Is(err, errUnhandledOpcode), "%s under %s", rule.Code, v)
			err = o.Emit(fm, objects(8), host.NewBuilder("probe", fm.HostLocals()))
			require.False(t, errors.Is(err, errUnhandledOpcode), "%s under %s", rule.Code, v)
		}
	}
}

func TestStackEffectIsPure(t *testing.T) {
	fn := single(version.Py310, op.BinaryAdd, 0)
	fm, err := NewFunctionMetadata(fn)
	require.Nil(t, err)
	o, err := NewOpcode(fm, fn.InstructionAt(0))
	require.Nil(t, err)

	in := stack.New(1, 0).Push(stack.Const(int64(1)), stack.Const(int64(2)))
	out, err := o.StackEffect(fm, in)
	require.Nil(t, err)
	require.Equal(t, 2, in.Depth())
	require.Equal(t, 1, out.Depth())
	top, err := out.Peek(0)
	require.Nil(t, err)
	require.Equal(t, stack.Int, top.Kind)

	again, err := o.StackEffect(fm, in)
	require.Nil(t, err)
	require.True(t, stack.Equal(out, again))
}

func TestNewOpcodeValidation(t *testing.T) {
	tests := []struct {
		name string
		v    version.Version
		code op.Code
		arg  int
	}{
		{"bad jump", version.Py310, op.JumpForward, 3},
		{"const range", version.Py310, op.LoadConst, 1},
		{"local range", version.Py310, op.LoadFast, 1},
		{"name range", version.Py311, op.LoadGlobal, 4 << 1},
		{"copy zero", version.Py311, op.Copy, 0},
		{"swap one", version.Py311, op.Swap, 1},
		{"raise three", version.Py310, op.RaiseVarargs, 3},
		{"binary operator", version.Py311, op.BinaryOp, 4},
		{"comparison", version.Py310, op.CompareOp, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := single(tt.v, tt.code, tt.arg)
			fm, err := NewFunctionMetadata(fn)
			require.Nil(t, err)
			_, err = NewOpcode(fm, fn.InstructionAt(0))
			require.NotNil(t, err)
		})
	}
}

func TestNewOpcodeUnsupportedVersion(t *testing.T) {
	fn := single(version.Py311, op.SetupFinally, 4)
	fm, err := NewFunctionMetadata(fn)
	require.Nil(t, err)
	_, err = NewOpcode(fm, fn.InstructionAt(0))
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "SETUP_FINALLY")
}
