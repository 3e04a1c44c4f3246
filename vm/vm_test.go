package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/deepnoodle-ai/lift/host"
	"github.com/deepnoodle-ai/lift/op"
	"github.com/stretchr/testify/require"
)

func binary(kind op.BinaryOpType) host.Invoke {
	return host.Invoke{Helper: host.HelperBinaryOp, Args: 2, Results: 1, Arg: int(kind)}
}

func run(t *testing.T, r *host.Routine, args ...any) (any, error) {
	t.Helper()
	return New().Run(context.Background(), r, args...)
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		a, b     any
		kind     op.BinaryOpType
		expected any
	}{
		{"add", int64(2), int64(3), op.Add, int64(5)},
		{"subtract", int64(2), int64(3), op.Subtract, int64(-1)},
		{"multiply", int64(4), int64(3), op.Multiply, int64(12)},
		{"floor", int64(-7), int64(2), op.FloorDivide, int64(-4)},
		{"remainder", int64(-7), int64(2), op.Remainder, int64(1)},
		{"true divide", int64(7), int64(2), op.TrueDivide, 3.5},
		{"power", int64(2), int64(10), op.Power, int64(1024)},
		{"mixed", int64(1), 0.5, op.Add, 1.5},
		{"concat", "ab", "cd", op.Add, "abcd"},
		{"inplace", int64(1), int64(1), op.Add + op.InplaceOffset, int64(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &host.Routine{LocalCount: 2, Ops: []host.Operation{
				host.LoadLocal{Index: 0},
				host.LoadLocal{Index: 1},
				binary(tt.kind),
				host.Return{},
			}}
			result, err := run(t, r, tt.a, tt.b)
			require.Nil(t, err)
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestUncaughtException(t *testing.T) {
	r := &host.Routine{
		Ops: []host.Operation{
			host.Const{Value: int64(1)},
			host.Const{Value: int64(0)},
			binary(op.TrueDivide),
			host.Return{},
		},
		Origins: []int{0, 2, 4, 6},
	}
	_, err := run(t, r)
	var exc *Exception
	require.True(t, errors.As(err, &exc))
	require.Equal(t, ZeroDivisionError, exc.Class)
	require.Equal(t, 4, exc.Lasti)
	require.Equal(t, []int{4}, exc.Traceback)
	require.Equal(t, "ZeroDivisionError: division by zero", err.Error())
}

func TestProtectedRegion(t *testing.T) {
	// try: 1/0 except ZeroDivisionError: return "caught"
	r := &host.Routine{
		Ops: []host.Operation{
			host.Const{Value: "below"},  // 0
			host.Const{Value: int64(1)}, // 1
			host.Const{Value: int64(0)}, // 2
			binary(op.TrueDivide),       // 3
			host.Return{},               // 4
			host.Label{ID: 10},          // 5: [below, exc]
			host.LoadGlobal{Name: "ZeroDivisionError"},
			host.Invoke{Helper: host.HelperExcMatches, Args: 2, Results: 1},
			host.IfFalse{Label: 20},
			host.Pop{},
			host.Const{Value: "caught"},
			host.Return{},
			host.Label{ID: 20},
			host.Const{Value: "other"},
			host.Return{},
		},
		Regions: []host.ProtectedRegion{{Start: 1, End: 5, Handler: 10, Depth: 1}},
	}
	result, err := run(t, r)
	require.Nil(t, err)
	require.Equal(t, "caught", result)
}

func TestHandledRegister(t *testing.T) {
	vm := New()
	r := &host.Routine{Ops: []host.Operation{
		host.LoadGlobal{Name: "ValueError"},
		host.Invoke{Helper: host.HelperMakeException, Args: 1, Results: 1},
		host.SetHandled{},
		host.GetHandled{},
		host.Throw{},
	}}
	_, err := vm.Run(context.Background(), r)
	var exc *Exception
	require.True(t, errors.As(err, &exc))
	require.Equal(t, ValueError, exc.Class)
	require.Equal(t, exc, vm.Handled())
}

func TestReraiseWithoutActiveException(t *testing.T) {
	r := &host.Routine{Ops: []host.Operation{host.GetHandled{}, host.Throw{}}}
	_, err := run(t, r)
	var exc *Exception
	require.True(t, errors.As(err, &exc))
	require.Equal(t, RuntimeError, exc.Class)
}

func TestUnboundLocal(t *testing.T) {
	r := &host.Routine{LocalCount: 1, Ops: []host.Operation{host.LoadLocal{Index: 0}, host.Return{}}}
	_, err := run(t, r)
	var exc *Exception
	require.True(t, errors.As(err, &exc))
	require.True(t, exc.Class.IsSubclass(NameError))
}

func TestCallFunctionAndBuiltins(t *testing.T) {
	double := &host.Routine{Name: "double", LocalCount: 1, Ops: []host.Operation{
		host.LoadLocal{Index: 0},
		host.Const{Value: int64(2)},
		binary(op.Multiply),
		host.Return{},
	}}
	main := &host.Routine{Name: "main", Ops: []host.Operation{
		host.LoadGlobal{Name: "double"},
		host.LoadGlobal{Name: "len"},
		host.Const{Value: "abc"},
		host.Invoke{Helper: host.HelperCall, Args: 2, Results: 1},
		host.Invoke{Helper: host.HelperCall, Args: 2, Results: 1},
		host.Return{},
	}}
	vm := New(WithGlobals(map[string]any{"double": double}))
	result, err := vm.Run(context.Background(), main)
	require.Nil(t, err)
	require.Equal(t, int64(6), result)
}

func TestCallMethodPrefix(t *testing.T) {
	r := &host.Routine{Ops: []host.Operation{
		host.Const{Value: host.Null},
		host.LoadGlobal{Name: "len"},
		host.Const{Value: []any{int64(1), int64(2)}},
		host.Invoke{Helper: host.HelperCallMethod, Args: 3, Results: 1},
		host.Return{},
	}}
	result, err := run(t, r)
	require.Nil(t, err)
	require.Equal(t, int64(2), result)
}

func TestIteration(t *testing.T) {
	// total = 0; for x in [1, 2, 3]: total += x
	r := &host.Routine{LocalCount: 1, Ops: []host.Operation{
		host.Const{Value: int64(0)},
		host.StoreLocal{Index: 0},
		host.Const{Value: []any{int64(1), int64(2), int64(3)}},
		host.Invoke{Helper: host.HelperGetIter, Args: 1, Results: 1},
		host.Label{ID: 1},
		host.Dup{},
		host.Invoke{Helper: host.HelperIterNext, Args: 1, Results: 2},
		host.IfTrue{Label: -1},
		host.Pop{},
		host.Pop{},
		host.Goto{Label: 2},
		host.Label{ID: -1},
		host.LoadLocal{Index: 0},
		binary(op.Add),
		host.StoreLocal{Index: 0},
		host.Goto{Label: 1},
		host.Label{ID: 2},
		host.LoadLocal{Index: 0},
		host.Return{},
	}}
	result, err := run(t, r)
	require.Nil(t, err)
	require.Equal(t, int64(6), result)
}

func TestExec(t *testing.T) {
	vm := New()
	snippet, err := vm.Exec(context.Background(),
		[]host.Operation{host.Swap{Depth: 1}, host.Pop{}},
		[]any{int64(1), int64(2)}, nil)
	require.Nil(t, err)
	require.True(t, snippet.FellThrough)
	require.Equal(t, []any{int64(2)}, snippet.Stack)

	snippet, err = vm.Exec(context.Background(),
		[]host.Operation{host.IfFalse{Label: 40}},
		[]any{false}, nil)
	require.Nil(t, err)
	require.True(t, snippet.Exited)
	require.Equal(t, 40, snippet.Exit)
	require.Empty(t, snippet.Stack)

	snippet, err = vm.Exec(context.Background(),
		[]host.Operation{host.StoreLocal{Index: 1}},
		[]any{"x"}, []any{Unbound, Unbound})
	require.Nil(t, err)
	require.Equal(t, "x", snippet.Locals[1])
	require.Equal(t, Unbound, snippet.Locals[0])
}

func TestMaxSteps(t *testing.T) {
	r := &host.Routine{Ops: []host.Operation{host.Label{ID: 0}, host.Goto{Label: 0}}}
	_, err := New(WithMaxSteps(100)).Run(context.Background(), r)
	require.True(t, errors.Is(err, ErrStepLimit))
}

func TestContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &host.Routine{Ops: []host.Operation{host.Label{ID: 0}, host.Goto{Label: 0}}}
	_, err := New(WithContextCheckInterval(10)).Run(ctx, r)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestInternalFaults(t *testing.T) {
	_, err := run(t, &host.Routine{Ops: []host.Operation{host.Pop{}}})
	require.NotNil(t, err)
	var exc *Exception
	require.False(t, errors.As(err, &exc))

	_, err = run(t, &host.Routine{Ops: []host.Operation{host.Goto{Label: 5}}})
	require.NotNil(t, err)

	_, err = run(t, &host.Routine{Ops: []host.Operation{host.Const{Value: int64(1)}}})
	require.NotNil(t, err)
}

func TestCustomHelper(t *testing.T) {
	called := false
	vm := New(WithHelpers(map[host.Helper]HelperFunc{
		host.HelperIsTrue: func(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
			called = true
			return []any{true}, nil
		},
	}))
	r := &host.Routine{Ops: []host.Operation{
		host.Const{Value: nil},
		host.Invoke{Helper: host.HelperIsTrue, Args: 1, Results: 1},
		host.Return{},
	}}
	result, err := vm.Run(context.Background(), r)
	require.Nil(t, err)
	require.Equal(t, true, result)
	require.True(t, called)
}
