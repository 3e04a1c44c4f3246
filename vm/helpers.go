package vm

import (
	"context"
	"math"
	"strings"

	"github.com/deepnoodle-ai/lift/host"
	"github.com/deepnoodle-ai/lift/op"
)

// HelperFunc implements one runtime helper. args holds the invoked operands,
// bottom-most first. The returned slice must have exactly inv.Results
// entries. A returned error is raised as a guest exception.
type HelperFunc func(ctx context.Context, vm *VirtualMachine, inv host.Invoke, args []any) ([]any, error)

// DefaultHelpers returns the helper registry used when none is configured.
func DefaultHelpers() map[host.Helper]HelperFunc {
	return map[host.Helper]HelperFunc{
		host.HelperUnaryNot:       unaryNot,
		host.HelperUnaryNegative:  unaryNegative,
		host.HelperBinaryOp:       binaryOp,
		host.HelperCompare:        compare,
		host.HelperIs:             isOp,
		host.HelperContains:       containsOp,
		host.HelperIsTrue:         isTrue,
		host.HelperBuildTuple:     buildTuple,
		host.HelperBuildList:      buildList,
		host.HelperCall:           call,
		host.HelperCallMethod:     callMethod,
		host.HelperGetAttr:        getAttr,
		host.HelperGetMethod:      getMethod,
		host.HelperSetAttr:        setAttr,
		host.HelperGetIter:        getIter,
		host.HelperIterNext:       iterNext,
		host.HelperExceptionType:  exceptionType,
		host.HelperExceptionTrace: exceptionTraceback,
		host.HelperExcMatches:     excMatches,
		host.HelperMakeException:  makeException,
		host.HelperMakeFrom:       makeExceptionFrom,
		host.HelperExcLasti:       excLasti,
	}
}

func one(v any) ([]any, error) {
	return []any{v}, nil
}

func unaryNot(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	return one(!truthy(args[0]))
}

func unaryNegative(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	switch v := args[0].(type) {
	case int64:
		return one(-v)
	case float64:
		return one(-v)
	case bool:
		if v {
			return one(int64(-1))
		}
		return one(int64(0))
	}
	return nil, Errorf(TypeError, "bad operand type for unary -: '%s'", typeName(args[0]))
}

func binaryOp(_ context.Context, _ *VirtualMachine, inv host.Invoke, args []any) ([]any, error) {
	kind := op.BinaryOpType(inv.Arg)
	if kind >= op.InplaceOffset {
		kind -= op.InplaceOffset
	}
	a, b := args[0], args[1]
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return intOp(kind, x, y)
		case float64:
			return floatOp(kind, float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return floatOp(kind, x, float64(y))
		case float64:
			return floatOp(kind, x, y)
		}
	case string:
		switch y := b.(type) {
		case string:
			if kind == op.Add {
				return one(x + y)
			}
		case int64:
			if kind == op.Multiply && y >= 0 {
				return one(strings.Repeat(x, int(y)))
			}
		}
	case Tuple:
		if y, ok := b.(Tuple); ok && kind == op.Add {
			out := append(append(Tuple{}, x...), y...)
			return one(out)
		}
	case *List:
		if y, ok := b.(*List); ok && kind == op.Add {
			if inv.Arg >= int(op.InplaceOffset) {
				x.Items = append(x.Items, y.Items...)
				return one(x)
			}
			out := &List{Items: append(append([]any{}, x.Items...), y.Items...)}
			return one(out)
		}
	}
	return nil, Errorf(TypeError, "unsupported operand type(s) for %s: '%s' and '%s'",
		kind, typeName(a), typeName(b))
}

func intOp(kind op.BinaryOpType, x, y int64) ([]any, error) {
	switch kind {
	case op.Add:
		return one(x + y)
	case op.Subtract:
		return one(x - y)
	case op.Multiply:
		return one(x * y)
	case op.And:
		return one(x & y)
	case op.Or:
		return one(x | y)
	case op.Xor:
		return one(x ^ y)
	case op.LShift:
		if y < 0 {
			return nil, Errorf(ValueError, "negative shift count")
		}
		return one(x << uint64(y))
	case op.RShift:
		if y < 0 {
			return nil, Errorf(ValueError, "negative shift count")
		}
		return one(x >> uint64(y))
	case op.FloorDivide, op.Remainder:
		if y == 0 {
			return nil, Errorf(ZeroDivisionError, "integer division or modulo by zero")
		}
		q, r := x/y, x%y
		if r != 0 && (r < 0) != (y < 0) {
			q--
			r += y
		}
		if kind == op.FloorDivide {
			return one(q)
		}
		return one(r)
	case op.TrueDivide:
		if y == 0 {
			return nil, Errorf(ZeroDivisionError, "division by zero")
		}
		return one(float64(x) / float64(y))
	case op.Power:
		if y < 0 {
			return one(math.Pow(float64(x), float64(y)))
		}
		result := int64(1)
		for i := int64(0); i < y; i++ {
			result *= x
		}
		return one(result)
	}
	return nil, Errorf(TypeError, "unsupported operator %d", kind)
}

func floatOp(kind op.BinaryOpType, x, y float64) ([]any, error) {
	switch kind {
	case op.Add:
		return one(x + y)
	case op.Subtract:
		return one(x - y)
	case op.Multiply:
		return one(x * y)
	case op.TrueDivide:
		if y == 0 {
			return nil, Errorf(ZeroDivisionError, "float division by zero")
		}
		return one(x / y)
	case op.FloorDivide:
		if y == 0 {
			return nil, Errorf(ZeroDivisionError, "float floor division by zero")
		}
		return one(math.Floor(x / y))
	case op.Remainder:
		if y == 0 {
			return nil, Errorf(ZeroDivisionError, "float modulo")
		}
		return one(x - y*math.Floor(x/y))
	case op.Power:
		return one(math.Pow(x, y))
	}
	return nil, Errorf(TypeError, "unsupported operand type(s) for %s: 'float' and 'float'", kind)
}

func compare(_ context.Context, _ *VirtualMachine, inv host.Invoke, args []any) ([]any, error) {
	kind := op.CompareOpType(inv.Arg)
	a, b := args[0], args[1]
	switch kind {
	case op.Equal:
		return one(equal(a, b))
	case op.NotEqual:
		return one(!equal(a, b))
	}
	c, err := order(a, b)
	if err != nil {
		return nil, Errorf(TypeError, "'%s' not supported between instances of '%s' and '%s'",
			kind, typeName(a), typeName(b))
	}
	switch kind {
	case op.LessThan:
		return one(c < 0)
	case op.LessThanOrEqual:
		return one(c <= 0)
	case op.GreaterThan:
		return one(c > 0)
	case op.GreaterThanOrEqual:
		return one(c >= 0)
	}
	return nil, Errorf(TypeError, "unsupported comparison %d", inv.Arg)
}

func order(a, b any) (int, error) {
	toFloat := func(v any) (float64, bool) {
		switch v := v.(type) {
		case int64:
			return float64(v), true
		case float64:
			return v, true
		case bool:
			if v {
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			}
			return 0, nil
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	}
	return 0, Errorf(TypeError, "unorderable")
}

func isOp(_ context.Context, _ *VirtualMachine, inv host.Invoke, args []any) ([]any, error) {
	return one(identical(args[0], args[1]) != (inv.Arg != 0))
}

func containsOp(_ context.Context, _ *VirtualMachine, inv host.Invoke, args []any) ([]any, error) {
	needle, container := args[0], args[1]
	found := false
	if s, ok := container.(string); ok {
		sub, ok := needle.(string)
		if !ok {
			return nil, Errorf(TypeError, "'in <string>' requires string as left operand, not %s", typeName(needle))
		}
		found = strings.Contains(s, sub)
	} else {
		seq, ok := items(container)
		if !ok {
			return nil, Errorf(TypeError, "argument of type '%s' is not iterable", typeName(container))
		}
		for _, item := range seq {
			if equal(item, needle) {
				found = true
				break
			}
		}
	}
	return one(found != (inv.Arg != 0))
}

func isTrue(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	return one(truthy(args[0]))
}

func buildTuple(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	return one(append(Tuple{}, args...))
}

func buildList(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	return one(&List{Items: append([]any{}, args...)})
}

func call(ctx context.Context, vm *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	result, err := vm.Call(ctx, args[0], args[1:]...)
	if err != nil {
		return nil, err
	}
	return one(result)
}

// callMethod handles the modern call prefix: NULL and a callable, or a
// method and its receiver.
func callMethod(ctx context.Context, vm *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	var result any
	var err error
	if args[0] == host.Null {
		result, err = vm.Call(ctx, args[1], args[2:]...)
	} else if args[1] == host.Null {
		result, err = vm.Call(ctx, args[0], args[2:]...)
	} else {
		result, err = vm.Call(ctx, args[0], args[1:]...)
	}
	if err != nil {
		return nil, err
	}
	return one(result)
}

func attr(obj any, name string) (any, error) {
	switch o := obj.(type) {
	case *Record:
		if v, ok := o.Attrs[name]; ok {
			return v, nil
		}
	case *Exception:
		switch name {
		case "args":
			return append(Tuple{}, o.Args...), nil
		case "__cause__":
			if o.Cause == nil {
				return nil, nil
			}
			return o.Cause, nil
		}
	case *Class:
		if name == "__name__" {
			return o.Name, nil
		}
	case *List:
		if name == "append" {
			return &Builtin{Name: "append", Fn: func(args ...any) (any, error) {
				o.Items = append(o.Items, args...)
				return nil, nil
			}}, nil
		}
	}
	return nil, Errorf(AttributeError, "'%s' object has no attribute '%s'", typeName(obj), name)
}

func getAttr(_ context.Context, _ *VirtualMachine, inv host.Invoke, args []any) ([]any, error) {
	v, err := attr(args[0], inv.Name)
	if err != nil {
		return nil, err
	}
	return one(v)
}

// getMethod leaves NULL below the attribute so the call consumes the same
// prefix as a plain function call.
func getMethod(_ context.Context, _ *VirtualMachine, inv host.Invoke, args []any) ([]any, error) {
	v, err := attr(args[0], inv.Name)
	if err != nil {
		return nil, err
	}
	return []any{host.Null, v}, nil
}

func setAttr(_ context.Context, _ *VirtualMachine, inv host.Invoke, args []any) ([]any, error) {
	value, obj := args[0], args[1]
	r, ok := obj.(*Record)
	if !ok {
		return nil, Errorf(AttributeError, "'%s' object attribute '%s' is read-only", typeName(obj), inv.Name)
	}
	r.Attrs[inv.Name] = value
	return nil, nil
}

func getIter(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	if it, ok := args[0].(*iterator); ok {
		return one(it)
	}
	seq, ok := items(args[0])
	if !ok {
		return nil, Errorf(TypeError, "'%s' object is not iterable", typeName(args[0]))
	}
	return one(&iterator{items: append([]any{}, seq...)})
}

func iterNext(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	it, ok := args[0].(*iterator)
	if !ok {
		return nil, Errorf(TypeError, "'%s' object is not an iterator", typeName(args[0]))
	}
	if it.pos >= len(it.items) {
		return []any{nil, false}, nil
	}
	v := it.items[it.pos]
	it.pos++
	return []any{v, true}, nil
}

func exceptionType(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	return one(asException(args[0]).Class)
}

func exceptionTraceback(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	exc := asException(args[0])
	tb := make(Tuple, len(exc.Traceback))
	for i, offset := range exc.Traceback {
		tb[i] = int64(offset)
	}
	return one(tb)
}

func excMatches(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	ok, err := matches(args[0], args[1])
	if err != nil {
		return nil, err
	}
	return one(ok)
}

func makeException(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	return one(asException(args[0]))
}

func makeExceptionFrom(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	exc := asException(args[0])
	if args[1] != nil {
		exc.Cause = asException(args[1])
	}
	return one(exc)
}

func excLasti(_ context.Context, _ *VirtualMachine, _ host.Invoke, args []any) ([]any, error) {
	return one(int64(asException(args[0]).Lasti))
}
