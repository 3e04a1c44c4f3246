package vm

import (
	"fmt"
	"strings"
)

// DefaultGlobals returns the builtin names every VM starts with: the
// exception classes plus a few functions.
func DefaultGlobals() map[string]any {
	globals := map[string]any{}
	for _, class := range builtinClasses {
		globals[class.Name] = class
	}
	for _, b := range []*Builtin{
		{Name: "len", Fn: builtinLen},
		{Name: "range", Fn: builtinRange},
		{Name: "str", Fn: builtinStr},
		{Name: "repr", Fn: func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, Errorf(TypeError, "repr() takes exactly one argument (%d given)", len(args))
			}
			return Repr(args[0]), nil
		}},
	} {
		globals[b.Name] = b
	}
	return globals
}

func builtinLen(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, Errorf(TypeError, "len() takes exactly one argument (%d given)", len(args))
	}
	if s, ok := args[0].(string); ok {
		return int64(len([]rune(s))), nil
	}
	seq, ok := items(args[0])
	if !ok {
		return nil, Errorf(TypeError, "object of type '%s' has no len()", typeName(args[0]))
	}
	return int64(len(seq)), nil
}

func builtinRange(args ...any) (any, error) {
	bounds := make([]int64, len(args))
	for i, arg := range args {
		n, ok := arg.(int64)
		if !ok {
			return nil, Errorf(TypeError, "'%s' object cannot be interpreted as an integer", typeName(arg))
		}
		bounds[i] = n
	}
	var start, stop, stepBy int64 = 0, 0, 1
	switch len(bounds) {
	case 1:
		stop = bounds[0]
	case 2:
		start, stop = bounds[0], bounds[1]
	case 3:
		start, stop, stepBy = bounds[0], bounds[1], bounds[2]
	default:
		return nil, Errorf(TypeError, "range expected 1 to 3 arguments, got %d", len(args))
	}
	if stepBy == 0 {
		return nil, Errorf(ValueError, "range() arg 3 must not be zero")
	}
	out := &List{}
	for i := start; (stepBy > 0 && i < stop) || (stepBy < 0 && i > stop); i += stepBy {
		out.Items = append(out.Items, i)
	}
	return out, nil
}

func builtinStr(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, Errorf(TypeError, "str() takes exactly one argument (%d given)", len(args))
	}
	switch v := args[0].(type) {
	case string:
		return v, nil
	case *Exception:
		parts := make([]string, len(v.Args))
		for i, arg := range v.Args {
			parts[i] = fmt.Sprint(arg)
		}
		return strings.Join(parts, ", "), nil
	}
	return Repr(args[0]), nil
}
