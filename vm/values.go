package vm

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/lift/host"
)

// Tuple is an immutable sequence.
type Tuple []any

// List is a mutable sequence.
type List struct {
	Items []any
}

// Record is a plain object with named attributes.
type Record struct {
	Name  string
	Attrs map[string]any
}

// NewRecord returns a record with the given attributes.
func NewRecord(name string, attrs map[string]any) *Record {
	r := &Record{Name: name, Attrs: map[string]any{}}
	for k, v := range attrs {
		r.Attrs[k] = normalize(v)
	}
	return r
}

// Builtin is a host function callable from translated code.
type Builtin struct {
	Name string
	Fn   func(args ...any) (any, error)
}

// Function binds a translated routine so it can be called like a value.
type Function struct {
	Routine *host.Routine
}

type iterator struct {
	items []any
	pos   int
}

type unbound struct{}

// normalize converts Go constants into runtime values.
func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	case []any:
		t := make(Tuple, len(v))
		for i, item := range v {
			t[i] = normalize(item)
		}
		return t
	case *host.Routine:
		return &Function{Routine: v}
	}
	return v
}

func typeName(v any) string {
	switch v := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case Tuple:
		return "tuple"
	case *List:
		return "list"
	case *Record:
		return v.Name
	case *Builtin, *Function:
		return "function"
	case *Class:
		return "type"
	case *Exception:
		return v.Class.Name
	case *iterator:
		return "iterator"
	}
	return fmt.Sprintf("%T", v)
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	case Tuple:
		return len(v) > 0
	case *List:
		return len(v.Items) > 0
	}
	return true
}

func equal(a, b any) bool {
	switch a := a.(type) {
	case int64:
		switch b := b.(type) {
		case int64:
			return a == b
		case float64:
			return float64(a) == b
		}
		return false
	case float64:
		switch b := b.(type) {
		case int64:
			return a == float64(b)
		case float64:
			return a == b
		}
		return false
	case Tuple:
		bt, ok := b.(Tuple)
		return ok && equalSeq(a, bt)
	case *List:
		bl, ok := b.(*List)
		return ok && (a == bl || equalSeq(a.Items, bl.Items))
	}
	return identical(a, b)
}

func equalSeq(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// identical implements the guest "is" operator.
func identical(a, b any) bool {
	switch a.(type) {
	case Tuple:
		return false
	}
	switch b.(type) {
	case Tuple:
		return false
	}
	return a == b
}

func items(v any) ([]any, bool) {
	switch v := v.(type) {
	case Tuple:
		return v, true
	case *List:
		return v.Items, true
	case string:
		out := make([]any, 0, len(v))
		for _, r := range v {
			out = append(out, string(r))
		}
		return out, true
	}
	return nil, false
}

// Repr renders a runtime value the way the guest would print it.
func Repr(v any) string {
	switch v := v.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return fmt.Sprintf("'%s'", v)
	case Tuple:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = Repr(item)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *List:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = Repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Class:
		return fmt.Sprintf("<class '%s'>", v.Name)
	case *Exception:
		parts := make([]string, len(v.Args))
		for i, arg := range v.Args {
			parts[i] = Repr(arg)
		}
		return v.Class.Name + "(" + strings.Join(parts, ", ") + ")"
	case *Builtin:
		return fmt.Sprintf("<built-in function %s>", v.Name)
	case *Function:
		return fmt.Sprintf("<function %s>", v.Routine.Name)
	}
	if v == host.Null {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
