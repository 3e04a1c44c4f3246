package vm

import (
	"fmt"
	"strings"
)

// Class is an exception class. Classes form a single-inheritance tree.
type Class struct {
	Name string
	Base *Class
}

// NewClass returns a class deriving from base.
func NewClass(name string, base *Class) *Class {
	return &Class{Name: name, Base: base}
}

// IsSubclass reports whether c is other or derives from it.
func (c *Class) IsSubclass(other *Class) bool {
	for k := c; k != nil; k = k.Base {
		if k == other {
			return true
		}
	}
	return false
}

// Builtin exception classes.
var (
	BaseException       = NewClass("BaseException", nil)
	ExceptionClass      = NewClass("Exception", BaseException)
	ArithmeticError     = NewClass("ArithmeticError", ExceptionClass)
	ZeroDivisionError   = NewClass("ZeroDivisionError", ArithmeticError)
	LookupError         = NewClass("LookupError", ExceptionClass)
	IndexError          = NewClass("IndexError", LookupError)
	KeyError            = NewClass("KeyError", LookupError)
	NameError           = NewClass("NameError", ExceptionClass)
	UnboundLocalError   = NewClass("UnboundLocalError", NameError)
	AttributeError      = NewClass("AttributeError", ExceptionClass)
	TypeError           = NewClass("TypeError", ExceptionClass)
	ValueError          = NewClass("ValueError", ExceptionClass)
	RuntimeError        = NewClass("RuntimeError", ExceptionClass)
	StopIteration       = NewClass("StopIteration", ExceptionClass)
	RecursionErrorClass = NewClass("RecursionError", RuntimeError)
)

var builtinClasses = []*Class{
	BaseException, ExceptionClass, ArithmeticError, ZeroDivisionError,
	LookupError, IndexError, KeyError, NameError, UnboundLocalError,
	AttributeError, TypeError, ValueError, RuntimeError, StopIteration,
	RecursionErrorClass,
}

// Exception is a raised guest exception. It implements error so uncaught
// exceptions can leave Run as ordinary Go errors.
type Exception struct {
	Class *Class
	Args  []any
	Cause *Exception
	// Traceback lists the guest offsets the exception passed through,
	// innermost first.
	Traceback []int
	// Lasti is the guest offset of the instruction that raised, or -1.
	Lasti int
}

// NewException returns an exception of class with the given arguments.
func NewException(class *Class, args ...any) *Exception {
	return &Exception{Class: class, Args: args, Lasti: -1}
}

// Errorf returns an exception of class with a formatted message.
func Errorf(class *Class, format string, args ...any) *Exception {
	return NewException(class, fmt.Sprintf(format, args...))
}

func (e *Exception) Error() string {
	if len(e.Args) == 0 {
		return e.Class.Name
	}
	parts := make([]string, len(e.Args))
	for i, arg := range e.Args {
		if s, ok := arg.(string); ok {
			parts[i] = s
		} else {
			parts[i] = Repr(arg)
		}
	}
	return e.Class.Name + ": " + strings.Join(parts, ", ")
}

// asException converts a value raised by guest code into an exception.
func asException(v any) *Exception {
	switch v := v.(type) {
	case *Exception:
		return v
	case *Class:
		return NewException(v)
	case nil:
		return Errorf(RuntimeError, "No active exception to reraise")
	}
	return Errorf(TypeError, "exceptions must derive from BaseException, not %s", typeName(v))
}

// matches implements the guest except-clause test. target is a class or a
// tuple of classes.
func matches(v any, target any) (bool, error) {
	var class *Class
	switch v := v.(type) {
	case *Exception:
		class = v.Class
	case *Class:
		class = v
	default:
		return false, Errorf(TypeError, "cannot match %s against an exception class", typeName(v))
	}
	switch t := target.(type) {
	case *Class:
		return class.IsSubclass(t), nil
	case Tuple:
		for _, item := range t {
			ok, err := matches(class, item)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, Errorf(TypeError, "catching %s is not allowed", typeName(target))
}
