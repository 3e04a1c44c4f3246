package stack

import "fmt"

// Kind is the abstract type of a stack slot or local.
type Kind uint8

const (
	// Unbound marks a local that has not been assigned on some path.
	Unbound Kind = iota
	Object
	Int
	Float
	Bool
	Str
	None
	// Null is the sentinel pushed below a callable by modern call sequences.
	Null
	Tuple
	List
	Iterator

	// Legacy exception state.
	ExcType
	ExcValue
	ExcTraceback

	// Modern exception state.
	Exception
	PrevException
	Lasti
)

var kindNames = [...]string{
	Unbound:       "unbound",
	Object:        "object",
	Int:           "int",
	Float:         "float",
	Bool:          "bool",
	Str:           "str",
	None:          "none",
	Null:          "null",
	Tuple:         "tuple",
	List:          "list",
	Iterator:      "iterator",
	ExcType:       "exc_type",
	ExcValue:      "exc_value",
	ExcTraceback:  "exc_traceback",
	Exception:     "exception",
	PrevException: "prev_exception",
	Lasti:         "lasti",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// IsExceptionState reports whether k describes handler-owned exception
// state. Such slots never widen at merges.
func (k Kind) IsExceptionState() bool {
	return k >= ExcType && k <= Lasti
}

// widens reports whether k merges with other value kinds into Object.
func (k Kind) widens() bool {
	return k >= Object && k <= Iterator && k != Null
}

// Slot describes one abstract stack entry or local.
type Slot struct {
	Kind Kind
	// Known is the compile-time value, when the slot holds a constant.
	Known any
	// Region is the 1-based handler region that owns the slot, or 0.
	Region int
}

// Value returns an untagged slot of the given kind.
func Value(kind Kind) Slot {
	return Slot{Kind: kind}
}

// Tagged returns a slot of the given kind owned by a handler region.
func Tagged(kind Kind, region int) Slot {
	return Slot{Kind: kind, Region: region}
}

// Const returns a slot describing the constant v. Scalar constants are
// remembered as the slot's known value.
func Const(v any) Slot {
	switch v := v.(type) {
	case nil:
		return Slot{Kind: None}
	case bool:
		return Slot{Kind: Bool, Known: v}
	case int:
		return Slot{Kind: Int, Known: int64(v)}
	case int64:
		return Slot{Kind: Int, Known: v}
	case float64:
		return Slot{Kind: Float, Known: v}
	case string:
		return Slot{Kind: Str, Known: v}
	case []any:
		return Slot{Kind: Tuple}
	default:
		return Slot{Kind: Object}
	}
}

// Untagged returns a copy of s without its region tag.
func (s Slot) Untagged() Slot {
	s.Region = 0
	return s
}

// Tagged reports whether a handler region owns the slot.
func (s Slot) Tagged() bool {
	return s.Region != 0
}

// Equal reports whether s and other are identical.
func (s Slot) Equal(other Slot) bool {
	return s.Kind == other.Kind && s.Region == other.Region && knownEqual(s.Known, other.Known)
}

func (s Slot) String() string {
	str := s.Kind.String()
	if s.Known != nil {
		switch v := s.Known.(type) {
		case string:
			str += fmt.Sprintf("=%q", v)
		default:
			str += fmt.Sprintf("=%v", v)
		}
	}
	if s.Region != 0 {
		str += fmt.Sprintf("(r%d)", s.Region)
	}
	return str
}

func knownEqual(a, b any) bool {
	switch a := a.(type) {
	case nil:
		return b == nil
	case bool, int64, float64, string:
		return a == b
	default:
		return false
	}
}

// mergeSlot combines two stack slots meeting at a join.
func mergeSlot(a, b Slot) (Slot, bool) {
	if a.Kind == b.Kind && a.Region == b.Region {
		if !knownEqual(a.Known, b.Known) {
			a.Known = nil
		}
		return a, true
	}
	if a.Kind.widens() && b.Kind.widens() && a.Region == 0 && b.Region == 0 {
		return Value(Object), true
	}
	return Slot{}, false
}

// mergeLocal combines two local slots meeting at a join. Locals always
// merge: an Unbound side yields Unbound, other differences widen to Object.
func mergeLocal(a, b Slot) Slot {
	if a.Kind == b.Kind && a.Region == b.Region {
		if !knownEqual(a.Known, b.Known) {
			a.Known = nil
		}
		return a
	}
	if a.Kind == Unbound || b.Kind == Unbound {
		return Value(Unbound)
	}
	return Value(Object)
}
