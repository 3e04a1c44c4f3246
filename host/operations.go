package host

import "fmt"

// Operation is one host instruction.
type Operation interface {
	Kind() OperationKind
	// Effect returns how many slots the operation reads from the top of the
	// stack and how many it leaves in their place.
	Effect() (pops, pushes int)
	String() string
}

// OperationKind identifies an operation type.
type OperationKind byte

const (
	OperationKindLabel OperationKind = iota
	OperationKindConst
	OperationKindLoadLocal
	OperationKindStoreLocal
	OperationKindDeleteLocal
	OperationKindLoadGlobal
	OperationKindStoreGlobal
	OperationKindPop
	OperationKindDup
	OperationKindPick
	OperationKindSwap
	OperationKindInvoke
	OperationKindGoto
	OperationKindIfTrue
	OperationKindIfFalse
	OperationKindReturn
	OperationKindThrow
	OperationKindGetHandled
	OperationKindSetHandled
)

func (o OperationKind) String() (ret string) {
	switch o {
	case OperationKindLabel:
		ret = "Label"
	case OperationKindConst:
		ret = "Const"
	case OperationKindLoadLocal:
		ret = "LoadLocal"
	case OperationKindStoreLocal:
		ret = "StoreLocal"
	case OperationKindDeleteLocal:
		ret = "DeleteLocal"
	case OperationKindLoadGlobal:
		ret = "LoadGlobal"
	case OperationKindStoreGlobal:
		ret = "StoreGlobal"
	case OperationKindPop:
		ret = "Pop"
	case OperationKindDup:
		ret = "Dup"
	case OperationKindPick:
		ret = "Pick"
	case OperationKindSwap:
		ret = "Swap"
	case OperationKindInvoke:
		ret = "Invoke"
	case OperationKindGoto:
		ret = "Goto"
	case OperationKindIfTrue:
		ret = "IfTrue"
	case OperationKindIfFalse:
		ret = "IfFalse"
	case OperationKindReturn:
		ret = "Return"
	case OperationKindThrow:
		ret = "Throw"
	case OperationKindGetHandled:
		ret = "GetHandled"
	case OperationKindSetHandled:
		ret = "SetHandled"
	default:
		ret = fmt.Sprintf("OperationKind(%d)", o)
	}
	return
}

// Label marks a branch or handler target. Non-negative IDs are guest
// offsets; negative IDs are labels internal to one instruction's expansion.
type Label struct{ ID int }

func (o Label) Kind() OperationKind        { return OperationKindLabel }
func (o Label) Effect() (pops, pushes int) { return 0, 0 }
func (o Label) String() string             { return fmt.Sprintf("%s:", labelName(o.ID)) }

// Const pushes a constant value.
type Const struct{ Value any }

func (o Const) Kind() OperationKind        { return OperationKindConst }
func (o Const) Effect() (pops, pushes int) { return 0, 1 }
func (o Const) String() string {
	if s, ok := o.Value.(string); ok {
		return fmt.Sprintf("Const %q", s)
	}
	if o.Value == nil {
		return "Const nil"
	}
	return fmt.Sprintf("Const %v", o.Value)
}

// LoadLocal pushes a local. Loading an unbound local raises.
type LoadLocal struct{ Index int }

func (o LoadLocal) Kind() OperationKind        { return OperationKindLoadLocal }
func (o LoadLocal) Effect() (pops, pushes int) { return 0, 1 }
func (o LoadLocal) String() string             { return fmt.Sprintf("LoadLocal %d", o.Index) }

// StoreLocal pops into a local.
type StoreLocal struct{ Index int }

func (o StoreLocal) Kind() OperationKind        { return OperationKindStoreLocal }
func (o StoreLocal) Effect() (pops, pushes int) { return 1, 0 }
func (o StoreLocal) String() string             { return fmt.Sprintf("StoreLocal %d", o.Index) }

// DeleteLocal unbinds a local.
type DeleteLocal struct{ Index int }

func (o DeleteLocal) Kind() OperationKind        { return OperationKindDeleteLocal }
func (o DeleteLocal) Effect() (pops, pushes int) { return 0, 0 }
func (o DeleteLocal) String() string             { return fmt.Sprintf("DeleteLocal %d", o.Index) }

// LoadGlobal pushes a global by name.
type LoadGlobal struct{ Name string }

func (o LoadGlobal) Kind() OperationKind        { return OperationKindLoadGlobal }
func (o LoadGlobal) Effect() (pops, pushes int) { return 0, 1 }
func (o LoadGlobal) String() string             { return "LoadGlobal " + o.Name }

// StoreGlobal pops into a global.
type StoreGlobal struct{ Name string }

func (o StoreGlobal) Kind() OperationKind        { return OperationKindStoreGlobal }
func (o StoreGlobal) Effect() (pops, pushes int) { return 1, 0 }
func (o StoreGlobal) String() string             { return "StoreGlobal " + o.Name }

// Pop discards the top slot.
type Pop struct{}

func (o Pop) Kind() OperationKind        { return OperationKindPop }
func (o Pop) Effect() (pops, pushes int) { return 1, 0 }
func (o Pop) String() string             { return "Pop" }

// Dup pushes a copy of the top slot.
type Dup struct{}

func (o Dup) Kind() OperationKind        { return OperationKindDup }
func (o Dup) Effect() (pops, pushes int) { return 1, 2 }
func (o Dup) String() string             { return "Dup" }

// Pick pushes a copy of the slot Depth positions below the top. Pick{0}
// behaves like Dup.
type Pick struct{ Depth int }

func (o Pick) Kind() OperationKind        { return OperationKindPick }
func (o Pick) Effect() (pops, pushes int) { return o.Depth + 1, o.Depth + 2 }
func (o Pick) String() string             { return fmt.Sprintf("Pick %d", o.Depth) }

// Swap exchanges the top slot with the slot Depth positions below it.
type Swap struct{ Depth int }

func (o Swap) Kind() OperationKind        { return OperationKindSwap }
func (o Swap) Effect() (pops, pushes int) { return o.Depth + 1, o.Depth + 1 }
func (o Swap) String() string             { return fmt.Sprintf("Swap %d", o.Depth) }

// Invoke calls a runtime helper with Args operands taken from the stack
// (bottom-most first) and pushes its Results. Arg and Name parameterize the
// helper.
type Invoke struct {
	Helper  Helper
	Args    int
	Results int
	Arg     int
	Name    string
}

func (o Invoke) Kind() OperationKind        { return OperationKindInvoke }
func (o Invoke) Effect() (pops, pushes int) { return o.Args, o.Results }
func (o Invoke) String() string {
	s := fmt.Sprintf("Invoke %s/%d->%d", o.Helper, o.Args, o.Results)
	if o.Name != "" {
		s += " " + o.Name
	} else if o.Helper.takesArg() {
		s += fmt.Sprintf(" %d", o.Arg)
	}
	return s
}

// Goto jumps to a label.
type Goto struct{ Label int }

func (o Goto) Kind() OperationKind        { return OperationKindGoto }
func (o Goto) Effect() (pops, pushes int) { return 0, 0 }
func (o Goto) String() string             { return "Goto " + labelName(o.Label) }

// IfTrue pops a boolean and jumps when it is true.
type IfTrue struct{ Label int }

func (o IfTrue) Kind() OperationKind        { return OperationKindIfTrue }
func (o IfTrue) Effect() (pops, pushes int) { return 1, 0 }
func (o IfTrue) String() string             { return "IfTrue " + labelName(o.Label) }

// IfFalse pops a boolean and jumps when it is false.
type IfFalse struct{ Label int }

func (o IfFalse) Kind() OperationKind        { return OperationKindIfFalse }
func (o IfFalse) Effect() (pops, pushes int) { return 1, 0 }
func (o IfFalse) String() string             { return "IfFalse " + labelName(o.Label) }

// Return pops the result and leaves the routine.
type Return struct{}

func (o Return) Kind() OperationKind        { return OperationKindReturn }
func (o Return) Effect() (pops, pushes int) { return 1, 0 }
func (o Return) String() string             { return "Return" }

// Throw pops an exception and raises it.
type Throw struct{}

func (o Throw) Kind() OperationKind        { return OperationKindThrow }
func (o Throw) Effect() (pops, pushes int) { return 1, 0 }
func (o Throw) String() string             { return "Throw" }

// GetHandled pushes the exception currently being handled, or nil.
type GetHandled struct{}

func (o GetHandled) Kind() OperationKind        { return OperationKindGetHandled }
func (o GetHandled) Effect() (pops, pushes int) { return 0, 1 }
func (o GetHandled) String() string             { return "GetHandled" }

// SetHandled pops a value into the handled-exception register.
type SetHandled struct{}

func (o SetHandled) Kind() OperationKind        { return OperationKindSetHandled }
func (o SetHandled) Effect() (pops, pushes int) { return 1, 0 }
func (o SetHandled) String() string             { return "SetHandled" }

// Terminates reports whether control never falls through o.
func Terminates(o Operation) bool {
	switch o.Kind() {
	case OperationKindGoto, OperationKindReturn, OperationKindThrow:
		return true
	}
	return false
}

// Target returns the label o may branch to.
func Target(o Operation) (int, bool) {
	switch o := o.(type) {
	case Goto:
		return o.Label, true
	case IfTrue:
		return o.Label, true
	case IfFalse:
		return o.Label, true
	}
	return 0, false
}

func labelName(id int) string {
	if id < 0 {
		return fmt.Sprintf("L%d", -id)
	}
	return fmt.Sprintf("@%d", id)
}
