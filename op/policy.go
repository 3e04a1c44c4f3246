package op

import (
	"github.com/deepnoodle-ai/lift/errz"
	"github.com/deepnoodle-ai/lift/version"
)

// Dialect groups guest versions that share an exception-handling encoding.
type Dialect uint8

const (
	// Legacy dialects protect code with SETUP_FINALLY/POP_BLOCK and push the
	// exception as a (type, value, traceback) triple.
	Legacy Dialect = iota + 1
	// Modern dialects protect code through an exception table and push a
	// single exception object.
	Modern
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case Legacy:
		return "legacy"
	case Modern:
		return "modern"
	default:
		return "unknown"
	}
}

// ExceptionSlots returns how many operand stack slots hold the exception
// state on entry to a handler.
func (d Dialect) ExceptionSlots() int {
	switch d {
	case Legacy:
		return 3
	case Modern:
		return 1
	default:
		return 0
	}
}

var dialects = []struct {
	since   version.Version
	dialect Dialect
}{
	{version.ExceptionTable, Modern},
	{version.Minimum, Legacy},
}

// DialectOf returns the dialect of v. Versions below version.Minimum yield an
// UnsupportedGuestVersionError.
func DialectOf(v version.Version) (Dialect, error) {
	for _, d := range dialects {
		if v.IsAtLeast(d.since) {
			return d.dialect, nil
		}
	}
	return 0, &errz.UnsupportedGuestVersionError{Version: v, Offset: -1}
}

// Behavior describes how one opcode behaves within a range of versions.
type Behavior struct {
	// Dialect is filled in by Resolve from the version.
	Dialect Dialect

	// ExceptionSlots is the number of exception-state slots the opcode
	// consumes. Used by POP_EXCEPT and RERAISE.
	ExceptionSlots int

	// NameShift is applied to the operand to obtain a name index.
	NameShift int

	// NullBit means the low operand bit requests an extra NULL (LOAD_GLOBAL)
	// or method slot (LOAD_ATTR) below the loaded value.
	NullBit bool

	// CompareShift is applied to the COMPARE_OP operand to obtain the
	// comparison kind.
	CompareShift int

	// CallPrefix is the number of slots below the arguments that a call
	// consumes: the callable, and in modern dialects also a NULL or self.
	CallPrefix int
}

// Rule binds a Behavior to an opcode for versions in [Since, Until). A zero
// Until leaves the range open.
type Rule struct {
	Code     Code
	Since    version.Version
	Until    version.Version
	Behavior Behavior
}

// Contains reports whether v falls within the rule's version range.
func (r Rule) Contains(v version.Version) bool {
	if !v.IsAtLeast(r.Since) {
		return false
	}
	return r.Until.IsZero() || !v.IsAtLeast(r.Until)
}

var (
	legacy = version.Minimum
	modern = version.ExceptionTable
	open   = version.Version{}
)

// policy is the single source of truth for version-gated opcode behavior.
var policy = []Rule{
	{Nop, legacy, open, Behavior{}},
	{Resume, modern, open, Behavior{}},
	{Cache, modern, open, Behavior{}},

	{PopTop, legacy, open, Behavior{}},
	{RotTwo, legacy, modern, Behavior{}},
	{DupTop, legacy, modern, Behavior{}},
	{Copy, modern, open, Behavior{}},
	{Swap, modern, open, Behavior{}},
	{PushNull, modern, open, Behavior{}},

	{LoadConst, legacy, open, Behavior{}},
	{LoadFast, legacy, open, Behavior{}},
	{LoadGlobal, legacy, modern, Behavior{}},
	{LoadGlobal, modern, open, Behavior{NameShift: 1, NullBit: true}},
	{LoadAttr, legacy, version.Py312, Behavior{}},
	{LoadAttr, version.Py312, open, Behavior{NameShift: 1, NullBit: true}},

	{StoreFast, legacy, open, Behavior{}},
	{StoreGlobal, legacy, open, Behavior{}},
	{StoreAttr, legacy, open, Behavior{}},
	{DeleteFast, legacy, open, Behavior{}},

	{UnaryNot, legacy, open, Behavior{}},
	{UnaryNegative, legacy, open, Behavior{}},
	{BinaryAdd, legacy, modern, Behavior{}},
	{BinarySubtract, legacy, modern, Behavior{}},
	{BinaryMultiply, legacy, modern, Behavior{}},
	{BinaryOp, modern, open, Behavior{}},
	{CompareOp, legacy, version.Py312, Behavior{}},
	{CompareOp, version.Py312, open, Behavior{CompareShift: 4}},
	{IsOp, legacy, open, Behavior{}},
	{ContainsOp, legacy, open, Behavior{}},

	{BuildTuple, legacy, open, Behavior{}},
	{BuildList, legacy, open, Behavior{}},

	{CallFunction, legacy, modern, Behavior{CallPrefix: 1}},
	{Call, modern, open, Behavior{CallPrefix: 2}},
	{ReturnValue, legacy, open, Behavior{}},

	{GetIter, legacy, open, Behavior{}},
	{ForIter, legacy, open, Behavior{}},

	{JumpForward, legacy, open, Behavior{}},
	{JumpAbsolute, legacy, modern, Behavior{}},
	{JumpBackward, modern, open, Behavior{}},
	{PopJumpIfFalse, legacy, open, Behavior{}},
	{PopJumpIfTrue, legacy, open, Behavior{}},

	{SetupFinally, legacy, modern, Behavior{ExceptionSlots: Legacy.ExceptionSlots()}},
	{PopBlock, legacy, modern, Behavior{}},
	{PopExcept, legacy, modern, Behavior{ExceptionSlots: Legacy.ExceptionSlots()}},
	{PopExcept, modern, open, Behavior{ExceptionSlots: Modern.ExceptionSlots()}},
	{Reraise, legacy, modern, Behavior{ExceptionSlots: Legacy.ExceptionSlots()}},
	{Reraise, modern, open, Behavior{ExceptionSlots: Modern.ExceptionSlots()}},
	{RaiseVarargs, legacy, open, Behavior{}},
	{JumpIfNotExcMatch, legacy, modern, Behavior{ExceptionSlots: Legacy.ExceptionSlots()}},
	{PushExcInfo, modern, open, Behavior{ExceptionSlots: Modern.ExceptionSlots()}},
	{CheckExcMatch, modern, open, Behavior{}},
}

// Resolve returns the behavior of code under guest version v, or an
// UnsupportedGuestVersionError (with Offset -1) when no rule covers it.
func Resolve(code Code, v version.Version) (Behavior, error) {
	dialect, err := DialectOf(v)
	if err != nil {
		return Behavior{}, &errz.UnsupportedGuestVersionError{Version: v, Opcode: code.String(), Offset: -1}
	}
	for _, rule := range policy {
		if rule.Code == code && rule.Contains(v) {
			b := rule.Behavior
			b.Dialect = dialect
			return b, nil
		}
	}
	return Behavior{}, &errz.UnsupportedGuestVersionError{Version: v, Opcode: code.String(), Offset: -1}
}

// Rules returns a copy of the policy table.
func Rules() []Rule {
	rules := make([]Rule, len(policy))
	copy(rules, policy)
	return rules
}
