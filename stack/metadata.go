package stack

import (
	"strings"

	"github.com/deepnoodle-ai/lift/errz"
)

type node struct {
	slot  Slot
	below *node
	depth int
}

// Metadata is an immutable snapshot of the operand stack and locals. The
// zero value is an empty stack with no locals.
type Metadata struct {
	top    *node
	locals []Slot
}

// New returns an empty stack with localCount locals. The first argCount
// locals hold arguments and are bound; the rest are Unbound.
func New(localCount, argCount int) Metadata {
	locals := make([]Slot, localCount)
	for i := 0; i < argCount && i < localCount; i++ {
		locals[i] = Value(Object)
	}
	return Metadata{locals: locals}
}

// Depth returns the number of slots on the stack.
func (m Metadata) Depth() int {
	if m.top == nil {
		return 0
	}
	return m.top.depth
}

// Push returns m with s on top.
func (m Metadata) Push(s ...Slot) Metadata {
	for _, slot := range s {
		m.top = &node{slot: slot, below: m.top, depth: m.Depth() + 1}
	}
	return m
}

// Pop returns m without its top n slots.
func (m Metadata) Pop(n int) (Metadata, error) {
	if n > m.Depth() {
		return m, &errz.StackUnderflowError{Want: n, Have: m.Depth()}
	}
	for i := 0; i < n; i++ {
		m.top = m.top.below
	}
	return m, nil
}

// Peek returns the slot i positions below the top; Peek(0) is the top.
func (m Metadata) Peek(i int) (Slot, error) {
	if i < 0 || i >= m.Depth() {
		return Slot{}, &errz.StackUnderflowError{Want: i + 1, Have: m.Depth()}
	}
	n := m.top
	for ; i > 0; i-- {
		n = n.below
	}
	return n.slot, nil
}

// Top returns the top n slots, bottom-most first.
func (m Metadata) Top(n int) ([]Slot, error) {
	if n > m.Depth() {
		return nil, &errz.StackUnderflowError{Want: n, Have: m.Depth()}
	}
	slots := make([]Slot, n)
	cur := m.top
	for i := n - 1; i >= 0; i-- {
		slots[i] = cur.slot
		cur = cur.below
	}
	return slots, nil
}

// Truncate returns m with only its bottom depth slots. Truncating to a depth
// at or above the current depth returns m unchanged.
func (m Metadata) Truncate(depth int) Metadata {
	for m.top != nil && m.top.depth > depth {
		m.top = m.top.below
	}
	return m
}

// Slots returns every slot, bottom-most first.
func (m Metadata) Slots() []Slot {
	slots, _ := m.Top(m.Depth())
	return slots
}

// LocalCount returns the number of locals.
func (m Metadata) LocalCount() int {
	return len(m.locals)
}

// Local returns local i. Out-of-range locals are Unbound.
func (m Metadata) Local(i int) Slot {
	if i < 0 || i >= len(m.locals) {
		return Value(Unbound)
	}
	return m.locals[i]
}

// SetLocal returns m with local i set to s, growing the table if needed.
func (m Metadata) SetLocal(i int, s Slot) Metadata {
	n := len(m.locals)
	if i >= n {
		n = i + 1
	}
	locals := make([]Slot, n)
	copy(locals, m.locals)
	locals[i] = s
	m.locals = locals
	return m
}

// WithLocals returns m with exactly n locals, truncating or padding with
// Unbound.
func (m Metadata) WithLocals(n int) Metadata {
	locals := make([]Slot, n)
	copy(locals, m.locals)
	m.locals = locals
	return m
}

// RegionBase returns the stack index, counted from the bottom, of the
// bottom-most slot owned by region, or -1.
func (m Metadata) RegionBase(region int) int {
	base := -1
	for n := m.top; n != nil; n = n.below {
		if n.slot.Region == region {
			base = n.depth - 1
		}
	}
	return base
}

// Equal reports whether a and b have identical stacks and locals.
func Equal(a, b Metadata) bool {
	if a.Depth() != b.Depth() || len(a.locals) != len(b.locals) {
		return false
	}
	for x, y := a.top, b.top; x != y; x, y = x.below, y.below {
		if !x.slot.Equal(y.slot) {
			return false
		}
	}
	for i := range a.locals {
		if !a.locals[i].Equal(b.locals[i]) {
			return false
		}
	}
	return true
}

// Unify merges the shapes of two predecessors of a join. Stacks must have
// equal depth and compatible slots; locals always merge.
func Unify(a, b Metadata) (Metadata, error) {
	if a.Depth() != b.Depth() {
		return Metadata{}, &errz.StackShapeConflictError{
			LeftDepth:  a.Depth(),
			RightDepth: b.Depth(),
			Position:   -1,
		}
	}
	var merged []Slot
	x, y := a.top, b.top
	for ; x != y; x, y = x.below, y.below {
		slot, ok := mergeSlot(x.slot, y.slot)
		if !ok {
			return Metadata{}, &errz.StackShapeConflictError{
				LeftDepth:  a.Depth(),
				RightDepth: b.Depth(),
				Position:   x.depth - 1,
				Left:       x.slot.String(),
				Right:      y.slot.String(),
			}
		}
		merged = append(merged, slot)
	}
	// x is the shared suffix; rebuild the merged part on top of it.
	result := Metadata{top: x}
	for i := len(merged) - 1; i >= 0; i-- {
		result = result.Push(merged[i])
	}

	n := len(a.locals)
	if len(b.locals) > n {
		n = len(b.locals)
	}
	result.locals = make([]Slot, n)
	for i := range result.locals {
		result.locals[i] = mergeLocal(a.Local(i), b.Local(i))
	}
	return result, nil
}

// String renders the stack bottom-most first, for example
// "[int=1, exc_type(r1)]".
func (m Metadata) String() string {
	slots := m.Slots()
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
