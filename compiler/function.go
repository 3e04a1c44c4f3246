package compiler

import (
	"fmt"

	"github.com/deepnoodle-ai/lift/bytecode"
	"github.com/deepnoodle-ai/lift/errz"
	"github.com/deepnoodle-ai/lift/op"
	"github.com/deepnoodle-ai/lift/version"
)

// HandlerRegion is one exception handler region of a function.
type HandlerRegion struct {
	// ID is 1-based and unique within the function. Stack slots owned by
	// the handler carry it as their region tag.
	ID      int
	Dialect op.Dialect

	// Start and End bound the protected guest offsets; End is exclusive.
	Start int
	End   int

	// Handler is the guest offset of the handler's first instruction.
	Handler int

	// Depth is the operand stack depth preserved below the exception state,
	// or -1 while unknown.
	Depth int

	// Lasti is set when the handler expects the raising offset below the
	// exception. Modern dialects only.
	Lasti bool

	// EntryDepth is the stack depth on handler entry.
	EntryDepth int

	// Scratch is the host local that saves the previously handled exception,
	// or -1. Legacy dialects only.
	Scratch int
}

// Slots returns the number of exception-state slots the handler pushes.
func (r *HandlerRegion) Slots() int {
	n := r.Dialect.ExceptionSlots()
	if r.Lasti {
		n++
	}
	return n
}

func (r *HandlerRegion) String() string {
	return fmt.Sprintf("r%d %s %d..%d -> %d depth=%d", r.ID, r.Dialect, r.Start, r.End, r.Handler, r.Depth)
}

// FunctionMetadata is a guest function prepared for translation: its
// dialect, an offset index and its handler regions. It belongs to a single
// translation and is not shared.
type FunctionMetadata struct {
	fn      *bytecode.Function
	dialect op.Dialect
	regions []*HandlerRegion

	// setups maps a legacy SETUP_FINALLY offset to the region it opens.
	setups map[int]int

	// protectedBy holds, per modern instruction index, the innermost region
	// protecting it.
	protectedBy []int
}

// NewFunctionMetadata validates fn's version and derives its handler
// regions.
func NewFunctionMetadata(fn *bytecode.Function) (*FunctionMetadata, error) {
	dialect, err := op.DialectOf(fn.Version())
	if err != nil {
		return nil, err
	}
	fm := &FunctionMetadata{
		fn:      fn,
		dialect: dialect,
		setups:  map[int]int{},
	}
	switch dialect {
	case op.Legacy:
		err = fm.scanSetups()
	case op.Modern:
		err = fm.loadExceptionTable()
	}
	if err != nil {
		return nil, err
	}
	return fm, nil
}

// scanSetups creates one region per SETUP_FINALLY, in program order.
func (fm *FunctionMetadata) scanSetups() error {
	if fm.fn.ExceptionEntryCount() > 0 {
		return &errz.MalformedExceptionRegionError{
			Reason: fmt.Sprintf("exception table present for guest version %s", fm.fn.Version()),
		}
	}
	for i := 0; i < fm.fn.InstructionCount(); i++ {
		inst := fm.fn.InstructionAt(i)
		if inst.Op != op.SetupFinally {
			continue
		}
		id := len(fm.regions) + 1
		fm.regions = append(fm.regions, &HandlerRegion{
			ID:      id,
			Dialect: op.Legacy,
			Start:   -1,
			End:     -1,
			Handler: inst.Arg,
			Depth:   -1,
			Scratch: fm.fn.LocalCount() + id - 1,
		})
		fm.setups[inst.Offset] = id
	}
	return nil
}

// loadExceptionTable creates one region per distinct (target, depth, lasti)
// of the exception table. Entries that share a handler must agree on depth
// and lasti.
func (fm *FunctionMetadata) loadExceptionTable() error {
	byHandler := map[int]*HandlerRegion{}
	entryRegion := make([]int, fm.fn.ExceptionEntryCount())
	for i := 0; i < fm.fn.ExceptionEntryCount(); i++ {
		e := fm.fn.ExceptionEntryAt(i)
		if e.Start >= e.End || e.Depth < 0 {
			return &errz.MalformedExceptionRegionError{
				Handler: e.Target,
				Reason:  fmt.Sprintf("invalid exception table entry %s", e),
			}
		}
		if _, ok := fm.fn.IndexOf(e.Target); !ok {
			return &errz.InvalidInstructionError{
				Offset: e.Start,
				Reason: fmt.Sprintf("exception handler target %d is not an instruction", e.Target),
			}
		}
		r, ok := byHandler[e.Target]
		if !ok {
			r = &HandlerRegion{
				ID:      len(fm.regions) + 1,
				Dialect: op.Modern,
				Start:   e.Start,
				End:     e.End,
				Handler: e.Target,
				Depth:   e.Depth,
				Lasti:   e.Lasti,
				Scratch: -1,
			}
			r.EntryDepth = r.Depth + r.Slots()
			fm.regions = append(fm.regions, r)
			byHandler[e.Target] = r
		} else if r.Depth != e.Depth || r.Lasti != e.Lasti {
			return &errz.MalformedExceptionRegionError{
				Region:  r.ID,
				Handler: e.Target,
				Want:    r.Depth,
				Have:    e.Depth,
				Reason:  "exception table entries sharing a handler disagree",
			}
		}
		if e.Start < r.Start {
			r.Start = e.Start
		}
		if e.End > r.End {
			r.End = e.End
		}
		entryRegion[i] = r.ID
	}

	// The innermost entry is the narrowest one covering the instruction.
	fm.protectedBy = make([]int, fm.fn.InstructionCount())
	for i := range fm.protectedBy {
		offset := fm.fn.InstructionAt(i).Offset
		width := -1
		for j := 0; j < fm.fn.ExceptionEntryCount(); j++ {
			e := fm.fn.ExceptionEntryAt(j)
			if !e.Contains(offset) {
				continue
			}
			if w := e.End - e.Start; width < 0 || w < width {
				width = w
				fm.protectedBy[i] = entryRegion[j]
			}
		}
	}
	return nil
}

// Function returns the underlying guest function.
func (fm *FunctionMetadata) Function() *bytecode.Function {
	return fm.fn
}

// Version returns the guest version.
func (fm *FunctionMetadata) Version() version.Version {
	return fm.fn.Version()
}

// Dialect returns the exception-handling dialect.
func (fm *FunctionMetadata) Dialect() op.Dialect {
	return fm.dialect
}

// Region returns the region with the given ID, or nil.
func (fm *FunctionMetadata) Region(id int) *HandlerRegion {
	if id < 1 || id > len(fm.regions) {
		return nil
	}
	return fm.regions[id-1]
}

// RegionCount returns the number of handler regions.
func (fm *FunctionMetadata) RegionCount() int {
	return len(fm.regions)
}

// SetupRegion returns the region opened by the SETUP_FINALLY at offset.
func (fm *FunctionMetadata) SetupRegion(offset int) *HandlerRegion {
	id, ok := fm.setups[offset]
	if !ok {
		return nil
	}
	return fm.regions[id-1]
}

// ProtectedBy returns the innermost exception table region covering the
// instruction at index, or 0. Legacy protection is dynamic and tracked by
// the translator instead.
func (fm *FunctionMetadata) ProtectedBy(index int) int {
	if index < 0 || index >= len(fm.protectedBy) {
		return 0
	}
	return fm.protectedBy[index]
}

// Scratch returns the host local that saves the previously handled
// exception for a legacy region.
func (fm *FunctionMetadata) Scratch(region int) int {
	return fm.fn.LocalCount() + region - 1
}

// HostLocals returns the number of host locals a translation needs.
func (fm *FunctionMetadata) HostLocals() int {
	if fm.dialect == op.Legacy {
		return fm.fn.LocalCount() + len(fm.regions)
	}
	return fm.fn.LocalCount()
}
