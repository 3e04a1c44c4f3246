package compiler

import (
	"fmt"

	"github.com/deepnoodle-ai/lift/errz"
	"github.com/deepnoodle-ai/lift/host"
	"github.com/deepnoodle-ai/lift/op"
	"github.com/deepnoodle-ai/lift/stack"
)

// handlerLowering maps a guest dialect's exception state onto the host's
// single caught exception. The host pushes exactly one exception when it
// enters a handler and keeps the exception being handled in a register.
//
// Legacy handlers see (type, value, traceback), bottom to top, and save the
// previously handled exception in a scratch local until POP_EXCEPT restores
// it. Modern handlers see the exception itself, preceded by the raising
// offset when the table entry asks for it; PUSH_EXC_INFO and POP_EXCEPT
// save and restore the previous exception on the stack.
type handlerLowering struct {
	fm *FunctionMetadata
}

// state returns the slots a handler finds on entry above its region depth.
func (h handlerLowering) state(r *HandlerRegion) []stack.Slot {
	if r.Dialect == op.Legacy {
		return []stack.Slot{
			stack.Tagged(stack.ExcType, r.ID),
			stack.Tagged(stack.ExcValue, r.ID),
			stack.Tagged(stack.ExcTraceback, r.ID),
		}
	}
	if r.Lasti {
		return []stack.Slot{stack.Tagged(stack.Lasti, r.ID), stack.Tagged(stack.Exception, r.ID)}
	}
	return []stack.Slot{stack.Tagged(stack.Exception, r.ID)}
}

// enter emits the handler prologue. It runs with the caught exception on
// top of the region depth and leaves the dialect's entry state.
func (h handlerLowering) enter(b *host.Builder, r *HandlerRegion) {
	if r.Dialect == op.Legacy {
		b.Emit(
			host.GetHandled{},
			host.StoreLocal{Index: r.Scratch},
			host.Dup{},
			host.SetHandled{},
			host.Dup{},
			host.Invoke{Helper: host.HelperExceptionType, Args: 1, Results: 1},
			host.Swap{Depth: 1},
			host.Dup{},
			host.Invoke{Helper: host.HelperExceptionTrace, Args: 1, Results: 1},
		)
		return
	}
	if r.Lasti {
		b.Emit(
			host.Dup{},
			host.Invoke{Helper: host.HelperExcLasti, Args: 1, Results: 1},
			host.Swap{Depth: 1},
		)
	}
}

// checkLeave verifies that a POP_EXCEPT popping slots sits exactly on its
// region's exception state. Legacy handlers own the innermost triple on the
// stack. Modern handlers pop the saved exception, either the slot
// PUSH_EXC_INFO tagged or a copy of it. Stacks with no owning region are not
// checked.
func (h handlerLowering) checkLeave(in stack.Metadata, slots int) error {
	region := h.enclosing(in)
	if h.fm.Dialect() == op.Modern {
		top, err := in.Peek(0)
		if err != nil {
			return nil
		}
		if top.Kind != stack.PrevException {
			if region == 0 {
				return nil
			}
			return &errz.MalformedExceptionRegionError{
				Region:  region,
				Handler: h.handler(region),
				Reason:  fmt.Sprintf("POP_EXCEPT expects the saved exception on top, found %s", top),
			}
		}
		region = top.Region
	}
	if region == 0 {
		return nil
	}
	base := in.RegionBase(region)
	want := base + slots
	if bottom, err := in.Peek(in.Depth() - 1 - base); err == nil && bottom.Kind == stack.Lasti {
		want++
	}
	if in.Depth() != want {
		return &errz.MalformedExceptionRegionError{
			Region:  region,
			Handler: h.handler(region),
			Want:    want,
			Have:    in.Depth(),
			Reason:  "POP_EXCEPT does not match the handler's exception state",
		}
	}
	return nil
}

// handler returns the handler offset of region, or -1.
func (h handlerLowering) handler(region int) int {
	if r := h.fm.Region(region); r != nil {
		return r.Handler
	}
	return -1
}

// checkTriple verifies that a complete legacy triple sits below the top
// above slots.
func (h handlerLowering) checkTriple(in stack.Metadata, above int) error {
	want := []stack.Kind{stack.ExcTraceback, stack.ExcValue, stack.ExcType}
	region := 0
	for i, kind := range want {
		slot, err := in.Peek(above + i)
		if err != nil {
			return err
		}
		if slot.Kind != kind || slot.Region == 0 || (region != 0 && slot.Region != region) {
			return &errz.MalformedExceptionRegionError{
				Region:  slot.Region,
				Handler: -1,
				Reason:  fmt.Sprintf("expected %s at stack position %d, found %s", kind, above+i, slot),
			}
		}
		region = slot.Region
	}
	return nil
}

// leave emits POP_EXCEPT: the dialect's exception slots are dropped and the
// previously handled exception is restored.
func (h handlerLowering) leave(b *host.Builder, in stack.Metadata, slots int) {
	if h.fm.Dialect() == op.Modern {
		b.Emit(host.SetHandled{})
		return
	}
	for i := 0; i < slots; i++ {
		b.Emit(host.Pop{})
	}
	if region := h.enclosing(in); region != 0 {
		b.Emit(host.LoadLocal{Index: h.fm.Scratch(region)})
	} else {
		b.Emit(host.Const{Value: nil})
	}
	b.Emit(host.SetHandled{})
}

// enclosing returns the innermost region owning exception state on the
// stack, or 0.
func (h handlerLowering) enclosing(in stack.Metadata) int {
	for i := 0; i < in.Depth(); i++ {
		slot, _ := in.Peek(i)
		if slot.Region != 0 && slot.Kind.IsExceptionState() {
			return slot.Region
		}
	}
	return 0
}

// reraise emits RERAISE: the exception is thrown after the remaining
// exception slots are dropped.
func (h handlerLowering) reraise(b *host.Builder, arg int) {
	if h.fm.Dialect() == op.Legacy {
		// [type, value, traceback] -> value
		b.Emit(host.Pop{}, host.Swap{Depth: 1}, host.Pop{}, host.Throw{})
		return
	}
	if arg != 0 {
		// [lasti, exception] -> exception
		b.Emit(host.Swap{Depth: 1}, host.Pop{})
	}
	b.Emit(host.Throw{})
}
