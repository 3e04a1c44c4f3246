package compiler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/lift/bytecode"
	"github.com/deepnoodle-ai/lift/errz"
	"github.com/deepnoodle-ai/lift/host"
	"github.com/deepnoodle-ai/lift/op"
	"github.com/deepnoodle-ai/lift/stack"
)

// Translation is the result of translating one guest function.
type Translation struct {
	Function *bytecode.Function
	Routine  *host.Routine

	// Regions lists the handler regions reachable from the entry point.
	Regions []HandlerRegion

	// Entry holds the stack shape before each reachable guest offset.
	Entry map[int]stack.Metadata
}

// block is one entry of the legacy block stack: a SETUP_FINALLY region, or
// a running handler of that region when handler is set. Blocks are shared
// between states and never mutated.
type block struct {
	region  int
	handler bool
	below   *block
}

// setup returns the innermost SETUP_FINALLY block, skipping running
// handlers, or nil.
func (b *block) setup() *block {
	for ; b != nil; b = b.below {
		if !b.handler {
			return b
		}
	}
	return nil
}

func sameBlocks(a, b *block) bool {
	for ; a != nil && b != nil; a, b = a.below, b.below {
		if a == b {
			return true
		}
		if a.region != b.region || a.handler != b.handler {
			return false
		}
	}
	return a == nil && b == nil
}

type state struct {
	stack  stack.Metadata
	blocks *block
}

type translator struct {
	fm     *FunctionMetadata
	fn     *bytecode.Function
	log    zerolog.Logger
	ops    []*Opcode
	states []*state
	falls  []bool
	queued []bool
	work   []int

	// targets holds the guest offsets that need a host label.
	targets map[int]bool

	// at is the index of the instruction being processed, or -1.
	at int

	// cleanups holds the legacy handlers whose unwind code is emitted after
	// the guest instructions.
	cleanups []cleanup
}

// cleanup restores the exception a legacy handler saved on entry and
// rethrows. It catches exceptions that leave the handler's body.
type cleanup struct {
	label int
	block *block
}

// Translate lowers fn to a host routine. Errors are returned as
// *errz.TranslationError.
func Translate(fn *bytecode.Function, opts ...Option) (*Translation, error) {
	cfg := newConfig(opts)
	t := &translator{
		fn:      fn,
		log:     cfg.logger.With().Str("function", fn.Name()).Logger(),
		targets: map[int]bool{},
		at:      -1,
	}
	result, err := t.translate()
	if err != nil {
		return nil, t.wrap(err)
	}
	return result, nil
}

func (t *translator) wrap(err error) error {
	offset, opcode, line := -1, "", 0
	if t.at >= 0 && t.at < t.fn.InstructionCount() {
		inst := t.fn.InstructionAt(t.at)
		offset, opcode, line = inst.Offset, inst.Op.String(), inst.Line
	}
	te := errz.NewTranslationError(t.fn.Name(), offset, opcode, t.fn.Version(), err)
	te.Filename = t.fn.Filename()
	te.Line = line
	return te
}

func (t *translator) translate() (*Translation, error) {
	fm, err := NewFunctionMetadata(t.fn)
	if err != nil {
		return nil, err
	}
	t.fm = fm
	if t.fn.InstructionCount() == 0 {
		return nil, &errz.InvalidInstructionError{Offset: 0, Reason: "function has no instructions"}
	}
	t.ops = make([]*Opcode, t.fn.InstructionCount())
	for i := range t.ops {
		t.at = i
		if t.ops[i], err = NewOpcode(fm, t.fn.InstructionAt(i)); err != nil {
			return nil, err
		}
	}
	t.at = -1

	if err := t.analyze(); err != nil {
		return nil, err
	}
	routine, err := t.emit()
	if err != nil {
		return nil, err
	}

	result := &Translation{
		Function: t.fn,
		Routine:  routine,
		Entry:    map[int]stack.Metadata{},
	}
	for i, s := range t.states {
		if s != nil {
			result.Entry[t.fn.InstructionAt(i).Offset] = s.stack
		}
	}
	for id := 1; id <= fm.RegionCount(); id++ {
		if r := fm.Region(id); t.reached(r.Handler) {
			result.Regions = append(result.Regions, *r)
		}
	}
	t.log.Debug().
		Int("instructions", len(t.ops)).
		Int("operations", len(routine.Ops)).
		Int("regions", len(result.Regions)).
		Int("max_depth", routine.MaxDepth).
		Msg("translated function")
	return result, nil
}

func (t *translator) index(offset int) int {
	i, _ := t.fn.IndexOf(offset)
	return i
}

func (t *translator) reached(offset int) bool {
	i, ok := t.fn.IndexOf(offset)
	return ok && t.states[i] != nil
}

// region returns the handler region protecting instruction i in state s.
func (t *translator) region(i int, s *state) *HandlerRegion {
	if t.fm.Dialect() == op.Legacy {
		b := s.blocks.setup()
		if b == nil {
			return nil
		}
		return t.fm.Region(b.region)
	}
	return t.fm.Region(t.fm.ProtectedBy(i))
}

// analyze propagates stack shapes from the entry point until every
// reachable instruction's entry shape is stable.
func (t *translator) analyze() error {
	n := len(t.ops)
	t.states = make([]*state, n)
	t.falls = make([]bool, n)
	t.queued = make([]bool, n)
	entry := stack.New(t.fn.LocalCount(), t.fn.ArgCount())
	if err := t.merge(0, state{stack: entry}); err != nil {
		return err
	}
	for len(t.work) > 0 {
		i := t.work[len(t.work)-1]
		t.work = t.work[:len(t.work)-1]
		t.queued[i] = false
		t.at = i
		s := t.states[i]
		o := t.ops[i]
		inst := o.Instruction()

		if r := t.region(i, s); r != nil {
			if err := t.protect(i, s, r, o.MayRaise()); err != nil {
				return err
			}
		}

		flow, err := o.Flow(t.fm, s.stack)
		if err != nil {
			return err
		}
		t.falls[i] = flow.Falls

		next := s.blocks
		switch inst.Op {
		case op.SetupFinally:
			r := t.fm.SetupRegion(inst.Offset)
			if r.Depth >= 0 && r.Depth != s.stack.Depth() {
				return &errz.MalformedExceptionRegionError{
					Region:  r.ID,
					Handler: r.Handler,
					Want:    r.Depth,
					Have:    s.stack.Depth(),
					Reason:  "SETUP_FINALLY reached at different depths",
				}
			}
			r.Depth = s.stack.Depth()
			r.EntryDepth = r.Depth + r.Slots()
			next = &block{region: r.ID, below: s.blocks}
		case op.PopBlock:
			if s.blocks == nil || s.blocks.handler {
				return &errz.MalformedExceptionRegionError{Handler: -1, Reason: "POP_BLOCK with no active block"}
			}
			next = s.blocks.below
		case op.PopExcept:
			if t.fm.Dialect() == op.Legacy {
				if s.blocks == nil || !s.blocks.handler {
					return &errz.MalformedExceptionRegionError{Handler: -1, Reason: "POP_EXCEPT outside an exception handler"}
				}
				next = s.blocks.below
			}
		}

		for _, e := range flow.Branches {
			t.targets[e.Target] = true
			blocks := next
			if e.Handler {
				r := t.fm.SetupRegion(inst.Offset)
				blocks = &block{region: r.ID, handler: true, below: s.blocks}
			}
			if err := t.merge(t.index(e.Target), state{stack: e.Stack, blocks: blocks}); err != nil {
				return err
			}
		}
		if flow.Falls {
			if i+1 >= n {
				return &errz.InvalidInstructionError{Offset: inst.Offset, Reason: "control falls off the end of the function"}
			}
			if err := t.merge(i+1, state{stack: flow.Next, blocks: next}); err != nil {
				return err
			}
		}
	}
	t.at = -1
	return nil
}

// protect checks instruction i against its handler's depth and, when the
// instruction may raise, adds the exceptional edge to the handler.
func (t *translator) protect(i int, s *state, r *HandlerRegion, raises bool) error {
	depth := s.stack.Depth()
	if depth < r.Depth {
		return &errz.MalformedExceptionRegionError{
			Region:  r.ID,
			Handler: r.Handler,
			Want:    r.Depth,
			Have:    depth,
			Reason:  "protected instruction is shallower than its handler's depth",
		}
	}
	if r.Dialect == op.Legacy {
		offset := t.fn.InstructionAt(i).Offset
		end := offset + 2
		if i+1 < len(t.ops) {
			end = t.fn.InstructionAt(i + 1).Offset
		}
		for b := s.blocks; b != nil; b = b.below {
			if b.handler {
				continue
			}
			outer := t.fm.Region(b.region)
			if outer.Start < 0 || offset < outer.Start {
				outer.Start = offset
			}
			if end > outer.End {
				outer.End = end
			}
		}
	}
	if !raises {
		return nil
	}
	var blocks *block
	if r.Dialect == op.Legacy {
		blocks = &block{region: r.ID, handler: true, below: s.blocks.setup().below}
	}
	handler := s.stack.Truncate(r.Depth).Push(handlerLowering{t.fm}.state(r)...)
	t.targets[r.Handler] = true
	return t.merge(t.index(r.Handler), state{stack: handler, blocks: blocks})
}

// merge joins s into the entry state of instruction j and queues j when
// its state changed. Failures are reported at j.
func (t *translator) merge(j int, s state) error {
	prev := t.states[j]
	if prev == nil {
		t.states[j] = &s
		t.enqueue(j)
		return nil
	}
	if !sameBlocks(prev.blocks, s.blocks) {
		t.at = j
		return &errz.MalformedExceptionRegionError{
			Handler: -1,
			Reason:  fmt.Sprintf("block stacks differ at offset %d", t.fn.InstructionAt(j).Offset),
		}
	}
	merged, err := stack.Unify(prev.stack, s.stack)
	if err != nil {
		t.at = j
		return err
	}
	if stack.Equal(prev.stack, merged) {
		return nil
	}
	t.states[j] = &state{stack: merged, blocks: prev.blocks}
	t.enqueue(j)
	return nil
}

func (t *translator) enqueue(j int) {
	if !t.queued[j] {
		t.queued[j] = true
		t.work = append(t.work, j)
	}
}

// emit lowers every reachable instruction in program order and verifies
// the routine's depths.
func (t *translator) emit() (*host.Routine, error) {
	fm := t.fm
	b := host.NewBuilder(t.fn.Name(), fm.HostLocals())
	h := handlerLowering{fm}

	catch := map[int]int{}
	handlers := map[int][]*HandlerRegion{}
	for id := 1; id <= fm.RegionCount(); id++ {
		r := fm.Region(id)
		if !t.reached(r.Handler) {
			t.log.Debug().Int("region", id).Int("handler", r.Handler).Msg("skipping unreachable handler")
			continue
		}
		catch[id] = b.NewLabel()
		handlers[r.Handler] = append(handlers[r.Handler], r)
	}

	falls := false
	for i, o := range t.ops {
		s := t.states[i]
		inst := o.Instruction()
		if s == nil {
			t.log.Debug().Int("offset", inst.Offset).Str("op", inst.Op.String()).Msg("skipping unreachable instruction")
			falls = false
			continue
		}
		t.at = i
		b.SetOrigin(inst.Offset)
		t.guard(b, i, s, catch)
		for _, r := range handlers[inst.Offset] {
			if falls {
				b.Emit(host.Goto{Label: inst.Offset})
			}
			b.Emit(host.Label{ID: catch[r.ID]})
			h.enter(b, r)
			falls = true
		}
		if t.targets[inst.Offset] {
			b.Emit(host.Label{ID: inst.Offset})
		}
		if err := o.Emit(fm, s.stack, b); err != nil {
			return nil, err
		}
		falls = t.falls[i]
	}
	t.at = -1
	for n := 0; n < len(t.cleanups); n++ {
		c := t.cleanups[n]
		r := fm.Region(c.block.region)
		b.SetOrigin(r.Handler)
		t.guardBlocks(b, c.block.below, catch)
		b.Emit(
			host.Label{ID: c.label},
			host.LoadLocal{Index: r.Scratch},
			host.SetHandled{},
			host.Throw{},
		)
	}

	routine := b.Build()
	depths, err := host.Walk(routine)
	if err != nil {
		return nil, err
	}
	routine.MaxDepth = depths.Max
	for i, s := range t.states {
		offset := t.fn.InstructionAt(i).Offset
		if s == nil || !t.targets[offset] {
			continue
		}
		if have, ok := depths.Labels[offset]; ok && have != s.stack.Depth() {
			t.at = i
			return nil, fmt.Errorf("host depth %d disagrees with guest depth %d at offset %d",
				have, s.stack.Depth(), offset)
		}
	}
	return routine, nil
}

// guard protects the operations of instruction i. Regions whose handler is
// unreachable catch nothing.
func (t *translator) guard(b *host.Builder, i int, s *state, catch map[int]int) {
	if t.fm.Dialect() == op.Legacy {
		t.guardBlocks(b, s.blocks, catch)
		return
	}
	r := t.region(i, s)
	if r == nil {
		b.Unprotect()
		return
	}
	if label, ok := catch[r.ID]; ok {
		b.Protect(label, r.Depth)
		return
	}
	b.Unprotect()
}

// guardBlocks protects subsequent operations with the innermost legacy
// block. A running handler is unwound by its cleanup before the exception
// reaches the blocks below it.
func (t *translator) guardBlocks(b *host.Builder, blocks *block, catch map[int]int) {
	if blocks == nil {
		b.Unprotect()
		return
	}
	r := t.fm.Region(blocks.region)
	if !blocks.handler {
		if label, ok := catch[r.ID]; ok {
			b.Protect(label, r.Depth)
		} else {
			b.Unprotect()
		}
		return
	}
	for _, c := range t.cleanups {
		if sameBlocks(c.block, blocks) {
			b.Protect(c.label, r.Depth)
			return
		}
	}
	c := cleanup{label: b.NewLabel(), block: blocks}
	t.cleanups = append(t.cleanups, c)
	b.Protect(c.label, r.Depth)
}
