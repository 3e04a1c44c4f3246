package host

import (
	"fmt"
	"strings"
)

// ProtectedRegion routes exceptions raised by operations in [Start, End) to
// Handler. The runtime truncates the stack to Depth and pushes the exception
// before jumping.
type ProtectedRegion struct {
	Start   int
	End     int
	Handler int
	Depth   int
}

func (r ProtectedRegion) String() string {
	return fmt.Sprintf("%d..%d -> %s [%d]", r.Start, r.End, labelName(r.Handler), r.Depth)
}

// Routine is the translation of one guest function.
type Routine struct {
	Name       string
	LocalCount int
	MaxDepth   int
	Ops        []Operation
	Regions    []ProtectedRegion
	// Origins holds, per operation, the guest offset it was emitted for.
	Origins []int
}

// LabelIndex maps each label ID to the index of its Label operation.
func (r *Routine) LabelIndex() map[int]int {
	index := map[int]int{}
	for i, o := range r.Ops {
		if l, ok := o.(Label); ok {
			index[l.ID] = i
		}
	}
	return index
}

// RegionAt returns the protected region covering operation i.
func (r *Routine) RegionAt(i int) (ProtectedRegion, bool) {
	for _, region := range r.Regions {
		if i >= region.Start && i < region.End {
			return region, true
		}
	}
	return ProtectedRegion{}, false
}

func (r *Routine) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "routine %s locals=%d max_depth=%d\n", r.Name, r.LocalCount, r.MaxDepth)
	for i, o := range r.Ops {
		if _, ok := o.(Label); ok {
			fmt.Fprintf(&b, "%s\n", o)
			continue
		}
		fmt.Fprintf(&b, "  %4d  %s\n", i, o)
	}
	for _, region := range r.Regions {
		fmt.Fprintf(&b, "  protect %s\n", region)
	}
	return b.String()
}

type protection struct {
	handler int
	depth   int
	active  bool
}

// Builder accumulates operations for one routine.
type Builder struct {
	name       string
	ops        []Operation
	origins    []int
	protect    []protection
	current    protection
	origin     int
	nextLabel  int
	localCount int
}

// NewBuilder returns an empty builder.
func NewBuilder(name string, localCount int) *Builder {
	return &Builder{name: name, localCount: localCount, nextLabel: -1}
}

// Emit appends operations. They inherit the current origin and protection.
func (b *Builder) Emit(ops ...Operation) {
	for _, o := range ops {
		b.ops = append(b.ops, o)
		b.origins = append(b.origins, b.origin)
		b.protect = append(b.protect, b.current)
	}
}

// NewLabel returns a fresh internal label ID.
func (b *Builder) NewLabel() int {
	id := b.nextLabel
	b.nextLabel--
	return id
}

// SetOrigin sets the guest offset recorded for subsequent operations.
func (b *Builder) SetOrigin(offset int) {
	b.origin = offset
}

// Protect routes exceptions from subsequent operations to handler.
func (b *Builder) Protect(handler, depth int) {
	b.current = protection{handler: handler, depth: depth, active: true}
}

// Unprotect stops protecting subsequent operations.
func (b *Builder) Unprotect() {
	b.current = protection{}
}

// Len returns the number of operations emitted so far.
func (b *Builder) Len() int {
	return len(b.ops)
}

// ReserveLocals grows the routine's local count to at least n.
func (b *Builder) ReserveLocals(n int) {
	if n > b.localCount {
		b.localCount = n
	}
}

// Build returns the routine. Runs of operations with the same protection
// become one ProtectedRegion.
func (b *Builder) Build() *Routine {
	r := &Routine{
		Name:       b.name,
		LocalCount: b.localCount,
		Ops:        append([]Operation(nil), b.ops...),
		Origins:    append([]int(nil), b.origins...),
	}
	for i := 0; i < len(b.protect); {
		p := b.protect[i]
		j := i + 1
		for j < len(b.protect) && b.protect[j] == p {
			j++
		}
		if p.active {
			r.Regions = append(r.Regions, ProtectedRegion{
				Start:   i,
				End:     j,
				Handler: p.handler,
				Depth:   p.depth,
			})
		}
		i = j
	}
	return r
}
