package host

import (
	"fmt"

	"github.com/deepnoodle-ai/lift/errz"
)

// Depths is the result of walking a routine.
type Depths struct {
	// Before holds the stack depth before each operation, or -1 when the
	// operation is unreachable.
	Before []int
	// Labels holds the stack depth at each reachable label.
	Labels map[int]int
	// Max is the deepest the stack gets.
	Max int
}

// Walk derives stack depths for every operation of r by following normal and
// exceptional control flow from the first operation at depth zero. Every
// path reaching an operation must agree on its depth.
func Walk(r *Routine) (*Depths, error) {
	labels := r.LabelIndex()
	d := &Depths{
		Before: make([]int, len(r.Ops)),
		Labels: map[int]int{},
	}
	for i := range d.Before {
		d.Before[i] = -1
	}
	if len(r.Ops) == 0 {
		return d, nil
	}

	var work []int
	reach := func(from, to, depth int) error {
		if to >= len(r.Ops) {
			return &errz.InvalidInstructionError{Offset: from, Reason: "control falls off the end of the routine"}
		}
		if prev := d.Before[to]; prev >= 0 {
			if prev != depth {
				return &errz.StackShapeConflictError{LeftDepth: prev, RightDepth: depth, Position: -1}
			}
			return nil
		}
		d.Before[to] = depth
		if depth > d.Max {
			d.Max = depth
		}
		work = append(work, to)
		return nil
	}
	jump := func(from, label, depth int) error {
		to, ok := labels[label]
		if !ok {
			return &errz.InvalidInstructionError{Offset: from, Reason: fmt.Sprintf("undefined label %s", labelName(label))}
		}
		return reach(from, to, depth)
	}

	if err := reach(0, 0, 0); err != nil {
		return nil, err
	}
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		o := r.Ops[i]
		depth := d.Before[i]

		if region, ok := r.RegionAt(i); ok {
			if depth < region.Depth {
				return nil, &errz.MalformedExceptionRegionError{
					Handler: region.Handler,
					Want:    region.Depth,
					Have:    depth,
					Reason:  fmt.Sprintf("operation %d is shallower than its region", i),
				}
			}
			if err := jump(i, region.Handler, region.Depth+1); err != nil {
				return nil, err
			}
		}

		pops, pushes := o.Effect()
		if pops > depth {
			return nil, &errz.StackUnderflowError{Want: pops, Have: depth}
		}
		after := depth - pops + pushes
		if after > d.Max {
			d.Max = after
		}
		if label, ok := Target(o); ok {
			if err := jump(i, label, after); err != nil {
				return nil, err
			}
		}
		if !Terminates(o) {
			if err := reach(i, i+1, after); err != nil {
				return nil, err
			}
		}
	}
	for i, o := range r.Ops {
		if l, ok := o.(Label); ok && d.Before[i] >= 0 {
			d.Labels[l.ID] = d.Before[i]
		}
	}
	return d, nil
}
