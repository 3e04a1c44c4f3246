package vm

import "github.com/deepnoodle-ai/lift/host"

type frame struct {
	routine *host.Routine
	labels  map[int]int
	ip      int
	stack   []any
	locals  []any
}

func newFrame(r *host.Routine, args []any) *frame {
	f := &frame{
		routine: r,
		labels:  r.LabelIndex(),
		stack:   make([]any, 0, r.MaxDepth),
		locals:  make([]any, r.LocalCount),
	}
	for i := range f.locals {
		if i < len(args) {
			f.locals[i] = normalize(args[i])
		} else {
			f.locals[i] = unbound{}
		}
	}
	return f
}

func (f *frame) push(v any) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() any {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

// origin returns the guest offset of the operation at ip, or -1.
func (f *frame) origin(ip int) int {
	if ip >= 0 && ip < len(f.routine.Origins) {
		return f.routine.Origins[ip]
	}
	return -1
}
