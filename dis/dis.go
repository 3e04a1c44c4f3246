// Package dis renders guest functions and translated host routines as
// tables for inspection.
package dis

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/deepnoodle-ai/lift/bytecode"
	"github.com/deepnoodle-ai/lift/errz"
	"github.com/deepnoodle-ai/lift/host"
	"github.com/deepnoodle-ai/lift/internal/table"
	"github.com/deepnoodle-ai/lift/op"
	"github.com/deepnoodle-ai/lift/vm"
)

var (
	jumpColor      = color.New(color.FgYellow)
	exceptionColor = color.New(color.FgMagenta)
	infoColor      = color.New(color.FgCyan)
	labelColor     = color.New(color.Bold)
)

// Instruction is one disassembled guest instruction.
type Instruction struct {
	Offset   int
	Name     string
	Operands []any
	// Info is the operand resolved against the function's tables: a
	// constant, a name, a local or a jump target.
	Info string
	Line int
}

// Disassemble resolves the operands of every instruction of fn.
func Disassemble(fn *bytecode.Function) ([]Instruction, error) {
	out := make([]Instruction, 0, fn.InstructionCount())
	for i := 0; i < fn.InstructionCount(); i++ {
		inst := fn.InstructionAt(i)
		if !op.Defined(inst.Op) {
			return nil, &errz.InvalidInstructionError{
				Offset: inst.Offset,
				Reason: fmt.Sprintf("unknown opcode %d", inst.Op),
			}
		}
		info := op.GetInfo(inst.Op)
		d := Instruction{Offset: inst.Offset, Name: info.Name, Line: inst.Line}
		if info.HasArg {
			d.Operands = []any{inst.Arg}
			d.Info = describe(fn, inst)
		}
		out = append(out, d)
	}
	return out, nil
}

func describe(fn *bytecode.Function, inst bytecode.Instruction) string {
	behavior, _ := op.Resolve(inst.Op, fn.Version())
	arg := inst.Arg
	inRange := func(index, count int) bool { return index >= 0 && index < count }
	if op.GetInfo(inst.Op).Jump {
		return "to " + strconv.Itoa(arg)
	}
	switch inst.Op {
	case op.LoadConst:
		if inRange(arg, fn.ConstantCount()) {
			return vm.Repr(fn.ConstantAt(arg))
		}
	case op.LoadFast, op.StoreFast, op.DeleteFast:
		return fn.LocalNameAt(arg)
	case op.LoadGlobal, op.LoadAttr:
		index := arg >> behavior.NameShift
		if !inRange(index, fn.NameCount()) {
			return ""
		}
		if behavior.NullBit && arg&1 == 1 {
			if inst.Op == op.LoadGlobal {
				return "NULL + " + fn.NameAt(index)
			}
			return fn.NameAt(index) + " (method)"
		}
		return fn.NameAt(index)
	case op.StoreGlobal, op.StoreAttr:
		if inRange(arg, fn.NameCount()) {
			return fn.NameAt(arg)
		}
	case op.BinaryOp:
		return op.BinaryOpType(arg).String()
	case op.CompareOp:
		return op.CompareOpType(arg >> behavior.CompareShift).String()
	case op.IsOp:
		if arg != 0 {
			return "is not"
		}
		return "is"
	case op.ContainsOp:
		if arg != 0 {
			return "not in"
		}
		return "in"
	case op.Reraise:
		if arg != 0 {
			return "lasti"
		}
	}
	return ""
}

func opcodeColor(name string) *color.Color {
	code, ok := op.Lookup(name)
	if !ok {
		return nil
	}
	info := op.GetInfo(code)
	switch {
	case code >= op.SetupFinally && code <= op.CheckExcMatch:
		return exceptionColor
	case info.Jump || info.Terminator:
		return jumpColor
	}
	return nil
}

func paint(c *color.Color, s string) string {
	if c == nil || s == "" {
		return s
	}
	return c.Sprint(s)
}

// Print writes instructions as a table.
func Print(instructions []Instruction, w io.Writer) error {
	t := table.NewTable(w).
		WithHeader([]string{"OFFSET", "OPCODE", "OPERANDS", "INFO"}).
		WithHeaderAlignment([]table.Alignment{table.AlignCenter, table.AlignCenter, table.AlignCenter, table.AlignCenter}).
		WithColumnAlignment([]table.Alignment{table.AlignRight, table.AlignLeft, table.AlignRight, table.AlignLeft})
	for _, inst := range instructions {
		operands := ""
		for i, operand := range inst.Operands {
			if i > 0 {
				operands += ", "
			}
			operands += fmt.Sprint(operand)
		}
		t.Append([]string{
			strconv.Itoa(inst.Offset),
			paint(opcodeColor(inst.Name), inst.Name),
			operands,
			paint(infoColor, inst.Info),
		})
	}
	return t.Render()
}

// PrintExceptionTable writes fn's exception table. Nothing is written when
// the table is empty.
func PrintExceptionTable(fn *bytecode.Function, w io.Writer) error {
	if fn.ExceptionEntryCount() == 0 {
		return nil
	}
	t := table.NewTable(w).
		WithHeader([]string{"START", "END", "TARGET", "DEPTH", "LASTI"}).
		WithColumnAlignment([]table.Alignment{table.AlignRight, table.AlignRight, table.AlignRight, table.AlignRight, table.AlignLeft})
	for _, e := range fn.ExceptionTable() {
		lasti := ""
		if e.Lasti {
			lasti = "yes"
		}
		t.Append([]string{
			strconv.Itoa(e.Start),
			strconv.Itoa(e.End),
			strconv.Itoa(e.Target),
			strconv.Itoa(e.Depth),
			lasti,
		})
	}
	return t.Render()
}

// PrintRoutine writes a host routine as a table. Labels get their own row;
// every other operation shows the guest offset it was emitted for and the
// handler protecting it.
func PrintRoutine(r *host.Routine, w io.Writer) error {
	t := table.NewTable(w).
		WithHeader([]string{"INDEX", "OPERATION", "ORIGIN", "HANDLER"}).
		WithColumnAlignment([]table.Alignment{table.AlignRight, table.AlignLeft, table.AlignRight, table.AlignLeft})
	for i, o := range r.Ops {
		if _, ok := o.(host.Label); ok {
			t.Append([]string{"", paint(labelColor, o.String()), "", ""})
			continue
		}
		origin := ""
		if i < len(r.Origins) {
			origin = strconv.Itoa(r.Origins[i])
		}
		handler := ""
		if region, ok := r.RegionAt(i); ok {
			label := strings.TrimSuffix(host.Label{ID: region.Handler}.String(), ":")
			handler = fmt.Sprintf("%s [%d]", label, region.Depth)
		}
		name := o.String()
		switch o.(type) {
		case host.Throw, host.GetHandled, host.SetHandled:
			name = paint(exceptionColor, name)
		case host.Goto, host.IfTrue, host.IfFalse, host.Return:
			name = paint(jumpColor, name)
		}
		t.Append([]string{strconv.Itoa(i), name, origin, handler})
	}
	return t.Render()
}
