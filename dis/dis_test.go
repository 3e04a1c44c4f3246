package dis

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/lift/bytecode"
	"github.com/deepnoodle-ai/lift/errz"
	"github.com/deepnoodle-ai/lift/host"
	"github.com/deepnoodle-ai/lift/op"
	"github.com/deepnoodle-ai/lift/version"
)

func noColor(t *testing.T) {
	saved := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = saved })
}

func TestFunctionDisassembly(t *testing.T) {
	noColor(t)
	fn := bytecode.NewFunction(bytecode.FunctionParams{
		Name:    "f",
		Version: version.Py39,
		Instructions: []bytecode.Instruction{
			{Offset: 0, Op: op.LoadConst, Arg: 0},
			{Offset: 2, Op: op.PopTop},
			{Offset: 4, Op: op.LoadGlobal, Arg: 0},
			{Offset: 6, Op: op.LoadConst, Arg: 1},
			{Offset: 8, Op: op.CallFunction, Arg: 1},
			{Offset: 10, Op: op.ReturnValue},
		},
		Constants: []any{int64(42), "kaboom"},
		Names:     []string{"error"},
	})
	instructions, err := Disassemble(fn)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Print(instructions, &buf))

	expected := strings.TrimSpace(`
+--------+---------------+----------+----------+
| OFFSET |    OPCODE     | OPERANDS |   INFO   |
+--------+---------------+----------+----------+
|      0 | LOAD_CONST    |        0 | 42       |
|      2 | POP_TOP       |          |          |
|      4 | LOAD_GLOBAL   |        0 | error    |
|      6 | LOAD_CONST    |        1 | 'kaboom' |
|      8 | CALL_FUNCTION |        1 |          |
|     10 | RETURN_VALUE  |          |          |
+--------+---------------+----------+----------+
`)
	require.Equal(t, expected+"\n", buf.String())
}

func TestOperandInfo(t *testing.T) {
	fn := bytecode.NewFunction(bytecode.FunctionParams{
		Name:    "g",
		Version: version.Py312,
		Instructions: []bytecode.Instruction{
			{Offset: 0, Op: op.LoadGlobal, Arg: 3},
			{Offset: 2, Op: op.LoadFast, Arg: 0},
			{Offset: 4, Op: op.LoadAttr, Arg: 0},
			{Offset: 6, Op: op.BinaryOp, Arg: int(op.Add + op.InplaceOffset)},
			{Offset: 8, Op: op.CompareOp, Arg: int(op.LessThanOrEqual) << 4},
			{Offset: 10, Op: op.ContainsOp, Arg: 1},
			{Offset: 12, Op: op.PopJumpIfFalse, Arg: 2},
			{Offset: 14, Op: op.Reraise, Arg: 1},
		},
		Names:      []string{"print", "len"},
		LocalNames: []string{"x"},
	})
	instructions, err := Disassemble(fn)
	require.NoError(t, err)
	var info []string
	for _, inst := range instructions {
		info = append(info, inst.Info)
	}
	require.Equal(t, []string{
		"NULL + len",
		"x",
		"print",
		"+=",
		"<=",
		"not in",
		"to 2",
		"lasti",
	}, info)
	require.Equal(t, 14, instructions[7].Offset)
	require.Equal(t, []any{1}, instructions[7].Operands)
}

func TestUnknownOpcode(t *testing.T) {
	fn := bytecode.NewFunction(bytecode.FunctionParams{
		Version:      version.Py39,
		Instructions: []bytecode.Instruction{{Offset: 0, Op: op.Nop}, {Offset: 2, Op: op.Code(255)}},
	})
	_, err := Disassemble(fn)
	var invalid *errz.InvalidInstructionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 2, invalid.Offset)
}

func TestExceptionTable(t *testing.T) {
	noColor(t)
	fn := bytecode.NewFunction(bytecode.FunctionParams{
		Version:      version.Py311,
		Instructions: []bytecode.Instruction{{Offset: 0, Op: op.Nop}},
		ExceptionTable: []bytecode.ExceptionTableEntry{
			{Start: 10, End: 12, Target: 14, Depth: 1, Lasti: true},
			{Start: 2, End: 8, Target: 10, Depth: 0},
		},
	})
	var buf bytes.Buffer
	require.NoError(t, PrintExceptionTable(fn, &buf))
	expected := strings.TrimSpace(`
+-------+-----+--------+-------+-------+
| START | END | TARGET | DEPTH | LASTI |
+-------+-----+--------+-------+-------+
|     2 |   8 |     10 |     0 |       |
|    10 |  12 |     14 |     1 | yes   |
+-------+-----+--------+-------+-------+
`)
	require.Equal(t, expected+"\n", buf.String())

	buf.Reset()
	legacy := bytecode.NewFunction(bytecode.FunctionParams{
		Version:      version.Py39,
		Instructions: []bytecode.Instruction{{Offset: 0, Op: op.Nop}},
	})
	require.NoError(t, PrintExceptionTable(legacy, &buf))
	require.Empty(t, buf.String())
}

func TestPrintRoutine(t *testing.T) {
	noColor(t)
	b := host.NewBuilder("r", 0)
	handler := b.NewLabel()
	b.SetOrigin(4)
	b.Protect(handler, 0)
	b.Emit(host.Const{Value: int64(1)}, host.Throw{})
	b.Unprotect()
	b.SetOrigin(6)
	b.Emit(host.Label{ID: handler}, host.Return{})

	var buf bytes.Buffer
	require.NoError(t, PrintRoutine(b.Build(), &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 8)
	require.Contains(t, lines[1], "INDEX")
	require.Contains(t, lines[3], "L1 [0]")
	require.Contains(t, lines[4], "Throw")
	require.Contains(t, lines[4], "L1 [0]")
	require.Contains(t, lines[5], "L1:")
	require.NotContains(t, lines[6], "L1")
	require.Contains(t, lines[6], "Return")
}
