package listing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/lift/bytecode"
	"github.com/deepnoodle-ai/lift/errz"
	"github.com/deepnoodle-ai/lift/op"
	"github.com/deepnoodle-ai/lift/version"
)

const tryExcept = `
version: "3.11"
functions:
  - name: guarded
    first_line: 10
    locals: [x]
    names: [ValueError]
    constants: [1, "one", 2.5, null, true, [1, 2]]
    instructions:
      - {op: RESUME}
      - {offset: 2, op: nop, line: 11}
      - {offset: 4, op: LOAD_CONST, arg: 0, line: 12}
      - {offset: 6, op: RETURN_VALUE, line: 12}
      - {offset: 8, op: PUSH_EXC_INFO}
      - {offset: 10, op: POP_EXCEPT}
      - {offset: 12, op: LOAD_CONST, arg: 3}
      - {offset: 14, op: RETURN_VALUE}
    exception_table:
      - {start: 2, end: 4, target: 8, depth: 0}
  - name: old
    version: "3.10"
    instructions:
      - {op: LOAD_CONST}
      - {op: RETURN_VALUE}
`

func TestBuild(t *testing.T) {
	doc, err := Parse([]byte(tryExcept))
	require.NoError(t, err)
	fns, err := doc.Build(version.Version{})
	require.NoError(t, err)
	require.Len(t, fns, 2)

	guarded := fns[0]
	require.Equal(t, "guarded", guarded.Name())
	require.Equal(t, version.Py311, guarded.Version())
	require.Equal(t, 10, guarded.FirstLine())
	require.Equal(t, 1, guarded.LocalCount())
	require.Equal(t, "ValueError", guarded.NameAt(0))

	want := []bytecode.Instruction{
		{Offset: 0, Op: op.Resume},
		{Offset: 2, Op: op.Nop, Line: 11},
		{Offset: 4, Op: op.LoadConst, Arg: 0, Line: 12},
		{Offset: 6, Op: op.ReturnValue, Line: 12},
		{Offset: 8, Op: op.PushExcInfo},
		{Offset: 10, Op: op.PopExcept},
		{Offset: 12, Op: op.LoadConst, Arg: 3},
		{Offset: 14, Op: op.ReturnValue},
	}
	if diff := cmp.Diff(want, guarded.Instructions()); diff != "" {
		t.Fatalf("instructions mismatch (-want +got):\n%s", diff)
	}
	wantConstants := []any{int64(1), "one", 2.5, nil, true, []any{int64(1), int64(2)}}
	if diff := cmp.Diff(wantConstants, guarded.Constants()); diff != "" {
		t.Fatalf("constants mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []bytecode.ExceptionTableEntry{{Start: 2, End: 4, Target: 8}}, guarded.ExceptionTable())

	old := fns[1]
	require.Equal(t, version.Py310, old.Version())
	require.Equal(t, 2, old.InstructionAt(1).Offset)
}

func TestVersionOverride(t *testing.T) {
	doc, err := Parse([]byte(tryExcept))
	require.NoError(t, err)
	fns, err := doc.Build(version.Py312)
	require.NoError(t, err)
	for _, fn := range fns {
		require.Equal(t, version.Py312, fn.Version())
	}
}

func TestJSONListing(t *testing.T) {
	doc, err := Parse([]byte(`{
		"version": "3.9",
		"functions": [{
			"name": "f",
			"instructions": [
				{"offset": 0, "op": "LOAD_FAST", "arg": 0},
				{"offset": 2, "op": "RETURN_VALUE"}
			],
			"locals": ["a"],
			"args": 1
		}]
	}`))
	require.NoError(t, err)
	fns, err := doc.Build(version.Version{})
	require.NoError(t, err)
	require.Equal(t, version.Py39, fns[0].Version())
	require.Equal(t, 1, fns[0].ArgCount())
	require.Equal(t, "a", fns[0].LocalNameAt(0))
}

func TestInvalidListings(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		offset int
	}{
		{
			name:   "unknown opcode",
			input:  "version: '3.9'\nfunctions: [{name: f, instructions: [{op: NOP}, {op: BOGUS}]}]",
			offset: 2,
		},
		{
			name:   "offsets not increasing",
			input:  "version: '3.9'\nfunctions: [{name: f, instructions: [{offset: 4, op: NOP}, {offset: 4, op: NOP}]}]",
			offset: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.input))
			require.NoError(t, err)
			_, err = doc.Build(version.Version{})
			var invalid *errz.InvalidInstructionError
			require.ErrorAs(t, err, &invalid)
			require.Equal(t, tt.offset, invalid.Offset)
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(nil)
	require.EqualError(t, err, "empty listing")

	_, err = Parse([]byte("version: '3.9'\nfuncs: []"))
	require.Error(t, err)

	_, err = Parse([]byte("version: banana"))
	require.ErrorContains(t, err, "invalid guest version")

	doc, err := Parse([]byte("functions: [{name: f, instructions: [{op: NOP}]}]"))
	require.NoError(t, err)
	_, err = doc.Build(version.Version{})
	require.ErrorContains(t, err, "no guest version")

	doc, err = Parse([]byte("version: '3.9'\nfunctions: [{name: f, constants: [{a: 1}], instructions: [{op: NOP}]}]"))
	require.NoError(t, err)
	_, err = doc.Build(version.Version{})
	require.ErrorContains(t, err, "unsupported constant")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tryExcept), 0o644))
	doc, err := Load(path)
	require.NoError(t, err)
	fns, err := doc.Build(version.Version{})
	require.NoError(t, err)
	require.Equal(t, path, fns[0].Filename())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
