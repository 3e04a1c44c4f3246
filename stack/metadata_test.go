package stack

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/deepnoodle-ai/lift/errz"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestZeroValueIsEmpty(t *testing.T) {
	var m Metadata
	require.Equal(t, 0, m.Depth())
	require.Equal(t, "[]", m.String())
	require.Equal(t, Value(Unbound), m.Local(3))
}

func TestPushPop(t *testing.T) {
	m := New(2, 1).Push(Const(int64(1)), Value(Str), Tagged(ExcType, 1))
	require.Equal(t, 3, m.Depth())
	require.Equal(t, "[int=1, str, exc_type(r1)]", m.String())

	top, err := m.Peek(0)
	require.Nil(t, err)
	require.Equal(t, Tagged(ExcType, 1), top)

	popped, err := m.Pop(2)
	require.Nil(t, err)
	require.Equal(t, 1, popped.Depth())
	require.Equal(t, 3, m.Depth(), "original snapshot is unchanged")

	require.Equal(t, Value(Object), m.Local(0))
	require.Equal(t, Value(Unbound), m.Local(1))
}

func TestUnderflow(t *testing.T) {
	m := New(0, 0).Push(Value(Object), Value(Object))
	_, err := m.Pop(3)
	var underflow *errz.StackUnderflowError
	require.True(t, errors.As(err, &underflow))
	require.Equal(t, 3, underflow.Want)
	require.Equal(t, 2, underflow.Have)

	_, err = m.Peek(2)
	require.True(t, errors.As(err, &underflow))
	_, err = m.Top(5)
	require.True(t, errors.As(err, &underflow))
}

func TestTopAndTruncate(t *testing.T) {
	m := Metadata{}.Push(Value(Int), Value(Str), Value(Bool), Value(List))
	top, err := m.Top(2)
	require.Nil(t, err)
	require.Equal(t, []Slot{Value(Bool), Value(List)}, top)

	require.Equal(t, 1, m.Truncate(1).Depth())
	require.Equal(t, 4, m.Truncate(9).Depth())
	require.Equal(t, []Slot{Value(Int), Value(Str)}, m.Truncate(2).Slots())
}

func TestLocalsCopyOnWrite(t *testing.T) {
	a := New(2, 0)
	b := a.SetLocal(0, Value(Int))
	require.Equal(t, Value(Unbound), a.Local(0))
	require.Equal(t, Value(Int), b.Local(0))

	c := b.SetLocal(4, Value(Str))
	require.Equal(t, 5, c.LocalCount())
	require.Equal(t, 2, b.LocalCount())
	require.Equal(t, 3, c.WithLocals(3).LocalCount())
}

func TestRegionBase(t *testing.T) {
	m := Metadata{}.Push(
		Value(Object),
		Tagged(ExcType, 2), Tagged(ExcValue, 2), Tagged(ExcTraceback, 2),
		Value(Int),
	)
	require.Equal(t, 1, m.RegionBase(2))
	require.Equal(t, -1, m.RegionBase(1))
}

func TestUnifyEqualShapes(t *testing.T) {
	a := New(1, 1).Push(Const(int64(3)), Tagged(Exception, 1))
	b := New(1, 1).Push(Const(int64(3)), Tagged(Exception, 1))
	merged, err := Unify(a, b)
	require.Nil(t, err)
	require.True(t, Equal(merged, a))
	require.True(t, Equal(merged, b))
}

func TestUnifyDepthConflict(t *testing.T) {
	a := Metadata{}.Push(Value(Object), Value(Object), Value(Object))
	b := a.Push(Value(Object))
	_, err := Unify(a, b)
	var conflict *errz.StackShapeConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, 3, conflict.LeftDepth)
	require.Equal(t, 4, conflict.RightDepth)
	require.Equal(t, -1, conflict.Position)
}

func TestUnifySlots(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Slot
		want  Slot
		fails bool
	}{
		{"same known", Const(int64(1)), Const(int64(1)), Const(int64(1)), false},
		{"different known", Const(int64(1)), Const(int64(2)), Value(Int), false},
		{"value kinds widen", Value(Int), Value(Str), Value(Object), false},
		{"same region", Tagged(ExcValue, 1), Tagged(ExcValue, 1), Tagged(ExcValue, 1), false},
		{"different region", Tagged(ExcValue, 1), Tagged(ExcValue, 2), Slot{}, true},
		{"exception vs value", Tagged(Exception, 1), Value(Object), Slot{}, true},
		{"null vs value", Value(Null), Value(Object), Slot{}, true},
		{"null vs null", Value(Null), Value(Null), Value(Null), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := Metadata{}.Push(Value(Object))
			merged, err := Unify(base.Push(tt.a), base.Push(tt.b))
			if tt.fails {
				var conflict *errz.StackShapeConflictError
				require.True(t, errors.As(err, &conflict))
				require.Equal(t, 1, conflict.Position)
				return
			}
			require.Nil(t, err)
			top, err := merged.Peek(0)
			require.Nil(t, err)
			require.True(t, tt.want.Equal(top), "got %s", top)
		})
	}
}

func TestUnifyLocals(t *testing.T) {
	a := New(3, 0).SetLocal(0, Value(Int)).SetLocal(1, Value(Int)).SetLocal(2, Const("x"))
	b := New(3, 0).SetLocal(0, Value(Int)).SetLocal(1, Value(Str))
	merged, err := Unify(a, b)
	require.Nil(t, err)
	require.Equal(t, Value(Int), merged.Local(0))
	require.Equal(t, Value(Object), merged.Local(1))
	require.Equal(t, Value(Unbound), merged.Local(2))
}

// randomMetadata builds a stack from value kinds only, so any two results of
// equal depth unify.
func randomMetadata(r *rand.Rand, depth int) Metadata {
	kinds := []Kind{Object, Int, Float, Bool, Str, None, Tuple, List, Iterator}
	m := New(2, 0)
	for i := 0; i < depth; i++ {
		m = m.Push(Value(kinds[r.Intn(len(kinds))]))
	}
	return m
}

func TestPushPopMatchesSliceModel(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		var model []Slot
		var m Metadata
		for step := 0; step < 50; step++ {
			if r.Intn(3) == 0 {
				n := r.Intn(3)
				popped, err := m.Pop(n)
				if n > len(model) {
					require.NotNil(t, err)
					continue
				}
				require.Nil(t, err)
				m = popped
				model = model[:len(model)-n]
			} else {
				s := Const(int64(r.Intn(10)))
				m = m.Push(s)
				model = append(model, s)
			}
			require.Equal(t, len(model), m.Depth())
		}
		if diff := cmp.Diff(model, m.Slots()); len(model) > 0 && diff != "" {
			t.Fatalf("slots mismatch (-model +metadata):\n%s", diff)
		}
	}
}

func TestUnifyProperties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		depth := r.Intn(8)
		a := randomMetadata(r, depth)
		b := randomMetadata(r, depth)

		self, err := Unify(a, a)
		require.Nil(t, err)
		require.True(t, Equal(self, a), "unify is idempotent")

		ab, err := Unify(a, b)
		require.Nil(t, err)
		ba, err := Unify(b, a)
		require.Nil(t, err)
		require.True(t, Equal(ab, ba), "unify is commutative")
		require.Equal(t, depth, ab.Depth())

		again, err := Unify(ab, a)
		require.Nil(t, err)
		require.True(t, Equal(again, ab), "merged shape absorbs its inputs")

		_, err = Unify(a, randomMetadata(r, depth+1))
		require.NotNil(t, err)
	}
}
