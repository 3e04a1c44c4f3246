package vm

import (
	"context"
	"testing"

	"github.com/deepnoodle-ai/lift/host"
	"github.com/stretchr/testify/require"
)

func TestClassHierarchy(t *testing.T) {
	require.True(t, ZeroDivisionError.IsSubclass(ArithmeticError))
	require.True(t, ZeroDivisionError.IsSubclass(BaseException))
	require.False(t, ValueError.IsSubclass(ArithmeticError))
}

func TestMatches(t *testing.T) {
	exc := NewException(KeyError, "k")
	tests := []struct {
		name   string
		target any
		want   bool
	}{
		{"exact", KeyError, true},
		{"base", LookupError, true},
		{"unrelated", ValueError, false},
		{"tuple", Tuple{ValueError, LookupError}, true},
		{"empty tuple", Tuple{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := matches(exc, tt.target)
			require.Nil(t, err)
			require.Equal(t, tt.want, ok)
		})
	}
	_, err := matches(exc, "KeyError")
	require.NotNil(t, err)
}

func TestAsException(t *testing.T) {
	require.Equal(t, ValueError, asException(ValueError).Class)
	require.Equal(t, RuntimeError, asException(nil).Class)
	require.Equal(t, TypeError, asException(int64(3)).Class)
	exc := NewException(KeyError)
	require.Same(t, exc, asException(exc))
}

func TestExceptionHelpers(t *testing.T) {
	vm := New()
	exc := NewException(ValueError, "bad")
	exc.Lasti = 14
	exc.Traceback = []int{14, 30}

	snippet, err := vm.Exec(context.Background(), []host.Operation{
		host.Dup{},
		host.Invoke{Helper: host.HelperExceptionType, Args: 1, Results: 1},
		host.Swap{Depth: 1},
		host.Dup{},
		host.Invoke{Helper: host.HelperExceptionTrace, Args: 1, Results: 1},
		host.Pick{Depth: 1},
		host.Invoke{Helper: host.HelperExcLasti, Args: 1, Results: 1},
	}, []any{exc}, nil)
	require.Nil(t, err)
	require.Equal(t, []any{ValueError, exc, Tuple{int64(14), int64(30)}, int64(14)}, snippet.Stack)
}

func TestRaiseFrom(t *testing.T) {
	r := &host.Routine{Ops: []host.Operation{
		host.LoadGlobal{Name: "ValueError"},
		host.LoadGlobal{Name: "KeyError"},
		host.Invoke{Helper: host.HelperMakeFrom, Args: 2, Results: 1},
		host.Throw{},
	}}
	_, err := New().Run(context.Background(), r)
	exc, ok := err.(*Exception)
	require.True(t, ok)
	require.Equal(t, ValueError, exc.Class)
	require.Equal(t, KeyError, exc.Cause.Class)
}

func TestRepr(t *testing.T) {
	require.Equal(t, "None", Repr(nil))
	require.Equal(t, "(1,)", Repr(Tuple{int64(1)}))
	require.Equal(t, "[1, 'a']", Repr(&List{Items: []any{int64(1), "a"}}))
	require.Equal(t, "ValueError('a', 2)", Repr(NewException(ValueError, "a", int64(2))))
	require.Equal(t, "<class 'KeyError'>", Repr(KeyError))
}
