package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected Version
	}{
		{"3.9", Py39},
		{"3.10", Py310},
		{"v3.11", Py311},
		{"3.12.4", Py312},
		{" 3.13 ", New(3, 13)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			require.Nil(t, err)
			require.Equal(t, tt.expected, v)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{"", "three", "3.x", "3.11-", "3..1"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
		})
	}
}

func TestParseMajorOnly(t *testing.T) {
	// semver accepts "v3" as shorthand for v3.0.0
	v, err := Parse("3")
	require.Nil(t, err)
	require.Equal(t, New(3, 0), v)
}

func TestOrdering(t *testing.T) {
	// 3.10 must sort after 3.9 even though "10" < "9" lexically
	require.Equal(t, 1, Py310.Compare(Py39))
	require.Equal(t, -1, Py39.Compare(Py310))
	require.Equal(t, 0, Py311.Compare(New(3, 11)))
	require.True(t, Py312.IsAtLeast(ExceptionTable))
	require.True(t, Py311.IsAtLeast(ExceptionTable))
	require.False(t, Py310.IsAtLeast(ExceptionTable))
	require.True(t, New(4, 0).IsAtLeast(Latest))
}

func TestOrderingIsTotal(t *testing.T) {
	versions := []Version{New(-1, 0), New(0, -2), New(0, -1), {}, New(2, 7), Py39, Py310, New(4, 0)}
	for i, a := range versions {
		for j, b := range versions {
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			require.Equal(t, want, a.Compare(b), "%v vs %v", a, b)
		}
	}
}

func TestSupported(t *testing.T) {
	require.False(t, New(3, 8).Supported())
	require.True(t, Py39.Supported())
	require.True(t, New(3, 14).Supported())
}

func TestTextRoundTrip(t *testing.T) {
	text, err := Py311.MarshalText()
	require.Nil(t, err)
	require.Equal(t, "3.11", string(text))

	var v Version
	require.Nil(t, v.UnmarshalText([]byte("3.10")))
	require.Equal(t, Py310, v)
	require.Error(t, v.UnmarshalText([]byte("nope")))
}
