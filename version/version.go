// Package version identifies guest bytecode dialects.
//
// A [Version] is a major.minor pair with a total order. Behavior that differs
// between dialects is always gated with [Version.IsAtLeast], never with an
// equality check, so a version that is not listed explicitly inherits the
// behavior of the nearest lower version that is.
package version

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a guest bytecode dialect identifier such as 3.11.
type Version struct {
	Major int
	Minor int
}

var (
	Py39  = Version{3, 9}
	Py310 = Version{3, 10}
	Py311 = Version{3, 11}
	Py312 = Version{3, 12}

	// ExceptionTable is the first dialect that encodes exception handlers in
	// a side table and pushes a single exception slot on handler entry.
	ExceptionTable = Py311

	// Minimum is the oldest dialect the translator accepts.
	Minimum = Py39

	// Latest is the newest dialect with explicitly defined behavior. Newer
	// versions are accepted and behave like Latest.
	Latest = Py312
)

// New returns the version major.minor.
func New(major, minor int) Version {
	return Version{Major: major, Minor: minor}
}

// Parse parses "3.11", "v3.11" or "3.11.4". The patch component, if any, is
// validated and discarded.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	v := s
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return Version{}, fmt.Errorf("invalid guest version %q", s)
	}
	mm := strings.TrimPrefix(semver.MajorMinor(v), "v")
	major, minor, ok := strings.Cut(mm, ".")
	if !ok {
		return Version{}, fmt.Errorf("invalid guest version %q: missing minor version", s)
	}
	maj, err := strconv.Atoi(major)
	if err != nil {
		return Version{}, fmt.Errorf("invalid guest version %q: %w", s, err)
	}
	mnr, err := strconv.Atoi(minor)
	if err != nil {
		return Version{}, fmt.Errorf("invalid guest version %q: %w", s, err)
	}
	return Version{Major: maj, Minor: mnr}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to,
// or after other.
func (v Version) Compare(other Version) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	return cmp.Compare(v.Minor, other.Minor)
}

// IsAtLeast reports whether v is other or newer.
func (v Version) IsAtLeast(other Version) bool {
	return v.Compare(other) >= 0
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0
}

// Supported reports whether the translator accepts v at all.
func (v Version) Supported() bool {
	return v.IsAtLeast(Minimum)
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
