package enums

import (
	"fmt"
	"slices"
)

// set is an ordered list of the legal values of a string enum.
type set[T ~string] []T

func (s set[T]) has(v T) bool { return slices.Contains(s, v) }

// index returns v's position, or -1 when v is not a member.
func (s set[T]) index(v T) int { return slices.Index(s, v) }

// parse matches raw exactly; kind names the enum in the error.
func (s set[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
