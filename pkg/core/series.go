package core

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Series is an index-aligned column of values, one per bar.
// Float series use NaN for entries that are not computed yet.
type Series[T constraints.Ordered] []T

// CrossoverAt reports a cross above ref at index i, looking only at i and i-1
func (s Series[T]) CrossoverAt(ref Series[T], i int) bool {
	if i < 1 || i >= len(s) || i >= len(ref) {
		return false
	}
	return s[i] > ref[i] && s[i-1] <= ref[i-1]
}

// Defined reports whether the value at index i is available
func (s Series[T]) Defined(i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	v := s[i]
	// NaN is the only value not equal to itself
	return v == v
}

// FirstDefined returns the index of the first defined value, or len(s) if none
func (s Series[T]) FirstDefined() int {
	for i := range s {
		if s.Defined(i) {
			return i
		}
	}
	return len(s)
}

// Undefined returns the marker used for values that are not available yet
func Undefined() float64 {
	return math.NaN()
}

// IsDefined reports whether v carries a computed value
func IsDefined(v float64) bool {
	return !math.IsNaN(v)
}
