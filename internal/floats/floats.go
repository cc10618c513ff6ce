// Package floats centralizes the tolerance used when comparing values
// that have been through floating-point pivoting arithmetic. All
// comparisons in the solver go through these helpers so that the
// notion of "equal", "positive" and "negative" is consistent
// everywhere.
package floats

import "math"

// Epsilon is the comparison tolerance. Values closer than this are
// treated as equal.
const Epsilon = 1e-9

func AreEqual(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}

func IsZero(a float64) bool {
	return math.Abs(a) <= Epsilon
}

func IsPositive(a float64) bool {
	return a > Epsilon
}

func IsNegative(a float64) bool {
	return a < -Epsilon
}

// Lte reports a <= b within tolerance.
func Lte(a, b float64) bool {
	return a <= b+Epsilon
}

// Gte reports a >= b within tolerance.
func Gte(a, b float64) bool {
	return a >= b-Epsilon
}
