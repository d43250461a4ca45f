package maths

import "math"

// NearlyEqual reports whether a and b agree to within tol.
func NearlyEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Hypot3 is the Euclidean norm of (x, y, z).
func Hypot3(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

// IsValidTime reports whether t is a usable step time: finite and not NaN.
func IsValidTime(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0)
}
