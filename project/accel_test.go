package project

import (
	"math"
	"testing"
)

func TestNoAccelerationIdentity(t *testing.T) {
	var a NoAcceleration
	a.Begin(2, 50)
	for _, tm := range []float64{0, 0.5, 1.9, 2} {
		if got := a.Transform(tm); got != tm {
			t.Fatalf("identity transform changed %v to %v", tm, got)
		}
	}
}

func TestTrapezoidMonotonic(t *testing.T) {
	a := NewTrapezoidalAccel(1000)
	const duration, vel = 2.0, 80.0
	a.Begin(duration, vel)
	prev := a.Transform(0)
	if !nearlyEqual(prev, 0, 1e-9) {
		t.Fatalf("transform(0) = %v", prev)
	}
	for i := 1; i <= 2000; i++ {
		tm := duration * float64(i) / 2000
		got := a.Transform(tm)
		if got <= prev {
			t.Fatalf("not strictly increasing at t=%v: %v then %v", tm, prev, got)
		}
		prev = got
	}
	// Ramping to 80 mm/s at 1000 mm/s^2 takes 0.08 s and covers what
	// cruise covers in 0.04 s, so each end adds 0.04 s: 0.08 s in total.
	if want := duration + 80.0/1000; !nearlyEqual(prev, want, 1e-6) {
		t.Fatalf("real duration %v, want %v", prev, want)
	}
}

func TestTrapezoidTriangularDegeneration(t *testing.T) {
	a := NewTrapezoidalAccel(100)
	// 0.1 s at 100 mm/s = 10 mm; reaching 100 mm/s would need 50 mm of
	// ramp, so the profile must degenerate to a triangle.
	a.Begin(0.1, 100)
	prev := 0.0
	for i := 1; i <= 500; i++ {
		tm := 0.1 * float64(i) / 500
		got := a.Transform(tm)
		if got <= prev {
			t.Fatalf("triangular profile not increasing at t=%v", tm)
		}
		prev = got
	}
	// Peak velocity sqrt(a*d) = sqrt(100*10) mm/s; total = 2*vp/a.
	want := 2 * (31.6227766 / 100)
	if !nearlyEqual(prev, want, 1e-3) {
		t.Fatalf("triangular duration %v, want %v", prev, want)
	}
}

func TestTrapezoidHomingPassthrough(t *testing.T) {
	a := NewTrapezoidalAccel(1000)
	a.Begin(math.NaN(), 20)
	if got := a.Transform(0.25); got != 0.25 {
		t.Fatalf("NaN-duration segments must pass times through, got %v", got)
	}
}
