package project

import (
	"errors"
	"math"
	"testing"
)

func testEndstops(n int) []func() bool {
	es := make([]func() bool, n)
	for i := 0; i < n; i++ {
		es[i] = func() bool { return false }
	}
	return es
}

func TestCartesianRoundtrip(t *testing.T) {
	m := NewCartesianCoordMap([]float64{80, 80, 400, 95},
		[3]float64{0, 0, 0}, [3]float64{200, 200, 180}, testEndstops(4), nil)
	for _, pos := range []Vector4{
		{0, 0, 0, 0},
		{10.5, 20.25, 5.1, 3.3},
		{199.99, 0.01, 179.5, -2},
	} {
		got := m.Xyze_from_mechanical(m.Mechanical_from_xyze(pos))
		if d := got.Sub(pos).Xyz().Norm(); d > m.Mm_per_step(0) {
			t.Fatalf("roundtrip of %+v drifted %v mm", pos, d)
		}
	}
}

func TestCorexyTransform(t *testing.T) {
	m := NewCorexyCoordMap([]float64{100, 100, 400, 95},
		[3]float64{0, 0, 0}, [3]float64{200, 200, 180}, testEndstops(4), nil)
	mech := m.Mechanical_from_xyze(Vector4{X: 10, Y: 4})
	// a = (x+y)/2 = 7, b = (x-y)/2 = 3
	if mech[0] != 700 || mech[1] != 300 {
		t.Fatalf("corexy mechanical = %v, want a=700 b=300", mech)
	}
	got := m.Xyze_from_mechanical(mech)
	if !nearlyEqual(got.X, 10, 0.01) || !nearlyEqual(got.Y, 4, 0.01) {
		t.Fatalf("corexy inverse = %+v", got)
	}
}

func TestDeltaRoundtripProperty(t *testing.T) {
	m := NewLinearDeltaCoordMap(100, 250, 80, 300,
		[]float64{160, 160, 160, 95}, testEndstops(3), nil)
	maxStep := m.Mm_per_step(0)
	for x := -60.0; x <= 60; x += 15 {
		for y := -60.0; y <= 60; y += 15 {
			for z := 0.0; z <= 280; z += 70 {
				pos := Vector4{X: x, Y: y, Z: z, E: 1.5}
				got := m.Xyze_from_mechanical(m.Mechanical_from_xyze(pos))
				if d := got.Sub(pos).Xyz().Norm(); d > 2*maxStep {
					t.Fatalf("delta roundtrip of %+v drifted %v mm", pos, d)
				}
			}
		}
	}
}

func TestDeltaHomePosition(t *testing.T) {
	m := NewLinearDeltaCoordMap(100, 250, 80, 300,
		[]float64{160, 160, 160, 95}, testEndstops(3), nil)
	home := m.Home_position([]int64{0, 0, 0, 42})
	if home[3] != 42 {
		t.Fatalf("home must preserve the extruder count, got %v", home)
	}
	pos := m.Xyze_from_mechanical(home)
	if !nearlyEqual(pos.X, 0, 0.05) || !nearlyEqual(pos.Y, 0, 0.05) || !nearlyEqual(pos.Z, 300, 0.05) {
		t.Fatalf("home cartesian = %+v, want (0, 0, 300)", pos)
	}
}

func TestBoundRejectsFarDestinations(t *testing.T) {
	m := NewCartesianCoordMap([]float64{80, 80, 400, 95},
		[3]float64{0, 0, 0}, [3]float64{200, 200, 180}, testEndstops(4), nil)
	if _, err := m.Bound(Vector4{X: 500}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	got, err := m.Bound(Vector4{X: 200.1, Y: 5})
	if err != nil {
		t.Fatalf("small overshoot should clamp silently, got %v", err)
	}
	if got.X != 200 {
		t.Fatalf("clamp result %v", got)
	}
}

func TestDeltaBoundCylinder(t *testing.T) {
	m := NewLinearDeltaCoordMap(100, 250, 80, 300,
		[]float64{160, 160, 160, 95}, testEndstops(3), nil)
	if _, err := m.Bound(Vector4{X: 90, Y: 90}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds outside the print radius")
	}
	got, err := m.Bound(Vector4{X: 80.2, Y: 0, Z: 10})
	if err != nil {
		t.Fatalf("small radial overshoot should clamp, got %v", err)
	}
	if r := math.Hypot(got.X, got.Y); r > 80.0001 {
		t.Fatalf("clamped radius %v", r)
	}
}

func TestTiltLeveler(t *testing.T) {
	l := TiltLeveler{Ax: 0.01, Ay: -0.02}
	got := l.Level(Vector4{X: 100, Y: 50, Z: 1})
	if !nearlyEqual(got.Z, 1+1-1, 1e-9) {
		t.Fatalf("leveled z = %v", got.Z)
	}
	var id IdentityLeveler
	if id.Level(Vector4{X: 3, Z: 9}) != (Vector4{X: 3, Z: 9}) {
		t.Fatalf("identity leveler changed the position")
	}
}
