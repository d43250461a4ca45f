package project

import (
	"math"
	"testing"
)

// carriageAt is the reference inverse kinematics for one tower on a
// linear path; the stepper's predictions are checked against it.
func carriageAt(r, L, w, x0, y0, z0, vx, vy, vz, t float64) float64 {
	x := x0 + vx*t
	y := y0 + vy*t
	z := z0 + vz*t
	dx := x - r*math.Sin(w)
	dy := y - r*math.Cos(w)
	return z + math.Sqrt(L*L-dx*dx-dy*dy)
}

func TestDeltaStepperPureZ(t *testing.T) {
	// A pure Z move keeps all carriages in lockstep: steps exactly every
	// mmPerStep/vz seconds, all in the Z direction.
	const (
		r, L = 100.0, 250.0
		step = 0.1
		vz   = -10.0
	)
	for tower := 0; tower < 3; tower++ {
		w := float64(tower) * 2 * math.Pi / 3
		z0 := 40.0
		m0 := carriageAt(r, L, w, 0, 0, z0, 0, 0, vz, 0)
		s := NewLinearDeltaStepper(tower, DeltaStepperParams{
			Radius: r, RodLength: L, Angle: w, MmPerStep: step,
			M0: m0, X0: 0, Y0: 0, Z0: z0, Vx: 0, Vy: 0, Vz: vz,
		})
		for i := 1; i <= 20; i++ {
			want := float64(i) * step / -vz
			if got := s.Peek_time(); !nearlyEqual(got, want, 1e-6) {
				t.Fatalf("tower %d step %d at %v, want %v", tower, i, got, want)
			}
			if s.Peek_direction() != StepBackward {
				t.Fatalf("tower %d: descending carriage must step backward", tower)
			}
			s.Advance()
		}
	}
}

func TestDeltaStepperAgainstReference(t *testing.T) {
	// A long XY pass near tower A makes the A carriage rise and fall
	// within one segment; every predicted step must land exactly on a
	// step boundary of the reference curve, in strictly ascending time.
	const (
		r, L     = 100.0, 250.0
		step     = 0.1
		duration = 1.0
	)
	x0, y0, z0 := -60.0, 40.0, 30.0
	vx, vy, vz := 120.0, 0.0, 0.0

	for tower := 0; tower < 3; tower++ {
		w := float64(tower) * 2 * math.Pi / 3
		m0 := carriageAt(r, L, w, x0, y0, z0, vx, vy, vz, 0)
		s := NewLinearDeltaStepper(tower, DeltaStepperParams{
			Radius: r, RodLength: L, Angle: w, MmPerStep: step,
			M0: m0, X0: x0, Y0: y0, Z0: z0, Vx: vx, Vy: vy, Vz: vz,
		})
		prev := 0.0
		level := m0
		sawForward, sawBackward := false, false
		for {
			at := s.Peek_time()
			if math.IsNaN(at) || at > duration {
				break
			}
			if at <= prev {
				t.Fatalf("tower %d: step times not increasing (%v then %v)", tower, prev, at)
			}
			prev = at
			level += float64(s.Peek_direction().Signed()) * step
			if s.Peek_direction() == StepForward {
				sawForward = true
			} else {
				sawBackward = true
			}
			ref := carriageAt(r, L, w, x0, y0, z0, vx, vy, vz, at)
			if !nearlyEqual(ref, level, 1e-3) {
				t.Fatalf("tower %d: at t=%v carriage is %v, stepper thinks %v", tower, at, ref, level)
			}
			s.Advance()
		}
		end := carriageAt(r, L, w, x0, y0, z0, vx, vy, vz, duration)
		if math.Abs(end-level) > step+1e-3 {
			t.Fatalf("tower %d: drifted: reference end %v, stepped to %v", tower, end, level)
		}
		if tower == 0 && (!sawForward || !sawBackward) {
			t.Fatalf("tower A should reverse direction on this pass (fwd=%v back=%v)", sawForward, sawBackward)
		}
	}
}

func TestDeltaStepperZeroVelocityReturnsNaN(t *testing.T) {
	s := NewLinearDeltaStepper(0, DeltaStepperParams{
		Radius: 100, RodLength: 250, Angle: 0, MmPerStep: 0.1,
		M0: 229.128, X0: 0, Y0: 0, Z0: 0, Vx: 0, Vy: 0, Vz: 0,
	})
	if !math.IsNaN(s.Peek_time()) {
		t.Fatalf("zero-velocity delta stepper should be done")
	}
}

func TestArcStepperPeriodAliasing(t *testing.T) {
	// Full revolution on a cartesian X axis: x(t) = 5 cos(2*pi*t). The
	// second half of the revolution only has roots that alias forward a
	// period; the stepper must still produce strictly increasing times
	// that track the reference cosine.
	const (
		rad   = 5.0
		omega = 2 * math.Pi
		step  = 0.1
	)
	s := NewArcAxisStepper(0, rad, 0, rad, 0, omega, step)
	prev := 0.0
	level := rad
	n := 0
	for {
		at := s.Peek_time()
		if math.IsNaN(at) || at > 1.0 {
			break
		}
		if at <= prev {
			t.Fatalf("step %d: times not increasing (%v then %v)", n, prev, at)
		}
		prev = at
		level += float64(s.Peek_direction().Signed()) * step
		ref := rad * math.Cos(omega*at)
		if !nearlyEqual(ref, level, 1e-3) {
			t.Fatalf("step %d: at t=%v x is %v, stepper thinks %v", n, at, ref, level)
		}
		n++
		s.Advance()
	}
	// Down ~100 steps and back up ~100; the tangent points may each
	// shave one step.
	if n < 190 {
		t.Fatalf("expected close to 200 steps over a revolution, got %d", n)
	}
	if prev <= 0.5 {
		t.Fatalf("stepper stalled at t=%v; aliased roots were lost", prev)
	}
	if !nearlyEqual(level, rad, 2*step) {
		t.Fatalf("after a full revolution x should be back near %v, got %v", rad, level)
	}
}

func TestDeltaArcStepperAgainstReference(t *testing.T) {
	// Horizontal circle on a delta: the carriage height is periodic;
	// every step must land on a boundary of the reference curve.
	const (
		r, L  = 100.0, 250.0
		step  = 0.1
		rad   = 30.0
		omega = 2 * math.Pi
	)
	center := Vector3{10, -5, 40}
	u := Vector3{1, 0, 0}
	v := Vector3{0, 1, 0}
	refHeight := func(w, t float64) float64 {
		x := center.X + rad*math.Cos(omega*t)
		y := center.Y + rad*math.Sin(omega*t)
		dx := x - r*math.Sin(w)
		dy := y - r*math.Cos(w)
		return center.Z + math.Sqrt(L*L-dx*dx-dy*dy)
	}
	for tower := 0; tower < 3; tower++ {
		w := float64(tower) * 2 * math.Pi / 3
		m0 := refHeight(w, 0)
		s := NewLinearDeltaArcStepper(tower, DeltaArcStepperParams{
			Radius: r, RodLength: L, Angle: w, MmPerStep: step, M0: m0,
			Arc: ArcParams{Center: center, U: u, V: v, Radius: rad, Omega: omega},
		})
		prev := 0.0
		level := m0
		n := 0
		for {
			at := s.Peek_time()
			if math.IsNaN(at) || at > 1.0 {
				break
			}
			if at <= prev {
				t.Fatalf("tower %d: times not increasing (%v then %v)", tower, prev, at)
			}
			prev = at
			level += float64(s.Peek_direction().Signed()) * step
			if ref := refHeight(w, at); !nearlyEqual(ref, level, 2e-3) {
				t.Fatalf("tower %d step %d: at t=%v height %v, stepper thinks %v", tower, n, at, ref, level)
			}
			n++
			s.Advance()
		}
		if n == 0 {
			t.Fatalf("tower %d produced no steps", tower)
		}
		if !nearlyEqual(level, m0, 2*step) {
			t.Fatalf("tower %d: full circle should return near %v, got %v", tower, m0, level)
		}
	}
}
