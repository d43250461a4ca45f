// Step time prediction on circular segments.
//
// An arc is parameterized as P(t) = C + q*cos(omega*t)*U + q*sin(omega*t)*V
// with U, V an orthonormal basis of the arc plane. Any coordinate that is
// a fixed linear combination of (x, y, z) is then sinusoidal in t, and a
// step boundary crossing reduces to
//
//	m*sin(omega*t) + n*cos(omega*t) + p = 0
//
// which atan2 solves with two candidate phases per boundary. Phases come
// out in (-pi, pi]; they are normalized forward by whole periods until
// they land strictly after the previous step time, so a root that aliases
// across a revolution is not lost.
package project

import "math"

// sinCosRoots solves m*sin(x) + n*cos(x) + p = 0 for the two phases, or
// NaN when the amplitude cannot reach -p.
func sinCosRoots(m, n, p float64) (float64, float64) {
	disc := m*m + n*n - p*p
	if disc < 0 {
		return math.NaN(), math.NaN()
	}
	root := math.Sqrt(disc)
	den := m*m + n*n
	x1 := math.Atan2((-m*p+n*root)/den, (-n*p-m*root)/den)
	x2 := math.Atan2((-m*p-n*root)/den, (-n*p+m*root)/den)
	return x1, x2
}

// normalizeForward maps phase to a time and shifts it forward by whole
// periods until it lies strictly after cur.
func normalizeForward(phase, omega, cur float64) float64 {
	if math.IsNaN(phase) {
		return math.NaN()
	}
	t := phase / omega
	period := 2 * math.Pi / math.Abs(omega)
	if t <= cur {
		t += math.Ceil((cur-t)/period) * period
		if t <= cur {
			t += period
		}
	}
	return t
}

// ArcAxisStepper serves axes whose coordinate is K + CU*cos + CV*sin
// during the arc: cartesian x/y/z and the corexy combinations.
type ArcAxisStepper struct {
	stepperBase
	m0        float64 // axis coordinate at segment start
	k, cu, cv float64
	omega     float64
	mmPerStep float64
	sTotal    int
}

func NewArcAxisStepper(axis int, m0, k, cu, cv, omega, mmPerStep float64) *ArcAxisStepper {
	s := &ArcAxisStepper{
		stepperBase: stepperBase{axis: axis},
		m0:          m0,
		k:           k,
		cu:          cu,
		cv:          cv,
		omega:       omega,
		mmPerStep:   mmPerStep,
	}
	s.nextStep()
	return s
}

func (s *ArcAxisStepper) testDir(sMm float64) float64 {
	target := s.m0 + sMm
	x1, x2 := sinCosRoots(s.cv, s.cu, s.k-target)
	t1 := normalizeForward(x1, s.omega, s.time)
	t2 := normalizeForward(x2, s.omega, s.time)
	switch {
	case math.IsNaN(t1):
		return t2
	case math.IsNaN(t2):
		return t1
	default:
		return math.Min(t1, t2)
	}
}

func (s *ArcAxisStepper) nextStep() {
	negTime := s.testDir(float64(s.sTotal-1) * s.mmPerStep)
	posTime := s.testDir(float64(s.sTotal+1) * s.mmPerStep)
	s.chooseStep(negTime, posTime, func(d StepDirection) {
		s.sTotal += int(d)
	})
}

func (s *ArcAxisStepper) Advance() {
	s.nextStep()
}

type DeltaArcStepperParams struct {
	Radius    float64 // r
	RodLength float64 // L
	Angle     float64 // tower angle w
	MmPerStep float64
	M0        float64 // carriage height at segment start, mm
	Arc       ArcParams
}

// LinearDeltaArcStepper substitutes the arc parameterization into the
// rod constraint. With D = M0 + s the coefficients are
//
//	p = r^2 + q^2 + xc^2 + yc^2 + (D-zc)^2 - 2r(yc cos w + xc sin w) - L^2
//	n = 2q(-D uz + ux xc + uy yc + uz zc - r(uy cos w + ux sin w))
//	m = 2q(-D vz + vx xc + vy yc + vz zc - r(vy cos w + vx sin w))
type LinearDeltaArcStepper struct {
	stepperBase
	p         DeltaArcStepperParams
	sinW      float64
	cosW      float64
	mmPerStep float64
	sTotal    int
}

func NewLinearDeltaArcStepper(axis int, p DeltaArcStepperParams) *LinearDeltaArcStepper {
	s := &LinearDeltaArcStepper{
		stepperBase: stepperBase{axis: axis},
		p:           p,
		sinW:        math.Sin(p.Angle),
		cosW:        math.Cos(p.Angle),
		mmPerStep:   p.MmPerStep,
	}
	s.nextStep()
	return s
}

func (s *LinearDeltaArcStepper) testDir(sMm float64) float64 {
	d := s.p.M0 + sMm
	q := s.p.Arc.Radius
	r := s.p.Radius
	c := s.p.Arc.Center
	u := s.p.Arc.U
	v := s.p.Arc.V

	dz := d - c.Z
	pp := r*r + q*q + c.X*c.X + c.Y*c.Y + dz*dz -
		2*r*(c.Y*s.cosW+c.X*s.sinW) - s.p.RodLength*s.p.RodLength
	nn := 2 * q * (-d*u.Z + u.X*c.X + u.Y*c.Y + u.Z*c.Z - r*(u.Y*s.cosW+u.X*s.sinW))
	mm := 2 * q * (-d*v.Z + v.X*c.X + v.Y*c.Y + v.Z*c.Z - r*(v.Y*s.cosW+v.X*s.sinW))

	x1, x2 := sinCosRoots(mm, nn, pp)
	t1 := normalizeForward(x1, s.p.Arc.Omega, s.time)
	t2 := normalizeForward(x2, s.p.Arc.Omega, s.time)
	switch {
	case math.IsNaN(t1):
		return t2
	case math.IsNaN(t2):
		return t1
	default:
		return math.Min(t1, t2)
	}
}

func (s *LinearDeltaArcStepper) nextStep() {
	negTime := s.testDir(float64(s.sTotal-1) * s.mmPerStep)
	posTime := s.testDir(float64(s.sTotal+1) * s.mmPerStep)
	s.chooseStep(negTime, posTime, func(d StepDirection) {
		s.sTotal += int(d)
	})
}

func (s *LinearDeltaArcStepper) Advance() {
	s.nextStep()
}
