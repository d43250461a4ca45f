// Step time prediction for delta carriages on linear segments.
//
// For a carriage at tower angle w, height D and a linear cartesian path
// x(t) = x0 + vx*t (likewise y, z), the rod constraint
//
//	(D - z(t))^2 + (x(t) - r sin w)^2 + (y(t) - r cos w)^2 = L^2
//
// becomes a quadratic in t when D is fixed at the next step boundary
// M0 + s. Dividing through by v^2 = vx^2 + vy^2 + vz^2 gives
//
//	t = term1(s) +/- sqrt(rootParam(s))
//
// where everything that does not depend on s is precomputed once per
// segment; the per-step work is a handful of multiplies and one sqrt.
// Both roots can be valid: a carriage may pass its minimum height and
// come back, so the smallest root strictly after the previous step wins.
package project

import "math"

type DeltaStepperParams struct {
	Radius    float64 // r
	RodLength float64 // L
	Angle     float64 // tower angle w
	MmPerStep float64
	M0        float64 // carriage height at segment start, mm
	X0, Y0    float64 // cartesian start
	Z0        float64
	Vx, Vy    float64
	Vz        float64
}

type LinearDeltaStepper struct {
	stepperBase
	mmPerStep float64
	sTotal    int

	invV2          float64
	vzOverV2       float64
	almostTerm1    float64
	almostRootPrm  float64
	rootPrmV2S     float64
	degenerate     bool
}

func NewLinearDeltaStepper(axis int, p DeltaStepperParams) *LinearDeltaStepper {
	s := &LinearDeltaStepper{
		stepperBase: stepperBase{axis: axis},
		mmPerStep:   p.MmPerStep,
	}
	v2 := p.Vx*p.Vx + p.Vy*p.Vy + p.Vz*p.Vz
	if v2 == 0 {
		s.degenerate = true
		s.time = math.NaN()
		return s
	}
	sinW, cosW := math.Sin(p.Angle), math.Cos(p.Angle)
	dx := p.X0 - p.Radius*sinW
	dy := p.Y0 - p.Radius*cosW
	dz := p.M0 - p.Z0

	s.invV2 = 1 / v2
	s.vzOverV2 = p.Vz * s.invV2
	s.almostTerm1 = s.invV2 * (p.Vz*dz - p.Vx*dx - p.Vy*dy)
	c0 := dz*dz + dx*dx + dy*dy - p.RodLength*p.RodLength
	s.almostRootPrm = -s.invV2 * c0
	s.rootPrmV2S = 2 * dz
	s.nextStep()
	return s
}

// testDir returns the time of the crossing at step offset sMm, or NaN.
func (s *LinearDeltaStepper) testDir(sMm float64) float64 {
	term1 := s.almostTerm1 + s.vzOverV2*sMm
	rootParam := term1*term1 + s.almostRootPrm - s.invV2*sMm*(s.rootPrmV2S+sMm)
	if rootParam < 0 {
		return math.NaN()
	}
	root := math.Sqrt(rootParam)
	t1 := term1 - root
	t2 := term1 + root
	if root > term1 {
		// t1 is necessarily negative here.
		if t2 > s.time {
			return t2
		}
		return math.NaN()
	}
	if t1 > s.time {
		return t1
	}
	if t2 > s.time {
		return t2
	}
	return math.NaN()
}

func (s *LinearDeltaStepper) nextStep() {
	negTime := s.testDir(float64(s.sTotal-1) * s.mmPerStep)
	posTime := s.testDir(float64(s.sTotal+1) * s.mmPerStep)
	s.chooseStep(negTime, posTime, func(d StepDirection) {
		s.sTotal += int(d)
	})
}

func (s *LinearDeltaStepper) Advance() {
	if s.degenerate {
		return
	}
	s.nextStep()
}
