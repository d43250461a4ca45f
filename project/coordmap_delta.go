// Linear delta geometry: three carriages on vertical rails spaced 120
// degrees around a circle of radius r, each tied to the effector by a rod
// of length L. Carriage heights (A, B, C) relate to the effector by
//
//	(D - z)^2 + (x - r sin w)^2 + (y - r cos w)^2 = L^2
//
// with tower angle w measured clockwise from +y. Inverse kinematics is a
// square root per tower; forward kinematics is the intersection of three
// spheres centered on the carriages.
package project

import (
	"fmt"
	"math"

	"p3c/common/utils/maths"
)

type LinearDeltaCoordMap struct {
	radius      float64 // r
	rodLength   float64 // L
	printRadius float64
	maxZ        float64
	stepsPerMm  []float64
	endstops    []func() bool
	leveler     BedLeveler

	angles [3]float64    // tower angles
	towers [3][2]float64 // tower xy positions
}

func NewLinearDeltaCoordMap(radius, rodLength, printRadius, maxZ float64, stepsPerMm []float64, endstops []func() bool, leveler BedLeveler) *LinearDeltaCoordMap {
	if leveler == nil {
		leveler = IdentityLeveler{}
	}
	m := &LinearDeltaCoordMap{
		radius:      radius,
		rodLength:   rodLength,
		printRadius: printRadius,
		maxZ:        maxZ,
		stepsPerMm:  stepsPerMm,
		endstops:    endstops,
		leveler:     leveler,
	}
	for i := 0; i < 3; i++ {
		w := float64(i) * 2 * math.Pi / 3
		m.angles[i] = w
		m.towers[i] = [2]float64{radius * math.Sin(w), radius * math.Cos(w)}
	}
	return m
}

func (m *LinearDeltaCoordMap) Num_axis() int {
	return 4
}

func (m *LinearDeltaCoordMap) Mm_per_step(axis int) float64 {
	return 1 / m.stepsPerMm[axis]
}

func (m *LinearDeltaCoordMap) Apply_leveling(pos Vector4) Vector4 {
	return m.leveler.Level(pos)
}

func (m *LinearDeltaCoordMap) Bound(pos Vector4) (Vector4, error) {
	clamped := pos
	if rxy := math.Hypot(pos.X, pos.Y); rxy > m.printRadius {
		scale := m.printRadius / rxy
		clamped.X = pos.X * scale
		clamped.Y = pos.Y * scale
	}
	clamped.Z = maths.Clamp(pos.Z, 0, m.maxZ)
	if clamped.Sub(pos).Xyz().Norm() > boundTolerance {
		return clamped, fmt.Errorf("%w: (%.2f, %.2f, %.2f)", ErrOutOfBounds, pos.X, pos.Y, pos.Z)
	}
	return clamped, nil
}

// carriageHeight is the inverse kinematics for one tower.
func (m *LinearDeltaCoordMap) carriageHeight(i int, x, y, z float64) float64 {
	dx := x - m.towers[i][0]
	dy := y - m.towers[i][1]
	return z + math.Sqrt(m.rodLength*m.rodLength-dx*dx-dy*dy)
}

func (m *LinearDeltaCoordMap) Mechanical_from_xyze(pos Vector4) []int64 {
	mech := make([]int64, 4)
	for i := 0; i < 3; i++ {
		mech[i] = int64(math.Round(m.carriageHeight(i, pos.X, pos.Y, pos.Z) * m.stepsPerMm[i]))
	}
	mech[3] = int64(math.Round(pos.E * m.stepsPerMm[3]))
	return mech
}

func (m *LinearDeltaCoordMap) Xyze_from_mechanical(mech []int64) Vector4 {
	heights := [3]float64{
		float64(mech[0]) * m.Mm_per_step(0),
		float64(mech[1]) * m.Mm_per_step(1),
		float64(mech[2]) * m.Mm_per_step(2),
	}
	p := m.trilaterate(heights)
	return Vector4{X: p.X, Y: p.Y, Z: p.Z, E: float64(mech[3]) * m.Mm_per_step(3)}
}

// trilaterate intersects the three rod spheres and returns the lower of
// the two solutions (the effector hangs below the carriages).
func (m *LinearDeltaCoordMap) trilaterate(heights [3]float64) Vector3 {
	p1 := Vector3{m.towers[0][0], m.towers[0][1], heights[0]}
	p2 := Vector3{m.towers[1][0], m.towers[1][1], heights[1]}
	p3 := Vector3{m.towers[2][0], m.towers[2][1], heights[2]}
	arm2 := m.rodLength * m.rodLength

	s21 := p2.Sub(p1)
	s31 := p3.Sub(p1)
	d := s21.Norm()
	ex := s21.Scale(1 / d)
	i := ex.Dot(s31)
	ey := s31.Sub(ex.Scale(i)).Unit()
	ez := Vector3{
		ex.Y*ey.Z - ex.Z*ey.Y,
		ex.Z*ey.X - ex.X*ey.Z,
		ex.X*ey.Y - ex.Y*ey.X,
	}
	j := ey.Dot(s31)

	x := (d * d) / (2 * d) // arm lengths are all equal
	y := (-x*x + (x-i)*(x-i) + j*j) / (2 * j)
	z := math.Sqrt(math.Max(0, arm2-x*x-y*y))

	base := p1.Add(ex.Scale(x)).Add(ey.Scale(y))
	a := base.Add(ez.Scale(z))
	b := base.Sub(ez.Scale(z))
	if a.Z < b.Z {
		return a
	}
	return b
}

func (m *LinearDeltaCoordMap) homeCarriageMm() float64 {
	return m.maxZ + math.Sqrt(m.rodLength*m.rodLength-m.radius*m.radius)
}

func (m *LinearDeltaCoordMap) Home_position(cur []int64) []int64 {
	h := m.homeCarriageMm()
	return []int64{
		int64(math.Round(h * m.stepsPerMm[0])),
		int64(math.Round(h * m.stepsPerMm[1])),
		int64(math.Round(h * m.stepsPerMm[2])),
		cur[3],
	}
}

func (m *LinearDeltaCoordMap) New_move_steppers(mech []int64, vx, vy, vz, ve float64) []AxisStepper {
	start := m.Xyze_from_mechanical(mech)
	steppers := make([]AxisStepper, 4)
	for i := 0; i < 3; i++ {
		steppers[i] = NewLinearDeltaStepper(i, DeltaStepperParams{
			Radius:    m.radius,
			RodLength: m.rodLength,
			Angle:     m.angles[i],
			MmPerStep: m.Mm_per_step(i),
			M0:        float64(mech[i]) * m.Mm_per_step(i),
			X0:        start.X, Y0: start.Y, Z0: start.Z,
			Vx: vx, Vy: vy, Vz: vz,
		})
	}
	steppers[3] = NewLinearAxisStepper(3, ve, m.Mm_per_step(3))
	return steppers
}

func (m *LinearDeltaCoordMap) New_arc_steppers(mech []int64, arc ArcParams, ve float64) []AxisStepper {
	steppers := make([]AxisStepper, 4)
	for i := 0; i < 3; i++ {
		steppers[i] = NewLinearDeltaArcStepper(i, DeltaArcStepperParams{
			Radius:    m.radius,
			RodLength: m.rodLength,
			Angle:     m.angles[i],
			MmPerStep: m.Mm_per_step(i),
			M0:        float64(mech[i]) * m.Mm_per_step(i),
			Arc:       arc,
		})
	}
	steppers[3] = NewLinearAxisStepper(3, ve, m.Mm_per_step(3))
	return steppers
}

func (m *LinearDeltaCoordMap) New_home_steppers(velXyz float64) []AxisStepper {
	steppers := make([]AxisStepper, 0, 3)
	for i := 0; i < 3; i++ {
		es := m.endstops[i]
		if es == nil {
			continue
		}
		// Carriages ride up into the endstops at the rail tops.
		steppers = append(steppers, NewHomeAxisStepper(i, velXyz, m.Mm_per_step(i), StepForward, es))
	}
	return steppers
}

// Execute_home_routine drives all carriages into their endstops, then
// backs the effector a few millimeters off the switches.
func (m *LinearDeltaCoordMap) Execute_home_routine(iface CoordMapInterface) error {
	if err := iface.Home_move(); err != nil {
		return err
	}
	pos := iface.Actual_cartesian_position()
	return iface.Move_to(Vector4{X: 0, Y: 0, Z: pos.Z - 5, E: pos.E}, 0)
}
