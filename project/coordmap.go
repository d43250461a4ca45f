// Geometry maps between cartesian space and mechanical step counts.
package project

import (
	"fmt"
	"math"

	"p3c/common/utils/maths"
)

// boundTolerance is how far (mm) an envelope clamp may move a requested
// destination before the move is rejected instead of silently clamped.
const boundTolerance = 0.5

// CoordMapInterface is handed to a geometry's home routine. Move_to and
// Home_move block until the motion pipeline has drained the request.
// Move_to with velXyz <= 0 uses the machine's configured homing speed.
type CoordMapInterface interface {
	Move_to(dest Vector4, velXyz float64) error
	Home_move() error
	Actual_cartesian_position() Vector4
}

// CoordMap is the geometry capability set: pure coordinate conversion
// plus construction of the per-segment stepper variants, and the homing
// choreography. A geometry owns its per-axis endstop references.
type CoordMap interface {
	Num_axis() int
	Xyze_from_mechanical(mech []int64) Vector4
	Mechanical_from_xyze(pos Vector4) []int64
	// Home_position returns the mechanical position established by a
	// completed home; axes without endstops (the extruder) keep their
	// current count.
	Home_position(cur []int64) []int64
	Apply_leveling(pos Vector4) Vector4
	Bound(pos Vector4) (Vector4, error)
	Mm_per_step(axis int) float64
	New_move_steppers(mech []int64, vx, vy, vz, ve float64) []AxisStepper
	New_arc_steppers(mech []int64, arc ArcParams, ve float64) []AxisStepper
	New_home_steppers(velXyz float64) []AxisStepper
	Execute_home_routine(iface CoordMapInterface) error
}

// ArcParams describes a constant-speed circular segment:
// P(t) = Center + Radius*(cos(Omega*t)*U + sin(Omega*t)*V).
type ArcParams struct {
	Center Vector3
	U, V   Vector3 // orthonormal basis of the arc plane
	Radius float64
	Omega  float64 // signed angular velocity, rad/s
}

// BedLeveler compensates bed tilt. Identity by default.
type BedLeveler interface {
	Level(pos Vector4) Vector4
}

type IdentityLeveler struct{}

func (IdentityLeveler) Level(pos Vector4) Vector4 {
	return pos
}

// TiltLeveler shifts Z by a plane fitted to the bed: z += Ax*x + Ay*y.
type TiltLeveler struct {
	Ax, Ay float64
}

func (l TiltLeveler) Level(pos Vector4) Vector4 {
	pos.Z += l.Ax*pos.X + l.Ay*pos.Y
	return pos
}

// linearCoordMap is shared by the geometries whose mechanical axes are
// fixed linear combinations of (x, y, z): cartesian and corexy. rows[i]
// is the combination for mechanical axis i; the last axis is always the
// extruder (identity on e).
type linearCoordMap struct {
	rows       [][3]float64
	stepsPerMm []float64
	minMm      [3]float64
	maxMm      [3]float64
	endstops   []func() bool // per mechanical axis; nil = no endstop
	leveler    BedLeveler
	homeMm     Vector4
}

func (m *linearCoordMap) Num_axis() int {
	return len(m.stepsPerMm)
}

func (m *linearCoordMap) Mm_per_step(axis int) float64 {
	return 1 / m.stepsPerMm[axis]
}

func (m *linearCoordMap) Apply_leveling(pos Vector4) Vector4 {
	return m.leveler.Level(pos)
}

func (m *linearCoordMap) Bound(pos Vector4) (Vector4, error) {
	clamped := pos
	clamped.X = maths.Clamp(pos.X, m.minMm[0], m.maxMm[0])
	clamped.Y = maths.Clamp(pos.Y, m.minMm[1], m.maxMm[1])
	clamped.Z = maths.Clamp(pos.Z, m.minMm[2], m.maxMm[2])
	if clamped.Sub(pos).Xyz().Norm() > boundTolerance {
		return clamped, fmt.Errorf("%w: (%.2f, %.2f, %.2f)", ErrOutOfBounds, pos.X, pos.Y, pos.Z)
	}
	return clamped, nil
}

// axisCoord projects a cartesian point onto mechanical axis i, in mm.
func (m *linearCoordMap) axisCoord(i int, x, y, z, e float64) float64 {
	if i == len(m.rows) {
		return e
	}
	r := m.rows[i]
	return r[0]*x + r[1]*y + r[2]*z
}

func (m *linearCoordMap) Mechanical_from_xyze(pos Vector4) []int64 {
	mech := make([]int64, m.Num_axis())
	for i := range mech {
		mech[i] = int64(math.Round(m.axisCoord(i, pos.X, pos.Y, pos.Z, pos.E) * m.stepsPerMm[i]))
	}
	return mech
}

func (m *linearCoordMap) New_move_steppers(mech []int64, vx, vy, vz, ve float64) []AxisStepper {
	steppers := make([]AxisStepper, m.Num_axis())
	for i := range steppers {
		steppers[i] = NewLinearAxisStepper(i, m.axisCoord(i, vx, vy, vz, ve), m.Mm_per_step(i))
	}
	return steppers
}

func (m *linearCoordMap) New_arc_steppers(mech []int64, arc ArcParams, ve float64) []AxisStepper {
	steppers := make([]AxisStepper, m.Num_axis())
	for i := 0; i < len(m.rows); i++ {
		start := float64(mech[i]) * m.Mm_per_step(i)
		k := m.axisCoord(i, arc.Center.X, arc.Center.Y, arc.Center.Z, 0)
		cu := m.axisCoord(i, arc.U.X, arc.U.Y, arc.U.Z, 0) * arc.Radius
		cv := m.axisCoord(i, arc.V.X, arc.V.Y, arc.V.Z, 0) * arc.Radius
		steppers[i] = NewArcAxisStepper(i, start, k, cu, cv, arc.Omega, m.Mm_per_step(i))
	}
	e := m.Num_axis() - 1
	steppers[e] = NewLinearAxisStepper(e, ve, m.Mm_per_step(e))
	return steppers
}

func (m *linearCoordMap) New_home_steppers(velXyz float64) []AxisStepper {
	var steppers []AxisStepper
	for i := 0; i < len(m.rows); i++ {
		es := m.endstops[i]
		if es == nil {
			continue
		}
		steppers = append(steppers, NewHomeAxisStepper(i, velXyz, m.Mm_per_step(i), StepBackward, es))
	}
	return steppers
}

func (m *linearCoordMap) Execute_home_routine(iface CoordMapInterface) error {
	return iface.Home_move()
}

// CartesianCoordMap: one motor per cartesian axis.
type CartesianCoordMap struct {
	linearCoordMap
}

func NewCartesianCoordMap(stepsPerMm []float64, minMm, maxMm [3]float64, endstops []func() bool, leveler BedLeveler) *CartesianCoordMap {
	if leveler == nil {
		leveler = IdentityLeveler{}
	}
	return &CartesianCoordMap{linearCoordMap{
		rows:       [][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		stepsPerMm: stepsPerMm,
		minMm:      minMm,
		maxMm:      maxMm,
		endstops:   endstops,
		leveler:    leveler,
		homeMm:     Vector4{minMm[0], minMm[1], minMm[2], 0},
	}}
}

func (m *CartesianCoordMap) Xyze_from_mechanical(mech []int64) Vector4 {
	return Vector4{
		X: float64(mech[0]) * m.Mm_per_step(0),
		Y: float64(mech[1]) * m.Mm_per_step(1),
		Z: float64(mech[2]) * m.Mm_per_step(2),
		E: float64(mech[3]) * m.Mm_per_step(3),
	}
}

func (m *CartesianCoordMap) Home_position(cur []int64) []int64 {
	return []int64{
		int64(math.Round(m.homeMm.X * m.stepsPerMm[0])),
		int64(math.Round(m.homeMm.Y * m.stepsPerMm[1])),
		int64(math.Round(m.homeMm.Z * m.stepsPerMm[2])),
		cur[3],
	}
}

// CorexyCoordMap: the A and B motors jointly actuate X and Y through a
// crossed belt; A = (x+y)/2, B = (x-y)/2.
type CorexyCoordMap struct {
	linearCoordMap
}

func NewCorexyCoordMap(stepsPerMm []float64, minMm, maxMm [3]float64, endstops []func() bool, leveler BedLeveler) *CorexyCoordMap {
	if leveler == nil {
		leveler = IdentityLeveler{}
	}
	return &CorexyCoordMap{linearCoordMap{
		rows:       [][3]float64{{0.5, 0.5, 0}, {0.5, -0.5, 0}, {0, 0, 1}},
		stepsPerMm: stepsPerMm,
		minMm:      minMm,
		maxMm:      maxMm,
		endstops:   endstops,
		leveler:    leveler,
		homeMm:     Vector4{minMm[0], minMm[1], minMm[2], 0},
	}}
}

func (m *CorexyCoordMap) Xyze_from_mechanical(mech []int64) Vector4 {
	a := float64(mech[0]) * m.Mm_per_step(0)
	b := float64(mech[1]) * m.Mm_per_step(1)
	return Vector4{
		X: a + b,
		Y: a - b,
		Z: float64(mech[2]) * m.Mm_per_step(2),
		E: float64(mech[3]) * m.Mm_per_step(3),
	}
}

func (m *CorexyCoordMap) Home_position(cur []int64) []int64 {
	mech := m.Mechanical_from_xyze(m.homeMm)
	mech[3] = cur[3]
	return mech
}
