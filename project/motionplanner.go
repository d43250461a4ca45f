// MotionPlanner resolves move and home requests into per-axis step
// events. It initializes the geometry's axis steppers for a segment and
// then, on demand, yields the next hardware event in ascending time
// order, applying the acceleration warp and tracking the mechanical
// position. It is the single owner of the mechanical position.
package project

import (
	"fmt"
	"math"
	"time"

	"p3c/common/logger"
	"p3c/common/utils/maths"
)

type MotionType int

const (
	MotionNone MotionType = iota
	MotionMove
	MotionHome
)

// minSegmentSeconds floors a segment duration so velocity divisions stay
// finite on zero-distance moves.
const minSegmentSeconds = 1e-9

type MotionPlanner struct {
	coordMap CoordMap
	accel    AccelerationProfile

	mechPos      []int64
	steppers     []AxisStepper
	baseTime     time.Duration
	duration     float64
	motionType   MotionType
	lastDeadline time.Duration
}

func NewMotionPlanner(coordMap CoordMap, accel AccelerationProfile) *MotionPlanner {
	if accel == nil {
		accel = NoAcceleration{}
	}
	return &MotionPlanner{
		coordMap:   coordMap,
		accel:      accel,
		mechPos:    make([]int64, coordMap.Num_axis()),
		duration:   math.NaN(),
		motionType: MotionNone,
	}
}

func (m *MotionPlanner) CoordMap() CoordMap {
	return m.coordMap
}

// Ready_for_next_move reports whether Move_to/Arc_to/Home_endstops may
// be called. Callers must check it; violating the contract is an error.
func (m *MotionPlanner) Ready_for_next_move() bool {
	return m.motionType == MotionNone
}

func (m *MotionPlanner) Is_homing() bool {
	return m.motionType == MotionHome
}

func (m *MotionPlanner) Mechanical_position() []int64 {
	pos := make([]int64, len(m.mechPos))
	copy(pos, m.mechPos)
	return pos
}

func (m *MotionPlanner) Cartesian_position() Vector4 {
	return m.coordMap.Xyze_from_mechanical(m.mechPos)
}

// Reset_axis_positions overwrites the mechanical position. Only valid
// while idle; used by test setup (G92 shifts the host zero instead).
func (m *MotionPlanner) Reset_axis_positions(pos []int64) {
	copy(m.mechPos, pos)
}

// Move_to plans a linear segment from the current position to dest.
// The extruder rate is clamped to [minVelE, maxVelE]; when the clamp
// engages, the duration is recomputed from the clamped rate and the
// cartesian velocity rescaled to stay consistent.
func (m *MotionPlanner) Move_to(baseTime time.Duration, dest Vector4, velXyz, minVelE, maxVelE float64) error {
	if m.motionType != MotionNone {
		return ErrNotReady
	}
	if velXyz <= 0 {
		return fmt.Errorf("move velocity must be positive, got %g", velXyz)
	}
	dest = m.coordMap.Apply_leveling(dest)
	dest, err := m.coordMap.Bound(dest)
	if err != nil {
		return err
	}
	cur := m.coordMap.Xyze_from_mechanical(m.mechPos)
	delta := dest.Sub(cur)
	dist := delta.Xyz().Norm()
	duration := dist / velXyz
	if duration < minSegmentSeconds {
		duration = minSegmentSeconds
	}
	velE := delta.E / duration
	if clamped := maths.Clamp(velE, minVelE, maxVelE); clamped != velE {
		velE = clamped
		if math.Abs(delta.E) > 1e-12 && velE != 0 {
			duration = delta.E / velE
			velXyz = dist / duration
		}
	}
	m.steppers = m.coordMap.New_move_steppers(m.mechPos,
		delta.X/duration, delta.Y/duration, delta.Z/duration, velE)
	m.accel.Begin(duration, velXyz)
	m.baseTime = baseTime
	m.duration = duration
	m.motionType = MotionMove
	logger.Debugf("planner: move (%.3f,%.3f,%.3f,%.3f) -> (%.3f,%.3f,%.3f,%.3f) dur %.4fs",
		cur.X, cur.Y, cur.Z, cur.E, dest.X, dest.Y, dest.Z, dest.E, duration)
	return nil
}

// Arc_to plans a circular segment about center, ending at dest. cw
// selects the sweep direction as seen from +Z.
func (m *MotionPlanner) Arc_to(baseTime time.Duration, dest Vector4, center Vector3, velXyz, minVelE, maxVelE float64, cw bool) error {
	if m.motionType != MotionNone {
		return ErrNotReady
	}
	if velXyz <= 0 {
		return fmt.Errorf("arc velocity must be positive, got %g", velXyz)
	}
	dest = m.coordMap.Apply_leveling(dest)
	dest, err := m.coordMap.Bound(dest)
	if err != nil {
		return err
	}
	cur := m.coordMap.Xyze_from_mechanical(m.mechPos)
	u := cur.Xyz().Sub(center)
	rad := u.Norm()
	if rad < 1e-9 {
		return fmt.Errorf("%w: arc starts at its center", ErrSyntax)
	}
	uHat := u.Scale(1 / rad)
	w := dest.Xyz().Sub(center)
	vPerp := w.Sub(uHat.Scale(uHat.Dot(w)))
	var vHat Vector3
	if vPerp.Norm() < 1e-9 {
		// Start, end and center are collinear (half or full circle);
		// take a perpendicular in the XY plane.
		vHat = Vector3{-uHat.Y, uHat.X, 0}.Unit()
		if vHat.Norm() == 0 {
			vHat = Vector3{1, 0, 0}
		}
	} else {
		vHat = vPerp.Unit()
	}
	// Encode handedness in the basis: +theta must sweep CCW from +Z for
	// G3 and CW for G2.
	crossZ := uHat.X*vHat.Y - uHat.Y*vHat.X
	if (crossZ > 0) == cw {
		vHat = vHat.Scale(-1)
	}
	theta := math.Atan2(vHat.Dot(w), uHat.Dot(w))
	if theta <= 1e-12 {
		theta += 2 * math.Pi
	}
	duration := theta * rad / velXyz
	omega := theta / duration
	velE := maths.Clamp((dest.E-cur.E)/duration, minVelE, maxVelE)

	m.steppers = m.coordMap.New_arc_steppers(m.mechPos, ArcParams{
		Center: center,
		U:      uHat,
		V:      vHat,
		Radius: rad,
		Omega:  omega,
	}, velE)
	m.accel.Begin(duration, velXyz)
	m.baseTime = baseTime
	m.duration = duration
	m.motionType = MotionMove
	return nil
}

// Home_endstops starts a homing segment: the geometry's home steppers
// run until every endstop reports triggered. There is no fixed duration.
func (m *MotionPlanner) Home_endstops(baseTime time.Duration, velXyz float64) error {
	if m.motionType != MotionNone {
		return ErrNotReady
	}
	steppers := m.coordMap.New_home_steppers(velXyz)
	if len(steppers) == 0 {
		m.mechPos = m.coordMap.Home_position(m.mechPos)
		return nil
	}
	m.steppers = steppers
	m.baseTime = baseTime
	m.duration = math.NaN()
	m.motionType = MotionHome
	m.accel.Begin(math.NaN(), velXyz)
	return nil
}

// Next_event yields the next step event of the current segment, or a
// null event once the segment is finished (which transitions to Idle and,
// for homing, resets the mechanical position to the home value).
func (m *MotionPlanner) Next_event() OutputEvent {
	if m.motionType == MotionNone {
		return OutputEvent{}
	}
	best := -1
	bestTime := math.NaN()
	for i, s := range m.steppers {
		t := s.Peek_time()
		if math.IsNaN(t) {
			continue
		}
		if best == -1 || t < bestTime {
			best = i
			bestTime = t
		}
	}
	if best == -1 || bestTime <= 0 || (!math.IsNaN(m.duration) && bestTime > m.duration) {
		if m.motionType == MotionHome {
			m.mechPos = m.coordMap.Home_position(m.mechPos)
		}
		m.motionType = MotionNone
		logger.Debugf("planner: segment done at mech %v", m.mechPos)
		return OutputEvent{}
	}
	s := m.steppers[best]
	transformed := m.accel.Transform(bestTime)
	deadline := m.baseTime + time.Duration(transformed*float64(time.Second))
	if deadline < m.lastDeadline {
		logger.Fatalf("planner: non-monotonic event time %v after %v", deadline, m.lastDeadline)
	}
	m.lastDeadline = deadline
	axis := s.Axis()
	dir := s.Peek_direction()
	m.mechPos[axis] += dir.Signed()
	s.Advance()
	return StepEvent(deadline, axis, dir)
}
