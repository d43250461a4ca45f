// Per-axis step time prediction.
//
// An AxisStepper is created per mechanical axis for each move segment and
// answers one question: at what time (seconds from segment start, under
// constant cartesian velocity) must this axis take its next step, and in
// which direction. Acceleration is applied afterwards as a time warp by
// the motion planner, so everything here assumes constant velocity.
package project

import "math"

type AxisStepper interface {
	Axis() int
	// Peek_time returns the pending step time in seconds from segment
	// start, or NaN when this axis has no further step in the segment.
	Peek_time() float64
	Peek_direction() StepDirection
	// Advance commits the pending step and computes the following one.
	Advance()
}

type stepperBase struct {
	axis      int
	time      float64
	direction StepDirection
}

func (s *stepperBase) Axis() int {
	return s.axis
}

func (s *stepperBase) Peek_time() float64 {
	return s.time
}

func (s *stepperBase) Peek_direction() StepDirection {
	return s.direction
}

// chooseStep applies the shared candidate rule: negTime/posTime are the
// times at which a backward/forward step would land; the smaller one that
// lies strictly ahead of the current time wins. Velocity along an axis
// can reverse mid-segment (delta carriages, arcs), which is why both
// candidates are always tested.
func (s *stepperBase) chooseStep(negTime, posTime float64, commit func(StepDirection)) {
	negValid := !math.IsNaN(negTime) && negTime > s.time
	posValid := !math.IsNaN(posTime) && posTime > s.time
	switch {
	case !negValid && !posValid:
		s.time = math.NaN()
	case !negValid:
		s.time = posTime
		s.direction = StepForward
		commit(StepForward)
	case !posValid:
		s.time = negTime
		s.direction = StepBackward
		commit(StepBackward)
	case negTime < posTime:
		s.time = negTime
		s.direction = StepBackward
		commit(StepBackward)
	default:
		s.time = posTime
		s.direction = StepForward
		commit(StepForward)
	}
}

// LinearAxisStepper serves any axis whose coordinate is a linear function
// of time: the cartesian axes, the corexy A/B combinations and the
// extruder. The crossing time for step offset s is simply s*mm/v.
type LinearAxisStepper struct {
	stepperBase
	v         float64 // axis-space velocity, mm/s
	mmPerStep float64
	sTotal    int // committed step offset from segment start
}

func NewLinearAxisStepper(axis int, v, mmPerStep float64) *LinearAxisStepper {
	s := &LinearAxisStepper{
		stepperBase: stepperBase{axis: axis},
		v:           v,
		mmPerStep:   mmPerStep,
	}
	s.nextStep()
	return s
}

func (s *LinearAxisStepper) testDir(sMm float64) float64 {
	if s.v == 0 {
		return math.NaN()
	}
	t := sMm / s.v
	if t > s.time {
		return t
	}
	return math.NaN()
}

func (s *LinearAxisStepper) nextStep() {
	negTime := s.testDir(float64(s.sTotal-1) * s.mmPerStep)
	posTime := s.testDir(float64(s.sTotal+1) * s.mmPerStep)
	s.chooseStep(negTime, posTime, func(d StepDirection) {
		s.sTotal += int(d)
	})
}

func (s *LinearAxisStepper) Advance() {
	s.nextStep()
}

// HomeAxisStepper drives an axis at a fixed cadence until its endstop
// reports triggered. The endstop is polled on every Advance, i.e.
// between consecutive steps; once it fires the stepper is done.
type HomeAxisStepper struct {
	stepperBase
	interval float64
	dir      StepDirection
	endstop  func() bool
}

func NewHomeAxisStepper(axis int, velocity, mmPerStep float64, dir StepDirection, endstop func() bool) *HomeAxisStepper {
	s := &HomeAxisStepper{
		stepperBase: stepperBase{axis: axis},
		interval:    mmPerStep / velocity,
		dir:         dir,
		endstop:     endstop,
	}
	s.nextStep()
	return s
}

func (s *HomeAxisStepper) nextStep() {
	if s.endstop() {
		s.time = math.NaN()
		return
	}
	s.time += s.interval
	s.direction = s.dir
}

func (s *HomeAxisStepper) Advance() {
	s.nextStep()
}
