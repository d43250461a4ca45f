// Acceleration is applied after step planning: steppers plan at constant
// velocity and the profile warps each ideal time into the real timeline.
// The warp must be strictly increasing so event ordering is preserved.
package project

import "math"

type AccelerationProfile interface {
	Begin(duration, maxVel float64)
	Transform(t float64) float64
}

// NoAcceleration is the identity warp.
type NoAcceleration struct{}

func (NoAcceleration) Begin(duration, maxVel float64) {}

func (NoAcceleration) Transform(t float64) float64 {
	return t
}

// TrapezoidalAccel ramps at MaxAccel to the segment's cruise velocity,
// cruises, and decelerates symmetrically. When the segment is too short
// to reach cruise speed the profile degenerates to a triangle.
type TrapezoidalAccel struct {
	MaxAccel float64

	vel       float64 // cruise velocity for this segment
	dist      float64 // total distance proxy (vel * ideal duration)
	accelDist float64
	accelTime float64
	peakVel   float64
}

func NewTrapezoidalAccel(maxAccel float64) *TrapezoidalAccel {
	return &TrapezoidalAccel{MaxAccel: maxAccel}
}

func (a *TrapezoidalAccel) Begin(duration, maxVel float64) {
	a.vel = maxVel
	if math.IsNaN(duration) || maxVel <= 0 || a.MaxAccel <= 0 {
		// Homing segments have no fixed duration; run them unwarped.
		a.dist = math.NaN()
		return
	}
	a.dist = maxVel * duration
	a.peakVel = maxVel
	a.accelTime = maxVel / a.MaxAccel
	a.accelDist = 0.5 * a.MaxAccel * a.accelTime * a.accelTime
	if 2*a.accelDist > a.dist {
		a.peakVel = math.Sqrt(a.MaxAccel * a.dist)
		a.accelTime = a.peakVel / a.MaxAccel
		a.accelDist = a.dist / 2
	}
}

func (a *TrapezoidalAccel) Transform(t float64) float64 {
	if math.IsNaN(a.dist) {
		return t
	}
	// The ideal timeline advances distance at constant a.vel.
	d := a.vel * t
	switch {
	case d <= a.accelDist:
		return math.Sqrt(2 * math.Max(0, d) / a.MaxAccel)
	case d <= a.dist-a.accelDist:
		return a.accelTime + (d-a.accelDist)/a.peakVel
	default:
		total := 2*a.accelTime + (a.dist-2*a.accelDist)/a.peakVel
		rem := math.Max(0, a.dist-d)
		return total - math.Sqrt(2*rem/a.MaxAccel)
	}
}
