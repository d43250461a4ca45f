// IO drivers: the fixed set of peripherals polled every idle cycle.
// Each driver owns its pins; the motion core never touches them
// directly. Temperature control proper is a collaborator of the core —
// the hotend driver here carries a PID loop and a first-order thermal
// model so the M104/M105/M109 path is exercised end to end against the
// sim backend.
package project

import (
	"time"

	"p3c/common/config"
	"p3c/common/logger"
	"p3c/common/utils/maths"
)

type IoDriver interface {
	Name() string
	// On_idle_cpu is granted spare loop time; return true to ask for
	// more immediately.
	On_idle_cpu(sched *Scheduler, interval IdleInterval) bool
}

const fanPwmPeriod = 10 * time.Millisecond

type FanDriver struct {
	pin  int
	duty float64
}

func NewFanDriver(pin int) *FanDriver {
	return &FanDriver{pin: pin}
}

func (f *FanDriver) Name() string {
	return "fan"
}

func (f *FanDriver) Duty() float64 {
	return f.duty
}

func (f *FanDriver) Set_duty(sched *Scheduler, duty float64) {
	f.duty = maths.Clamp(duty, 0, 1)
	sched.Sched_pwm(f.pin, f.duty, fanPwmPeriod)
}

func (f *FanDriver) On_idle_cpu(sched *Scheduler, interval IdleInterval) bool {
	return false
}

// EndstopDriver reads a switch through the backend. Check can be
// overridden for geometries that synthesize endstops in tests.
type EndstopDriver struct {
	pin     int
	backend HardwareBackend
	Check   func() bool
}

func NewEndstopDriver(pin int, backend HardwareBackend) *EndstopDriver {
	return &EndstopDriver{pin: pin, backend: backend}
}

func (e *EndstopDriver) Name() string {
	return "endstop"
}

func (e *EndstopDriver) Triggered() bool {
	if e.Check != nil {
		return e.Check()
	}
	v, err := e.backend.ReadPin(e.pin)
	if err != nil {
		logger.Errorf("endstop pin %d: %v", e.pin, err)
		return false
	}
	return v
}

func (e *EndstopDriver) On_idle_cpu(sched *Scheduler, interval IdleInterval) bool {
	return false
}

const (
	ambientC     = 22.0
	heaterPeriod = 100 * time.Millisecond
)

// HeaterDriver closes a PID loop between a (simulated) thermistor and a
// PWM output. The thermal model is first order: full duty heats at
// heatRate, losses pull toward ambient with time constant lossTau.
type HeaterDriver struct {
	name     string
	pin      int
	pid      config.PidConfig
	maxC     float64
	heatRate float64 // deg/s at full duty
	lossTau  float64 // seconds

	target   float64
	current  float64
	duty     float64
	integral float64
	lastErr  float64
	lastTick time.Duration
	primed   bool
}

func NewHeaterDriver(name string, cfg config.HeaterConfig, heatRate, lossTau float64) *HeaterDriver {
	return &HeaterDriver{
		name:     name,
		pin:      cfg.PwmPin,
		pid:      cfg.Pid,
		maxC:     cfg.MaxC,
		heatRate: heatRate,
		lossTau:  lossTau,
		current:  ambientC,
	}
}

func (h *HeaterDriver) Name() string {
	return h.name
}

func (h *HeaterDriver) Target() float64 {
	return h.target
}

func (h *HeaterDriver) Current() float64 {
	return h.current
}

func (h *HeaterDriver) Set_target(sched *Scheduler, t float64) {
	h.target = maths.Clamp(t, 0, h.maxC)
	if h.target == 0 {
		h.duty = 0
		h.integral = 0
		sched.Sched_pwm(h.pin, 0, heaterPeriod)
	}
}

func (h *HeaterDriver) On_idle_cpu(sched *Scheduler, interval IdleInterval) bool {
	if interval != IdleWide {
		return false
	}
	now := sched.Now()
	if !h.primed {
		h.primed = true
		h.lastTick = now
		return false
	}
	dt := (now - h.lastTick).Seconds()
	if dt < heaterPeriod.Seconds() {
		return false
	}
	h.lastTick = now

	// advance the thermal model
	h.current += (h.duty*h.heatRate - (h.current-ambientC)/h.lossTau) * dt

	if h.target <= 0 {
		return false
	}
	err := h.target - h.current
	h.integral = maths.Clamp(h.integral+err*dt, -60, 60)
	deriv := (err - h.lastErr) / dt
	h.lastErr = err
	duty := maths.Clamp((h.pid.Kp*err+h.pid.Ki*h.integral+h.pid.Kd*deriv)/255, 0, 1)
	if maths.NearlyEqual(duty, h.duty, 0.01) {
		return false
	}
	h.duty = duty
	sched.Sched_pwm(h.pin, duty, heaterPeriod)
	return false
}
