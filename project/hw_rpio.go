package project

import (
	"fmt"
	"time"

	"github.com/stianeikeland/go-rpio/v4"

	"p3c/common/config"
)

// RpioBackend drives real GPIO through /dev/gpiomem. Each axis gets a
// step/dir pair; the step pulse is held just long enough for common
// stepper drivers (A4988/TMC) to latch it.
type RpioBackend struct {
	axes      []config.AxisPins
	pins      map[int]rpio.Pin
	pulseHold time.Duration
}

func NewRpioBackend(axes []config.AxisPins) (*RpioBackend, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	b := &RpioBackend{
		axes:      axes,
		pins:      map[int]rpio.Pin{},
		pulseHold: 2 * time.Microsecond,
	}
	for _, a := range axes {
		for _, p := range []int{a.StepPin, a.DirPin, a.EnablePin} {
			if p != 0 {
				if err := b.SetupPin(p, PinOutput); err != nil {
					return nil, err
				}
			}
		}
		if a.EndstopPin != 0 {
			if err := b.SetupPin(a.EndstopPin, PinInput); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

func (b *RpioBackend) pin(n int) rpio.Pin {
	p, ok := b.pins[n]
	if !ok {
		p = rpio.Pin(n)
		b.pins[n] = p
	}
	return p
}

func (b *RpioBackend) SetupPin(n int, mode PinMode) error {
	p := b.pin(n)
	if mode == PinInput {
		p.Input()
		p.PullUp()
	} else {
		p.Output()
	}
	return nil
}

func (b *RpioBackend) WritePin(n int, level bool) error {
	if level {
		b.pin(n).High()
	} else {
		b.pin(n).Low()
	}
	return nil
}

func (b *RpioBackend) ReadPin(n int) (bool, error) {
	return b.pin(n).Read() == rpio.High, nil
}

func (b *RpioBackend) Step(axis int, dir StepDirection) error {
	if axis < 0 || axis >= len(b.axes) {
		return fmt.Errorf("step on unknown axis %d", axis)
	}
	a := b.axes[axis]
	if dir == StepForward {
		b.pin(a.DirPin).High()
	} else {
		b.pin(a.DirPin).Low()
	}
	step := b.pin(a.StepPin)
	step.High()
	spinFor(b.pulseHold)
	step.Low()
	return nil
}

func (b *RpioBackend) EnableSteppers(on bool) error {
	for _, a := range b.axes {
		if a.EnablePin == 0 {
			continue
		}
		// Enable lines on common driver boards are active low.
		if on {
			b.pin(a.EnablePin).Low()
		} else {
			b.pin(a.EnablePin).High()
		}
	}
	return nil
}

func (b *RpioBackend) Close() error {
	_ = b.EnableSteppers(false)
	return rpio.Close()
}

// spinFor busy-waits; time.Sleep cannot hold a 2 microsecond pulse.
func spinFor(d time.Duration) {
	t0 := time.Now()
	for time.Since(t0) < d {
	}
}
