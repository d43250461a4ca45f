package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AxisPins holds the output pins driving one stepper axis.
type AxisPins struct {
	StepPin    int `yaml:"step_pin"`
	DirPin     int `yaml:"dir_pin"`
	EnablePin  int `yaml:"enable_pin"`
	EndstopPin int `yaml:"endstop_pin"` // 0 = no endstop on this axis
}

// PidConfig holds the heater feedback terms.
type PidConfig struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

// HeaterConfig describes one heater output and its feedback terms.
type HeaterConfig struct {
	PwmPin int       `yaml:"pwm_pin"`
	MaxC   float64   `yaml:"max_c"`
	Pid    PidConfig `yaml:"pid"`
}

// SchedulerConfig carries the event-loop tunables.
type SchedulerConfig struct {
	BufferSize int `yaml:"buffer_size"`
	MaxSleepMs int `yaml:"max_sleep_ms"`
}

// LogConfig selects log destination and verbosity.
type LogConfig struct {
	File    string `yaml:"file"`
	Verbose bool   `yaml:"verbose"`
	Color   bool   `yaml:"color"`
}

// SerialConfig selects the serial host channel. Empty device means the
// host talks over stdin/stdout.
type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// MachineConfig aggregates the build-time machine description: geometry,
// step scaling, envelope, rate limits and pin assignments.
type MachineConfig struct {
	Geometry string `yaml:"geometry"` // cartesian | corexy | linear_delta

	// One entry per mechanical axis, in axis order. Cartesian: x,y,z,e.
	// CoreXY: a,b,z,e. Delta: a,b,c,e.
	StepsPerMm []float64 `yaml:"steps_per_mm"`

	// Box envelope (ignored by delta except for Z).
	MinMm []float64 `yaml:"min_mm"` // x,y,z
	MaxMm []float64 `yaml:"max_mm"` // x,y,z

	// Delta geometry.
	DeltaRadius float64 `yaml:"delta_radius"` // r: carriage rail circle radius
	RodLength   float64 `yaml:"rod_length"`   // L: effector rod length
	PrintRadius float64 `yaml:"print_radius"`

	MaxVelocity     float64 `yaml:"max_velocity"`      // mm/s
	MaxAccel        float64 `yaml:"max_accel"`         // mm/s^2
	AccelProfile    string  `yaml:"accel_profile"`     // trapezoid | none
	AutoHome        bool    `yaml:"auto_home"`         // home before first move
	MaxExtrudeRate  float64 `yaml:"max_extrude_rate"`  // mm/s
	MaxRetractRate  float64 `yaml:"max_retract_rate"`  // mm/s
	DefaultFeedRate float64 `yaml:"default_feed_rate"` // mm/s
	HomeVelocity    float64 `yaml:"home_velocity"`     // mm/s

	Axes   []AxisPins   `yaml:"axes"`
	FanPin int          `yaml:"fan_pin"`
	Hotend HeaterConfig `yaml:"hotend"`
	Bed    HeaterConfig `yaml:"bed"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
	Serial    SerialConfig    `yaml:"serial"`

	// MockHardware selects the recording backend instead of GPIO.
	MockHardware bool   `yaml:"mock_hardware"`
	GcodeDir     string `yaml:"gcode_dir"` // root for M32 file lookups
}

// Default returns a runnable configuration for a small cartesian machine
// on the mock backend. Tests build on top of it.
func Default() *MachineConfig {
	return &MachineConfig{
		Geometry:        "cartesian",
		StepsPerMm:      []float64{80, 80, 400, 95},
		MinMm:           []float64{0, 0, 0},
		MaxMm:           []float64{200, 200, 180},
		MaxVelocity:     120,
		MaxAccel:        1500,
		AccelProfile:    "trapezoid",
		MaxExtrudeRate:  40,
		MaxRetractRate:  40,
		DefaultFeedRate: 40,
		HomeVelocity:    20,
		Axes: []AxisPins{
			{StepPin: 2, DirPin: 3, EnablePin: 4, EndstopPin: 17},
			{StepPin: 5, DirPin: 6, EnablePin: 7, EndstopPin: 18},
			{StepPin: 8, DirPin: 9, EnablePin: 10, EndstopPin: 19},
			{StepPin: 11, DirPin: 12, EnablePin: 13},
		},
		FanPin: 20,
		Hotend: HeaterConfig{PwmPin: 21, MaxC: 280, Pid: PidConfig{Kp: 22.2, Ki: 1.08, Kd: 114}},
		Bed:    HeaterConfig{PwmPin: 22, MaxC: 120, Pid: PidConfig{Kp: 54, Ki: 0.77, Kd: 948}},
		Scheduler: SchedulerConfig{
			BufferSize: 512,
			MaxSleepMs: 50,
		},
		Log:          LogConfig{Color: true},
		MockHardware: true,
		GcodeDir:     ".",
	}
}

// Load reads a YAML machine file, applies defaults and validates it.
func Load(path string) (*MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NumAxis returns the mechanical axis count implied by the geometry.
func (c *MachineConfig) NumAxis() int {
	return 4
}

// Validate checks cross-field consistency and fills derived defaults.
func (c *MachineConfig) Validate() error {
	switch c.Geometry {
	case "cartesian", "corexy", "linear_delta":
	default:
		return fmt.Errorf("unknown geometry %q", c.Geometry)
	}
	if len(c.StepsPerMm) != c.NumAxis() {
		return fmt.Errorf("steps_per_mm needs %d entries, got %d", c.NumAxis(), len(c.StepsPerMm))
	}
	for i, s := range c.StepsPerMm {
		if s <= 0 {
			return fmt.Errorf("steps_per_mm[%d] must be > 0, got %g", i, s)
		}
	}
	if len(c.MinMm) != 3 || len(c.MaxMm) != 3 {
		return fmt.Errorf("min_mm/max_mm need 3 entries")
	}
	if c.Geometry == "linear_delta" {
		if c.RodLength <= c.DeltaRadius {
			return fmt.Errorf("rod_length (%g) must exceed delta_radius (%g)", c.RodLength, c.DeltaRadius)
		}
		if c.PrintRadius <= 0 {
			c.PrintRadius = c.DeltaRadius * 0.8
		}
	}
	if c.MaxVelocity <= 0 || c.MaxAccel <= 0 {
		return fmt.Errorf("max_velocity and max_accel must be > 0")
	}
	switch c.AccelProfile {
	case "":
		c.AccelProfile = "trapezoid"
	case "trapezoid", "none":
	default:
		return fmt.Errorf("unknown accel_profile %q", c.AccelProfile)
	}
	if c.DefaultFeedRate <= 0 {
		c.DefaultFeedRate = c.MaxVelocity / 3
	}
	if c.HomeVelocity <= 0 {
		c.HomeVelocity = c.DefaultFeedRate / 2
	}
	if c.Scheduler.BufferSize <= 0 {
		c.Scheduler.BufferSize = 512
	}
	if c.Scheduler.MaxSleepMs <= 0 {
		c.Scheduler.MaxSleepMs = 50
	}
	if c.Serial.Device != "" && c.Serial.Baud <= 0 {
		c.Serial.Baud = 250000
	}
	if len(c.Axes) != c.NumAxis() {
		return fmt.Errorf("axes needs %d entries, got %d", c.NumAxis(), len(c.Axes))
	}
	return nil
}

// MaxSleep returns the scheduler sleep bound as a duration.
func (c *MachineConfig) MaxSleep() time.Duration {
	return time.Duration(c.Scheduler.MaxSleepMs) * time.Millisecond
}
