package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machine.yaml")
	body := `
geometry: linear_delta
delta_radius: 100
rod_length: 250
print_radius: 80
max_mm: [0, 0, 300]
min_mm: [0, 0, 0]
steps_per_mm: [160, 160, 160, 95]
max_velocity: 200
home_velocity: 25
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Geometry != "linear_delta" || cfg.RodLength != 250 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.MaxAccel != Default().MaxAccel {
		t.Fatalf("unset fields should keep defaults")
	}
	if cfg.Scheduler.BufferSize != Default().Scheduler.BufferSize {
		t.Fatalf("scheduler defaults lost")
	}
}

func TestValidateRejectsBadGeometry(t *testing.T) {
	cfg := Default()
	cfg.Geometry = "polar"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected geometry error")
	}
}

func TestValidateRejectsShortRods(t *testing.T) {
	cfg := Default()
	cfg.Geometry = "linear_delta"
	cfg.DeltaRadius = 100
	cfg.RodLength = 90
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected rod length error")
	}
}

func TestValidateRejectsBadSteps(t *testing.T) {
	cfg := Default()
	cfg.StepsPerMm = []float64{80, 80, 400}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected steps_per_mm arity error")
	}
	cfg = Default()
	cfg.StepsPerMm[2] = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected steps_per_mm sign error")
	}
}
