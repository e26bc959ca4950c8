package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz    int    `yaml:"tick_rate_hz"`
	EnablePhysics bool   `yaml:"enable_physics"`
	WorldFile     string `yaml:"world_file"`

	// 0 disables autosave.
	AutosaveEveryTicks int `yaml:"autosave_every_ticks"`

	ObserverAddr string `yaml:"observer_addr"`
	LogDir       string `yaml:"log_dir"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:    60,
		EnablePhysics: true,
		WorldFile:     "level.dat",
	}
}

// Load reads tuning.yaml on top of Defaults, so omitted keys keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.TickRateHz <= 0 {
		return t, fmt.Errorf("tuning.yaml: tick_rate_hz must be > 0 (got %d)", t.TickRateHz)
	}
	if t.AutosaveEveryTicks < 0 {
		return t, fmt.Errorf("tuning.yaml: autosave_every_ticks must be >= 0 (got %d)", t.AutosaveEveryTicks)
	}
	if t.WorldFile == "" {
		t.WorldFile = "level.dat"
	}
	return t, nil
}
