package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	DataVersion int    `yaml:"data_version"`
	LevelName   string `yaml:"level_name"`
	Spawn       [3]int `yaml:"spawn"`
	WorldSeed   uint32 `yaml:"world_seed"`

	TickRateHz     int `yaml:"tick_rate_hz"`
	SaveEveryTicks int `yaml:"save_every_ticks"`

	// IndexBackend is "sqlite" or "none".
	IndexBackend string `yaml:"index_backend"`
	SaveLog      bool   `yaml:"save_log"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

func Defaults() Tuning {
	return Tuning{
		DataVersion:    3955,
		LevelName:      "Voxel World",
		Spawn:          [3]int{0, -59, 0},
		TickRateHz:     20,
		SaveEveryTicks: 1200,
		IndexBackend:   "sqlite",
		SaveLog:        true,
		MetricsAddr:    ":9464",
	}
}

// Load overlays the YAML file at path on Defaults. Keys absent from the file
// keep their default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0, got %d", t.TickRateHz))
	}
	if t.SaveEveryTicks <= 0 {
		errs = append(errs, fmt.Errorf("save_every_ticks must be > 0, got %d", t.SaveEveryTicks))
	}
	switch t.IndexBackend {
	case "sqlite", "none":
	default:
		errs = append(errs, fmt.Errorf("index_backend must be sqlite or none, got %q", t.IndexBackend))
	}
	if t.DataVersion <= 0 {
		errs = append(errs, fmt.Errorf("data_version must be > 0, got %d", t.DataVersion))
	}
	return errors.Join(errs...)
}
