// Package tuning holds the numeric knobs that shape progression without
// being game content: the experience curve's growth law and the global
// experience rate.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	CurveBase     float64 `yaml:"curve_base"`
	CurveExponent float64 `yaml:"curve_exponent"`
	XPMultiplier  float64 `yaml:"xp_multiplier"`
}

func Defaults() Tuning {
	return Tuning{
		CurveBase:     100,
		CurveExponent: 2.5,
		XPMultiplier:  1.0,
	}
}

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
	if t.CurveBase < 1 {
		return fmt.Errorf("curve_base %v < 1", t.CurveBase)
	}
	if t.CurveExponent < 1 {
		return fmt.Errorf("curve_exponent %v < 1", t.CurveExponent)
	}
	if t.XPMultiplier <= 0 {
		return fmt.Errorf("xp_multiplier %v <= 0", t.XPMultiplier)
	}
	return nil
}
