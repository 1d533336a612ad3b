// File: internal/config/humanoid_config.go
// This file defines the ScrollConfig struct, which tunes the human-like scrolling
// performed before each extraction. The randomized ranges keep the access pattern
// from being mechanically uniform.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ScrollConfig holds the parameters of the lazy-load scroll simulation.
type ScrollConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// MaxSteps is the step budget for a single settle.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// StepMin and StepMax bound each downward step, in CSS pixels.
	StepMin int `mapstructure:"step_min" yaml:"step_min"`
	StepMax int `mapstructure:"step_max" yaml:"step_max"`

	PauseMin time.Duration `mapstructure:"pause_min" yaml:"pause_min"`
	PauseMax time.Duration `mapstructure:"pause_max" yaml:"pause_max"`

	// ReverseProbability is the chance per step of a small upward correction.
	ReverseProbability float64 `mapstructure:"reverse_probability" yaml:"reverse_probability"`
	ReverseMin         int     `mapstructure:"reverse_min" yaml:"reverse_min"`
	ReverseMax         int     `mapstructure:"reverse_max" yaml:"reverse_max"`

	// LongPauseProbability is the chance per step of an extended "reading" pause.
	LongPauseProbability float64       `mapstructure:"long_pause_probability" yaml:"long_pause_probability"`
	LongPauseMin         time.Duration `mapstructure:"long_pause_min" yaml:"long_pause_min"`
	LongPauseMax         time.Duration `mapstructure:"long_pause_max" yaml:"long_pause_max"`
}

func setScrollDefaults(v *viper.Viper) {
	v.SetDefault("scroll.enabled", true)
	v.SetDefault("scroll.max_steps", 25)
	v.SetDefault("scroll.step_min", 250)
	v.SetDefault("scroll.step_max", 700)
	v.SetDefault("scroll.pause_min", "300ms")
	v.SetDefault("scroll.pause_max", "1200ms")
	v.SetDefault("scroll.reverse_probability", 0.12)
	v.SetDefault("scroll.reverse_min", 60)
	v.SetDefault("scroll.reverse_max", 200)
	v.SetDefault("scroll.long_pause_probability", 0.08)
	v.SetDefault("scroll.long_pause_min", "2s")
	v.SetDefault("scroll.long_pause_max", "4s")
}

// Validate checks the scroll ranges.
func (s *ScrollConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if s.StepMin <= 0 || s.StepMax < s.StepMin {
		return fmt.Errorf("step range [%d, %d] is invalid", s.StepMin, s.StepMax)
	}
	if s.PauseMax < s.PauseMin || s.LongPauseMax < s.LongPauseMin {
		return fmt.Errorf("pause ranges must not be inverted")
	}
	if s.ReverseMax < s.ReverseMin {
		return fmt.Errorf("reverse range [%d, %d] is invalid", s.ReverseMin, s.ReverseMax)
	}
	for name, p := range map[string]float64{
		"reverse_probability":    s.ReverseProbability,
		"long_pause_probability": s.LongPauseProbability,
	} {
		if p < 0.0 || p > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0", name)
		}
	}
	return nil
}
