// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the settings of the wbsot command.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/curioloop/wbsot/qp"
)

// Config represents the complete command configuration.
type Config struct {
	QP      qp.Options    `mapstructure:"qp" yaml:"qp"`
	Arm     ArmConfig     `mapstructure:"arm" yaml:"arm"`
	Control ControlConfig `mapstructure:"control" yaml:"control"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ArmConfig describes the planar chain driven by the reaching loop.
type ArmConfig struct {
	// Links are the link lengths from the base to the end point.
	Links []float64 `mapstructure:"links" yaml:"links"`
	// Initial joint position, one entry per link.
	Initial []float64 `mapstructure:"initial" yaml:"initial"`
	// JointMin and JointMax are the position limits, empty to disable them.
	JointMin []float64 `mapstructure:"joint_min" yaml:"joint_min"`
	JointMax []float64 `mapstructure:"joint_max" yaml:"joint_max"`
	// MaxVelocity is the joint speed limit in rad/s.
	MaxVelocity float64 `mapstructure:"max_velocity" yaml:"max_velocity"`
}

// ControlConfig controls the resolved rate loop.
type ControlConfig struct {
	// Target is the end point reference in the arm plane.
	Target []float64 `mapstructure:"target" yaml:"target"`
	// Period of a control cycle in seconds.
	Period float64 `mapstructure:"period" yaml:"period"`
	// Cycles is the number of control cycles to run.
	Cycles int `mapstructure:"cycles" yaml:"cycles"`
	// Gain is the lambda of the reaching task.
	Gain float64 `mapstructure:"gain" yaml:"gain"`
	// PosturalGain is the lambda of the postural task, 0 disables the level.
	PosturalGain float64 `mapstructure:"postural_gain" yaml:"postural_gain"`
	// Central selects central differences for the Jacobian.
	Central bool `mapstructure:"central" yaml:"central"`
}

// LoggingConfig controls the log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		QP: qp.DefaultOptions(),
		Arm: ArmConfig{
			Links:       []float64{0.5, 0.4, 0.3},
			Initial:     []float64{0.3, 0.4, 0.5},
			JointMin:    []float64{-2.5, -2.5, -2.5},
			JointMax:    []float64{2.5, 2.5, 2.5},
			MaxVelocity: 1.5,
		},
		Control: ControlConfig{
			Target:       []float64{0.2, 0.8},
			Period:       0.01,
			Cycles:       500,
			Gain:         0.2,
			PosturalGain: 0.05,
			Central:      true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers the defaults on v so they are visible without a config file.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("qp.max_working_set_recalculations", defaults.QP.MaxWorkingSetRecalculations)
	v.SetDefault("qp.regularisation_scale", defaults.QP.RegularisationScale)
	v.SetDefault("qp.infinity", defaults.QP.Infinity)
	v.SetDefault("qp.tolerance", defaults.QP.Tolerance)
	v.SetDefault("qp.diagnostics", defaults.QP.Diagnostics)

	v.SetDefault("arm.links", defaults.Arm.Links)
	v.SetDefault("arm.initial", defaults.Arm.Initial)
	v.SetDefault("arm.joint_min", defaults.Arm.JointMin)
	v.SetDefault("arm.joint_max", defaults.Arm.JointMax)
	v.SetDefault("arm.max_velocity", defaults.Arm.MaxVelocity)

	v.SetDefault("control.target", defaults.Control.Target)
	v.SetDefault("control.period", defaults.Control.Period)
	v.SetDefault("control.cycles", defaults.Control.Cycles)
	v.SetDefault("control.gain", defaults.Control.Gain)
	v.SetDefault("control.postural_gain", defaults.Control.PosturalGain)
	v.SetDefault("control.central", defaults.Control.Central)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
}

// Init prepares v to read the config file and WBSOT_ prefixed environment variables.
// An empty file searches wbsot.yaml in the working directory.
func Init(v *viper.Viper, file string) error {
	SetDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("wbsot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("WBSOT")
	// WBSOT_QP_TOLERANCE for qp.tolerance
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Load decodes the settings of v and validates them.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if err := c.QP.Validate(); err != nil {
		return err
	}
	n := len(c.Arm.Links)
	switch {
	case n == 0:
		return errors.New("config: arm without links")
	case len(c.Arm.Initial) != n:
		return fmt.Errorf("config: %d initial joints for %d links", len(c.Arm.Initial), n)
	case len(c.Arm.JointMin) != len(c.Arm.JointMax):
		return errors.New("config: joint_min and joint_max differ in size")
	case len(c.Arm.JointMin) != 0 && len(c.Arm.JointMin) != n:
		return fmt.Errorf("config: %d joint limits for %d links", len(c.Arm.JointMin), n)
	case c.Arm.MaxVelocity <= 0:
		return fmt.Errorf("config: max_velocity %g must be positive", c.Arm.MaxVelocity)
	case len(c.Control.Target) != 2:
		return fmt.Errorf("config: target must be planar, got %d coordinates", len(c.Control.Target))
	case c.Control.Period <= 0:
		return fmt.Errorf("config: period %g must be positive", c.Control.Period)
	case c.Control.Cycles < 0:
		return fmt.Errorf("config: negative cycles %d", c.Control.Cycles)
	case c.Control.Gain < 0 || c.Control.Gain > 1:
		return fmt.Errorf("config: gain %g outside [0, 1]", c.Control.Gain)
	case c.Control.PosturalGain < 0 || c.Control.PosturalGain > 1:
		return fmt.Errorf("config: postural_gain %g outside [0, 1]", c.Control.PosturalGain)
	}
	for i := range c.Arm.JointMin {
		if c.Arm.JointMin[i] > c.Arm.JointMax[i] {
			return fmt.Errorf("config: joint %d limits [%g, %g] inverted", i, c.Arm.JointMin[i], c.Arm.JointMax[i])
		}
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (c LoggingConfig) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("config: %w", err)
	}
	return l, nil
}
