// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	v := viper.New()
	require.NoError(t, Init(v, ""))
	cfg, err := Load(v)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.QP.MaxWorkingSetRecalculations, cfg.QP.MaxWorkingSetRecalculations)
	assert.Equal(t, def.QP.Tolerance, cfg.QP.Tolerance)
	assert.Equal(t, def.Arm, cfg.Arm)
	assert.Equal(t, def.Control, cfg.Control)
	assert.Equal(t, def.Logging, cfg.Logging)
	assert.Nil(t, cfg.QP.Logger)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "arm.yaml")
	content := `
qp:
  max_working_set_recalculations: 50
  tolerance: 1.0e-6
arm:
  links: [1, 1]
  initial: [0, 0.5]
  joint_min: []
  joint_max: []
control:
  target: [1.2, 0.4]
  cycles: 10
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	v := viper.New()
	require.NoError(t, Init(v, file))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.QP.MaxWorkingSetRecalculations)
	assert.Equal(t, 1e-6, cfg.QP.Tolerance)
	assert.Equal(t, 1e20, cfg.QP.Infinity)
	assert.Equal(t, []float64{1, 1}, cfg.Arm.Links)
	assert.Equal(t, []float64{0, 0.5}, cfg.Arm.Initial)
	assert.Empty(t, cfg.Arm.JointMin)
	assert.Equal(t, []float64{1.2, 0.4}, cfg.Control.Target)
	assert.Equal(t, 10, cfg.Control.Cycles)
	assert.Equal(t, Default().Control.Period, cfg.Control.Period)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WBSOT_QP_TOLERANCE", "1e-5")
	t.Setenv("WBSOT_CONTROL_CYCLES", "7")

	v := viper.New()
	require.NoError(t, Init(v, ""))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 1e-5, cfg.QP.Tolerance)
	assert.Equal(t, 7, cfg.Control.Cycles)
}

func TestMissingFile(t *testing.T) {
	v := viper.New()
	assert.Error(t, Init(v, filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no links", func(c *Config) { c.Arm.Links = nil }},
		{"initial size", func(c *Config) { c.Arm.Initial = []float64{0} }},
		{"limit sizes differ", func(c *Config) { c.Arm.JointMax = c.Arm.JointMax[:1] }},
		{"limit size", func(c *Config) { c.Arm.JointMin, c.Arm.JointMax = []float64{0}, []float64{1} }},
		{"inverted limits", func(c *Config) { c.Arm.JointMin[1] = 3 }},
		{"velocity", func(c *Config) { c.Arm.MaxVelocity = 0 }},
		{"target", func(c *Config) { c.Control.Target = []float64{1, 2, 3} }},
		{"period", func(c *Config) { c.Control.Period = -0.1 }},
		{"cycles", func(c *Config) { c.Control.Cycles = -1 }},
		{"gain", func(c *Config) { c.Control.Gain = 1.5 }},
		{"postural gain", func(c *Config) { c.Control.PosturalGain = -0.5 }},
		{"tolerance", func(c *Config) { c.QP.Tolerance = -1 }},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})
}
