// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/curioloop/wbsot/diag"
	"github.com/curioloop/wbsot/internal/config"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestReach(t *testing.T) {
	cfg := config.Default()
	cfg.Control.Cycles = 300

	start, err := reach(context.Background(), func() *config.Config {
		c := config.Default()
		c.Control.Cycles = 0
		return c
	}(), quiet(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, start.Cycles)
	assert.Equal(t, cfg.Arm.Initial, start.Joints)

	var rec diag.YAMLRecorder
	out, err := reach(context.Background(), cfg, quiet(), &rec)
	require.NoError(t, err)
	assert.Equal(t, 300, out.Cycles)
	assert.Less(t, out.Distance, start.Distance)
	for i, q := range out.Joints {
		assert.GreaterOrEqual(t, q, cfg.Arm.JointMin[i]-1e-7)
		assert.LessOrEqual(t, q, cfg.Arm.JointMax[i]+1e-7)
	}
	assert.Len(t, rec.Series("solution_0"), 300)
	assert.Len(t, rec.Series("solution_1"), 300)
}

func TestReachWithoutPosture(t *testing.T) {
	cfg := config.Default()
	cfg.Control.PosturalGain = 0
	cfg.Control.Cycles = 20
	cfg.Arm.JointMin, cfg.Arm.JointMax = nil, nil

	var rec diag.YAMLRecorder
	out, err := reach(context.Background(), cfg, quiet(), &rec)
	require.NoError(t, err)
	assert.Equal(t, 20, out.Cycles)
	assert.Len(t, rec.Series("solution_0"), 20)
	assert.Empty(t, rec.Series("solution_1"))
}

func TestReachCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reach(ctx, config.Default(), quiet(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCommand(t *testing.T) {
	chdir(t, t.TempDir())
	dump := filepath.Join(t.TempDir(), "dump.yaml")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(viper.New())
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"run", "--cycles", "5", "--dump", dump, "--log-level", "warn"})
	require.NoError(t, cmd.Execute())

	var out outcome
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, 5, out.Cycles)
	assert.Len(t, out.Joints, 3)
	assert.Len(t, out.EndPoint, 2)
	assert.Empty(t, stderr.String())

	f, err := os.Open(dump)
	require.NoError(t, err)
	defer f.Close()
	series, err := diag.Decode(f)
	require.NoError(t, err)
	assert.Len(t, series["H_0"], 5)
}

func TestConfigCommand(t *testing.T) {
	chdir(t, t.TempDir())
	file := filepath.Join(t.TempDir(), "wbsot.yaml")
	require.NoError(t, os.WriteFile(file, []byte("control:\n  gain: 0.7\n"), 0o600))

	var stdout bytes.Buffer
	cmd := newRootCmd(viper.New())
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"config", "--config", file})
	require.NoError(t, cmd.Execute())

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &cfg))
	assert.Equal(t, 0.7, cfg.Control.Gain)
	assert.Equal(t, config.Default().Arm.Links, cfg.Arm.Links)
}

func TestInvalidConfig(t *testing.T) {
	chdir(t, t.TempDir())
	file := filepath.Join(t.TempDir(), "wbsot.yaml")
	require.NoError(t, os.WriteFile(file, []byte("control:\n  target: [1]\n"), 0o600))

	cmd := newRootCmd(viper.New())
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"run", "--config", file})
	assert.Error(t, cmd.Execute())
}

func TestRunTrace(t *testing.T) {
	chdir(t, t.TempDir())

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(viper.New())
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"run", "--cycles", "2", "--trace", "--log-level", "debug"})
	require.NoError(t, cmd.Execute())

	logs := stderr.String()
	assert.Contains(t, logs, "matrix snapshot")
	assert.Contains(t, logs, "name=H_0")
	assert.Contains(t, logs, "qp problem")
	assert.Contains(t, logs, "reaching done")
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
