// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diag receives matrix snapshots published by the logging hooks of
// tasks, constraints and the QP backend. Recording is a side channel and never
// affects control flow.
package diag

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/curioloop/wbsot/internal/linalg"
)

// Recorder stores a named snapshot of a matrix. Vectors are recorded as
// single column matrices. Implementations must copy m if they keep it.
type Recorder interface {
	Add(name string, m mat.Matrix)
}

// Snapshot is one recorded matrix.
type Snapshot struct {
	Name string      `yaml:"name"`
	Rows int         `yaml:"rows"`
	Cols int         `yaml:"cols"`
	Data [][]float64 `yaml:"data,flow"`
}

func snapshot(name string, m mat.Matrix) Snapshot {
	r, c := linalg.Dims(m)
	s := Snapshot{Name: name, Rows: r, Cols: c, Data: make([][]float64, r)}
	for i := range s.Data {
		row := make([]float64, c)
		for j := range row {
			row[j] = m.At(i, j)
		}
		s.Data[i] = row
	}
	return s
}

// SlogRecorder writes each snapshot as a structured log record.
type SlogRecorder struct {
	Logger *slog.Logger
	Level  slog.Level
}

// Add logs the snapshot.
func (r SlogRecorder) Add(name string, m mat.Matrix) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !logger.Enabled(context.Background(), r.Level) {
		return
	}
	s := snapshot(name, m)
	logger.Log(context.Background(), r.Level, "matrix snapshot",
		"name", s.Name, "rows", s.Rows, "cols", s.Cols, "data", s.Data)
}

// YAMLRecorder accumulates snapshots in memory and encodes them as a YAML
// document grouped by name in first-seen order.
type YAMLRecorder struct {
	mu    sync.Mutex
	order []string
	byKey map[string][]Snapshot
}

// Add appends a copy of m to the series of name.
func (r *YAMLRecorder) Add(name string, m mat.Matrix) {
	s := snapshot(name, m)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byKey == nil {
		r.byKey = make(map[string][]Snapshot)
	}
	if _, ok := r.byKey[name]; !ok {
		r.order = append(r.order, name)
	}
	r.byKey[name] = append(r.byKey[name], s)
}

// Series returns the snapshots recorded under name.
func (r *YAMLRecorder) Series(name string) []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.byKey[name]...)
}

// Len returns the number of distinct names recorded.
func (r *YAMLRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Encode writes every recorded series to w.
func (r *YAMLRecorder) Encode(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	type series struct {
		Name      string     `yaml:"name"`
		Snapshots []Snapshot `yaml:"snapshots"`
	}
	out := make([]series, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, series{Name: name, Snapshots: r.byKey[name]})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

// Decode reads series written by Encode.
func Decode(rd io.Reader) (map[string][]Snapshot, error) {
	var in []struct {
		Name      string     `yaml:"name"`
		Snapshots []Snapshot `yaml:"snapshots"`
	}
	if err := yaml.NewDecoder(rd).Decode(&in); err != nil {
		return nil, err
	}
	out := make(map[string][]Snapshot, len(in))
	for _, s := range in {
		out[s.Name] = s.Snapshots
	}
	return out, nil
}
