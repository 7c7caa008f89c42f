// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diag

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestYAMLRecorderSeries(t *testing.T) {
	var rec YAMLRecorder
	rec.Add("H_0", mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	rec.Add("g_0", mat.NewVecDense(2, []float64{5, 6}))
	rec.Add("H_0", mat.NewDense(2, 2, []float64{7, 8, 9, 10}))

	require.Equal(t, 2, rec.Len())
	series := rec.Series("H_0")
	require.Len(t, series, 2)
	assert.Equal(t, [][]float64{{7, 8}, {9, 10}}, series[1].Data)

	var buf bytes.Buffer
	require.NoError(t, rec.Encode(&buf))
	assert.True(t, strings.Index(buf.String(), "H_0") < strings.Index(buf.String(), "g_0"))

	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, got["g_0"], 1)
	assert.Equal(t, 2, got["g_0"][0].Rows)
	assert.Equal(t, 1, got["g_0"][0].Cols)
	assert.Equal(t, [][]float64{{5}, {6}}, got["g_0"][0].Data)
}

func TestYAMLRecorderCopies(t *testing.T) {
	var rec YAMLRecorder
	m := mat.NewDense(1, 1, []float64{1})
	rec.Add("m", m)
	m.Set(0, 0, 2)
	assert.Equal(t, 1.0, rec.Series("m")[0].Data[0][0])
}

func TestSlogRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	SlogRecorder{Logger: logger, Level: slog.LevelDebug}.Add("A_3", mat.NewDense(1, 2, []float64{1, 2}))
	assert.Contains(t, buf.String(), "name=A_3")
	assert.Contains(t, buf.String(), "cols=2")

	buf.Reset()
	SlogRecorder{Logger: slog.New(slog.NewTextHandler(&buf, nil)), Level: slog.LevelDebug}.Add("A_4", nil)
	assert.Empty(t, buf.String())
}
