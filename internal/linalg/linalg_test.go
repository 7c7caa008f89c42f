// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linalg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNilSafeDims(t *testing.T) {
	var d *mat.Dense
	var v *mat.VecDense

	r, c := Dims(d)
	assert.Zero(t, r)
	assert.Zero(t, c)
	assert.Zero(t, Len(v))
	assert.Zero(t, Len(nil))
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(d))
	assert.False(t, IsEmpty(mat.NewDense(1, 1, nil)))
}

func TestVStackAndConcat(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{1, 2})
	b := mat.NewDense(2, 2, []float64{3, 4, 5, 6})

	s := VStack(2, a, nil, b)
	require.NotNil(t, s)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, Data(nil, s))

	v := Concat(mat.NewVecDense(1, []float64{7}), (*mat.VecDense)(nil), mat.NewVecDense(2, []float64{8, 9}))
	assert.Equal(t, []float64{7, 8, 9}, VecData(nil, v))

	assert.Nil(t, VStack(2))
	assert.Nil(t, Concat())
	assert.Panics(t, func() { VStack(3, a) })
}

func TestBlockDiag(t *testing.T) {
	d := BlockDiag(Identity(1), mat.NewDense(2, 2, []float64{2, 3, 4, 5}))
	want := []float64{
		1, 0, 0,
		0, 2, 3,
		0, 4, 5,
	}
	assert.Equal(t, want, Data(nil, d))
	assert.Nil(t, BlockDiag())
}

func TestWrapEmpty(t *testing.T) {
	assert.Nil(t, Matrix(0, 3, nil))
	assert.Nil(t, Vector(nil))
	assert.Nil(t, CloneMatrix((*mat.Dense)(nil)))
	assert.Nil(t, CloneVector(nil))

	src := mat.NewVecDense(2, []float64{1, 2})
	cp := CloneVector(src)
	src.SetVec(0, 5)
	assert.Equal(t, 1.0, cp.AtVec(0))
}
