// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linalg holds the small gonum helpers shared by the task, constraint
// and solver packages.
//
// gonum refuses to allocate zero sized matrices, so an empty block is carried
// as a nil value throughout the module. Every helper here accepts nil (typed or
// untyped) and treats it as a 0×0 matrix or a 0-vector.
package linalg

import (
	"gonum.org/v1/gonum/mat"
)

// IsEmpty reports whether m holds no element.
func IsEmpty(m mat.Matrix) bool {
	r, c := Dims(m)
	return r == 0 || c == 0
}

// Dims returns the dimensions of m, (0,0) for nil.
func Dims(m mat.Matrix) (r, c int) {
	switch t := m.(type) {
	case nil:
		return 0, 0
	case *mat.Dense:
		if t == nil {
			return 0, 0
		}
	case *mat.VecDense:
		if t == nil {
			return 0, 0
		}
	case *mat.SymDense:
		if t == nil {
			return 0, 0
		}
	case *mat.DiagDense:
		if t == nil {
			return 0, 0
		}
	}
	return m.Dims()
}

// Len returns the length of v, 0 for nil.
func Len(v mat.Vector) int {
	switch t := v.(type) {
	case nil:
		return 0
	case *mat.VecDense:
		if t == nil {
			return 0
		}
	}
	return v.Len()
}

// Rows returns the row count of m.
func Rows(m mat.Matrix) int {
	r, _ := Dims(m)
	return r
}

// Cols returns the column count of m.
func Cols(m mat.Matrix) int {
	_, c := Dims(m)
	return c
}

// Data copies m into dst in row-major order and returns the grown slice.
func Data(dst []float64, m mat.Matrix) []float64 {
	r, c := Dims(m)
	dst = Grow(dst, r*c)
	if r == 0 || c == 0 {
		return dst
	}
	if d, ok := m.(*mat.Dense); ok {
		raw := d.RawMatrix()
		for i := 0; i < r; i++ {
			copy(dst[i*c:(i+1)*c], raw.Data[i*raw.Stride:i*raw.Stride+c])
		}
		return dst
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst[i*c+j] = m.At(i, j)
		}
	}
	return dst
}

// VecData copies v into dst and returns the grown slice.
func VecData(dst []float64, v mat.Vector) []float64 {
	n := Len(v)
	dst = Grow(dst, n)
	for i := 0; i < n; i++ {
		dst[i] = v.AtVec(i)
	}
	return dst
}

// Grow returns s resliced to length n, reallocating only when the capacity is short.
func Grow(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}

// Matrix wraps row-major data as an r×c matrix, nil when empty.
func Matrix(r, c int, data []float64) *mat.Dense {
	if r == 0 || c == 0 {
		return nil
	}
	return mat.NewDense(r, c, data[:r*c:r*c])
}

// Vector wraps data as a vector, nil when empty.
func Vector(data []float64) *mat.VecDense {
	if len(data) == 0 {
		return nil
	}
	return mat.NewVecDense(len(data), data)
}

// CloneMatrix returns a deep copy of m, nil when empty.
func CloneMatrix(m mat.Matrix) *mat.Dense {
	r, c := Dims(m)
	if r == 0 || c == 0 {
		return nil
	}
	return mat.DenseCopyOf(m)
}

// CloneVector returns a deep copy of v, nil when empty.
func CloneVector(v mat.Vector) *mat.VecDense {
	n := Len(v)
	if n == 0 {
		return nil
	}
	return mat.VecDenseCopyOf(v)
}

// Identity returns the n×n identity, nil for n = 0.
func Identity(n int) *mat.Dense {
	if n == 0 {
		return nil
	}
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// VStack piles the blocks on top of each other. Empty blocks are skipped and
// every non-empty block must have cols columns.
func VStack(cols int, blocks ...mat.Matrix) *mat.Dense {
	rows := 0
	for _, b := range blocks {
		if r, c := Dims(b); r > 0 && c > 0 {
			if c != cols {
				panic(mat.ErrShape)
			}
			rows += r
		}
	}
	if rows == 0 || cols == 0 {
		return nil
	}
	out := mat.NewDense(rows, cols, nil)
	i := 0
	for _, b := range blocks {
		r, c := Dims(b)
		if r == 0 || c == 0 {
			continue
		}
		out.Slice(i, i+r, 0, cols).(*mat.Dense).Copy(b)
		i += r
	}
	return out
}

// Concat joins the vectors end to end, skipping empty ones.
func Concat(vs ...mat.Vector) *mat.VecDense {
	n := 0
	for _, v := range vs {
		n += Len(v)
	}
	if n == 0 {
		return nil
	}
	out := mat.NewVecDense(n, nil)
	i := 0
	for _, v := range vs {
		for k := 0; k < Len(v); k++ {
			out.SetVec(i, v.AtVec(k))
			i++
		}
	}
	return out
}

// BlockDiag places square blocks along the diagonal of a zero matrix.
func BlockDiag(blocks ...mat.Matrix) *mat.Dense {
	n := 0
	for _, b := range blocks {
		n += Rows(b)
	}
	if n == 0 {
		return nil
	}
	out := mat.NewDense(n, n, nil)
	i := 0
	for _, b := range blocks {
		r, c := Dims(b)
		if r == 0 {
			continue
		}
		out.Slice(i, i+r, i, i+c).(*mat.Dense).Copy(b)
		i += r
	}
	return out
}
