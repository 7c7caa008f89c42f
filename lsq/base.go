// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lsq implements the Lawson-Hanson least-squares kernels the QP backend
// is built on: Householder and Givens primitives, a non-negative least-squares
// solver that accepts an initial passive set, and least distance programming.
//
// Matrices are dense float64 slices. NNLS works on column-major storage with
// contiguous columns, LDP accepts its constraint matrix row-major so that a
// gonum matrix can be handed over without transposition.
package lsq

import "math"

var eps = math.Nextafter(1, 2) - 1

// Status reports how a kernel terminated.
type Status int

const (
	// Solved the problem has been solved.
	Solved Status = iota
	// BadArgument input dimension unacceptable.
	BadArgument
	// ExceedMaxIter more than max iterations for solving NNLS.
	ExceedMaxIter
	// Incompatible inequality constraints incompatible.
	Incompatible
)

func (s Status) String() string {
	switch s {
	case Solved:
		return "solved"
	case BadArgument:
		return "bad argument"
	case ExceedMaxIter:
		return "iteration limit exceeded"
	case Incompatible:
		return "incompatible constraints"
	}
	return "unknown"
}
