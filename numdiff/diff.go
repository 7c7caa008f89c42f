// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff estimates Jacobians by finite differences.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
//
// # License
//
//   - https://github.com/scipy/scipy/blob/main/LICENSE.txt
package numdiff

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Cbrt(math.Nextafter(1, 2) - 1)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use central difference in interior points and the second order accuracy
	// forward or backward difference near the boundary.
	Central
)

// Bound is the [lower, upper] range of one variable, NaN stands for an open side.
type Bound [2]float64

// Func evaluates the m-vector y at the n-vector x.
// It must not retain x, which is modified between calls.
type Func func(x, y []float64)

// Approx estimates the Jacobian 𝐉ᵢⱼ = ∂yᵢ/∂xⱼ of a Func.
// The zero value uses forward differences with automatic steps.
// Scratch space is kept between calls of the same shape.
type Approx struct {
	// Finite difference method to use.
	Method Method
	// Lower and upper bounds on independent variables.
	// Use it to limit the range of function evaluation.
	Bounds []Bound
	// Relative step size used to compute absolute step size.
	// The default absolute step size is computed as h = RelStep * sign(x0) * max(1, abs(x0)) with RelStep being selected automatically.
	// Otherwise, absolute step size is computed as h = RelStep * sign(x0) * abs(x0) when RelStep is provided.
	RelStep float64
	// Absolute step size to use, possibly adjusted to fit into the bounds.
	// The RelStep is used when AbsStep is not provide.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
	// Don't check if x0 is out of bounds.
	NotChkBnd bool

	x, f0, f1, f2 []float64
	step          []float64
	oneSide       []bool
	bounds        []Bound
}

// Jacobian writes the m×n Jacobian of fn at x0 into dst, which must be
// allocated with the output size m as its row count and the size of x0 as its
// column count.
func (a *Approx) Jacobian(dst *mat.Dense, fn Func, x0 mat.Vector) error {
	if dst == nil || dst.IsEmpty() {
		return errors.New("numdiff: destination must be allocated")
	}
	m, n := dst.Dims()
	if err := a.check(fn, x0, m, n); err != nil {
		return err
	}

	bnd := false
	for _, b := range a.bounds {
		if bnd = !(math.IsInf(b[0], -1) && math.IsInf(b[1], 1)); bnd {
			break
		}
	}

	a.absoluteStep()
	a.adjustToBounds(bnd)

	if a.Method == Central {
		a.approxCentral(dst, fn)
	} else {
		a.approxForward(dst, fn)
	}
	return nil
}

func (a *Approx) check(fn Func, x0 mat.Vector, m, n int) error {
	switch {
	case a.Method != Forward && a.Method != Central:
		return errors.New("numdiff: unknown method")
	case fn == nil:
		return errors.New("numdiff: function is required")
	case x0 == nil || x0.Len() != n:
		return errors.New("numdiff: invalid x0 dimensions")
	case a.Bounds != nil && len(a.Bounds) != n:
		return errors.New("numdiff: invalid bound dimension")
	}

	if len(a.x) != n || len(a.f0) != m {
		a.x = make([]float64, n)
		a.step = make([]float64, n)
		a.oneSide = make([]bool, n)
		a.f0 = make([]float64, m)
		a.f1 = make([]float64, m)
		a.f2 = make([]float64, m)
	}
	for i := range a.x {
		a.x[i] = x0.AtVec(i)
	}

	a.bounds = append(a.bounds[:0], a.Bounds...)
	for i, b := range a.bounds {
		if math.IsNaN(b[0]) {
			b[0] = math.Inf(-1)
		}
		if math.IsNaN(b[1]) {
			b[1] = math.Inf(1)
		}
		a.bounds[i] = b
		if b[0] > b[1] {
			return errors.New("numdiff: invalid bound range")
		}
		if !a.NotChkBnd && (a.x[i] < b[0] || a.x[i] > b[1]) {
			return errors.New("numdiff: x0 violates bound constraints")
		}
	}
	return nil
}

func (a *Approx) absoluteStep() {
	eps := sqrtEps
	if a.Method == Central {
		eps = cubeEps
	}

	h := a.step
	if a.AbsStep == 0 && a.RelStep == 0 {
		for i, v := range a.x {
			h[i] = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
		return
	}
	for i, v := range a.x {
		s := a.AbsStep
		if s == 0 {
			s = math.Copysign(a.RelStep, v) * math.Abs(v)
		}
		// a step lost in rounding falls back to the automatic one
		if (v+s)-v == 0 {
			s = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
		h[i] = s
	}
}

func (a *Approx) adjustToBounds(bnd bool) {
	h, o := a.step, a.oneSide
	for i := range o {
		o[i] = false
	}
	if a.Method == Central {
		for i, v := range h {
			h[i] = math.Abs(v)
		}
	}
	if !bnd {
		return
	}

	for i, x0 := range a.x {
		lb, ub := a.bounds[i][0], a.bounds[i][1]
		ld, ud := x0-lb, ub-x0

		if a.Method == Forward {
			x := x0 + h[i]
			violated := x < lb || x > ub
			fitting := math.Abs(h[i]) < math.Max(ld, ud)
			switch {
			case violated && fitting:
				h[i] = -h[i]
			case !fitting && ud >= ld:
				h[i] = ud
			case !fitting:
				h[i] = -ld
			}
			continue
		}

		central := ld >= h[i] && ud >= h[i]
		if !central {
			if ud >= ld {
				h[i] = math.Min(h[i], 0.5*ud)
			} else {
				h[i] = -math.Min(h[i], 0.5*ld)
			}
			o[i] = true
		}
		minDist := math.Min(ud, ld)
		if !central && math.Abs(h[i]) <= minDist {
			h[i] = minDist
			o[i] = false
		}
	}
}

func (a *Approx) approxForward(dst *mat.Dense, fn Func) {
	x, f0, fx := a.x, a.f0, a.f1
	fn(x, f0)
	for i, s := range a.step {
		t := x[i]
		x[i] = t + s
		fn(x, fx)
		d := 1.0 / s
		for j := range f0 {
			dst.Set(j, i, (fx[j]-f0[j])*d)
		}
		x[i] = t
	}
}

func (a *Approx) approxCentral(dst *mat.Dense, fn Func) {
	x, f0, f1, f2 := a.x, a.f0, a.f1, a.f2
	fn(x, f0)
	for i, s := range a.step {
		t := x[i]
		d := 1.0 / (2 * s)
		if a.oneSide[i] {
			x[i] = t + s
			fn(x, f1)
			x[i] = t + 2*s
			fn(x, f2)
			for j := range f0 {
				dst.Set(j, i, (4*f1[j]-3*f0[j]-f2[j])*d)
			}
		} else {
			x[i] = t - s
			fn(x, f1)
			x[i] = t + s
			fn(x, f2)
			for j := range f0 {
				dst.Set(j, i, (f2[j]-f1[j])*d)
			}
		}
		x[i] = t
	}
}

// Value returns fn evaluated at the last point passed to Jacobian.
// The result is only valid until the next call.
func (a *Approx) Value() []float64 { return a.f0 }
