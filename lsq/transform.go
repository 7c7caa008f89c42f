// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lsq

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// householder constructs the transformation 𝐐 = 𝐈 - b⁻¹𝐮𝐮ᵀ (b = s𝐮ₚ) that maps v to
// [v₀ ··· vₚ₋₁ s vₚ₊₁ ··· vₗ₋₁ 0 ··· 0]. The entries v[l:] are zeroed.
//
// On return v[p] holds s and v[l:] holds the tail of 𝐮, the pivot 𝐮ₚ is returned.
// When 0 ≤ p < l < len(v) does not hold, or v[p], v[l:] are all zero, the
// transformation is the identity and up is 0.
//
// C.L. Lawson, R.J. Hanson, 'Solving least squares problems' Prentice Hall, 1974. (revised 1995 edition)
// Chapters 10.
func householder(p, l int, v []float64) (up float64) {
	if p < 0 || p >= l || l >= len(v) {
		return
	}

	vmax := math.Abs(v[p])
	for _, t := range v[l:] {
		vmax = math.Max(vmax, math.Abs(t))
	}
	if vmax <= 0 {
		return
	}

	// (vₚ² + ∑vᵢ²)¹ᐟ² with v normalized by its largest magnitude
	inv := 1 / vmax
	sum := (v[p] * inv) * (v[p] * inv)
	for _, t := range v[l:] {
		sum += (t * inv) * (t * inv)
	}

	s := vmax * math.Sqrt(sum)
	if v[p] > 0 {
		s = -s
	}
	up = v[p] - s
	v[p] = s
	return
}

// applyReflector applies the transformation built by householder to c, 𝐐𝐜 = 𝐜 + b⁻¹(𝐮ᵀ𝐜)𝐮.
// Only c[p] and c[l:len(u)] are touched.
func applyReflector(p, l int, u []float64, up float64, c []float64) {
	if p < 0 || p >= l || l >= len(u) {
		return
	}
	b := u[p] * up
	if b >= 0 {
		return
	}
	m := len(u)
	sm := c[p]*up + floats.Dot(u[l:m], c[l:m])
	if sm == 0 {
		return
	}
	sm /= b
	c[p] += sm * up
	floats.AddScaled(c[l:m], sm, u[l:m])
}

// givens computes the rotation
//
//	⎡ c s⎤⎡a⎤ = ⎡r⎤
//	⎣-s c⎦⎣b⎦   ⎣0⎦
//
// with r = (a²+b²)¹ᐟ² ≥ 0.
//
// C.L. Lawson, R.J. Hanson, 'Solving least squares problems' Prentice Hall, 1974. (revised 1995 edition)
// Chapters 3.
func givens(a, b float64) (c, s, r float64) {
	switch xa, xb := math.Abs(a), math.Abs(b); {
	case xa > xb:
		t := b / a
		q := math.Sqrt(1 + t*t)
		c = math.Copysign(1/q, a)
		s = c * t
		r = xa * q
	case xb > 0:
		t := a / b
		q := math.Sqrt(1 + t*t)
		s = math.Copysign(1/q, b)
		c = s * t
		r = xb * q
	default:
		s = 1
	}
	return
}

// rotate applies a rotation computed by givens to the pair (x, y).
func rotate(c, s, x, y float64) (float64, float64) {
	return c*x + s*y, -s*x + c*y
}
