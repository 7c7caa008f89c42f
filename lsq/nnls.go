// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lsq

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// nnls solves 𝚖𝚒𝚗 ‖ 𝐀𝐱 - 𝐛 ‖₂ subject to 𝐱 ≥ 0 with the Lawson-Hanson active-set method.
//   - 𝐀 is m × n column-major with contiguous columns, there is no restriction on its rank
//   - 𝐱 ∈ ℝⁿ
//   - 𝐛 ∈ ℝᵐ
//
// The columns are split into the passive set ℙ (𝐱ⱼ > 0, free) and the active set ℤ (𝐱ⱼ = 0, held).
// Each outer iteration moves the column with the largest dual 𝐰ⱼ = [𝐀ᵀ(𝐛 - 𝐀𝐱)]ⱼ from ℤ to ℙ
// and triangularizes it with a Householder reflection 𝐐𝐀ₚ = [𝐑ₚᵀ:O]ᵀ. The inner loop solves
// the unconstrained sub-problem 𝐑ₚ𝐳 = (𝐐𝐛)ₚ and, while some 𝐳ⱼ ≤ 0, steps 𝐱 ← 𝐱 + α(𝐳 - 𝐱)
// to the boundary and retires the blocking column back to ℤ with Givens rotations.
//
// The columns listed in seed are moved into ℙ before the first dual evaluation, provided they
// are numerically independent of the columns already admitted. The inner loop then removes the
// ones whose coefficient turns non-positive, so a good seed saves one outer iteration per
// binding column and a bad seed costs one inner iteration per stale column.
//
// On return a holds 𝐐𝐀, b holds 𝐐𝐛, x the solution, w the dual vector.
// z (m) and index (n) are working space. Each solve of the sub-problem counts as one iteration.
//
// # References
//
//	C.L. Lawson, R.J. Hanson, 'Solving least squares problems' Prentice Hall, 1974. (revised 1995 edition)
//	Chapters 23, Algorithm 23.10.
func nnls(
	m, n int,
	a, b []float64,
	x, w []float64,
	z []float64, index []int,
	seed []int,
	maxIter int,
) (rnorm float64, iter int, mode Status) {

	const factor = 0.01

	if m <= 0 || n <= 0 || len(a) < m*n || len(b) < m || len(x) < n || len(w) < n || len(z) < m || len(index) < n {
		return math.NaN(), 0, BadArgument
	}
	if maxIter <= 0 {
		maxIter = 3 * n
	}

	col := func(j int) []float64 { return a[j*m : (j+1)*m : (j+1)*m] }

	// ℙ = index[:np], ℤ = index[np:]
	np := 0
	index = index[:n]
	for i := range index {
		index[i] = i
	}
	clear(x[:n])
	clear(w[:n])

	finish := func() (float64, int, Status) {
		r := 0.0
		if np < m {
			r = floats.Norm(b[np:m], 2) // ‖ (𝐐𝐛)[np:] ‖₂
		} else {
			clear(w[:n])
		}
		if iter > maxIter {
			return r, iter, ExceedMaxIter
		}
		return r, iter, Solved
	}

	// admit moves index[iz] from ℤ to ℙ when its column is sufficiently independent and,
	// if positive is set, its trial coefficient is positive.
	admit := func(iz int, positive bool) bool {
		j := index[iz]
		aj := col(j)
		pivot := aj[np]
		up := householder(np, np+1, aj)
		unorm := floats.Norm(aj[:np], 2)

		ok := aj[np] != 0 && math.Abs(aj[np])*factor > unorm*eps
		if ok {
			copy(z[:m], b[:m])
			applyReflector(np, np+1, aj, up, z[:m])
			if positive {
				ok = z[np]/aj[np] > 0
			}
		}
		if !ok {
			aj[np] = pivot
			return false
		}

		copy(b[:m], z[:m])
		index[iz], index[np] = index[np], j
		np++
		for _, jj := range index[np:] {
			applyReflector(np-1, np, aj, up, col(jj))
		}
		clear(aj[np:])
		w[j] = 0
		return true
	}

	// retire moves ℙ[ip] back to ℤ and restores the triangular form of the remaining columns.
	retire := func(ip int) {
		i := index[ip]
		x[i] = 0
		for k := ip + 1; k < np; k++ {
			jj := index[k]
			cj := col(jj)
			index[k-1] = jj
			c, s, r := givens(cj[k-1], cj[k])
			cj[k-1], cj[k] = r, 0
			for l := 0; l < n; l++ {
				if l != jj {
					cl := col(l)
					cl[k-1], cl[k] = rotate(c, s, cl[k-1], cl[k])
				}
			}
			b[k-1], b[k] = rotate(c, s, b[k-1], b[k])
		}
		np--
		index[np] = i
	}

	// settle runs the inner loop until every coefficient in ℙ is positive.
	// It reports false when the iteration budget is exhausted.
	settle := func() bool {
		for {
			// 𝐑ₚ𝐳 = (𝐐𝐛)ₚ by back substitution
			for ip := np - 1; ip >= 0; ip-- {
				cj := col(index[ip])
				z[ip] /= cj[ip]
				if ip > 0 {
					floats.AddScaled(z[:ip], -z[ip], cj[:ip])
				}
			}

			if iter++; iter > maxIter {
				return false
			}

			// α = 𝚖𝚒𝚗 { 𝐱ⱼ/(𝐱ⱼ-𝐳ⱼ) : 𝐳ⱼ ≤ 0, j ∈ ℙ }
			alpha, blocking := 2.0, -1
			for ip, l := range index[:np] {
				if z[ip] <= 0 {
					t := 0.0
					if d := x[l] - z[ip]; d > 0 {
						t = x[l] / d
					}
					if t < alpha {
						alpha, blocking = t, ip
					}
				}
			}

			if blocking < 0 {
				for ip, l := range index[:np] {
					x[l] = z[ip]
				}
				return true
			}

			for ip, l := range index[:np] {
				x[l] += alpha * (z[ip] - x[l])
			}
			retire(blocking)
			copy(z[:m], b[:m])
		}
	}

	for _, j := range seed {
		if np >= m {
			break
		}
		if j < 0 || j >= n {
			continue
		}
		for iz := np; iz < n; iz++ {
			if index[iz] == j {
				admit(iz, false)
				break
			}
		}
	}
	if np > 0 {
		copy(z[:m], b[:m])
		if !settle() {
			return finish()
		}
	}

	for {
		if np >= n || np >= m {
			return finish()
		}

		// 𝐰ⱼ = [𝐀ᵀ(𝐛 - 𝐀𝐱)]ⱼ for j ∈ ℤ, which reduces to the lower part of 𝐐𝐛
		for _, j := range index[np:] {
			w[j] = floats.Dot(col(j)[np:], b[np:m])
		}

		for {
			wmax, izmax := 0.0, -1
			for iz := np; iz < n; iz++ {
				if j := index[iz]; w[j] > wmax {
					wmax, izmax = w[j], iz
				}
			}
			// 𝐰ⱼ ≤ 0 ∀j ∈ ℤ satisfies the Kuhn-Tucker conditions
			if izmax < 0 {
				return finish()
			}
			if admit(izmax, true) {
				break
			}
			w[index[izmax]] = 0
		}

		if !settle() {
			return finish()
		}
	}
}
