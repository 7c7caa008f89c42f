// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lsq

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Workspace holds the scratch memory of LDP for problems with at most n variables
// and m constraint rows. A workspace is sized once and reused across solves.
type Workspace struct {
	n, m  int
	a     []float64 // (n+1)×m
	b     []float64 // n+1
	z     []float64 // n+1
	u     []float64 // m
	dual  []float64 // m
	index []int     // m
}

// NewWorkspace allocates a workspace for up to n variables and m constraint rows.
func NewWorkspace(n, m int) *Workspace {
	return &Workspace{
		n:     n,
		m:     m,
		a:     make([]float64, (n+1)*m),
		b:     make([]float64, n+1),
		z:     make([]float64, n+1),
		u:     make([]float64, m),
		dual:  make([]float64, m),
		index: make([]int, m),
	}
}

// Fits reports whether the workspace can hold a problem of n variables and m rows.
func (ws *Workspace) Fits(n, m int) bool {
	return ws != nil && n == ws.n && m <= ws.m
}

// LDP (Least Distance Programming) solves the problem 𝚖𝚒𝚗 ‖ 𝐱 ‖₂ subject to 𝐆𝐱 ≥ 𝐡.
//   - 𝐆 is m × n row-major (no assumption need to be made for its rank)
//   - 𝐱 ∈ ℝⁿ
//   - 𝐡 ∈ ℝᵐ
//
// NNLS solves LDP with the (n+1) × m matrix 𝐀 = [𝐆 : 𝐡]ᵀ and the (n+1)-vector 𝐛 = [Oₙ : 1].
// Column j of 𝐀 is row j of 𝐆 followed by 𝐡ⱼ, so rows of 𝐆 translate into NNLS columns
// one to one and seed indexes constraint rows directly.
//
// Let 𝐮 be the NNLS solution and 𝐫 = 𝐀𝐮 - 𝐛 its residual. When ‖ 𝐫 ‖₂ > 0 the solution is
// 𝐱 = 𝐆ᵀ𝐮 / (1 - 𝐡ᵀ𝐮) and the multipliers of 𝐆𝐱 ≥ 𝐡 are 𝛌 = 𝐮 / (1 - 𝐡ᵀ𝐮), which satisfy
//   - 𝐱 - 𝐆ᵀ𝛌 = 0
//   - 𝛌ⱼ ≥ 0 ∀j
//   - 𝛌ⱼ(𝐆ⱼ𝐱 - 𝐡ⱼ) = 0 ∀j
//
// When ‖ 𝐫 ‖₂ = 0 the constraints are incompatible: 𝐆ᵀ𝐮 = 0 with 𝐡ᵀ𝐮 = 1 is a certificate of
// infeasibility, and lambda returns 𝐮 so that its support names the conflicting rows.
//
// # References
//
//	C.L. Lawson, R.J. Hanson, 'Solving least squares problems' Prentice Hall, 1974. (revised 1995 edition)
//	Chapters 23, Algorithm 23.27.
func (ws *Workspace) LDP(
	m, n int,
	g, h []float64,
	x, lambda []float64,
	seed []int,
	maxIter int,
) (xnorm float64, iter int, mode Status) {

	if n <= 0 || m < 0 || !ws.Fits(n, m) || len(g) < m*n || len(h) < m || len(x) < n || len(lambda) < m {
		return math.NaN(), 0, BadArgument
	}

	clear(x[:n])
	clear(lambda[:m])
	if m == 0 {
		return 0, 0, Solved
	}

	k := n + 1
	a := ws.a[:k*m]
	for j := 0; j < m; j++ {
		cj := a[j*k : (j+1)*k]
		copy(cj[:n], g[j*n:(j+1)*n])
		cj[n] = h[j]
	}

	b := ws.b[:k]
	clear(b)
	b[n] = 1

	u := ws.u[:m]
	var rnorm float64
	rnorm, iter, mode = nnls(k, m, a, b, u, ws.dual[:m], ws.z[:k], ws.index[:m], seed, maxIter)
	if mode != Solved {
		return math.NaN(), iter, mode
	}

	fac := 1 - floats.Dot(h[:m], u) // -𝐫ₙ₊₁
	if rnorm <= 0 || math.IsNaN(fac) || fac < eps {
		copy(lambda[:m], u)
		return math.NaN(), iter, Incompatible
	}

	fac = 1 / fac
	for i, ui := range u {
		if ui == 0 {
			continue
		}
		floats.AddScaled(x[:n], ui*fac, g[i*n:(i+1)*n]) // 𝐆ᵀ𝐮 / ‖ 𝐫 ‖₂
		lambda[i] = ui * fac
	}

	xnorm = floats.Norm(x[:n], 2)
	return
}
