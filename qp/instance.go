// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/lsq"
)

// rowRef maps a row of 𝐆𝐱 ≥ 𝐡 back to the bound or constraint it came from.
type rowRef struct {
	k     int  // k < n is the bound of variable k, otherwise constraint k-n
	upper bool // the row encodes the upper side with flipped sign
}

// instance is the solver bound to a fixed (n, m) shape.
//
// The strictly convex QP 𝚖𝚒𝚗 ½𝐱ᵀ𝐇𝐱 + 𝐠ᵀ𝐱 is turned into a least distance problem.
// With 𝐇 + ρ𝐈 = 𝐑ᵀ𝐑 and 𝐑ᵀ𝐟 = -𝐠 the objective is ½‖ 𝐑𝐱 - 𝐟 ‖₂ up to a constant, so
// substituting 𝐳 = 𝐑𝐱 - 𝐟 gives
//
//	𝚖𝚒𝚗 ‖ 𝐳 ‖₂ subject to 𝐆𝐑⁻¹𝐳 ≥ 𝐡 - 𝐆𝐑⁻¹𝐟
//
// where every finite side of a bound or constraint contributes one row to 𝐆𝐱 ≥ 𝐡,
// upper sides with flipped sign. The LDP multipliers 𝛌 of those rows are the QP
// multipliers, 𝐇𝐱 + 𝐠 = 𝐆ᵀ𝛌.
//
// All buffers are allocated once for the largest row count 2(n+m).
type instance struct {
	n, m int
	ws   *lsq.Workspace

	sym      *mat.SymDense
	chol     mat.Cholesky
	r        mat.TriDense
	identity bool
	factored bool

	rows   int
	ref    []rowRef
	equal  []bool    // n+m
	gRow   []float64 // rows×n
	hRow   []float64 // rows
	gt     []float64 // rows×n, 𝐆𝐑⁻¹
	ht     []float64 // rows
	f      []float64 // n
	z      []float64 // n
	lambda []float64 // rows
	seed   []int
	active []int

	x      []float64 // n
	y      []float64 // n+m
	status []Status  // n+m
	iter   int
}

func newInstance(n, m int) *instance {
	rows := 2 * (n + m)
	return &instance{
		n:      n,
		m:      m,
		ws:     lsq.NewWorkspace(n, rows),
		sym:    mat.NewSymDense(n, nil),
		ref:    make([]rowRef, rows),
		equal:  make([]bool, n+m),
		gRow:   make([]float64, rows*n),
		hRow:   make([]float64, rows),
		gt:     make([]float64, rows*n),
		ht:     make([]float64, rows),
		f:      make([]float64, n),
		z:      make([]float64, n),
		lambda: make([]float64, rows),
		seed:   make([]int, 0, rows),
		active: make([]int, 0, rows),
		x:      make([]float64, n),
		y:      make([]float64, n+m),
		status: make([]Status, n+m),
	}
}

// invalidate drops the Hessian factorization.
func (in *instance) invalidate() {
	in.factored = false
}

// factorize computes 𝐑 from the regularized Hessian unless it is still valid.
func (in *instance) factorize(p *problem, ht HessianType, reg float64) error {
	if in.factored {
		return nil
	}
	if in.identity = ht == HessianIdentity; in.identity {
		in.factored = true
		return nil
	}

	n := in.n
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (p.h[i*n+j] + p.h[j*n+i])
			if i == j {
				v += reg
			}
			in.sym.SetSym(i, j, v)
		}
	}
	if !in.chol.Factorize(in.sym) {
		return fmt.Errorf("%w: hessian is not positive definite after regularization", ErrDegenerate)
	}
	in.chol.UTo(&in.r)
	in.factored = true
	return nil
}

// prepare factorizes the Hessian and assembles the least distance problem.
func (in *instance) prepare(p *problem, ht HessianType, opts Options) error {
	if err := in.factorize(p, ht, opts.regularisation()); err != nil {
		return err
	}
	in.assemble(p, opts.Infinity, opts.Tolerance)

	n, rows := in.n, in.rows

	// 𝐑ᵀ𝐟 = -𝐠
	for i, v := range p.g {
		in.f[i] = -v
	}
	copy(in.gt[:rows*n], in.gRow[:rows*n])
	if !in.identity {
		tri := in.r.RawTriangular()
		blas64.Trsv(blas.Trans, tri, blas64.Vector{N: n, Data: in.f, Inc: 1})
		if rows > 0 {
			blas64.Trsm(blas.Right, blas.NoTrans, 1, tri,
				blas64.General{Rows: rows, Cols: n, Stride: n, Data: in.gt[:rows*n]})
		}
	}

	// 𝐡 - 𝐆𝐑⁻¹𝐟
	for r := 0; r < rows; r++ {
		in.ht[r] = in.hRow[r] - floats.Dot(in.gt[r*n:(r+1)*n], in.f)
	}
	return nil
}

// assemble turns every finite side into a row of 𝐆𝐱 ≥ 𝐡.
func (in *instance) assemble(p *problem, inf, tol float64) {
	n := in.n
	rows := 0
	add := func(k int, upper bool, coef []float64, side float64) {
		row := in.gRow[rows*n : (rows+1)*n]
		if coef == nil {
			clear(row)
			if upper {
				row[k] = -1
			} else {
				row[k] = 1
			}
		} else if upper {
			for j, v := range coef {
				row[j] = -v
			}
		} else {
			copy(row, coef)
		}
		if upper {
			side = -side
		}
		in.hRow[rows] = side
		in.ref[rows] = rowRef{k: k, upper: upper}
		rows++
	}

	for k := 0; k < n+in.m; k++ {
		lo, hi := p.sides(k)
		var coef []float64
		if k >= n {
			coef = p.a[(k-n)*n : (k-n+1)*n]
		}
		hasLo, hasHi := lo > -inf, hi < inf
		in.equal[k] = hasLo && hasHi && math.Abs(hi-lo) <= tol*(1+math.Abs(lo))
		if hasLo {
			add(k, false, coef, lo)
		}
		if hasHi {
			add(k, true, coef, hi)
		}
	}
	in.rows = rows
}

// hotSeed selects the rows of the cached working set.
func (in *instance) hotSeed(status []Status, y []float64) []int {
	seed := in.seed[:0]
	if len(status) != in.n+in.m || len(y) != in.n+in.m {
		return seed
	}
	for r, ref := range in.ref[:in.rows] {
		switch status[ref.k] {
		case Lower:
			if !ref.upper {
				seed = append(seed, r)
			}
		case Upper:
			if ref.upper {
				seed = append(seed, r)
			}
		case Equality:
			if ref.upper == (y[ref.k] < 0) {
				seed = append(seed, r)
			}
		}
	}
	in.seed = seed
	return seed
}

// warmSeed selects the rows that are tight at x under the current data and
// whose multiplier in y does not carry the sign of the opposite side.
func (in *instance) warmSeed(x, y []float64, tol float64) []int {
	seed := in.seed[:0]
	if len(x) != in.n || len(y) != in.n+in.m {
		return seed
	}
	n := in.n
	for r, ref := range in.ref[:in.rows] {
		opposite := (y[ref.k] < 0 && !ref.upper) || (y[ref.k] > 0 && ref.upper)
		h := in.hRow[r]
		slack := floats.Dot(in.gRow[r*n:(r+1)*n], x) - h
		if !opposite && math.Abs(slack) <= tol*(1+math.Abs(h)) {
			seed = append(seed, r)
		}
	}
	in.seed = seed
	return seed
}

// run solves the assembled problem from the given seed within maxIter working
// set recalculations and fills x, y and status on success.
func (in *instance) run(p *problem, seed []int, maxIter int, tol float64) error {
	n, rows := in.n, in.rows

	_, iter, mode := in.ws.LDP(rows, n, in.gt, in.ht, in.z, in.lambda, seed, maxIter)
	in.iter = iter
	switch mode {
	case lsq.Solved:
	case lsq.ExceedMaxIter:
		return fmt.Errorf("%w: %d iterations", ErrBudgetExceeded, iter)
	case lsq.Incompatible:
		return in.conflict()
	default:
		return fmt.Errorf("%w: %v", ErrDegenerate, mode)
	}

	// 𝐑𝐱 = 𝐳 + 𝐟
	floats.AddTo(in.x, in.z, in.f)
	if !in.identity {
		blas64.Trsv(blas.NoTrans, in.r.RawTriangular(), blas64.Vector{N: n, Data: in.x, Inc: 1})
	}
	scale := 1.0
	if !in.polish(p, tol) {
		scale = in.conditioning()
	}

	clear(in.y)
	for r, ref := range in.ref[:rows] {
		if l := in.lambda[r]; l > 0 {
			if ref.upper {
				in.y[ref.k] -= l
			} else {
				in.y[ref.k] += l
			}
		}
	}
	for k, v := range in.y {
		switch {
		case v != 0 && in.equal[k]:
			in.status[k] = Equality
		case v > 0:
			in.status[k] = Lower
		case v < 0:
			in.status[k] = Upper
		default:
			in.status[k] = Inactive
		}
	}

	if floats.HasNaN(in.x) {
		return fmt.Errorf("%w: solution is not a number", ErrDegenerate)
	}
	for r := 0; r < rows; r++ {
		h := in.hRow[r]
		if slack := floats.Dot(in.gRow[r*n:(r+1)*n], in.x) - h; slack < -scale*tol*(1+math.Abs(h)) {
			return fmt.Errorf("%w: row %d of index %d violated by %g", ErrDegenerate, r, in.ref[r].k, -slack)
		}
	}
	return nil
}

// polish re-solves the problem restricted to the rows left active by the LDP.
// Recovering 𝐱 through 𝐑⁻¹ amplifies round-off when the Hessian is definite
// only by regularization, the KKT system of the active rows
//
//	⎡ 𝐇+ρ𝐈  -𝐆ₐᵀ ⎤ ⎡ 𝐱  ⎤   ⎡ -𝐠 ⎤
//	⎣ 𝐆ₐ     𝐎  ⎦ ⎣ 𝛌ₐ ⎦ = ⎣ 𝐡ₐ ⎦
//
// does not. The polished point replaces x only when its multipliers are not
// negative and it is no less feasible. polish reports whether it did.
func (in *instance) polish(p *problem, tol float64) bool {
	n := in.n
	active := in.active[:0]
	for r, l := range in.lambda[:in.rows] {
		if l > 0 {
			active = append(active, r)
		}
	}
	in.active = active
	if len(active) == 0 {
		return false
	}

	size := n + len(active)
	kkt := mat.NewDense(size, size, nil)
	rhs := mat.NewVecDense(size, nil)
	for i := 0; i < n; i++ {
		if in.identity {
			kkt.Set(i, i, 1)
		} else {
			for j := 0; j < n; j++ {
				kkt.Set(i, j, in.sym.At(i, j))
			}
		}
		rhs.SetVec(i, -p.g[i])
	}
	for a, r := range active {
		for j, v := range in.gRow[r*n : (r+1)*n] {
			kkt.Set(n+a, j, v)
			kkt.Set(j, n+a, -v)
		}
		rhs.SetVec(n+a, in.hRow[r])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return false
		}
	}
	v := make([]float64, size)
	for i := range v {
		v[i] = sol.AtVec(i)
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			return false
		}
	}
	for a, r := range active {
		if v[n+a] < -tol*(1+in.lambda[r]) {
			return false
		}
	}
	if in.violation(v[:n]) > in.violation(in.x) {
		return false
	}

	copy(in.x, v[:n])
	for a, r := range active {
		in.lambda[r] = math.Max(v[n+a], 0)
	}
	return true
}

// violation returns the largest relative violation of 𝐆𝐱 ≥ 𝐡 at x.
func (in *instance) violation(x []float64) (worst float64) {
	n := in.n
	for r := 0; r < in.rows; r++ {
		h := in.hRow[r]
		if v := (h - floats.Dot(in.gRow[r*n:(r+1)*n], x)) / (1 + math.Abs(h)); v > worst {
			worst = v
		}
	}
	return worst
}

// conditioning estimates the amplification of 𝐑⁻¹ by the spread of its diagonal.
func (in *instance) conditioning() float64 {
	if in.identity {
		return 1
	}
	lo, hi := math.Inf(1), 0.0
	for i := 0; i < in.n; i++ {
		d := math.Abs(in.r.At(i, i))
		lo, hi = math.Min(lo, d), math.Max(hi, d)
	}
	if lo == 0 {
		return math.Inf(1)
	}
	return math.Max(1, hi/lo)
}

// conflict reports the rows supporting the infeasibility certificate.
func (in *instance) conflict() error {
	var e InfeasibleError
	for r, ref := range in.ref[:in.rows] {
		if in.lambda[r] <= 0 {
			continue
		}
		if ref.k < in.n {
			e.Bounds = append(e.Bounds, ref.k)
		} else {
			e.Constraints = append(e.Constraints, ref.k-in.n)
		}
	}
	slices.Sort(e.Bounds)
	e.Bounds = slices.Compact(e.Bounds)
	slices.Sort(e.Constraints)
	e.Constraints = slices.Compact(e.Constraints)
	return &e
}
