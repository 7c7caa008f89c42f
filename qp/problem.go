// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/internal/linalg"
)

// problem is the cached QP data in row-major storage:
//
//	𝚖𝚒𝚗 ½𝐱ᵀ𝐇𝐱 + 𝐠ᵀ𝐱 subject to 𝐥 ≤ 𝐱 ≤ 𝐮 and 𝐥𝐀 ≤ 𝐀𝐱 ≤ 𝐮𝐀
//
// Empty bound vectors leave the variables free.
type problem struct {
	n, m   int
	h      []float64 // n×n
	g      []float64 // n
	a      []float64 // m×n
	la, ua []float64 // m
	l, u   []float64 // n or empty
}

func newProblem(H mat.Matrix, g mat.Vector, A mat.Matrix, lA, uA, l, u mat.Vector) (*problem, error) {
	n, c := linalg.Dims(H)
	if n == 0 || n != c {
		return nil, shapeError("hessian is %d×%d", n, c)
	}
	if ng := linalg.Len(g); ng != n {
		return nil, shapeError("gradient size %d, want %d", ng, n)
	}
	m, ac := linalg.Dims(A)
	if nl, nu := linalg.Len(lA), linalg.Len(uA); nl != m || nu != m {
		return nil, shapeError("constraint bounds sizes %d and %d, want %d", nl, nu, m)
	}
	if m > 0 && ac != n {
		return nil, shapeError("constraint matrix has %d columns, want %d", ac, n)
	}
	if nl, nu := linalg.Len(l), linalg.Len(u); nl != nu {
		return nil, shapeError("bound sizes %d and %d differ", nl, nu)
	}

	p := &problem{
		n:  n,
		m:  m,
		h:  linalg.Data(nil, H),
		g:  linalg.VecData(nil, g),
		a:  linalg.Data(nil, A),
		la: linalg.VecData(nil, lA),
		ua: linalg.VecData(nil, uA),
		l:  linalg.VecData(nil, l),
		u:  linalg.VecData(nil, u),
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// validate checks the sizes of the cached blocks against n and m.
func (p *problem) validate() error {
	switch {
	case p.n <= 0 || len(p.h) != p.n*p.n || len(p.g) != p.n:
		return shapeError("objective does not match %d variables", p.n)
	case len(p.a) != p.m*p.n:
		return shapeError("constraint matrix does not match %d×%d", p.m, p.n)
	case len(p.la) != p.m || len(p.ua) != p.m:
		return shapeError("constraint bounds do not match %d rows", p.m)
	case len(p.l) != len(p.u):
		return shapeError("bound sizes %d and %d differ", len(p.l), len(p.u))
	case len(p.l) != 0 && len(p.l) != p.n:
		return shapeError("bound size %d, want %d", len(p.l), p.n)
	}
	return nil
}

func (p *problem) clone() *problem {
	return &problem{
		n:  p.n,
		m:  p.m,
		h:  slices.Clone(p.h),
		g:  slices.Clone(p.g),
		a:  slices.Clone(p.a),
		la: slices.Clone(p.la),
		ua: slices.Clone(p.ua),
		l:  slices.Clone(p.l),
		u:  slices.Clone(p.u),
	}
}

// clamp replaces values beyond the practical infinity by exactly ±inf.
func (p *problem) clamp(inf float64) {
	for _, v := range [][]float64{p.la, p.ua, p.l, p.u} {
		for i, x := range v {
			switch {
			case x > inf:
				v[i] = inf
			case x < -inf:
				v[i] = -inf
			}
		}
	}
}

// checkOrder rejects pairs whose lower side exceeds the upper side.
// The problem is infeasible by construction in that case.
func (p *problem) checkOrder(tol float64) error {
	var e InfeasibleError
	for i := range p.l {
		if inverted(p.l[i], p.u[i], tol) {
			e.Bounds = append(e.Bounds, i)
		}
	}
	for i := range p.la {
		if inverted(p.la[i], p.ua[i], tol) {
			e.Constraints = append(e.Constraints, i)
		}
	}
	if len(e.Bounds) == 0 && len(e.Constraints) == 0 {
		return nil
	}
	e.Inverted = true
	return &e
}

func inverted(lo, hi, tol float64) bool {
	return lo > hi+tol*(1+math.Abs(hi))
}

// sides returns the lower and upper side of row k, where k < n addresses the
// bound of variable k and k ≥ n the constraint row k-n.
func (p *problem) sides(k int) (lo, hi float64) {
	if k < p.n {
		if len(p.l) == 0 {
			return math.Inf(-1), math.Inf(1)
		}
		return p.l[k], p.u[k]
	}
	return p.la[k-p.n], p.ua[k-p.n]
}
