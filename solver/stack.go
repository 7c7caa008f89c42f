// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package solver resolves a stack of tasks in strict priority order.
//
// Level k solves
//
//	min   ½𝒙ᵀ𝐀ₖᵀ𝐖ₖ𝐀ₖ𝒙 - 𝒃ₖᵀ𝐖ₖ𝐀ₖ𝒙
//	s.t.  𝐀ⱼ𝒙 = 𝐀ⱼ𝒙ⱼ*        j < k
//	      constraints of level k
//
// so the optimum of every higher priority level is kept while lower levels
// use the remaining freedom. Each level owns one qp.Backend reused across
// control cycles.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/constraint"
	"github.com/curioloop/wbsot/diag"
	"github.com/curioloop/wbsot/internal/linalg"
	"github.com/curioloop/wbsot/qp"
	"github.com/curioloop/wbsot/task"
)

// Stack is a hierarchy of tasks, index 0 has the highest priority.
type Stack struct {
	levels   []task.Task
	bounds   constraint.Constraint
	opts     qp.Options
	log      *slog.Logger
	backends []*qp.Backend
	x        *mat.VecDense
	xSize    int
}

// NewStack builds a stack over levels sharing the same decision vector.
// bounds is an optional constraint applied to every level.
func NewStack(levels []task.Task, bounds constraint.Constraint, opts qp.Options) (*Stack, error) {
	if len(levels) == 0 {
		return nil, errors.New("solver: empty stack")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	n := levels[0].XSize()
	for _, t := range levels {
		if t.XSize() != n {
			return nil, fmt.Errorf("solver: level %s has %d variables, stack has %d", t.ID(), t.XSize(), n)
		}
	}
	if bounds != nil && bounds.XSize() != n {
		return nil, fmt.Errorf("solver: bounds %s over %d variables, stack has %d", bounds.ID(), bounds.XSize(), n)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Infinity == 0 {
		opts.Infinity = qp.DefaultOptions().Infinity
	}
	return &Stack{
		levels:   levels,
		bounds:   bounds,
		opts:     opts,
		log:      log,
		backends: make([]*qp.Backend, len(levels)),
		xSize:    n,
	}, nil
}

// Levels returns the number of priority levels.
func (s *Stack) Levels() int { return len(s.levels) }

// Backend returns the backend of level k, nil before the first Solve.
func (s *Stack) Backend(k int) *qp.Backend { return s.backends[k] }

// Update refreshes every level and the global bounds at the state x.
func (s *Stack) Update(x mat.Vector) {
	for _, t := range s.levels {
		t.Update(x)
	}
	if s.bounds != nil {
		s.bounds.Update(x)
	}
}

// Solve resolves the levels in order with their current content and returns
// the solution of the last level. The first failing level aborts the solve.
func (s *Stack) Solve() (*mat.VecDense, error) {
	var eqA []mat.Matrix
	var eqB []mat.Vector
	var cs []constraint.Constraint
	var x *mat.VecDense

	for k, t := range s.levels {
		// constraints of higher levels stay in force
		for _, c := range t.Constraints() {
			if !slices.Contains(cs, c) {
				cs = append(cs, c)
			}
		}
		p := s.level(t, cs, eqA, eqB)
		b, err := s.solveLevel(k, p)
		if err != nil {
			return nil, fmt.Errorf("solver: level %d (%s): %w", k, t.ID(), err)
		}
		x = b.Solution()

		if A := t.A(); !linalg.IsEmpty(A) {
			target := mat.NewVecDense(linalg.Rows(A), nil)
			target.MulVec(A, x)
			eqA = append(eqA, A)
			eqB = append(eqB, target)
		}
		s.log.LogAttrs(context.Background(), slog.LevelDebug, "level solved",
			slog.Int("level", k),
			slog.String("task", t.ID()),
			slog.String("tier", b.LastTier().String()),
			slog.Int("iterations", b.Iterations()),
			slog.Int("constraints", p.rows()))
	}
	s.x = x
	return mat.VecDenseCopyOf(x), nil
}

func (s *Stack) solveLevel(k int, p *problem) (*qp.Backend, error) {
	b := s.backends[k]
	if b == nil {
		var err error
		if b, err = qp.NewBackend(s.xSize, p.rows(), s.opts); err != nil {
			return nil, err
		}
		s.backends[k] = b
	}
	// a change of shape goes through a fresh Init so the rebuilt instance
	// starts from the current objective
	if b.State() == qp.Uninitialized || b.NumConstraints() != p.rows() || linalg.Len(b.L()) != linalg.Len(p.l) {
		return b, b.Init(p.H, p.g, p.A, p.lA, p.uA, p.l, p.u)
	}
	if err := b.UpdateProblem(p.H, p.g, p.A, p.lA, p.uA, p.l, p.u); err != nil {
		return b, err
	}
	return b, b.Solve()
}

// Solution returns a copy of the last solution, nil before the first success.
func (s *Stack) Solution() *mat.VecDense {
	if s.x == nil {
		return nil
	}
	return mat.VecDenseCopyOf(s.x)
}

// Log publishes every level backend to rec, the suffix is the level index.
func (s *Stack) Log(rec diag.Recorder) {
	for k, b := range s.backends {
		if b != nil {
			b.Log(rec, k)
		}
	}
}

// problem is the QP of one level.
type problem struct {
	H      *mat.Dense
	g      *mat.VecDense
	A      *mat.Dense
	lA, uA *mat.VecDense
	l, u   *mat.VecDense
}

func (p *problem) rows() int { return linalg.Rows(p.A) }

// level assembles the QP of task t restricted by cs and by the optimality
// rows eqA·x = eqB of the levels above.
func (s *Stack) level(t task.Task, cs []constraint.Constraint, eqA []mat.Matrix, eqB []mat.Vector) *problem {
	n, inf := s.xSize, s.opts.Infinity
	p := &problem{H: mat.NewDense(n, n, nil), g: mat.NewVecDense(n, nil)}

	// H = AᵀWA, g = -AᵀWb
	if A := t.A(); !linalg.IsEmpty(A) {
		var AtW mat.Dense
		AtW.Mul(A.T(), t.Weight())
		p.H.Mul(&AtW, A)
		p.g.MulVec(&AtW, t.B())
		p.g.ScaleVec(-1, p.g)
	}

	rows := []mat.Matrix{}
	lower := []mat.Vector{}
	upper := []mat.Vector{}
	for i, A := range eqA {
		rows = append(rows, A)
		lower = append(lower, eqB[i])
		upper = append(upper, eqB[i])
	}

	if s.bounds != nil && !slices.Contains(cs, s.bounds) {
		cs = append(cs[:len(cs):len(cs)], s.bounds)
	}
	for _, c := range cs {
		if constraint.HasBounds(c) {
			p.mergeBounds(c, n, inf)
		}
		if constraint.IsEquality(c) {
			rows = append(rows, c.Aeq())
			lower = append(lower, c.Beq())
			upper = append(upper, c.Beq())
		}
		if constraint.IsInequality(c) {
			m := linalg.Rows(c.Aineq())
			rows = append(rows, c.Aineq())
			lower = append(lower, side(c.BLowerBound(), m, -inf))
			upper = append(upper, side(c.BUpperBound(), m, inf))
		}
	}

	p.A = linalg.VStack(n, rows...)
	p.lA = linalg.Concat(lower...)
	p.uA = linalg.Concat(upper...)
	return p
}

// mergeBounds intersects the bounds of c with the bounds gathered so far.
func (p *problem) mergeBounds(c constraint.Constraint, n int, inf float64) {
	if p.l == nil {
		p.l = mat.NewVecDense(n, nil)
		p.u = mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			p.l.SetVec(i, -inf)
			p.u.SetVec(i, inf)
		}
	}
	if lb := c.LowerBound(); linalg.Len(lb) > 0 {
		for i := 0; i < n; i++ {
			p.l.SetVec(i, math.Max(p.l.AtVec(i), lb.AtVec(i)))
		}
	}
	if ub := c.UpperBound(); linalg.Len(ub) > 0 {
		for i := 0; i < n; i++ {
			p.u.SetVec(i, math.Min(p.u.AtVec(i), ub.AtVec(i)))
		}
	}
}

// side returns v, or m copies of fill when the side is missing.
func side(v *mat.VecDense, m int, fill float64) mat.Vector {
	if linalg.Len(v) > 0 {
		return v
	}
	s := mat.NewVecDense(m, nil)
	for i := 0; i < m; i++ {
		s.SetVec(i, fill)
	}
	return s
}
