// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package qp implements the long-lived QP backend of a prioritized control
// stack. A Backend owns a solver instance bound to a (variables, constraints)
// shape, keeps it across control cycles and re-solves incrementally from the
// previous working set:
//
//	𝚖𝚒𝚗 ½𝐱ᵀ𝐇𝐱 + 𝐠ᵀ𝐱 subject to 𝐥 ≤ 𝐱 ≤ 𝐮 and 𝐥𝐀 ≤ 𝐀𝐱 ≤ 𝐮𝐀
//
// Values beyond the practical infinity are clamped and the side is treated as
// absent. A failed incremental solve falls back to a warm re-initialization
// seeded with the previous primal and dual solution, then to a cold start.
package qp

import (
	"errors"
	"log/slog"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/internal/linalg"
)

// Backend solves a sequence of QP problems sharing a solver instance.
// A Backend is not safe for concurrent use.
type Backend struct {
	opts    Options
	log     *slog.Logger
	hessian HessianType
	state   State

	prob problem
	inst *instance

	x      []float64
	y      []float64
	status []Status
	solved bool
	tier   Tier
	iter   int
}

// NewBackend creates a backend for numVariables variables and numConstraints
// constraint rows. The shape adapts later when Init or an update changes it.
func NewBackend(numVariables, numConstraints int, opts Options) (*Backend, error) {
	if numVariables <= 0 || numConstraints < 0 {
		return nil, shapeError("backend shape %d×%d", numConstraints, numVariables)
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{
		opts: opts,
		log:  opts.Logger.With("component", "qp"),
	}
	b.prob.n, b.prob.m = numVariables, numConstraints
	b.inst = newInstance(numVariables, numConstraints)
	return b, nil
}

// Init loads a new problem and solves it from scratch.
//
// A, lA and uA may be nil when there is no constraint row, l and u may be nil
// when the variables are free. On failure the error is returned and the cached
// solution of a previous problem is kept.
func (b *Backend) Init(H mat.Matrix, g mat.Vector, A mat.Matrix, lA, uA mat.Vector, l, u mat.Vector) error {
	p, err := newProblem(H, g, A, lA, uA, l, u)
	if err != nil {
		b.log.Warn("rejecting qp problem", "error", err)
		return err
	}
	return b.load(p, "init")
}

// load replaces the cached problem, rebuilding the instance on a shape change,
// and runs a cold solve.
func (b *Backend) load(p *problem, cause string) error {
	if b.inst == nil || p.n != b.inst.n || p.m != b.inst.m {
		if b.inst != nil {
			b.log.Debug("rebuilding solver instance", "cause", cause,
				"variables", p.n, "constraints", p.m,
				"previous_variables", b.inst.n, "previous_constraints", b.inst.m)
		}
		rebuildTotal.WithLabelValues(cause).Inc()
		b.inst = newInstance(p.n, p.m)
		b.x, b.y, b.status = nil, nil, nil
	}
	b.prob = *p
	b.inst.invalidate()
	b.state = Initialized
	b.solved = false
	return b.solve()
}

// UpdateTask replaces the objective. H must be square and g must match it.
// A Hessian of the current size is updated in place. A Hessian of another size
// changes the variable count: the solver instance is rebuilt and Init re-runs
// with the cached constraints and bounds. Their column count and size must
// equal the new variable count, otherwise ErrShapeMismatch is returned and the
// cached problem is left untouched.
func (b *Backend) UpdateTask(H mat.Matrix, g mat.Vector) error {
	if b.state == Uninitialized {
		return ErrNotInitialized
	}
	n, c := linalg.Dims(H)
	if n == 0 || n != c {
		return shapeError("hessian is %d×%d", n, c)
	}
	if ng := linalg.Len(g); ng != n {
		return shapeError("gradient size %d, want %d", ng, n)
	}

	if n == b.prob.n {
		b.prob.h = linalg.Data(b.prob.h, H)
		b.prob.g = linalg.VecData(b.prob.g, g)
		b.inst.invalidate()
		return nil
	}

	p := b.prob.clone()
	p.n = n
	p.h = linalg.Data(nil, H)
	p.g = linalg.VecData(nil, g)
	if err := p.validate(); err != nil {
		return err
	}
	return b.load(p, "task")
}

// UpdateConstraints replaces the constraint block. The same row count is
// updated in place; a different one rebuilds the solver instance and re-runs
// Init. The column count must match the variable count.
func (b *Backend) UpdateConstraints(A mat.Matrix, lA, uA mat.Vector) error {
	if b.state == Uninitialized {
		return ErrNotInitialized
	}
	m, c := linalg.Dims(A)
	if nl, nu := linalg.Len(lA), linalg.Len(uA); nl != m || nu != m {
		return shapeError("constraint bounds sizes %d and %d, want %d", nl, nu, m)
	}
	if m > 0 && c != b.prob.n {
		return shapeError("constraint matrix has %d columns, want %d", c, b.prob.n)
	}

	if m == b.prob.m {
		b.prob.a = linalg.Data(b.prob.a, A)
		b.prob.la = linalg.VecData(b.prob.la, lA)
		b.prob.ua = linalg.VecData(b.prob.ua, uA)
		return nil
	}

	p := b.prob.clone()
	p.m = m
	p.a = linalg.Data(nil, A)
	p.la = linalg.VecData(nil, lA)
	p.ua = linalg.VecData(nil, uA)
	return b.load(p, "constraints")
}

// UpdateBounds replaces the bounds in place. Their sizes must not change.
func (b *Backend) UpdateBounds(l, u mat.Vector) error {
	if b.state == Uninitialized {
		return ErrNotInitialized
	}
	if nl, nu := linalg.Len(l), linalg.Len(u); nl != len(b.prob.l) || nu != len(b.prob.u) {
		return shapeError("bound sizes %d and %d, want %d", nl, nu, len(b.prob.l))
	}
	b.prob.l = linalg.VecData(b.prob.l, l)
	b.prob.u = linalg.VecData(b.prob.u, u)
	return nil
}

// UpdateProblem updates the bounds, then the constraints, then the task, and
// stops at the first failure.
func (b *Backend) UpdateProblem(H mat.Matrix, g mat.Vector, A mat.Matrix, lA, uA mat.Vector, l, u mat.Vector) error {
	if err := b.UpdateBounds(l, u); err != nil {
		return err
	}
	if err := b.UpdateConstraints(A, lA, uA); err != nil {
		return err
	}
	return b.UpdateTask(H, g)
}

// Solve solves the cached problem. It starts from the working set of the last
// solution, falls back to a re-initialization seeded with the last primal and
// dual solution, and finally to a cold start. Any succeeding stage is a success.
func (b *Backend) Solve() error {
	if b.state == Uninitialized {
		return ErrNotInitialized
	}
	return b.solve()
}

func (b *Backend) solve() error {
	start := time.Now()
	b.state = Solving
	defer func() {
		b.state = Initialized
		solveDuration.Observe(time.Since(start).Seconds())
	}()

	p, in := &b.prob, b.inst
	p.clamp(b.opts.Infinity)
	if err := p.checkOrder(b.opts.Tolerance); err != nil {
		observeAttempt(TierColdInit, err)
		b.report(err)
		return err
	}
	if err := in.prepare(p, b.hessian, b.opts); err != nil {
		observeAttempt(TierColdInit, err)
		b.report(err)
		return err
	}

	tiers := []Tier{TierColdInit}
	if b.solved {
		tiers = []Tier{TierHotStart, TierWarmInit, TierColdInit}
	}

	var err error
	for _, t := range tiers {
		var seed []int
		switch t {
		case TierHotStart:
			seed = in.hotSeed(b.status, b.y)
		case TierWarmInit:
			seed = in.warmSeed(b.x, b.y, b.opts.Tolerance)
		}
		err = in.run(p, seed, b.opts.MaxWorkingSetRecalculations, b.opts.Tolerance)
		observeAttempt(t, err)
		if err == nil {
			if t != tiers[0] {
				b.log.Debug("qp solve recovered", "tier", t, "iterations", in.iter)
			}
			b.commit(t)
			return nil
		}
		b.log.Debug("qp solve stage failed", "tier", t, "error", err)
	}

	b.report(err)
	return err
}

// commit copies the instance result into the solution caches, resizing them
// when the shape changed.
func (b *Backend) commit(t Tier) {
	in := b.inst
	b.x = append(b.x[:0], in.x...)
	b.y = append(b.y[:0], in.y...)
	b.status = append(b.status[:0], in.status...)
	b.solved = true
	b.tier = t
	b.iter = in.iter
	solveIterations.Observe(float64(in.iter))
}

// report logs a failed solve. Diagnostics add the conflicting rows and the
// size of the last working set.
func (b *Backend) report(err error) {
	attrs := []any{"error", err, "variables", b.prob.n, "constraints", b.prob.m}
	if b.opts.Diagnostics {
		var ie *InfeasibleError
		if errors.As(err, &ie) {
			attrs = append(attrs, "conflict_bounds", ie.Bounds, "conflict_constraints", ie.Constraints,
				"inverted", ie.Inverted)
		}
		attrs = append(attrs, "iterations", b.inst.iter, "working_set", b.activeCount(),
			"hessian", b.hessian)
	}
	b.log.Warn("qp solve failed", attrs...)
}

func (b *Backend) activeCount() (n int) {
	for _, s := range b.status {
		if s != Inactive {
			n++
		}
	}
	return
}

// Close releases the solver instance. The backend must be initialized again before use.
func (b *Backend) Close() {
	b.inst = nil
	b.state = Uninitialized
	b.solved = false
	b.x, b.y, b.status = nil, nil, nil
	b.tier, b.iter = TierNone, 0
}

// State returns the lifecycle state.
func (b *Backend) State() State { return b.state }

// NumVariables returns the variable count of the current shape.
func (b *Backend) NumVariables() int { return b.prob.n }

// NumConstraints returns the constraint row count of the current shape.
func (b *Backend) NumConstraints() int { return b.prob.m }

// LastTier returns the stage that produced the cached solution.
func (b *Backend) LastTier() Tier { return b.tier }

// Iterations returns the working set recalculations of the cached solution.
func (b *Backend) Iterations() int { return b.iter }

// NWSR returns the maximum number of working set recalculations.
func (b *Backend) NWSR() int { return b.opts.MaxWorkingSetRecalculations }

// SetNWSR sets the maximum number of working set recalculations per stage.
func (b *Backend) SetNWSR(n int) {
	if n > 0 {
		b.opts.MaxWorkingSetRecalculations = n
	}
}

// HessianType returns the declared Hessian structure.
func (b *Backend) HessianType() HessianType { return b.hessian }

// SetHessianType declares the Hessian structure used from the next solve on.
func (b *Backend) SetHessianType(t HessianType) {
	if t != b.hessian {
		b.hessian = t
		if b.inst != nil {
			b.inst.invalidate()
		}
	}
}

// Options returns the current options.
func (b *Backend) Options() Options { return b.opts }

// SetOptions replaces the options from the next solve on.
func (b *Backend) SetOptions(opts Options) error {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.RegularisationScale != b.opts.RegularisationScale && b.inst != nil {
		b.inst.invalidate()
	}
	b.opts = opts
	b.log = opts.Logger.With("component", "qp")
	return nil
}

// H returns a copy of the Hessian.
func (b *Backend) H() *mat.Dense {
	return linalg.Matrix(b.prob.n, b.prob.n, slices.Clone(b.prob.h))
}

// G returns a copy of the gradient.
func (b *Backend) G() *mat.VecDense { return linalg.Vector(slices.Clone(b.prob.g)) }

// A returns a copy of the constraint matrix, nil without constraint rows.
func (b *Backend) A() *mat.Dense {
	return linalg.Matrix(b.prob.m, b.prob.n, slices.Clone(b.prob.a))
}

// LA returns a copy of the constraint lower bounds.
func (b *Backend) LA() *mat.VecDense { return linalg.Vector(slices.Clone(b.prob.la)) }

// UA returns a copy of the constraint upper bounds.
func (b *Backend) UA() *mat.VecDense { return linalg.Vector(slices.Clone(b.prob.ua)) }

// L returns a copy of the variable lower bounds, nil when the variables are free.
func (b *Backend) L() *mat.VecDense { return linalg.Vector(slices.Clone(b.prob.l)) }

// U returns a copy of the variable upper bounds, nil when the variables are free.
func (b *Backend) U() *mat.VecDense { return linalg.Vector(slices.Clone(b.prob.u)) }

// Solution returns a copy of the last successful primal solution, nil before the first one.
func (b *Backend) Solution() *mat.VecDense { return linalg.Vector(slices.Clone(b.x)) }

// DualSolution returns a copy of the last successful dual solution: n bound
// multipliers followed by m constraint multipliers, positive when the lower
// side is active and negative when the upper side is, such that
// 𝐇𝐱 + 𝐠 = 𝐲ₓ + 𝐀ᵀ𝐲ₐ.
func (b *Backend) DualSolution() *mat.VecDense { return linalg.Vector(slices.Clone(b.y)) }

// ActiveBounds returns the status of each variable bound at the last solution.
func (b *Backend) ActiveBounds() []Status {
	if len(b.status) < b.prob.n {
		return nil
	}
	return slices.Clone(b.status[:b.prob.n])
}

// ActiveConstraints returns the status of each constraint row at the last solution.
func (b *Backend) ActiveConstraints() []Status {
	if len(b.status) < b.prob.n {
		return nil
	}
	return slices.Clone(b.status[b.prob.n:])
}
