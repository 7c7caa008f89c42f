// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package task defines weighted linear least-squares objectives
//
//	min ‖𝐀𝒙 - 𝒃‖²𝐖
//
// over a decision vector 𝒙 ∈ ℝⁿ, each carrying the constraints that restrict it.
package task

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/constraint"
	"github.com/curioloop/wbsot/diag"
	"github.com/curioloop/wbsot/internal/linalg"
)

// ErrShapeMismatch is returned when the objective blocks disagree in size.
var ErrShapeMismatch = errors.New("task: shape mismatch")

// Task is a weighted linear objective refreshed every control cycle.
type Task interface {
	ID() string
	XSize() int

	// A returns the objective matrix, nil when the task has no row.
	A() *mat.Dense
	// B returns the objective vector.
	B() *mat.VecDense
	// Weight returns the square weight matrix sized to the rows of A.
	Weight() *mat.Dense

	// Lambda is the error feedback gain in [0,1] used by concrete tasks.
	Lambda() float64
	SetLambda(lambda float64)

	// Constraints returns the constraints restricting the task.
	Constraints() []constraint.Constraint
	AddConstraint(c constraint.Constraint)
	RemoveConstraint(c constraint.Constraint) bool

	// Update recomputes the task and its constraints for the decision vector x.
	Update(x mat.Vector)
}

// Base stores the content of a task and validates it on write.
// It is meant to be embedded by concrete tasks.
type Base struct {
	id     string
	xSize  int
	a      *mat.Dense
	b      *mat.VecDense
	w      *mat.Dense
	custom bool // w was injected with SetWeight
	lambda float64

	constraints []constraint.Constraint
}

// NewBase returns an empty task with unit gain.
func NewBase(id string, xSize int) Base {
	return Base{id: id, xSize: xSize, lambda: 1}
}

func (t *Base) ID() string { return t.id }

func (t *Base) XSize() int { return t.xSize }

func (t *Base) A() *mat.Dense { return t.a }

func (t *Base) B() *mat.VecDense { return t.b }

func (t *Base) Weight() *mat.Dense { return t.w }

func (t *Base) Lambda() float64 { return t.lambda }

// SetLambda sets the gain clamped to [0,1].
func (t *Base) SetLambda(lambda float64) {
	t.lambda = min(max(lambda, 0), 1)
}

// SetObjective replaces A and b. An injected weight is kept while it still
// fits the row count, otherwise the weight reverts to the identity.
func (t *Base) SetObjective(A mat.Matrix, b mat.Vector) error {
	r, c := linalg.Dims(A)
	switch {
	case r != linalg.Len(b):
		return fmt.Errorf("%w: %s has %d rows but %d targets", ErrShapeMismatch, t.id, r, linalg.Len(b))
	case r != 0 && c != t.xSize:
		return fmt.Errorf("%w: %s has %d columns over %d variables", ErrShapeMismatch, t.id, c, t.xSize)
	}
	if r == 0 {
		t.a, t.b = nil, nil
	} else {
		t.a = linalg.CloneMatrix(A)
		t.b = linalg.CloneVector(b)
	}
	if !t.custom || linalg.Rows(t.w) != r {
		t.custom = false
		t.w = linalg.Identity(r)
	}
	return nil
}

// SetB replaces the objective vector only.
func (t *Base) SetB(b mat.Vector) error {
	if n := linalg.Len(b); n != linalg.Rows(t.a) {
		return fmt.Errorf("%w: %s has %d rows but %d targets", ErrShapeMismatch, t.id, linalg.Rows(t.a), n)
	}
	t.b = linalg.CloneVector(b)
	return nil
}

// SetWeight injects a square weight sized to the rows of A.
func (t *Base) SetWeight(W mat.Matrix) error {
	r, c := linalg.Dims(W)
	if n := linalg.Rows(t.a); r != n || c != n {
		return fmt.Errorf("%w: %s weight is %d×%d for %d rows", ErrShapeMismatch, t.id, r, c, n)
	}
	t.w = linalg.CloneMatrix(W)
	t.custom = r > 0
	return nil
}

// Constraints returns a copy of the attached constraints.
func (t *Base) Constraints() []constraint.Constraint {
	return slices.Clone(t.constraints)
}

// AddConstraint attaches c, a constraint already attached is ignored.
func (t *Base) AddConstraint(c constraint.Constraint) {
	if !slices.Contains(t.constraints, c) {
		t.constraints = append(t.constraints, c)
	}
}

// RemoveConstraint detaches c and reports whether it was attached.
func (t *Base) RemoveConstraint(c constraint.Constraint) bool {
	i := slices.Index(t.constraints, c)
	if i < 0 {
		return false
	}
	t.constraints = slices.Delete(t.constraints, i, i+1)
	return true
}

// UpdateConstraints updates every attached constraint with x.
func (t *Base) UpdateConstraints(x mat.Vector) {
	for _, c := range t.constraints {
		c.Update(x)
	}
}

// Update refreshes the attached constraints, the objective of a static task is kept.
func (t *Base) Update(x mat.Vector) {
	t.UpdateConstraints(x)
}

// Log publishes the objective of t to rec under <id>_A, <id>_b and <id>_W.
func Log(t Task, rec diag.Recorder) {
	if linalg.IsEmpty(t.A()) {
		return
	}
	rec.Add(t.ID()+"_A", t.A())
	rec.Add(t.ID()+"_b", t.B())
	rec.Add(t.ID()+"_W", t.Weight())
}
