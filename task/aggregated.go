// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package task

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/constraint"
	"github.com/curioloop/wbsot/internal/linalg"
)

// Separator joins the ids of the components of an Aggregated task.
const Separator = "plus"

// Aggregated stacks several tasks into one:
//
//	    ⎡𝐀₁⎤      ⎡𝒃₁⎤      ⎡𝐖₁      ⎤
//	𝐀 = ⎢⋮ ⎥  𝒃 = ⎢⋮ ⎥  𝐖 = ⎢   ⋱    ⎥
//	    ⎣𝐀ₖ⎦      ⎣𝒃ₖ⎦      ⎣      𝐖ₖ⎦
//
// Its constraints are the union by identity of the constraints of the
// components and the constraints attached to the aggregate itself.
type Aggregated struct {
	Base
	tasks      []Task
	aggregated []constraint.Constraint
	union      []constraint.Constraint
}

// NewAggregated builds the aggregate of tasks over xSize variables.
// Every component must share xSize and the list must not be empty.
func NewAggregated(tasks []Task, xSize int) (*Aggregated, error) {
	if len(tasks) == 0 {
		return nil, errors.New("task: empty aggregation")
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		if t.XSize() != xSize {
			return nil, fmt.Errorf("%w: %s has %d variables, aggregation has %d", ErrShapeMismatch, t.ID(), t.XSize(), xSize)
		}
		ids[i] = t.ID()
	}
	a := &Aggregated{
		Base:  NewBase(strings.Join(ids, Separator), xSize),
		tasks: slices.Clone(tasks),
	}
	a.rebuild()
	return a, nil
}

// Tasks returns the components in stacking order.
func (a *Aggregated) Tasks() []Task { return slices.Clone(a.tasks) }

// Constraints returns the union computed by the last Update.
func (a *Aggregated) Constraints() []constraint.Constraint {
	return slices.Clone(a.union)
}

// OwnConstraints returns the constraints attached directly to the aggregate.
func (a *Aggregated) OwnConstraints() []constraint.Constraint {
	return a.Base.Constraints()
}

// AggregatedConstraints returns the constraints pulled from the components
// by the last Update.
func (a *Aggregated) AggregatedConstraints() []constraint.Constraint {
	return slices.Clone(a.aggregated)
}

// Update updates the components in order, then the attached constraints,
// and rebuilds the stacked objective and the constraint union.
func (a *Aggregated) Update(x mat.Vector) {
	for _, t := range a.tasks {
		t.Update(x)
	}
	a.UpdateConstraints(x)
	a.rebuild()
}

func (a *Aggregated) rebuild() {
	As := make([]mat.Matrix, len(a.tasks))
	bs := make([]mat.Vector, len(a.tasks))
	Ws := make([]mat.Matrix, len(a.tasks))
	for i, t := range a.tasks {
		As[i], bs[i], Ws[i] = t.A(), t.B(), t.Weight()
	}
	a.a = linalg.VStack(a.xSize, As...)
	a.b = linalg.Concat(bs...)
	if !a.custom || linalg.Rows(a.w) != linalg.Rows(a.a) {
		a.custom = false
		a.w = linalg.BlockDiag(Ws...)
	}

	a.aggregated = a.aggregated[:0]
	for _, t := range a.tasks {
		for _, c := range t.Constraints() {
			if !slices.Contains(a.aggregated, c) {
				a.aggregated = append(a.aggregated, c)
			}
		}
	}
	a.union = append(a.union[:0], a.aggregated...)
	for _, c := range a.constraints {
		if !slices.Contains(a.union, c) {
			a.union = append(a.union, c)
		}
	}
}
