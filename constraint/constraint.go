// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package constraint defines the linear restrictions attached to tasks.
//
// A constraint over the decision vector 𝒙 ∈ ℝⁿ carries up to three blocks:
//
//	bounds:      𝒍 ≤ 𝒙 ≤ 𝒖
//	equality:    𝐀ₑ𝒙 = 𝒃ₑ
//	inequality:  𝒃ₗ ≤ 𝐀ᵢ𝒙 ≤ 𝒃ᵤ
//
// Any block may be empty, an empty block is reported as a nil matrix or vector.
// Constraints are shared by pointer between tasks, the pointer is the identity
// used when merging constraint lists.
package constraint

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/diag"
	"github.com/curioloop/wbsot/internal/linalg"
)

// ErrShapeMismatch is returned by the setters of Base when a block does not
// fit the decision vector or its paired block.
var ErrShapeMismatch = errors.New("constraint: shape mismatch")

// Constraint is a linear restriction over a decision vector of fixed size.
//
// Accessors are pure reads of the content computed by the last Update.
type Constraint interface {
	ID() string
	XSize() int

	LowerBound() *mat.VecDense
	UpperBound() *mat.VecDense

	Aeq() *mat.Dense
	Beq() *mat.VecDense

	Aineq() *mat.Dense
	BLowerBound() *mat.VecDense
	BUpperBound() *mat.VecDense

	// Update recomputes the content for the decision vector x.
	Update(x mat.Vector)
}

// Base stores the blocks of a constraint and validates them on write.
// It implements Constraint with a no-op Update and is meant to be embedded.
type Base struct {
	id    string
	xSize int

	lowerBound, upperBound *mat.VecDense

	aeq *mat.Dense
	beq *mat.VecDense

	aineq                    *mat.Dense
	bLowerBound, bUpperBound *mat.VecDense
}

// NewBase returns an empty constraint over xSize variables.
func NewBase(id string, xSize int) Base {
	return Base{id: id, xSize: xSize}
}

func (c *Base) ID() string { return c.id }

func (c *Base) XSize() int { return c.xSize }

func (c *Base) LowerBound() *mat.VecDense { return c.lowerBound }

func (c *Base) UpperBound() *mat.VecDense { return c.upperBound }

func (c *Base) Aeq() *mat.Dense { return c.aeq }

func (c *Base) Beq() *mat.VecDense { return c.beq }

func (c *Base) Aineq() *mat.Dense { return c.aineq }

func (c *Base) BLowerBound() *mat.VecDense { return c.bLowerBound }

func (c *Base) BUpperBound() *mat.VecDense { return c.bUpperBound }

// Update does nothing, static constraints keep their content.
func (c *Base) Update(mat.Vector) {}

// SetBounds replaces the bounds. Each side is either empty or of size XSize.
func (c *Base) SetBounds(lower, upper mat.Vector) error {
	for _, v := range [...]mat.Vector{lower, upper} {
		if n := linalg.Len(v); n != 0 && n != c.xSize {
			return fmt.Errorf("%w: %s bounds of size %d over %d variables", ErrShapeMismatch, c.id, n, c.xSize)
		}
	}
	c.lowerBound = linalg.CloneVector(lower)
	c.upperBound = linalg.CloneVector(upper)
	return nil
}

// SetEquality replaces the equality block A·x = b.
func (c *Base) SetEquality(A mat.Matrix, b mat.Vector) error {
	if err := c.checkRows(A, b); err != nil {
		return err
	}
	c.aeq = linalg.CloneMatrix(A)
	c.beq = linalg.CloneVector(b)
	return nil
}

// SetInequality replaces the inequality block lower ≤ A·x ≤ upper.
// A missing side is passed as nil.
func (c *Base) SetInequality(A mat.Matrix, lower, upper mat.Vector) error {
	if err := c.checkRows(A, lower); err != nil {
		return err
	}
	if err := c.checkRows(A, upper); err != nil {
		return err
	}
	c.aineq = linalg.CloneMatrix(A)
	c.bLowerBound = linalg.CloneVector(lower)
	c.bUpperBound = linalg.CloneVector(upper)
	return nil
}

func (c *Base) checkRows(A mat.Matrix, b mat.Vector) error {
	r, cols := linalg.Dims(A)
	n := linalg.Len(b)
	switch {
	case r == 0 && n != 0:
		return fmt.Errorf("%w: %s vector of size %d without matrix", ErrShapeMismatch, c.id, n)
	case r != 0 && cols != c.xSize:
		return fmt.Errorf("%w: %s matrix has %d columns over %d variables", ErrShapeMismatch, c.id, cols, c.xSize)
	case r != 0 && n != 0 && n != r:
		return fmt.Errorf("%w: %s matrix has %d rows but vector has %d", ErrShapeMismatch, c.id, r, n)
	}
	return nil
}

// IsEquality reports a non-empty equality block.
func IsEquality(c Constraint) bool {
	return linalg.Rows(c.Aeq()) > 0 && linalg.Len(c.Beq()) > 0
}

// IsInequality reports a non-empty inequality block with at least one side.
func IsInequality(c Constraint) bool {
	return linalg.Rows(c.Aineq()) > 0 &&
		(linalg.Len(c.BLowerBound()) > 0 || linalg.Len(c.BUpperBound()) > 0)
}

// IsUnilateral reports an inequality with exactly one side.
func IsUnilateral(c Constraint) bool {
	return IsInequality(c) &&
		(linalg.Len(c.BLowerBound()) == 0 || linalg.Len(c.BUpperBound()) == 0)
}

// IsBilateral reports an inequality with both sides.
func IsBilateral(c Constraint) bool {
	return IsInequality(c) &&
		linalg.Len(c.BLowerBound()) > 0 && linalg.Len(c.BUpperBound()) > 0
}

// IsConstraint reports a constraint with an equality or inequality block.
func IsConstraint(c Constraint) bool {
	return IsEquality(c) || IsInequality(c)
}

// HasBounds reports a constraint with at least one bound side.
func HasBounds(c Constraint) bool {
	return linalg.Len(c.LowerBound()) > 0 || linalg.Len(c.UpperBound()) > 0
}

// IsBound reports a constraint made of bounds only.
func IsBound(c Constraint) bool {
	return HasBounds(c) && !IsConstraint(c)
}

// Log publishes every non-empty block of c to rec under <id>_<block>.
func Log(c Constraint, rec diag.Recorder) {
	entries := []struct {
		name string
		m    mat.Matrix
	}{
		{"Aeq", c.Aeq()},
		{"beq", c.Beq()},
		{"Aineq", c.Aineq()},
		{"bLowerBound", c.BLowerBound()},
		{"bUpperBound", c.BUpperBound()},
		{"lowerBound", c.LowerBound()},
		{"upperBound", c.UpperBound()},
	}
	for _, e := range entries {
		if !linalg.IsEmpty(e.m) {
			rec.Add(c.ID()+"_"+e.name, e.m)
		}
	}
}
