// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package velocity

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/internal/linalg"
	"github.com/curioloop/wbsot/numdiff"
	"github.com/curioloop/wbsot/task"
)

// ForwardMap computes the task space output y of the joint position q.
type ForwardMap = numdiff.Func

// Kinematic tracks a task space reference through a forward map 𝒚 = 𝒇(𝒒):
//
//	𝐀 = ∂𝒇/∂𝒒,  𝒃 = λ(𝒚ᵣₑ𝒇 - 𝒇(𝒒))
//
// The Jacobian is estimated by finite differences.
type Kinematic struct {
	task.Base
	fk     ForwardMap
	approx numdiff.Approx
	ref    *mat.VecDense
	y      *mat.VecDense
	J      *mat.Dense
	b      *mat.VecDense
	err    error
}

// NewKinematic returns a task over the m outputs of fk evaluated at q.
// The reference starts at the current output, so the task holds its pose
// until a new reference is set.
func NewKinematic(id string, q mat.Vector, m int, fk ForwardMap, method numdiff.Method) (*Kinematic, error) {
	n := linalg.Len(q)
	if n == 0 || m <= 0 {
		return nil, fmt.Errorf("%w: kinematic task with %d outputs over %d joints", task.ErrShapeMismatch, m, n)
	}
	if fk == nil {
		return nil, fmt.Errorf("velocity: nil forward map for %s", id)
	}
	t := &Kinematic{
		Base:   task.NewBase(id, n),
		fk:     fk,
		approx: numdiff.Approx{Method: method},
		ref:    mat.NewVecDense(m, nil),
		y:      mat.NewVecDense(m, nil),
		J:      mat.NewDense(m, n, nil),
		b:      mat.NewVecDense(m, nil),
	}
	if err := t.evaluate(q); err != nil {
		return nil, err
	}
	t.ref.CopyVec(t.y)
	t.b.Zero()
	if err := t.SetObjective(t.J, t.b); err != nil {
		return nil, err
	}
	return t, nil
}

// Actual returns a copy of the output at the last Update.
func (t *Kinematic) Actual() *mat.VecDense { return mat.VecDenseCopyOf(t.y) }

// Reference returns a copy of the reference output.
func (t *Kinematic) Reference() *mat.VecDense { return mat.VecDenseCopyOf(t.ref) }

// SetReference replaces the reference output, effective on the next Update.
func (t *Kinematic) SetReference(ref mat.Vector) error {
	if n := linalg.Len(ref); n != t.ref.Len() {
		return fmt.Errorf("%w: reference of size %d for %d outputs", task.ErrShapeMismatch, n, t.ref.Len())
	}
	t.ref.CopyVec(ref)
	return nil
}

// Err returns the error of the last Update. A failed Update keeps the previous objective.
func (t *Kinematic) Err() error { return t.err }

// Update evaluates the forward map and its Jacobian at q.
func (t *Kinematic) Update(q mat.Vector) {
	if t.err = t.evaluate(q); t.err == nil {
		t.err = t.SetObjective(t.J, t.b)
	}
	t.UpdateConstraints(q)
}

func (t *Kinematic) evaluate(q mat.Vector) error {
	if err := t.approx.Jacobian(t.J, t.fk, q); err != nil {
		return fmt.Errorf("velocity: %s jacobian: %w", t.ID(), err)
	}
	for i, v := range t.approx.Value() {
		t.y.SetVec(i, v)
	}
	t.b.SubVec(t.ref, t.y)
	t.b.ScaleVec(t.Lambda(), t.b)
	return nil
}
