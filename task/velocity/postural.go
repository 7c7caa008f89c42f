// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package velocity provides tasks for velocity resolved control, where the
// decision vector is the joint displacement 𝛿𝒒 over one control period.
package velocity

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/internal/linalg"
	"github.com/curioloop/wbsot/task"
)

// Postural drives the joints towards a reference posture:
//
//	𝐀 = 𝐈,  𝒃 = λ(𝒒ᵣₑ𝒇 - 𝒒)
type Postural struct {
	task.Base
	ref *mat.VecDense
	b   *mat.VecDense
}

// NewPostural returns a postural task whose reference is q.
func NewPostural(q mat.Vector) (*Postural, error) {
	n := linalg.Len(q)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty posture", task.ErrShapeMismatch)
	}
	t := &Postural{
		Base: task.NewBase("postural", n),
		ref:  mat.VecDenseCopyOf(q),
		b:    mat.NewVecDense(n, nil),
	}
	if err := t.SetObjective(linalg.Identity(n), t.b); err != nil {
		return nil, err
	}
	t.Update(q)
	return t, nil
}

// Reference returns a copy of the reference posture.
func (t *Postural) Reference() *mat.VecDense { return mat.VecDenseCopyOf(t.ref) }

// SetReference replaces the reference posture, effective on the next Update.
func (t *Postural) SetReference(ref mat.Vector) error {
	if n := linalg.Len(ref); n != t.XSize() {
		return fmt.Errorf("%w: reference of size %d for %d joints", task.ErrShapeMismatch, n, t.XSize())
	}
	t.ref.CopyVec(ref)
	return nil
}

// Update recomputes 𝒃 at the joint position q.
func (t *Postural) Update(q mat.Vector) {
	t.b.SubVec(t.ref, q)
	t.b.ScaleVec(t.Lambda(), t.b)
	_ = t.SetB(t.b)
	t.UpdateConstraints(q)
}
