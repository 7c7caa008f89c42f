// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package velocity provides constraints for velocity resolved control, where
// the decision vector is the joint displacement 𝛿𝒒 over one control period.
package velocity

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/constraint"
	"github.com/curioloop/wbsot/internal/linalg"
)

// VelocityLimits bounds the displacement by ±𝒒̇ₘₐₓ·𝛿𝑡.
type VelocityLimits struct {
	constraint.Base
	dqMax, dt float64
}

// NewVelocityLimits returns static bounds for xSize joints sharing the same
// velocity limit dqMax over the control period dt.
func NewVelocityLimits(dqMax, dt float64, xSize int) (*VelocityLimits, error) {
	if dqMax < 0 || dt <= 0 {
		return nil, errors.New("velocity: limit must not less than 0 and period must greater than 0")
	}
	c := &VelocityLimits{Base: constraint.NewBase("velocity_limits", xSize), dqMax: dqMax, dt: dt}
	l := mat.NewVecDense(xSize, nil)
	u := mat.NewVecDense(xSize, nil)
	for i := 0; i < xSize; i++ {
		l.SetVec(i, -dqMax*dt)
		u.SetVec(i, dqMax*dt)
	}
	if err := c.SetBounds(l, u); err != nil {
		return nil, err
	}
	return c, nil
}

// Limit returns the velocity limit and the control period.
func (c *VelocityLimits) Limit() (dqMax, dt float64) { return c.dqMax, c.dt }

// JointLimits keeps 𝒒 + 𝛿𝒒 inside [𝒒ₘᵢₙ, 𝒒ₘₐₓ]:
//
//	σ(𝒒ₘᵢₙ - 𝒒) ≤ 𝛿𝒒 ≤ σ(𝒒ₘₐₓ - 𝒒)
//
// where σ ∈ (0,1] is the bound scaling. A scaling below one lets the joint
// approach its limit gradually.
type JointLimits struct {
	constraint.Base
	qMin, qMax *mat.VecDense
	scaling    float64
	l, u       *mat.VecDense
	err        error
}

// NewJointLimits returns joint limits evaluated at q.
func NewJointLimits(q, qMin, qMax mat.Vector) (*JointLimits, error) {
	n := linalg.Len(q)
	if n == 0 || linalg.Len(qMin) != n || linalg.Len(qMax) != n {
		return nil, fmt.Errorf("%w: joint limits over %d joints", constraint.ErrShapeMismatch, n)
	}
	for i := 0; i < n; i++ {
		if qMin.AtVec(i) > qMax.AtVec(i) {
			return nil, fmt.Errorf("velocity: joint %d has lower limit above upper limit", i)
		}
	}
	c := &JointLimits{
		Base:    constraint.NewBase("joint_limits", n),
		qMin:    mat.VecDenseCopyOf(qMin),
		qMax:    mat.VecDenseCopyOf(qMax),
		scaling: 1,
		l:       mat.NewVecDense(n, nil),
		u:       mat.NewVecDense(n, nil),
	}
	c.Update(q)
	if c.err != nil {
		return nil, c.err
	}
	return c, nil
}

// Err returns the error of the last Update. A failed Update keeps the previous bounds.
func (c *JointLimits) Err() error { return c.err }

// BoundScaling returns the scaling σ.
func (c *JointLimits) BoundScaling() float64 { return c.scaling }

// SetBoundScaling sets σ, values outside (0,1] are rejected.
// The bounds change on the next Update.
func (c *JointLimits) SetBoundScaling(s float64) error {
	if !(s > 0 && s <= 1) {
		return fmt.Errorf("velocity: bound scaling %g outside (0,1]", s)
	}
	c.scaling = s
	return nil
}

// Update recomputes the bounds at the joint position q.
func (c *JointLimits) Update(q mat.Vector) {
	if n := linalg.Len(q); n != c.XSize() {
		c.err = fmt.Errorf("%w: joint position of size %d for %d joints", constraint.ErrShapeMismatch, n, c.XSize())
		return
	}
	c.l.SubVec(c.qMin, q)
	c.l.ScaleVec(c.scaling, c.l)
	c.u.SubVec(c.qMax, q)
	c.u.ScaleVec(c.scaling, c.u)
	c.err = c.SetBounds(c.l, c.u)
}
