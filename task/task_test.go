// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/constraint"
	"github.com/curioloop/wbsot/diag"
)

func vec(v ...float64) *mat.VecDense { return mat.NewVecDense(len(v), v) }

// tracking is the task 𝒙 = λ(𝒓 - 𝒙₀) evaluated at x₀.
type tracking struct {
	Base
	ref     *mat.VecDense
	updates int
}

func newTracking(t *testing.T, id string, ref *mat.VecDense) *tracking {
	n := ref.Len()
	tr := &tracking{Base: NewBase(id, n), ref: ref}
	tr.Update(mat.NewVecDense(n, nil))
	require.NotNil(t, tr.A())
	return tr
}

func (tr *tracking) Update(x mat.Vector) {
	tr.updates++
	n := tr.ref.Len()
	b := mat.NewVecDense(n, nil)
	b.SubVec(tr.ref, x)
	b.ScaleVec(tr.Lambda(), b)
	if tr.A() == nil {
		_ = tr.SetObjective(eye(n), b)
	} else {
		_ = tr.SetB(b)
	}
	tr.UpdateConstraints(x)
}

func eye(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

type counted struct {
	constraint.Base
	updates int
}

func newCounted(id string, n int) *counted {
	return &counted{Base: constraint.NewBase(id, n)}
}

func (c *counted) Update(mat.Vector) { c.updates++ }

func TestBase(t *testing.T) {
	b := NewBase("base", 2)
	assert.Nil(t, b.A())
	assert.Nil(t, b.Weight())
	assert.Equal(t, 1.0, b.Lambda())

	require.NoError(t, b.SetObjective(mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1}), vec(1, 2, 3)))
	assert.True(t, mat.Equal(eye(3), b.Weight()))

	err := b.SetObjective(mat.NewDense(3, 2, nil), vec(1, 2))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	err = b.SetObjective(mat.NewDense(2, 3, nil), vec(1, 2))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.ErrorIs(t, b.SetB(vec(1)), ErrShapeMismatch)

	W := mat.NewDense(3, 3, []float64{2, 0, 0, 0, 3, 0, 0, 0, 4})
	require.NoError(t, b.SetWeight(W))
	assert.ErrorIs(t, b.SetWeight(eye(2)), ErrShapeMismatch)

	// the injected weight survives while the rows do not change
	require.NoError(t, b.SetObjective(mat.NewDense(3, 2, nil), vec(0, 0, 0)))
	assert.True(t, mat.Equal(W, b.Weight()))
	require.NoError(t, b.SetObjective(mat.NewDense(1, 2, []float64{1, 1}), vec(0)))
	assert.True(t, mat.Equal(eye(1), b.Weight()))

	b.SetLambda(1.5)
	assert.Equal(t, 1.0, b.Lambda())
	b.SetLambda(-0.5)
	assert.Equal(t, 0.0, b.Lambda())
	b.SetLambda(0.1)
	assert.Equal(t, 0.1, b.Lambda())
}

func TestBaseConstraints(t *testing.T) {
	b := NewBase("base", 2)
	c1, c2 := newCounted("c1", 2), newCounted("c2", 2)
	b.AddConstraint(c1)
	b.AddConstraint(c2)
	b.AddConstraint(c1)
	assert.Equal(t, []constraint.Constraint{c1, c2}, b.Constraints())

	b.Update(vec(0, 0))
	assert.Equal(t, 1, c1.updates)
	assert.Equal(t, 1, c2.updates)

	assert.True(t, b.RemoveConstraint(c1))
	assert.False(t, b.RemoveConstraint(c1))
	assert.Equal(t, []constraint.Constraint{c2}, b.Constraints())
}

func TestAggregatedStack(t *testing.T) {
	t1 := newTracking(t, "postural", vec(1, 2, 3))
	t2 := newTracking(t, "postural", vec(2, 4, 6))

	agg, err := NewAggregated([]Task{t1, t2}, 3)
	require.NoError(t, err)
	assert.Equal(t, "posturalpluspostural", agg.ID())

	q := vec(0.5, 0.5, 0.5)
	for i := 0; i < 3; i++ {
		agg.Update(q)
		assert.Equal(t, "posturalpluspostural", agg.ID())
	}
	assert.Equal(t, 4, t1.updates)

	A, b := agg.A(), agg.B()
	require.NotNil(t, A)
	assert.Equal(t, 6, A.RawMatrix().Rows)
	assert.True(t, mat.Equal(t1.A(), A.Slice(0, 3, 0, 3)))
	assert.True(t, mat.Equal(t2.A(), A.Slice(3, 6, 0, 3)))
	assert.Equal(t, []float64{0.5, 1.5, 2.5, 1.5, 3.5, 5.5}, b.RawVector().Data)
	assert.True(t, mat.Equal(eye(6), agg.Weight()))
	assert.Empty(t, agg.Constraints())

	agg.SetLambda(0.1)
	assert.Equal(t, 0.1, agg.Lambda())
}

func TestAggregatedWeight(t *testing.T) {
	t1 := newTracking(t, "a", vec(1, 1))
	t2 := newTracking(t, "b", vec(1, 1))
	require.NoError(t, t2.SetWeight(mat.NewDense(2, 2, []float64{3, 0, 0, 3})))

	agg, err := NewAggregated([]Task{t1, t2}, 2)
	require.NoError(t, err)
	want := mat.NewDense(4, 4, nil)
	want.Set(0, 0, 1)
	want.Set(1, 1, 1)
	want.Set(2, 2, 3)
	want.Set(3, 3, 3)
	assert.True(t, mat.Equal(want, agg.Weight()))

	W := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		W.Set(i, i, 7)
	}
	require.NoError(t, agg.SetWeight(W))
	agg.Update(vec(0, 0))
	assert.True(t, mat.Equal(W, agg.Weight()))
}

func TestAggregatedMatchesComponent(t *testing.T) {
	ref := vec(3.14, 3.14, 3.14)
	inner := newTracking(t, "postural", ref)
	inner.SetLambda(0.1)
	agg, err := NewAggregated([]Task{inner}, 3)
	require.NoError(t, err)
	alone := newTracking(t, "postural", ref)
	alone.SetLambda(0.1)

	q := mat.NewVecDense(3, nil)
	for i := 0; i < 1000; i++ {
		alone.Update(q)
		agg.Update(q)
		require.True(t, mat.Equal(alone.A(), agg.A()))
		require.True(t, mat.Equal(alone.B(), agg.B()))
		q.AddVec(q, agg.B())
	}
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 3.14, q.AtVec(i), 1e-4)
	}
}

func TestAggregatedConstraints(t *testing.T) {
	hull, comVel := newCounted("convex_hull", 3), newCounted("com_velocity", 3)

	// own constraints only
	postural := newTracking(t, "postural", vec(0, 0, 0))
	agg0, err := NewAggregated([]Task{postural}, 3)
	require.NoError(t, err)
	agg0.AddConstraint(hull)
	agg0.AddConstraint(comVel)
	assert.Len(t, agg0.OwnConstraints(), 2)
	assert.Empty(t, agg0.Constraints(), "membership is recomputed on update")
	agg0.Update(vec(0, 0, 0))
	assert.Equal(t, []constraint.Constraint{hull, comVel}, agg0.Constraints())
	assert.Empty(t, agg0.AggregatedConstraints())

	// inherited and own
	cartesian := newTracking(t, "cartesian", vec(1, 1, 1))
	cartesian.AddConstraint(hull)
	agg1, err := NewAggregated([]Task{cartesian}, 3)
	require.NoError(t, err)
	assert.Equal(t, []constraint.Constraint{hull}, agg1.Constraints())
	agg1.AddConstraint(comVel)
	agg1.Update(vec(0, 0, 0))
	assert.Equal(t, []constraint.Constraint{hull, comVel}, agg1.Constraints())
	assert.Len(t, agg1.OwnConstraints(), 1)
	assert.Len(t, agg1.AggregatedConstraints(), 1)
	assert.Same(t, hull, agg1.Constraints()[0])
	assert.Same(t, agg0.Constraints()[0], agg1.Constraints()[0])

	// the same constraint reached through two components and attached directly
	other := newTracking(t, "other", vec(2, 2, 2))
	other.AddConstraint(hull)
	agg2, err := NewAggregated([]Task{cartesian, other}, 3)
	require.NoError(t, err)
	agg2.AddConstraint(hull)
	agg2.Update(vec(0, 0, 0))
	assert.Equal(t, []constraint.Constraint{hull}, agg2.Constraints())
	assert.Equal(t, []constraint.Constraint{hull}, agg2.OwnConstraints())
	assert.Equal(t, []constraint.Constraint{hull}, agg2.AggregatedConstraints())

	// components mutated after construction are picked up on update
	cartesian.RemoveConstraint(hull)
	other.RemoveConstraint(hull)
	agg2.RemoveConstraint(hull)
	assert.Len(t, agg2.Constraints(), 1)
	agg2.Update(vec(0, 0, 0))
	assert.Empty(t, agg2.Constraints())
}

func TestAggregatedErrors(t *testing.T) {
	_, err := NewAggregated(nil, 3)
	assert.Error(t, err)

	_, err = NewAggregated([]Task{newTracking(t, "a", vec(1, 1)), newTracking(t, "b", vec(1, 1, 1))}, 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestNestedAggregated(t *testing.T) {
	c := newCounted("shared", 2)
	a := newTracking(t, "a", vec(1, 0))
	a.AddConstraint(c)
	inner, err := NewAggregated([]Task{a}, 2)
	require.NoError(t, err)
	b := newTracking(t, "b", vec(0, 1))
	b.AddConstraint(c)
	outer, err := NewAggregated([]Task{inner, b}, 2)
	require.NoError(t, err)

	assert.Equal(t, "aplusb", outer.ID())
	outer.Update(vec(0, 0))
	assert.Equal(t, []constraint.Constraint{c}, outer.Constraints())
	assert.Equal(t, 4, outer.A().RawMatrix().Rows)
}

func TestLog(t *testing.T) {
	tr := newTracking(t, "postural", vec(1, 2))
	var rec diag.YAMLRecorder
	Log(tr, &rec)
	assert.Equal(t, 3, rec.Len())
	assert.Equal(t, [][]float64{{1}, {2}}, rec.Series("postural_b")[0].Data)

	Log(newTrackingEmpty(), &rec)
	assert.Equal(t, 3, rec.Len())
}

func newTrackingEmpty() Task {
	b := NewBase("empty", 2)
	return &b
}
