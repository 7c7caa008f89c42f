// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/diag"
)

func vec(v ...float64) *mat.VecDense { return mat.NewVecDense(len(v), v) }

func TestClassification(t *testing.T) {
	A := mat.NewDense(2, 3, []float64{1, 0, 0, 0, 1, 1})

	cases := []struct {
		name  string
		setup func(c *Base) error
		want  [7]bool // equality inequality unilateral bilateral constraint hasBounds bound
	}{
		{"empty", func(c *Base) error { return nil }, [7]bool{}},
		{"bounds", func(c *Base) error {
			return c.SetBounds(vec(-1, -1, -1), vec(1, 1, 1))
		}, [7]bool{false, false, false, false, false, true, true}},
		{"lower bound only", func(c *Base) error {
			return c.SetBounds(vec(-1, -1, -1), nil)
		}, [7]bool{false, false, false, false, false, true, true}},
		{"equality", func(c *Base) error {
			return c.SetEquality(A, vec(1, 2))
		}, [7]bool{true, false, false, false, true, false, false}},
		{"unilateral", func(c *Base) error {
			return c.SetInequality(A, nil, vec(1, 2))
		}, [7]bool{false, true, true, false, true, false, false}},
		{"bilateral", func(c *Base) error {
			return c.SetInequality(A, vec(0, 0), vec(1, 2))
		}, [7]bool{false, true, false, true, true, false, false}},
		{"inequality and bounds", func(c *Base) error {
			if err := c.SetInequality(A, vec(0, 0), nil); err != nil {
				return err
			}
			return c.SetBounds(nil, vec(1, 1, 1))
		}, [7]bool{false, true, true, false, true, true, false}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewBase(tc.name, 3)
			require.NoError(t, tc.setup(&c))
			got := [7]bool{
				IsEquality(&c), IsInequality(&c), IsUnilateral(&c), IsBilateral(&c),
				IsConstraint(&c), HasBounds(&c), IsBound(&c),
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassificationFollowsContent(t *testing.T) {
	c := NewBase("dynamic", 2)
	require.NoError(t, c.SetBounds(vec(0, 0), vec(1, 1)))
	assert.True(t, IsBound(&c))

	require.NoError(t, c.SetEquality(mat.NewDense(1, 2, []float64{1, 1}), vec(1)))
	assert.False(t, IsBound(&c))
	assert.True(t, IsEquality(&c))

	require.NoError(t, c.SetEquality(nil, nil))
	assert.True(t, IsBound(&c))
	assert.Nil(t, c.Aeq())
	assert.Nil(t, c.Beq())
}

func TestSetterShapes(t *testing.T) {
	c := NewBase("shape", 2)

	err := c.SetBounds(vec(0, 0, 0), nil)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	err = c.SetEquality(mat.NewDense(1, 3, nil), vec(0))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	err = c.SetEquality(mat.NewDense(2, 2, nil), vec(0))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	err = c.SetInequality(nil, vec(0), nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	err = c.SetInequality(mat.NewDense(1, 2, nil), vec(0), vec(0, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// failed writes leave the content untouched
	assert.False(t, HasBounds(&c))
	assert.False(t, IsConstraint(&c))
}

func TestSetterCopies(t *testing.T) {
	c := NewBase("copy", 2)
	l, u := vec(-1, -2), vec(1, 2)
	require.NoError(t, c.SetBounds(l, u))
	l.SetVec(0, 100)
	assert.Equal(t, -1.0, c.LowerBound().AtVec(0))
}

func TestLog(t *testing.T) {
	c := NewBase("limits", 2)
	require.NoError(t, c.SetBounds(vec(-1, -2), vec(1, 2)))
	require.NoError(t, c.SetInequality(mat.NewDense(1, 2, []float64{1, 1}), nil, vec(3)))

	var rec diag.YAMLRecorder
	Log(&c, &rec)
	assert.Equal(t, 4, rec.Len())
	require.Len(t, rec.Series("limits_Aineq"), 1)
	assert.Equal(t, [][]float64{{1, 1}}, rec.Series("limits_Aineq")[0].Data)
	assert.Equal(t, [][]float64{{3}}, rec.Series("limits_bUpperBound")[0].Data)
	assert.Empty(t, rec.Series("limits_bLowerBound"))
}
