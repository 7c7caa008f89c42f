// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package velocity

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/constraint"
	"github.com/curioloop/wbsot/internal/linalg"
)

// ErrDegenerateHull is returned when the support points span no area.
var ErrDegenerateHull = errors.New("velocity: support polygon is degenerate")

// Point is a point of the support plane.
type Point [2]float64

// SupportModel evaluates the support geometry at the joint position q.
// It returns the support points, the position 𝒑 of the point kept inside
// their convex hull, and the 2×n Jacobian 𝐉 of 𝒑 with respect to q.
type SupportModel func(q mat.Vector) (support []Point, p Point, J mat.Matrix)

// ConvexHull keeps a planar point inside the convex hull of the support points.
//
// Each hull edge gives a half plane 𝐚ᵀ𝒑 ≤ c, so the displacement must satisfy
//
//	𝐀𝐉 𝛿𝒒 ≤ 𝒄 - 𝐀𝒑
//
// The hull is shrunk by a safety margin along every edge normal.
type ConvexHull struct {
	constraint.Base
	model  SupportModel
	margin float64
	err    error
}

// NewConvexHull returns the constraint evaluated at q.
func NewConvexHull(q mat.Vector, model SupportModel, margin float64) (*ConvexHull, error) {
	if model == nil {
		return nil, errors.New("velocity: nil support model")
	}
	if margin < 0 {
		return nil, errors.New("velocity: margin must not less than 0")
	}
	c := &ConvexHull{
		Base:   constraint.NewBase("convex_hull", q.Len()),
		model:  model,
		margin: margin,
	}
	c.Update(q)
	if c.err != nil {
		return nil, c.err
	}
	return c, nil
}

// Margin returns the safety margin.
func (c *ConvexHull) Margin() float64 { return c.margin }

// Err returns the error of the last Update. A failed Update keeps the previous content.
func (c *ConvexHull) Err() error { return c.err }

// Update queries the support model at q and rebuilds the half planes.
func (c *ConvexHull) Update(q mat.Vector) {
	support, p, J := c.model(q)
	A, b, err := HullConstraints(support, c.margin)
	if err != nil {
		c.err = err
		return
	}
	if r, cols := linalg.Dims(J); r != 2 || cols != c.XSize() {
		c.err = fmt.Errorf("%w: support Jacobian is %d×%d, want 2×%d", constraint.ErrShapeMismatch, r, cols, c.XSize())
		return
	}

	var AJ mat.Dense
	AJ.Mul(A, J)
	ub := mat.NewVecDense(b.Len(), nil)
	ub.MulVec(A, mat.NewVecDense(2, []float64{p[0], p[1]}))
	ub.SubVec(b, ub)
	c.err = c.SetInequality(&AJ, nil, ub)
}

// Hull returns the convex hull of points in counter-clockwise order starting
// from the lowest-leftmost point. Collinear points on edges are dropped.
func Hull(points []Point) []Point {
	ps := slices.Clone(points)
	slices.SortFunc(ps, func(a, b Point) int {
		if a[0] != b[0] {
			if a[0] < b[0] {
				return -1
			}
			return 1
		}
		switch {
		case a[1] < b[1]:
			return -1
		case a[1] > b[1]:
			return 1
		}
		return 0
	})
	ps = slices.Compact(ps)
	if len(ps) < 3 {
		return ps
	}

	// Andrew's monotone chain
	hull := make([]Point, 0, 2*len(ps))
	for _, p := range ps {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(ps) - 2; i >= 0; i-- {
		p := ps[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// cross returns the z component of (a-o)×(b-o), positive for a left turn.
func cross(o, a, b Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// HullConstraints returns the half planes 𝐀𝒑 ≤ 𝒄 of the convex hull of points,
// one row per edge in counter-clockwise order, each moved inwards by margin.
// Row i is the edge from hull vertex i to vertex i+1, its normal has unit length.
func HullConstraints(points []Point, margin float64) (A *mat.Dense, c *mat.VecDense, err error) {
	hull := Hull(points)
	if len(hull) < 3 {
		return nil, nil, ErrDegenerateHull
	}
	k := len(hull)
	A = mat.NewDense(k, 2, nil)
	c = mat.NewVecDense(k, nil)
	for i, p := range hull {
		q := hull[(i+1)%k]
		// outward normal of a counter-clockwise edge
		nx, ny := q[1]-p[1], p[0]-q[0]
		norm := math.Hypot(nx, ny)
		nx, ny = nx/norm, ny/norm
		A.Set(i, 0, nx)
		A.Set(i, 1, ny)
		c.SetVec(i, nx*p[0]+ny*p[1]-margin)
	}
	return A, c, nil
}
