// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import (
	"context"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/diag"
	"github.com/curioloop/wbsot/internal/linalg"
)

// Log publishes the cached problem and the last solution to rec under the
// names H_i, g_i, A_i, lA_i, uA_i, l_i, u_i and solution_i. Empty blocks are skipped.
func (b *Backend) Log(rec diag.Recorder, i int) {
	entries := []struct {
		name string
		m    mat.Matrix
	}{
		{"H", b.H()},
		{"g", b.G()},
		{"A", b.A()},
		{"lA", b.LA()},
		{"uA", b.UA()},
		{"l", b.L()},
		{"u", b.U()},
		{"solution", b.Solution()},
	}
	for _, e := range entries {
		if !linalg.IsEmpty(e.m) {
			rec.Add(fmt.Sprintf("%s_%d", e.name, i), e.m)
		}
	}
}

// ProblemInfo logs a summary of the backend configuration and its last solve.
func (b *Backend) ProblemInfo(level slog.Level) {
	var activeBounds, activeConstraints int
	for _, s := range b.ActiveBounds() {
		if s != Inactive {
			activeBounds++
		}
	}
	for _, s := range b.ActiveConstraints() {
		if s != Inactive {
			activeConstraints++
		}
	}
	b.log.Log(context.Background(), level, "qp problem",
		"state", b.state,
		"variables", b.prob.n,
		"constraints", b.prob.m,
		"bounded", len(b.prob.l) > 0,
		"hessian", b.hessian,
		"nwsr", b.opts.MaxWorkingSetRecalculations,
		"regularisation_scale", b.opts.RegularisationScale,
		"infinity", b.opts.Infinity,
		"tier", b.tier,
		"iterations", b.iter,
		"active_bounds", activeBounds,
		"active_constraints", activeConstraints,
	)
}
