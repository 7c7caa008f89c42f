// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// solveTotal counts solve attempts by tier and result
	solveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wbsot_qp_solve_total",
		Help: "Total QP solve attempts by tier and result",
	}, []string{"tier", "result"})

	// solveDuration tracks the latency of a whole solve including fallbacks
	solveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wbsot_qp_solve_duration_seconds",
		Help:    "QP solve duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10µs to ~80ms
	})

	// solveIterations tracks working set recalculations of successful solves
	solveIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wbsot_qp_solve_iterations",
		Help:    "Working set recalculations per successful solve",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
	})

	// rebuildTotal counts solver instance rebuilds by cause
	rebuildTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wbsot_qp_rebuild_total",
		Help: "Total solver instance rebuilds by cause",
	}, []string{"cause"})
)

func observeAttempt(t Tier, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	solveTotal.WithLabelValues(t.String(), result).Inc()
}
