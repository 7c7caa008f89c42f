// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/wbsot/constraint/velocity"
	"github.com/curioloop/wbsot/diag"
	"github.com/curioloop/wbsot/internal/config"
	"github.com/curioloop/wbsot/numdiff"
	"github.com/curioloop/wbsot/solver"
	"github.com/curioloop/wbsot/task"
	tvel "github.com/curioloop/wbsot/task/velocity"
)

// outcome is the state of the arm when the reaching loop stops.
type outcome struct {
	Cycles   int       `yaml:"cycles"`
	Joints   []float64 `yaml:"joints"`
	EndPoint []float64 `yaml:"end_point"`
	Distance float64   `yaml:"distance"`
}

// planarArm is the end point of a planar chain with the given link lengths.
func planarArm(links []float64) tvel.ForwardMap {
	return func(q, y []float64) {
		var angle, px, py float64
		for i, l := range links {
			angle += q[i]
			px += l * math.Cos(angle)
			py += l * math.Sin(angle)
		}
		y[0], y[1] = px, py
	}
}

// reach drives the arm of cfg towards the target with a two level stack: the
// end point task under joint limits, then a postural task holding the initial
// posture. Velocity limits bound every level. rec receives the level problems
// of every cycle when not nil.
func reach(ctx context.Context, cfg *config.Config, log *slog.Logger, rec diag.Recorder) (*outcome, error) {
	n := len(cfg.Arm.Links)
	q := mat.NewVecDense(n, append([]float64(nil), cfg.Arm.Initial...))

	method := numdiff.Forward
	if cfg.Control.Central {
		method = numdiff.Central
	}
	endPoint, err := tvel.NewKinematic("end_effector", q, 2, planarArm(cfg.Arm.Links), method)
	if err != nil {
		return nil, err
	}
	endPoint.SetLambda(cfg.Control.Gain)
	target := mat.NewVecDense(2, append([]float64(nil), cfg.Control.Target...))
	if err := endPoint.SetReference(target); err != nil {
		return nil, err
	}
	if len(cfg.Arm.JointMin) > 0 {
		joints, err := velocity.NewJointLimits(q,
			mat.NewVecDense(n, append([]float64(nil), cfg.Arm.JointMin...)),
			mat.NewVecDense(n, append([]float64(nil), cfg.Arm.JointMax...)))
		if err != nil {
			return nil, err
		}
		endPoint.AddConstraint(joints)
	}

	levels := []task.Task{endPoint}
	if cfg.Control.PosturalGain > 0 {
		postural, err := tvel.NewPostural(q)
		if err != nil {
			return nil, err
		}
		postural.SetLambda(cfg.Control.PosturalGain)
		levels = append(levels, postural)
	}

	speed, err := velocity.NewVelocityLimits(cfg.Arm.MaxVelocity, cfg.Control.Period, n)
	if err != nil {
		return nil, err
	}

	opts := cfg.QP
	opts.Logger = log
	stack, err := solver.NewStack(levels, speed, opts)
	if err != nil {
		return nil, err
	}

	distance := func() float64 {
		y := endPoint.Actual()
		return math.Hypot(y.AtVec(0)-target.AtVec(0), y.AtVec(1)-target.AtVec(1))
	}

	cycle := 0
	for ; cycle < cfg.Control.Cycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stack.Update(q)
		if err := endPoint.Err(); err != nil {
			return nil, fmt.Errorf("cycle %d: %w", cycle, err)
		}
		dq, err := stack.Solve()
		if err != nil {
			return nil, fmt.Errorf("cycle %d: %w", cycle, err)
		}
		if rec != nil {
			stack.Log(rec)
		}
		q.AddVec(q, dq)

		if log.Enabled(ctx, slog.LevelDebug) {
			log.LogAttrs(ctx, slog.LevelDebug, "cycle",
				slog.Int("cycle", cycle),
				slog.Float64("distance", distance()),
				slog.Any("dq", dq.RawVector().Data))
		}
	}
	stack.Update(q)
	for k := 0; k < stack.Levels(); k++ {
		if b := stack.Backend(k); b != nil {
			b.ProblemInfo(slog.LevelDebug)
		}
	}

	return &outcome{
		Cycles:   cycle,
		Joints:   append([]float64(nil), q.RawVector().Data...),
		EndPoint: endPoint.Actual().RawVector().Data,
		Distance: distance(),
	}, nil
}
