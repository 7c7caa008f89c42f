// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrShapeMismatch is returned when the row or column counts of the inputs disagree.
	ErrShapeMismatch = errors.New("qp: shape mismatch")
	// ErrInfeasible is returned when no point satisfies the bounds and constraints.
	ErrInfeasible = errors.New("qp: infeasible problem")
	// ErrBudgetExceeded is returned when the working set recalculation limit is reached.
	ErrBudgetExceeded = errors.New("qp: working set recalculation limit exceeded")
	// ErrDegenerate is returned when the regularized Hessian can not be factorized
	// or the computed point fails the feasibility check by round-off.
	ErrDegenerate = errors.New("qp: numerically degenerate problem")
	// ErrNotInitialized is returned by operations that need a prior successful Init.
	ErrNotInitialized = errors.New("qp: backend not initialized")
)

// InfeasibleError names the rows that make the problem infeasible.
// It matches ErrInfeasible with errors.Is.
type InfeasibleError struct {
	// Bounds lists the variables whose bounds take part in the conflict.
	Bounds []int
	// Constraints lists the constraint rows that take part in the conflict.
	Constraints []int
	// Inverted is set when a lower side exceeds its upper side.
	Inverted bool
}

func (e *InfeasibleError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrInfeasible.Error())
	if e.Inverted {
		sb.WriteString(": inverted bounds")
	}
	if len(e.Bounds) > 0 {
		fmt.Fprintf(&sb, ", bounds %v", e.Bounds)
	}
	if len(e.Constraints) > 0 {
		fmt.Fprintf(&sb, ", constraints %v", e.Constraints)
	}
	return sb.String()
}

func (e *InfeasibleError) Unwrap() error { return ErrInfeasible }

func shapeError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrShapeMismatch, fmt.Sprintf(format, args...))
}
