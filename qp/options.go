// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import (
	"errors"
	"log/slog"
	"math"
)

// Regularization applied to a unit scale, the effective term added to the Hessian
// diagonal is RegularisationScale × baseRegularisation.
var baseRegularisation = 5.0e3 * (math.Nextafter(1, 2) - 1)

// HessianType describes the known structure of the objective Hessian.
type HessianType int

const (
	// HessianUnknown the Hessian is symmetric positive semi-definite with no known structure.
	HessianUnknown HessianType = iota
	// HessianIdentity the Hessian is the identity, no factorization is needed.
	HessianIdentity
	// HessianSemiDefinite the Hessian is known to be singular.
	HessianSemiDefinite
)

func (t HessianType) String() string {
	switch t {
	case HessianUnknown:
		return "unknown"
	case HessianIdentity:
		return "identity"
	case HessianSemiDefinite:
		return "semidef"
	}
	return "invalid"
}

// Options configures a Backend. The zero value of a field selects its default.
type Options struct {
	// Maximum number of working set recalculations per solve tier.
	MaxWorkingSetRecalculations int `mapstructure:"max_working_set_recalculations" yaml:"max_working_set_recalculations"`
	// Scale of the diagonal regularization added to unknown and semi-definite Hessians.
	RegularisationScale float64 `mapstructure:"regularisation_scale" yaml:"regularisation_scale"`
	// Practical infinity:
	//  - lower bounds are considered not exist when 𝒍ᵢ ≤ -Infinity
	//  - upper bounds are considered not exist when 𝒖ᵢ ≥ Infinity
	Infinity float64 `mapstructure:"infinity" yaml:"infinity"`
	// Relative tolerance for equality detection and feasibility checks, scaled by (1+|𝒃ᵢ|).
	Tolerance float64 `mapstructure:"tolerance" yaml:"tolerance"`
	// Report the conflicting rows of infeasible problems in the log.
	Diagnostics bool `mapstructure:"diagnostics" yaml:"diagnostics"`
	// Logger receives fallback and failure reports, slog.Default() when nil.
	Logger *slog.Logger `mapstructure:"-" yaml:"-"`
}

// DefaultOptions returns the options used when a field is left to zero.
func DefaultOptions() Options {
	return Options{
		MaxWorkingSetRecalculations: 132,
		RegularisationScale:         200,
		Infinity:                    1e20,
		Tolerance:                   1e-8,
	}
}

// withDefaults fills the zero fields of o.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxWorkingSetRecalculations == 0 {
		o.MaxWorkingSetRecalculations = def.MaxWorkingSetRecalculations
	}
	if o.RegularisationScale == 0 {
		o.RegularisationScale = def.RegularisationScale
	}
	if o.Infinity == 0 {
		o.Infinity = def.Infinity
	}
	if o.Tolerance == 0 {
		o.Tolerance = def.Tolerance
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	switch {
	case o.MaxWorkingSetRecalculations < 0:
		return errors.New("qp: working set recalculations must not less than 0")
	case o.RegularisationScale < 0 || math.IsNaN(o.RegularisationScale):
		return errors.New("qp: regularisation scale must not less than 0")
	case o.Infinity < 0 || math.IsNaN(o.Infinity):
		return errors.New("qp: infinity must not less than 0")
	case o.Tolerance < 0 || math.IsNaN(o.Tolerance):
		return errors.New("qp: tolerance must not less than 0")
	}
	return nil
}

// regularisation returns the value added to the Hessian diagonal.
func (o Options) regularisation() float64 {
	return o.RegularisationScale * baseRegularisation
}
