// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

// Status describes whether a bound or constraint row is in the active set.
type Status int8

const (
	// Inactive the row is not binding.
	Inactive Status = iota
	// Lower the lower side of the row is binding.
	Lower
	// Upper the upper side of the row is binding.
	Upper
	// Equality the row has equal sides and is binding.
	Equality
)

func (s Status) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Lower:
		return "lower"
	case Upper:
		return "upper"
	case Equality:
		return "equality"
	}
	return "invalid"
}

// State is the lifecycle state of a Backend.
type State int

const (
	// Uninitialized no problem has been loaded.
	Uninitialized State = iota
	// Initialized the problem data is cached and a solve may run.
	Initialized
	// Solving a solve is in progress.
	Solving
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Solving:
		return "solving"
	}
	return "invalid"
}

// Tier identifies which stage of the solve fallback produced the solution.
type Tier int

const (
	// TierNone no solve has succeeded yet.
	TierNone Tier = iota
	// TierHotStart incremental solve seeded with the cached active set.
	TierHotStart
	// TierWarmInit fresh solve seeded with the previous primal and dual solution.
	TierWarmInit
	// TierColdInit solve from scratch.
	TierColdInit
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierHotStart:
		return "hotstart"
	case TierWarmInit:
		return "warm"
	case TierColdInit:
		return "cold"
	}
	return "invalid"
}
