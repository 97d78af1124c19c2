// RCRI: Revised Cardiac Risk Index Validation Study
// Copyright (c) 2026 tfalcs.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License along with this program. If not, see
// <https://github.com/tfalcs/RCRI/blob/master/LICENSE.txt>.

package utils

import "math"

// Numerically safe transforms between probabilities and log odds.

// ProbabilityEpsilon replaces exact 0 and 1 probabilities so the logit stays finite.
const ProbabilityEpsilon = 1e-15

// ClampProbability replaces an exact 0 with ProbabilityEpsilon and an exact 1 with
// 1 - ProbabilityEpsilon. All other values pass through unchanged, so clamping an
// already clamped value is a no-op.
func ClampProbability(p float64) float64 {
	if p == 0.0 {
		return ProbabilityEpsilon
	}
	if p == 1.0 {
		return 1.0 - ProbabilityEpsilon
	}
	return p
}

// Logit computes ln(p/(1-p)). Inputs must be clamped first for p in {0,1}.
func Logit(p float64) float64 {
	return math.Log(p / (1.0 - p))
}

// Sigmoid is the inverse of Logit.
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// MinInt returns the smallest of two integers.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// MaxInt returns the largest of two integers.
func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
