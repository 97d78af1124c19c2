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

import (
	"math"
	"testing"
)

func TestClampProbabilityBounds(t *testing.T) {
	if p := ClampProbability(0.0); p != ProbabilityEpsilon {
		t.Errorf("expected %v for clamped 0.0, got %v", ProbabilityEpsilon, p)
	}
	if p := ClampProbability(1.0); p != 1.0-ProbabilityEpsilon {
		t.Errorf("expected %v for clamped 1.0, got %v", 1.0-ProbabilityEpsilon, p)
	}
}

func TestClampProbabilityInterior(t *testing.T) {
	for _, p := range []float64{0.004, 0.009, 0.066, 0.110, 0.5, 0.9999} {
		if c := ClampProbability(p); c != p {
			t.Errorf("interior probability %v changed to %v", p, c)
		}
	}
}

func TestLogitFiniteAfterClamp(t *testing.T) {
	for _, p := range []float64{0.0, 0.004, 0.5, 0.110, 1.0} {
		l := Logit(ClampProbability(p))
		if math.IsInf(l, 0) || math.IsNaN(l) {
			t.Errorf("logit of clamped %v is not finite: %v", p, l)
		}
	}
}

func TestLogitSigmoidRoundTrip(t *testing.T) {
	for i := 1; i < 100; i++ {
		p := float64(i) / 100.0
		q := Sigmoid(Logit(p))
		if math.Abs(p-q) > 1e-12 {
			t.Errorf("round trip of %v gives %v", p, q)
		}
	}
}

func TestMinMaxInt(t *testing.T) {
	if MinInt(2, 3) != 2 || MinInt(3, 2) != 2 {
		t.Error("MinInt broken")
	}
	if MaxInt(2, 3) != 3 || MaxInt(3, 2) != 3 {
		t.Error("MaxInt broken")
	}
}
