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

func TestBinomialTailZeroEvents(t *testing.T) {
	if p := BinomialTail(0.3, 100, 0); p != 1.0 {
		t.Errorf("expected 1.0 for zero events, got %v", p)
	}
}

func TestBinomialTailAllEvents(t *testing.T) {
	expected := math.Pow(0.5, 4.0)
	if p := BinomialTail(0.5, 4, 4); math.Abs(p-expected) > 1e-12 {
		t.Errorf("expected %v for all events, got %v", expected, p)
	}
}

func TestBinomialTailFairCoin(t *testing.T) {
	// P(X >= 2) for 4 fair coin flips is 11/16
	if p := BinomialTail(0.5, 4, 2); math.Abs(p-0.6875) > 1e-6 {
		t.Errorf("expected 0.6875, got %v", p)
	}
}

func TestBinomialTailMonotoneInEvents(t *testing.T) {
	prev := 2.0
	for k := 0; k <= 20; k++ {
		p := BinomialTail(0.1, 20, k)
		if p > prev+1e-12 {
			t.Errorf("tail probability increased at k = %v: %v > %v", k, p, prev)
		}
		if p < 0.0 || p > 1.0 {
			t.Errorf("tail probability out of range at k = %v: %v", k, p)
		}
		prev = p
	}
}
