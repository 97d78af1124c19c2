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

package study

// Decision curve analysis: net benefit of treating patients whose predicted
// probability reaches a threshold, swept over a threshold range.

// NetBenefitPoint is the net benefit at one probability threshold.
type NetBenefitPoint struct {
	Threshold  float64
	NetBenefit float64
}

// NetBenefitCurve is an ordered sequence of net benefit points with strictly
// increasing thresholds.
type NetBenefitCurve []NetBenefitPoint

// DecisionCurve sweeps the inclusive threshold range [xstart, xstop] in steps
// of xby and computes the net benefit at each threshold. A patient counts as
// positive when Probability >= threshold; the net benefit is
// TP/n - FP/n * t/(1-t). When xstop <= 0 it defaults to the maximum observed
// probability. Thresholds at or above 1 are excluded. The grid holds every
// multiple of xby from xstart that does not exceed xstop, so a span that is
// not an exact multiple of xby ends at the last threshold inside the range.
// An empty population or a step of zero or less yields an empty curve.
func DecisionCurve(population []PredictionRecord, xstart, xstop, xby float64) NetBenefitCurve {
	curve := NetBenefitCurve{}
	if len(population) == 0 || xby <= 0.0 {
		return curve
	}
	if xstop <= 0.0 {
		xstop = MaxProbability(population)
	}
	n := float64(len(population))
	for i := 0; ; i++ {
		t := xstart + float64(i)*xby
		if t > xstop+1e-12 || t >= 1.0 {
			break
		}
		tp, fp := 0, 0
		for j := range population {
			if population[j].Probability >= t {
				if population[j].OutcomeCount > 0 {
					tp++
				} else {
					fp++
				}
			}
		}
		// at t = 0 the false positive penalty t/(1-t) vanishes and the net
		// benefit reduces to the fraction of true positives
		nb := float64(tp)/n - float64(fp)/n*(t/(1.0-t))
		curve = append(curve, NetBenefitPoint{Threshold: t, NetBenefit: nb})
	}
	return curve
}
