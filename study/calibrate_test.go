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

import (
	"math"
	"testing"

	"github.com/tfalcs/RCRI/utils"
)

// twoGroupPopulation builds a population with two probability levels where the
// observed event rates match the predictions exactly, so the identity mapping
// is the maximum likelihood recalibration.
func twoGroupPopulation() []PredictionRecord {
	population := []PredictionRecord{}
	id := int64(0)
	for i := 0; i < 10; i++ {
		ctr := 0
		if i < 2 { // 2 of 10 at risk 0.2
			ctr = 1
		}
		population = append(population, PredictionRecord{SubjectID: id, Probability: 0.2, OutcomeCount: ctr})
		id++
	}
	for i := 0; i < 10; i++ {
		ctr := 0
		if i < 6 { // 6 of 10 at risk 0.6
			ctr = 1
		}
		population = append(population, PredictionRecord{SubjectID: id, Probability: 0.6, OutcomeCount: ctr})
		id++
	}
	return population
}

func TestFitRecalibrationIdentity(t *testing.T) {
	population := twoGroupPopulation()
	fit, err := FitRecalibration(population, RecalibrationInterceptAndSlope)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(fit.Intercept) > 1e-6 {
		t.Errorf("expected intercept 0 on calibrated data, got %v", fit.Intercept)
	}
	if math.Abs(fit.Slope-1.0) > 1e-6 {
		t.Errorf("expected slope 1 on calibrated data, got %v", fit.Slope)
	}
}

func TestFitRecalibrationInterceptOnly(t *testing.T) {
	// all predictions at 0.2 but half the subjects have the outcome; the
	// intercept must shift the mapping from 0.2 to 0.5
	population := []PredictionRecord{}
	for i := 0; i < 20; i++ {
		ctr := 0
		if i%2 == 0 {
			ctr = 1
		}
		population = append(population, PredictionRecord{SubjectID: int64(i), Probability: 0.2, OutcomeCount: ctr})
	}
	fit, err := FitRecalibration(population, RecalibrationInterceptOnly)
	if err != nil {
		t.Fatal(err)
	}
	if fit.Slope != 1.0 {
		t.Errorf("intercept-only fit must keep slope 1, got %v", fit.Slope)
	}
	remapped := utils.Sigmoid(utils.Logit(0.2) + fit.Intercept)
	if math.Abs(remapped-0.5) > 1e-6 {
		t.Errorf("expected remapped risk 0.5, got %v", remapped)
	}
}

func TestFitRecalibrationDegenerate(t *testing.T) {
	population := []PredictionRecord{}
	for i := 0; i < 10; i++ {
		population = append(population, PredictionRecord{SubjectID: int64(i), Probability: 0.1})
	}
	if _, err := FitRecalibration(population, RecalibrationInterceptOnly); err == nil {
		t.Error("expected an error for a population without events")
	}
	if _, err := FitRecalibration([]PredictionRecord{}, RecalibrationInterceptAndSlope); err == nil {
		t.Error("expected an error for an empty population")
	}
}

func TestApplyRecalibrationIdentity(t *testing.T) {
	population := twoGroupPopulation()
	fit := RecalibrationFit{Intercept: 0.0, Slope: 1.0, Mode: RecalibrationInterceptAndSlope}
	remapped := ApplyRecalibration(fit, population)
	for i := range population {
		if math.Abs(remapped[i].Probability-population[i].Probability) > 1e-12 {
			t.Errorf("identity recalibration changed probability %v to %v",
				population[i].Probability, remapped[i].Probability)
		}
		if remapped[i].OutcomeCount != population[i].OutcomeCount {
			t.Error("recalibration must not touch outcomes")
		}
	}
}

func TestApplyRecalibrationFresh(t *testing.T) {
	population := twoGroupPopulation()
	fit := RecalibrationFit{Intercept: 1.0, Slope: 0.5, Mode: RecalibrationInterceptAndSlope}
	remapped := ApplyRecalibration(fit, population)
	if population[0].Probability != 0.2 {
		t.Error("recalibration mutated the input population")
	}
	for i := range remapped {
		if remapped[i].Probability <= 0.0 || remapped[i].Probability >= 1.0 {
			t.Errorf("remapped probability out of (0,1): %v", remapped[i].Probability)
		}
	}
}

func TestRecalibrationModeNames(t *testing.T) {
	if RecalibrationInterceptOnly.String() != "recalibrationInTheLarge" {
		t.Error("wrong name for intercept-only mode")
	}
	if RecalibrationInterceptAndSlope.String() != "weakRecalibration" {
		t.Error("wrong name for intercept-and-slope mode")
	}
}
