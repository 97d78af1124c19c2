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
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func defaultWindow() RiskWindow {
	return RiskWindow{
		StartOffsetDays:          0,
		EndOffsetDays:            30,
		FirstExposureOnly:        true,
		RemovePriorOutcome:       true,
		PriorOutcomeLookbackDays: 99999,
		MinTimeAtRiskDays:        1,
	}
}

func TestBuildPopulationOutcomeCounting(t *testing.T) {
	raw := RawData{
		Attributes: []PatientRecord{
			{SubjectID: 1, AgeYears: 70, Sex: Male, CohortStart: day(0), CohortEnd: day(365)},
			{SubjectID: 2, AgeYears: 60, Sex: Female, CohortStart: day(0), CohortEnd: day(365)},
		},
		Outcomes: []OutcomeOccurrence{
			{SubjectID: 1, Date: day(10)},  // inside the window
			{SubjectID: 1, Date: day(20)},  // inside the window
			{SubjectID: 2, Date: day(100)}, // after the window
		},
	}
	population := BuildPopulation(raw, defaultWindow(), nil)
	if len(population) != 2 {
		t.Fatalf("expected 2 subjects, got %v", len(population))
	}
	for i := range population {
		switch population[i].SubjectID {
		case 1:
			if population[i].OutcomeCount != 2 {
				t.Errorf("expected 2 outcomes for subject 1, got %v", population[i].OutcomeCount)
			}
		case 2:
			if population[i].OutcomeCount != 0 {
				t.Errorf("expected 0 outcomes for subject 2, got %v", population[i].OutcomeCount)
			}
		}
	}
}

func TestBuildPopulationFirstExposureOnly(t *testing.T) {
	raw := RawData{
		Attributes: []PatientRecord{
			{SubjectID: 1, CohortStart: day(100), CohortEnd: day(465)},
			{SubjectID: 1, CohortStart: day(0), CohortEnd: day(365)},
		},
		Outcomes: []OutcomeOccurrence{{SubjectID: 1, Date: day(110)}},
	}
	window := defaultWindow()
	window.RemovePriorOutcome = false
	population := BuildPopulation(raw, window, nil)
	if len(population) != 1 {
		t.Fatalf("expected a single entry per subject, got %v", len(population))
	}
	// the earliest entry anchors the window, so the day 110 outcome is outside
	if population[0].OutcomeCount != 0 {
		t.Errorf("expected 0 outcomes for the first exposure, got %v", population[0].OutcomeCount)
	}
}

func TestBuildPopulationRemovesPriorOutcome(t *testing.T) {
	raw := RawData{
		Attributes: []PatientRecord{
			{SubjectID: 1, CohortStart: day(100), CohortEnd: day(465)},
			{SubjectID: 2, CohortStart: day(100), CohortEnd: day(465)},
		},
		Outcomes: []OutcomeOccurrence{{SubjectID: 1, Date: day(50)}},
	}
	population := BuildPopulation(raw, defaultWindow(), nil)
	if len(population) != 1 {
		t.Fatalf("expected the subject with a prior outcome to be excluded, got %v subjects", len(population))
	}
	if population[0].SubjectID != 2 {
		t.Errorf("wrong subject kept: %v", population[0].SubjectID)
	}
}

func TestBuildPopulationFilters(t *testing.T) {
	raw := RawData{
		Attributes: []PatientRecord{
			{SubjectID: 1, AgeYears: 75, Sex: Male, CohortStart: day(0), CohortEnd: day(365)},
			{SubjectID: 2, AgeYears: 65, Sex: Female, CohortStart: day(0), CohortEnd: day(365)},
			{SubjectID: 3, AgeYears: 80, Sex: Female, CohortStart: day(0), CohortEnd: day(365)},
		},
	}
	population := BuildPopulation(raw, defaultWindow(), []SubjectFilter{FemaleSubjectFilter(), AgeSubjectFilter(70.0, 200.0)})
	if len(population) != 1 {
		t.Fatalf("expected 1 subject after filtering, got %v", len(population))
	}
	if population[0].SubjectID != 3 {
		t.Errorf("wrong subject kept: %v", population[0].SubjectID)
	}
}

func TestBuildPopulationMinTimeAtRisk(t *testing.T) {
	raw := RawData{
		Attributes: []PatientRecord{
			{SubjectID: 1, CohortStart: day(0), CohortEnd: day(365)},
		},
	}
	window := defaultWindow()
	window.StartOffsetDays = 30
	window.EndOffsetDays = 30
	population := BuildPopulation(raw, window, nil)
	if len(population) != 0 {
		t.Errorf("expected exclusion on a zero-length risk window, got %v subjects", len(population))
	}
}

func TestBuildPopulationAnchorOnCohortEnd(t *testing.T) {
	raw := RawData{
		Attributes: []PatientRecord{
			{SubjectID: 1, CohortStart: day(0), CohortEnd: day(100)},
		},
		Outcomes: []OutcomeOccurrence{{SubjectID: 1, Date: day(110)}},
	}
	window := defaultWindow()
	window.RemovePriorOutcome = false
	window.AnchorOnCohortEnd = true
	population := BuildPopulation(raw, window, nil)
	if len(population) != 1 {
		t.Fatal("expected one subject")
	}
	if population[0].OutcomeCount != 1 {
		t.Errorf("expected the day 110 outcome inside the end-anchored window, got %v", population[0].OutcomeCount)
	}
}

func TestOutcomePrevalence(t *testing.T) {
	population := []PredictionRecord{
		{SubjectID: 1, OutcomeCount: 1},
		{SubjectID: 2},
		{SubjectID: 3},
		{SubjectID: 4, OutcomeCount: 2},
	}
	if p := OutcomePrevalence(population); p != 0.5 {
		t.Errorf("expected prevalence 0.5, got %v", p)
	}
	if p := OutcomePrevalence([]PredictionRecord{}); p != 0.0 {
		t.Errorf("expected prevalence 0 for an empty population, got %v", p)
	}
}
