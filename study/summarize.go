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

	"gonum.org/v1/gonum/stat"
)

// Covariate balance summaries: per covariate, counts and moments split by
// outcome presence, plus a standardized mean difference. Demographic pseudo
// rows for age and sex are synthesized from the raw patient attributes.

// DemographicCovariateID is the reserved identifier for the synthesized age and
// sex rows. Model covariate ids are always positive, so the sentinel cannot
// collide; new consumers should use Demographic() instead of testing for -1.
const DemographicCovariateID = -1

// CovariateSummaryRow is one covariate (or pseudo-covariate) in one analysis.
type CovariateSummaryRow struct {
	CovariateID         int64
	CovariateName       string
	AnalysisID          int
	ConceptID           int64
	Value               float64 //the model weight for this covariate
	CovariateCount      int
	WithOutcomeCount    int
	WithNoOutcomeCount  int
	WithOutcomeMean     float64
	WithNoOutcomeMean   float64
	WithOutcomeStdDev   float64
	WithNoOutcomeStdDev float64
	StdDiff             float64
}

// Demographic reports whether this row is a synthesized age or sex row.
func (r *CovariateSummaryRow) Demographic() bool {
	return r.CovariateID == DemographicCovariateID
}

// CovariateSummary computes the per-covariate balance table for a scored
// population: for each model covariate, counts, means, and standard deviations
// split by outcome presence, plus the standardized mean difference between the
// outcome groups.
func CovariateSummary(raw RawData, population []PredictionRecord, weights []CovariateWeight, analysisID int) []CovariateSummaryRow {
	if len(population) == 0 {
		return []CovariateSummaryRow{}
	}
	outcome := map[int64]bool{}
	inPopulation := map[int64]bool{}
	for i := range population {
		inPopulation[population[i].SubjectID] = true
		if population[i].OutcomeCount > 0 {
			outcome[population[i].SubjectID] = true
		}
	}
	// per covariate, the observed value per subject; missing means 0
	values := map[int64]map[int64]float64{}
	for _, cv := range raw.Covariates {
		if !inPopulation[cv.SubjectID] {
			continue
		}
		if _, ok := values[cv.CovariateID]; !ok {
			values[cv.CovariateID] = map[int64]float64{}
		}
		values[cv.CovariateID][cv.SubjectID] = cv.Value
	}
	summary := []CovariateSummaryRow{}
	for _, w := range weights {
		withOutcome := []float64{}
		withoutOutcome := []float64{}
		ctr := 0
		for i := range population {
			v := values[w.CovariateID][population[i].SubjectID]
			if v != 0.0 {
				ctr++
			}
			if outcome[population[i].SubjectID] {
				withOutcome = append(withOutcome, v)
			} else {
				withoutOutcome = append(withoutOutcome, v)
			}
		}
		row := CovariateSummaryRow{
			CovariateID:         w.CovariateID,
			CovariateName:       w.Name,
			AnalysisID:          analysisID,
			ConceptID:           w.ConceptID,
			Value:               w.Weight,
			CovariateCount:      ctr,
			WithOutcomeCount:    len(withOutcome),
			WithNoOutcomeCount:  len(withoutOutcome),
			WithOutcomeMean:     stat.Mean(withOutcome, nil),
			WithNoOutcomeMean:   stat.Mean(withoutOutcome, nil),
			WithOutcomeStdDev:   stat.StdDev(withOutcome, nil),
			WithNoOutcomeStdDev: stat.StdDev(withoutOutcome, nil),
		}
		row.StdDiff = standardizedDifference(row.WithOutcomeMean, row.WithNoOutcomeMean,
			row.WithOutcomeStdDev, row.WithNoOutcomeStdDev)
		summary = append(summary, row)
	}
	return summary
}

// standardizedDifference is the scale-free difference of two group means.
func standardizedDifference(mean1, mean2, sd1, sd2 float64) float64 {
	pooled := math.Sqrt((sd1*sd1 + sd2*sd2) / 2.0)
	if pooled == 0.0 || math.IsNaN(pooled) {
		return 0.0
	}
	return (mean1 - mean2) / pooled
}

// MergeDemographicSummaries appends the two demographic pseudo rows (age and
// sex) to an existing covariate summary. The rows are computed from the raw
// patient attributes carried on the predictions, grouped by outcome presence.
// The pseudo rows are always the last two rows and carry the reserved
// identifier; their combined counts equal the population size. An empty
// upstream summary skips the merge so demographic rows are never emitted
// standalone.
func MergeDemographicSummaries(summary []CovariateSummaryRow, population []PredictionRecord, analysisID int) []CovariateSummaryRow {
	if len(summary) == 0 || len(population) == 0 {
		return summary
	}
	agesWithOutcome := []float64{}
	agesWithoutOutcome := []float64{}
	maleWithOutcome := []float64{}
	maleWithoutOutcome := []float64{}
	for i := range population {
		male := 0.0
		if population[i].Sex != Female {
			male = 1.0
		}
		if population[i].OutcomeCount > 0 {
			agesWithOutcome = append(agesWithOutcome, population[i].AgeYears)
			maleWithOutcome = append(maleWithOutcome, male)
		} else {
			agesWithoutOutcome = append(agesWithoutOutcome, population[i].AgeYears)
			maleWithoutOutcome = append(maleWithoutOutcome, male)
		}
	}
	ageRow := CovariateSummaryRow{
		CovariateID:         DemographicCovariateID,
		CovariateName:       "Age in years",
		AnalysisID:          analysisID,
		ConceptID:           DemographicCovariateID,
		CovariateCount:      len(population),
		WithOutcomeCount:    len(agesWithOutcome),
		WithNoOutcomeCount:  len(agesWithoutOutcome),
		WithOutcomeMean:     stat.Mean(agesWithOutcome, nil),
		WithNoOutcomeMean:   stat.Mean(agesWithoutOutcome, nil),
		WithOutcomeStdDev:   stat.StdDev(agesWithOutcome, nil),
		WithNoOutcomeStdDev: stat.StdDev(agesWithoutOutcome, nil),
		StdDiff:             0.0, //placeholder, kept for downstream compatibility
	}
	sexRow := CovariateSummaryRow{
		CovariateID:         DemographicCovariateID,
		CovariateName:       "Percent male",
		AnalysisID:          analysisID,
		ConceptID:           DemographicCovariateID,
		CovariateCount:      len(population),
		WithOutcomeCount:    len(maleWithOutcome),
		WithNoOutcomeCount:  len(maleWithoutOutcome),
		WithOutcomeMean:     stat.Mean(maleWithOutcome, nil),
		WithNoOutcomeMean:   stat.Mean(maleWithoutOutcome, nil),
		WithOutcomeStdDev:   stat.StdDev(maleWithOutcome, nil),
		WithNoOutcomeStdDev: stat.StdDev(maleWithoutOutcome, nil),
		StdDiff:             0.0,
	}
	return append(append(summary, ageRow), sexRow)
}
