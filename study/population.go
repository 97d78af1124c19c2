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
	"fmt"
	"sort"
	"time"
)

const (
	Male   = 0
	Female = 1
)

// PredictionRecord is one scored patient in one analysis. Probability is always
// finite and strictly inside (0,1) once scoring has run; OutcomeCount > 0 means
// the outcome was observed inside the risk window.
type PredictionRecord struct {
	SubjectID    int64
	Probability  float64
	OutcomeCount int
	AgeYears     float64
	Sex          int //0 = male, 1 = female
}

// PatientRecord holds the raw demographic and index date attributes of a subject
// in the target cohort, as extracted from the warehouse.
type PatientRecord struct {
	SubjectID   int64
	AgeYears    float64
	Sex         int
	CohortStart time.Time
	CohortEnd   time.Time
}

// CovariateValue is one extracted (subject, covariate) observation.
type CovariateValue struct {
	SubjectID   int64
	CovariateID int64
	Value       float64
}

// OutcomeOccurrence is one occurrence of the outcome cohort for a subject.
type OutcomeOccurrence struct {
	SubjectID int64
	Date      time.Time
}

// RawData bundles the extractor output for one (target, outcome) pair.
type RawData struct {
	Covariates []CovariateValue
	Outcomes   []OutcomeOccurrence
	Attributes []PatientRecord
}

// CovariateWeight describes one model covariate and its point contribution.
type CovariateWeight struct {
	CovariateID int64
	ConceptID   int64
	Name        string
	Weight      float64
}

// RiskWindow defines the time-at-risk interval relative to the target cohort
// entry, plus the washout rules applied when defining the study population.
type RiskWindow struct {
	StartOffsetDays          int  //risk starts this many days after the anchor
	EndOffsetDays            int  //risk ends this many days after the anchor
	AnchorOnCohortEnd        bool //false anchors both offsets on cohort start
	FirstExposureOnly        bool //keep only the earliest cohort entry per subject
	RemovePriorOutcome       bool //drop subjects with the outcome before risk start
	PriorOutcomeLookbackDays int  //how far back to look for prior outcomes
	MinTimeAtRiskDays        int  //minimum length of the risk interval
}

// SubjectFilter restricts which target cohort entries enter the study population.
type SubjectFilter func(p *PatientRecord) bool

// MaleSubjectFilter keeps only male subjects.
func MaleSubjectFilter() SubjectFilter {
	return func(p *PatientRecord) bool { return p.Sex != Female }
}

// FemaleSubjectFilter keeps only female subjects.
func FemaleSubjectFilter() SubjectFilter {
	return func(p *PatientRecord) bool { return p.Sex == Female }
}

// AgeSubjectFilter keeps subjects whose age at cohort start lies in [min, max].
func AgeSubjectFilter(min, max float64) SubjectFilter {
	return func(p *PatientRecord) bool { return p.AgeYears >= min && p.AgeYears <= max }
}

// riskInterval computes the absolute risk interval for one cohort entry.
func riskInterval(p *PatientRecord, window RiskWindow) (time.Time, time.Time) {
	anchorStart := p.CohortStart
	anchorEnd := p.CohortStart
	if window.AnchorOnCohortEnd {
		anchorStart = p.CohortEnd
		anchorEnd = p.CohortEnd
	}
	start := anchorStart.AddDate(0, 0, window.StartOffsetDays)
	end := anchorEnd.AddDate(0, 0, window.EndOffsetDays)
	return start, end
}

// BuildPopulation turns extracted raw data into the study population for one
// analysis: one record per eligible subject, with the outcome counted inside the
// risk window. Probabilities are zero until a model scores the population.
func BuildPopulation(raw RawData, window RiskWindow, filters []SubjectFilter) []PredictionRecord {
	fmt.Println("Building study population from ", len(raw.Attributes), " cohort entries...")
	// index outcome dates per subject
	outcomes := map[int64][]time.Time{}
	for _, o := range raw.Outcomes {
		outcomes[o.SubjectID] = append(outcomes[o.SubjectID], o.Date)
	}
	entries := raw.Attributes
	if window.FirstExposureOnly {
		entries = firstExposures(entries)
	}
	population := []PredictionRecord{}
	excluded := 0
	for i := range entries {
		p := &entries[i]
		keep := true
		for _, filter := range filters {
			if !filter(p) {
				keep = false
				break
			}
		}
		if !keep {
			excluded++
			continue
		}
		riskStart, riskEnd := riskInterval(p, window)
		if riskEnd.Sub(riskStart) < time.Duration(window.MinTimeAtRiskDays)*24*time.Hour {
			excluded++
			continue
		}
		if window.RemovePriorOutcome && hasPriorOutcome(outcomes[p.SubjectID], riskStart, window.PriorOutcomeLookbackDays) {
			excluded++
			continue
		}
		ctr := 0
		for _, d := range outcomes[p.SubjectID] {
			if !d.Before(riskStart) && !d.After(riskEnd) {
				ctr++
			}
		}
		population = append(population, PredictionRecord{
			SubjectID:    p.SubjectID,
			OutcomeCount: ctr,
			AgeYears:     p.AgeYears,
			Sex:          p.Sex,
		})
	}
	fmt.Println("Study population: ", len(population), " subjects (excluded: ", excluded, ")")
	return population
}

// firstExposures keeps the earliest cohort entry per subject.
func firstExposures(entries []PatientRecord) []PatientRecord {
	sorted := make([]PatientRecord, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SubjectID != sorted[j].SubjectID {
			return sorted[i].SubjectID < sorted[j].SubjectID
		}
		return sorted[i].CohortStart.Before(sorted[j].CohortStart)
	})
	result := []PatientRecord{}
	var lastID int64 = -1
	for _, e := range sorted {
		if e.SubjectID != lastID {
			result = append(result, e)
			lastID = e.SubjectID
		}
	}
	return result
}

// hasPriorOutcome checks for an outcome in [riskStart - lookback, riskStart).
func hasPriorOutcome(dates []time.Time, riskStart time.Time, lookbackDays int) bool {
	lookbackStart := riskStart.AddDate(0, 0, -lookbackDays)
	for _, d := range dates {
		if d.Before(riskStart) && !d.Before(lookbackStart) {
			return true
		}
	}
	return false
}

// OutcomePrevalence returns the fraction of the population with an observed outcome.
func OutcomePrevalence(population []PredictionRecord) float64 {
	if len(population) == 0 {
		return 0.0
	}
	ctr := 0
	for i := range population {
		if population[i].OutcomeCount > 0 {
			ctr++
		}
	}
	return float64(ctr) / float64(len(population))
}

// MaxProbability returns the largest predicted probability in the population.
func MaxProbability(population []PredictionRecord) float64 {
	max := 0.0
	for i := range population {
		if population[i].Probability > max {
			max = population[i].Probability
		}
	}
	return max
}
