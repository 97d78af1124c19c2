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

package model

import (
	"math"

	"github.com/tfalcs/RCRI/study"
	"github.com/tfalcs/RCRI/utils"
	"github.com/tfalcs/RCRI/warehouse"
)

// The Revised Cardiac Risk Index: six one-point components summed into a
// class, mapped to the risk of major cardiac complications after noncardiac
// surgery. An implementation of Lee et al., Circulation 1999.

// Covariate identifiers for the six RCRI components.
const (
	CovariateHighRiskSurgery        = 1
	CovariateIschemicHeartDisease   = 2
	CovariateCongestiveHeartFailure = 3
	CovariateCerebrovascularDisease = 4
	CovariateInsulinTherapy         = 5
	CovariateElevatedCreatinine     = 6
)

// Maps the RCRI point total to the complication risk; 3 stands for 3 or more.
var scoreToComplicationRisk = map[int]float64{0: 0.004, 1: 0.009, 2: 0.066, 3: 0.110}

// rcriComponents are the six standard components with one point each. Concept
// ids refer to OMOP standard vocabulary concepts or concept set roots.
var rcriComponents = []study.CovariateWeight{
	{CovariateID: CovariateHighRiskSurgery, ConceptID: 4301351, Name: "High-risk surgery", Weight: 1.0},
	{CovariateID: CovariateIschemicHeartDisease, ConceptID: 4185932, Name: "Ischemic heart disease", Weight: 1.0},
	{CovariateID: CovariateCongestiveHeartFailure, ConceptID: 316139, Name: "Congestive heart failure", Weight: 1.0},
	{CovariateID: CovariateCerebrovascularDisease, ConceptID: 381591, Name: "Cerebrovascular disease", Weight: 1.0},
	{CovariateID: CovariateInsulinTherapy, ConceptID: 21600713, Name: "Insulin therapy for diabetes", Weight: 1.0},
	{CovariateID: CovariateElevatedCreatinine, ConceptID: 3016723, Name: "Creatinine > 2 mg/dL", Weight: 1.0},
}

// Provider is a fixed point-based scoring rule over a subset of the RCRI
// components. It implements study.ModelProvider.
type Provider struct {
	name    string
	weights []study.CovariateWeight
}

// NewRCRI creates a provider restricted to the included covariate ids. A nil
// inclusion map keeps all six components.
func NewRCRI(name string, included map[int64]bool) *Provider {
	weights := []study.CovariateWeight{}
	for _, w := range rcriComponents {
		if included == nil || included[w.CovariateID] {
			weights = append(weights, w)
		}
	}
	return &Provider{name: name, weights: weights}
}

func (m *Provider) Name() string { return m.name }

// Weights exposes the covariate contributions of the scoring rule.
func (m *Provider) Weights() []study.CovariateWeight {
	weights := make([]study.CovariateWeight, len(m.weights))
	copy(weights, m.weights)
	return weights
}

// Score assigns each population record its point total's mapped probability.
// It returns fresh records; outcome and identifiers are unchanged.
func (m *Provider) Score(raw study.RawData, population []study.PredictionRecord) []study.PredictionRecord {
	// index extracted covariate values per (subject, covariate)
	values := map[int64]map[int64]float64{}
	for _, cv := range raw.Covariates {
		if _, ok := values[cv.SubjectID]; !ok {
			values[cv.SubjectID] = map[int64]float64{}
		}
		values[cv.SubjectID][cv.CovariateID] = cv.Value
	}
	result := make([]study.PredictionRecord, len(population))
	for i := range population {
		r := population[i]
		points := 0.0
		for _, w := range m.weights {
			points += w.Weight * values[r.SubjectID][w.CovariateID]
		}
		class := utils.MinInt(int(math.Round(points)), 3)
		r.Probability = utils.ClampProbability(scoreToComplicationRisk[class])
		result[i] = r
	}
	return result
}

// DefaultCovariateSettings maps the RCRI components onto warehouse extraction
// settings: conditions, procedures, drugs, and the creatinine measurement.
func DefaultCovariateSettings() warehouse.CovariateSettings {
	return warehouse.CovariateSettings{
		Conditions: []warehouse.ConceptGroup{
			{CovariateID: CovariateIschemicHeartDisease, ConceptIDs: []int64{4185932, 4329847}},
			{CovariateID: CovariateCongestiveHeartFailure, ConceptIDs: []int64{316139}},
			{CovariateID: CovariateCerebrovascularDisease, ConceptIDs: []int64{381591, 4043731}},
		},
		Procedures: []warehouse.ConceptGroup{
			{CovariateID: CovariateHighRiskSurgery, ConceptIDs: []int64{4301351}},
		},
		Drugs: []warehouse.ConceptGroup{
			{CovariateID: CovariateInsulinTherapy, ConceptIDs: []int64{21600713}},
		},
		Measurements: []warehouse.MeasurementSpec{
			{CovariateID: CovariateElevatedCreatinine, ConceptID: 3016723, Threshold: 2.0},
		},
		LookbackDays: 365,
	}
}
