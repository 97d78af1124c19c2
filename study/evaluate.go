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
	"math"
	"sort"

	"github.com/exascience/pargo/parallel"
	"github.com/tfalcs/RCRI/utils"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Performance evaluation of a scored population: discrimination, calibration,
// and overall accuracy statistics from (probability, outcome) pairs.

// Evaluation holds the computed statistics for one population. Discrimination
// statistics are NaN when all outcomes are identical.
type Evaluation struct {
	PopulationSize       int
	OutcomeCount         int
	ObservedIncidence    float64
	MeanPredictedRisk    float64
	BrierScore           float64
	BrierScaled          float64
	AUC                  float64
	AUCLower             float64 //2.5th bootstrap percentile
	AUCUpper             float64 //97.5th bootstrap percentile
	CalibrationInLarge   float64 //observed over expected outcome ratio
	CalibrationIntercept float64
	CalibrationSlope     float64
	CalibrationPValue    float64 //binomial tail test of observed vs expected
}

// Evaluate computes the evaluation statistics for a scored population. bootIter
// sets the number of bootstrap resamples for the AUC confidence interval; 0
// skips the interval. Degenerate input (all outcomes identical) yields NaN
// discrimination and calibration regression statistics rather than an error.
func Evaluate(population []PredictionRecord, bootIter int) (*Evaluation, error) {
	n := len(population)
	if n == 0 {
		return nil, &EvaluationError{Step: "evaluate", Err: fmt.Errorf("empty population")}
	}
	eval := &Evaluation{PopulationSize: n}
	meanRisk := 0.0
	brier := 0.0
	for i := range population {
		p := population[i].Probability
		y := 0.0
		if population[i].OutcomeCount > 0 {
			y = 1.0
			eval.OutcomeCount++
		}
		meanRisk += p
		brier += (p - y) * (p - y)
	}
	eval.ObservedIncidence = float64(eval.OutcomeCount) / float64(n)
	eval.MeanPredictedRisk = meanRisk / float64(n)
	eval.BrierScore = brier / float64(n)
	// scale the Brier score against the no-information score
	inc := eval.ObservedIncidence
	brierMax := inc * (1.0 - inc)
	if brierMax > 0.0 {
		eval.BrierScaled = 1.0 - eval.BrierScore/brierMax
	} else {
		eval.BrierScaled = math.NaN()
	}
	eval.AUC = aucFromPopulation(population)
	eval.AUCLower, eval.AUCUpper = math.NaN(), math.NaN()
	if bootIter > 0 && !math.IsNaN(eval.AUC) {
		eval.AUCLower, eval.AUCUpper = bootstrapAUCInterval(population, bootIter)
	}
	if eval.MeanPredictedRisk > 0.0 {
		eval.CalibrationInLarge = eval.ObservedIncidence / eval.MeanPredictedRisk
	} else {
		eval.CalibrationInLarge = math.NaN()
	}
	eval.CalibrationIntercept = math.NaN()
	eval.CalibrationSlope = math.NaN()
	if fit, err := FitRecalibration(population, RecalibrationInterceptOnly); err == nil {
		eval.CalibrationIntercept = fit.Intercept
	}
	if fit, err := FitRecalibration(population, RecalibrationInterceptAndSlope); err == nil {
		eval.CalibrationSlope = fit.Slope
	}
	eval.CalibrationPValue = utils.BinomialTail(eval.MeanPredictedRisk, n, eval.OutcomeCount)
	return eval, nil
}

// aucFromPopulation computes the area under the ROC curve. Returns NaN when all
// outcomes are identical, i.e. when discrimination is undefined.
func aucFromPopulation(population []PredictionRecord) float64 {
	y := make([]float64, len(population))
	classes := make([]bool, len(population))
	events := 0
	for i := range population {
		y[i] = population[i].Probability
		if population[i].OutcomeCount > 0 {
			classes[i] = true
			events++
		}
	}
	if events == 0 || events == len(population) {
		return math.NaN()
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// bootstrapAUCInterval estimates a 95% percentile interval for the AUC by
// resampling the population with replacement. The resamples are fanned out
// over the worker pool; resamples with all outcomes identical are discarded.
func bootstrapAUCInterval(population []PredictionRecord, iter int) (float64, float64) {
	n := len(population)
	result := parallel.RangeReduce(0, iter, 0, func(low, high int) interface{} {
		local := []float64{}
		resample := make([]PredictionRecord, n)
		for i := low; i < high; i++ {
			for j := 0; j < n; j++ {
				resample[j] = population[fastrand.Uint32n(uint32(n))]
			}
			auc := aucFromPopulation(resample)
			if !math.IsNaN(auc) {
				local = append(local, auc)
			}
		}
		return local
	}, func(result1, result2 interface{}) interface{} {
		r1 := result1.([]float64)
		r2 := result2.([]float64)
		return append(r1, r2...)
	})
	aucs := result.([]float64)
	if len(aucs) < 2 {
		return math.NaN(), math.NaN()
	}
	sort.Float64s(aucs)
	lowerIdx := int(0.025 * float64(len(aucs)))
	upperIdx := utils.MinInt(int(0.975*float64(len(aucs))), len(aucs)-1)
	return aucs[lowerIdx], aucs[upperIdx]
}

// EvaluationRow is one flattened statistic, tagged with the analysis it belongs
// to so rows can be concatenated across analyses.
type EvaluationRow struct {
	AnalysisID int
	Metric     string
	Stratum    string
	Value      float64
}

// EvaluationTable is an append-only collection of evaluation rows.
// Recalibration appends extra rows rather than mutating existing ones.
type EvaluationTable []EvaluationRow

// Reformat flattens an evaluation into table rows tagged with the analysis id
// and a stratum label.
func Reformat(eval *Evaluation, analysisID int, stratum string) EvaluationTable {
	return EvaluationTable{
		{analysisID, "populationSize", stratum, float64(eval.PopulationSize)},
		{analysisID, "outcomeCount", stratum, float64(eval.OutcomeCount)},
		{analysisID, "observedIncidence", stratum, eval.ObservedIncidence},
		{analysisID, "meanPredictedRisk", stratum, eval.MeanPredictedRisk},
		{analysisID, "brierScore", stratum, eval.BrierScore},
		{analysisID, "brierScaled", stratum, eval.BrierScaled},
		{analysisID, "AUROC", stratum, eval.AUC},
		{analysisID, "AUROC95LB", stratum, eval.AUCLower},
		{analysisID, "AUROC95UB", stratum, eval.AUCUpper},
		{analysisID, "calibrationInLarge", stratum, eval.CalibrationInLarge},
		{analysisID, "calibrationIntercept", stratum, eval.CalibrationIntercept},
		{analysisID, "calibrationSlope", stratum, eval.CalibrationSlope},
		{analysisID, "calibrationPValue", stratum, eval.CalibrationPValue},
	}
}
