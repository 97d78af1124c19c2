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
	"context"
	"fmt"
	"log"

	"github.com/exascience/pargo/parallel"
)

// The study runner: one validation analysis per (target cohort, outcome
// cohort, model) triple, fanned out over a worker pool. Analyses are
// independent; a failed analysis is logged and skipped while the rest of the
// batch continues.

// Analysis identifies one (target, outcome, model) triple in a run.
type Analysis struct {
	ID        int
	TargetID  int
	OutcomeID int
	ModelName string
}

// Extractor pulls raw covariate, outcome, and demographic data for one
// (target, outcome) cohort pair.
type Extractor interface {
	Extract(ctx context.Context, targetID, outcomeID int) (RawData, error)
}

// ModelProvider scores a study population with a fixed scoring rule and
// exposes the rule's covariate contributions.
type ModelProvider interface {
	Name() string
	Score(raw RawData, population []PredictionRecord) []PredictionRecord
	Weights() []CovariateWeight
}

// ResultWriter persists one analysis result bundle.
type ResultWriter interface {
	Write(bundle *ResultBundle) error
}

// ResultBundle is everything one analysis produces. Optional parts are nil or
// empty when the corresponding step failed or was not requested.
type ResultBundle struct {
	Analysis         Analysis
	Predictions      []PredictionRecord
	Evaluation       EvaluationTable
	CovariateSummary []CovariateSummaryRow
	NetBenefit       NetBenefitCurve
	Fits             []RecalibrationFit
}

// RunnerOptions configures the per-analysis pipeline.
type RunnerOptions struct {
	Window                   RiskWindow
	Filters                  []SubjectFilter
	Recalibrate              bool //fit intercept and slope
	RecalibrateInterceptOnly bool //fit intercept with the logit as fixed offset
	XStart, XStop, XBy       float64
	BootstrapIter            int
}

// Runner orchestrates a batch of validation analyses.
type Runner struct {
	Extractor Extractor
	Models    map[string]ModelProvider
	Writer    ResultWriter
	Opts      RunnerOptions
}

// Run processes all analyses and returns the number that produced a persisted
// result bundle. Analyses are fanned out over the worker pool; each analysis
// owns its data and writes to its own output location, so no coordination is
// needed beyond the database connection pool.
func (r *Runner) Run(ctx context.Context, analyses []Analysis) int {
	fmt.Println("Running ", len(analyses), " validation analyses...")
	result := parallel.RangeReduce(0, len(analyses), 0, func(low, high int) interface{} {
		succeeded := 0
		for i := low; i < high; i++ {
			if err := r.runOne(ctx, analyses[i]); err != nil {
				log.Println("Skipping analysis ", analyses[i].ID, ": ", err)
				continue
			}
			succeeded++
		}
		return succeeded
	}, func(result1, result2 interface{}) interface{} {
		return result1.(int) + result2.(int)
	})
	succeeded := result.(int)
	fmt.Println("Completed ", succeeded, " of ", len(analyses), " analyses.")
	return succeeded
}

// runOne executes the full pipeline for a single analysis: extract, build the
// population, score, evaluate, optionally recalibrate, sweep the decision
// curve, summarize covariates, and persist.
func (r *Runner) runOne(ctx context.Context, analysis Analysis) error {
	model, ok := r.Models[analysis.ModelName]
	if !ok {
		return &ExtractionError{AnalysisID: analysis.ID, Err: fmt.Errorf("unknown model %q", analysis.ModelName)}
	}
	raw, err := r.Extractor.Extract(ctx, analysis.TargetID, analysis.OutcomeID)
	if err != nil {
		return &ExtractionError{AnalysisID: analysis.ID, Err: err}
	}
	population := BuildPopulation(raw, r.Opts.Window, r.Opts.Filters)
	if len(population) == 0 {
		return &ExtractionError{AnalysisID: analysis.ID, Err: fmt.Errorf("empty study population")}
	}
	predictions := model.Score(raw, population)
	bundle := &ResultBundle{Analysis: analysis, Predictions: predictions}
	// evaluation; a failure omits the table and the rest proceeds best effort
	eval, err := Evaluate(predictions, r.Opts.BootstrapIter)
	if err != nil {
		log.Println("Analysis ", analysis.ID, ": ", err)
	} else {
		bundle.Evaluation = Reformat(eval, analysis.ID, "validation")
	}
	// optional recalibration; both modes can be requested and both append rows
	for _, mode := range r.requestedModes() {
		fit, err := FitRecalibration(predictions, mode)
		if err != nil {
			log.Println("Analysis ", analysis.ID, ": ", err)
			continue
		}
		bundle.Fits = append(bundle.Fits, fit)
		remapped := ApplyRecalibration(fit, predictions)
		recalEval, err := Evaluate(remapped, r.Opts.BootstrapIter)
		if err != nil {
			log.Println("Analysis ", analysis.ID, ": ", err)
			continue
		}
		bundle.Evaluation = append(bundle.Evaluation, Reformat(recalEval, analysis.ID, mode.String())...)
		bundle.Evaluation = append(bundle.Evaluation,
			EvaluationRow{analysis.ID, "intercept", mode.String(), fit.Intercept},
			EvaluationRow{analysis.ID, "gradient", mode.String(), fit.Slope})
	}
	bundle.NetBenefit = DecisionCurve(predictions, r.Opts.XStart, r.Opts.XStop, r.Opts.XBy)
	summary := CovariateSummary(raw, predictions, model.Weights(), analysis.ID)
	bundle.CovariateSummary = MergeDemographicSummaries(summary, predictions, analysis.ID)
	if err := r.Writer.Write(bundle); err != nil {
		return &EvaluationError{Step: "persist", Err: err}
	}
	return nil
}

// requestedModes maps the two recalibration flags onto explicit modes. Both
// flags may be set at once; each fit runs with a single mode.
func (r *Runner) requestedModes() []RecalibrationMode {
	modes := []RecalibrationMode{}
	if r.Opts.RecalibrateInterceptOnly {
		modes = append(modes, RecalibrationInterceptOnly)
	}
	if r.Opts.Recalibrate {
		modes = append(modes, RecalibrationInterceptAndSlope)
	}
	return modes
}
