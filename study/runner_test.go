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
	"sync"
	"testing"
)

// fakeExtractor serves synthetic raw data and fails for the listed targets.
type fakeExtractor struct {
	failTargets map[int]bool
}

func (e *fakeExtractor) Extract(ctx context.Context, targetID, outcomeID int) (RawData, error) {
	if e.failTargets[targetID] {
		return RawData{}, fmt.Errorf("warehouse unavailable for cohort %d", targetID)
	}
	raw := RawData{}
	for i := 0; i < 40; i++ {
		raw.Attributes = append(raw.Attributes, PatientRecord{
			SubjectID:   int64(i),
			AgeYears:    55.0 + float64(i%30),
			Sex:         i % 2,
			CohortStart: day(0),
			CohortEnd:   day(365),
		})
		if i < 10 {
			raw.Outcomes = append(raw.Outcomes, OutcomeOccurrence{SubjectID: int64(i), Date: day(5)})
		}
		if i%3 == 0 {
			raw.Covariates = append(raw.Covariates, CovariateValue{SubjectID: int64(i), CovariateID: 1, Value: 1.0})
		}
	}
	return raw, nil
}

// fakeModel scores each subject from its identifier so events and non-events
// get overlapping but distinct probabilities.
type fakeModel struct{}

func (m *fakeModel) Name() string { return "fake" }

func (m *fakeModel) Score(raw RawData, population []PredictionRecord) []PredictionRecord {
	result := make([]PredictionRecord, len(population))
	for i := range population {
		r := population[i]
		r.Probability = 0.05 + 0.02*float64(r.SubjectID%10)
		result[i] = r
	}
	return result
}

func (m *fakeModel) Weights() []CovariateWeight {
	return []CovariateWeight{{CovariateID: 1, ConceptID: 100, Name: "Test condition", Weight: 1.0}}
}

// recordingWriter collects bundles; Write is called from the worker pool.
type recordingWriter struct {
	mutex   sync.Mutex
	bundles []*ResultBundle
}

func (w *recordingWriter) Write(bundle *ResultBundle) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.bundles = append(w.bundles, bundle)
	return nil
}

func (w *recordingWriter) bundle(analysisID int) *ResultBundle {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	for _, b := range w.bundles {
		if b.Analysis.ID == analysisID {
			return b
		}
	}
	return nil
}

func testRunner(writer *recordingWriter, failTargets map[int]bool) *Runner {
	return &Runner{
		Extractor: &fakeExtractor{failTargets: failTargets},
		Models:    map[string]ModelProvider{"fake": &fakeModel{}},
		Writer:    writer,
		Opts: RunnerOptions{
			Window: RiskWindow{
				EndOffsetDays:            30,
				FirstExposureOnly:        true,
				RemovePriorOutcome:       false,
				PriorOutcomeLookbackDays: 99999,
				MinTimeAtRiskDays:        1,
			},
			XStart: 0.0,
			XStop:  0.2,
			XBy:    0.05,
		},
	}
}

func TestRunnerSkipsFailedAnalyses(t *testing.T) {
	writer := &recordingWriter{}
	runner := testRunner(writer, map[int]bool{2: true})
	analyses := []Analysis{
		{ID: 1, TargetID: 1, OutcomeID: 10, ModelName: "fake"},
		{ID: 2, TargetID: 2, OutcomeID: 10, ModelName: "fake"},
		{ID: 3, TargetID: 3, OutcomeID: 10, ModelName: "fake"},
	}
	succeeded := runner.Run(context.Background(), analyses)
	if succeeded != 2 {
		t.Errorf("expected 2 successful analyses, got %v", succeeded)
	}
	if len(writer.bundles) != 2 {
		t.Fatalf("expected 2 persisted bundles, got %v", len(writer.bundles))
	}
	if writer.bundle(2) != nil {
		t.Error("the failed analysis must not persist a bundle")
	}
	for _, id := range []int{1, 3} {
		bundle := writer.bundle(id)
		if bundle == nil {
			t.Fatalf("missing bundle for analysis %v", id)
		}
		if len(bundle.Predictions) == 0 {
			t.Errorf("analysis %v has no predictions", id)
		}
		if len(bundle.Evaluation) == 0 {
			t.Errorf("analysis %v has no evaluation rows", id)
		}
		if len(bundle.NetBenefit) == 0 {
			t.Errorf("analysis %v has no decision curve", id)
		}
		if len(bundle.CovariateSummary) == 0 {
			t.Errorf("analysis %v has no covariate summary", id)
		}
	}
}

func TestRunnerUnknownModel(t *testing.T) {
	writer := &recordingWriter{}
	runner := testRunner(writer, nil)
	analyses := []Analysis{{ID: 1, TargetID: 1, OutcomeID: 10, ModelName: "nonesuch"}}
	if succeeded := runner.Run(context.Background(), analyses); succeeded != 0 {
		t.Errorf("expected 0 successful analyses, got %v", succeeded)
	}
}

func TestRunnerRecalibrationRows(t *testing.T) {
	writer := &recordingWriter{}
	runner := testRunner(writer, nil)
	runner.Opts.Recalibrate = true
	runner.Opts.RecalibrateInterceptOnly = true
	analyses := []Analysis{{ID: 1, TargetID: 1, OutcomeID: 10, ModelName: "fake"}}
	if succeeded := runner.Run(context.Background(), analyses); succeeded != 1 {
		t.Fatalf("expected 1 successful analysis, got %v", succeeded)
	}
	bundle := writer.bundle(1)
	if len(bundle.Fits) != 2 {
		t.Fatalf("expected 2 recalibration fits, got %v", len(bundle.Fits))
	}
	if bundle.Fits[0].Mode != RecalibrationInterceptOnly || bundle.Fits[1].Mode != RecalibrationInterceptAndSlope {
		t.Error("wrong recalibration modes recorded")
	}
	strata := map[string]int{}
	intercepts := map[string]bool{}
	for _, row := range bundle.Evaluation {
		strata[row.Stratum]++
		if row.Metric == "intercept" {
			intercepts[row.Stratum] = true
		}
	}
	if strata["validation"] == 0 {
		t.Error("missing baseline evaluation rows")
	}
	for _, stratum := range []string{"recalibrationInTheLarge", "weakRecalibration"} {
		if strata[stratum] == 0 {
			t.Errorf("missing evaluation rows for stratum %v", stratum)
		}
		if !intercepts[stratum] {
			t.Errorf("missing intercept row for stratum %v", stratum)
		}
	}
	// recalibration appends rows, the baseline rows stay first
	if bundle.Evaluation[0].Stratum != "validation" {
		t.Error("baseline rows must precede recalibration rows")
	}
}

func TestRunnerDoesNotMutatePredictionsOnRecalibration(t *testing.T) {
	writer := &recordingWriter{}
	runner := testRunner(writer, nil)
	runner.Opts.Recalibrate = true
	analyses := []Analysis{{ID: 1, TargetID: 1, OutcomeID: 10, ModelName: "fake"}}
	runner.Run(context.Background(), analyses)
	bundle := writer.bundle(1)
	if bundle == nil {
		t.Fatal("missing bundle")
	}
	// the persisted predictions carry the original model probabilities
	for i := range bundle.Predictions {
		p := bundle.Predictions[i].Probability
		expected := 0.05 + 0.02*float64(bundle.Predictions[i].SubjectID%10)
		if p != expected {
			t.Errorf("prediction for subject %v changed: %v", bundle.Predictions[i].SubjectID, p)
		}
	}
}
