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

	"github.com/tfalcs/RCRI/utils"
	"gonum.org/v1/gonum/mat"
)

// Logistic recalibration of the model's probability mapping. The scoring rule
// itself never changes; only the mapping from log odds to probability is
// refit against the locally observed outcomes.

// RecalibrationMode selects which coefficients of the recalibration model are free.
type RecalibrationMode int

const (
	RecalibrationNone RecalibrationMode = iota
	RecalibrationInterceptOnly
	RecalibrationInterceptAndSlope
)

func (m RecalibrationMode) String() string {
	switch m {
	case RecalibrationInterceptOnly:
		return "recalibrationInTheLarge"
	case RecalibrationInterceptAndSlope:
		return "weakRecalibration"
	default:
		return "none"
	}
}

// RecalibrationFit holds the fitted coefficients. Slope is fixed at 1.0 in
// intercept-only mode. A fit is immutable once computed.
type RecalibrationFit struct {
	Intercept float64
	Slope     float64
	Mode      RecalibrationMode
}

const (
	newtonMaxIter   = 25
	newtonTolerance = 1e-10
)

// FitRecalibration fits a logistic recalibration model of the binary outcome
// against the clamped logit of the predicted probability.
//
// In intercept-and-slope mode both coefficients are free:
// y ~ sigmoid(a + b*logit(p)). In intercept-only mode the logit enters as a
// fixed offset with coefficient 1 and only the intercept is free:
// y ~ sigmoid(logit(p) + a).
func FitRecalibration(population []PredictionRecord, mode RecalibrationMode) (RecalibrationFit, error) {
	n := len(population)
	if n == 0 {
		return RecalibrationFit{}, &RecalibrationError{Mode: mode, Reason: "empty population"}
	}
	x := make([]float64, n)
	y := make([]float64, n)
	events := 0
	for i := range population {
		x[i] = utils.Logit(utils.ClampProbability(population[i].Probability))
		if population[i].OutcomeCount > 0 {
			y[i] = 1.0
			events++
		}
	}
	if events == 0 || events == n {
		return RecalibrationFit{}, &RecalibrationError{Mode: mode, Reason: "all outcomes identical"}
	}
	switch mode {
	case RecalibrationInterceptOnly:
		return fitInterceptOnly(x, y, mode)
	case RecalibrationInterceptAndSlope:
		return fitInterceptAndSlope(x, y, mode)
	default:
		return RecalibrationFit{Intercept: 0.0, Slope: 1.0, Mode: RecalibrationNone}, nil
	}
}

// fitInterceptOnly runs one-dimensional Newton iterations for the intercept,
// with the logit term as a fixed offset.
func fitInterceptOnly(x, y []float64, mode RecalibrationMode) (RecalibrationFit, error) {
	a := 0.0
	for iter := 0; iter < newtonMaxIter; iter++ {
		grad := 0.0
		hess := 0.0
		for i := range x {
			mu := utils.Sigmoid(x[i] + a)
			grad += y[i] - mu
			hess += mu * (1.0 - mu)
		}
		if hess == 0.0 {
			return RecalibrationFit{}, &RecalibrationError{Mode: mode, Reason: "singular Hessian"}
		}
		step := grad / hess
		a += step
		if math.Abs(step) < newtonTolerance {
			return RecalibrationFit{Intercept: a, Slope: 1.0, Mode: mode}, nil
		}
	}
	return RecalibrationFit{}, &RecalibrationError{Mode: mode, Reason: "Newton iterations did not converge"}
}

// fitInterceptAndSlope runs two-dimensional Newton iterations, solving the
// 2x2 system H*delta = g each step.
func fitInterceptAndSlope(x, y []float64, mode RecalibrationMode) (RecalibrationFit, error) {
	a, b := 0.0, 1.0
	grad := mat.NewVecDense(2, nil)
	hess := mat.NewDense(2, 2, nil)
	var delta mat.VecDense
	for iter := 0; iter < newtonMaxIter; iter++ {
		g0, g1 := 0.0, 0.0
		h00, h01, h11 := 0.0, 0.0, 0.0
		for i := range x {
			mu := utils.Sigmoid(a + b*x[i])
			r := y[i] - mu
			w := mu * (1.0 - mu)
			g0 += r
			g1 += r * x[i]
			h00 += w
			h01 += w * x[i]
			h11 += w * x[i] * x[i]
		}
		grad.SetVec(0, g0)
		grad.SetVec(1, g1)
		hess.Set(0, 0, h00)
		hess.Set(0, 1, h01)
		hess.Set(1, 0, h01)
		hess.Set(1, 1, h11)
		if err := delta.SolveVec(hess, grad); err != nil {
			return RecalibrationFit{}, &RecalibrationError{Mode: mode, Reason: "singular Hessian"}
		}
		a += delta.AtVec(0)
		b += delta.AtVec(1)
		if math.Abs(delta.AtVec(0)) < newtonTolerance && math.Abs(delta.AtVec(1)) < newtonTolerance {
			return RecalibrationFit{Intercept: a, Slope: b, Mode: mode}, nil
		}
	}
	return RecalibrationFit{}, &RecalibrationError{Mode: mode, Reason: "Newton iterations did not converge"}
}

// ApplyRecalibration remaps the probabilities of a population through a fitted
// recalibration model. It returns fresh records; outcomes and identifiers are
// unchanged.
func ApplyRecalibration(fit RecalibrationFit, population []PredictionRecord) []PredictionRecord {
	result := make([]PredictionRecord, len(population))
	for i := range population {
		r := population[i]
		logit := utils.Logit(utils.ClampProbability(r.Probability))
		r.Probability = utils.Sigmoid(fit.Intercept + fit.Slope*logit)
		result[i] = r
	}
	return result
}
