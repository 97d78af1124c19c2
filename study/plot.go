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

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plotting of decision and calibration curves to PNG files.

// PlotDecisionCurve draws the net benefit curve with a zero reference line.
func PlotDecisionCurve(curve NetBenefitCurve, name string) error {
	if len(curve) == 0 {
		return fmt.Errorf("empty net benefit curve")
	}
	p := plot.New()
	p.Title.Text = "Decision curve"
	p.X.Label.Text = "Threshold probability"
	p.Y.Label.Text = "Net benefit"
	pts := make(plotter.XYs, len(curve))
	for i, point := range curve {
		pts[i].X = point.Threshold
		pts[i].Y = point.NetBenefit
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	zero, err := plotter.NewLine(plotter.XYs{{X: curve[0].Threshold, Y: 0.0}, {X: curve[len(curve)-1].Threshold, Y: 0.0}})
	if err != nil {
		return err
	}
	zero.LineStyle.Width = vg.Points(0.5)
	p.Add(line, zero)
	p.Legend.Add("model", line)
	p.Legend.Add("treat none", zero)
	return p.Save(6*vg.Inch, 4*vg.Inch, name)
}

// PlotCalibration draws observed incidence against mean predicted risk per
// decile of predicted risk, with the ideal diagonal for reference.
func PlotCalibration(population []PredictionRecord, name string) error {
	if len(population) == 0 {
		return fmt.Errorf("empty population")
	}
	sorted := make([]PredictionRecord, len(population))
	copy(sorted, population)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Probability < sorted[j].Probability })
	groups := 10
	if len(sorted) < groups {
		groups = len(sorted)
	}
	pts := plotter.XYs{}
	maxRisk := 0.0
	for g := 0; g < groups; g++ {
		lo := g * len(sorted) / groups
		hi := (g + 1) * len(sorted) / groups
		if lo == hi {
			continue
		}
		predicted := []float64{}
		observed := []float64{}
		for _, r := range sorted[lo:hi] {
			predicted = append(predicted, r.Probability)
			y := 0.0
			if r.OutcomeCount > 0 {
				y = 1.0
			}
			observed = append(observed, y)
		}
		x := stat.Mean(predicted, nil)
		y := stat.Mean(observed, nil)
		if x > maxRisk {
			maxRisk = x
		}
		if y > maxRisk {
			maxRisk = y
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	p := plot.New()
	p.Title.Text = "Calibration"
	p.X.Label.Text = "Mean predicted risk"
	p.Y.Label.Text = "Observed incidence"
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	diagonal, err := plotter.NewLine(plotter.XYs{{X: 0.0, Y: 0.0}, {X: maxRisk, Y: maxRisk}})
	if err != nil {
		return err
	}
	diagonal.LineStyle.Width = vg.Points(0.5)
	p.Add(scatter, diagonal)
	p.Legend.Add("risk deciles", scatter)
	p.Legend.Add("ideal", diagonal)
	return p.Save(6*vg.Inch, 4*vg.Inch, name)
}
