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
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Result persistence. Each analysis writes one bundle into its own directory
// under the output path:
// - prediction.csv: the scored population, one row per subject
// - evaluation.csv: the flattened evaluation table
// - covariate_summary.csv: covariate balance plus demographic pseudo rows
// - netbenefit.csv: the decision curve
// - recalibration.csv: fitted recalibration coefficients
// - netbenefit.png, calibration.png: plots

// CSVResultWriter writes result bundles as CSV files under OutputPath.
type CSVResultWriter struct {
	OutputPath string
	Plots      bool
}

// analysisDir returns the per-analysis output directory, creating it if needed.
func (w *CSVResultWriter) analysisDir(id int) (string, error) {
	dir := filepath.Join(w.OutputPath, fmt.Sprintf("analysis_%d", id))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// Write persists one bundle. Plot failures are logged but do not fail the
// bundle; the tables are the primary output.
func (w *CSVResultWriter) Write(bundle *ResultBundle) error {
	dir, err := w.analysisDir(bundle.Analysis.ID)
	if err != nil {
		return err
	}
	if err := writePredictions(bundle, filepath.Join(dir, "prediction.csv")); err != nil {
		return err
	}
	if err := writeEvaluation(bundle.Evaluation, filepath.Join(dir, "evaluation.csv")); err != nil {
		return err
	}
	if err := writeCovariateSummary(bundle.CovariateSummary, filepath.Join(dir, "covariate_summary.csv")); err != nil {
		return err
	}
	if err := writeNetBenefit(bundle.NetBenefit, filepath.Join(dir, "netbenefit.csv")); err != nil {
		return err
	}
	if err := writeFits(bundle.Fits, filepath.Join(dir, "recalibration.csv")); err != nil {
		return err
	}
	if w.Plots {
		if err := PlotDecisionCurve(bundle.NetBenefit, filepath.Join(dir, "netbenefit.png")); err != nil {
			log.Println("Analysis ", bundle.Analysis.ID, ": net benefit plot failed: ", err)
		}
		if err := PlotCalibration(bundle.Predictions, filepath.Join(dir, "calibration.png")); err != nil {
			log.Println("Analysis ", bundle.Analysis.ID, ": calibration plot failed: ", err)
		}
	}
	return nil
}

func writePredictions(bundle *ResultBundle, name string) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer file.Close()
	fmt.Fprintf(file, "subjectId,value,outcomeCount,ageYears,sex\n")
	for i := range bundle.Predictions {
		p := &bundle.Predictions[i]
		fmt.Fprintf(file, "%d,%s,%d,%s,%d\n", p.SubjectID,
			strconv.FormatFloat(p.Probability, 'E', -1, 64), p.OutcomeCount,
			strconv.FormatFloat(p.AgeYears, 'f', 2, 64), p.Sex)
	}
	return nil
}

func writeEvaluation(table EvaluationTable, name string) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer file.Close()
	fmt.Fprintf(file, "analysisId,metric,stratum,value\n")
	for _, row := range table {
		fmt.Fprintf(file, "%d,%s,%s,%s\n", row.AnalysisID, row.Metric, row.Stratum,
			strconv.FormatFloat(row.Value, 'E', -1, 64))
	}
	return nil
}

func writeCovariateSummary(summary []CovariateSummaryRow, name string) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer file.Close()
	fmt.Fprintf(file, "covariateId,covariateName,analysisId,conceptId,value,covariateCount,"+
		"withOutcomeCount,withNoOutcomeCount,withOutcomeMean,withNoOutcomeMean,"+
		"withOutcomeStdDev,withNoOutcomeStdDev,stdDiff\n")
	for i := range summary {
		r := &summary[i]
		fmt.Fprintf(file, "%d,%s,%d,%d,%s,%d,%d,%d,%s,%s,%s,%s,%s\n",
			r.CovariateID, r.CovariateName, r.AnalysisID, r.ConceptID,
			strconv.FormatFloat(r.Value, 'f', 4, 64), r.CovariateCount,
			r.WithOutcomeCount, r.WithNoOutcomeCount,
			strconv.FormatFloat(r.WithOutcomeMean, 'f', 6, 64),
			strconv.FormatFloat(r.WithNoOutcomeMean, 'f', 6, 64),
			strconv.FormatFloat(r.WithOutcomeStdDev, 'f', 6, 64),
			strconv.FormatFloat(r.WithNoOutcomeStdDev, 'f', 6, 64),
			strconv.FormatFloat(r.StdDiff, 'f', 6, 64))
	}
	return nil
}

func writeNetBenefit(curve NetBenefitCurve, name string) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer file.Close()
	fmt.Fprintf(file, "threshold,netBenefit\n")
	for _, point := range curve {
		fmt.Fprintf(file, "%s,%s\n", strconv.FormatFloat(point.Threshold, 'f', 4, 64),
			strconv.FormatFloat(point.NetBenefit, 'E', -1, 64))
	}
	return nil
}

func writeFits(fits []RecalibrationFit, name string) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer file.Close()
	fmt.Fprintf(file, "mode,intercept,gradient\n")
	for _, fit := range fits {
		fmt.Fprintf(file, "%s,%s,%s\n", fit.Mode,
			strconv.FormatFloat(fit.Intercept, 'E', -1, 64),
			strconv.FormatFloat(fit.Slope, 'E', -1, 64))
	}
	return nil
}

// shareableFiles are the per-analysis tables that may leave the site. Row-level
// predictions never do.
var shareableFiles = []string{"evaluation.csv", "covariate_summary.csv", "netbenefit.csv", "recalibration.csv"}

// PackageResults collects the shareable tables of all analyses under
// outputPath into results_share.zip, applying minimum-cell-count redaction:
// any covariate summary row with a nonzero outcome group count below
// minCellCount is removed, and count-valued evaluation rows below the
// threshold are removed.
func PackageResults(outputPath string, minCellCount int) error {
	dirs, err := filepath.Glob(filepath.Join(outputPath, "analysis_*"))
	if err != nil {
		return err
	}
	sort.Strings(dirs)
	zipFile, err := os.Create(filepath.Join(outputPath, "results_share.zip"))
	if err != nil {
		return err
	}
	defer zipFile.Close()
	archive := zip.NewWriter(zipFile)
	defer archive.Close()
	ctr := 0
	for _, dir := range dirs {
		for _, name := range shareableFiles {
			src := filepath.Join(dir, name)
			if _, err := os.Stat(src); err != nil {
				continue //analysis step was skipped, nothing to share
			}
			entry, err := archive.Create(filepath.Join(filepath.Base(dir), name))
			if err != nil {
				return err
			}
			if err := copyRedacted(src, name, minCellCount, entry); err != nil {
				return err
			}
			ctr++
		}
	}
	fmt.Println("Packaged ", ctr, " files into results_share.zip (minimum cell count: ", minCellCount, ")")
	return nil
}

// copyRedacted streams one CSV into the archive, dropping rows that violate
// the minimum cell count.
func copyRedacted(src, name string, minCellCount int, dst io.Writer) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()
	reader := csv.NewReader(file)
	writer := csv.NewWriter(dst)
	defer writer.Flush()
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if first {
			first = false
			if err := writer.Write(record); err != nil {
				return err
			}
			continue
		}
		if redactRecord(record, name, minCellCount) {
			continue
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// redactRecord decides whether a row must be withheld from sharing.
func redactRecord(record []string, name string, minCellCount int) bool {
	switch name {
	case "covariate_summary.csv":
		// columns 5 to 7 are the covariate count and the outcome group counts
		for _, idx := range []int{5, 6, 7} {
			n, err := strconv.Atoi(record[idx])
			if err == nil && n > 0 && n < minCellCount {
				return true
			}
		}
	case "evaluation.csv":
		metric := record[1]
		if metric == "populationSize" || metric == "outcomeCount" {
			v, err := strconv.ParseFloat(record[3], 64)
			if err == nil && v > 0 && v < float64(minCellCount) {
				return true
			}
		}
	}
	return false
}

// PrintEvaluation prints the evaluation table of a bundle to standard output.
func PrintEvaluation(table EvaluationTable) {
	for _, row := range table {
		fmt.Println(row.Metric, " (", row.Stratum, "): ", row.Value)
	}
}

// ViewResults prints the persisted evaluation tables of all analyses under
// outputPath. It reports whether anything was shown.
func ViewResults(outputPath string) (bool, error) {
	files, err := filepath.Glob(filepath.Join(outputPath, "analysis_*", "evaluation.csv"))
	if err != nil {
		return false, err
	}
	sort.Strings(files)
	shown := false
	for _, name := range files {
		file, err := os.Open(name)
		if err != nil {
			return shown, err
		}
		reader := csv.NewReader(file)
		first := true
		for {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				file.Close()
				return shown, err
			}
			if first {
				first = false
				fmt.Println("Evaluation for analysis ", filepath.Base(filepath.Dir(name)), ":")
				continue
			}
			fmt.Println(record[1], " (", record[2], "): ", record[3])
		}
		file.Close()
		shown = true
	}
	return shown, nil
}
