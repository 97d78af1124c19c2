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

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/tfalcs/RCRI/model"
	"github.com/tfalcs/RCRI/study"
	"github.com/tfalcs/RCRI/warehouse"
)

/*
Rcri validates the Revised Cardiac Risk Index against a local OMOP CDM
database.

Usage:
	rcri cohortFile outputPath [flags]

Example:
	rcri cohorts.csv ./rcri_validation/ --dbDSN postgres://ohdsi@localhost:5432/cdm --cdmSchema cdm
	--resultsSchema results --createCohorts --analyses all --riskWindowStart 0 --riskWindowEnd 30
	--recalibrate --recalibrateInterceptOnly --iter 1000 --packageResults --minCellCount 5

The flags are:

--dbDSN string
	The connection string for the database. Defaults to the RCRI_DB_DSN environment variable.
--cdmSchema string
	The schema holding the OMOP CDM clinical tables.
--resultsSchema string
	The schema where the cohort table is created and read.
--cohortTable string
	The name of the cohort table in the results schema.
--modelSettings file
	A CSV file with columns model,covariateId that defines restricted model variants. Each distinct
	model name becomes a scoring rule over the listed RCRI components. The full six-component index
	is always available under the name "rcri". A malformed file aborts the run.
--analyses all | t:o:model,...
	The analyses to run. "all" crosses every target cohort with every outcome cohort and every model.
	Otherwise a comma-separated list of target:outcome:model triples, e.g. "1:10:rcri,2:10:rcri".
--createCohorts
	Materialize the cohort table from the cohort definitions before running analyses.
--runAnalyses
	Run the validation analyses (on by default).
--riskWindowStart nr
	Days after the anchor when the risk window opens.
--riskWindowEnd nr
	Days after the anchor when the risk window closes.
--anchorOnCohortEnd
	Anchor the risk window on cohort end instead of cohort start.
--firstExposureOnly
	Keep only the earliest target cohort entry per subject.
--removePriorOutcome
	Exclude subjects with the outcome before the risk window opens.
--priorOutcomeLookback nr
	How many days back to look for prior outcomes.
--minTimeAtRisk nr
	The minimum length of the risk window in days.
--pfilters male | female | age70+ | age70-
	A list of filters for selecting subjects that enter the study population.
--recalibrate
	Refit intercept and slope of the probability mapping on the local population.
--recalibrateInterceptOnly
	Refit only the intercept, with the original log odds as a fixed offset. Can be combined with
	--recalibrate; both fits then append their coefficients to the evaluation table.
--iter nr
	The number of bootstrap resamples for the AUROC confidence interval. 0 skips the interval.
--xstart nr, --xstop nr, --xby nr
	The threshold sweep for the decision curve. xstop 0 defaults to the maximum predicted risk.
--packageResults
	Collect the shareable tables into a zip, redacting cells below the minimum cell count.
--minCellCount nr
	The minimum cell count for redaction when packaging.
--viewResults
	Print the persisted evaluation tables after the run.
--noPlots
	Skip writing the decision and calibration plots.
--nrOfThreads nr
	The number of threads rcri uses.
*/

const (
	programVersion = 0.1
	programName    = "rcri"
)

func programMessage() string {
	return fmt.Sprint(programName, " version ", programVersion, " compiled with ", runtime.Version())
}

const rcriHelp = "\nrcri parameters:\n" +
	"rcri cohortFile outputPath\n" +
	"[--dbDSN string]\n" +
	"[--cdmSchema string]\n" +
	"[--resultsSchema string]\n" +
	"[--cohortTable string]\n" +
	"[--modelSettings file]\n" +
	"[--analyses all | t:o:model,...]\n" +
	"[--createCohorts]\n" +
	"[--runAnalyses]\n" +
	"[--riskWindowStart nr]\n" +
	"[--riskWindowEnd nr]\n" +
	"[--anchorOnCohortEnd]\n" +
	"[--firstExposureOnly]\n" +
	"[--removePriorOutcome]\n" +
	"[--priorOutcomeLookback nr]\n" +
	"[--minTimeAtRisk nr]\n" +
	"[--pfilters male | female | age70+ | age70- ]\n" +
	"[--recalibrate]\n" +
	"[--recalibrateInterceptOnly]\n" +
	"[--iter nr]\n" +
	"[--xstart nr] [--xstop nr] [--xby nr]\n" +
	"[--packageResults]\n" +
	"[--minCellCount nr]\n" +
	"[--viewResults]\n" +
	"[--noPlots]\n" +
	"[--nrOfThreads nr]\n"

func parseFlags(flags flag.FlagSet, requiredArgs int, help string) {
	if len(os.Args) < requiredArgs {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	flags.SetOutput(ioutil.Discard)
	if err := flags.Parse(os.Args[requiredArgs:]); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprint(os.Stderr, err)
		}
		fmt.Fprint(os.Stderr, help)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprint(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

func getFileName(s, help string) string {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	return s
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getSubjectFilter(s string) study.SubjectFilter {
	id := func(p *study.PatientRecord) bool { return true }
	switch s {
	case "id":
		return id
	case "male":
		return study.MaleSubjectFilter()
	case "female":
		return study.FemaleSubjectFilter()
	case "age70+":
		return study.AgeSubjectFilter(70.0, 200.0)
	case "age70-":
		return study.AgeSubjectFilter(0.0, 70.0)
	default:
		return id
	}
}

func getSubjectFilters(f string) []study.SubjectFilter {
	fs := strings.Split(f, ",")
	result := []study.SubjectFilter{}
	for _, f := range fs {
		result = append(result, getSubjectFilter(f))
	}
	return result
}

// getAnalyses expands the analyses spec into concrete analyses. "all" crosses
// every target cohort with every outcome cohort and every model; otherwise the
// spec is a comma-separated list of target:outcome:model triples.
func getAnalyses(spec string, defs []warehouse.CohortDefinition, models map[string]study.ModelProvider) ([]study.Analysis, error) {
	analyses := []study.Analysis{}
	if spec == "all" {
		targets := []int{}
		outcomes := []int{}
		for _, def := range defs {
			if def.Role == "target" {
				targets = append(targets, def.ID)
			} else {
				outcomes = append(outcomes, def.ID)
			}
		}
		names := []string{}
		for name := range models {
			names = append(names, name)
		}
		sort.Ints(targets)
		sort.Ints(outcomes)
		sort.Strings(names)
		id := 1
		for _, t := range targets {
			for _, o := range outcomes {
				for _, name := range names {
					analyses = append(analyses, study.Analysis{ID: id, TargetID: t, OutcomeID: o, ModelName: name})
					id++
				}
			}
		}
		return analyses, nil
	}
	for i, triple := range strings.Split(spec, ",") {
		parts := strings.Split(triple, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("bad analysis triple: %s", triple)
		}
		t, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("bad target cohort id: %s", parts[0])
		}
		o, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("bad outcome cohort id: %s", parts[1])
		}
		analyses = append(analyses, study.Analysis{ID: i + 1, TargetID: t, OutcomeID: o, ModelName: parts[2]})
	}
	return analyses, nil
}

func main() {
	var (
		// required parameters
		cohortFile string //The file with cohort definitions (id, name, role, domain, concepts).
		outputPath string //The path where output files are written.
		// optional flags
		dbDSN                    string
		cdmSchema                string
		resultsSchema            string
		cohortTable              string
		modelSettings            string
		analysesSpec             string
		createCohorts            bool
		runAnalyses              bool
		riskWindowStart          int
		riskWindowEnd            int
		anchorOnCohortEnd        bool
		firstExposureOnly        bool
		removePriorOutcome       bool
		priorOutcomeLookback     int
		minTimeAtRisk            int
		pfilters                 string
		recalibrate              bool
		recalibrateInterceptOnly bool
		iter                     int
		xstart                   float64
		xstop                    float64
		xby                      float64
		packageResults           bool
		minCellCount             int
		viewResults              bool
		noPlots                  bool
		nrOfThreads              int
	)
	var flags flag.FlagSet
	// options for the rcri command
	flags.StringVar(&dbDSN, "dbDSN", getEnv("RCRI_DB_DSN", ""), "The database connection string.")
	flags.StringVar(&cdmSchema, "cdmSchema", "cdm", "The schema with the OMOP CDM clinical tables.")
	flags.StringVar(&resultsSchema, "resultsSchema", "results", "The schema where the cohort table "+
		"lives.")
	flags.StringVar(&cohortTable, "cohortTable", "rcri_cohort", "The name of the cohort table.")
	flags.StringVar(&modelSettings, "modelSettings", "", "A CSV file with per-model covariate "+
		"inclusion settings.")
	flags.StringVar(&analysesSpec, "analyses", "all", "The analyses to run: all, or a comma-separated "+
		"list of target:outcome:model triples.")
	flags.BoolVar(&createCohorts, "createCohorts", false, "Materialize the cohort table before "+
		"running analyses.")
	flags.BoolVar(&runAnalyses, "runAnalyses", true, "Run the validation analyses.")
	flags.IntVar(&riskWindowStart, "riskWindowStart", 0, "Days after the anchor when the risk window "+
		"opens.")
	flags.IntVar(&riskWindowEnd, "riskWindowEnd", 30, "Days after the anchor when the risk window "+
		"closes.")
	flags.BoolVar(&anchorOnCohortEnd, "anchorOnCohortEnd", false, "Anchor the risk window on cohort "+
		"end instead of cohort start.")
	flags.BoolVar(&firstExposureOnly, "firstExposureOnly", true, "Keep only the earliest target "+
		"cohort entry per subject.")
	flags.BoolVar(&removePriorOutcome, "removePriorOutcome", true, "Exclude subjects with the outcome "+
		"before the risk window opens.")
	flags.IntVar(&priorOutcomeLookback, "priorOutcomeLookback", 99999, "How many days back to look "+
		"for prior outcomes.")
	flags.IntVar(&minTimeAtRisk, "minTimeAtRisk", 1, "The minimum length of the risk window in days.")
	flags.StringVar(&pfilters, "pfilters", "id", "A list of pfilters to restrict the study population "+
		"to specific subjects.")
	flags.BoolVar(&recalibrate, "recalibrate", false, "Refit intercept and slope of the probability "+
		"mapping on the local population.")
	flags.BoolVar(&recalibrateInterceptOnly, "recalibrateInterceptOnly", false, "Refit only the "+
		"intercept with the original log odds as a fixed offset.")
	flags.IntVar(&iter, "iter", 1000, "The number of bootstrap resamples for the AUROC confidence "+
		"interval.")
	flags.Float64Var(&xstart, "xstart", 0.0, "The first threshold of the decision curve sweep.")
	flags.Float64Var(&xstop, "xstop", 0.0, "The last threshold of the decision curve sweep. 0 "+
		"defaults to the maximum predicted risk.")
	flags.Float64Var(&xby, "xby", 0.01, "The threshold step of the decision curve sweep.")
	flags.BoolVar(&packageResults, "packageResults", false, "Collect the shareable tables into a zip "+
		"with minimum cell count redaction.")
	flags.IntVar(&minCellCount, "minCellCount", 5, "The minimum cell count for redaction when "+
		"packaging results.")
	flags.BoolVar(&viewResults, "viewResults", false, "Print the persisted evaluation tables after "+
		"the run.")
	flags.BoolVar(&noPlots, "noPlots", false, "Skip writing the decision and calibration plots.")
	flags.IntVar(&nrOfThreads, "nrOfThreads", 0, "The number of threads rcri uses.")
	// parse optional arguments
	parseFlags(flags, 3, rcriHelp)
	// parse required arguments
	cohortFile = getFileName(os.Args[1], rcriHelp)
	outputPath, _ = filepath.Abs(getFileName(os.Args[2], rcriHelp))
	outputPath = outputPath + string(filepath.Separator)
	fmt.Println("Output path: ", outputPath)
	// create output directory
	err := os.MkdirAll(filepath.Dir(outputPath), 0700)
	if err != nil {
		panic(err)
	}
	// build an output command line
	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " ", cohortFile, " ", outputPath)
	fmt.Fprint(&command, " --cdmSchema ", cdmSchema)
	fmt.Fprint(&command, " --resultsSchema ", resultsSchema)
	fmt.Fprint(&command, " --cohortTable ", cohortTable)
	if modelSettings != "" {
		fmt.Fprint(&command, " --modelSettings ", modelSettings)
	}
	fmt.Fprint(&command, " --analyses ", analysesSpec)
	if createCohorts {
		fmt.Fprint(&command, " --createCohorts")
	}
	fmt.Fprint(&command, " --riskWindowStart ", riskWindowStart)
	fmt.Fprint(&command, " --riskWindowEnd ", riskWindowEnd)
	if anchorOnCohortEnd {
		fmt.Fprint(&command, " --anchorOnCohortEnd")
	}
	fmt.Fprint(&command, " --firstExposureOnly ", firstExposureOnly)
	fmt.Fprint(&command, " --removePriorOutcome ", removePriorOutcome)
	fmt.Fprint(&command, " --priorOutcomeLookback ", priorOutcomeLookback)
	fmt.Fprint(&command, " --minTimeAtRisk ", minTimeAtRisk)
	fmt.Fprint(&command, " --pfilters ", pfilters)
	if recalibrate {
		fmt.Fprint(&command, " --recalibrate")
	}
	if recalibrateInterceptOnly {
		fmt.Fprint(&command, " --recalibrateInterceptOnly")
	}
	fmt.Fprint(&command, " --iter ", iter)
	fmt.Fprint(&command, " --xstart ", xstart, " --xstop ", xstop, " --xby ", xby)
	if packageResults {
		fmt.Fprint(&command, " --packageResults")
		fmt.Fprint(&command, " --minCellCount ", minCellCount)
	}
	if viewResults {
		fmt.Fprint(&command, " --viewResults")
	}
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nrOfThreads ", nrOfThreads)
	}
	// start execution
	log.Println(programMessage())
	log.Println("Executing command:\n", command.String())
	//1. Resolve the run configuration; configuration errors are fatal
	defs, err := warehouse.ParseCohortDefinitions(cohortFile)
	if err != nil {
		log.Fatal(err)
	}
	models, err := model.LoadProviders(modelSettings)
	if err != nil {
		log.Fatal(err)
	}
	analyses, err := getAnalyses(analysesSpec, defs, models)
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	pool, err := warehouse.Connect(ctx, dbDSN)
	if err != nil {
		log.Fatal("Cannot connect to the database: ", err)
	}
	defer pool.Close()
	//2. Materialize the cohorts
	if createCohorts {
		store := &warehouse.Store{Pool: pool, CDMSchema: cdmSchema, ResultsSchema: resultsSchema,
			CohortTable: cohortTable}
		if err := store.Materialize(ctx, defs); err != nil {
			log.Fatal("Cohort materialization failed: ", err)
		}
	}
	//3. Run the validation analyses
	if runAnalyses {
		extractor := &warehouse.Extractor{Pool: pool, CDMSchema: cdmSchema, ResultsSchema: resultsSchema,
			CohortTable: cohortTable, Settings: model.DefaultCovariateSettings()}
		runner := &study.Runner{
			Extractor: extractor,
			Models:    models,
			Writer:    &study.CSVResultWriter{OutputPath: outputPath, Plots: !noPlots},
			Opts: study.RunnerOptions{
				Window: study.RiskWindow{
					StartOffsetDays:          riskWindowStart,
					EndOffsetDays:            riskWindowEnd,
					AnchorOnCohortEnd:        anchorOnCohortEnd,
					FirstExposureOnly:        firstExposureOnly,
					RemovePriorOutcome:       removePriorOutcome,
					PriorOutcomeLookbackDays: priorOutcomeLookback,
					MinTimeAtRiskDays:        minTimeAtRisk,
				},
				Filters:                  getSubjectFilters(pfilters),
				Recalibrate:              recalibrate,
				RecalibrateInterceptOnly: recalibrateInterceptOnly,
				XStart:                   xstart,
				XStop:                    xstop,
				XBy:                      xby,
				BootstrapIter:            iter,
			},
		}
		runner.Run(ctx, analyses)
	}
	//4. Package the results for sharing
	if packageResults {
		if err := study.PackageResults(outputPath, minCellCount); err != nil {
			log.Fatal("Packaging results failed: ", err)
		}
	}
	//5. Show the results
	shown := false
	if viewResults {
		shown, err = study.ViewResults(outputPath)
		if err != nil {
			log.Println("Viewing results failed: ", err)
		}
	}
	log.Println("Done. Results view produced: ", shown)
}
