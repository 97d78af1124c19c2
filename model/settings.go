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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tfalcs/RCRI/study"
)

// Per-model covariate inclusion settings. The settings file is resolved once
// at startup into immutable providers; it is never re-read mid-run.

// knownCovariateIDs guards the settings file against typos.
var knownCovariateIDs = map[int64]bool{
	CovariateHighRiskSurgery:        true,
	CovariateIschemicHeartDisease:   true,
	CovariateCongestiveHeartFailure: true,
	CovariateCerebrovascularDisease: true,
	CovariateInsulinTherapy:         true,
	CovariateElevatedCreatinine:     true,
}

// LoadProviders builds the model providers for a run. With an empty file name
// the full six-component RCRI is the only model, under the name "rcri".
// Otherwise the CSV file with columns model,covariateId defines one model per
// distinct name, restricted to the listed covariates. A malformed file is a
// configuration error and aborts the run.
func LoadProviders(file string) (map[string]study.ModelProvider, error) {
	providers := map[string]study.ModelProvider{"rcri": NewRCRI("rcri", nil)}
	if file == "" {
		return providers, nil
	}
	fmt.Println("Parsing model settings from file: ", file)
	f, err := os.Open(file)
	if err != nil {
		return nil, &study.ConfigurationError{File: file, Detail: err.Error()}
	}
	defer f.Close()
	reader := csv.NewReader(f)
	included := map[string]map[int64]bool{}
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &study.ConfigurationError{File: file, Detail: err.Error()}
		}
		if first { //skip header
			first = false
			continue
		}
		if len(record) < 2 {
			return nil, &study.ConfigurationError{File: file, Detail: "expected columns model,covariateId"}
		}
		name := record[0]
		covariateID, err := strconv.ParseInt(record[1], 10, 64)
		if err != nil {
			return nil, &study.ConfigurationError{File: file, Detail: fmt.Sprint("bad covariate id: ", record[1])}
		}
		if !knownCovariateIDs[covariateID] {
			return nil, &study.ConfigurationError{File: file, Detail: fmt.Sprint("unknown covariate id: ", covariateID)}
		}
		if _, ok := included[name]; !ok {
			included[name] = map[int64]bool{}
		}
		included[name][covariateID] = true
	}
	for name, covariates := range included {
		providers[name] = NewRCRI(name, covariates)
	}
	fmt.Println("Resolved ", len(providers), " model providers.")
	return providers, nil
}
