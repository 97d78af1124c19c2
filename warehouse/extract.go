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

package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tfalcs/RCRI/study"
)

// Covariate extraction: for a materialized (target, outcome) cohort pair,
// pull patient attributes, outcome occurrences, and the model's covariates
// observed in the lookback window before cohort entry.

// OMOP standard concept for female gender; mapped to the analysis sex code.
const femaleGenderConceptID = 8532

// ConceptGroup defines one binary covariate observed through any of a set of
// concepts in a single domain.
type ConceptGroup struct {
	CovariateID int64
	ConceptIDs  []int64
}

// MeasurementSpec defines one binary covariate that fires when a measurement
// value reaches a threshold.
type MeasurementSpec struct {
	CovariateID int64
	ConceptID   int64
	Threshold   float64
}

// CovariateSettings lists the covariates to extract, each a named typed field
// per domain. LookbackDays bounds how far before cohort entry an observation
// may lie; occurrences on the entry date itself count.
type CovariateSettings struct {
	Conditions   []ConceptGroup
	Procedures   []ConceptGroup
	Drugs        []ConceptGroup
	Measurements []MeasurementSpec
	LookbackDays int
}

// Extractor reads raw analysis data from the warehouse. It is safe for
// concurrent use; each query draws its own connection from the pool.
type Extractor struct {
	Pool          *pgxpool.Pool
	CDMSchema     string
	ResultsSchema string
	CohortTable   string
	Settings      CovariateSettings
}

func (e *Extractor) cohortRef() string {
	return fmt.Sprintf("%s.%s", e.ResultsSchema, e.CohortTable)
}

// Extract pulls the raw data for one (target, outcome) cohort pair.
func (e *Extractor) Extract(ctx context.Context, targetID, outcomeID int) (study.RawData, error) {
	fmt.Println("Extracting data for target cohort ", targetID, " and outcome cohort ", outcomeID, "...")
	raw := study.RawData{}
	attributes, err := e.extractAttributes(ctx, targetID)
	if err != nil {
		return raw, err
	}
	raw.Attributes = attributes
	outcomes, err := e.extractOutcomes(ctx, outcomeID)
	if err != nil {
		return raw, err
	}
	raw.Outcomes = outcomes
	covariates, err := e.extractCovariates(ctx, targetID)
	if err != nil {
		return raw, err
	}
	raw.Covariates = covariates
	fmt.Println("Extracted ", len(raw.Attributes), " cohort entries, ", len(raw.Outcomes),
		" outcome occurrences, ", len(raw.Covariates), " covariate values.")
	return raw, nil
}

func (e *Extractor) extractAttributes(ctx context.Context, targetID int) ([]study.PatientRecord, error) {
	query := fmt.Sprintf(`SELECT c.subject_id, p.year_of_birth, p.gender_concept_id,
			c.cohort_start_date, c.cohort_end_date
		FROM %s c JOIN %s.person p ON p.person_id = c.subject_id
		WHERE c.cohort_definition_id = $1`, e.cohortRef(), e.CDMSchema)
	rows, err := e.Pool.Query(ctx, query, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	attributes := []study.PatientRecord{}
	for rows.Next() {
		var record study.PatientRecord
		var yearOfBirth int
		var genderConceptID int64
		if err := rows.Scan(&record.SubjectID, &yearOfBirth, &genderConceptID,
			&record.CohortStart, &record.CohortEnd); err != nil {
			return nil, err
		}
		record.AgeYears = float64(record.CohortStart.Year() - yearOfBirth)
		if genderConceptID == femaleGenderConceptID {
			record.Sex = study.Female
		} else {
			record.Sex = study.Male
		}
		attributes = append(attributes, record)
	}
	return attributes, rows.Err()
}

func (e *Extractor) extractOutcomes(ctx context.Context, outcomeID int) ([]study.OutcomeOccurrence, error) {
	query := fmt.Sprintf(`SELECT subject_id, cohort_start_date FROM %s
		WHERE cohort_definition_id = $1`, e.cohortRef())
	rows, err := e.Pool.Query(ctx, query, outcomeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	outcomes := []study.OutcomeOccurrence{}
	for rows.Next() {
		var o study.OutcomeOccurrence
		if err := rows.Scan(&o.SubjectID, &o.Date); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// extractCovariates runs one query per covariate group. Every covariate is
// binary: present in the lookback window or not.
func (e *Extractor) extractCovariates(ctx context.Context, targetID int) ([]study.CovariateValue, error) {
	covariates := []study.CovariateValue{}
	domainQuery := fmt.Sprintf(`SELECT DISTINCT c.subject_id
		FROM %s c JOIN %s.%%s o ON o.person_id = c.subject_id
		WHERE c.cohort_definition_id = $1 AND o.%%s = ANY($2)
		AND o.%%s BETWEEN c.cohort_start_date - $3::int AND c.cohort_start_date`,
		e.cohortRef(), e.CDMSchema)
	domains := []struct {
		groups     []ConceptGroup
		table      string
		conceptCol string
		dateCol    string
	}{
		{e.Settings.Conditions, "condition_occurrence", "condition_concept_id", "condition_start_date"},
		{e.Settings.Procedures, "procedure_occurrence", "procedure_concept_id", "procedure_date"},
		{e.Settings.Drugs, "drug_exposure", "drug_concept_id", "drug_exposure_start_date"},
	}
	for _, domain := range domains {
		query := fmt.Sprintf(domainQuery, domain.table, domain.conceptCol, domain.dateCol)
		for _, group := range domain.groups {
			values, err := e.queryBinaryCovariate(ctx, query, group.CovariateID, targetID, group.ConceptIDs, nil)
			if err != nil {
				return nil, err
			}
			covariates = append(covariates, values...)
		}
	}
	measurementQuery := fmt.Sprintf(`SELECT DISTINCT c.subject_id
		FROM %s c JOIN %s.measurement m ON m.person_id = c.subject_id
		WHERE c.cohort_definition_id = $1 AND m.measurement_concept_id = ANY($2)
		AND m.measurement_date BETWEEN c.cohort_start_date - $3::int AND c.cohort_start_date
		AND m.value_as_number >= $4`, e.cohortRef(), e.CDMSchema)
	for _, spec := range e.Settings.Measurements {
		values, err := e.queryBinaryCovariate(ctx, measurementQuery, spec.CovariateID, targetID,
			[]int64{spec.ConceptID}, &spec.Threshold)
		if err != nil {
			return nil, err
		}
		covariates = append(covariates, values...)
	}
	return covariates, nil
}

func (e *Extractor) queryBinaryCovariate(ctx context.Context, query string, covariateID int64,
	targetID int, conceptIDs []int64, threshold *float64) ([]study.CovariateValue, error) {
	args := []interface{}{targetID, conceptIDs, e.Settings.LookbackDays}
	if threshold != nil {
		args = append(args, *threshold)
	}
	rows, err := e.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	values := []study.CovariateValue{}
	for rows.Next() {
		var subjectID int64
		if err := rows.Scan(&subjectID); err != nil {
			return nil, err
		}
		values = append(values, study.CovariateValue{SubjectID: subjectID, CovariateID: covariateID, Value: 1.0})
	}
	return values, rows.Err()
}
