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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tfalcs/RCRI/study"
)

// Cohort materialization against an OMOP CDM style warehouse. Cohort
// definitions are concept set based: a subject enters a cohort at the first
// qualifying occurrence of any listed concept.

const (
	DomainCondition = "condition"
	DomainProcedure = "procedure"
)

// CohortDefinition describes one target or outcome cohort.
type CohortDefinition struct {
	ID         int
	Name       string
	Role       string //"target" or "outcome"
	Domain     string //condition or procedure occurrences define entry
	ConceptIDs []int64
}

// ParseCohortDefinitions reads cohort definitions from a CSV file with the
// columns: cohortId,name,role,domain,conceptIds. Concept ids are separated by
// semicolons. A malformed file is a configuration error and aborts the run.
func ParseCohortDefinitions(file string) ([]CohortDefinition, error) {
	fmt.Println("Parsing cohort definitions from file: ", file)
	f, err := os.Open(file)
	if err != nil {
		return nil, &study.ConfigurationError{File: file, Detail: err.Error()}
	}
	defer f.Close()
	reader := csv.NewReader(f)
	defs := []CohortDefinition{}
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
		if len(record) < 5 {
			return nil, &study.ConfigurationError{File: file, Detail: "expected columns cohortId,name,role,domain,conceptIds"}
		}
		id, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, &study.ConfigurationError{File: file, Detail: fmt.Sprint("bad cohort id: ", record[0])}
		}
		role := record[2]
		if role != "target" && role != "outcome" {
			return nil, &study.ConfigurationError{File: file, Detail: fmt.Sprint("bad cohort role: ", role)}
		}
		domain := record[3]
		if domain != DomainCondition && domain != DomainProcedure {
			return nil, &study.ConfigurationError{File: file, Detail: fmt.Sprint("bad cohort domain: ", domain)}
		}
		concepts := []int64{}
		for _, s := range strings.Split(record[4], ";") {
			c, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, &study.ConfigurationError{File: file, Detail: fmt.Sprint("bad concept id: ", s)}
			}
			concepts = append(concepts, c)
		}
		defs = append(defs, CohortDefinition{ID: id, Name: record[1], Role: role, Domain: domain, ConceptIDs: concepts})
	}
	fmt.Println("Parsed ", len(defs), " cohort definitions.")
	return defs, nil
}

// Connect opens a connection pool to the warehouse and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Store materializes cohorts into the results schema.
type Store struct {
	Pool          *pgxpool.Pool
	CDMSchema     string
	ResultsSchema string
	CohortTable   string
}

// cohortRef is the qualified cohort table name. Identifiers cannot be bound as
// query parameters, so the schema names are interpolated.
func (s *Store) cohortRef() string {
	return fmt.Sprintf("%s.%s", s.ResultsSchema, s.CohortTable)
}

// Materialize performs an idempotent create-or-replace of each cohort: the
// cohort table is created if absent, previous rows for the definition are
// removed, and the cohort is repopulated from the CDM. Cohort entry is the
// first qualifying occurrence per subject; cohort end is one year later.
func (s *Store) Materialize(ctx context.Context, defs []CohortDefinition) error {
	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		cohort_definition_id int NOT NULL,
		subject_id bigint NOT NULL,
		cohort_start_date date NOT NULL,
		cohort_end_date date NOT NULL,
		PRIMARY KEY (cohort_definition_id, subject_id, cohort_start_date, cohort_end_date))`, s.cohortRef())
	if _, err := s.Pool.Exec(ctx, createSQL); err != nil {
		return err
	}
	for _, def := range defs {
		fmt.Println("Materializing cohort ", def.ID, " (", def.Name, ") from ", len(def.ConceptIDs), " concepts...")
		if _, err := s.Pool.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE cohort_definition_id = $1", s.cohortRef()), def.ID); err != nil {
			return err
		}
		var insertSQL string
		switch def.Domain {
		case DomainProcedure:
			insertSQL = fmt.Sprintf(`INSERT INTO %s
				SELECT $1, person_id, MIN(procedure_date), MIN(procedure_date) + INTERVAL '365 day'
				FROM %s.procedure_occurrence
				WHERE procedure_concept_id = ANY($2)
				GROUP BY person_id`, s.cohortRef(), s.CDMSchema)
		default:
			insertSQL = fmt.Sprintf(`INSERT INTO %s
				SELECT $1, person_id, MIN(condition_start_date), MIN(condition_start_date) + INTERVAL '365 day'
				FROM %s.condition_occurrence
				WHERE condition_concept_id = ANY($2)
				GROUP BY person_id`, s.cohortRef(), s.CDMSchema)
		}
		tag, err := s.Pool.Exec(ctx, insertSQL, def.ID, def.ConceptIDs)
		if err != nil {
			return err
		}
		fmt.Println("Cohort ", def.ID, ": ", tag.RowsAffected(), " subjects.")
	}
	return nil
}
