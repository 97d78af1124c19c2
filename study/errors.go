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

import "fmt"

// Error taxonomy for the study pipeline. Configuration errors abort the run;
// extraction, recalibration, and evaluation errors are recoverable per analysis
// and degrade to missing optional output.

// ConfigurationError reports a malformed settings or definition file. Fatal.
type ConfigurationError struct {
	File   string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.File, e.Detail)
}

// ExtractionError reports a failed data extraction or population construction
// for one analysis.
type ExtractionError struct {
	AnalysisID int
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for analysis %d: %v", e.AnalysisID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// RecalibrationError reports a failed recalibration fit. The original
// predictions are retained when this occurs.
type RecalibrationError struct {
	Mode   RecalibrationMode
	Reason string
}

func (e *RecalibrationError) Error() string {
	return fmt.Sprintf("recalibration (%s) failed: %s", e.Mode, e.Reason)
}

// EvaluationError reports a failed performance or covariate summary
// computation for one analysis.
type EvaluationError struct {
	Step string
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation step %s failed: %v", e.Step, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
