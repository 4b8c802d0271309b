// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// IssueSeverity tags a validation issue. Any error-severity issue makes
// the proposal invalid and blocks deployment.
type IssueSeverity string

const (
	IssueSeverityError   IssueSeverity = "error"
	IssueSeverityWarning IssueSeverity = "warning"
	IssueSeverityInfo    IssueSeverity = "info"
)

// ValidationIssue is one finding from proposal validation.
type ValidationIssue struct {
	Severity IssueSeverity `json:"severity"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Path     string        `json:"path,omitempty"`
	Line     int           `json:"line,omitempty"`
}

// ComplianceResult is the contract-compliance sub-check.
type ComplianceResult struct {
	Compliant  bool     `json:"compliant"`
	Checked    int      `json:"checked"`
	Violations []string `json:"violations,omitempty"`
}

// TestRunResult is the generated-test execution summary.
type TestRunResult struct {
	Passed  int  `json:"passed"`
	Failed  int  `json:"failed"`
	Skipped int  `json:"skipped"`
	Ran     bool `json:"ran"`
}

// SecurityScanResult is the security-scan summary.
type SecurityScanResult struct {
	Findings int      `json:"findings"`
	Critical int      `json:"critical"`
	Details  []string `json:"details,omitempty"`
}

// ValidationResult is the full compliance/test/security outcome for one
// proposal. Produced once per proposal and never mutated; it gates
// deployment.
type ValidationResult struct {
	ProposalID  string             `json:"proposal_id"`
	Valid       bool               `json:"valid"`
	Issues      []ValidationIssue  `json:"issues,omitempty"`
	Compliance  ComplianceResult   `json:"compliance"`
	Tests       TestRunResult      `json:"tests"`
	Security    SecurityScanResult `json:"security"`
	ValidatedAt time.Time          `json:"validated_at"`
}

// HasBlockingIssues reports whether any issue carries error severity.
func (v *ValidationResult) HasBlockingIssues() bool {
	for _, issue := range v.Issues {
		if issue.Severity == IssueSeverityError {
			return true
		}
	}
	return false
}
