// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Behavioral detection is textual and intentionally coarse: it looks for
// trends in before/after content that could change caller-visible
// semantics. A finding is only flagged potentially breaking when the
// trend weakens a guarantee callers may depend on (fewer handled error
// sites, shrinking timeouts, a newly required authentication mechanism).

// errorHandlingTokens are the markers counted for error-handling density.
// The set is language-agnostic on purpose; watched sources are not
// guaranteed to be Go.
var errorHandlingTokens = []string{
	"catch",
	"except",
	"rescue",
	"if err",
	"on_error",
	".catch(",
}

var timeoutPattern = regexp.MustCompile(`(?i)timeout[_a-z]*\s*[:=]\s*(\d+)`)

var authTokens = []string{
	"authorization",
	"bearer",
	"api_key",
	"apikey",
	"oauth",
	"auth_token",
}

// detectBehavioralChanges compares two content snapshots with textual
// heuristics. Either snapshot may be empty; an empty pair yields no
// findings.
func detectBehavioralChanges(prev, curr string) []BehavioralChange {
	if prev == "" && curr == "" {
		return nil
	}

	findings := make([]BehavioralChange, 0)

	if f, ok := compareErrorHandling(prev, curr); ok {
		findings = append(findings, f)
	}
	if f, ok := compareTimeouts(prev, curr); ok {
		findings = append(findings, f)
	}
	if f, ok := compareAuthPresence(prev, curr); ok {
		findings = append(findings, f)
	}

	return findings
}

// compareErrorHandling flags a drop in error-handling site count.
// Fewer handled sites after the change suggests errors now escape to
// callers that previously saw them absorbed.
func compareErrorHandling(prev, curr string) (BehavioralChange, bool) {
	before := countTokens(prev, errorHandlingTokens)
	after := countTokens(curr, errorHandlingTokens)

	if before == after {
		return BehavioralChange{}, false
	}

	finding := BehavioralChange{
		Kind:   BehaviorErrorHandling,
		Detail: fmt.Sprintf("error-handling sites changed: %d -> %d", before, after),
	}
	finding.PotentiallyBreaking = after < before
	return finding, true
}

// compareTimeouts flags shrinking timeout magnitudes. The comparison uses
// the largest timeout literal found in each snapshot.
func compareTimeouts(prev, curr string) (BehavioralChange, bool) {
	before := maxTimeout(prev)
	after := maxTimeout(curr)

	if before == 0 || after == 0 || before == after {
		return BehavioralChange{}, false
	}

	finding := BehavioralChange{
		Kind:   BehaviorTimeout,
		Detail: fmt.Sprintf("timeout magnitude changed: %d -> %d", before, after),
	}
	finding.PotentiallyBreaking = after < before
	return finding, true
}

// compareAuthPresence flags the appearance of an authentication mechanism
// where none was visible before. Removal is recorded but not breaking;
// callers that authenticated against a non-authenticating endpoint keep
// working.
func compareAuthPresence(prev, curr string) (BehavioralChange, bool) {
	before := countTokens(prev, authTokens) > 0
	after := countTokens(curr, authTokens) > 0

	if before == after {
		return BehavioralChange{}, false
	}

	if after {
		return BehavioralChange{
			Kind:                BehaviorAuth,
			Detail:              "authentication mechanism introduced",
			PotentiallyBreaking: true,
		}, true
	}
	return BehavioralChange{
		Kind:   BehaviorAuth,
		Detail: "authentication mechanism removed",
	}, true
}

func countTokens(content string, tokens []string) int {
	lower := strings.ToLower(content)
	count := 0
	for _, token := range tokens {
		count += strings.Count(lower, token)
	}
	return count
}

func maxTimeout(content string) int {
	max := 0
	for _, m := range timeoutPattern.FindAllStringSubmatch(content, -1) {
		if v, err := strconv.Atoi(m[1]); err == nil && v > max {
			max = v
		}
	}
	return max
}
