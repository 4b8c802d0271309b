// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patterns

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/analysis"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

// Matcher scores analysis contexts against the catalog. The matching
// rules are independent and additive: several patterns may fire for one
// context, and identical contexts always produce identical matches.
type Matcher struct {
	registry *Registry
}

// NewMatcher creates a Matcher over the given registry.
func NewMatcher(registry *Registry) *Matcher {
	return &Matcher{registry: registry}
}

// Match tests every active catalogued pattern against the context and
// returns the matches, ordered by pattern ID for reproducible output.
// An empty context yields an empty list.
func (m *Matcher) Match(mctx MatchContext) []PatternMatch {
	matches := make([]PatternMatch, 0)

	for _, p := range m.registry.All() {
		if !p.Active {
			continue
		}
		if match, ok := m.test(p, mctx); ok {
			matches = append(matches, match)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].PatternID < matches[j].PatternID
	})
	return matches
}

// test applies the detection rule for one pattern.
func (m *Matcher) test(p EvolutionaryPattern, mctx MatchContext) (PatternMatch, bool) {
	switch p.ID {
	case PatternDependencyUpdate:
		return m.testDependencyUpdate(p, mctx)
	case PatternSecurityResponse:
		return m.testSecurityResponse(p, mctx)
	case PatternDeprecationCascade:
		return m.testDeprecationCascade(p, mctx)
	case PatternSchemaMigration:
		return m.testSchemaMigration(p, mctx)
	case PatternProtocolExtension:
		return m.testProtocolExtension(p, mctx)
	case PatternPerformanceDegradation:
		return m.testPerformanceDegradation(p, mctx)
	default:
		return PatternMatch{}, false
	}
}

// testDependencyUpdate fires when the major version component increased.
func (m *Matcher) testDependencyUpdate(p EvolutionaryPattern, mctx MatchContext) (PatternMatch, bool) {
	prev := canonical(mctx.PreviousVersion)
	curr := canonical(mctx.CurrentVersion)
	if prev == "" || curr == "" {
		return PatternMatch{}, false
	}
	if semver.Compare(curr, prev) <= 0 || semver.Major(curr) == semver.Major(prev) {
		return PatternMatch{}, false
	}

	return PatternMatch{
		PatternID:  p.ID,
		Confidence: p.BaseConfidence,
		Evidence: []string{
			fmt.Sprintf("major version increase %s -> %s", mctx.PreviousVersion, mctx.CurrentVersion),
		},
		Strategies: p.Strategies,
	}, true
}

// testSecurityResponse fires on any critical or high advisory.
func (m *Matcher) testSecurityResponse(p EvolutionaryPattern, mctx MatchContext) (PatternMatch, bool) {
	evidence := make([]string, 0)
	for _, adv := range mctx.Advisories {
		if adv.Severity == datatypes.AdvisorySeverityCritical ||
			adv.Severity == datatypes.AdvisorySeverityHigh {
			evidence = append(evidence, fmt.Sprintf("advisory %s (%s)", adv.ID, adv.Severity))
		}
	}
	if len(evidence) == 0 {
		return PatternMatch{}, false
	}

	return PatternMatch{
		PatternID:  p.ID,
		Confidence: p.BaseConfidence,
		Evidence:   evidence,
		Strategies: p.Strategies,
	}, true
}

// testDeprecationCascade fires when any deprecation entries are present.
func (m *Matcher) testDeprecationCascade(p EvolutionaryPattern, mctx MatchContext) (PatternMatch, bool) {
	if len(mctx.Deprecations) == 0 {
		return PatternMatch{}, false
	}

	return PatternMatch{
		PatternID:  p.ID,
		Confidence: p.BaseConfidence,
		Evidence: []string{
			fmt.Sprintf("deprecated: %s", strings.Join(mctx.Deprecations, ", ")),
		},
		Strategies: p.Strategies,
	}, true
}

// testSchemaMigration fires on non-additive schema changes only. Purely
// additive schema growth never matches.
func (m *Matcher) testSchemaMigration(p EvolutionaryPattern, mctx MatchContext) (PatternMatch, bool) {
	evidence := make([]string, 0)
	for _, sc := range mctx.SchemaChanges {
		if sc.Kind == analysis.SchemaFieldRemoved || sc.Kind == analysis.SchemaFieldTypeChanged {
			evidence = append(evidence, fmt.Sprintf("%s: %s", sc.Kind, sc.Field))
		}
	}
	if len(evidence) == 0 {
		return PatternMatch{}, false
	}

	return PatternMatch{
		PatternID:  p.ID,
		Confidence: p.BaseConfidence,
		Evidence:   evidence,
		Strategies: p.Strategies,
	}, true
}

// testProtocolExtension fires on additive API growth with no breaking
// changes anywhere in the context.
func (m *Matcher) testProtocolExtension(p EvolutionaryPattern, mctx MatchContext) (PatternMatch, bool) {
	if len(mctx.AddedOperations) == 0 || mctx.BreakingCount > 0 {
		return PatternMatch{}, false
	}

	return PatternMatch{
		PatternID:  p.ID,
		Confidence: p.BaseConfidence,
		Evidence: []string{
			fmt.Sprintf("added operations: %s", strings.Join(mctx.AddedOperations, ", ")),
		},
		Strategies: p.Strategies,
	}, true
}

// testPerformanceDegradation fires on shrinking-timeout behavioral
// findings.
func (m *Matcher) testPerformanceDegradation(p EvolutionaryPattern, mctx MatchContext) (PatternMatch, bool) {
	for _, b := range mctx.Behavioral {
		if b.Kind == analysis.BehaviorTimeout && b.PotentiallyBreaking {
			return PatternMatch{
				PatternID:  p.ID,
				Confidence: p.BaseConfidence,
				Evidence:   []string{b.Detail},
				Strategies: p.Strategies,
			}, true
		}
	}
	return PatternMatch{}, false
}

func canonical(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
