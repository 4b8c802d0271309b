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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/analysis"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	return NewMatcher(DefaultRegistry())
}

func matchIDs(matches []PatternMatch) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.PatternID)
	}
	return ids
}

func TestMatchEmptyContext(t *testing.T) {
	m := newTestMatcher(t)
	matches := m.Match(MatchContext{})
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestMatchMajorVersionBump(t *testing.T) {
	m := newTestMatcher(t)
	matches := m.Match(MatchContext{
		PreviousVersion: "1.0.0",
		CurrentVersion:  "2.0.0",
	})
	require.Len(t, matches, 1)
	assert.Equal(t, PatternDependencyUpdate, matches[0].PatternID)
	assert.Equal(t, 0.9, matches[0].Confidence)
	assert.Equal(t, []RemediationStrategy{StrategyUpdateAdapterContract}, matches[0].Strategies)
	assert.NotEmpty(t, matches[0].Evidence)
}

func TestMatchMinorVersionBumpNoMatch(t *testing.T) {
	m := newTestMatcher(t)
	matches := m.Match(MatchContext{
		PreviousVersion: "4.1.0",
		CurrentVersion:  "4.2.0",
	})
	assert.Empty(t, matches)
}

func TestMatchSecurityAdvisory(t *testing.T) {
	m := newTestMatcher(t)

	tests := []struct {
		name     string
		severity datatypes.AdvisorySeverity
		want     bool
	}{
		{"critical", datatypes.AdvisorySeverityCritical, true},
		{"high", datatypes.AdvisorySeverityHigh, true},
		{"medium", datatypes.AdvisorySeverityMedium, false},
		{"low", datatypes.AdvisorySeverityLow, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := m.Match(MatchContext{
				Advisories: []datatypes.SecurityAdvisory{
					{ID: "GHSA-test", Severity: tt.severity},
				},
			})
			if tt.want {
				require.Len(t, matches, 1)
				assert.Equal(t, PatternSecurityResponse, matches[0].PatternID)
				assert.Equal(t, 0.95, matches[0].Confidence)
			} else {
				assert.Empty(t, matches)
			}
		})
	}
}

func TestMatchDeprecationCascade(t *testing.T) {
	m := newTestMatcher(t)
	matches := m.Match(MatchContext{
		Deprecations: []string{"ListUsersV1"},
	})
	require.Len(t, matches, 1)
	assert.Equal(t, PatternDeprecationCascade, matches[0].PatternID)
	assert.Equal(t, 0.8, matches[0].Confidence)
}

func TestMatchSchemaMigration(t *testing.T) {
	m := newTestMatcher(t)

	t.Run("non-additive matches", func(t *testing.T) {
		matches := m.Match(MatchContext{
			SchemaChanges: []analysis.SchemaChange{
				{Kind: analysis.SchemaFieldRemoved, Field: "legacy_id", Breaking: true},
			},
		})
		require.Len(t, matches, 1)
		assert.Equal(t, PatternSchemaMigration, matches[0].PatternID)
		assert.Equal(t, 0.85, matches[0].Confidence)
	})

	t.Run("purely additive never matches", func(t *testing.T) {
		matches := m.Match(MatchContext{
			SchemaChanges: []analysis.SchemaChange{
				{Kind: analysis.SchemaFieldAdded, Field: "email"},
			},
		})
		assert.Empty(t, matches)
	})
}

func TestMatchProtocolExtension(t *testing.T) {
	m := newTestMatcher(t)

	t.Run("additive growth matches", func(t *testing.T) {
		matches := m.Match(MatchContext{
			AddedOperations: []string{"GetUserProfile"},
		})
		require.Len(t, matches, 1)
		assert.Equal(t, PatternProtocolExtension, matches[0].PatternID)
		assert.Equal(t, 0.7, matches[0].Confidence)
	})

	t.Run("breaking changes suppress match", func(t *testing.T) {
		matches := m.Match(MatchContext{
			AddedOperations: []string{"GetUserProfile"},
			BreakingCount:   1,
		})
		assert.Empty(t, matches)
	})
}

func TestMatchPerformanceDegradation(t *testing.T) {
	m := newTestMatcher(t)
	matches := m.Match(MatchContext{
		Behavioral: []analysis.BehavioralChange{
			{
				Kind:                analysis.BehaviorTimeout,
				Detail:              "maximum timeout literal decreased from 30 to 5",
				PotentiallyBreaking: true,
			},
		},
	})
	require.Len(t, matches, 1)
	assert.Equal(t, PatternPerformanceDegradation, matches[0].PatternID)
	assert.Equal(t, 0.65, matches[0].Confidence)
}

func TestMatchMultiplePatternsSortedByID(t *testing.T) {
	m := newTestMatcher(t)
	matches := m.Match(MatchContext{
		PreviousVersion: "1.0.0",
		CurrentVersion:  "2.0.0",
		Advisories: []datatypes.SecurityAdvisory{
			{ID: "GHSA-test", Severity: datatypes.AdvisorySeverityCritical},
		},
		Deprecations: []string{"OldOp"},
	})
	assert.Equal(t, []string{
		PatternDeprecationCascade,
		PatternDependencyUpdate,
		PatternSecurityResponse,
	}, matchIDs(matches))
}

func TestMatchDeterministic(t *testing.T) {
	m := newTestMatcher(t)
	mctx := MatchContext{
		PreviousVersion: "2.3.0",
		CurrentVersion:  "3.0.0",
		Deprecations:    []string{"OldOp"},
		SchemaChanges: []analysis.SchemaChange{
			{Kind: analysis.SchemaFieldTypeChanged, Field: "amount", Breaking: true},
		},
	}
	first := m.Match(mctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, m.Match(mctx))
	}
}

func TestMatchSkipsInactivePatterns(t *testing.T) {
	catalog := builtinCatalog()
	for i := range catalog {
		if catalog[i].ID == PatternDependencyUpdate {
			catalog[i].Active = false
		}
	}
	r, err := NewRegistry(catalog)
	require.NoError(t, err)

	m := NewMatcher(r)
	matches := m.Match(MatchContext{
		PreviousVersion: "1.0.0",
		CurrentVersion:  "2.0.0",
	})
	assert.Empty(t, matches)
}

func TestMatchInvalidVersionsNoMatch(t *testing.T) {
	m := newTestMatcher(t)
	assert.Empty(t, m.Match(MatchContext{
		PreviousVersion: "not-a-version",
		CurrentVersion:  "2.0.0",
	}))
	assert.Empty(t, m.Match(MatchContext{
		PreviousVersion: "",
		CurrentVersion:  "2.0.0",
	}))
}
