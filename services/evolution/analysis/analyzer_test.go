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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	return NewAnalyzer(nil)
}

func TestAnalyzeEmptyChange(t *testing.T) {
	a := newTestAnalyzer(t)

	result := a.Analyze(context.Background(), datatypes.RepositoryChange{ID: "c-1"})

	assert.Equal(t, ImpactNone, result.Diff.Impact)
	assert.Empty(t, result.Diff.BreakingChanges)
	assert.Equal(t, 0.0, result.ImpactScore)
}

func TestAnalyzeMajorVersionBump(t *testing.T) {
	a := newTestAnalyzer(t)

	change := datatypes.RepositoryChange{
		ID:              "c-2",
		SourceID:        "payments-api",
		Type:            datatypes.ChangeTypeVersionBump,
		PreviousVersion: "1.0.0",
		CurrentVersion:  "2.0.0",
	}

	result := a.Analyze(context.Background(), change)

	require.NotEmpty(t, result.Diff.BreakingChanges)
	assert.Contains(t, []ImpactLevel{ImpactSignificant, ImpactCritical}, result.Diff.Impact)
	assert.Greater(t, result.ImpactScore, 0.0)
	assert.Contains(t, result.AffectedAdapters, "payments-api")
}

func TestAnalyzeMinorVersionBumpNoBreaking(t *testing.T) {
	a := newTestAnalyzer(t)

	change := datatypes.RepositoryChange{
		ID:              "c-3",
		PreviousVersion: "4.1.0",
		CurrentVersion:  "4.2.0",
	}

	result := a.Analyze(context.Background(), change)

	assert.Empty(t, result.Diff.BreakingChanges)
	assert.LessOrEqual(t, result.Diff.Impact.Rank(), ImpactModerate.Rank())
}

func TestAnalyzeMissingPreviousVersionDefaults(t *testing.T) {
	a := newTestAnalyzer(t)

	// 0.0.0 -> 3.0.0 is a major increase; analysis must complete and
	// classify it rather than erroring on the absent field.
	change := datatypes.RepositoryChange{
		ID:             "c-4",
		CurrentVersion: "3.0.0",
	}

	result := a.Analyze(context.Background(), change)
	require.NotEmpty(t, result.Diff.BreakingChanges)
}

func TestAnalyzeCriticalAdvisoryForcesCriticalImpact(t *testing.T) {
	a := newTestAnalyzer(t)

	change := datatypes.RepositoryChange{
		ID:   "c-5",
		Type: datatypes.ChangeTypeSecurityAdvisory,
		Advisories: []datatypes.SecurityAdvisory{
			{ID: "CVE-2025-0001", Severity: datatypes.AdvisorySeverityCritical, Summary: "rce in parser"},
		},
	}

	result := a.Analyze(context.Background(), change)

	assert.Equal(t, ImpactCritical, result.Diff.Impact)
	require.Len(t, result.Diff.BreakingChanges, 1)
	assert.Equal(t, SeverityCritical, result.Diff.BreakingChanges[0].Severity)
}

func TestAnalyzeRemovedOperationIsCritical(t *testing.T) {
	a := newTestAnalyzer(t)

	change := datatypes.RepositoryChange{
		ID: "c-6",
		Previous: &datatypes.InterfaceSurface{
			Operations: []datatypes.APISignature{
				{Name: "GetUser", ReturnType: "User"},
				{Name: "ListUsers", ReturnType: "[]User"},
			},
		},
		Current: &datatypes.InterfaceSurface{
			Operations: []datatypes.APISignature{
				{Name: "ListUsers", ReturnType: "[]User"},
			},
		},
	}

	result := a.Analyze(context.Background(), change)

	require.Len(t, result.Diff.BreakingChanges, 1)
	assert.Equal(t, SeverityCritical, result.Diff.BreakingChanges[0].Severity)
	assert.Contains(t, result.Diff.Removals, "GetUser")
	assert.Equal(t, ImpactSignificant, result.Diff.Impact)
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := newTestAnalyzer(t)

	change := datatypes.RepositoryChange{
		ID:              "c-7",
		PreviousVersion: "1.2.0",
		CurrentVersion:  "2.0.0",
		ChangedPaths:    []string{"api/users.proto", "api/orders.proto"},
		Advisories: []datatypes.SecurityAdvisory{
			{ID: "GHSA-1", Severity: datatypes.AdvisorySeverityHigh, Summary: "dos"},
		},
	}

	first := a.Analyze(context.Background(), change)
	second := a.Analyze(context.Background(), change)

	assert.Equal(t, first.Diff, second.Diff)
	assert.Equal(t, first.ImpactScore, second.ImpactScore)
	assert.Equal(t, first.AffectedAdapters, second.AffectedAdapters)
}

func TestClassifyImpactThresholds(t *testing.T) {
	mk := func(critical, high int) *SemanticDiff {
		d := &SemanticDiff{}
		for i := 0; i < critical; i++ {
			d.BreakingChanges = append(d.BreakingChanges, BreakingChange{Severity: SeverityCritical})
		}
		for i := 0; i < high; i++ {
			d.BreakingChanges = append(d.BreakingChanges, BreakingChange{Severity: SeverityHigh})
		}
		return d
	}

	tests := []struct {
		name     string
		critical int
		high     int
		want     ImpactLevel
	}{
		{"three critical", 3, 0, ImpactCritical},
		{"six high", 0, 6, ImpactCritical},
		{"one critical", 1, 0, ImpactSignificant},
		{"three high", 0, 3, ImpactSignificant},
		{"one high", 0, 1, ImpactModerate},
		{"nothing", 0, 0, ImpactNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyImpact(mk(tt.critical, tt.high), nil))
		})
	}
}

func TestImpactScoreScopeFactor(t *testing.T) {
	breaking := []BreakingChange{{Severity: SeverityHigh}}

	narrow := impactScore(breaking, 0)
	wide := impactScore(breaking, 4)

	assert.InDelta(t, 0.7, narrow, 0.001)
	assert.Greater(t, wide, narrow)
	assert.LessOrEqual(t, wide, 1.0)

	// Many criticals across many paths still cap at 1.0.
	many := []BreakingChange{
		{Severity: SeverityCritical},
		{Severity: SeverityCritical},
	}
	assert.Equal(t, 1.0, impactScore(many, 20))
}

func TestImpactLevelScoreMapping(t *testing.T) {
	assert.Equal(t, 1.0, ImpactCritical.Score())
	assert.Equal(t, 0.8, ImpactSignificant.Score())
	assert.Equal(t, 0.5, ImpactModerate.Score())
	assert.Equal(t, 0.2, ImpactMinimal.Score())
	assert.Equal(t, 0.0, ImpactNone.Score())
}
