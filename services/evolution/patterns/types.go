// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patterns provides the evolution-pattern catalog and matcher.
//
// # Description
//
// An evolution pattern is a named, versioned rule describing a recurring
// maintenance scenario (dependency update, deprecation cascade, schema
// migration, and so on). The registry holds a fixed catalog loaded once
// at startup; the matcher scores how well an analysis context matches
// each catalogued pattern. Matching is heuristic with calibrated
// confidence scores.
//
// # Thread Safety
//
// The registry is immutable after construction and the matcher is
// stateless; both are safe for concurrent use.
package patterns

import (
	"github.com/AleutianAI/AleutianEvolve/services/evolution/analysis"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

// PatternCategory groups catalogued patterns by concern.
type PatternCategory string

const (
	CategoryDependency   PatternCategory = "dependency"
	CategoryAPIEvolution PatternCategory = "api_evolution"
	CategorySchema       PatternCategory = "schema"
	CategoryProtocol     PatternCategory = "protocol"
	CategorySecurity     PatternCategory = "security"
	CategoryPerformance  PatternCategory = "performance"
)

// RemediationStrategy names a catalogued response to a matched pattern.
type RemediationStrategy string

const (
	StrategyUpdateAdapterContract RemediationStrategy = "update-adapter-contract"
	StrategyEmergencyPatch        RemediationStrategy = "emergency-patch"
	StrategyGradualMigration      RemediationStrategy = "gradual-migration"
	StrategyStagedSchemaMigration RemediationStrategy = "staged-schema-migration"
	StrategyExtendAdapterSurface  RemediationStrategy = "extend-adapter-surface"
	StrategyBenchmarkAndTune      RemediationStrategy = "benchmark-and-tune"
)

// Catalogued pattern identifiers.
const (
	PatternDependencyUpdate       = "pattern-external-dependency-update"
	PatternDeprecationCascade     = "pattern-api-deprecation-cascade"
	PatternSchemaMigration        = "pattern-schema-migration"
	PatternProtocolExtension      = "pattern-protocol-extension"
	PatternSecurityResponse       = "pattern-security-vulnerability-response"
	PatternPerformanceDegradation = "pattern-performance-degradation"
)

// Confidence calibration for the matching rules. Values are fixed:
// identical contexts must produce identical confidences across releases.
const (
	// SecurityMatchConfidence applies when a critical or high advisory
	// is present.
	SecurityMatchConfidence = 0.95

	// DependencyUpdateConfidence applies to a major version increase.
	DependencyUpdateConfidence = 0.9

	// SchemaMigrationConfidence applies to non-additive schema changes.
	SchemaMigrationConfidence = 0.85

	// DeprecationCascadeConfidence applies when deprecations are present.
	DeprecationCascadeConfidence = 0.8

	// ProtocolExtensionConfidence applies to purely additive API growth.
	ProtocolExtensionConfidence = 0.7

	// PerformanceDegradationConfidence applies to shrinking-timeout
	// behavioral findings; the evidence is textual, so confidence is
	// lower than the structural rules.
	PerformanceDegradationConfidence = 0.65
)

// EvolutionaryPattern is one catalogued maintenance scenario. Patterns
// are read-only at match time.
type EvolutionaryPattern struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	Version           string                `json:"version"`
	Category          PatternCategory       `json:"category"`
	Description       string                `json:"description"`
	DetectionHints    []string              `json:"detection_hints,omitempty"`
	TriggerConditions []string              `json:"trigger_conditions,omitempty"`
	Strategies        []RemediationStrategy `json:"strategies"`
	Severity          analysis.Severity     `json:"severity"`
	BaseConfidence    float64               `json:"base_confidence"`
	Active            bool                  `json:"active"`
}

// PatternMatch is the scored result of testing one pattern against an
// analysis context. Transient; attached to the pipeline's analysis
// result.
type PatternMatch struct {
	PatternID  string                `json:"pattern_id"`
	Confidence float64               `json:"confidence"`
	Evidence   []string              `json:"evidence"`
	Strategies []RemediationStrategy `json:"strategies"`
}

// MatchContext is the evidence a matcher run sees. It is assembled from
// a change record and its semantic analysis; the matcher itself never
// looks outside this struct, which keeps it a pure function of its
// input.
type MatchContext struct {
	PreviousVersion string
	CurrentVersion  string
	Advisories      []datatypes.SecurityAdvisory
	Deprecations    []string
	AddedOperations []string
	SchemaChanges   []analysis.SchemaChange
	Behavioral      []analysis.BehavioralChange
	BreakingCount   int
}

// ContextFromAnalysis builds a MatchContext from a change record and the
// analyzer's result for it.
func ContextFromAnalysis(change datatypes.RepositoryChange, result analysis.Result) MatchContext {
	added := make([]string, 0)
	for _, c := range result.Diff.APIChanges {
		if c.Kind == analysis.APIAdded {
			added = append(added, c.Operation)
		}
	}

	return MatchContext{
		PreviousVersion: change.PreviousVersion,
		CurrentVersion:  change.CurrentVersion,
		Advisories:      change.Advisories,
		Deprecations:    result.Diff.Deprecations,
		AddedOperations: added,
		SchemaChanges:   result.Diff.SchemaChanges,
		Behavioral:      result.Diff.BehavioralChanges,
		BreakingCount:   len(result.Diff.BreakingChanges),
	}
}
