// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis provides the semantic impact analyzer for upstream
// interface changes.
//
// # Description
//
// The analyzer turns a raw RepositoryChange into a structured SemanticDiff
// (breaking changes, additions, deprecations, removals) plus an impact
// classification. Classification is rule-based and deterministic: the same
// change record always yields the same diff and the same impact level.
//
// Analysis never fails. Malformed or incomplete change records are
// defaulted (a missing previous version becomes "0.0.0") and analysis
// completes with whatever evidence is available; the worst case is an
// empty diff with impact "none".
//
// # Thread Safety
//
// Analyzer is stateless and safe for concurrent use.
package analysis

import "time"

// Severity classifies a single breaking change.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Weight returns the numeric weight used for impact scoring. The mapping
// is fixed: impact scores must be reproducible across releases.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.7
	case SeverityMedium:
		return 0.4
	case SeverityLow:
		return 0.1
	default:
		return 0.0
	}
}

// ImpactLevel is the ordinal classification of a change's blast radius:
// none < minimal < moderate < significant < critical.
type ImpactLevel string

const (
	ImpactNone        ImpactLevel = "none"
	ImpactMinimal     ImpactLevel = "minimal"
	ImpactModerate    ImpactLevel = "moderate"
	ImpactSignificant ImpactLevel = "significant"
	ImpactCritical    ImpactLevel = "critical"
)

// Score maps the ordinal level to the fixed risk score used by the
// orchestrator's approval gate.
func (l ImpactLevel) Score() float64 {
	switch l {
	case ImpactCritical:
		return 1.0
	case ImpactSignificant:
		return 0.8
	case ImpactModerate:
		return 0.5
	case ImpactMinimal:
		return 0.2
	default:
		return 0.0
	}
}

// Rank returns the ordinal position of the level, for comparisons.
func (l ImpactLevel) Rank() int {
	switch l {
	case ImpactCritical:
		return 4
	case ImpactSignificant:
		return 3
	case ImpactModerate:
		return 2
	case ImpactMinimal:
		return 1
	default:
		return 0
	}
}

// BreakingChange is one incompatible change. Owned by exactly one
// SemanticDiff and never mutated after creation.
type BreakingChange struct {
	Description   string   `json:"description"`
	Location      string   `json:"location,omitempty"`
	Severity      Severity `json:"severity"`
	MigrationHint string   `json:"migration_hint,omitempty"`
}

// APIChangeKind categorizes one API-surface difference.
type APIChangeKind string

const (
	APIAdded             APIChangeKind = "added"
	APIRemoved           APIChangeKind = "removed"
	APIParamRemoved      APIChangeKind = "param_removed"
	APIParamAdded        APIChangeKind = "param_added"
	APIParamTypeChanged  APIChangeKind = "param_type_changed"
	APIReturnTypeChanged APIChangeKind = "return_type_changed"
	APIRequiredTightened APIChangeKind = "required_tightened"
	APIDeprecated        APIChangeKind = "deprecated"
	APIUndeprecated      APIChangeKind = "undeprecated"
)

// APIChange is one structural difference between two API surfaces.
type APIChange struct {
	Kind      APIChangeKind `json:"kind"`
	Operation string        `json:"operation"`
	Detail    string        `json:"detail,omitempty"`
	Breaking  bool          `json:"breaking"`
}

// SchemaChangeKind categorizes one schema-field difference.
type SchemaChangeKind string

const (
	SchemaFieldAdded       SchemaChangeKind = "field_added"
	SchemaFieldRemoved     SchemaChangeKind = "field_removed"
	SchemaFieldTypeChanged SchemaChangeKind = "field_type_changed"
)

// SchemaChange is one difference between two schema snapshots.
type SchemaChange struct {
	Kind              SchemaChangeKind `json:"kind"`
	Field             string           `json:"field"`
	Detail            string           `json:"detail,omitempty"`
	Breaking          bool             `json:"breaking"`
	RequiresMigration bool             `json:"requires_migration"`
}

// BehavioralKind categorizes one heuristic behavioral finding.
type BehavioralKind string

const (
	BehaviorErrorHandling BehavioralKind = "error_handling"
	BehaviorTimeout       BehavioralKind = "timeout"
	BehaviorAuth          BehavioralKind = "authentication"
)

// BehavioralChange is a caller-visible behavior shift detected via textual
// heuristics over the before/after content snapshots.
type BehavioralChange struct {
	Kind                BehavioralKind `json:"kind"`
	Detail              string         `json:"detail"`
	PotentiallyBreaking bool           `json:"potentially_breaking"`
}

// SemanticDiff is the classified comparison of two interface versions.
// Produced once per change and immutable afterwards. Impact is a pure
// function of the breaking-change multiset (plus the security-advisory
// override) and is never set independently.
type SemanticDiff struct {
	BreakingChanges   []BreakingChange   `json:"breaking_changes"`
	Additions         []string           `json:"additions"`
	Deprecations      []string           `json:"deprecations"`
	Removals          []string           `json:"removals"`
	APIChanges        []APIChange        `json:"api_changes"`
	SchemaChanges     []SchemaChange     `json:"schema_changes"`
	BehavioralChanges []BehavioralChange `json:"behavioral_changes"`
	Impact            ImpactLevel        `json:"impact"`
}

// Result is the analyzer's full output for one change.
type Result struct {
	ChangeID           string        `json:"change_id"`
	Diff               SemanticDiff  `json:"diff"`
	ImpactScore        float64       `json:"impact_score"`
	AffectedAdapters   []string      `json:"affected_adapters"`
	RecommendedActions []string      `json:"recommended_actions"`
	AnalyzedAt         time.Time     `json:"analyzed_at"`
	Duration           time.Duration `json:"duration"`
}
