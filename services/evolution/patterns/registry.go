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

	"github.com/AleutianAI/AleutianEvolve/services/evolution/analysis"
)

// Registry is the immutable, load-once pattern catalog. Construct it at
// process start and pass it by reference; the matcher never mutates it.
type Registry struct {
	byID  map[string]EvolutionaryPattern
	order []string
}

// NewRegistry builds a registry from the given patterns.
//
// Outputs:
//
//	*Registry - The loaded catalog.
//	error - Non-nil on a duplicate or empty pattern ID.
func NewRegistry(catalog []EvolutionaryPattern) (*Registry, error) {
	byID := make(map[string]EvolutionaryPattern, len(catalog))
	order := make([]string, 0, len(catalog))

	for _, p := range catalog {
		if p.ID == "" {
			return nil, ErrInvalidPattern
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePattern, p.ID)
		}
		byID[p.ID] = p
		order = append(order, p.ID)
	}

	return &Registry{byID: byID, order: order}, nil
}

// DefaultRegistry loads the built-in catalog.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(builtinCatalog())
	if err != nil {
		// The built-in catalog is a compile-time constant; a failure
		// here is a programming error.
		panic(err)
	}
	return r
}

// Get returns the pattern with the given ID.
func (r *Registry) Get(id string) (EvolutionaryPattern, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// All returns the catalogued patterns in load order. The returned slice
// is a copy.
func (r *Registry) All() []EvolutionaryPattern {
	out := make([]EvolutionaryPattern, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of catalogued patterns.
func (r *Registry) Len() int {
	return len(r.byID)
}

// builtinCatalog is the fixed pattern library shipped with the service.
func builtinCatalog() []EvolutionaryPattern {
	return []EvolutionaryPattern{
		{
			ID:          PatternDependencyUpdate,
			Name:        "External dependency update",
			Version:     "1.0.0",
			Category:    CategoryDependency,
			Description: "An upstream dependency published a major version with incompatible changes.",
			DetectionHints: []string{
				"major version component increased",
			},
			TriggerConditions: []string{"version_major_increase"},
			Strategies:        []RemediationStrategy{StrategyUpdateAdapterContract},
			Severity:          analysis.SeverityHigh,
			BaseConfidence:    DependencyUpdateConfidence,
			Active:            true,
		},
		{
			ID:          PatternSecurityResponse,
			Name:        "Security vulnerability response",
			Version:     "1.0.0",
			Category:    CategorySecurity,
			Description: "A security advisory against the upstream interface demands an expedited patch.",
			DetectionHints: []string{
				"advisory severity critical or high",
			},
			TriggerConditions: []string{"security_advisory"},
			Strategies:        []RemediationStrategy{StrategyEmergencyPatch},
			Severity:          analysis.SeverityCritical,
			BaseConfidence:    SecurityMatchConfidence,
			Active:            true,
		},
		{
			ID:          PatternDeprecationCascade,
			Name:        "API deprecation cascade",
			Version:     "1.0.0",
			Category:    CategoryAPIEvolution,
			Description: "Upstream deprecations will cascade into removals; adapters should migrate early.",
			DetectionHints: []string{
				"one or more operations newly deprecated",
			},
			TriggerConditions: []string{"deprecation_present"},
			Strategies:        []RemediationStrategy{StrategyGradualMigration},
			Severity:          analysis.SeverityMedium,
			BaseConfidence:    DeprecationCascadeConfidence,
			Active:            true,
		},
		{
			ID:          PatternSchemaMigration,
			Name:        "Schema migration",
			Version:     "1.0.0",
			Category:    CategorySchema,
			Description: "Non-additive schema changes require coordinated data migration.",
			DetectionHints: []string{
				"schema field removed or retyped",
			},
			TriggerConditions: []string{"schema_non_additive"},
			Strategies:        []RemediationStrategy{StrategyStagedSchemaMigration},
			Severity:          analysis.SeverityHigh,
			BaseConfidence:    SchemaMigrationConfidence,
			Active:            true,
		},
		{
			ID:          PatternProtocolExtension,
			Name:        "Protocol extension",
			Version:     "1.0.0",
			Category:    CategoryProtocol,
			Description: "The interface grew new operations without breaking existing ones.",
			DetectionHints: []string{
				"operations added, nothing broken",
			},
			TriggerConditions: []string{"additive_api_growth"},
			Strategies:        []RemediationStrategy{StrategyExtendAdapterSurface},
			Severity:          analysis.SeverityLow,
			BaseConfidence:    ProtocolExtensionConfidence,
			Active:            true,
		},
		{
			ID:          PatternPerformanceDegradation,
			Name:        "Performance degradation",
			Version:     "1.0.0",
			Category:    CategoryPerformance,
			Description: "Behavioral signals suggest tighter upstream latency budgets.",
			DetectionHints: []string{
				"timeout magnitudes shrinking",
			},
			TriggerConditions: []string{"timeout_shrink"},
			Strategies:        []RemediationStrategy{StrategyBenchmarkAndTune},
			Severity:          analysis.SeverityMedium,
			BaseConfidence:    PerformanceDegradationConfidence,
			Active:            true,
		},
	}
}
