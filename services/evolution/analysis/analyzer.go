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
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/mod/semver"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

var tracer = otel.Tracer("evolve.analysis")

// DefaultPreviousVersion is substituted when a change record arrives
// without a previous version.
const DefaultPreviousVersion = "0.0.0"

// Impact classification thresholds over breaking-change counts.
const (
	criticalImpactCriticalCount = 2 // more than this many critical -> critical
	criticalImpactHighCount     = 5 // more than this many high -> critical
	significantImpactHighCount  = 2 // more than this many high -> significant
)

// scopeFactorPerPath widens the impact score as more paths are touched.
// The factor itself is capped so a sprawling but low-severity change
// cannot saturate the score on breadth alone.
const (
	scopeFactorPerPath = 0.05
	scopeFactorCap     = 1.5
)

// Analyzer turns raw change records into semantic diffs with an impact
// classification.
//
// # Thread Safety
//
// Analyzer is stateless after construction and safe for concurrent use.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer. A nil logger falls back to
// slog.Default().
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger}
}

// Analyze classifies one change record.
//
// Description:
//
//	Runs the structural API comparison, the schema-field comparison, the
//	behavioral heuristics, and the version comparison, aggregates the
//	findings into breaking-change records, and derives the ordinal impact
//	level and continuous impact score.
//
// Analyze never fails: missing fields are defaulted and the worst case is
// an empty diff with impact "none".
func (a *Analyzer) Analyze(ctx context.Context, change datatypes.RepositoryChange) Result {
	_, span := tracer.Start(ctx, "analysis.Analyze",
		trace.WithAttributes(
			attribute.String("change.id", change.ID),
			attribute.String("change.type", string(change.Type)),
			attribute.String("change.source", change.SourceID),
		),
	)
	defer span.End()

	start := time.Now()

	prevVersion := change.PreviousVersion
	if prevVersion == "" {
		prevVersion = DefaultPreviousVersion
	}

	diff := SemanticDiff{
		BreakingChanges:   make([]BreakingChange, 0),
		Additions:         make([]string, 0),
		Deprecations:      make([]string, 0),
		Removals:          make([]string, 0),
		APIChanges:        make([]APIChange, 0),
		SchemaChanges:     make([]SchemaChange, 0),
		BehavioralChanges: make([]BehavioralChange, 0),
	}

	// API surface comparison, where snapshots are available.
	var prevSurface, currSurface datatypes.InterfaceSurface
	if change.Previous != nil {
		prevSurface = *change.Previous
	}
	if change.Current != nil {
		currSurface = *change.Current
	}

	diff.APIChanges = compareAPISurfaces(prevSurface.Operations, currSurface.Operations)
	diff.SchemaChanges = compareSchemas(prevSurface.Schema, currSurface.Schema)
	diff.BehavioralChanges = detectBehavioralChanges(prevSurface.Content, currSurface.Content)

	a.collectAPIFindings(&diff)
	a.collectSchemaFindings(&diff)
	a.collectBehavioralFindings(&diff)
	a.collectVersionFindings(&diff, prevVersion, change.CurrentVersion)
	a.collectAdvisoryFindings(&diff, change.Advisories)

	diff.Impact = classifyImpact(&diff, change.Advisories)

	paths := mergePaths(change.ChangedPaths, changedPathsFromDiff(change.Diff))
	score := impactScore(diff.BreakingChanges, len(paths))

	result := Result{
		ChangeID:           change.ID,
		Diff:               diff,
		ImpactScore:        score,
		AffectedAdapters:   affectedAdapters(change.SourceID, paths),
		RecommendedActions: recommendedActions(&diff),
		AnalyzedAt:         start,
		Duration:           time.Since(start),
	}

	span.SetAttributes(
		attribute.String("analysis.impact", string(diff.Impact)),
		attribute.Float64("analysis.score", score),
		attribute.Int("analysis.breaking_changes", len(diff.BreakingChanges)),
	)

	a.logger.Info("change analyzed",
		slog.String("change_id", change.ID),
		slog.String("impact", string(diff.Impact)),
		slog.Float64("score", score),
		slog.Int("breaking_changes", len(diff.BreakingChanges)),
	)

	return result
}

// collectAPIFindings folds API changes into the additions, removals,
// deprecations, and breaking-change lists.
func (a *Analyzer) collectAPIFindings(diff *SemanticDiff) {
	for _, c := range diff.APIChanges {
		switch c.Kind {
		case APIAdded:
			diff.Additions = append(diff.Additions, c.Operation)
		case APIRemoved:
			diff.Removals = append(diff.Removals, c.Operation)
		case APIDeprecated:
			diff.Deprecations = append(diff.Deprecations, c.Operation)
		case APIParamAdded:
			diff.Additions = append(diff.Additions, fmt.Sprintf("%s(%s)", c.Operation, c.Detail))
		}

		if c.Breaking {
			diff.BreakingChanges = append(diff.BreakingChanges, BreakingChange{
				Description:   fmt.Sprintf("%s: %s", c.Kind, c.Operation),
				Location:      c.Operation,
				Severity:      apiChangeSeverity(c.Kind),
				MigrationHint: apiMigrationHint(c),
			})
		}
	}
}

// collectSchemaFindings folds schema changes into the diff.
func (a *Analyzer) collectSchemaFindings(diff *SemanticDiff) {
	for _, c := range diff.SchemaChanges {
		switch c.Kind {
		case SchemaFieldAdded:
			diff.Additions = append(diff.Additions, "schema:"+c.Field)
		case SchemaFieldRemoved:
			diff.Removals = append(diff.Removals, "schema:"+c.Field)
		}

		if c.Breaking {
			diff.BreakingChanges = append(diff.BreakingChanges, BreakingChange{
				Description:   fmt.Sprintf("%s: %s", c.Kind, c.Field),
				Location:      "schema." + c.Field,
				Severity:      SeverityHigh,
				MigrationHint: schemaMigrationHint(c),
			})
		}
	}
}

// collectBehavioralFindings folds heuristic behavioral findings into the
// diff. Behavioral breaking changes are capped at medium severity; the
// evidence is textual, not structural.
func (a *Analyzer) collectBehavioralFindings(diff *SemanticDiff) {
	for _, c := range diff.BehavioralChanges {
		if !c.PotentiallyBreaking {
			continue
		}
		diff.BreakingChanges = append(diff.BreakingChanges, BreakingChange{
			Description:   fmt.Sprintf("behavioral %s: %s", c.Kind, c.Detail),
			Severity:      SeverityMedium,
			MigrationHint: "review caller assumptions against the new behavior",
		})
	}
}

// collectVersionFindings interprets the version delta. A major version
// increase presumes incompatible changes even when no surface snapshot is
// available to prove them.
func (a *Analyzer) collectVersionFindings(diff *SemanticDiff, prev, curr string) {
	if curr == "" {
		return
	}

	prevCanon := canonicalVersion(prev)
	currCanon := canonicalVersion(curr)
	if prevCanon == "" || currCanon == "" || semver.Compare(currCanon, prevCanon) <= 0 {
		return
	}

	if semver.Major(currCanon) != semver.Major(prevCanon) {
		diff.BreakingChanges = append(diff.BreakingChanges, BreakingChange{
			Description:   fmt.Sprintf("major version increase %s -> %s", prev, curr),
			Severity:      SeverityCritical,
			MigrationHint: "review upstream release notes for incompatible changes",
		})
		return
	}

	diff.Additions = append(diff.Additions, fmt.Sprintf("version %s -> %s", prev, curr))
}

// collectAdvisoryFindings records critical and high advisories as
// breaking changes; lower severities are informational.
func (a *Analyzer) collectAdvisoryFindings(diff *SemanticDiff, advisories []datatypes.SecurityAdvisory) {
	for _, adv := range advisories {
		var severity Severity
		switch adv.Severity {
		case datatypes.AdvisorySeverityCritical:
			severity = SeverityCritical
		case datatypes.AdvisorySeverityHigh:
			severity = SeverityHigh
		default:
			continue
		}
		diff.BreakingChanges = append(diff.BreakingChanges, BreakingChange{
			Description:   fmt.Sprintf("security advisory %s: %s", adv.ID, adv.Summary),
			Location:      adv.AffectedAPI,
			Severity:      severity,
			MigrationHint: "apply the upstream security fix",
		})
	}
}

// classifyImpact derives the ordinal impact level from the
// breaking-change multiset using fixed thresholds. A critical security
// advisory overrides the count-based result: the blast radius of an
// exploitable interface is total regardless of how small the diff is.
func classifyImpact(diff *SemanticDiff, advisories []datatypes.SecurityAdvisory) ImpactLevel {
	for _, adv := range advisories {
		if adv.Severity == datatypes.AdvisorySeverityCritical {
			return ImpactCritical
		}
	}

	criticalCount := 0
	highCount := 0
	for _, bc := range diff.BreakingChanges {
		switch bc.Severity {
		case SeverityCritical:
			criticalCount++
		case SeverityHigh:
			highCount++
		}
	}

	switch {
	case criticalCount > criticalImpactCriticalCount || highCount > criticalImpactHighCount:
		return ImpactCritical
	case criticalCount > 0 || highCount > significantImpactHighCount:
		return ImpactSignificant
	case highCount > 0:
		return ImpactModerate
	case len(diff.BreakingChanges) > 0 || len(diff.Additions) > 0 ||
		len(diff.Deprecations) > 0 || len(diff.BehavioralChanges) > 0:
		return ImpactMinimal
	default:
		return ImpactNone
	}
}

// impactScore computes the continuous score: the severity-weighted mean
// of breaking changes, widened by a scope factor that grows with the
// number of changed paths, capped at 1.0.
func impactScore(breaking []BreakingChange, pathCount int) float64 {
	if len(breaking) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, bc := range breaking {
		sum += bc.Severity.Weight()
	}
	mean := sum / float64(len(breaking))

	factor := 1.0 + float64(pathCount)*scopeFactorPerPath
	if factor > scopeFactorCap {
		factor = scopeFactorCap
	}

	score := mean * factor
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// affectedAdapters lists the adapter identities a change touches: the
// source itself plus one entry per top-level changed path segment.
func affectedAdapters(sourceID string, paths []string) []string {
	seen := make(map[string]struct{})
	adapters := make([]string, 0, 1+len(paths))

	if sourceID != "" {
		seen[sourceID] = struct{}{}
		adapters = append(adapters, sourceID)
	}

	for _, p := range paths {
		top := topSegment(p)
		if top == "" {
			continue
		}
		if _, ok := seen[top]; !ok {
			seen[top] = struct{}{}
			adapters = append(adapters, top)
		}
	}

	if len(adapters) > 1 {
		sort.Strings(adapters[1:])
	}
	return adapters
}

// recommendedActions collects the distinct migration hints.
func recommendedActions(diff *SemanticDiff) []string {
	seen := make(map[string]struct{})
	actions := make([]string, 0, len(diff.BreakingChanges))
	for _, bc := range diff.BreakingChanges {
		if bc.MigrationHint == "" {
			continue
		}
		if _, ok := seen[bc.MigrationHint]; !ok {
			seen[bc.MigrationHint] = struct{}{}
			actions = append(actions, bc.MigrationHint)
		}
	}
	return actions
}

// canonicalVersion coerces a bare version string into semver canonical
// form ("1.2.3" -> "v1.2.3"). Returns "" for unparseable input.
func canonicalVersion(v string) string {
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

func topSegment(p string) string {
	clean := path.Clean(strings.TrimPrefix(p, "/"))
	if clean == "." || clean == "" {
		return ""
	}
	if i := strings.IndexByte(clean, '/'); i > 0 {
		return clean[:i]
	}
	return clean
}
