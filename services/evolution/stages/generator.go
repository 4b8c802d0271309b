// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stages provides the built-in pipeline collaborators: a
// template-driven proposal generator, a heuristic validator, and a
// filesystem deployer. Each implements the corresponding orchestrator
// contract and can be swapped for an external system.
package stages

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/analysis"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/pipeline"
)

// TemplateGenerator renders remediation proposals from the analysis
// findings. One migration note per breaking change, one adapter stub
// per affected adapter, plus a test skeleton and a changelog entry.
type TemplateGenerator struct {
	// AdapterRoot is the repository-relative directory adapter files
	// live under. Default: "adapters"
	AdapterRoot string
}

// NewTemplateGenerator creates a generator with default layout.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{AdapterRoot: "adapters"}
}

// Generate builds a proposal for the analyzed change. It fails only
// when the request names no protocol, which would leave the proposal
// unroutable.
func (g *TemplateGenerator) Generate(ctx context.Context, req pipeline.GenerateRequest) (pipeline.GenerationResult, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.GenerationResult{}, err
	}
	if req.Protocol == "" {
		return pipeline.GenerationResult{
			Success: false,
			Errors: []pipeline.GenerationError{{
				Code:    "MISSING_PROTOCOL",
				Message: "change has no source protocol to generate against",
			}},
		}, nil
	}

	root := g.AdapterRoot
	if root == "" {
		root = "adapters"
	}

	diff := req.Analysis.Analysis.Diff
	changes := make([]datatypes.FileChange, 0)
	steps := make([]string, 0)

	adapterPath := path.Join(root, req.Protocol, "adapter.go")
	changes = append(changes, datatypes.FileChange{
		Path:        adapterPath,
		Op:          datatypes.FileChangeModify,
		Content:     g.renderAdapter(req),
		Description: fmt.Sprintf("regenerate %s adapter for version %s", req.Protocol, req.Change.CurrentVersion),
	})
	steps = append(steps, fmt.Sprintf("restore previous %s", adapterPath))

	if len(diff.BreakingChanges) > 0 {
		migrationPath := path.Join(root, req.Protocol, "MIGRATION.md")
		changes = append(changes, datatypes.FileChange{
			Path:        migrationPath,
			Op:          datatypes.FileChangeCreate,
			Content:     g.renderMigrationNotes(req.Change, diff.BreakingChanges),
			Description: "migration notes for breaking changes",
		})
		steps = append(steps, fmt.Sprintf("remove %s", migrationPath))
	}

	tests := []datatypes.FileChange{{
		Path:        path.Join(root, req.Protocol, "adapter_test.go"),
		Op:          datatypes.FileChangeModify,
		Content:     g.renderTestSkeleton(req),
		Description: "contract tests for the regenerated adapter",
	}}

	docs := []datatypes.FileChange{{
		Path:        path.Join(root, req.Protocol, "CHANGELOG.md"),
		Op:          datatypes.FileChangeModify,
		Content:     g.renderChangelogEntry(req),
		Description: "changelog entry",
	}}

	proposal := &datatypes.ChangeProposal{
		ID:             uuid.NewString(),
		ChangeID:       req.Change.ID,
		Protocol:       req.Protocol,
		Summary:        g.summarize(req),
		FileChanges:    changes,
		GeneratedTests: tests,
		GeneratedDocs:  docs,
		Rollback: datatypes.RollbackProcedure{
			Steps:       steps,
			Automatic:   true,
			Description: "restore backed-up adapter files",
		},
		Status:    datatypes.ProposalStatusDraft,
		CreatedAt: time.Now(),
	}
	return pipeline.GenerationResult{Success: true, Proposal: proposal}, nil
}

func (g *TemplateGenerator) summarize(req pipeline.GenerateRequest) string {
	diff := req.Analysis.Analysis.Diff
	strategies := req.Analysis.RecommendedStrategies()
	parts := []string{fmt.Sprintf("adapt %s to upstream change (%s impact)", req.Protocol, diff.Impact)}
	if len(diff.BreakingChanges) > 0 {
		parts = append(parts, fmt.Sprintf("%d breaking changes", len(diff.BreakingChanges)))
	}
	if len(strategies) > 0 {
		names := make([]string, 0, len(strategies))
		for _, s := range strategies {
			names = append(names, string(s))
		}
		parts = append(parts, "strategy: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "; ")
}

func (g *TemplateGenerator) renderAdapter(req pipeline.GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated for %s", req.Protocol)
	if req.Change.CurrentVersion != "" {
		fmt.Fprintf(&b, " %s", req.Change.CurrentVersion)
	}
	b.WriteString("\n\npackage adapter\n")
	if req.Change.Current != nil {
		for _, op := range req.Change.Current.Operations {
			if op.Deprecated {
				continue
			}
			fmt.Fprintf(&b, "\n// %s maps the upstream %s operation.\nfunc %s() {}\n",
				op.Name, req.Protocol, op.Name)
		}
	}
	return b.String()
}

func (g *TemplateGenerator) renderMigrationNotes(change datatypes.RepositoryChange, breaking []analysis.BreakingChange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Migration: %s -> %s\n\n", change.PreviousVersion, change.CurrentVersion)
	for _, bc := range breaking {
		fmt.Fprintf(&b, "- **%s** %s", bc.Severity, bc.Description)
		if bc.MigrationHint != "" {
			fmt.Fprintf(&b, " (%s)", bc.MigrationHint)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (g *TemplateGenerator) renderTestSkeleton(req pipeline.GenerateRequest) string {
	var b strings.Builder
	b.WriteString("package adapter\n\nimport \"testing\"\n")
	if req.Change.Current != nil {
		for _, op := range req.Change.Current.Operations {
			if op.Deprecated {
				continue
			}
			fmt.Fprintf(&b, "\nfunc Test%s(t *testing.T) {\n\tt.Skip(\"pending contract fixture\")\n}\n", op.Name)
		}
	}
	return b.String()
}

func (g *TemplateGenerator) renderChangelogEntry(req pipeline.GenerateRequest) string {
	return fmt.Sprintf("## %s\n\n- %s\n",
		time.Now().Format("2006-01-02"), g.summarize(req))
}
