// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/analysis"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/patterns"
)

// loadSurface reads an interface snapshot from a JSON file. An empty
// path yields a nil surface.
func loadSurface(path string) *datatypes.InterfaceSurface {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read snapshot %s: %v", path, err)
	}
	var surface datatypes.InterfaceSurface
	if err := json.Unmarshal(data, &surface); err != nil {
		log.Fatalf("Failed to parse snapshot %s: %v", path, err)
	}
	return &surface
}

func buildChange() datatypes.RepositoryChange {
	return datatypes.RepositoryChange{
		SourceID:        sourceID,
		Type:            datatypes.ChangeType(changeType),
		PreviousVersion: prevVer,
		CurrentVersion:  currVer,
		Previous:        loadSurface(prevFile),
		Current:         loadSurface(currFile),
	}
}

func runSubmit(cmd *cobra.Command, args []string) {
	change := buildChange()
	var created map[string]any
	if err := postJSON("/v1/changes", change, &created); err != nil {
		log.Fatalf("Failed to submit change: %v", err)
	}
	fmt.Printf("Pipeline started: %v\n", created["id"])
	printJSON(created)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	change := buildChange()
	change.SourceID = "local"

	analyzer := analysis.NewAnalyzer(nil)
	result := analyzer.Analyze(context.Background(), change)

	matcher := patterns.NewMatcher(patterns.DefaultRegistry())
	matches := matcher.Match(patterns.ContextFromAnalysis(change, result))

	fmt.Printf("Impact: %s (risk %.2f)\n", result.Diff.Impact, result.Diff.Impact.Score())
	fmt.Printf("Breaking changes: %d\n", len(result.Diff.BreakingChanges))
	for _, bc := range result.Diff.BreakingChanges {
		fmt.Printf("  [%s] %s\n", bc.Severity, bc.Description)
	}
	if len(matches) > 0 {
		fmt.Println("Matched patterns:")
		for _, m := range matches {
			fmt.Printf("  %s (confidence %.2f)\n", m.PatternID, m.Confidence)
		}
	}
	printJSON(result)
}
