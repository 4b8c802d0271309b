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
	"os"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL  string
	sourceID   string
	changeType string
	prevFile   string
	currFile   string
	prevVer    string
	currVer    string
	approve    bool
	reject     bool
	reviewer   string
	comment    string
	limit      int

	rootCmd = &cobra.Command{
		Use:   "evolve",
		Short: "A cli to manage the Aleutian evolution service",
		Long: `Evolve submits upstream interface changes, inspects adaptation
				pipelines, and reviews proposals held for human approval.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if serverURL == "" {
				serverURL = os.Getenv("EVOLVE_SERVER_URL")
			}
			if serverURL == "" {
				serverURL = "http://localhost:12230"
			}
		},
	}

	// --- Changes ---
	submitCmd = &cobra.Command{
		Use:   "submit",
		Short: "Submit an upstream change for adaptation",
		Run:   runSubmit, // Defined in cmd_changes.go
	}
	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Analyze two interface snapshots locally without the server",
		Run:   runAnalyze, // Defined in cmd_changes.go
	}

	// --- Pipelines ---
	pipelinesCmd = &cobra.Command{
		Use:   "pipelines [pipeline-id]",
		Short: "List pipelines, or show one by ID",
		Args:  cobra.MaximumNArgs(1),
		Run:   runPipelines, // Defined in cmd_pipelines.go
	}
	approvalsCmd = &cobra.Command{
		Use:   "approvals",
		Short: "List pipelines parked for human review",
		Run:   runApprovals, // Defined in cmd_pipelines.go
	}
	reviewCmd = &cobra.Command{
		Use:   "review [pipeline-id]",
		Short: "Approve or reject a pipeline awaiting review",
		Args:  cobra.ExactArgs(1),
		Run:   runReview, // Defined in cmd_pipelines.go
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show pipeline statistics for the service",
		Run:   runStatus, // Defined in cmd_pipelines.go
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show the audit trail of finished pipelines",
		Run:   runHistory, // Defined in cmd_pipelines.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Evolution service URL (default $EVOLVE_SERVER_URL or http://localhost:12230)")

	submitCmd.Flags().StringVar(&sourceID, "source", "", "Registered source ID (required)")
	submitCmd.Flags().StringVar(&changeType, "type", "api_change", "Change type")
	submitCmd.Flags().StringVar(&prevFile, "previous", "", "Path to the previous interface snapshot (JSON)")
	submitCmd.Flags().StringVar(&currFile, "current", "", "Path to the current interface snapshot (JSON, required)")
	submitCmd.Flags().StringVar(&prevVer, "previous-version", "", "Previous semantic version")
	submitCmd.Flags().StringVar(&currVer, "current-version", "", "Current semantic version")
	_ = submitCmd.MarkFlagRequired("source")
	_ = submitCmd.MarkFlagRequired("current")

	analyzeCmd.Flags().StringVar(&prevFile, "previous", "", "Path to the previous interface snapshot (JSON)")
	analyzeCmd.Flags().StringVar(&currFile, "current", "", "Path to the current interface snapshot (JSON, required)")
	analyzeCmd.Flags().StringVar(&prevVer, "previous-version", "", "Previous semantic version")
	analyzeCmd.Flags().StringVar(&currVer, "current-version", "", "Current semantic version")
	_ = analyzeCmd.MarkFlagRequired("current")

	reviewCmd.Flags().BoolVar(&approve, "approve", false, "Approve the pending proposal")
	reviewCmd.Flags().BoolVar(&reject, "reject", false, "Reject the pending proposal")
	reviewCmd.Flags().StringVar(&reviewer, "reviewer", "", "Reviewer identity")
	reviewCmd.Flags().StringVar(&comment, "comment", "", "Review comment")

	historyCmd.Flags().IntVar(&limit, "limit", 20, "Maximum records to show")

	rootCmd.AddCommand(submitCmd, analyzeCmd, pipelinesCmd, approvalsCmd,
		reviewCmd, statusCmd, historyCmd)
}
