// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// ProposalStatus tracks a remediation proposal through its lifecycle.
// Status transitions are driven only by the pipeline orchestrator.
type ProposalStatus string

const (
	ProposalStatusDraft         ProposalStatus = "draft"
	ProposalStatusPendingReview ProposalStatus = "pending_review"
	ProposalStatusApproved      ProposalStatus = "approved"
	ProposalStatusRejected      ProposalStatus = "rejected"
	ProposalStatusDeployed      ProposalStatus = "deployed"
	ProposalStatusRolledBack    ProposalStatus = "rolled_back"
)

// FileChangeOp is the kind of edit a proposal applies to one file.
type FileChangeOp string

const (
	FileChangeCreate FileChangeOp = "create"
	FileChangeModify FileChangeOp = "modify"
	FileChangeDelete FileChangeOp = "delete"
)

// FileChange is one file-level edit in a proposal.
type FileChange struct {
	Path        string       `json:"path"`
	Op          FileChangeOp `json:"op"`
	Content     string       `json:"content,omitempty"`
	Description string       `json:"description,omitempty"`
}

// RollbackProcedure describes how to revert a deployed proposal.
type RollbackProcedure struct {
	Steps       []string `json:"steps"`
	Automatic   bool     `json:"automatic"`
	Description string   `json:"description,omitempty"`
}

// ChangeProposal is a draft remediation produced by the proposal
// generator. Only its Status and ReviewComments fields are mutated after
// creation, and only by the orchestrator.
type ChangeProposal struct {
	ID             string            `json:"id"`
	ChangeID       string            `json:"change_id"`
	Protocol       string            `json:"protocol"`
	Summary        string            `json:"summary"`
	FileChanges    []FileChange      `json:"file_changes"`
	GeneratedTests []FileChange      `json:"generated_tests,omitempty"`
	GeneratedDocs  []FileChange      `json:"generated_docs,omitempty"`
	Rollback       RollbackProcedure `json:"rollback"`
	Status         ProposalStatus    `json:"status"`
	ReviewComments []string          `json:"review_comments,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ReviewDecision is a human reviewer's verdict on a pending proposal.
type ReviewDecision struct {
	Approved bool     `json:"approved"`
	Reviewer string   `json:"reviewer,omitempty"`
	Comments []string `json:"comments,omitempty"`
}
