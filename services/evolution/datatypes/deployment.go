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

// DeploymentStatus is the overall outcome of a deployment.
type DeploymentStatus string

const (
	DeploymentStatusSuccess    DeploymentStatus = "success"
	DeploymentStatusFailed     DeploymentStatus = "failed"
	DeploymentStatusRolledBack DeploymentStatus = "rolled_back"
)

// StageState is the state of one deployment stage.
type StageState string

const (
	StageStatePending StageState = "pending"
	StageStateRunning StageState = "running"
	StageStateSuccess StageState = "success"
	StageStateFailed  StageState = "failed"
	StageStateSkipped StageState = "skipped"
)

// StageOutcome records the result of one deployment stage. Successful
// stages stay in the audit trail even when a later stage fails.
type StageOutcome struct {
	Name     string        `json:"name"`
	State    StageState    `json:"state"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// DeploymentResult is the deployment executor's report for one proposal.
type DeploymentResult struct {
	ProposalID        string           `json:"proposal_id"`
	Status            DeploymentStatus `json:"status"`
	Stages            []StageOutcome   `json:"stages"`
	RollbackAvailable bool             `json:"rollback_available"`
	DeployedAt        time.Time        `json:"deployed_at"`
}
