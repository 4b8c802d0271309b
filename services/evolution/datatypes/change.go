// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the shared data model for the evolution service:
// detected upstream changes, remediation proposals, validation outcomes,
// and deployment records.
package datatypes

import "time"

// ChangeType categorizes a detected upstream change.
type ChangeType string

const (
	ChangeTypeVersionBump      ChangeType = "version_bump"
	ChangeTypeAPIChange        ChangeType = "api_change"
	ChangeTypeSchemaChange     ChangeType = "schema_change"
	ChangeTypeSecurityAdvisory ChangeType = "security_advisory"
	ChangeTypeBehaviorChange   ChangeType = "behavior_change"
)

// ChangeStatus tracks a change record through its lifecycle.
type ChangeStatus string

const (
	ChangeStatusDetected ChangeStatus = "detected"
	ChangeStatusAnalyzed ChangeStatus = "analyzed"
	ChangeStatusAdapted  ChangeStatus = "adapted"
	ChangeStatusIgnored  ChangeStatus = "ignored"
)

// AdvisorySeverity is the reported severity of a security advisory.
type AdvisorySeverity string

const (
	AdvisorySeverityCritical AdvisorySeverity = "critical"
	AdvisorySeverityHigh     AdvisorySeverity = "high"
	AdvisorySeverityMedium   AdvisorySeverity = "medium"
	AdvisorySeverityLow      AdvisorySeverity = "low"
)

// SecurityAdvisory is an upstream vulnerability notice attached to a change.
type SecurityAdvisory struct {
	ID          string           `json:"id"`
	Severity    AdvisorySeverity `json:"severity"`
	Summary     string           `json:"summary"`
	AffectedAPI string           `json:"affected_api,omitempty"`
}

// Parameter describes one parameter of an API operation.
type Parameter struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Required   bool   `json:"required"`
	HasDefault bool   `json:"has_default"`
}

// APISignature is the structural shape of one API operation: name,
// parameters, and return shape. Comparison is purely structural.
type APISignature struct {
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters,omitempty"`
	ReturnType string      `json:"return_type,omitempty"`
	Deprecated bool        `json:"deprecated"`
}

// SchemaField is one field of a data schema exposed by the interface.
type SchemaField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// InterfaceSurface is a snapshot of an upstream interface at one version:
// its operations, its schema fields, and the raw content the snapshot was
// taken from (used for behavioral heuristics).
type InterfaceSurface struct {
	Operations []APISignature `json:"operations,omitempty"`
	Schema     []SchemaField  `json:"schema,omitempty"`
	Content    string         `json:"content,omitempty"`
}

// RepositoryChange is one detected upstream event. A change record is
// immutable once analyzed and is referenced by exactly one pipeline
// instance.
type RepositoryChange struct {
	ID              string             `json:"id"`
	SourceID        string             `json:"source_id"`
	Type            ChangeType         `json:"type"`
	PreviousVersion string             `json:"previous_version,omitempty"`
	CurrentVersion  string             `json:"current_version,omitempty"`
	ChangedPaths    []string           `json:"changed_paths,omitempty"`
	Diff            string             `json:"diff,omitempty"`
	Previous        *InterfaceSurface  `json:"previous,omitempty"`
	Current         *InterfaceSurface  `json:"current,omitempty"`
	Advisories      []SecurityAdvisory `json:"advisories,omitempty"`
	Status          ChangeStatus       `json:"status"`
	DetectedAt      time.Time          `json:"detected_at"`
}
