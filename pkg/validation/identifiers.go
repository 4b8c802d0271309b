// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// file paths, registry keys, or generated file trees. Using these validators
// prevents injection attacks (path traversal, key collisions, shell-hostile
// identifiers).
package validation

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// sourceIDPattern matches valid watched-source and protocol identifiers.
// Allows: lowercase letters, digits, hyphens, underscores, dots.
// Max length: 64 characters.
var sourceIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._\-]{0,63}$`)

// ValidateSourceID validates a source or protocol identifier.
//
// Identifiers appear in store keys, adapter directory names, and metric
// labels, so they must be filesystem- and label-safe.
//
// Valid identifiers:
//   - 1-64 characters
//   - Lowercase letters a-z and digits 0-9
//   - Dots (.), underscores (_), and hyphens (-) after the first character
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateSourceID(src.ID); err != nil {
//	    return fmt.Errorf("invalid source: %w", err)
//	}
func ValidateSourceID(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !sourceIDPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier format: %q (must be 1-64 lowercase alphanumeric chars, dots, underscores, or hyphens)", id)
	}
	return nil
}

// ValidateRelativePath validates a repository-relative file path before
// it is joined onto a workspace root.
//
// Rejected paths:
//   - Empty paths
//   - Absolute paths
//   - Paths containing ".." segments (traversal)
//   - Paths containing NUL or newline bytes
//
// Returns an error if the path is unsafe.
func ValidateRelativePath(p string) error {
	if p == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsAny(p, "\x00\n\r") {
		return fmt.Errorf("path contains control characters")
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return fmt.Errorf("path must be relative: %q", p)
	}
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("path escapes the workspace: %q", p)
	}
	return nil
}

// SanitizeSourceID normalizes and validates an identifier.
// Returns the lowercase identifier if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safeID, err := validation.SanitizeSourceID(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeID is lowercase and validated
func SanitizeSourceID(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if err := ValidateSourceID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
