// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"
)

func TestValidateSourceID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid identifiers
		{"simple", "payments", false},
		{"single char", "a", false},
		{"with digit", "payments2", false},
		{"with hyphen", "payments-api", false},
		{"with underscore", "payments_api", false},
		{"with dot", "payments.v2", false},
		{"max length", strings.Repeat("a", 64), false},

		// Invalid identifiers - injection attempts
		{"empty", "", true},
		{"uppercase", "Payments", true},
		{"path traversal", "../etc", true},
		{"slash", "payments/api", true},
		{"spaces", "pay ments", true},
		{"newline injection", "payments\nrm -rf", true},
		{"shell chars", "payments;id", true},
		{"starts with dot", ".payments", true},
		{"starts with hyphen", "-payments", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSourceID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRelativePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		// Valid paths
		{"simple file", "adapter.go", false},
		{"nested", "adapters/payments/adapter.go", false},
		{"dot segment collapses inside", "adapters/./payments/adapter.go", false},
		{"internal parent collapses", "adapters/payments/../orders/adapter.go", false},

		// Invalid paths
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"windows absolute", "\\windows\\system32", true},
		{"traversal", "../secrets.txt", true},
		{"deep traversal", "adapters/../../secrets.txt", true},
		{"nul byte", "adapter.go\x00.sh", true},
		{"newline", "adapter.go\nrm -rf", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRelativePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRelativePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeSourceID(t *testing.T) {
	got, err := SanitizeSourceID("  Payments-API ")
	if err != nil {
		t.Fatalf("SanitizeSourceID() error = %v", err)
	}
	if got != "payments-api" {
		t.Errorf("SanitizeSourceID() = %q, want %q", got, "payments-api")
	}

	if _, err := SanitizeSourceID("../etc"); err == nil {
		t.Error("SanitizeSourceID(../etc) expected error")
	}
}
