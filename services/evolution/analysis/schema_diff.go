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
	"fmt"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

// compareSchemas computes field-level differences between two schema
// snapshots. A removed field or a type change on a field is breaking and
// requires migration; an added field is breaking only when it arrives
// marked required.
func compareSchemas(prev, curr []datatypes.SchemaField) []SchemaChange {
	changes := make([]SchemaChange, 0)

	prevByName := make(map[string]datatypes.SchemaField, len(prev))
	for _, f := range prev {
		prevByName[f.Name] = f
	}
	currByName := make(map[string]datatypes.SchemaField, len(curr))
	for _, f := range curr {
		currByName[f.Name] = f
	}

	for _, f := range prev {
		if _, ok := currByName[f.Name]; !ok {
			changes = append(changes, SchemaChange{
				Kind:              SchemaFieldRemoved,
				Field:             f.Name,
				Breaking:          true,
				RequiresMigration: true,
			})
		}
	}

	for _, f := range curr {
		old, existed := prevByName[f.Name]
		if !existed {
			changes = append(changes, SchemaChange{
				Kind:     SchemaFieldAdded,
				Field:    f.Name,
				Breaking: f.Required,
			})
			continue
		}
		if old.Type != f.Type {
			changes = append(changes, SchemaChange{
				Kind:              SchemaFieldTypeChanged,
				Field:             f.Name,
				Detail:            fmt.Sprintf("%s -> %s", old.Type, f.Type),
				Breaking:          true,
				RequiresMigration: true,
			})
		}
	}

	return changes
}

// schemaMigrationHint suggests the caller-side fix for a breaking schema
// change.
func schemaMigrationHint(change SchemaChange) string {
	switch change.Kind {
	case SchemaFieldRemoved:
		return fmt.Sprintf("migrate data out of removed field %q", change.Field)
	case SchemaFieldTypeChanged:
		return fmt.Sprintf("migrate field %q (%s)", change.Field, change.Detail)
	case SchemaFieldAdded:
		return fmt.Sprintf("populate newly required field %q", change.Field)
	default:
		return ""
	}
}
