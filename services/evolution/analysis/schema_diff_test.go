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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

func TestCompareSchemasRemovedFieldRequiresMigration(t *testing.T) {
	prev := []datatypes.SchemaField{
		{Name: "id", Type: "string", Required: true},
		{Name: "legacy_flag", Type: "bool"},
	}
	curr := []datatypes.SchemaField{
		{Name: "id", Type: "string", Required: true},
	}

	changes := compareSchemas(prev, curr)
	require.Len(t, changes, 1)
	assert.Equal(t, SchemaFieldRemoved, changes[0].Kind)
	assert.True(t, changes[0].Breaking)
	assert.True(t, changes[0].RequiresMigration)
}

func TestCompareSchemasTypeChangeRequiresMigration(t *testing.T) {
	prev := []datatypes.SchemaField{{Name: "amount", Type: "int"}}
	curr := []datatypes.SchemaField{{Name: "amount", Type: "decimal"}}

	changes := compareSchemas(prev, curr)
	require.Len(t, changes, 1)
	assert.Equal(t, SchemaFieldTypeChanged, changes[0].Kind)
	assert.True(t, changes[0].Breaking)
	assert.True(t, changes[0].RequiresMigration)
}

func TestCompareSchemasAddedField(t *testing.T) {
	prev := []datatypes.SchemaField{{Name: "id", Type: "string"}}

	t.Run("optional addition is non-breaking", func(t *testing.T) {
		curr := append(prev, datatypes.SchemaField{Name: "note", Type: "string"})
		changes := compareSchemas(prev, curr)
		require.Len(t, changes, 1)
		assert.Equal(t, SchemaFieldAdded, changes[0].Kind)
		assert.False(t, changes[0].Breaking)
	})

	t.Run("required addition is breaking", func(t *testing.T) {
		curr := append(prev, datatypes.SchemaField{Name: "tenant", Type: "string", Required: true})
		changes := compareSchemas(prev, curr)
		require.Len(t, changes, 1)
		assert.Equal(t, SchemaFieldAdded, changes[0].Kind)
		assert.True(t, changes[0].Breaking)
	})
}

func TestCompareSchemasIdenticalIsEmpty(t *testing.T) {
	fields := []datatypes.SchemaField{
		{Name: "id", Type: "string", Required: true},
		{Name: "name", Type: "string"},
	}
	assert.Empty(t, compareSchemas(fields, fields))
}
