// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryCatalog(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, 6, r.Len())

	want := map[string]float64{
		PatternDependencyUpdate:       0.9,
		PatternSecurityResponse:       0.95,
		PatternDeprecationCascade:     0.8,
		PatternSchemaMigration:        0.85,
		PatternProtocolExtension:      0.7,
		PatternPerformanceDegradation: 0.65,
	}
	for id, conf := range want {
		p, ok := r.Get(id)
		require.True(t, ok, "missing pattern %s", id)
		assert.Equal(t, conf, p.BaseConfidence, id)
		assert.True(t, p.Active, id)
		assert.NotEmpty(t, p.Strategies, id)
	}
}

func TestNewRegistryRejectsEmptyID(t *testing.T) {
	_, err := NewRegistry([]EvolutionaryPattern{{Name: "nameless"}})
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestNewRegistryRejectsDuplicateID(t *testing.T) {
	_, err := NewRegistry([]EvolutionaryPattern{
		{ID: "pattern-x"},
		{ID: "pattern-x"},
	})
	assert.ErrorIs(t, err, ErrDuplicatePattern)
}

func TestRegistryAllReturnsCopy(t *testing.T) {
	r := DefaultRegistry()
	all := r.All()
	require.NotEmpty(t, all)

	all[0].Active = false
	p, ok := r.Get(all[0].ID)
	require.True(t, ok)
	assert.True(t, p.Active)
}
