// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/pipeline"
)

func newTestStore(t *testing.T) *AuditStore {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func finishedPipeline(id string, finishedAt time.Time) pipeline.Pipeline {
	return pipeline.Pipeline{
		ID: id,
		Change: datatypes.RepositoryChange{
			ID:       "change-" + id,
			SourceID: "payments-api",
			Type:     datatypes.ChangeTypeVersionBump,
		},
		Stage: pipeline.StageCompleted,
		History: []pipeline.StageRecord{
			{Stage: pipeline.StageMonitoring, EnteredAt: finishedAt.Add(-time.Minute)},
			{Stage: pipeline.StageCompleted, EnteredAt: finishedAt},
		},
		CreatedAt:  finishedAt.Add(-time.Minute),
		FinishedAt: finishedAt,
	}
}

func TestSaveAndGetPipeline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := finishedPipeline("p1", time.Now())
	require.NoError(t, s.SavePipeline(ctx, p))

	got, err := s.GetPipeline(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Stage, got.Stage)
	assert.Equal(t, p.Change.SourceID, got.Change.SourceID)
	assert.Len(t, got.History, 2)
}

func TestGetPipelineNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPipeline(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPipelinesMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		p := finishedPipeline(fmt.Sprintf("p%d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.SavePipeline(ctx, p))
	}

	all, err := s.ListPipelines(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "p4", all[0].ID)
	assert.Equal(t, "p0", all[4].ID)

	limited, err := s.ListPipelines(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "p4", limited[0].ID)
	assert.Equal(t, "p3", limited[1].ID)
}

func TestSaveOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := finishedPipeline("p1", time.Now())
	require.NoError(t, s.SavePipeline(ctx, p))

	p.Stage = pipeline.StageFailed
	require.NoError(t, s.SavePipeline(ctx, p))

	got, err := s.GetPipeline(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageFailed, got.Stage)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestPersistentStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.SavePipeline(ctx, finishedPipeline("p1", time.Now())))
	require.NoError(t, s.Close())

	reopened, err := Open(Config{Path: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.GetPipeline(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
}
