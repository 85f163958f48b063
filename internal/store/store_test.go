// Copyright (C) 2024 The RiverDAG Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/store"
)

func TestMetricsStoreRecordAndAverage(t *testing.T) {
	dir := t.TempDir()
	ms, err := store.OpenMetricsStore(filepath.Join(dir, "metrics.db"))
	require.NoError(t, err)
	defer ms.Close()

	ctx := context.Background()
	for _, rows := range []int{900, 1100} {
		require.NoError(t, ms.Record(ctx, store.RunRecord{
			PipelineName:  "p",
			PipelineHash:  "h",
			StartedAt:     time.Now(),
			FinishedAt:    time.Now(),
			TotalRows:     rows,
			TotalDuration: time.Second,
			Status:        "success",
		}))
	}

	avg, count, err := ms.AverageRows(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.InDelta(t, 1000, avg, 0.001)

	last, ok, err := ms.LastForPipeline(ctx, "p")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1100, last.TotalRows)
}

func TestKanbanLifecycle(t *testing.T) {
	dir := t.TempDir()
	k := store.OpenKanbanStore(filepath.Join(dir, "kanban.json"))

	id, err := k.Enqueue("p.yaml", "p", map[string]any{"x": 1})
	require.NoError(t, err)

	item, ok, err := k.NextBacklog()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, item.ID)

	require.NoError(t, k.Transition(id, store.KanbanInProgress, "", ""))
	require.NoError(t, k.Transition(id, store.KanbanDone, "", "ok"))

	items, err := k.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, store.KanbanDone, items[0].State)
	assert.Equal(t, "ok", items[0].Summary)
}

func TestCheckpointSaveLoadClear(t *testing.T) {
	dir := t.TempDir()
	cp := store.OpenCheckpointStore(dir)
	assert.False(t, cp.Exists())

	r := row.NewRow()
	r.Set("id", row.Int(1))
	data := row.Dataset{r}

	meta := store.CheckpointMeta{
		PipelineName:  "p",
		PipelineHash:  "h",
		CompletedStep: 2,
		Vars:          map[string]any{"k": "v"},
	}
	require.NoError(t, cp.Save(meta, data))
	assert.True(t, cp.Exists())

	loadedMeta, loadedData, ok, err := cp.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, loadedMeta.CompletedStep)
	require.Len(t, loadedData, 1)
	assert.Equal(t, int64(1), loadedData[0].Get("id").Int())

	require.NoError(t, cp.Clear())
	assert.False(t, cp.Exists())
}

func TestHashStoreGetSet(t *testing.T) {
	dir := t.TempDir()
	h := store.OpenHashStore(filepath.Join(dir, "hashes.json"))

	key := store.Key("p", 0)
	_, ok, err := h.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.Set(key, "abc123"))
	v, ok, err := h.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc123", v)
}
